package engine

import "errors"

// Errors returned by engine operations.
var (
	// ErrClosed indicates the engine has been closed.
	ErrClosed = errors.New("engine is closed")

	// ErrNoDerive indicates Prewarm was called without a derive function.
	ErrNoDerive = errors.New("prewarm requires a derive function")
)
