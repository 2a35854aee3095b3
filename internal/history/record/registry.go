package record

import (
	"strings"
	"sync"
)

// Capability is a trait a record kind declares when it is registered.
type Capability uint8

const (
	// CapTransform marks kinds that can be moved, resized or rotated.
	CapTransform Capability = 1 << iota

	// CapCache marks kinds whose derived artifacts are worth caching.
	CapCache

	// CapText marks kinds whose Text field carries content.
	CapText
)

// String returns a readable list of capability names.
func (c Capability) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	if c&CapTransform != 0 {
		parts = append(parts, "transform")
	}
	if c&CapCache != 0 {
		parts = append(parts, "cache")
	}
	if c&CapText != 0 {
		parts = append(parts, "text")
	}
	return strings.Join(parts, "|")
}

// Registry maps record kinds to their declared capabilities.
// A Registry is built by the host and passed to the components that need it.
type Registry struct {
	mu    sync.RWMutex
	kinds map[Kind]Capability
}

// NewRegistry returns a registry with the built-in kinds registered.
func NewRegistry() *Registry {
	r := NewEmptyRegistry()
	r.Register(KindFreeformPath, CapTransform|CapCache)
	r.Register(KindShape, CapTransform|CapCache)
	r.Register(KindText, CapTransform|CapCache|CapText)
	r.Register(KindErase, 0)
	return r
}

// NewEmptyRegistry returns a registry with no kinds registered.
func NewEmptyRegistry() *Registry {
	return &Registry{kinds: make(map[Kind]Capability)}
}

// Register declares the capabilities of a kind, replacing any previous entry.
func (r *Registry) Register(kind Kind, caps Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[kind] = caps
}

// Capabilities returns the capabilities of a kind and whether it is registered.
func (r *Registry) Capabilities(kind Kind) (Capability, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	caps, ok := r.kinds[kind]
	return caps, ok
}

// Has reports whether kind declares every capability in caps.
// Unregistered kinds have no capabilities.
func (r *Registry) Has(kind Kind, caps Capability) bool {
	got, _ := r.Capabilities(kind)
	return got&caps == caps
}

// Kinds returns the number of registered kinds.
func (r *Registry) Kinds() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.kinds)
}

// Complexity estimates how expensive a record is to derive a rendering for.
// Points with pressure data weigh more since they produce variable-width
// outlines.
func (r *Registry) Complexity(rec *Record) float64 {
	if rec == nil {
		return 0
	}
	var score float64
	for _, p := range rec.Points {
		if p.HasPressure {
			score += 1.5
		} else {
			score++
		}
	}
	if r.Has(rec.Kind, CapText) {
		score += float64(rec.TextLen())
	}
	return score
}
