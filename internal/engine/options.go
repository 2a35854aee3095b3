package engine

import (
	"time"

	"go.uber.org/zap"

	"github.com/dshills/inkwell/internal/config"
	"github.com/dshills/inkwell/internal/history/record"
	"github.com/dshills/inkwell/internal/metrics"
	"github.com/dshills/inkwell/internal/notify"
)

// Option configures an Engine during creation.
type Option func(*Engine)

// WithConfig sets the initial configuration. Invalid values are clamped.
func WithConfig(cfg config.Config) Option {
	return func(e *Engine) {
		e.cfg = cfg
	}
}

// WithLogger sets the logger shared by every component.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithRegistry sets the record kind registry.
func WithRegistry(r *record.Registry) Option {
	return func(e *Engine) {
		if r != nil {
			e.registry = r
		}
	}
}

// WithNotifier sets the notifier events are emitted through.
func WithNotifier(n *notify.Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock sets the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTransactionalBatches buffers events during batch execute, undo and
// redo, so observers only see the state after the whole batch.
func WithTransactionalBatches() Option {
	return func(e *Engine) {
		e.transactional = true
	}
}
