// Package engine implements the incremental partitioned delta engine: per
// event, the elapsed time since the chronologically previous event in the
// same partition, net of overlapping break intervals, with an offline batch
// recompute path that produces output identical to the incremental one.
package engine

import "time"

const (
	// DefaultAppendRetries bounds transparent retries of an append that
	// lost a serialization race.
	DefaultAppendRetries = 3

	// DefaultAnomalyThresholdSeconds flags net deltas above 30 minutes.
	DefaultAnomalyThresholdSeconds = 1800
)

// Engine bundles the delta operations over one Store.
type Engine struct {
	store         Store
	appendRetries int
	retryBackoff  time.Duration
}

// Option configures an Engine.
type Option func(*Engine)

// WithAppendRetries overrides the bounded retry count for conflicting
// appends. Values below 1 are ignored.
func WithAppendRetries(n int) Option {
	return func(e *Engine) {
		if n >= 1 {
			e.appendRetries = n
		}
	}
}

// WithRetryBackoff overrides the pause between append retries.
func WithRetryBackoff(d time.Duration) Option {
	return func(e *Engine) { e.retryBackoff = d }
}

// New creates an Engine on top of a Store.
func New(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:         store,
		appendRetries: DefaultAppendRetries,
		retryBackoff:  25 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}
