// SPDX-License-Identifier: MIT
package pipeline

import (
	"spectrum/internal/log"
	"spectrum/internal/observe"
)

// Option customises a Pipeline built by New.
type Option func(*Pipeline)

// WithConfig replaces the whole configuration. Zero fields still take
// defaults.
func WithConfig(cfg Config) Option {
	return func(p *Pipeline) {
		p.cfg = cfg
	}
}

// WithErrorHandler installs a handler for background task failures.
func WithErrorHandler(h ErrorHandler) Option {
	return func(p *Pipeline) {
		p.onError = h
	}
}

// WithMetrics records into m instead of observe.DefaultMetrics.
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// WithLogger replaces the default "pipeline" component logger.
func WithLogger(l *log.Logger) Option {
	return func(p *Pipeline) {
		p.log = l
	}
}
