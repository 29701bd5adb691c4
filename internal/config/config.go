// SPDX-License-Identifier: MIT
package config

import "time"

// Built-in defaults. A config file or environment variable overrides any
// of them.
const (
	DefaultLogLevel       = "info"
	DefaultFFTSize        = 2048
	DefaultBatchSize      = 16
	DefaultWindow         = "hann"
	DefaultQueueCapacity  = 10
	DefaultEnqueueTimeout = time.Second
	DefaultStopTimeout    = 2 * time.Second
	DefaultChunkFrames    = 4096

	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPQueueSize     = 64
	DefaultWebSocketAddress = "127.0.0.1:8080"
	DefaultMetricsAddress   = "127.0.0.1:9464"

	// Analysis limits.
	MinFFTSize = 32
	MaxFFTSize = 1 << 16
)

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	return &Config{
		LogLevel: DefaultLogLevel,
		Analysis: AnalysisConfig{
			FFTSize:        DefaultFFTSize,
			BatchSize:      DefaultBatchSize,
			Window:         DefaultWindow,
			QueueCapacity:  DefaultQueueCapacity,
			EnqueueTimeout: DefaultEnqueueTimeout,
			StopTimeout:    DefaultStopTimeout,
		},
		Source: SourceConfig{
			ChunkFrames: DefaultChunkFrames,
		},
		Transport: TransportConfig{
			UDPTargetAddress: DefaultUDPTargetAddress,
			UDPQueueSize:     DefaultUDPQueueSize,
			WebSocketAddress: DefaultWebSocketAddress,
		},
		Metrics: MetricsConfig{
			Address: DefaultMetricsAddress,
		},
	}
}
