// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"spectrum/internal/analysis"
	"spectrum/internal/log"
	"spectrum/internal/pipeline"
	"spectrum/pkg/bitint"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Enable debug logging regardless of log_level.
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Source    SourceConfig    `yaml:"source"`
	Transport TransportConfig `yaml:"transport"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// AnalysisConfig holds the spectrogram parameters.
type AnalysisConfig struct {
	FFTSize        int           `yaml:"fft_size"`        // Samples per frame, a power of two.
	HopLength      int           `yaml:"hop_length"`      // Samples between frame starts; 0 means fft_size/4.
	MaxFrequency   float64       `yaml:"max_frequency"`   // Highest bin kept, in Hz; 0 keeps all bins.
	BatchSize      int           `yaml:"batch_size"`      // Frames per queued batch.
	Window         string        `yaml:"window"`          // Window function name (e.g., "hann", "hamming").
	QueueCapacity  int           `yaml:"queue_capacity"`  // Batches buffered between reader and transform.
	EnqueueTimeout time.Duration `yaml:"enqueue_timeout"` // How long the reader waits before dropping a batch.
	StopTimeout    time.Duration `yaml:"stop_timeout"`    // How long Stop waits for the tasks to exit.
}

// SourceConfig holds decoding settings.
type SourceConfig struct {
	ChunkFrames int `yaml:"chunk_frames"` // Sample frames decoded per read.
}

// TransportConfig holds settings for sending rows over the network.
type TransportConfig struct {
	LogFrames        bool   `yaml:"log_frames"`         // Log a debug line per frame.
	UDPEnabled       bool   `yaml:"udp_enabled"`        // Send rows as UDP packets.
	UDPTargetAddress string `yaml:"udp_target_address"` // Target "host:port" for UDP packets.
	UDPQueueSize     int    `yaml:"udp_queue_size"`     // Frames buffered before the publisher drops.
	WebSocketEnabled bool   `yaml:"websocket_enabled"`  // Serve rows to websocket clients.
	WebSocketAddress string `yaml:"websocket_address"`  // Listen address for the /ws endpoint.
}

// MetricsConfig holds settings for the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // Listen address for /metrics.
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		for _, candidate := range []string{"config.yaml", "spectrum.yaml"} {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment variables win over the file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks every section and reports all problems found.
func (c *Config) Validate() error {
	var errs []error

	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		errs = append(errs, fmt.Errorf("log_level %q is not one of debug, info, warn, error, fatal", c.LogLevel))
	}

	a := c.Analysis
	switch {
	case a.FFTSize < MinFFTSize || a.FFTSize > MaxFFTSize:
		errs = append(errs, fmt.Errorf("analysis.fft_size %d must be in [%d, %d]", a.FFTSize, MinFFTSize, MaxFFTSize))
	case !bitint.IsPowerOfTwo(a.FFTSize):
		errs = append(errs, fmt.Errorf("analysis.fft_size %d must be a power of two (try %d or %d)",
			a.FFTSize, bitint.PrevPowerOfTwo(a.FFTSize), bitint.NextPowerOfTwo(a.FFTSize)))
	}
	if a.HopLength < 0 || a.HopLength > a.FFTSize {
		errs = append(errs, fmt.Errorf("analysis.hop_length %d must be in [0, fft_size], 0 meaning fft_size/4", a.HopLength))
	}
	if a.MaxFrequency < 0 {
		errs = append(errs, fmt.Errorf("analysis.max_frequency %g must not be negative", a.MaxFrequency))
	}
	if a.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("analysis.batch_size %d must be positive", a.BatchSize))
	}
	if a.QueueCapacity <= 0 {
		errs = append(errs, fmt.Errorf("analysis.queue_capacity %d must be positive", a.QueueCapacity))
	}
	if a.EnqueueTimeout <= 0 || a.StopTimeout <= 0 {
		errs = append(errs, errors.New("analysis.enqueue_timeout and analysis.stop_timeout must be positive"))
	}
	if _, err := analysis.ParseWindowFunc(a.Window); err != nil {
		errs = append(errs, fmt.Errorf("analysis.window: %w", err))
	}

	if c.Source.ChunkFrames < 0 {
		errs = append(errs, fmt.Errorf("source.chunk_frames %d must not be negative", c.Source.ChunkFrames))
	}

	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.udp_target_address %q: %w", c.Transport.UDPTargetAddress, err))
		}
	}
	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddress); err != nil {
			errs = append(errs, fmt.Errorf("transport.websocket_address %q: %w", c.Transport.WebSocketAddress, err))
		}
	}
	if c.Metrics.Enabled {
		if _, _, err := net.SplitHostPort(c.Metrics.Address); err != nil {
			errs = append(errs, fmt.Errorf("metrics.address %q: %w", c.Metrics.Address, err))
		}
	}

	return errors.Join(errs...)
}

// Level returns the effective log level; Debug forces LevelDebug.
func (c *Config) Level() log.LogLevel {
	if c.Debug {
		return log.LevelDebug
	}
	level, _ := log.ParseLevel(c.LogLevel)
	return level
}

// EffectiveHopLength resolves a zero hop_length to fft_size/4, so a file
// or environment that only sets fft_size keeps the usual overlap.
func (a AnalysisConfig) EffectiveHopLength() int {
	if a.HopLength == 0 {
		return a.FFTSize / 4
	}
	return a.HopLength
}

// PipelineConfig converts the analysis section for pipeline.New. The
// window name has already been checked by Validate.
func (c *Config) PipelineConfig() pipeline.Config {
	window, _ := analysis.ParseWindowFunc(c.Analysis.Window)
	return pipeline.Config{
		FFTSize:        c.Analysis.FFTSize,
		HopLength:      c.Analysis.EffectiveHopLength(),
		MaxFrequency:   c.Analysis.MaxFrequency,
		BatchSize:      c.Analysis.BatchSize,
		Window:         window,
		QueueCapacity:  c.Analysis.QueueCapacity,
		EnqueueTimeout: c.Analysis.EnqueueTimeout,
		StopTimeout:    c.Analysis.StopTimeout,
	}
}

// applyEnvOverrides applies ENV_* variables on top of the loaded values.
// Unparseable values are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("configuration: overriding log_level from env: %s", val)
	}

	// ENV_{FFT_SIZE,HOP_LENGTH} are specific to the analysis.
	envInt("ENV_FFT_SIZE", "analysis.fft_size", &c.Analysis.FFTSize)
	envInt("ENV_HOP_LENGTH", "analysis.hop_length", &c.Analysis.HopLength)

	// ENV_UDP_{...} and ENV_WS_ENABLED are specific to the transport layer.
	envBool("ENV_UDP_ENABLED", "transport.udp_enabled", &c.Transport.UDPEnabled)
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("configuration: overriding transport.udp_target_address from env: %s", val)
	}
	envBool("ENV_WS_ENABLED", "transport.websocket_enabled", &c.Transport.WebSocketEnabled)

	// ENV_METRICS_ADDRESS also enables the endpoint.
	if val, ok := os.LookupEnv("ENV_METRICS_ADDRESS"); ok && val != "" {
		c.Metrics.Enabled = true
		c.Metrics.Address = val
		log.Infof("configuration: overriding metrics.address from env: %s", val)
	}
}

func envInt(key, field string, dst *int) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = n
	log.Infof("configuration: overriding %s from env: %d", field, n)
}

func envBool(key, field string, dst *bool) {
	val, ok := os.LookupEnv(key)
	if !ok {
		return
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		log.Warnf("configuration: ignoring %s=%q: %v", key, val, err)
		return
	}
	*dst = b
	log.Infof("configuration: overriding %s from env: %v", field, b)
}
