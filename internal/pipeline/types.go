// SPDX-License-Identifier: MIT
package pipeline

import (
	"fmt"
	"time"

	"spectrum/internal/analysis"
	"spectrum/pkg/bitint"
)

// TerminalIndex is the frame index of the end-of-stream notification. The
// terminal call always carries an empty magnitude slice.
const TerminalIndex = -1

// FrameHandler receives each spectrum row in index order, then one terminal
// call with TerminalIndex. It runs on the transform goroutine and owns the
// magnitudes slice it is given. A returned error is logged and counted;
// delivery continues with the next frame.
type FrameHandler func(index int, magnitudes []float64) error

// ErrorHandler is told about failures inside the background tasks, which
// have no caller to return them to.
type ErrorHandler func(err error)

// AudioMetadata describes the source as probed at Start.
type AudioMetadata struct {
	SampleRate   float64 // Hz
	Duration     float64 // seconds
	TotalSamples int64   // sample frames per channel
}

// Config holds the analysis and queueing parameters. Zero values are
// replaced by defaults in New.
type Config struct {
	FFTSize      int
	HopLength    int     // defaults to FFTSize/4
	MaxFrequency float64 // Hz, <= 0 keeps every bin
	BatchSize    int
	Window       analysis.WindowFunc

	QueueCapacity  int
	EnqueueTimeout time.Duration
	StopTimeout    time.Duration
}

const (
	DefaultFFTSize        = 2048
	DefaultBatchSize      = 16
	DefaultQueueCapacity  = 10
	DefaultEnqueueTimeout = time.Second
	DefaultStopTimeout    = 2 * time.Second
)

// DefaultConfig returns the standard analysis settings.
func DefaultConfig() Config {
	return Config{
		FFTSize:        DefaultFFTSize,
		HopLength:      DefaultFFTSize / 4,
		BatchSize:      DefaultBatchSize,
		Window:         analysis.Hann,
		QueueCapacity:  DefaultQueueCapacity,
		EnqueueTimeout: DefaultEnqueueTimeout,
		StopTimeout:    DefaultStopTimeout,
	}
}

// withDefaults fills zero fields. A zero hop is derived from the FFT size
// after the FFT size itself has been defaulted.
func (c Config) withDefaults() Config {
	if c.FFTSize == 0 {
		c.FFTSize = DefaultFFTSize
	}
	if c.HopLength == 0 {
		c.HopLength = c.FFTSize / 4
	}
	if c.BatchSize == 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = DefaultQueueCapacity
	}
	if c.EnqueueTimeout == 0 {
		c.EnqueueTimeout = DefaultEnqueueTimeout
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = DefaultStopTimeout
	}
	return c
}

// Validate reports the first invalid field.
func (c Config) Validate() error {
	if !bitint.IsPowerOfTwo(c.FFTSize) {
		return fmt.Errorf("%w: fft size %d is not a power of two", ErrInvalidConfig, c.FFTSize)
	}
	if c.HopLength <= 0 || c.HopLength > c.FFTSize {
		return fmt.Errorf("%w: hop length %d must be in (0, %d]", ErrInvalidConfig, c.HopLength, c.FFTSize)
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch size %d must be positive", ErrInvalidConfig, c.BatchSize)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("%w: queue capacity %d must be positive", ErrInvalidConfig, c.QueueCapacity)
	}
	if c.MaxFrequency < 0 {
		return fmt.Errorf("%w: max frequency %g is negative", ErrInvalidConfig, c.MaxFrequency)
	}
	if c.EnqueueTimeout < 0 || c.StopTimeout < 0 {
		return fmt.Errorf("%w: timeouts must not be negative", ErrInvalidConfig)
	}
	return nil
}

// FrameBatch carries up to BatchSize consecutive frames from the reader to
// the transform task. Indices[i] belongs to Samples[i].
type FrameBatch struct {
	Indices []int
	Samples [][]float64
}

func newFrameBatch(capacity int) FrameBatch {
	return FrameBatch{
		Indices: make([]int, 0, capacity),
		Samples: make([][]float64, 0, capacity),
	}
}

// Len returns the number of frames in the batch.
func (b FrameBatch) Len() int {
	return len(b.Indices)
}

// SpectrumFrame is one delivered row.
type SpectrumFrame struct {
	Index      int
	Magnitudes []float64 // dB, one per retained bin
}

// State is the pipeline lifecycle state.
type State int32

const (
	Idle State = iota
	Running
	Stopping
	Finished
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Finished:
		return "finished"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Snapshot is what Start reports to the caller: the probed metadata and
// the layout of the rows that will follow.
type Snapshot struct {
	AudioMetadata
	FFTSize       int
	HopLength     int
	Frequencies   []float64 // Hz per retained bin, ascending
	NumTimeFrames int       // expected frame count for the stream length
}

// NumTimeFrames returns how many frames a stream of totalSamples yields:
// floor((total-fft)/hop)+1, or zero when the stream is shorter than one
// frame.
func NumTimeFrames(totalSamples int64, fftSize, hopLength int) int {
	if hopLength <= 0 || totalSamples < int64(fftSize) {
		return 0
	}
	return int((totalSamples-int64(fftSize))/int64(hopLength)) + 1
}

// Stats are the counters of the current or most recent run.
type Stats struct {
	FramesProduced  int64
	FramesDelivered int64
	FramesDropped   int64
	BatchesEnqueued int64
	BatchesDropped  int64
	CallbackErrors  int64
	StreamErrors    int64
}
