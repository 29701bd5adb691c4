// SPDX-License-Identifier: MIT

// Package transport carries spectrum rows out of the process as they are
// produced. Transports must be safe for concurrent use and must not block
// the caller for long: a slow receiver loses frames rather than stalling
// the analysis.
package transport

// Transport defines a generic interface for sending processed data or events.
type Transport interface {
	Send(data any) error
	Close() error
}

// Frame is one spectrum row as sent to remote receivers. The end of a run
// is a Frame with Index -1 and no magnitudes.
type Frame struct {
	Index      int       `json:"index"`
	Magnitudes []float64 `json:"magnitudes"`
}

// Terminal reports whether f marks the end of a run.
func (f Frame) Terminal() bool {
	return f.Index < 0
}

// Metadata describes the rows that will follow. WebSocket clients receive
// it once on connect.
type Metadata struct {
	Type          string    `json:"type"` // always "metadata"
	SampleRate    float64   `json:"sample_rate"`
	Duration      float64   `json:"duration"`
	FFTSize       int       `json:"fft_size"`
	HopLength     int       `json:"hop_length"`
	NumTimeFrames int       `json:"num_time_frames"`
	Frequencies   []float64 `json:"frequencies"`
}
