// Package utils holds signal generators and inspection helpers shared by
// tests across packages.
package utils

import (
	"math"
	"sync"
)

// MockTransport implements the Transport interface for testing.
type MockTransport struct {
	mu       sync.Mutex
	Messages []any
	Closed   bool
	Err      error // returned from Send when set
}

// Send stores the message for later inspection instead of transmitting.
// Float slices are copied so later mutation by the caller is not observed.
func (m *MockTransport) Send(data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	if f, ok := data.([]float64); ok {
		data = append([]float64(nil), f...)
	}
	m.Messages = append(m.Messages, data)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the messages received so far.
func (m *MockTransport) Snapshot() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]any(nil), m.Messages...)
}

// GenerateComplexWave returns a 440Hz fundamental plus two harmonics.
func GenerateComplexWave(size int, sampleRate float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
	}
	return buffer
}

// GenerateSineWave returns size samples of a sine at frequency Hz with
// amplitude 0.9.
func GenerateSineWave(size int, sampleRate, frequency float64) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = math.Sin(2*math.Pi*frequency*t) * 0.9
	}
	return buffer
}

// Ramp returns 0, 1, 2, ... size-1. Useful for checking frame offsets.
func Ramp(size int) []float64 {
	buffer := make([]float64, size)
	for i := range buffer {
		buffer[i] = float64(i)
	}
	return buffer
}

// Interleave repeats each mono sample channels times.
func Interleave(mono []float64, channels int) []float64 {
	out := make([]float64, 0, len(mono)*channels)
	for _, s := range mono {
		for range channels {
			out = append(out, s)
		}
	}
	return out
}

// FindPeakBin returns the index of the largest value in
// magnitudes[startBin:endBin+1].
func FindPeakBin(magnitudes []float64, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}

	if startBin < 0 {
		startBin = 0
	}

	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]

	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}

	return peakBin
}
