// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"io"
	"math"
)

// Memory is a Source over interleaved samples held in memory. The error
// fields let tests simulate collaborator failures.
type Memory struct {
	Samples     []float64
	SampleRate  float64
	Channels    int // defaults to 1
	ChunkFrames int // defaults to DefaultChunkFrames

	ProbeErr error // returned by Probe when set
	OpenErr  error // returned by Open when set

	// ReadErr, when set, is returned by the stream after FailAfter chunks.
	ReadErr   error
	FailAfter int
}

var _ Source = (*Memory)(nil)

// NewMemory returns a mono Memory source.
func NewMemory(samples []float64, sampleRate float64, chunkFrames int) *Memory {
	return &Memory{Samples: samples, SampleRate: sampleRate, Channels: 1, ChunkFrames: chunkFrames}
}

// Tone returns seconds of a sine at frequency Hz with the given amplitude,
// duplicated across channels.
func Tone(frequency, amplitude, seconds, sampleRate float64, channels int) []float64 {
	if channels < 1 {
		channels = 1
	}
	frames := int(seconds * sampleRate)
	out := make([]float64, 0, frames*channels)
	for i := range frames {
		v := amplitude * math.Sin(2*math.Pi*frequency*float64(i)/sampleRate)
		for range channels {
			out = append(out, v)
		}
	}
	return out
}

func (m *Memory) channels() int {
	if m.Channels < 1 {
		return 1
	}
	return m.Channels
}

func (m *Memory) Probe(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	if m.ProbeErr != nil {
		return Info{}, m.ProbeErr
	}
	total := int64(len(m.Samples) / m.channels())
	info := Info{SampleRate: m.SampleRate, TotalSamples: total, Channels: m.channels()}
	if m.SampleRate > 0 {
		info.Duration = float64(total) / m.SampleRate
	}
	return info, nil
}

func (m *Memory) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.OpenErr != nil {
		return nil, m.OpenErr
	}
	chunk := m.ChunkFrames
	if chunk <= 0 {
		chunk = DefaultChunkFrames
	}
	return &memoryStream{
		src:       m.Samples,
		chunk:     chunk * m.channels(),
		channels:  m.channels(),
		readErr:   m.ReadErr,
		failAfter: m.FailAfter,
	}, nil
}

type memoryStream struct {
	src       []float64
	pos       int
	chunk     int
	channels  int
	reads     int
	readErr   error
	failAfter int
	closed    bool
}

func (s *memoryStream) ReadChunk() ([]float64, error) {
	if s.closed {
		return nil, errors.New("memory stream is closed")
	}
	if s.readErr != nil && s.reads >= s.failAfter {
		return nil, s.readErr
	}
	if s.pos >= len(s.src) {
		return nil, io.EOF
	}
	end := min(s.pos+s.chunk, len(s.src))
	out := append([]float64(nil), s.src[s.pos:end]...)
	s.pos = end
	s.reads++
	return out, nil
}

func (s *memoryStream) NumChannels() int {
	return s.channels
}

func (s *memoryStream) Close() error {
	s.closed = true
	return nil
}
