// SPDX-License-Identifier: MIT

/*
Package source provides the decoded-audio collaborators the analysis
pipeline reads from. A Source answers a cheap metadata probe and opens a
Stream that yields successive chunks of interleaved float samples in
[-1, 1] until io.EOF.

Decoding is delegated to go-audio/wav for WAV files and hajimehoshi/go-mp3
for MP3 files; Memory serves synthetic signals.
*/
package source

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// DefaultChunkFrames is the number of sample frames read per chunk when the
// caller does not choose one.
const DefaultChunkFrames = 4096

// ErrUnsupportedFormat is returned for files no decoder here understands.
var ErrUnsupportedFormat = errors.New("unsupported audio format")

// Info is the metadata a probe reports without decoding the whole file.
type Info struct {
	SampleRate   float64 // Hz
	Duration     float64 // seconds
	TotalSamples int64   // sample frames per channel
	Channels     int
}

// Source is an audio input that can be probed and then streamed.
type Source interface {
	// Probe reports sample rate, duration and channel layout.
	Probe(ctx context.Context) (Info, error)
	// Open starts a fresh stream positioned at the first sample.
	Open(ctx context.Context) (Stream, error)
}

// Stream yields decoded sample chunks. ReadChunk returns interleaved
// samples (NumChannels per frame) and io.EOF once exhausted. Returned
// slices belong to the caller.
type Stream interface {
	ReadChunk() ([]float64, error)
	NumChannels() int
	Close() error
}

// ForPath picks a decoder by file extension.
func ForPath(path string, chunkFrames int) (Source, error) {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav", ".wave":
		return NewWAVFile(path, chunkFrames), nil
	case ".mp3":
		return NewMP3File(path, chunkFrames), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Mono averages each interleaved frame of samples down to a single channel.
// A trailing partial frame is dropped.
func Mono(samples []float64, channels int) []float64 {
	if channels <= 1 {
		return samples
	}
	frames := len(samples) / channels
	out := make([]float64, frames)
	inv := 1 / float64(channels)
	for i := range frames {
		var sum float64
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += s
		}
		out[i] = sum * inv
	}
	return out
}
