// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	mp3 "github.com/hajimehoshi/go-mp3"
)

// go-mp3 always decodes to 16-bit little-endian stereo.
const (
	mp3Channels      = 2
	mp3BytesPerFrame = 4
)

// MP3File streams decoded PCM from an MP3 file.
type MP3File struct {
	path        string
	chunkFrames int
}

var _ Source = (*MP3File)(nil)

// NewMP3File returns a Source reading chunkFrames sample frames at a time.
func NewMP3File(path string, chunkFrames int) *MP3File {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	return &MP3File{path: path, chunkFrames: chunkFrames}
}

func (m *MP3File) openDecoder() (*os.File, *mp3.Decoder, error) {
	file, err := os.Open(m.path)
	if err != nil {
		return nil, nil, err
	}
	decoder, err := mp3.NewDecoder(file)
	if err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	return file, decoder, nil
}

// Probe reports the decoded length. go-mp3 scans frame headers to compute
// Length for seekable inputs, so no audio is synthesised here.
func (m *MP3File) Probe(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	file, decoder, err := m.openDecoder()
	if err != nil {
		return Info{}, err
	}
	defer file.Close()

	length := decoder.Length()
	if length < 0 {
		return Info{}, errors.New("mp3 length is unknown")
	}
	sampleRate := float64(decoder.SampleRate())
	total := length / mp3BytesPerFrame
	info := Info{
		SampleRate:   sampleRate,
		TotalSamples: total,
		Channels:     mp3Channels,
	}
	if sampleRate > 0 {
		info.Duration = float64(total) / sampleRate
	}
	return info, nil
}

// Open returns a stream positioned at the first decoded sample.
func (m *MP3File) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, decoder, err := m.openDecoder()
	if err != nil {
		return nil, err
	}
	return &mp3Stream{
		file:    file,
		decoder: decoder,
		raw:     make([]byte, m.chunkFrames*mp3BytesPerFrame),
	}, nil
}

type mp3Stream struct {
	file    *os.File
	decoder *mp3.Decoder
	raw     []byte
	done    bool
}

func (s *mp3Stream) ReadChunk() ([]float64, error) {
	if s.done || s.decoder == nil {
		return nil, io.EOF
	}
	n, err := io.ReadFull(s.decoder, s.raw)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return nil, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true // short final read, deliver what we have
	case err != nil:
		return nil, err
	}

	n -= n % 2
	out := make([]float64, n/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(s.raw[2*i:]))
		out[i] = float64(v) / 32768
	}
	return out, nil
}

func (s *mp3Stream) NumChannels() int {
	return mp3Channels
}

func (s *mp3Stream) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.decoder = nil
	return err
}
