// SPDX-License-Identifier: MIT
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	wavFormatPCM        = 1
	wavFormatExtensible = 0xFFFE
)

// WAVFile streams integer PCM from a WAV file.
type WAVFile struct {
	path        string
	chunkFrames int
}

var _ Source = (*WAVFile)(nil)

// NewWAVFile returns a Source reading chunkFrames sample frames at a time.
func NewWAVFile(path string, chunkFrames int) *WAVFile {
	if chunkFrames <= 0 {
		chunkFrames = DefaultChunkFrames
	}
	return &WAVFile{path: path, chunkFrames: chunkFrames}
}

// openDecoder opens the file and forwards the decoder to the PCM chunk.
func (w *WAVFile) openDecoder() (*os.File, *wav.Decoder, error) {
	file, err := os.Open(w.path)
	if err != nil {
		return nil, nil, err
	}

	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		file.Close()
		return nil, nil, fmt.Errorf("%w: %s is not a valid wav file", ErrUnsupportedFormat, w.path)
	}
	if f := decoder.WavAudioFormat; f != wavFormatPCM && f != wavFormatExtensible {
		file.Close()
		return nil, nil, fmt.Errorf("%w: wav audio format %d", ErrUnsupportedFormat, f)
	}
	if err := decoder.FwdToPCM(); err != nil {
		file.Close()
		return nil, nil, fmt.Errorf("locating pcm data: %w", err)
	}
	return file, decoder, nil
}

// Probe reads the header only; the PCM chunk size gives the sample count.
func (w *WAVFile) Probe(ctx context.Context) (Info, error) {
	if err := ctx.Err(); err != nil {
		return Info{}, err
	}
	file, decoder, err := w.openDecoder()
	if err != nil {
		return Info{}, err
	}
	defer file.Close()

	channels := int(decoder.NumChans)
	bytesPerFrame := channels * int(decoder.BitDepth) / 8
	if bytesPerFrame <= 0 {
		return Info{}, fmt.Errorf("%w: %d channels at %d bits", ErrUnsupportedFormat, channels, decoder.BitDepth)
	}

	sampleRate := float64(decoder.SampleRate)
	total := int64(decoder.PCMSize) / int64(bytesPerFrame)
	info := Info{
		SampleRate:   sampleRate,
		TotalSamples: total,
		Channels:     channels,
	}
	if sampleRate > 0 {
		info.Duration = float64(total) / sampleRate
	}
	return info, nil
}

// Open returns a stream positioned at the first PCM sample.
func (w *WAVFile) Open(ctx context.Context) (Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, decoder, err := w.openDecoder()
	if err != nil {
		return nil, err
	}

	channels := int(decoder.NumChans)
	bitDepth := int(decoder.BitDepth)
	return &wavStream{
		file:     file,
		decoder:  decoder,
		channels: channels,
		bitDepth: bitDepth,
		scale:    1 / math.Exp2(float64(bitDepth-1)),
		ib: &audio.IntBuffer{
			Format:         decoder.Format(),
			Data:           make([]int, w.chunkFrames*channels),
			SourceBitDepth: bitDepth,
		},
	}, nil
}

type wavStream struct {
	file     *os.File
	decoder  *wav.Decoder
	ib       *audio.IntBuffer // reused between reads
	channels int
	bitDepth int
	scale    float64
}

func (s *wavStream) ReadChunk() ([]float64, error) {
	if s.decoder == nil {
		return nil, errors.New("wav stream is closed")
	}
	n, err := s.decoder.PCMBuffer(s.ib)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, io.EOF
	}

	out := make([]float64, n)
	for i, v := range s.ib.Data[:n] {
		if s.bitDepth == 8 {
			v -= 128 // 8-bit WAV is unsigned
		}
		out[i] = float64(v) * s.scale
	}
	return out, nil
}

func (s *wavStream) NumChannels() int {
	return s.channels
}

func (s *wavStream) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	s.decoder = nil
	return err
}

// WriteWAV encodes interleaved samples in [-1, 1] as integer PCM. bitDepth
// must be 16, 24 or 32.
func WriteWAV(path string, samples []float64, sampleRate, channels, bitDepth int) error {
	switch bitDepth {
	case 16, 24, 32:
	default:
		return fmt.Errorf("unsupported bit depth %d", bitDepth)
	}
	if channels < 1 || sampleRate <= 0 {
		return fmt.Errorf("invalid format: %d channels at %d Hz", channels, sampleRate)
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}

	encoder := wav.NewEncoder(file, sampleRate, bitDepth, channels, wavFormatPCM)
	peak := math.Exp2(float64(bitDepth-1)) - 1
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(math.Round(math.Max(-1, math.Min(1, s)) * peak))
	}

	buf := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: channels,
			SampleRate:  sampleRate,
		},
		Data:           data,
		SourceBitDepth: bitDepth,
	}
	if err := encoder.Write(buf); err != nil {
		file.Close()
		return fmt.Errorf("writing samples: %w", err)
	}
	if err := encoder.Close(); err != nil {
		file.Close()
		return fmt.Errorf("finalising wav header: %w", err)
	}
	return file.Close()
}
