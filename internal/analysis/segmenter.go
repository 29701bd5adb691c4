// SPDX-License-Identifier: MIT
package analysis

import "fmt"

// Frame is one fixed-size analysis window cut from the sample stream.
// Frame Index i always starts at stream offset i*hopLength.
type Frame struct {
	Index   int
	Samples []float64
}

// Segmenter turns an unbounded sequence of sample chunks into overlapping
// fixed-size frames. Samples that do not yet fill a frame are kept for the
// next Push. It is not safe for concurrent use; each reader owns one.
type Segmenter struct {
	fftSize   int
	hopLength int

	buf   []float64 // residual samples; live data is buf[start:]
	start int
	next  int // index assigned to the next emitted frame
}

// NewSegmenter creates a Segmenter emitting frames of fftSize samples every
// hopLength samples. hopLength must be in (0, fftSize].
func NewSegmenter(fftSize, hopLength int) (*Segmenter, error) {
	if fftSize <= 0 {
		return nil, fmt.Errorf("fft size must be positive, got %d", fftSize)
	}
	if hopLength <= 0 || hopLength > fftSize {
		return nil, fmt.Errorf("hop length must be in (0, %d], got %d", fftSize, hopLength)
	}
	return &Segmenter{
		fftSize:   fftSize,
		hopLength: hopLength,
		buf:       make([]float64, 0, 2*fftSize),
	}, nil
}

// Push appends chunk to the residual buffer and returns every complete frame
// that is now available, in index order. Each returned frame owns its slice.
func (s *Segmenter) Push(chunk []float64) []Frame {
	s.compact()
	s.buf = append(s.buf, chunk...)

	var frames []Frame
	for len(s.buf)-s.start >= s.fftSize {
		samples := make([]float64, s.fftSize)
		copy(samples, s.buf[s.start:s.start+s.fftSize])
		frames = append(frames, Frame{Index: s.next, Samples: samples})
		s.next++
		s.start += s.hopLength
	}
	return frames
}

// compact moves the live residual to the front of buf once the consumed
// prefix dominates, keeping the buffer bounded by roughly two frames.
func (s *Segmenter) compact() {
	if s.start == 0 {
		return
	}
	live := len(s.buf) - s.start
	if s.start < live && s.start < s.fftSize {
		return
	}
	n := copy(s.buf, s.buf[s.start:])
	s.buf = s.buf[:n]
	s.start = 0
}

// Buffered returns the number of residual samples not yet emitted as the
// start of a frame.
func (s *Segmenter) Buffered() int {
	return len(s.buf) - s.start
}

// NextIndex returns the index the next frame will receive.
func (s *Segmenter) NextIndex() int {
	return s.next
}

// Reset discards buffered samples and restarts indexing at zero.
func (s *Segmenter) Reset() {
	s.buf = s.buf[:0]
	s.start = 0
	s.next = 0
}
