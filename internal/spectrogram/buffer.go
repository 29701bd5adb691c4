// SPDX-License-Identifier: MIT

// Package spectrogram is the consumer side of the analysis pipeline: a
// frames-by-bins store that rows are written into as they arrive, and a
// frame handler that fills it and fans rows out to transports.
package spectrogram

import (
	"errors"
	"fmt"
	"math"
	"sync"
)

// ErrRowOutOfRange is returned by WriteRow for an index outside the buffer.
var ErrRowOutOfRange = errors.New("row index out of range")

// Buffer is a fixed-size 2-D store of decibel rows. WriteRow may be called
// from the pipeline's transform goroutine while readers inspect the
// buffer; the lock is held only while a single row is copied.
type Buffer struct {
	mu     sync.RWMutex
	frames int
	bins   int
	data   []float64 // frames*bins, row major
	filled []bool
	count  int
}

// NewBuffer allocates a buffer of frames rows of bins values, every value
// starting at fill.
func NewBuffer(frames, bins int, fill float64) (*Buffer, error) {
	if frames < 0 || bins <= 0 {
		return nil, fmt.Errorf("invalid spectrogram size %dx%d", frames, bins)
	}
	data := make([]float64, frames*bins)
	for i := range data {
		data[i] = fill
	}
	return &Buffer{
		frames: frames,
		bins:   bins,
		data:   data,
		filled: make([]bool, frames),
	}, nil
}

// WriteRow copies row into position index. row must hold exactly Bins
// values.
func (b *Buffer) WriteRow(index int, row []float64) error {
	if index < 0 || index >= b.frames {
		return fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, index, b.frames)
	}
	if len(row) != b.bins {
		return fmt.Errorf("row %d has %d bins, want %d", index, len(row), b.bins)
	}

	b.mu.Lock()
	copy(b.data[index*b.bins:(index+1)*b.bins], row)
	if !b.filled[index] {
		b.filled[index] = true
		b.count++
	}
	b.mu.Unlock()
	return nil
}

// Row returns a copy of row index.
func (b *Buffer) Row(index int) ([]float64, error) {
	if index < 0 || index >= b.frames {
		return nil, fmt.Errorf("%w: %d not in [0, %d)", ErrRowOutOfRange, index, b.frames)
	}
	out := make([]float64, b.bins)
	b.mu.RLock()
	copy(out, b.data[index*b.bins:])
	b.mu.RUnlock()
	return out, nil
}

// Dims returns the number of rows and bins.
func (b *Buffer) Dims() (frames, bins int) {
	return b.frames, b.bins
}

// Filled returns how many distinct rows have been written.
func (b *Buffer) Filled() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Peak returns the position and value of the loudest written cell. ok is
// false when nothing has been written.
func (b *Buffer) Peak() (frame, bin int, db float64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	db = math.Inf(-1)
	for f := range b.frames {
		if !b.filled[f] {
			continue
		}
		for k, v := range b.data[f*b.bins : (f+1)*b.bins] {
			if v > db {
				frame, bin, db, ok = f, k, v, true
			}
		}
	}
	return frame, bin, db, ok
}
