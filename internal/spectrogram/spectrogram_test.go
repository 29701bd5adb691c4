// SPDX-License-Identifier: MIT
package spectrogram

import (
	"errors"
	"math"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spectrum/internal/transport"
	"spectrum/pkg/utils"
)

func TestNewBufferValidates(t *testing.T) {
	_, err := NewBuffer(-1, 4, 0)
	assert.Error(t, err)
	_, err = NewBuffer(4, 0, 0)
	assert.Error(t, err)

	b, err := NewBuffer(0, 4, 0)
	require.NoError(t, err)
	assert.ErrorIs(t, b.WriteRow(0, make([]float64, 4)), ErrRowOutOfRange)
}

func TestBufferWriteRow(t *testing.T) {
	b, err := NewBuffer(3, 2, -120)
	require.NoError(t, err)

	row := []float64{-10, -20}
	require.NoError(t, b.WriteRow(1, row))
	row[0] = 0 // the buffer holds its own copy

	got, err := b.Row(1)
	require.NoError(t, err)
	assert.Equal(t, []float64{-10, -20}, got)

	untouched, err := b.Row(0)
	require.NoError(t, err)
	assert.Equal(t, []float64{-120, -120}, untouched)

	assert.ErrorIs(t, b.WriteRow(3, row), ErrRowOutOfRange)
	assert.ErrorIs(t, b.WriteRow(-1, row), ErrRowOutOfRange)
	assert.Error(t, b.WriteRow(0, []float64{1}))
	_, err = b.Row(5)
	assert.ErrorIs(t, err, ErrRowOutOfRange)

	require.NoError(t, b.WriteRow(1, row))
	assert.Equal(t, 1, b.Filled())
	frames, bins := b.Dims()
	assert.Equal(t, 3, frames)
	assert.Equal(t, 2, bins)
}

func TestBufferPeak(t *testing.T) {
	b, _ := NewBuffer(4, 3, -120)
	_, _, _, ok := b.Peak()
	assert.False(t, ok)

	require.NoError(t, b.WriteRow(0, []float64{-50, -40, -60}))
	require.NoError(t, b.WriteRow(2, []float64{-70, -80, -6}))

	frame, bin, db, ok := b.Peak()
	require.True(t, ok)
	assert.Equal(t, 2, frame)
	assert.Equal(t, 2, bin)
	assert.Equal(t, -6.0, db)
}

func TestBufferConcurrentWrites(t *testing.T) {
	const frames, bins = 64, 16
	b, _ := NewBuffer(frames, bins, 0)

	var wg sync.WaitGroup
	for w := range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := w; i < frames; i += 4 {
				row := make([]float64, bins)
				for k := range row {
					row[k] = float64(i)
				}
				_ = b.WriteRow(i, row)
				_, _ = b.Row(i)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, frames, b.Filled())
	for i := range frames {
		row, _ := b.Row(i)
		assert.Equal(t, float64(i), row[bins-1])
	}
}

func TestCollector(t *testing.T) {
	b, _ := NewBuffer(5, 2, -120)
	mock := &utils.MockTransport{}
	c := NewCollector(b, mock)

	require.NoError(t, c.Handle(0, []float64{-1, -2}))
	require.NoError(t, c.Handle(1, []float64{-3, -4}))
	require.NoError(t, c.Handle(4, []float64{-5, -6})) // 2 and 3 were dropped
	assert.Error(t, c.Handle(7, []float64{-7, -8}))   // beyond the buffer

	select {
	case <-c.Done():
		t.Fatal("Done closed before the terminal row")
	default:
	}

	require.NoError(t, c.Handle(-1, []float64{}))
	require.NoError(t, c.Handle(-1, []float64{}))
	<-c.Done()

	s := c.Summary()
	assert.Equal(t, 4, s.Received)
	assert.Equal(t, 7, s.LastIndex)
	assert.Equal(t, 4, s.MissedFrames)
	assert.Equal(t, 1, s.Overflow)
	assert.Equal(t, 3, b.Filled())

	msgs := mock.Snapshot()
	require.Len(t, msgs, 6)
	assert.Equal(t, transport.Frame{Index: 4, Magnitudes: []float64{-5, -6}}, msgs[2])
	last, ok := msgs[4].(transport.Frame)
	require.True(t, ok)
	assert.True(t, last.Terminal())
}

func TestCollectorCountsSendFailures(t *testing.T) {
	mock := &utils.MockTransport{Err: errors.New("unreachable")}
	c := NewCollector(nil, mock)

	require.NoError(t, c.Handle(0, []float64{-1}))
	require.NoError(t, c.Handle(-1, []float64{}))
	assert.Equal(t, 2, c.Summary().SendFailures)
}

func TestBandLevels(t *testing.T) {
	freqs := []float64{0, 100, 200, 300, 400}
	b, err := NewBuffer(2, len(freqs), -120)
	require.NoError(t, err)

	require.NoError(t, b.WriteRow(0, []float64{-120, -10, -10, -30, -120}))
	require.NoError(t, b.WriteRow(1, []float64{-120, -10, -10, -30, -120}))

	levels := b.BandLevels(freqs, []Band{
		{Name: "low", LowHz: 50, HighHz: 250},
		{Name: "high", LowHz: 250, HighHz: 350},
		{Name: "empty", LowHz: 1000, HighHz: 2000},
	})
	require.Len(t, levels, 3)

	assert.Equal(t, "low", levels[0].Name)
	assert.Equal(t, 2, levels[0].Bins)
	assert.InDelta(t, -10, levels[0].DB, 1e-9)
	assert.InDelta(t, -30, levels[1].DB, 1e-9)
	assert.Equal(t, 0, levels[2].Bins)
	assert.Equal(t, -120.0, levels[2].DB)
}

func TestBandLevelsAveragePower(t *testing.T) {
	freqs := []float64{100, 200}
	b, err := NewBuffer(1, 2, -120)
	require.NoError(t, err)
	// 0.1 and 0.001: mean power 0.0505
	require.NoError(t, b.WriteRow(0, []float64{-10, -30}))

	levels := b.BandLevels(freqs, []Band{{Name: "all", LowHz: 0, HighHz: 1000}})
	assert.InDelta(t, 10*math.Log10(0.0505), levels[0].DB, 1e-9)
}

func TestBandLevelsEmptyBuffer(t *testing.T) {
	b, err := NewBuffer(3, 2, -120)
	require.NoError(t, err)
	for _, l := range b.BandLevels([]float64{100, 200}, DefaultBands(4000)) {
		assert.Equal(t, -120.0, l.DB)
	}
}

func TestDefaultBandsCoverNyquist(t *testing.T) {
	bands := DefaultBands(4000)
	top := bands[len(bands)-1]
	assert.Equal(t, "treble", top.Name)
	assert.True(t, 4000 >= top.LowHz && 4000 < top.HighHz)
}
