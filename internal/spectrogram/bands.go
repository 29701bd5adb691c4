// SPDX-License-Identifier: MIT
package spectrogram

import (
	"math"

	"spectrum/internal/analysis"
)

// Band is a named frequency range, LowHz inclusive and HighHz exclusive.
type Band struct {
	Name   string
	LowHz  float64
	HighHz float64
}

// DefaultBands splits the audible range the usual way, with the top band
// running up to nyquist.
func DefaultBands(nyquist float64) []Band {
	return []Band{
		{Name: "sub", LowHz: 20, HighHz: 60},
		{Name: "bass", LowHz: 60, HighHz: 250},
		{Name: "lowMid", LowHz: 250, HighHz: 500},
		{Name: "mid", LowHz: 500, HighHz: 2000},
		{Name: "highMid", LowHz: 2000, HighHz: 4000},
		{Name: "treble", LowHz: 4000, HighHz: math.Nextafter(nyquist, math.Inf(1))},
	}
}

// BandLevel is the mean level of one band over the written rows.
type BandLevel struct {
	Band
	DB   float64
	Bins int // bins of the buffer falling inside the band
}

// BandLevels averages power (not decibels) over every written row and every
// bin inside each band. freqs gives the centre frequency of each column and
// must be as long as the buffer is wide. A band with no bins, or a buffer
// with no rows, reports analysis.FloorDB.
func (b *Buffer) BandLevels(freqs []float64, bands []Band) []BandLevel {
	levels := make([]BandLevel, len(bands))
	sums := make([]float64, len(bands))
	for i, band := range bands {
		levels[i].Band = band
		for k := 0; k < b.bins && k < len(freqs); k++ {
			if freqs[k] >= band.LowHz && freqs[k] < band.HighHz {
				levels[i].Bins++
			}
		}
	}

	b.mu.RLock()
	rows := 0
	for f := range b.frames {
		if !b.filled[f] {
			continue
		}
		rows++
		row := b.data[f*b.bins : (f+1)*b.bins]
		for k, v := range row {
			if k >= len(freqs) {
				break
			}
			for i, band := range bands {
				if freqs[k] >= band.LowHz && freqs[k] < band.HighHz {
					sums[i] += math.Pow(10, v/10)
					break
				}
			}
		}
	}
	b.mu.RUnlock()

	for i := range levels {
		n := levels[i].Bins * rows
		if n == 0 {
			levels[i].DB = analysis.FloorDB
			continue
		}
		levels[i].DB = analysis.PowerToDB(sums[i] / float64(n))
	}
	return levels
}
