// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"sort"

	"spectrum/pkg/bitint"

	"gonum.org/v1/gonum/dsp/fourier"
)

const (
	// PowerFloor is the smallest normalised power converted to decibels.
	// It keeps silent bins finite: 10*log10(1e-12) = -120 dB.
	PowerFloor = 1e-12

	// FloorDB is PowerFloor expressed in decibels.
	FloorDB = -120.0
)

// Pre-allocated buffers for FFT calculations.
type spectrumWorkspace struct {
	input     []float64    // Buffer for the windowed frame.
	fftOutput []complex128 // Buffer for FFT complex results (N/2 + 1).
	window    []float64    // Pre-calculated window coefficients.
}

// SpectrumProcessor converts time-domain frames into decibel power spectra.
// All buffers are allocated up front so Process does not allocate. A
// processor is owned by a single goroutine; it is not safe for concurrent use.
type SpectrumProcessor struct {
	fftCalculator *fourier.FFT // Reusable FFT calculator instance.
	fftSize       int          // Number of points for the FFT (power of 2).
	binCount      int          // Bins written per frame after truncation.
	norm          float64      // 1 / fftSize², applied to |X|².
	workspace     spectrumWorkspace
}

// NewSpectrumProcessor creates a processor for frames of fftSize samples
// weighted with windowType. binCount limits the output to the first
// binCount bins; zero or anything above fftSize/2+1 means all bins.
func NewSpectrumProcessor(fftSize int, windowType WindowFunc, binCount int) (*SpectrumProcessor, error) {
	if !bitint.IsPowerOfTwo(fftSize) {
		return nil, fmt.Errorf("fft size must be a power of 2, got %d", fftSize)
	}

	// FFT output size for real input is N/2 + 1 complex values.
	full := fftSize/2 + 1
	if binCount <= 0 || binCount > full {
		binCount = full
	}

	return &SpectrumProcessor{
		fftCalculator: fourier.NewFFT(fftSize),
		fftSize:       fftSize,
		binCount:      binCount,
		norm:          1 / (float64(fftSize) * float64(fftSize)),
		workspace: spectrumWorkspace{
			input:     make([]float64, fftSize),
			fftOutput: make([]complex128, full),
			window:    Coefficients(fftSize, windowType),
		},
	}, nil
}

// Process windows frame, transforms it and writes BinCount decibel values
// into dst. frame must hold exactly FFTSize samples and dst at least
// BinCount values.
func (p *SpectrumProcessor) Process(frame []float64, dst []float64) error {
	if len(frame) != p.fftSize {
		return fmt.Errorf("frame length %d does not match fft size %d", len(frame), p.fftSize)
	}
	if len(dst) < p.binCount {
		return fmt.Errorf("destination length %d is shorter than bin count %d", len(dst), p.binCount)
	}

	// --- 1. Windowing ---
	w := p.workspace.window
	for i, s := range frame {
		p.workspace.input[i] = s * w[i]
	}

	// --- 2. FFT ---
	p.fftCalculator.Coefficients(p.workspace.fftOutput, p.workspace.input)

	// --- 3. Power -> dB ---
	for i := range p.binCount {
		c := p.workspace.fftOutput[i]
		power := (real(c)*real(c) + imag(c)*imag(c)) * p.norm
		dst[i] = PowerToDB(power)
	}
	return nil
}

// FFTSize returns the configured FFT size (number of points).
func (p *SpectrumProcessor) FFTSize() int {
	return p.fftSize
}

// BinCount returns the number of magnitudes written per frame.
func (p *SpectrumProcessor) BinCount() int {
	return p.binCount
}

// PowerToDB converts a normalised power value to decibels, clamping at
// PowerFloor. NaN input is treated as silence.
func PowerToDB(power float64) float64 {
	if !(power > PowerFloor) {
		return FloorDB
	}
	return 10 * math.Log10(power)
}

// FrequencyBins returns the centre frequency (Hz) of each real-FFT bin,
// 0 through Nyquist inclusive, for the given sample rate and FFT size.
func FrequencyBins(sampleRate float64, fftSize int) []float64 {
	if fftSize <= 0 {
		return []float64{}
	}
	fft := fourier.NewFFT(fftSize)
	bins := make([]float64, fftSize/2+1)
	for i := range bins {
		bins[i] = fft.Freq(i) * sampleRate
	}
	return bins
}

// TruncationIndex returns the number of bins to keep for maxFrequency: the
// index of the first bin whose frequency is >= maxFrequency. bins must be
// ascending. A non-positive maxFrequency keeps every bin.
func TruncationIndex(bins []float64, maxFrequency float64) int {
	if maxFrequency <= 0 {
		return len(bins)
	}
	return sort.SearchFloat64s(bins, maxFrequency)
}
