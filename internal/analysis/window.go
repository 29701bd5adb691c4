// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc defines the type for selecting an FFT window function.
type WindowFunc int

// Enum for available window functions.
const (
	Hann WindowFunc = iota
	BartlettHann
	Blackman
	BlackmanNuttall
	Hamming
	Lanczos
	Nuttall
)

var windowNames = map[WindowFunc]string{
	Hann:            "hann",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if name, ok := windowNames[w]; ok {
		return name
	}
	return fmt.Sprintf("window(%d)", int(w))
}

// ParseWindowFunc converts a string name (case-insensitive) to a WindowFunc
// enum, returns a known default (Hann) and an error if the name is unknown.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "hann", "hanning":
		return Hann, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Hann, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// HannWindow returns the raised-cosine coefficients
// w[n] = 0.5 * (1 - cos(2πn/(size-1))) for n in [0, size).
func HannWindow(size int) []float64 {
	if size <= 0 {
		return []float64{}
	}
	coeffs := make([]float64, size)
	if size == 1 {
		coeffs[0] = 1
		return coeffs
	}
	for n := range size {
		coeffs[n] = 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(size-1)))
	}
	return coeffs
}

// Coefficients returns size window coefficients for the selected window.
// Hann uses the explicit formula above; the others come from gonum, which
// scales a slice of ones in place. Unknown types fall back to Hann.
func Coefficients(size int, windowType WindowFunc) []float64 {
	if windowType == Hann || size <= 1 {
		return HannWindow(size)
	}

	coeffs := make([]float64, size)
	for i := range coeffs {
		coeffs[i] = 1.0
	}
	switch windowType {
	case BartlettHann:
		window.BartlettHann(coeffs)
	case Blackman:
		window.Blackman(coeffs)
	case BlackmanNuttall:
		window.BlackmanNuttall(coeffs)
	case Hamming:
		window.Hamming(coeffs)
	case Lanczos:
		window.Lanczos(coeffs)
	case Nuttall:
		window.Nuttall(coeffs)
	default:
		return HannWindow(size)
	}
	return coeffs
}
