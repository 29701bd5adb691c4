// SPDX-License-Identifier: MIT
package analysis

import (
	"math"
	"testing"
)

func TestHannWindow(t *testing.T) {
	const size = 8
	w := HannWindow(size)
	if len(w) != size {
		t.Fatalf("HannWindow(%d) length = %d", size, len(w))
	}

	for n, got := range w {
		want := 0.5 * (1 - math.Cos(2*math.Pi*float64(n)/float64(size-1)))
		if math.Abs(got-want) > 1e-12 {
			t.Errorf("w[%d] = %f, want %f", n, got, want)
		}
	}

	// Symmetric with zero end points.
	if w[0] != 0 || math.Abs(w[size-1]) > 1e-12 {
		t.Errorf("end points = (%f, %f), want 0", w[0], w[size-1])
	}
	for n := range size / 2 {
		if math.Abs(w[n]-w[size-1-n]) > 1e-12 {
			t.Errorf("w[%d] = %f != w[%d] = %f", n, w[n], size-1-n, w[size-1-n])
		}
	}
}

func TestHannWindowEdgeSizes(t *testing.T) {
	if got := HannWindow(0); len(got) != 0 {
		t.Errorf("HannWindow(0) = %v, want empty", got)
	}
	if got := HannWindow(1); len(got) != 1 || got[0] != 1 {
		t.Errorf("HannWindow(1) = %v, want [1]", got)
	}
}

func TestHannWindowDeterministic(t *testing.T) {
	a, b := HannWindow(2048), HannWindow(2048)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("coefficient %d differs between calls", i)
		}
	}
}

func TestParseWindowFunc(t *testing.T) {
	tests := []struct {
		name    string
		want    WindowFunc
		wantErr bool
	}{
		{"Hann", Hann, false},
		{"hanning", Hann, false},
		{"", Hann, false},
		{"BLACKMAN", Blackman, false},
		{"hamming", Hamming, false},
		{"nuttall", Nuttall, false},
		{"triangle", Hann, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseWindowFunc(tt.name)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseWindowFunc(%q) error = %v, wantErr %v", tt.name, err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ParseWindowFunc(%q) = %s, want %s", tt.name, got, tt.want)
			}
		})
	}
}

func TestCoefficients(t *testing.T) {
	for _, wf := range []WindowFunc{Hann, BartlettHann, Blackman, BlackmanNuttall, Hamming, Lanczos, Nuttall} {
		t.Run(wf.String(), func(t *testing.T) {
			c := Coefficients(64, wf)
			if len(c) != 64 {
				t.Fatalf("length = %d, want 64", len(c))
			}
			for i, v := range c {
				if v < -1e-9 || v > 1+1e-9 || math.IsNaN(v) {
					t.Fatalf("coefficient %d = %f out of [0, 1]", i, v)
				}
			}
			// Every window peaks near the centre.
			if c[32] < 0.9 {
				t.Errorf("centre coefficient = %f, want >= 0.9", c[32])
			}
		})
	}
}
