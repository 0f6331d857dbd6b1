// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/dsp/window"
)

// WindowFunc selects the analysis window applied before the transform.
type WindowFunc int

const (
	Rectangular WindowFunc = iota // no windowing
	BartlettHann
	Blackman
	BlackmanNuttall
	Hann
	Hamming
	Lanczos
	Nuttall
)

var windowNames = [...]string{
	Rectangular:     "rectangular",
	BartlettHann:    "bartletthann",
	Blackman:        "blackman",
	BlackmanNuttall: "blackmannuttall",
	Hann:            "hann",
	Hamming:         "hamming",
	Lanczos:         "lanczos",
	Nuttall:         "nuttall",
}

func (w WindowFunc) String() string {
	if w < Rectangular || w > Nuttall {
		return fmt.Sprintf("WindowFunc(%d)", int(w))
	}
	return windowNames[w]
}

// ParseWindowFunc converts a case-insensitive name to a WindowFunc. The empty
// string and "none" select Rectangular.
func ParseWindowFunc(name string) (WindowFunc, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "none", "rectangular", "boxcar":
		return Rectangular, nil
	case "bartletthann":
		return BartlettHann, nil
	case "blackman":
		return Blackman, nil
	case "blackmannuttall":
		return BlackmanNuttall, nil
	case "hann", "hanning":
		return Hann, nil
	case "hamming":
		return Hamming, nil
	case "lanczos":
		return Lanczos, nil
	case "nuttall":
		return Nuttall, nil
	default:
		return Rectangular, fmt.Errorf("unknown FFT window function name: '%s'", name)
	}
}

// windowCoefficients returns the n coefficients of w, or nil for
// Rectangular so callers can skip the multiply entirely.
func windowCoefficients(w WindowFunc, n int) []float32 {
	if w == Rectangular {
		return nil
	}
	coeffs := make([]float32, n)
	fillWindow(w, coeffs, make([]float64, n))
	return coeffs
}

// fillWindow writes the coefficients of w spanning len(dst) samples into dst.
// seq is scratch space at least as long as dst. Windows shorter than two
// samples are left at 1.
func fillWindow(w WindowFunc, dst []float32, seq []float64) {
	n := len(dst)
	seq = seq[:n]
	for i := range seq {
		seq[i] = 1
	}
	if n >= 2 {
		switch w {
		case BartlettHann:
			window.BartlettHann(seq)
		case Blackman:
			window.Blackman(seq)
		case BlackmanNuttall:
			window.BlackmanNuttall(seq)
		case Hann:
			window.Hann(seq)
		case Hamming:
			window.Hamming(seq)
		case Lanczos:
			window.Lanczos(seq)
		case Nuttall:
			window.Nuttall(seq)
		}
	}

	for i, v := range seq {
		dst[i] = float32(v)
	}
}
