// SPDX-License-Identifier: MIT

// Package fft implements the fixed-size, in-place radix-2 transform used by
// the analysis pipeline. Everything is single precision and allocation free
// after construction so it can run on the audio callback thread.
package fft

import (
	"fmt"
	"math"

	"spectral/pkg/bitint"
)

// Transform holds the working complex spectrum for one transform size. It
// is not safe for concurrent use; each audio source owns its own instance.
type Transform struct {
	size   int
	stages int
	re     []float32 // real part of the working spectrum
	im     []float32 // imaginary part of the working spectrum
}

// New creates a Transform of the given size, which must be a power of two
// of at least 2.
func New(size int) (*Transform, error) {
	if size < 2 || !bitint.IsPowerOfTwo(size) {
		return nil, fmt.Errorf("fft size must be a power of 2 >= 2, got %d", size)
	}
	return &Transform{
		size:   size,
		stages: bitint.Log2(size),
		re:     make([]float32, size),
		im:     make([]float32, size),
	}, nil
}

// Size returns N, the number of input samples per transform.
func (t *Transform) Size() int {
	return t.size
}

// Bins returns N/2, the length of the magnitude spectrum.
func (t *Transform) Bins() int {
	return t.size / 2
}

// Magnitudes transforms the N real samples in input and writes the
// unnormalized magnitudes of bins [0, N/2) into dst. input must hold at least
// N samples and dst at least N/2; neither is retained.
func (t *Transform) Magnitudes(dst, input []float32) {
	copy(t.re, input[:t.size])
	clear(t.im)

	Forward(t.re, t.im)

	for k := range t.size / 2 {
		r, i := t.re[k], t.im[k]
		dst[k] = float32(math.Sqrt(float64(r*r + i*i)))
	}
}

// Forward computes the in-place discrete Fourier transform of the complex
// sequence (re, im). len(re) must equal len(im) and be a power of two; this
// is not checked. No 1/N scaling is applied.
func Forward(re, im []float32) {
	n := len(re)
	if n < 2 {
		return
	}

	// Bit-reversal permutation. j tracks the mirrored index of i; swapping
	// only when i < j visits every pair exactly once.
	j := 0
	for i := 1; i < n; i++ {
		bit := n >> 1
		for j&bit != 0 {
			j ^= bit
			bit >>= 1
		}
		j ^= bit
		if i < j {
			re[i], re[j] = re[j], re[i]
			im[i], im[j] = im[j], im[i]
		}
	}

	// Danielson-Lanczos butterflies. The twiddle (wr, wi) advances by the
	// stage rotation (wpr, wpi) each step; it is kept in float64 so the
	// recurrence error stays under float32 resolution even for N = 8192.
	for size := 2; size <= n; size <<= 1 {
		half := size >> 1
		theta := -2 * math.Pi / float64(size)
		wpr, wpi := math.Cos(theta), math.Sin(theta)
		wr, wi := 1.0, 0.0
		for k := 0; k < half; k++ {
			fr, fi := float32(wr), float32(wi)
			for a := k; a < n; a += size {
				b := a + half
				tr := fr*re[b] - fi*im[b]
				ti := fr*im[b] + fi*re[b]
				re[b] = re[a] - tr
				im[b] = im[a] - ti
				re[a] += tr
				im[a] += ti
			}
			wr, wi = wr*wpr-wi*wpi, wr*wpi+wi*wpr
		}
	}
}

// BinFrequency returns the centre frequency in Hz of bin k for a transform
// of size n at the given sample rate.
func BinFrequency(k, n int, sampleRate float64) float64 {
	return float64(k) * sampleRate / float64(n)
}

// FrequencyBin returns the bin index containing freq, floor(freq*n/rate).
func FrequencyBin(freq float64, n int, sampleRate float64) int {
	return int(math.Floor(freq * float64(n) / sampleRate))
}
