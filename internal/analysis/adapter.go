// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"spectral/internal/fft"
	applog "spectral/internal/log"
)

// WindowAdapter turns irregular sample deliveries into one fixed-size
// analysis window per delivery and runs the transform on it. Each delivery
// starts from a cleared window: nothing is carried over between calls.
//
// A WindowAdapter belongs to one source and is driven from that source's
// audio callback only; it is not safe for concurrent OnSamples calls.
type WindowAdapter struct {
	transform  *fft.Transform
	window     []float32 // AnalysisWindow, N samples
	windowFunc WindowFunc
	coeffs     []float32 // window function over the last delivered length
	coeffLen   int       // length coeffs was computed for
	seq        []float64 // scratch for recomputing coeffs
	magnitudes []float32 // scratch spectrum handed to the sink
	sink       SpectrumSink
}

var _ SampleHandler = (*WindowAdapter)(nil)

// NewWindowAdapter creates an adapter for p that publishes every spectrum to
// sink. p must already be valid.
func NewWindowAdapter(p Params, sink SpectrumSink) (*WindowAdapter, error) {
	transform, err := fft.New(p.TransformSize)
	if err != nil {
		return nil, fmt.Errorf("window adapter: %w", err)
	}

	applog.Debugf("Analysis: Initializing WindowAdapter (Size: %d, Window: %s)", p.TransformSize, p.Window)

	return &WindowAdapter{
		transform:  transform,
		window:     make([]float32, p.TransformSize),
		windowFunc: p.Window,
		coeffs:     windowCoefficients(p.Window, p.TransformSize),
		coeffLen:   p.TransformSize,
		seq:        make([]float64, p.TransformSize),
		magnitudes: make([]float32, transform.Bins()),
		sink:       sink,
	}, nil
}

// OnSamples copies the first min(frameCount, N) samples into a zeroed
// window, transforms it and publishes the magnitudes. Samples beyond N are
// discarded. frameCount <= 0 still publishes the (all-zero) spectrum.
func (a *WindowAdapter) OnSamples(samples []float32, frameCount int) {
	count := min(frameCount, len(a.window), len(samples))
	if count < 0 {
		count = 0
	}

	copy(a.window, samples[:count])
	clear(a.window[count:])

	level := rms(a.window[:count])

	if a.coeffs != nil {
		// The window spans the delivered samples, not the zero padding.
		if count != a.coeffLen {
			fillWindow(a.windowFunc, a.coeffs[:count], a.seq)
			a.coeffLen = count
		}
		for i := range count {
			a.window[i] *= a.coeffs[i]
		}
	}

	a.transform.Magnitudes(a.magnitudes, a.window)

	if a.sink != nil {
		a.sink.PublishSpectrum(a.magnitudes, level)
	}
}

// Size returns N.
func (a *WindowAdapter) Size() int {
	return len(a.window)
}

// rms returns the root mean square of samples, 0 for an empty slice.
func rms(samples []float32) float32 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return float32(math.Sqrt(sum / float64(len(samples))))
}

// Downmix averages interleaved frames of the given channel count into dst
// and returns the number of mono frames written. With one channel it is a
// plain copy.
func Downmix(dst, interleaved []float32, channels int) int {
	if channels <= 1 {
		return copy(dst, interleaved)
	}

	frames := min(len(interleaved)/channels, len(dst))
	inv := 1 / float32(channels)
	for i := range frames {
		var sum float32
		for _, s := range interleaved[i*channels : (i+1)*channels] {
			sum += s
		}
		dst[i] = sum * inv
	}
	return frames
}

// PeakBin returns the index of the largest magnitude in [start, end), or -1
// if the range is empty. Ties keep the lower bin.
func PeakBin(magnitudes []float32, start, end int) int {
	start, end = max(start, 0), min(end, len(magnitudes))
	if start >= end {
		return -1
	}
	peak := start
	for k := start + 1; k < end; k++ {
		if magnitudes[k] > magnitudes[peak] {
			peak = k
		}
	}
	return peak
}

// DominantFrequency returns the frequency in Hz of the strongest non-DC bin
// of a magnitude spectrum of len N/2, or 0 if the spectrum is silent.
func DominantFrequency(magnitudes []float32, sampleRate float64) float64 {
	peak := PeakBin(magnitudes, 1, len(magnitudes))
	if peak < 0 || magnitudes[peak] == 0 {
		return 0
	}
	return fft.BinFrequency(peak, 2*len(magnitudes), sampleRate)
}
