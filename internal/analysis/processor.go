// SPDX-License-Identifier: MIT

// Package analysis turns raw sample deliveries into magnitude spectra and
// magnitude spectra into smoothed, log-spaced visual bands.
package analysis

// SampleHandler receives audio from the engine. OnSamples is invoked on the
// audio callback thread with frameCount mono frames; it must not block and
// must not retain samples after returning.
type SampleHandler interface {
	OnSamples(samples []float32, frameCount int)
}

// SpectrumSink receives each completed magnitude spectrum (N/2 bins) along
// with the RMS level of the samples that produced it. The slice is reused by
// the caller, so implementations copy what they keep.
type SpectrumSink interface {
	PublishSpectrum(magnitudes []float32, level float32)
}

// SpectrumSinkFunc adapts a plain function to SpectrumSink.
type SpectrumSinkFunc func(magnitudes []float32, level float32)

// PublishSpectrum calls f(magnitudes, level).
func (f SpectrumSinkFunc) PublishSpectrum(magnitudes []float32, level float32) {
	f(magnitudes, level)
}
