// SPDX-License-Identifier: MIT

// Package spectral holds the per-source analysis state: the latest magnitude
// spectrum published by the audio thread and the visual bands advanced by the
// render loop.
package spectral

import (
	"fmt"
	"sync"
	"sync/atomic"

	"spectral/internal/analysis"
	"spectral/internal/transport"
)

// Source is one independently analysed audio input. The audio thread feeds
// it through OnSamples; the render loop calls Update and reads BandsInto.
//
// OnSamples must only be called from one goroutine at a time (the source's
// audio callback). Every other method is safe for concurrent use.
type Source struct {
	id       string
	adapter  *analysis.WindowAdapter
	smoother *analysis.BandSmoother
	closed   atomic.Bool

	mu       sync.RWMutex
	spectrum []float32 // latest published N/2 magnitudes
	level    float32
	updates  uint64 // number of spectra published

	// Owned by the render loop.
	view       []float32 // snapshot of spectrum taken by Update
	frameBands []float32 // reused for outgoing frames
	sequence   uint32

	bandsMu sync.RWMutex
	bands   []float32
}

var (
	_ analysis.SampleHandler = (*Source)(nil)
	_ analysis.SpectrumSink  = (*Source)(nil)
)

func newSource(id string, p analysis.Params, layout *analysis.BandLayout) (*Source, error) {
	s := &Source{
		id:         id,
		spectrum:   make([]float32, p.Bins()),
		view:       make([]float32, p.Bins()),
		bands:      make([]float32, layout.Count()),
		frameBands: make([]float32, layout.Count()),
	}

	adapter, err := analysis.NewWindowAdapter(p, s)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", id, err)
	}
	smoother, err := analysis.NewBandSmoother(layout, p)
	if err != nil {
		return nil, fmt.Errorf("source %q: %w", id, err)
	}
	s.adapter = adapter
	s.smoother = smoother
	return s, nil
}

// ID returns the identifier the source was registered under.
func (s *Source) ID() string {
	return s.id
}

// OnSamples analyses one delivery of mono samples. Deliveries after the
// source was unregistered are dropped.
func (s *Source) OnSamples(samples []float32, frameCount int) {
	if s.closed.Load() {
		return
	}
	s.adapter.OnSamples(samples, frameCount)
}

// PublishSpectrum replaces the published spectrum in one step.
func (s *Source) PublishSpectrum(magnitudes []float32, level float32) {
	if s.closed.Load() {
		return
	}
	s.mu.Lock()
	copy(s.spectrum, magnitudes)
	s.level = level
	s.updates++
	s.mu.Unlock()
}

// SpectrumInto copies the latest magnitude spectrum into dst and returns the
// number of bins copied.
func (s *Source) SpectrumInto(dst []float32) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copy(dst, s.spectrum)
}

// Level returns the RMS level of the samples behind the latest spectrum.
func (s *Source) Level() float32 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.level
}

// SpectrumUpdates returns how many spectra have been published.
func (s *Source) SpectrumUpdates() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updates
}

// BandsInto copies the current visual bands into dst and returns the number
// of bands copied. Values are never negative.
func (s *Source) BandsInto(dst []float32) int {
	s.bandsMu.RLock()
	defer s.bandsMu.RUnlock()
	return copy(dst, s.bands)
}

// Bins returns the spectrum length N/2.
func (s *Source) Bins() int {
	return len(s.spectrum)
}

// BandCount returns K.
func (s *Source) BandCount() int {
	return len(s.bands)
}

// Update advances the visual bands by dt seconds towards the latest
// spectrum. It is driven by the render loop.
func (s *Source) Update(dt float64) {
	s.mu.RLock()
	copy(s.view, s.spectrum)
	s.mu.RUnlock()

	s.bandsMu.Lock()
	s.smoother.Update(s.view, s.bands, dt)
	s.bandsMu.Unlock()
}

// Closed reports whether the source has been unregistered.
func (s *Source) Closed() bool {
	return s.closed.Load()
}

func (s *Source) close() {
	s.closed.Store(true)
}

// frame snapshots the bands into an outgoing frame. The returned Bands slice
// is reused by the next call.
func (s *Source) frame(timestamp int64) transport.Frame {
	s.sequence++
	n := s.BandsInto(s.frameBands)
	return transport.Frame{
		Source:    s.id,
		Sequence:  s.sequence,
		Timestamp: timestamp,
		Level:     s.Level(),
		Bands:     s.frameBands[:n],
	}
}
