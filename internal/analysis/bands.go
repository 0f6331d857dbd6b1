// SPDX-License-Identifier: MIT
package analysis

import (
	"fmt"
	"math"

	"github.com/charmbracelet/harmonica"

	"spectral/internal/fft"
	applog "spectral/internal/log"
)

// BandRange is the frequency span of one visual band and the spectrum bins
// [Start, End) averaged for it. End > Start always holds.
type BandRange struct {
	LowHz  float64
	HighHz float64
	Start  int
	End    int
}

// BandLayout maps a magnitude spectrum onto K log-spaced bands. It is
// computed once from Params and is immutable, so every source built from the
// same Params can share it.
type BandLayout struct {
	ranges []BandRange
	gain   []float32 // MagnitudeScale * (1 + i*BoostStep)
	bins   int
}

// NewBandLayout validates p and precomputes the bin range and gain of every
// band.
func NewBandLayout(p Params) (*BandLayout, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	k := p.BandCount
	bins := p.Bins()
	logMin := math.Log10(p.MinFrequencyHz)
	logSpan := math.Log10(p.MaxFrequencyHz) - logMin
	freq := func(t float64) float64 {
		return math.Pow(10, logMin+t*logSpan)
	}

	layout := &BandLayout{
		ranges: make([]BandRange, k),
		gain:   make([]float32, k),
		bins:   bins,
	}
	for i := range k {
		lo := freq(float64(i) / float64(k))
		hi := freq(float64(i+1) / float64(k))

		start := min(max(fft.FrequencyBin(lo, p.TransformSize, p.SampleRate), 0), bins-1)
		end := min(fft.FrequencyBin(hi, p.TransformSize, p.SampleRate), bins)
		// Adjacent low bands often round to the same bin; keep at least one.
		if end <= start {
			end = start + 1
		}

		layout.ranges[i] = BandRange{LowHz: lo, HighHz: hi, Start: start, End: end}
		layout.gain[i] = float32(p.MagnitudeScale * (1 + float64(i)*p.BoostStep))
	}

	applog.Debugf("Analysis: Band layout %d bands over %d bins (%.1f-%.1f Hz)",
		k, bins, p.MinFrequencyHz, p.MaxFrequencyHz)
	return layout, nil
}

// Count returns K.
func (l *BandLayout) Count() int {
	return len(l.ranges)
}

// Ranges returns a copy of the per-band frequency and bin ranges.
func (l *BandLayout) Ranges() []BandRange {
	return append([]BandRange(nil), l.ranges...)
}

// Targets writes the boosted average magnitude of every band into dst.
// magnitudes must hold N/2 bins and dst K values.
func (l *BandLayout) Targets(dst, magnitudes []float32) {
	for i, r := range l.ranges {
		var sum float64
		for _, m := range magnitudes[r.Start:r.End] {
			sum += float64(m)
		}
		avg := float32(sum / float64(r.End-r.Start))
		dst[i] = avg * l.gain[i]
	}
}

// BandSmoother is the per-source envelope follower: it moves each band
// towards its target quickly when rising (attack) and slowly when falling
// (decay). It is owned by the render loop and not safe for concurrent use.
type BandSmoother struct {
	layout   *BandLayout
	mode     SmoothingMode
	attack   float64
	decay    float64
	damping  float64
	targets  []float32
	velocity []float64 // spring mode only
}

// NewBandSmoother creates a smoother for layout using the rates in p.
func NewBandSmoother(layout *BandLayout, p Params) (*BandSmoother, error) {
	if layout == nil {
		return nil, fmt.Errorf("%w: band smoother needs a layout", ErrInvalidParams)
	}
	if layout.bins != p.Bins() {
		return nil, fmt.Errorf("%w: layout built for %d bins, params have %d",
			ErrInvalidParams, layout.bins, p.Bins())
	}
	s := &BandSmoother{
		layout:  layout,
		mode:    p.Smoothing,
		attack:  p.AttackRate,
		decay:   p.DecayRate,
		damping: p.SpringDamping,
		targets: make([]float32, layout.Count()),
	}
	if s.mode == SmoothingSpring {
		s.velocity = make([]float64, layout.Count())
	}
	return s, nil
}

// Update advances bands by dt seconds towards the targets derived from
// magnitudes. A non-positive (or NaN) dt leaves bands untouched.
func (s *BandSmoother) Update(magnitudes, bands []float32, dt float64) {
	if !(dt > 0) {
		return
	}

	s.layout.Targets(s.targets, magnitudes)

	if s.mode == SmoothingSpring {
		s.updateSpring(bands, dt)
		return
	}

	for i, target := range s.targets {
		current := bands[i]
		rate := s.decay
		if target > current {
			rate = s.attack
		}
		bands[i] = lerp(current, target, rate*dt)
	}
}

func (s *BandSmoother) updateSpring(bands []float32, dt float64) {
	rise := harmonica.NewSpring(dt, s.attack, s.damping)
	fall := harmonica.NewSpring(dt, s.decay, s.damping)

	for i, target := range s.targets {
		spring := fall
		if target > bands[i] {
			spring = rise
		}
		pos, vel := spring.Update(float64(bands[i]), s.velocity[i], float64(target))
		if pos < 0 {
			pos, vel = 0, 0
		}
		bands[i] = float32(pos)
		s.velocity[i] = vel
	}
}

// Reset clears any spring velocity so the next Update starts at rest.
func (s *BandSmoother) Reset() {
	clear(s.velocity)
}

// lerp moves a towards b by factor t, snapping to b once t reaches 1.
func lerp(a, b float32, t float64) float32 {
	if t >= 1 {
		return b
	}
	return a + (b-a)*float32(t)
}
