// SPDX-License-Identifier: MIT
package analysis

import (
	"errors"
	"fmt"

	"spectral/pkg/bitint"
)

// ErrInvalidParams is wrapped by every error returned from Params.Validate.
var ErrInvalidParams = errors.New("invalid analysis parameters")

// SmoothingMode selects how BandSmoother follows its per-band targets.
type SmoothingMode string

const (
	// SmoothingEnvelope interpolates towards the target by rate*dt, with
	// separate attack and decay rates.
	SmoothingEnvelope SmoothingMode = "envelope"
	// SmoothingSpring drives each band with a damped spring whose angular
	// frequency is the attack or decay rate.
	SmoothingSpring SmoothingMode = "spring"
)

// Defaults for Params. The scale and boost step are calibration values for
// float samples in [-1, 1]; other sample scales need recalibration.
const (
	DefaultTransformSize  = 512
	DefaultSampleRate     = 44100
	DefaultBandCount      = 32
	DefaultMinFrequencyHz = 20.0
	DefaultMaxFrequencyHz = 20000.0
	DefaultAttackRate     = 15.0 // per second
	DefaultDecayRate      = 3.0  // per second
	DefaultMagnitudeScale = 1.0
	DefaultBoostStep      = 0.5
	DefaultSpringDamping  = 1.0 // critical
)

// Params is the validated configuration of one analysis pipeline. All
// sources registered with the same Params share a BandLayout.
type Params struct {
	TransformSize  int           // N, power of two >= 2
	SampleRate     float64       // Hz
	BandCount      int           // K, 1 <= K <= N/2
	MinFrequencyHz float64       // lower edge of band 0
	MaxFrequencyHz float64       // upper edge of band K-1
	AttackRate     float64       // smoothing rate when a band rises, 1/s
	DecayRate      float64       // smoothing rate when a band falls, 1/s
	MagnitudeScale float64       // calibration factor applied to band averages
	BoostStep      float64       // band i is amplified by 1 + i*BoostStep
	Smoothing      SmoothingMode // envelope or spring
	SpringDamping  float64       // damping ratio for SmoothingSpring
	Window         WindowFunc    // spans the delivered samples, Rectangular for none
}

// DefaultParams returns the built-in configuration.
func DefaultParams() Params {
	return Params{
		TransformSize:  DefaultTransformSize,
		SampleRate:     DefaultSampleRate,
		BandCount:      DefaultBandCount,
		MinFrequencyHz: DefaultMinFrequencyHz,
		MaxFrequencyHz: DefaultMaxFrequencyHz,
		AttackRate:     DefaultAttackRate,
		DecayRate:      DefaultDecayRate,
		MagnitudeScale: DefaultMagnitudeScale,
		BoostStep:      DefaultBoostStep,
		Smoothing:      SmoothingEnvelope,
		SpringDamping:  DefaultSpringDamping,
		Window:         Rectangular,
	}
}

// Bins returns N/2, the magnitude spectrum length.
func (p Params) Bins() int {
	return p.TransformSize / 2
}

// Validate checks every precondition of the pipeline once, so the hot paths
// never have to.
func (p Params) Validate() error {
	if p.TransformSize < 2 || !bitint.IsPowerOfTwo(p.TransformSize) {
		return fmt.Errorf("%w: transform size must be a power of 2 >= 2, got %d", ErrInvalidParams, p.TransformSize)
	}
	if !(p.SampleRate > 0) {
		return fmt.Errorf("%w: sample rate must be positive, got %g", ErrInvalidParams, p.SampleRate)
	}
	if p.BandCount < 1 || p.BandCount > p.Bins() {
		return fmt.Errorf("%w: band count must be in [1, %d], got %d", ErrInvalidParams, p.Bins(), p.BandCount)
	}
	nyquist := p.SampleRate / 2
	if !(p.MinFrequencyHz > 0) || !(p.MaxFrequencyHz < nyquist) {
		return fmt.Errorf("%w: frequency bounds must lie in (0, %g) Hz, got [%g, %g]",
			ErrInvalidParams, nyquist, p.MinFrequencyHz, p.MaxFrequencyHz)
	}
	if p.MinFrequencyHz >= p.MaxFrequencyHz {
		return fmt.Errorf("%w: min frequency %g Hz must be below max frequency %g Hz",
			ErrInvalidParams, p.MinFrequencyHz, p.MaxFrequencyHz)
	}
	if !(p.AttackRate > 0) || !(p.DecayRate > 0) {
		return fmt.Errorf("%w: attack and decay rates must be positive, got %g and %g",
			ErrInvalidParams, p.AttackRate, p.DecayRate)
	}
	if !(p.MagnitudeScale > 0) {
		return fmt.Errorf("%w: magnitude scale must be positive, got %g", ErrInvalidParams, p.MagnitudeScale)
	}
	if p.BoostStep < 0 {
		return fmt.Errorf("%w: boost step must not be negative, got %g", ErrInvalidParams, p.BoostStep)
	}
	switch p.Smoothing {
	case SmoothingEnvelope:
	case SmoothingSpring:
		if !(p.SpringDamping > 0) {
			return fmt.Errorf("%w: spring damping must be positive, got %g", ErrInvalidParams, p.SpringDamping)
		}
	default:
		return fmt.Errorf("%w: unknown smoothing mode %q", ErrInvalidParams, p.Smoothing)
	}
	if p.Window < Rectangular || p.Window > Nuttall {
		return fmt.Errorf("%w: unknown window function %d", ErrInvalidParams, p.Window)
	}
	return nil
}
