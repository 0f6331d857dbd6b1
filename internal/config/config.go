// SPDX-License-Identifier: MIT

// Package config loads the engine configuration from YAML, applies ENV_*
// overrides and converts the analysis section into analysis.Params.
package config

import (
	"errors"
	"fmt"
	"strings"

	"spectral/internal/analysis"
	"spectral/pkg/bitint"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Defaults and hardware limits.
const (
	DefaultDeviceID        = MinDeviceID // system default device
	DefaultSampleRate      = analysis.DefaultSampleRate
	DefaultFramesPerBuffer = 512
	DefaultChannels        = 1
	DefaultLowLatency      = false
	DefaultFPS             = 60
	DefaultLogLevel        = "info"
	DefaultWebSocketAddr   = ":8080"
	DefaultUDPTargetAddr   = "127.0.0.1:9090"

	MinDeviceID     = -1     // -1 represents system default device
	MinSampleRate   = 8000   // Hz
	MaxSampleRate   = 192000 // Hz
	MaxBufferFrames = 8192
	MaxChannels     = 32
	MaxFPS          = 240
)

// Config is the complete runtime configuration.
type Config struct {
	Debug     bool            `yaml:"debug"`     // Force debug logging.
	LogLevel  string          `yaml:"log_level"` // "debug", "info", "warn", "error" or "fatal".
	Audio     AudioConfig     `yaml:"audio"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Render    RenderConfig    `yaml:"render"`
	Transport TransportConfig `yaml:"transport"`
}

// AudioConfig holds capture settings.
type AudioConfig struct {
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Hz, also used for analysis.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per callback delivery.
	InputChannels   int     `yaml:"input_channels"`    // Channels captured, downmixed to mono.
	LowLatency      bool    `yaml:"low_latency"`       // Request the device's low input latency.
}

// AnalysisConfig mirrors analysis.Params in YAML form.
type AnalysisConfig struct {
	TransformSize  int     `yaml:"transform_size"` // 0 selects the next power of two >= frames_per_buffer.
	BandCount      int     `yaml:"band_count"`
	MinFrequencyHz float64 `yaml:"min_frequency_hz"`
	MaxFrequencyHz float64 `yaml:"max_frequency_hz"`
	AttackRate     float64 `yaml:"attack_rate"`
	DecayRate      float64 `yaml:"decay_rate"`
	MagnitudeScale float64 `yaml:"magnitude_scale"`
	BoostStep      float64 `yaml:"boost_step"`
	Smoothing      string  `yaml:"smoothing"`      // "envelope" or "spring".
	SpringDamping  float64 `yaml:"spring_damping"` // Damping ratio, 1 is critical.
	Window         string  `yaml:"window"`         // "rectangular", "hann", "hamming", ...
}

// RenderConfig holds render loop settings.
type RenderConfig struct {
	FPS int `yaml:"fps"`
}

// TransportConfig selects where frames are sent.
type TransportConfig struct {
	WebSocketEnabled bool   `yaml:"websocket_enabled"`
	WebSocketAddress string `yaml:"websocket_address"` // Listen address, e.g. ":8080".
	UDPEnabled       bool   `yaml:"udp_enabled"`
	UDPTargetAddress string `yaml:"udp_target_address"` // e.g. "127.0.0.1:9090".
}

// NewConfig returns the built-in defaults.
func NewConfig() *Config {
	p := analysis.DefaultParams()
	return &Config{
		LogLevel: DefaultLogLevel,
		Audio: AudioConfig{
			InputDevice:     DefaultDeviceID,
			SampleRate:      DefaultSampleRate,
			FramesPerBuffer: DefaultFramesPerBuffer,
			InputChannels:   DefaultChannels,
			LowLatency:      DefaultLowLatency,
		},
		Analysis: AnalysisConfig{
			TransformSize:  0,
			BandCount:      p.BandCount,
			MinFrequencyHz: p.MinFrequencyHz,
			MaxFrequencyHz: p.MaxFrequencyHz,
			AttackRate:     p.AttackRate,
			DecayRate:      p.DecayRate,
			MagnitudeScale: p.MagnitudeScale,
			BoostStep:      p.BoostStep,
			Smoothing:      string(p.Smoothing),
			SpringDamping:  p.SpringDamping,
			Window:         p.Window.String(),
		},
		Render: RenderConfig{
			FPS: DefaultFPS,
		},
		Transport: TransportConfig{
			WebSocketAddress: DefaultWebSocketAddr,
			UDPTargetAddress: DefaultUDPTargetAddr,
		},
	}
}

// TransformSize returns the effective N: the configured size, or the next
// power of two >= frames_per_buffer when it is 0.
func (c *Config) TransformSize() int {
	if c.Analysis.TransformSize > 0 {
		return c.Analysis.TransformSize
	}
	return bitint.NextPowerOfTwo(max(c.Audio.FramesPerBuffer, 2))
}

// Params converts the analysis section into analysis.Params. The result is
// not validated; Validate covers it.
func (c *Config) Params() (analysis.Params, error) {
	window, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return analysis.Params{}, fmt.Errorf("%w: analysis.window: %v", ErrInvalidConfig, err)
	}
	return analysis.Params{
		TransformSize:  c.TransformSize(),
		SampleRate:     c.Audio.SampleRate,
		BandCount:      c.Analysis.BandCount,
		MinFrequencyHz: c.Analysis.MinFrequencyHz,
		MaxFrequencyHz: c.Analysis.MaxFrequencyHz,
		AttackRate:     c.Analysis.AttackRate,
		DecayRate:      c.Analysis.DecayRate,
		MagnitudeScale: c.Analysis.MagnitudeScale,
		BoostStep:      c.Analysis.BoostStep,
		Smoothing:      analysis.SmoothingMode(strings.ToLower(c.Analysis.Smoothing)),
		SpringDamping:  c.Analysis.SpringDamping,
		Window:         window,
	}, nil
}
