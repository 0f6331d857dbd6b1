// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"spectral/internal/analysis"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	if cfg.TransformSize() != 512 {
		t.Errorf("default TransformSize() = %d, want 512", cfg.TransformSize())
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil {
		t.Errorf("expected error for missing file, got nil")
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  sample_rate: 48000
  frames_per_buffer: 480
analysis:
  band_count: 16
  smoothing: spring
  window: hann
render:
  fps: 30
transport:
  udp_enabled: true
  udp_target_address: "127.0.0.1:7000"
`)
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if cfg.LogLevel != "debug" || cfg.Render.FPS != 30 {
		t.Errorf("top-level fields not loaded: %+v", cfg)
	}
	if cfg.Audio.InputDevice != DefaultDeviceID || cfg.Audio.InputChannels != DefaultChannels {
		t.Errorf("audio defaults lost: %+v", cfg.Audio)
	}
	if cfg.Transport.WebSocketAddress != DefaultWebSocketAddr {
		t.Errorf("websocket address = %q, want default", cfg.Transport.WebSocketAddress)
	}

	p, err := cfg.Params()
	if err != nil {
		t.Fatalf("Params() error: %v", err)
	}
	want := analysis.DefaultParams()
	want.TransformSize = 512 // next power of two >= 480
	want.SampleRate = 48000
	want.BandCount = 16
	want.Smoothing = analysis.SmoothingSpring
	want.Window = analysis.Hann
	if p != want {
		t.Errorf("Params() = %+v\nwant %+v", p, want)
	}
}

func TestTransformSize(t *testing.T) {
	tests := []struct {
		configured int
		frames     int
		want       int
	}{
		{0, 512, 512},
		{0, 480, 512},
		{0, 1, 2},
		{0, 1025, 2048},
		{8192, 512, 8192},
	}
	for _, tt := range tests {
		cfg := NewConfig()
		cfg.Analysis.TransformSize = tt.configured
		cfg.Audio.FramesPerBuffer = tt.frames
		if got := cfg.TransformSize(); got != tt.want {
			t.Errorf("TransformSize(configured=%d, frames=%d) = %d, want %d",
				tt.configured, tt.frames, got, tt.want)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"Bad Log Level", func(c *Config) { c.LogLevel = "chatty" }},
		{"Device Below Default", func(c *Config) { c.Audio.InputDevice = -2 }},
		{"Sample Rate Too Low", func(c *Config) { c.Audio.SampleRate = 4000 }},
		{"Zero Frames", func(c *Config) { c.Audio.FramesPerBuffer = 0 }},
		{"Too Many Frames", func(c *Config) { c.Audio.FramesPerBuffer = MaxBufferFrames + 1 }},
		{"Zero Channels", func(c *Config) { c.Audio.InputChannels = 0 }},
		{"Negative Transform", func(c *Config) { c.Analysis.TransformSize = -512 }},
		{"Non Power Of Two", func(c *Config) { c.Analysis.TransformSize = 1000 }},
		{"Too Many Bands", func(c *Config) { c.Analysis.BandCount = 1000 }},
		{"Max Above Nyquist", func(c *Config) { c.Analysis.MaxFrequencyHz = 30000 }},
		{"Unknown Window", func(c *Config) { c.Analysis.Window = "triangle" }},
		{"Unknown Smoothing", func(c *Config) { c.Analysis.Smoothing = "bouncy" }},
		{"Zero FPS", func(c *Config) { c.Render.FPS = 0 }},
		{"WS Without Port", func(c *Config) {
			c.Transport.WebSocketEnabled, c.Transport.WebSocketAddress = true, "localhost"
		}},
		{"UDP Without Host", func(c *Config) {
			c.Transport.UDPEnabled, c.Transport.UDPTargetAddress = true, ":9090"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("Validate() = %v, want ErrInvalidConfig", err)
			}
		})
	}

	if err := NewConfig().Validate(); err != nil {
		t.Errorf("defaults invalid: %v", err)
	}
}

func TestValidateWrapsParamsError(t *testing.T) {
	cfg := NewConfig()
	cfg.Analysis.AttackRate = 0
	err := cfg.Validate()
	if !errors.Is(err, ErrInvalidConfig) || !errors.Is(err, analysis.ErrInvalidParams) {
		t.Errorf("Validate() = %v, want both ErrInvalidConfig and ErrInvalidParams", err)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_DEBUG", "true")
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_TRANSFORM_SIZE", "8192")
	t.Setenv("ENV_BAND_COUNT", "64")
	t.Setenv("ENV_WS_ENABLED", "1")
	t.Setenv("ENV_WS_ADDRESS", "127.0.0.1:9001")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.2:9999")

	path := writeTempConfig(t, "log_level: debug\nanalysis:\n  band_count: 8\n")
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}

	if !cfg.Debug || cfg.LogLevel != "warn" {
		t.Errorf("debug/log_level not overridden: %v %q", cfg.Debug, cfg.LogLevel)
	}
	if cfg.Analysis.TransformSize != 8192 || cfg.Analysis.BandCount != 64 {
		t.Errorf("analysis not overridden: %+v", cfg.Analysis)
	}
	want := TransportConfig{
		WebSocketEnabled: true,
		WebSocketAddress: "127.0.0.1:9001",
		UDPEnabled:       true,
		UDPTargetAddress: "10.0.0.2:9999",
	}
	if cfg.Transport != want {
		t.Errorf("transport = %+v, want %+v", cfg.Transport, want)
	}
}

func TestEnvOverridesIgnoreUnparsable(t *testing.T) {
	t.Setenv("ENV_BAND_COUNT", "lots")
	t.Setenv("ENV_UDP_ENABLED", "maybe")

	cfg, err := LoadConfig(writeTempConfig(t, "analysis:\n  band_count: 8\n"))
	if err != nil {
		t.Fatalf("LoadConfig() error: %v", err)
	}
	if cfg.Analysis.BandCount != 8 {
		t.Errorf("band_count = %d, want 8 from file", cfg.Analysis.BandCount)
	}
	if cfg.Transport.UDPEnabled {
		t.Error("udp_enabled changed by unparsable env value")
	}
}

func TestLoadConfig_InvalidFile(t *testing.T) {
	t.Parallel()
	_, err := LoadConfig(writeTempConfig(t, "render:\n  fps: 0\n"))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Errorf("LoadConfig() = %v, want ErrInvalidConfig", err)
	}
}
