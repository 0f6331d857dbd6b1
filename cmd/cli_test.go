// SPDX-License-Identifier: MIT
package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"spectral/internal/config"
)

func TestParseArgsDefaults(t *testing.T) {
	var out bytes.Buffer
	inv, err := ParseArgs(nil, &out)
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}
	if inv.Command != CommandRun {
		t.Errorf("Command = %v, want CommandRun", inv.Command)
	}
	want := config.NewConfig()
	if inv.Config.Audio != want.Audio || inv.Config.Analysis != want.Analysis || inv.Config.Render != want.Render {
		t.Errorf("config = %+v, want defaults %+v", inv.Config, want)
	}
}

func TestParseArgsFlagsOverrideConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := "audio:\n  frames_per_buffer: 256\nanalysis:\n  band_count: 8\nrender:\n  fps: 50\n"
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	inv, err := ParseArgs([]string{
		"--config", path,
		"--fps", "20",
		"-s", "48000",
		"-t", "2048",
		"-c", "2",
		"--min-hz", "40",
		"--max-hz", "12000",
		"-v",
	}, &out)
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}

	cfg := inv.Config
	if cfg.Render.FPS != 20 {
		t.Errorf("fps = %d, want flag value 20", cfg.Render.FPS)
	}
	if cfg.Analysis.BandCount != 8 || cfg.Audio.FramesPerBuffer != 256 {
		t.Errorf("file values lost: bands=%d frames=%d", cfg.Analysis.BandCount, cfg.Audio.FramesPerBuffer)
	}
	if cfg.Audio.SampleRate != 48000 || cfg.TransformSize() != 2048 || cfg.Audio.InputChannels != 2 {
		t.Errorf("flag values not applied: %+v %+v", cfg.Audio, cfg.Analysis)
	}
	if cfg.Analysis.MinFrequencyHz != 40 || cfg.Analysis.MaxFrequencyHz != 12000 {
		t.Errorf("frequency bounds = [%g, %g], want [40, 12000]",
			cfg.Analysis.MinFrequencyHz, cfg.Analysis.MaxFrequencyHz)
	}
	if !inv.Verbose {
		t.Error("Verbose not set")
	}
}

func TestParseArgsSubcommands(t *testing.T) {
	var out bytes.Buffer

	inv, err := ParseArgs([]string{"list"}, &out)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if inv.Command != CommandList {
		t.Errorf("list Command = %v", inv.Command)
	}

	inv, err = ParseArgs([]string{"analyze", "a.wav", "b.wav", "--bands", "16"}, &out)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if inv.Command != CommandAnalyze || !slices.Equal(inv.Files, []string{"a.wav", "b.wav"}) {
		t.Errorf("analyze parsed as %v %v", inv.Command, inv.Files)
	}
	if inv.Config.Analysis.BandCount != 16 {
		t.Errorf("bands = %d, want 16", inv.Config.Analysis.BandCount)
	}
}

func TestParseArgsErrors(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"Analyze Without Files", []string{"analyze"}},
		{"Unknown Command", []string{"record"}},
		{"Unknown Flag", []string{"--gain", "3"}},
		{"Bad Flag Value", []string{"--bands", "many"}},
		{"Missing Config", []string{"--config", "does-not-exist.yaml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			if _, err := ParseArgs(tt.args, &out); err == nil {
				t.Errorf("ParseArgs(%v) succeeded", tt.args)
			}
		})
	}
}

func TestParseArgsInvalidOverride(t *testing.T) {
	var out bytes.Buffer
	_, err := ParseArgs([]string{"--bands", "0"}, &out)
	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("ParseArgs() = %v, want ErrInvalidConfig", err)
	}
}

func TestParseArgsVersion(t *testing.T) {
	var out bytes.Buffer
	inv, err := ParseArgs([]string{"--version"}, &out)
	if err != nil {
		t.Fatalf("ParseArgs() error: %v", err)
	}
	if inv.Command != CommandNone {
		t.Errorf("Command = %v, want CommandNone", inv.Command)
	}
	if !strings.Contains(out.String(), "dev") {
		t.Errorf("version output = %q", out.String())
	}
}
