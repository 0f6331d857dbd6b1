// SPDX-License-Identifier: MIT
package config

import (
	"fmt"
	"net"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	applog "spectral/internal/log"
)

// DefaultPath is the file LoadConfig looks for when no path is given.
const DefaultPath = "config.yaml"

// LoadConfig loads configuration from the YAML file at path. If path is
// empty it tries DefaultPath in the working directory and falls back to the
// built-in defaults. Environment overrides are applied after loading, then
// the result is validated.
func LoadConfig(path string) (*Config, error) {
	cfg := NewConfig()

	if path == "" {
		if _, err := os.Stat(DefaultPath); err != nil {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
		path = DefaultPath
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	applog.Debugf("Config: Loaded %s", path)

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration in %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every section. Errors wrap ErrInvalidConfig.
func (c *Config) Validate() error {
	if _, ok := applog.ParseLevel(c.LogLevel); !ok && c.LogLevel != "" {
		return fmt.Errorf("%w: log_level %q", ErrInvalidConfig, c.LogLevel)
	}

	// Audio
	if c.Audio.InputDevice < MinDeviceID {
		return fmt.Errorf("%w: audio.input_device %d < %d", ErrInvalidConfig, c.Audio.InputDevice, MinDeviceID)
	}
	if c.Audio.SampleRate < MinSampleRate || c.Audio.SampleRate > MaxSampleRate {
		return fmt.Errorf("%w: audio.sample_rate %g outside [%d, %d]",
			ErrInvalidConfig, c.Audio.SampleRate, MinSampleRate, MaxSampleRate)
	}
	if c.Audio.FramesPerBuffer < 1 || c.Audio.FramesPerBuffer > MaxBufferFrames {
		return fmt.Errorf("%w: audio.frames_per_buffer %d outside [1, %d]",
			ErrInvalidConfig, c.Audio.FramesPerBuffer, MaxBufferFrames)
	}
	if c.Audio.InputChannels < 1 || c.Audio.InputChannels > MaxChannels {
		return fmt.Errorf("%w: audio.input_channels %d outside [1, %d]",
			ErrInvalidConfig, c.Audio.InputChannels, MaxChannels)
	}

	// Analysis
	if c.Analysis.TransformSize < 0 {
		return fmt.Errorf("%w: analysis.transform_size %d is negative", ErrInvalidConfig, c.Analysis.TransformSize)
	}
	p, err := c.Params()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	// Render
	if c.Render.FPS < 1 || c.Render.FPS > MaxFPS {
		return fmt.Errorf("%w: render.fps %d outside [1, %d]", ErrInvalidConfig, c.Render.FPS, MaxFPS)
	}

	// Transport
	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddress); err != nil {
			return fmt.Errorf("%w: transport.websocket_address %q: %v",
				ErrInvalidConfig, c.Transport.WebSocketAddress, err)
		}
	}
	if c.Transport.UDPEnabled {
		host, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress)
		if err != nil || host == "" {
			return fmt.Errorf("%w: transport.udp_target_address %q needs host:port",
				ErrInvalidConfig, c.Transport.UDPTargetAddress)
		}
	}

	return nil
}

// applyEnvOverrides replaces settings with ENV_* variables that are set.
// Values that do not parse are ignored with a warning.
func (c *Config) applyEnvOverrides() {
	// ENV_DEBUG
	if val, ok := os.LookupEnv("ENV_DEBUG"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Debug = bVal
			applog.Infof("Config: Overriding debug from env: %v", bVal)
		} else {
			applog.Warnf("Config: Ignoring ENV_DEBUG=%q: %v", val, err)
		}
	}
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		applog.Infof("Config: Overriding log_level from env: %s", val)
	}

	// ENV_{TRANSFORM_SIZE,BAND_COUNT} tune the analysis.
	if val, ok := os.LookupEnv("ENV_TRANSFORM_SIZE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Analysis.TransformSize = n
			applog.Infof("Config: Overriding analysis.transform_size from env: %d", n)
		} else {
			applog.Warnf("Config: Ignoring ENV_TRANSFORM_SIZE=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_BAND_COUNT"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Analysis.BandCount = n
			applog.Infof("Config: Overriding analysis.band_count from env: %d", n)
		} else {
			applog.Warnf("Config: Ignoring ENV_BAND_COUNT=%q: %v", val, err)
		}
	}

	// ENV_WS_{...} and ENV_UDP_{...} are specific to the transport layer.
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = bVal
			applog.Infof("Config: Overriding transport.websocket_enabled from env: %v", bVal)
		} else {
			applog.Warnf("Config: Ignoring ENV_WS_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_WS_ADDRESS"); ok {
		c.Transport.WebSocketAddress = val
		applog.Infof("Config: Overriding transport.websocket_address from env: %s", val)
	}
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if bVal, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = bVal
			applog.Infof("Config: Overriding transport.udp_enabled from env: %v", bVal)
		} else {
			applog.Warnf("Config: Ignoring ENV_UDP_ENABLED=%q: %v", val, err)
		}
	}
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		applog.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
}
