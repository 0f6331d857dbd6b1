// SPDX-License-Identifier: MIT
/*
Package audio captures live input with PortAudio and hands it to the
analysis pipeline.

Thread Safety:
  - The PortAudio callback runs on the audio thread and only touches
    pre-allocated buffers
  - Interleaved input is downmixed to mono before delivery
  - One Engine feeds one analysis.SampleHandler
*/
package audio

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gordonklaus/portaudio"

	"spectral/internal/analysis"
	"spectral/internal/config"
	applog "spectral/internal/log"
)

// Engine streams one input device into a SampleHandler.
type Engine struct {
	config  config.AudioConfig
	handler analysis.SampleHandler

	// Audio input handling.
	inputDevice  *portaudio.DeviceInfo
	inputLatency time.Duration
	inputStream  *portaudio.Stream

	mono      []float32 // downmixed delivery, FramesPerBuffer frames
	callbacks atomic.Uint64
}

// NewEngine resolves the configured input device. PortAudio must be
// initialized.
func NewEngine(cfg config.AudioConfig, handler analysis.SampleHandler) (*Engine, error) {
	if handler == nil {
		return nil, fmt.Errorf("audio engine: sample handler cannot be nil")
	}
	inputDevice, err := InputDevice(cfg.InputDevice)
	if err != nil {
		return nil, err
	}
	if cfg.InputChannels > inputDevice.MaxInputChannels {
		return nil, fmt.Errorf("device %q has %d input channels, %d requested",
			inputDevice.Name, inputDevice.MaxInputChannels, cfg.InputChannels)
	}

	engine := newEngine(cfg, handler)
	engine.inputDevice = inputDevice
	if cfg.LowLatency {
		engine.inputLatency = inputDevice.DefaultLowInputLatency
	} else {
		engine.inputLatency = inputDevice.DefaultHighInputLatency
	}

	applog.Infof("Engine: Using input device %q (%d ch, %.0f Hz, %d frames/buffer, latency %s)",
		inputDevice.Name, cfg.InputChannels, cfg.SampleRate, cfg.FramesPerBuffer, engine.inputLatency)
	return engine, nil
}

func newEngine(cfg config.AudioConfig, handler analysis.SampleHandler) *Engine {
	return &Engine{
		config:  cfg,
		handler: handler,
		mono:    make([]float32, cfg.FramesPerBuffer),
	}
}

// StartInputStream opens and starts the input stream.
func (e *Engine) StartInputStream() error {
	if e.inputStream != nil {
		return fmt.Errorf("input stream already started")
	}

	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Channels: e.config.InputChannels,
			Device:   e.inputDevice,
			Latency:  e.inputLatency,
		},
		Output: portaudio.StreamDeviceParameters{
			Channels: 0, // No output device
			Device:   nil,
		},
		FramesPerBuffer: e.config.FramesPerBuffer,
		SampleRate:      e.config.SampleRate,
	}

	stream, err := portaudio.OpenStream(params, e.processInputStream)
	if err != nil {
		return fmt.Errorf("failed to open input stream: %w", err)
	}
	e.inputStream = stream

	if err := e.inputStream.Start(); err != nil {
		e.inputStream.Close()
		e.inputStream = nil
		return fmt.Errorf("failed to start input stream: %w", err)
	}

	applog.Infof("Engine: Input stream started")
	return nil
}

// StopInputStream stops and closes the stream. It is a no-op when the
// stream is not running.
func (e *Engine) StopInputStream() error {
	if e.inputStream == nil {
		return nil
	}

	if err := e.inputStream.Stop(); err != nil {
		return fmt.Errorf("failed to stop input stream: %w", err)
	}
	if err := e.inputStream.Close(); err != nil {
		return fmt.Errorf("failed to close input stream: %w", err)
	}
	e.inputStream = nil

	applog.Infof("Engine: Input stream stopped after %d callbacks", e.callbacks.Load())
	return nil
}

// Callbacks returns how many buffers have been delivered.
func (e *Engine) Callbacks() uint64 {
	return e.callbacks.Load()
}

// processInputStream is the PortAudio callback.
// Performance Critical:
// - Uses pre-allocated buffers only
// - No dynamic allocations in the hot path
func (e *Engine) processInputStream(in []float32) {
	n := analysis.Downmix(e.mono, in, e.config.InputChannels)
	e.handler.OnSamples(e.mono[:n], n)
	e.callbacks.Add(1)
}
