// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"spectral/internal/audio"
	"spectral/internal/config"
	applog "spectral/internal/log"
	"spectral/internal/spectral"
	"spectral/internal/transport"
	"spectral/internal/transport/udp"
)

// LiveSourceID is the source name used for the capture device.
const LiveSourceID = "input"

// BuildTransports creates the transports enabled in cfg. With none enabled
// it falls back to the logging transport.
func BuildTransports(cfg *config.Config) ([]transport.Transport, error) {
	var transports []transport.Transport

	if cfg.Transport.WebSocketEnabled {
		transports = append(transports, transport.NewWebSocketTransport(cfg.Transport.WebSocketAddress))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			CloseTransports(transports)
			return nil, err
		}
		publisher, err := udp.NewUDPPublisher(sender)
		if err != nil {
			sender.Close()
			CloseTransports(transports)
			return nil, err
		}
		transports = append(transports, publisher)
	}

	if len(transports) == 0 {
		transports = append(transports, transport.NewLoggingTransport())
	}
	return transports, nil
}

// CloseTransports closes every transport and joins their errors.
func CloseTransports(transports []transport.Transport) error {
	var errs []error
	for _, t := range transports {
		if err := t.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ListDevices prints the PortAudio devices. PortAudio must be initialized.
func ListDevices(out io.Writer) error {
	return audio.ListDevices(out)
}

// RunLive captures the configured device until ctx is cancelled.
// PortAudio must be initialized.
func RunLive(ctx context.Context, cfg *config.Config) error {
	params, err := cfg.Params()
	if err != nil {
		return err
	}
	registry, err := spectral.NewRegistry(params)
	if err != nil {
		return err
	}
	source, err := registry.Register(LiveSourceID)
	if err != nil {
		return err
	}

	transports, err := BuildTransports(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := CloseTransports(transports); err != nil {
			applog.Errorf("Error closing transports: %v", err)
		}
	}()

	loop, err := spectral.NewLoop(registry, cfg.Render.FPS, transports...)
	if err != nil {
		return err
	}

	engine, err := audio.NewEngine(cfg.Audio, source)
	if err != nil {
		return err
	}

	// The render loop runs before the first callback so no spectrum is
	// ever published without a consumer.
	loop.Start()
	defer loop.Stop()

	// CRITICAL: Start of real-time audio processing
	if err := engine.StartInputStream(); err != nil {
		return err
	}
	applog.Infof("Capturing; press Ctrl+C to stop.")

	<-ctx.Done()

	if err := engine.StopInputStream(); err != nil {
		return fmt.Errorf("stopping input stream: %w", err)
	}
	if err := registry.Unregister(LiveSourceID); err != nil {
		return err
	}
	applog.Infof("Processed %d buffers, %d frames rendered", engine.Callbacks(), loop.Frames())
	return nil
}
