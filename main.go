// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"spectral/cmd"
	"spectral/internal/audio"
	applog "spectral/internal/log"
	"spectral/pkg/build"
)

// main is the entry point for the spectral analysis engine.
// The program flow is divided into three distinct phases:
//
// 1. Startup Phase (Cold Path):
//   - Initialize build information
//   - Parse command line arguments and load configuration
//   - Execute offline analysis or one-off commands if requested
//   - Initialize PortAudio
//
// 2. Concurrent Phase (Hot Path):
//   - Start the render loop and transports
//   - Begin input stream processing
//
// 3. Shutdown Phase (Cold Path):
//   - Handle termination signals
//   - Stop the stream, the render loop and the transports
func main() {
	os.Exit(run())
}

// run executes the phases and returns the process exit code, so deferred
// cleanup runs before exiting.
func run() int {
	// ==================== STARTUP PHASE (Cold Path) ====================

	if err := build.Initialize(); err != nil {
		applog.Errorf("%v", err)
		return 1
	}

	inv, err := cmd.ParseArgs(os.Args[1:], os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n%s\n", err, cmd.Usage())
		return 1
	}
	if inv.Command == cmd.CommandNone {
		return 0 // help or version
	}

	if inv.Config != nil {
		applog.Configure(inv.Config.LogLevel, inv.Verbose || inv.Config.Debug)
	} else {
		applog.Configure("", inv.Verbose)
	}
	applog.Debugf("%s", build.GetBuildFlags())

	// Offline analysis does not touch the audio hardware.
	if inv.Command == cmd.CommandAnalyze {
		transports, err := cmd.BuildTransports(inv.Config)
		if err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		_, err = cmd.Analyze(inv.Config, inv.Files, os.Stdout, transports...)
		if cerr := cmd.CloseTransports(transports); cerr != nil {
			applog.Errorf("Error closing transports: %v", cerr)
		}
		if err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		return 0
	}

	if err := audio.Initialize(); err != nil {
		applog.Errorf("%v", err)
		return 1
	}
	defer audio.Terminate()

	if inv.Command == cmd.CommandList {
		if err := cmd.ListDevices(os.Stdout); err != nil {
			applog.Errorf("%v", err)
			return 1
		}
		return 0
	}

	// ==================== CONCURRENT PHASE (Hot Path) ====================

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.RunLive(ctx, inv.Config); err != nil {
		applog.Errorf("%v", err)
		return 1
	}

	// ==================== SHUTDOWN PHASE (Cold Path) ====================
	// Deferred: signal handler reset, PortAudio termination.
	return 0
}
