// SPDX-License-Identifier: MIT

// Package cmd parses the command line and runs the selected mode: live
// capture, device listing or offline analysis of WAV files.
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"spectral/internal/analysis"
	"spectral/internal/config"
	"spectral/pkg/build"
)

// Command selects what main runs after parsing.
type Command int

const (
	CommandNone    Command = iota // help or version was printed
	CommandRun                    // live capture
	CommandList                   // list audio devices
	CommandAnalyze                // analyse WAV files
)

// Invocation is the parsed command line.
type Invocation struct {
	Command Command
	Config  *config.Config
	Files   []string // CommandAnalyze inputs
	Verbose bool
}

// flagValues receives the raw flag values before they are merged into the
// loaded configuration.
type flagValues struct {
	configPath      string
	deviceID        int
	channels        int
	sampleRate      float64
	framesPerBuffer int
	lowLatency      bool
	transformSize   int
	bands           int
	minHz           float64
	maxHz           float64
	fps             int
	verbose         bool
}

// ParseArgs parses args (without the program name). Flags that were set
// explicitly override the configuration file and environment.
func ParseArgs(args []string, out io.Writer) (*Invocation, error) {
	buildInfo := build.GetBuildFlags()
	inv := &Invocation{Command: CommandNone}
	var flags flagValues

	load := func(c *cobra.Command, command Command) error {
		cfg, err := config.LoadConfig(flags.configPath)
		if err != nil {
			return err
		}
		applyFlags(c.Flags(), &flags, cfg)
		if err := cfg.Validate(); err != nil {
			return err
		}
		inv.Command = command
		inv.Config = cfg
		inv.Verbose = flags.verbose
		return nil
	}

	rootCmd := &cobra.Command{
		Use:           buildInfo.Name,
		Short:         buildInfo.Description,
		Version:       buildInfo.Version,
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		RunE: func(c *cobra.Command, args []string) error {
			return load(c, CommandRun)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})
	rootCmd.SetOut(out)
	rootCmd.SetErr(out)

	// List command
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			inv.Command = CommandList
			inv.Verbose = flags.verbose
			return nil
		},
	}

	// Analyze command
	analyzeCmd := &cobra.Command{
		Use:   "analyze FILE...",
		Short: "Analyse WAV files offline, one source per file",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			if err := load(c, CommandAnalyze); err != nil {
				return err
			}
			inv.Files = args
			return nil
		},
	}
	rootCmd.AddCommand(listCmd, analyzeCmd)

	pf := rootCmd.PersistentFlags()

	pf.StringVar(&flags.configPath, "config", "",
		"Path to a YAML configuration file (default ./"+config.DefaultPath+" if present)")

	// Audio Device Configuration
	pf.IntVarP(&flags.deviceID, "device", "d", config.DefaultDeviceID,
		"Specify input device ID. Use 'list' command to see available devices.")
	pf.IntVarP(&flags.channels, "channels", "c", config.DefaultChannels,
		"Number of input channels to capture, downmixed to mono")
	pf.Float64VarP(&flags.sampleRate, "sample-rate", "s", config.DefaultSampleRate,
		"Sample rate, measured in Hertz (Hz)")
	pf.IntVarP(&flags.framesPerBuffer, "frames-per-buffer", "b", config.DefaultFramesPerBuffer,
		"The number of frames per buffer (affects latency)")
	pf.BoolVarP(&flags.lowLatency, "low-latency", "l", config.DefaultLowLatency,
		"Use low latency mode for real-time processing")

	// Analysis Configuration
	pf.IntVarP(&flags.transformSize, "transform-size", "t", 0,
		"FFT size, a power of two (0 = next power of two >= frames per buffer)")
	pf.IntVarP(&flags.bands, "bands", "n", analysis.DefaultBandCount,
		"Number of visual bands")
	pf.Float64Var(&flags.minHz, "min-hz", analysis.DefaultMinFrequencyHz,
		"Lower edge of the first band, in Hz")
	pf.Float64Var(&flags.maxHz, "max-hz", analysis.DefaultMaxFrequencyHz,
		"Upper edge of the last band, in Hz (below half the sample rate)")
	pf.IntVar(&flags.fps, "fps", config.DefaultFPS,
		"Render loop frames per second")

	// Debug Configuration
	pf.BoolVarP(&flags.verbose, "verbose", "v", false,
		"Show verbose output")

	rootCmd.SetArgs(args)
	if err := rootCmd.Execute(); err != nil {
		return nil, err
	}
	return inv, nil
}

// applyFlags copies every explicitly set flag into cfg.
func applyFlags(fs *pflag.FlagSet, v *flagValues, cfg *config.Config) {
	if fs.Changed("device") {
		cfg.Audio.InputDevice = v.deviceID
	}
	if fs.Changed("channels") {
		cfg.Audio.InputChannels = v.channels
	}
	if fs.Changed("sample-rate") {
		cfg.Audio.SampleRate = v.sampleRate
	}
	if fs.Changed("frames-per-buffer") {
		cfg.Audio.FramesPerBuffer = v.framesPerBuffer
	}
	if fs.Changed("low-latency") {
		cfg.Audio.LowLatency = v.lowLatency
	}
	if fs.Changed("transform-size") {
		cfg.Analysis.TransformSize = v.transformSize
	}
	if fs.Changed("bands") {
		cfg.Analysis.BandCount = v.bands
	}
	if fs.Changed("min-hz") {
		cfg.Analysis.MinFrequencyHz = v.minHz
	}
	if fs.Changed("max-hz") {
		cfg.Analysis.MaxFrequencyHz = v.maxHz
	}
	if fs.Changed("fps") {
		cfg.Render.FPS = v.fps
	}
}

// Usage returns a short hint for error messages.
func Usage() string {
	return fmt.Sprintf("Run '%s --help' for usage information.", build.GetBuildFlags().Name)
}
