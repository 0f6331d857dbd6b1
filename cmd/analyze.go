// SPDX-License-Identifier: MIT
package cmd

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"spectral/internal/analysis"
	"spectral/internal/config"
	applog "spectral/internal/log"
	"spectral/internal/spectral"
	"spectral/internal/transport"
	"spectral/internal/wavfile"
)

// Summary describes one analysed file.
type Summary struct {
	Source     string
	Path       string
	SampleRate float64
	Channels   int
	Duration   time.Duration
	Chunks     int
	PeakLevel  float32
	DominantHz float64   // strongest bin of the averaged spectrum
	Bands      []float32 // bands after the last frame
}

type analysisInput struct {
	file    *wavfile.FileSource
	source  *spectral.Source
	summary *Summary
	sum     []float64 // running spectrum sum
	done    bool
}

// Analyze feeds every file through its own source, one chunk of
// frames_per_buffer per render step, and sends the frames to transports.
// All files must share one sample rate, which replaces the configured rate.
func Analyze(cfg *config.Config, files []string, out io.Writer, transports ...transport.Transport) ([]Summary, error) {
	if len(files) == 0 {
		return nil, errors.New("analyze: no input files")
	}

	inputs := make([]*analysisInput, 0, len(files))
	defer func() {
		for _, in := range inputs {
			in.file.Close()
		}
	}()

	for _, path := range files {
		file, err := wavfile.Open(path, cfg.Audio.FramesPerBuffer)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, &analysisInput{file: file})
		if rate := inputs[0].file.SampleRate(); file.SampleRate() != rate {
			return nil, fmt.Errorf("%s: sample rate %.0f Hz differs from %.0f Hz of %s",
				path, file.SampleRate(), rate, inputs[0].file.Path())
		}
	}

	params, err := cfg.Params()
	if err != nil {
		return nil, err
	}
	if err := fitSampleRate(&params, inputs[0].file.SampleRate()); err != nil {
		return nil, err
	}

	registry, err := spectral.NewRegistry(params)
	if err != nil {
		return nil, err
	}
	loop, err := spectral.NewLoop(registry, cfg.Render.FPS, transports...)
	if err != nil {
		return nil, err
	}

	for i, in := range inputs {
		id := sourceID(in.file.Path())
		src, err := registry.Register(id)
		if errors.Is(err, spectral.ErrSourceExists) {
			id = fmt.Sprintf("%s#%d", id, i+1)
			src, err = registry.Register(id)
		}
		if err != nil {
			return nil, err
		}
		in.source = src
		in.sum = make([]float64, src.Bins())
		in.summary = &Summary{
			Source:     id,
			Path:       in.file.Path(),
			SampleRate: in.file.SampleRate(),
			Channels:   in.file.Channels(),
			Duration:   in.file.Duration(),
		}
	}

	dt := float64(cfg.Audio.FramesPerBuffer) / params.SampleRate
	spectrum := make([]float32, params.Bins())
	active := len(inputs)
	for active > 0 {
		for _, in := range inputs {
			if in.done {
				continue
			}
			ok, err := in.file.Next(in.source)
			if err != nil {
				return nil, err
			}
			if !ok {
				in.done = true
				active--
				if err := registry.Unregister(in.source.ID()); err != nil {
					return nil, err
				}
				continue
			}
			in.summary.Chunks++
			in.summary.PeakLevel = max(in.summary.PeakLevel, in.source.Level())
			in.source.SpectrumInto(spectrum)
			for k, m := range spectrum {
				in.sum[k] += float64(m)
			}
		}
		if active > 0 {
			loop.Step(dt)
		}
	}

	summaries := make([]Summary, len(inputs))
	for i, in := range inputs {
		in.summary.DominantHz = dominant(in.sum, params)
		in.summary.Bands = make([]float32, in.source.BandCount())
		in.source.BandsInto(in.summary.Bands)
		summaries[i] = *in.summary
	}

	applog.Infof("Analyze: %d files, %d frames rendered", len(inputs), loop.Frames())
	writeSummaries(out, summaries)
	return summaries, nil
}

// fitSampleRate switches p to the files' sample rate. A band range reaching
// the new Nyquist frequency is lowered to one bin below it.
func fitSampleRate(p *analysis.Params, rate float64) error {
	p.SampleRate = rate
	if nyquist := rate / 2; p.MaxFrequencyHz >= nyquist {
		limit := nyquist - rate/float64(p.TransformSize)
		applog.Warnf("Analyze: max frequency %.0f Hz is not below the %.0f Hz Nyquist frequency, using %.0f Hz",
			p.MaxFrequencyHz, nyquist, limit)
		p.MaxFrequencyHz = limit
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("analyze at %.0f Hz: %w (adjust --min-hz/--max-hz)", rate, err)
	}
	return nil
}

// sourceID derives a source name from a file path.
func sourceID(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}

func dominant(sum []float64, p analysis.Params) float64 {
	mags := make([]float32, len(sum))
	for k, v := range sum {
		mags[k] = float32(v)
	}
	return analysis.DominantFrequency(mags, p.SampleRate)
}

func writeSummaries(out io.Writer, summaries []Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SOURCE\tRATE\tCH\tDURATION\tCHUNKS\tPEAK LEVEL\tDOMINANT")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s\t%.0f Hz\t%d\t%s\t%d\t%.3f\t%.1f Hz\n",
			s.Source, s.SampleRate, s.Channels, s.Duration.Round(time.Millisecond),
			s.Chunks, s.PeakLevel, s.DominantHz)
	}
	w.Flush()
}
