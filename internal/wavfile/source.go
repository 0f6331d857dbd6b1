// SPDX-License-Identifier: MIT

// Package wavfile feeds PCM WAV files through the analysis pipeline in
// fixed-size chunks, the way a capture callback would.
package wavfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"spectral/internal/analysis"
	applog "spectral/internal/log"
)

// WAV format tags accepted by Open.
const (
	formatPCM        = 1
	formatExtensible = 0xFFFE
)

// ErrUnsupportedFormat is returned for WAV files that are not integer PCM
// at 8, 16, 24 or 32 bits.
var ErrUnsupportedFormat = errors.New("unsupported WAV format")

// FileSource reads an integer PCM WAV file and delivers it as mono chunks of
// framesPerBuffer frames normalized to [-1, 1].
type FileSource struct {
	path    string
	file    *os.File
	decoder *wav.Decoder

	sampleRate      float64
	channels        int
	bitDepth        int
	framesPerBuffer int
	duration        time.Duration

	buf         *audio.IntBuffer
	raw         []int
	interleaved []float32
	pending     int // decoded samples in interleaved
	mono        []float32
	eof         bool
	delivered   int // frames delivered so far
}

// Open validates the file header and positions the decoder at the PCM data.
func Open(path string, framesPerBuffer int) (*FileSource, error) {
	if framesPerBuffer < 1 {
		return nil, fmt.Errorf("frames per buffer must be positive, got %d", framesPerBuffer)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	src, err := newFileSource(path, file, framesPerBuffer)
	if err != nil {
		file.Close()
		return nil, err
	}
	return src, nil
}

func newFileSource(path string, file *os.File, framesPerBuffer int) (*FileSource, error) {
	decoder := wav.NewDecoder(file)
	if !decoder.IsValidFile() {
		return nil, fmt.Errorf("%s: invalid WAV file", path)
	}

	if err := decoder.FwdToPCM(); err != nil {
		return nil, fmt.Errorf("%s: reading WAV PCM data: %w", path, err)
	}

	if decoder.WavAudioFormat != formatPCM && decoder.WavAudioFormat != formatExtensible {
		return nil, fmt.Errorf("%s: %w: format tag %#x", path, ErrUnsupportedFormat, decoder.WavAudioFormat)
	}
	bitDepth := int(decoder.BitDepth)
	switch bitDepth {
	case 8, 16, 24, 32:
	default:
		return nil, fmt.Errorf("%s: %w: %d-bit samples", path, ErrUnsupportedFormat, bitDepth)
	}
	channels := int(decoder.NumChans)
	if channels < 1 {
		return nil, fmt.Errorf("%s: %w: %d channels", path, ErrUnsupportedFormat, channels)
	}

	if decoder.SampleRate == 0 {
		return nil, fmt.Errorf("%s: %w: zero sample rate", path, ErrUnsupportedFormat)
	}

	frameBytes := int64(channels * bitDepth / 8)
	duration := time.Duration(float64(decoder.PCMLen()/frameBytes) / float64(decoder.SampleRate) * float64(time.Second))

	chunk := framesPerBuffer * channels
	src := &FileSource{
		path:            path,
		file:            file,
		decoder:         decoder,
		sampleRate:      float64(decoder.SampleRate),
		channels:        channels,
		bitDepth:        bitDepth,
		framesPerBuffer: framesPerBuffer,
		duration:        duration,
		buf: &audio.IntBuffer{
			Format: &audio.Format{NumChannels: channels, SampleRate: int(decoder.SampleRate)},
		},
		raw:         make([]int, chunk),
		interleaved: make([]float32, chunk),
		mono:        make([]float32, framesPerBuffer),
	}

	applog.Infof("WAV: Opened %s (%.0f Hz, %d ch, %d-bit, %s)",
		path, src.sampleRate, channels, bitDepth, duration.Round(time.Millisecond))
	return src, nil
}

// Path returns the file path.
func (s *FileSource) Path() string { return s.path }

// SampleRate returns the file's sample rate in Hz.
func (s *FileSource) SampleRate() float64 { return s.sampleRate }

// Channels returns the channel count before downmixing.
func (s *FileSource) Channels() int { return s.channels }

// BitDepth returns the PCM sample size in bits.
func (s *FileSource) BitDepth() int { return s.bitDepth }

// Duration returns the playing time from the header.
func (s *FileSource) Duration() time.Duration { return s.duration }

// FramesDelivered returns the number of mono frames handed out so far.
func (s *FileSource) FramesDelivered() int { return s.delivered }

// Next decodes up to framesPerBuffer frames and delivers them to h. The last
// chunk may be short. It returns false once the file is exhausted, without
// calling h.
func (s *FileSource) Next(h analysis.SampleHandler) (bool, error) {
	want := len(s.interleaved)
	for s.pending < want && !s.eof {
		s.buf.Data = s.raw[:want-s.pending]
		n, err := s.decoder.PCMBuffer(s.buf)
		if err != nil {
			return false, fmt.Errorf("%s: decoding PCM: %w", s.path, err)
		}
		if n == 0 {
			s.eof = true
			break
		}
		s.normalize(s.interleaved[s.pending:s.pending+n], s.raw[:n])
		s.pending += n
	}

	frames := s.pending / s.channels
	if frames == 0 {
		s.pending = 0
		return false, nil
	}

	n := analysis.Downmix(s.mono, s.interleaved[:frames*s.channels], s.channels)
	s.pending = 0
	s.delivered += n
	h.OnSamples(s.mono[:n], n)
	return true, nil
}

// normalize scales integer samples to [-1, 1]. 8-bit WAV is unsigned.
func (s *FileSource) normalize(dst []float32, src []int) {
	if s.bitDepth == 8 {
		for i, v := range src {
			dst[i] = float32(v-128) / 128
		}
		return
	}
	scale := 1 / float32(int64(1)<<(s.bitDepth-1))
	for i, v := range src {
		dst[i] = float32(v) * scale
	}
}

// Close closes the underlying file.
func (s *FileSource) Close() error {
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}
