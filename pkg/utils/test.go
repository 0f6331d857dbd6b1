// Package utils holds signal generators and doubles shared by the package
// tests.
package utils

import (
	"math"
	"sync"

	"spectral/internal/transport"
)

// MockTransport implements transport.Transport by recording every frame.
type MockTransport struct {
	mu     sync.Mutex
	Frames []transport.Frame
	Closed bool
}

// Send stores a deep copy of the frame for later inspection.
func (m *MockTransport) Send(frame transport.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	frame.Bands = append([]float32(nil), frame.Bands...)
	m.Frames = append(m.Frames, frame)
	return nil
}

// Close marks the transport closed.
func (m *MockTransport) Close() error {
	m.mu.Lock()
	m.Closed = true
	m.mu.Unlock()
	return nil
}

// Last returns the most recent frame for source, and whether one exists.
func (m *MockTransport) Last(source string) (transport.Frame, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Frames) - 1; i >= 0; i-- {
		if m.Frames[i].Source == source {
			return m.Frames[i], true
		}
	}
	return transport.Frame{}, false
}

var _ transport.Transport = (*MockTransport)(nil)

// GenerateComplexWave returns a 440 Hz fundamental with two harmonics,
// peaking at 0.9.
func GenerateComplexWave(size int, sampleRate float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		tm := float64(i) / sampleRate
		signal := math.Sin(2*math.Pi*440*tm)*0.5 +
			math.Sin(2*math.Pi*880*tm)*0.3 +
			math.Sin(2*math.Pi*1320*tm)*0.2
		buffer[i] = float32(signal * 0.9)
	}
	return buffer
}

// GenerateSineWave returns size samples of a sine at frequency Hz.
func GenerateSineWave(size int, sampleRate, frequency, amplitude float64) []float32 {
	buffer := make([]float32, size)
	for i := range buffer {
		t := float64(i) / sampleRate
		buffer[i] = float32(amplitude * math.Sin(2*math.Pi*frequency*t))
	}
	return buffer
}

// FindPeakBin returns the index of the largest magnitude in the inclusive
// range [startBin, endBin], clamped to the slice.
func FindPeakBin(magnitudes []float32, startBin, endBin int) int {
	if len(magnitudes) == 0 {
		return 0
	}
	if startBin < 0 {
		startBin = 0
	}
	if endBin >= len(magnitudes) {
		endBin = len(magnitudes) - 1
	}

	peakBin := startBin
	peakValue := magnitudes[startBin]
	for bin := startBin + 1; bin <= endBin; bin++ {
		if magnitudes[bin] > peakValue {
			peakValue = magnitudes[bin]
			peakBin = bin
		}
	}
	return peakBin
}
