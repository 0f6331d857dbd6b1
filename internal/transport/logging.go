package transport

import (
	applog "spectral/internal/log"
)

// LoggingTransport writes frames to the debug log. It is the fallback when
// no network transport is configured.
type LoggingTransport struct{}

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs a summary of the frame at debug level. It never fails.
func (lt *LoggingTransport) Send(frame Frame) error {
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	var peak float32
	peakBand := 0
	for i, v := range frame.Bands {
		if v > peak {
			peak, peakBand = v, i
		}
	}
	applog.Debugf("LOG_TRANSPORT: %s #%d level=%.4f peak band %d = %.4f",
		frame.Source, frame.Sequence, frame.Level, peakBand, peak)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LOG_TRANSPORT: Close called.")
	return nil
}

var _ Transport = (*LoggingTransport)(nil)
