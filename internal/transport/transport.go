// Package transport delivers band frames to renderers outside the process.
package transport

// Frame is one render-loop snapshot of a source's visual bands.
type Frame struct {
	Source    string    `json:"source"`
	Sequence  uint32    `json:"seq"`
	Timestamp int64     `json:"ts"`    // nanoseconds since epoch
	Level     float32   `json:"level"` // RMS of the latest analysis window
	Bands     []float32 `json:"bands"`
}

// Transport sends frames to a renderer. Send is called from the render loop
// once per source per frame; frame.Bands is reused afterwards, so an
// implementation that defers delivery must copy or encode it first.
// Implementations must be safe for a concurrent Close.
type Transport interface {
	Send(frame Frame) error
	Close() error
}
