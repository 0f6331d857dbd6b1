// SPDX-License-Identifier: MIT
package spectral

import (
	"fmt"
	"sync"
	"time"

	applog "spectral/internal/log"
	"spectral/internal/transport"
)

// DefaultFPS is the render rate used when none is configured.
const DefaultFPS = 60

// Loop is the render loop. On every tick it advances all bands of a Registry
// by the elapsed wall time and sends one frame per source to each transport.
type Loop struct {
	registry   *Registry
	transports []transport.Transport
	interval   time.Duration
	now        func() time.Time

	ticker   *time.Ticker   // Ticker that triggers frames.
	doneChan chan struct{}  // Signals the loop goroutine to stop.
	stopOnce sync.Once      // Ensures the stop logic runs only once per Start/Stop cycle.
	wg       sync.WaitGroup // Waits for the loop goroutine during Stop.
	mu       sync.Mutex     // Protects ticker and doneChan during Start/Stop.

	failing []bool // per transport, whether the last Send failed
	frames  uint64
}

// NewLoop creates a render loop at fps frames per second. fps <= 0 selects
// DefaultFPS.
func NewLoop(registry *Registry, fps int, transports ...transport.Transport) (*Loop, error) {
	if registry == nil {
		return nil, fmt.Errorf("render loop: registry cannot be nil")
	}
	if fps <= 0 {
		applog.Warnf("Loop: Invalid FPS %d, defaulting to %d", fps, DefaultFPS)
		fps = DefaultFPS
	}

	interval := time.Second / time.Duration(fps)
	applog.Infof("Loop: Initializing (FPS: %d, Interval: %s, Transports: %d)", fps, interval, len(transports))

	return &Loop{
		registry:   registry,
		transports: transports,
		interval:   interval,
		now:        time.Now,
		failing:    make([]bool, len(transports)),
	}, nil
}

// Interval returns the time between frames.
func (l *Loop) Interval() time.Duration {
	return l.interval
}

// Frames returns the number of frames stepped so far.
func (l *Loop) Frames() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.frames
}

// Start launches the loop goroutine. Calling Start on a running loop is a
// no-op.
func (l *Loop) Start() {
	l.mu.Lock()
	if l.ticker != nil {
		l.mu.Unlock()
		applog.Warnf("Loop: Start called but already running.")
		return
	}

	l.ticker = time.NewTicker(l.interval)
	l.doneChan = make(chan struct{})
	l.stopOnce = sync.Once{}

	ticker := l.ticker
	doneChan := l.doneChan
	l.mu.Unlock()

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		applog.Infof("Loop: Render goroutine started (Interval: %s)", l.interval)
		last := l.now()
		for {
			select {
			case <-ticker.C:
				now := l.now()
				dt := now.Sub(last).Seconds()
				last = now
				l.step(dt, now)
			case <-doneChan:
				applog.Infof("Loop: Render goroutine received stop signal.")
				return
			}
		}
	}()
}

// Stop signals the loop goroutine to exit and waits for it. Calling Stop on
// a stopped loop is a no-op.
func (l *Loop) Stop() error {
	l.mu.Lock()
	if l.ticker == nil {
		l.mu.Unlock()
		applog.Debugf("Loop: Stop called but not running.")
		return nil
	}

	l.stopOnce.Do(func() {
		applog.Infof("Loop: Initiating stop sequence...")
		close(l.doneChan)
		l.ticker.Stop()
		l.ticker = nil
	})
	l.mu.Unlock()

	l.wg.Wait()
	applog.Infof("Loop: Render goroutine finished.")
	return nil
}

// Close stops the loop. Transports are owned by the caller.
func (l *Loop) Close() error {
	return l.Stop()
}

// Step advances every source by dt seconds and publishes their frames. It
// drives the loop deterministically, for offline analysis and tests, and
// must not be mixed with a running loop.
func (l *Loop) Step(dt float64) {
	l.step(dt, l.now())
}

func (l *Loop) step(dt float64, now time.Time) {
	l.registry.Update(dt)

	// Transports run outside the registry lock so a slow Send cannot stall
	// Register or Unregister.
	timestamp := now.UnixNano()
	for _, src := range l.registry.snapshot() {
		frame := src.frame(timestamp)
		for i, t := range l.transports {
			l.send(i, t, frame)
		}
	}

	l.mu.Lock()
	l.frames++
	l.mu.Unlock()
}

// send logs transitions between working and failing transports rather than
// every failed frame.
func (l *Loop) send(i int, t transport.Transport, frame transport.Frame) {
	err := t.Send(frame)
	switch {
	case err != nil && !l.failing[i]:
		l.failing[i] = true
		applog.Warnf("Loop: Transport %d failed sending %q: %v", i, frame.Source, err)
	case err == nil && l.failing[i]:
		l.failing[i] = false
		applog.Infof("Loop: Transport %d recovered", i)
	}
}
