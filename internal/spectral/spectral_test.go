// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"math"
	"runtime"
	"slices"
	"sync"
	"testing"
	"time"

	"spectral/internal/analysis"
	"spectral/internal/transport"
	"spectral/pkg/utils"
)

const testDT = 1.0 / 60

func newTestRegistry(t testing.TB) *Registry {
	t.Helper()
	r, err := NewRegistry(analysis.DefaultParams())
	if err != nil {
		t.Fatalf("NewRegistry() error: %v", err)
	}
	return r
}

func mustRegister(t testing.TB, r *Registry, id string) *Source {
	t.Helper()
	src, err := r.Register(id)
	if err != nil {
		t.Fatalf("Register(%q) error: %v", id, err)
	}
	return src
}

// bandFor returns the band whose frequency range contains hz.
func bandFor(layout *analysis.BandLayout, hz float64) int {
	for i, r := range layout.Ranges() {
		if hz >= r.LowHz && hz < r.HighHz {
			return i
		}
	}
	return -1
}

func TestNewRegistryRejectsInvalidParams(t *testing.T) {
	p := analysis.DefaultParams()
	p.TransformSize = 300
	if _, err := NewRegistry(p); !errors.Is(err, analysis.ErrInvalidParams) {
		t.Errorf("NewRegistry() = %v, want ErrInvalidParams", err)
	}
}

func TestRegistryLifecycle(t *testing.T) {
	r := newTestRegistry(t)

	mustRegister(t, r, "mic")
	mustRegister(t, r, "deck-b")
	mustRegister(t, r, "deck-a")

	if _, err := r.Register("mic"); !errors.Is(err, ErrSourceExists) {
		t.Errorf("duplicate Register() = %v, want ErrSourceExists", err)
	}
	if _, err := r.Register(""); err == nil {
		t.Error("Register(\"\") should fail")
	}

	var ids []string
	for _, src := range r.Sources() {
		ids = append(ids, src.ID())
	}
	if want := []string{"deck-a", "deck-b", "mic"}; !slices.Equal(ids, want) {
		t.Errorf("Sources() = %v, want %v", ids, want)
	}

	src, ok := r.Source("mic")
	if !ok || src.ID() != "mic" {
		t.Fatalf("Source(mic) = %v, %v", src, ok)
	}

	if err := r.Unregister("mic"); err != nil {
		t.Fatalf("Unregister() error: %v", err)
	}
	if err := r.Unregister("mic"); !errors.Is(err, ErrUnknownSource) {
		t.Errorf("second Unregister() = %v, want ErrUnknownSource", err)
	}
	if _, ok := r.Source("mic"); ok {
		t.Error("Source(mic) still found after Unregister")
	}
	if !src.Closed() {
		t.Error("unregistered source not closed")
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	// The id can be reused and starts from a clean state.
	again := mustRegister(t, r, "mic")
	if again == src {
		t.Error("re-registered id returned the old source")
	}
}

func TestSourceDropsDeliveriesAfterUnregister(t *testing.T) {
	r := newTestRegistry(t)
	src := mustRegister(t, r, "mic")
	p := r.Params()

	if err := r.Unregister("mic"); err != nil {
		t.Fatal(err)
	}
	src.OnSamples(utils.GenerateSineWave(p.TransformSize, p.SampleRate, 1000, 1), p.TransformSize)

	if src.SpectrumUpdates() != 0 {
		t.Errorf("closed source published %d spectra", src.SpectrumUpdates())
	}
	spectrum := make([]float32, src.Bins())
	src.SpectrumInto(spectrum)
	for k, m := range spectrum {
		if m != 0 {
			t.Fatalf("bin %d = %g after dropped delivery", k, m)
		}
	}
}

func TestSourcesAreIndependent(t *testing.T) {
	r := newTestRegistry(t)
	loud := mustRegister(t, r, "loud")
	quiet := mustRegister(t, r, "quiet")
	p := r.Params()

	loud.OnSamples(utils.GenerateSineWave(p.TransformSize, p.SampleRate, 1000, 1), p.TransformSize)
	quiet.OnSamples(nil, 0)
	for range 30 {
		r.Update(testDT)
	}

	bands := make([]float32, quiet.BandCount())
	quiet.BandsInto(bands)
	for i, v := range bands {
		if v != 0 {
			t.Fatalf("quiet band %d = %g, want 0", i, v)
		}
	}
	if quiet.Level() != 0 {
		t.Errorf("quiet level = %g", quiet.Level())
	}

	loud.BandsInto(bands)
	want := bandFor(r.Layout(), 1000)
	if got := analysis.PeakBin(bands, 0, len(bands)); got != want {
		t.Errorf("loud peak band = %d, want %d (bands %v)", got, want, bands)
	}
}

func TestUpdateWithoutNewSpectrumKeepsConverging(t *testing.T) {
	r := newTestRegistry(t)
	src := mustRegister(t, r, "mic")
	p := r.Params()

	src.OnSamples(utils.GenerateComplexWave(p.TransformSize, p.SampleRate), p.TransformSize)
	bands := make([]float32, src.BandCount())
	prev := make([]float32, src.BandCount())

	src.Update(testDT)
	src.BandsInto(prev)
	src.Update(testDT)
	src.BandsInto(bands)

	for i := range bands {
		if bands[i] < prev[i] {
			t.Errorf("band %d fell from %g to %g with a constant spectrum", i, prev[i], bands[i])
		}
	}
}

func TestConcurrentDeliveryAndRender(t *testing.T) {
	r := newTestRegistry(t)
	src := mustRegister(t, r, "mic")
	p := r.Params()
	chunk := utils.GenerateComplexWave(p.TransformSize, p.SampleRate)
	spectrumLen := src.Bins()

	src.OnSamples(chunk, len(chunk))
	if src.SpectrumUpdates() != 1 {
		t.Fatalf("SpectrumUpdates() = %d after one delivery", src.SpectrumUpdates())
	}

	var wg sync.WaitGroup
	stop := make(chan struct{})

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				src.OnSamples(chunk, len(chunk))
			}
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		spectrum := make([]float32, spectrumLen)
		for {
			select {
			case <-stop:
				return
			default:
				if n := src.SpectrumInto(spectrum); n != spectrumLen {
					t.Errorf("SpectrumInto copied %d bins", n)
					return
				}
			}
		}
	}()

	// Render until the audio goroutine has published well past the first
	// spectrum, so both sides demonstrably overlapped.
	const wantUpdates = 50
	deadline := time.Now().Add(5 * time.Second)
	bands := make([]float32, src.BandCount())
	renders := 0
	for src.SpectrumUpdates() < wantUpdates && time.Now().Before(deadline) {
		r.Update(testDT)
		src.BandsInto(bands)
		for i, v := range bands {
			if v < 0 || math.IsNaN(float64(v)) {
				t.Fatalf("band %d = %g", i, v)
			}
		}
		renders++
		runtime.Gosched()
	}
	close(stop)
	wg.Wait()

	if got := src.SpectrumUpdates(); got < wantUpdates {
		t.Errorf("only %d spectra published after %d renders", got, renders)
	}
}

func TestConcurrentRegisterAndUpdate(t *testing.T) {
	r := newTestRegistry(t)
	ids := []string{"a", "b", "c", "d"}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 20 {
				if _, err := r.Register(id); err != nil {
					t.Errorf("Register(%q) error: %v", id, err)
					return
				}
				r.Update(testDT)
				if err := r.Unregister(id); err != nil {
					t.Errorf("Unregister(%q) error: %v", id, err)
					return
				}
			}
		}()
	}
	for range 50 {
		r.Update(testDT)
	}
	wg.Wait()

	if r.Len() != 0 {
		t.Errorf("Len() = %d after all sources unregistered", r.Len())
	}
}

func TestLoopStepPublishesFrames(t *testing.T) {
	r := newTestRegistry(t)
	p := r.Params()
	mic := mustRegister(t, r, "mic")
	mustRegister(t, r, "silent")

	mock := &utils.MockTransport{}
	loop, err := NewLoop(r, 60, mock)
	if err != nil {
		t.Fatalf("NewLoop() error: %v", err)
	}

	sine := utils.GenerateSineWave(p.TransformSize, p.SampleRate, 1000, 1)
	for range 10 {
		mic.OnSamples(sine, len(sine))
		loop.Step(testDT)
	}

	if got, want := len(mock.Frames), 20; got != want {
		t.Fatalf("transport received %d frames, want %d", got, want)
	}
	if loop.Frames() != 10 {
		t.Errorf("Frames() = %d, want 10", loop.Frames())
	}

	last, ok := mock.Last("mic")
	if !ok {
		t.Fatal("no frame for mic")
	}
	if last.Sequence != 10 {
		t.Errorf("mic sequence = %d, want 10", last.Sequence)
	}
	if len(last.Bands) != p.BandCount {
		t.Fatalf("frame has %d bands, want %d", len(last.Bands), p.BandCount)
	}
	if math.Abs(float64(last.Level)-1/math.Sqrt2) > 1e-2 {
		t.Errorf("mic level = %g, want about %g", last.Level, 1/math.Sqrt2)
	}
	want := bandFor(r.Layout(), 1000)
	if got := analysis.PeakBin(last.Bands, 0, len(last.Bands)); got != want {
		t.Errorf("mic peak band = %d, want %d", got, want)
	}

	bands := make([]float32, mic.BandCount())
	mic.BandsInto(bands)
	if !slices.Equal(bands, last.Bands) {
		t.Errorf("last frame %v differs from current bands %v", last.Bands, bands)
	}

	silent, _ := mock.Last("silent")
	for i, v := range silent.Bands {
		if v != 0 {
			t.Fatalf("silent band %d = %g, want 0", i, v)
		}
	}

	// Frames for one step come out in source order.
	if mock.Frames[0].Source != "mic" || mock.Frames[1].Source != "silent" {
		t.Errorf("frame order = %s, %s", mock.Frames[0].Source, mock.Frames[1].Source)
	}
}

type failingTransport struct {
	utils.MockTransport
	fail bool
}

func (f *failingTransport) Send(frame transport.Frame) error {
	if f.fail {
		return errors.New("unreachable")
	}
	return f.MockTransport.Send(frame)
}

func TestLoopContinuesPastFailingTransport(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "mic")

	bad := &failingTransport{fail: true}
	good := &utils.MockTransport{}
	loop, err := NewLoop(r, 30, bad, good)
	if err != nil {
		t.Fatal(err)
	}

	loop.Step(testDT)
	loop.Step(testDT)
	bad.fail = false
	loop.Step(testDT)

	if len(good.Frames) != 3 {
		t.Errorf("healthy transport got %d frames, want 3", len(good.Frames))
	}
	if len(bad.Frames) != 1 {
		t.Errorf("recovered transport got %d frames, want 1", len(bad.Frames))
	}
}

// blockingTransport holds every Send until release is closed.
type blockingTransport struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTransport) Send(transport.Frame) error {
	b.once.Do(func() { close(b.entered) })
	<-b.release
	return nil
}

func (b *blockingTransport) Close() error { return nil }

func TestSlowTransportDoesNotBlockRegistry(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "mic")

	slow := &blockingTransport{entered: make(chan struct{}), release: make(chan struct{})}
	loop, err := NewLoop(r, 30, slow)
	if err != nil {
		t.Fatal(err)
	}

	stepped := make(chan struct{})
	go func() {
		defer close(stepped)
		loop.Step(testDT)
	}()
	<-slow.entered

	registered := make(chan error, 1)
	go func() {
		_, err := r.Register("line")
		if err == nil {
			err = r.Unregister("mic")
		}
		registered <- err
	}()

	select {
	case err := <-registered:
		if err != nil {
			t.Errorf("registry change during Send: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Register blocked while a transport was sending")
	}

	close(slow.release)
	<-stepped
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}
}

func TestLoopStartStop(t *testing.T) {
	r := newTestRegistry(t)
	mustRegister(t, r, "mic")
	mock := &utils.MockTransport{}

	loop, err := NewLoop(r, 200, mock)
	if err != nil {
		t.Fatal(err)
	}
	if loop.Interval() != 5*time.Millisecond {
		t.Errorf("Interval() = %s, want 5ms", loop.Interval())
	}

	loop.Start()
	loop.Start()

	deadline := time.Now().Add(2 * time.Second)
	for loop.Frames() < 3 {
		if time.Now().After(deadline) {
			t.Fatal("loop produced no frames")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if err := loop.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if err := loop.Stop(); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
	frames := loop.Frames()
	time.Sleep(20 * time.Millisecond)
	if loop.Frames() != frames {
		t.Error("loop kept running after Stop")
	}

	// A stopped loop can be restarted.
	loop.Start()
	if err := loop.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
}

func TestNewLoopDefaults(t *testing.T) {
	if _, err := NewLoop(nil, 60); err == nil {
		t.Error("NewLoop(nil) should fail")
	}
	loop, err := NewLoop(newTestRegistry(t), 0)
	if err != nil {
		t.Fatal(err)
	}
	if loop.Interval() != time.Second/DefaultFPS {
		t.Errorf("Interval() = %s, want %s", loop.Interval(), time.Second/DefaultFPS)
	}
	// No transports: stepping still advances bands.
	loop.Step(testDT)
}

func TestSourceUpdateZeroAllocs(t *testing.T) {
	r := newTestRegistry(t)
	src := mustRegister(t, r, "mic")
	p := r.Params()
	chunk := utils.GenerateComplexWave(p.TransformSize, p.SampleRate)

	allocs := testing.AllocsPerRun(100, func() {
		src.OnSamples(chunk, len(chunk))
		src.Update(testDT)
	})
	if allocs > 0 {
		t.Errorf("Expected zero allocations per delivery and update, got %.1f", allocs)
	}
}

func BenchmarkLoopStep(b *testing.B) {
	r := newTestRegistry(b)
	for _, id := range []string{"a", "b", "c", "d"} {
		mustRegister(b, r, id)
	}
	loop, err := NewLoop(r, 60)
	if err != nil {
		b.Fatal(err)
	}

	b.ReportAllocs()
	for b.Loop() {
		loop.Step(testDT)
	}
}
