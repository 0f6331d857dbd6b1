// SPDX-License-Identifier: MIT
package spectral

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"spectral/internal/analysis"
	applog "spectral/internal/log"
)

var (
	// ErrSourceExists is returned when registering an id twice.
	ErrSourceExists = errors.New("source already registered")
	// ErrUnknownSource is returned for ids that are not registered.
	ErrUnknownSource = errors.New("unknown source")
)

// Registry owns the sources of one analysis pipeline. All sources share the
// same Params and BandLayout but nothing else.
type Registry struct {
	params analysis.Params
	layout *analysis.BandLayout

	mu      sync.RWMutex
	sources map[string]*Source
	ordered []*Source // sorted by id, replaced on Register/Unregister
}

// NewRegistry validates p and precomputes the shared band layout.
func NewRegistry(p analysis.Params) (*Registry, error) {
	layout, err := analysis.NewBandLayout(p)
	if err != nil {
		return nil, err
	}

	applog.Infof("Registry: Initialized (N=%d, K=%d, %.0f-%.0f Hz, smoothing %s)",
		p.TransformSize, p.BandCount, p.MinFrequencyHz, p.MaxFrequencyHz, p.Smoothing)

	return &Registry{
		params:  p,
		layout:  layout,
		sources: make(map[string]*Source),
	}, nil
}

// Params returns the parameters shared by every source.
func (r *Registry) Params() analysis.Params {
	return r.params
}

// Layout returns the shared band layout.
func (r *Registry) Layout() *analysis.BandLayout {
	return r.layout
}

// Register creates the analysis state for id.
func (r *Registry) Register(id string) (*Source, error) {
	if id == "" {
		return nil, fmt.Errorf("register: empty source id")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sources[id]; ok {
		return nil, fmt.Errorf("register %q: %w", id, ErrSourceExists)
	}
	src, err := newSource(id, r.params, r.layout)
	if err != nil {
		return nil, err
	}
	r.sources[id] = src
	r.reorder()

	applog.Infof("Registry: Registered source %q (%d total)", id, len(r.sources))
	return src, nil
}

// Unregister removes id. Audio still in flight for it is dropped.
func (r *Registry) Unregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	src, ok := r.sources[id]
	if !ok {
		return fmt.Errorf("unregister %q: %w", id, ErrUnknownSource)
	}
	src.close()
	delete(r.sources, id)
	r.reorder()

	applog.Infof("Registry: Unregistered source %q (%d left)", id, len(r.sources))
	return nil
}

// reorder publishes a freshly sorted slice. Published slices are never
// modified, so snapshot holders can iterate them without the lock.
func (r *Registry) reorder() {
	ordered := make([]*Source, 0, len(r.sources))
	for _, src := range r.sources {
		ordered = append(ordered, src)
	}
	slices.SortFunc(ordered, func(a, b *Source) int {
		return strings.Compare(a.id, b.id)
	})
	r.ordered = ordered
}

// Source looks up a registered source.
func (r *Registry) Source(id string) (*Source, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	src, ok := r.sources[id]
	return src, ok
}

// Sources returns the registered sources ordered by id.
func (r *Registry) Sources() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.ordered)
}

// Len returns the number of registered sources.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sources)
}

// Update advances the bands of every source by dt seconds.
func (r *Registry) Update(dt float64) {
	for _, src := range r.snapshot() {
		src.Update(dt)
	}
}

// snapshot returns the current ordered slice without copying it. Callers
// must not modify it.
func (r *Registry) snapshot() []*Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.ordered
}
