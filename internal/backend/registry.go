package backend

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/rs/zerolog/log"
)

// Probe checks whether a backend can run. Returning ErrNotInstalled marks it
// missing; any other error marks it broken.
type Probe func(ctx context.Context) error

// Entry registers one adapter.
type Entry struct {
	Name    string
	Aliases []string
	Adapter Adapter
	// Probe is optional; nil means always available.
	Probe Probe
}

// Registry holds adapters and caches their probe results for its lifetime.
type Registry struct {
	entries []Entry
	// disabled names are reported missing without probing.
	disabled map[string]bool

	once  sync.Once
	avail []Availability
}

// NewRegistry validates the entries. Names and aliases must be unique.
func NewRegistry(entries ...Entry) (*Registry, error) {
	seen := map[string]string{}
	for _, e := range entries {
		if e.Name == "" || e.Adapter == nil {
			return nil, fmt.Errorf("register backend %q: name and adapter are required", e.Name)
		}
		for _, tag := range append([]string{e.Name}, e.Aliases...) {
			key := normalizeTag(tag)
			if owner, dup := seen[key]; dup {
				return nil, fmt.Errorf("register backend %q: tag %q already used by %q", e.Name, tag, owner)
			}
			seen[key] = e.Name
		}
	}
	return &Registry{entries: slices.Clone(entries), disabled: map[string]bool{}}, nil
}

// Disable marks backends missing. It only has effect before the first probe.
func (r *Registry) Disable(names ...string) {
	for _, n := range names {
		r.disabled[n] = true
	}
}

// Availability probes every backend once and returns the cached results.
func (r *Registry) Availability(ctx context.Context) []Availability {
	r.once.Do(func() {
		r.avail = make([]Availability, 0, len(r.entries))
		for _, e := range r.entries {
			a := Availability{Name: e.Name, Aliases: e.Aliases, Status: StatusAvailable}
			switch {
			case r.disabled[e.Name]:
				a.Status = StatusMissing
				a.Err = ErrNotInstalled
			case e.Probe != nil:
				if err := e.Probe(ctx); err != nil {
					a.Err = err
					a.Status = StatusBroken
					if errors.Is(err, ErrNotInstalled) {
						a.Status = StatusMissing
					}
				}
			}
			log.Debug().Str("backend", a.Name).Stringer("status", a.Status).Err(a.Err).Msg("backend: probed")
			r.avail = append(r.avail, a)
		}
	})
	return slices.Clone(r.avail)
}

// Adapter returns the adapter registered under a canonical name.
func (r *Registry) Adapter(name string) (Adapter, bool) {
	for _, e := range r.entries {
		if e.Name == name {
			return e.Adapter, true
		}
	}
	return nil, false
}

// Names returns canonical names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		names = append(names, e.Name)
	}
	return names
}

// Select resolves a backend and returns its adapter.
func (r *Registry) Select(ctx context.Context, explicit, configured string) (Adapter, error) {
	name, err := Resolve(explicit, configured, r.Availability(ctx))
	if err != nil {
		return nil, err
	}
	adapter, ok := r.Adapter(name)
	if !ok {
		return nil, &UnknownFrameworkError{Tag: name, Known: r.Names()}
	}
	return adapter, nil
}
