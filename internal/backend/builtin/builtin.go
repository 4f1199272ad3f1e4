// Package builtin wires the shipped adapters into the process-wide registry.
package builtin

import (
	"sync"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/backend/adkcrew"
	"github.com/metalagman/rolecall/internal/backend/native"
)

var (
	defaultOnce     sync.Once
	defaultRegistry *backend.Registry
)

// Entries returns fresh entries for every shipped adapter, in priority order.
func Entries() []backend.Entry {
	return []backend.Entry{native.Entry(), adkcrew.Entry()}
}

// NewRegistry returns a registry with the shipped adapters.
func NewRegistry() *backend.Registry {
	r, err := backend.NewRegistry(Entries()...)
	if err != nil {
		panic(err)
	}
	return r
}

// Default returns the process-wide registry. Its probes run once.
func Default() *backend.Registry {
	defaultOnce.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}
