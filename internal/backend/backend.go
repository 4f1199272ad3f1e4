// Package backend defines the adapter contract shared by execution engines
// and picks the engine for a run.
package backend

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

// Mode is the process mode of a run.
type Mode string

const (
	ModeSequential   Mode = "sequential"
	ModeHierarchical Mode = "hierarchical"
)

// ParseMode accepts "sequential" and "hierarchical"; empty means sequential.
// Other values are a *config.ValidationError on the process field.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "", ModeSequential:
		return ModeSequential, nil
	case ModeHierarchical:
		return ModeHierarchical, nil
	default:
		return "", &config.ValidationError{
			Field: "process",
			Msg:   fmt.Sprintf("unknown mode %q, want %s or %s", s, ModeSequential, ModeHierarchical),
		}
	}
}

// ProviderFactory returns the provider an agent calls.
type ProviderFactory func(ctx context.Context, agent *graph.Agent) (provider.Provider, error)

// Memory recalls earlier outputs for a task and remembers new ones.
type Memory interface {
	Recall(ctx context.Context, task *graph.Task) (string, error)
	Remember(ctx context.Context, task *graph.Task, output string) error
}

// RunOptions configure one adapter run.
type RunOptions struct {
	RunID string
	Mode  Mode
	// TaskTimeout applies to tasks without their own timeout. Zero means none.
	TaskTimeout time.Duration
	// MaxParallel bounds concurrent provider calls in hierarchical mode.
	MaxParallel int
	Providers   ProviderFactory
	// Memory is optional.
	Memory Memory
	// OnRecord is called once per committed record, in report order.
	OnRecord func(report.Record)
}

// Adapter executes a task graph.
type Adapter interface {
	Name() string
	Run(ctx context.Context, g *graph.Graph, opts RunOptions) (*report.ExecutionReport, error)
}
