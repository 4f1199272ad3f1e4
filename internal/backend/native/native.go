// Package native is the reference in-process engine. It runs tasks in
// dependency order and, in hierarchical mode, lets a manager agent schedule
// independent tasks concurrently and take over failed ones.
package native

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/report"
)

// Name is the canonical backend tag.
const Name = "sequential"

// Aliases are accepted in place of Name.
var Aliases = []string{"native", "builtin"}

const defaultMaxParallel = 4

// Adapter runs a graph in process.
type Adapter struct{}

// New returns the native adapter.
func New() *Adapter {
	return &Adapter{}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// Entry returns the registry entry of the adapter.
func Entry() backend.Entry {
	return backend.Entry{Name: Name, Aliases: Aliases, Adapter: New()}
}

// Run implements backend.Adapter.
func (a *Adapter) Run(ctx context.Context, g *graph.Graph, opts backend.RunOptions) (*report.ExecutionReport, error) {
	if opts.Mode == "" {
		opts.Mode = backend.ModeSequential
	}
	if opts.MaxParallel < 1 {
		opts.MaxParallel = defaultMaxParallel
	}
	exec := backend.NewExecution(Name, g, opts)
	if len(g.Tasks) == 0 {
		return exec.Report(), nil
	}
	log.Info().Str("run_id", opts.RunID).Str("mode", string(opts.Mode)).Int("tasks", len(g.Tasks)).Msg("native: starting run")

	switch opts.Mode {
	case backend.ModeSequential:
		a.runSequential(ctx, g, exec)
	case backend.ModeHierarchical:
		a.runHierarchical(ctx, g, exec)
	default:
		return nil, fmt.Errorf("native: unsupported mode %q", opts.Mode)
	}
	return exec.Report(), nil
}

func (a *Adapter) runSequential(ctx context.Context, g *graph.Graph, exec *backend.Execution) {
	for _, t := range g.Order() {
		if err := ctx.Err(); err != nil {
			log.Info().Str("task", t.Key).Msg("native: run cancelled")
			exec.CancelRemaining(ctx, context.Cause(ctx))
			return
		}
		exec.Commit(ctx, exec.Run(ctx, t, t.Agent))
	}
}

// runHierarchical executes waves of ready tasks. The manager orders each wave
// by how many tasks wait on it, and retries failed tasks itself when it may delegate.
func (a *Adapter) runHierarchical(ctx context.Context, g *graph.Graph, exec *backend.Execution) {
	manager := g.Manager()
	log.Info().Str("manager", manager.Key).Bool("delegation", manager.AllowsDelegation()).Msg("native: manager selected")

	for {
		pending := exec.Pending()
		if len(pending) == 0 {
			return
		}
		if err := ctx.Err(); err != nil {
			log.Info().Int("remaining", len(pending)).Msg("native: run cancelled")
			exec.CancelRemaining(ctx, context.Cause(ctx))
			return
		}

		var wave []*graph.Task
		for _, t := range pending {
			if !exec.Ready(t) {
				continue
			}
			if dep, blocked := exec.Blocked(t); blocked {
				exec.Commit(ctx, exec.Skip(t, dep))
				continue
			}
			wave = append(wave, t)
		}
		if len(wave) == 0 {
			continue
		}

		slices.SortStableFunc(wave, func(x, y *graph.Task) int {
			if c := cmp.Compare(g.TransitiveDependents(y), g.TransitiveDependents(x)); c != 0 {
				return c
			}
			return cmp.Compare(x.Index, y.Index)
		})

		records := make([]report.Record, len(wave))
		var eg errgroup.Group
		eg.SetLimit(exec.MaxParallel())
		for i, t := range wave {
			eg.Go(func() error {
				rec := exec.Run(ctx, t, t.Agent)
				if rec.Status == report.StatusError && manager != t.Agent && manager.AllowsDelegation() {
					log.Info().Str("task", t.Key).Str("manager", manager.Key).Msg("native: manager takes over failed task")
					retry := exec.Attempt(ctx, t, manager)
					if retry.Status == report.StatusCompleted {
						rec = retry
					}
				}
				records[i] = rec
				return nil
			})
		}
		_ = eg.Wait()

		for _, rec := range records {
			exec.Commit(ctx, rec)
		}
	}
}
