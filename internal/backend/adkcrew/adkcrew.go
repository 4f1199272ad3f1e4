// Package adkcrew runs a task graph as a crew of Google ADK agents.
package adkcrew

import (
	"context"
	"fmt"
	"iter"

	"github.com/rs/zerolog/log"
	"google.golang.org/adk/agent"
	"google.golang.org/adk/session"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/report"
)

// Name is the canonical backend tag.
const Name = "adk"

// Aliases are accepted in place of Name.
var Aliases = []string{"google-adk", "adkcrew"}

// Adapter runs graphs through an ADK runner.
type Adapter struct {
	appName string
}

// New returns the ADK adapter.
func New() *Adapter {
	return &Adapter{appName: defaultAppName}
}

// Entry returns the registry entry of the adapter.
func Entry() backend.Entry {
	return backend.Entry{Name: Name, Aliases: Aliases, Adapter: New(), Probe: Probe}
}

// Name implements backend.Adapter.
func (a *Adapter) Name() string {
	return Name
}

// Probe runs an empty agent through a runner and session.
func Probe(ctx context.Context) error {
	noop, err := agent.New(agent.Config{
		Name:        "probe",
		Description: "Checks that the ADK runtime works.",
		Run: func(agent.InvocationContext) iter.Seq2[*session.Event, error] {
			return func(func(*session.Event, error) bool) {}
		},
	})
	if err != nil {
		return fmt.Errorf("create probe agent: %w", err)
	}
	if _, err := newCrewSession("rolecall-probe").drive(ctx, noop, "", nil); err != nil {
		return fmt.Errorf("run probe agent: %w", err)
	}
	return nil
}

// Run implements backend.Adapter.
func (a *Adapter) Run(ctx context.Context, g *graph.Graph, opts backend.RunOptions) (*report.ExecutionReport, error) {
	if opts.Mode == "" {
		opts.Mode = backend.ModeSequential
	}
	if opts.Mode != backend.ModeSequential && opts.Mode != backend.ModeHierarchical {
		return nil, fmt.Errorf("adkcrew: unsupported mode %q", opts.Mode)
	}

	exec := backend.NewExecution(Name, g, opts)
	if len(g.Tasks) == 0 {
		return exec.Report(), nil
	}

	c, err := newCrew(g, exec)
	if err != nil {
		return nil, fmt.Errorf("adkcrew: %w", err)
	}
	root, err := c.rootAgent()
	if err != nil {
		return nil, fmt.Errorf("adkcrew: create crew agent: %w", err)
	}

	log.Info().Str("run_id", opts.RunID).Str("mode", string(opts.Mode)).Int("members", len(g.Agents)).Msg("adkcrew: starting run")
	sess := newCrewSession(a.appName)
	defer sess.close(context.WithoutCancel(ctx), opts.RunID)

	events, err := sess.drive(ctx, root, opts.RunID, map[string]any{stateTopic: g.Topic})
	if err != nil && ctx.Err() == nil {
		return nil, fmt.Errorf("adkcrew: run crew: %w", err)
	}
	log.Debug().Int("events", events).Msg("adkcrew: crew finished")
	if ctx.Err() != nil {
		exec.CancelRemaining(ctx, context.Cause(ctx))
	}
	return exec.Report(), nil
}
