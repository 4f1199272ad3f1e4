// Package coordinator runs an agents document end to end: load, resolve the
// backend, build the task graph, execute and collect the report.
package coordinator

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/backend/builtin"
	"github.com/metalagman/rolecall/internal/config"
	"github.com/metalagman/rolecall/internal/db"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/memory"
	"github.com/metalagman/rolecall/internal/metrics"
	"github.com/metalagman/rolecall/internal/modelcfg"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

// Stage is a step of the run pipeline. Stages only move forward.
type Stage int

const (
	StageLoading Stage = iota
	StageResolving
	StageBuilding
	StageExecuting
	StageDone
	StageFailed
)

func (s Stage) String() string {
	switch s {
	case StageLoading:
		return "loading"
	case StageResolving:
		return "resolving"
	case StageBuilding:
		return "building"
	case StageExecuting:
		return "executing"
	case StageDone:
		return "done"
	case StageFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Request describes one run.
type Request struct {
	Source config.Source
	// Framework overrides the document framework.
	Framework string
	// APIKey is used for every role instead of the environment.
	APIKey string
	// Mode overrides the document process.
	Mode string
	// TaskTimeout applies to tasks without their own timeout.
	TaskTimeout time.Duration
	MaxParallel int
	// Memory enables task memory even when the document does not.
	Memory bool
	// MemoryThreshold is the quality an output needs to enter long-term
	// memory. Zero uses memory.DefaultThreshold.
	MemoryThreshold float64
	// RunID is generated when empty.
	RunID string
}

// Coordinator executes requests. The zero value is not usable; use New.
type Coordinator struct {
	registry     *backend.Registry
	resolver     *modelcfg.Resolver
	providers    backend.ProviderFactory
	providerOpts provider.Options
	store        *db.Store
	metrics      *metrics.Collector
	onStage      func(Stage)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRegistry replaces the process-wide backend registry.
func WithRegistry(r *backend.Registry) Option {
	return func(c *Coordinator) { c.registry = r }
}

// WithResolver replaces the environment backed model resolver.
func WithResolver(r *modelcfg.Resolver) Option {
	return func(c *Coordinator) { c.resolver = r }
}

// WithProviders replaces the provider factory.
func WithProviders(f backend.ProviderFactory) Option {
	return func(c *Coordinator) { c.providers = f }
}

// WithProviderOptions sets the options of the default provider factory.
func WithProviderOptions(opts provider.Options) Option {
	return func(c *Coordinator) { c.providerOpts = opts }
}

// WithStore records finished reports and backs task memory.
func WithStore(s *db.Store) Option {
	return func(c *Coordinator) { c.store = s }
}

// WithMetrics counts task and run outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// WithStageHook is called on every stage transition.
func WithStageHook(fn func(Stage)) Option {
	return func(c *Coordinator) { c.onStage = fn }
}

// New returns a coordinator with the shipped backends and the process environment.
func New(opts ...Option) *Coordinator {
	c := &Coordinator{}
	for _, opt := range opts {
		opt(c)
	}
	if c.registry == nil {
		c.registry = builtin.Default()
	}
	if c.resolver == nil {
		c.resolver = modelcfg.NewResolver()
	}
	if c.providers == nil {
		c.providers = func(ctx context.Context, agent *graph.Agent) (provider.Provider, error) {
			return provider.New(ctx, agent.Model, c.providerOpts)
		}
	}
	return c
}

// Execute runs req with a default coordinator.
func Execute(ctx context.Context, req Request) (*report.ExecutionReport, error) {
	return New().Execute(ctx, req)
}

// Execute runs the pipeline. Errors of the loading, resolving and building
// stages are returned as produced so callers can match them with errors.As.
// Task failures do not fail the run; they are recorded in the report.
func (c *Coordinator) Execute(ctx context.Context, req Request) (*report.ExecutionReport, error) {
	runID := req.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	logger := log.With().Str("run_id", runID).Logger()

	fail := func(stage Stage, err error) (*report.ExecutionReport, error) {
		logger.Error().Err(err).Stringer("stage", stage).Msg("coordinator: run failed")
		c.enter(StageFailed)
		return nil, err
	}

	c.enter(StageLoading)
	cfg, err := config.Load(req.Source)
	if err != nil {
		return fail(StageLoading, err)
	}
	logger.Debug().Strs("roles", cfg.RoleKeys()).Int("tasks", cfg.TaskCount()).Msg("coordinator: document loaded")

	c.enter(StageResolving)
	adapter, err := c.registry.Select(ctx, req.Framework, cfg.Framework)
	if err != nil {
		return fail(StageResolving, err)
	}
	processMode := req.Mode
	if processMode == "" {
		processMode = cfg.Process
	}
	mode, err := backend.ParseMode(processMode)
	if err != nil {
		return fail(StageResolving, err)
	}
	logger.Info().Str("backend", adapter.Name()).Str("mode", string(mode)).Msg("coordinator: backend selected")

	c.enter(StageBuilding)
	g, err := graph.Build(cfg, ResolveModels(c.resolver, cfg, req.APIKey))
	if err != nil {
		return fail(StageBuilding, err)
	}

	c.enter(StageExecuting)
	opts := backend.RunOptions{
		RunID:       runID,
		Mode:        mode,
		TaskTimeout: req.TaskTimeout,
		MaxParallel: req.MaxParallel,
		Providers:   c.providers,
		OnRecord: func(rec report.Record) {
			if c.metrics != nil {
				c.metrics.ObserveRecord(adapter.Name(), rec)
			}
		},
	}
	if req.Memory || cfg.Memory {
		if c.store != nil {
			conn := c.store.DB()
			opts.Memory = memory.NewRun(conn, runID, memory.NewLongTerm(conn, req.MemoryThreshold))
		} else {
			logger.Warn().Msg("coordinator: memory requested without a store, disabled")
		}
	}

	rep, err := adapter.Run(ctx, g, opts)
	if err != nil {
		return fail(StageExecuting, err)
	}

	if c.metrics != nil {
		c.metrics.ObserveRun(rep)
	}
	if c.store != nil {
		if err := c.store.SaveReport(context.WithoutCancel(ctx), rep); err != nil {
			logger.Warn().Err(err).Msg("coordinator: save report failed")
		}
	}

	c.enter(StageDone)
	logger.Info().
		Str("status", rep.Status()).
		Int("tasks", len(rep.Records)).
		Dur("duration", rep.Duration()).
		Msg("coordinator: run finished")
	return rep, nil
}

// ResolveModels resolves one ModelConfig per role, keyed by role key.
// A role base_url overrides the environment.
func ResolveModels(r *modelcfg.Resolver, cfg *config.Configuration, apiKey string) map[string]modelcfg.ModelConfig {
	models := make(map[string]modelcfg.ModelConfig, len(cfg.Roles))
	for _, role := range cfg.Roles {
		var opts []modelcfg.Option
		if role.BaseURL != "" {
			opts = append(opts, modelcfg.WithBaseURL(role.BaseURL))
		}
		mc := r.Resolve(role.LLM, apiKey, opts...)
		log.Debug().Str("role", role.Key).Object("model", mc).Msg("coordinator: model resolved")
		models[role.Key] = mc
	}
	return models
}

func (c *Coordinator) enter(stage Stage) {
	log.Debug().Stringer("stage", stage).Msg("coordinator: stage")
	if c.onStage != nil {
		c.onStage(stage)
	}
}
