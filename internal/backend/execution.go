package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

// Execution tracks one adapter run: per-task attempts, committed records
// and the report. Adapters decide ordering; Execution does the per-task work.
type Execution struct {
	backend string
	graph   *graph.Graph
	opts    RunOptions

	mu        sync.Mutex
	report    *report.ExecutionReport
	committed map[int]report.Status
}

// NewExecution starts a report for the run.
func NewExecution(backend string, g *graph.Graph, opts RunOptions) *Execution {
	if opts.Mode == "" {
		opts.Mode = ModeSequential
	}
	return &Execution{
		backend: backend,
		graph:   g,
		opts:    opts,
		report: &report.ExecutionReport{
			RunID:     opts.RunID,
			Topic:     g.Topic,
			Backend:   backend,
			Mode:      string(opts.Mode),
			StartedAt: time.Now().UTC(),
		},
		committed: make(map[int]report.Status, len(g.Tasks)),
	}
}

// Mode returns the process mode of the run.
func (e *Execution) Mode() Mode {
	return e.opts.Mode
}

// MaxParallel returns the configured concurrency bound, at least 1.
func (e *Execution) MaxParallel() int {
	if e.opts.MaxParallel < 1 {
		return 1
	}
	return e.opts.MaxParallel
}

// Committed reports whether a record for t was committed.
func (e *Execution) Committed(t *graph.Task) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.committed[t.Index]
	return ok
}

// Pending returns uncommitted tasks in execution order.
func (e *Execution) Pending() []*graph.Task {
	var out []*graph.Task
	for _, t := range e.graph.Order() {
		if !e.Committed(t) {
			out = append(out, t)
		}
	}
	return out
}

// Ready reports whether every dependency of t has a committed record.
func (e *Execution) Ready(t *graph.Task) bool {
	for _, dep := range t.Dependencies() {
		if !e.Committed(dep) {
			return false
		}
	}
	return true
}

// Blocked returns the first dependency of t that did not complete.
func (e *Execution) Blocked(t *graph.Task) (*graph.Task, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, dep := range t.Dependencies() {
		if status, ok := e.committed[dep.Index]; ok && status != report.StatusCompleted {
			return dep, true
		}
	}
	return nil, false
}

// Skip builds a skipped record for a task whose dependency did not complete.
func (e *Execution) Skip(t *graph.Task, dep *graph.Task) report.Record {
	return report.Record{
		TaskKey: t.Key,
		RoleKey: t.Agent.Key,
		Status:  report.StatusSkipped,
		Err:     &report.SkippedError{TaskKey: t.Key, Dependency: dep.Key},
	}
}

// Cancel builds a cancelled record.
func (e *Execution) Cancel(t *graph.Task, cause error) report.Record {
	return report.Record{
		TaskKey: t.Key,
		RoleKey: t.Agent.Key,
		Status:  report.StatusCancelled,
		Err:     &report.CancelledError{TaskKey: t.Key, Cause: cause},
	}
}

// Timeout returns the effective timeout of t.
func (e *Execution) Timeout(t *graph.Task) time.Duration {
	if t.Spec.Timeout > 0 {
		return t.Spec.Timeout
	}
	return e.opts.TaskTimeout
}

// Attempt invokes the provider of executor for t and stores the output in
// the task result slot. The call is detached from ctx cancellation and bounded
// only by the task timeout.
func (e *Execution) Attempt(ctx context.Context, t *graph.Task, executor *graph.Agent) report.Record {
	rec := report.Record{TaskKey: t.Key, RoleKey: t.Agent.Key}
	if executor != t.Agent {
		rec.ExecutedBy = executor.Key
	}
	start := time.Now()

	logger := log.With().Str("backend", e.backend).Str("task", t.Key).Str("agent", executor.Key).Logger()

	fail := func(err error) report.Record {
		rec.Status = report.StatusError
		rec.Err = &report.TaskExecutionError{TaskKey: t.Key, Err: err}
		rec.Duration = time.Since(start)
		logger.Warn().Err(err).Msg("backend: task failed")
		return rec
	}

	if e.opts.Providers == nil {
		return fail(errors.New("no provider factory configured"))
	}
	p, err := e.opts.Providers(ctx, executor)
	if err != nil {
		return fail(fmt.Errorf("create provider: %w", err))
	}

	contextText := t.ContextText()
	if e.opts.Memory != nil {
		recalled, err := e.opts.Memory.Recall(ctx, t)
		if err != nil {
			logger.Warn().Err(err).Msg("backend: memory recall failed")
		} else if recalled != "" {
			contextText = strings.TrimSpace(contextText + "\n\n" + recalled)
		}
	}

	req := provider.Request{
		TaskKey:      t.Key,
		Instructions: executor.Instructions(),
		Prompt:       t.Prompt(),
		Context:      contextText,
		Tools:        t.Tools(),
	}

	callCtx := context.WithoutCancel(ctx)
	timeout := e.Timeout(t)
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, timeout)
		defer cancel()
	}

	logger.Debug().Dur("timeout", timeout).Msg("backend: invoking provider")
	resp, err := p.Complete(callCtx, req)
	if err != nil {
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			rec.Status = report.StatusTimeout
			rec.Err = &report.TimeoutError{TaskKey: t.Key, Timeout: timeout}
			rec.Duration = time.Since(start)
			logger.Warn().Dur("timeout", timeout).Msg("backend: task timed out")
			return rec
		}
		return fail(err)
	}

	if err := t.SetResult(resp.Output); err != nil {
		return fail(err)
	}
	rec.Status = report.StatusCompleted
	rec.Output = resp.Output
	rec.Duration = time.Since(start)
	logger.Debug().Dur("duration", rec.Duration).Msg("backend: task completed")
	return rec
}

// Commit appends rec to the report. Completed outputs go to memory.
func (e *Execution) Commit(ctx context.Context, rec report.Record) report.Record {
	e.mu.Lock()
	idx := -1
	if t, ok := e.graph.Task(rec.TaskKey); ok {
		idx = t.Index
		if _, dup := e.committed[idx]; dup {
			e.mu.Unlock()
			log.Warn().Str("task", rec.TaskKey).Msg("backend: record already committed")
			return rec
		}
		e.committed[idx] = rec.Status
	}
	rec = e.report.Add(rec)
	e.mu.Unlock()

	log.Info().Object("record", rec).Msg("backend: task finished")

	if rec.Status == report.StatusCompleted && e.opts.Memory != nil && idx >= 0 {
		if err := e.opts.Memory.Remember(context.WithoutCancel(ctx), e.graph.Tasks[idx], rec.Output); err != nil {
			log.Warn().Err(err).Str("task", rec.TaskKey).Msg("backend: memory store failed")
		}
	}
	if e.opts.OnRecord != nil {
		e.opts.OnRecord(rec)
	}
	return rec
}

// CancelRemaining commits a cancelled record for every pending task.
func (e *Execution) CancelRemaining(ctx context.Context, cause error) {
	for _, t := range e.Pending() {
		e.Commit(ctx, e.Cancel(t, cause))
	}
}

// Run executes one task: skip when blocked, cancel when ctx is done, else attempt.
func (e *Execution) Run(ctx context.Context, t *graph.Task, executor *graph.Agent) report.Record {
	if dep, blocked := e.Blocked(t); blocked {
		return e.Skip(t, dep)
	}
	if err := ctx.Err(); err != nil {
		return e.Cancel(t, context.Cause(ctx))
	}
	return e.Attempt(ctx, t, executor)
}

// Report finalizes and returns the report.
func (e *Execution) Report() *report.ExecutionReport {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.report.FinishedAt = time.Now().UTC()
	return e.report
}
