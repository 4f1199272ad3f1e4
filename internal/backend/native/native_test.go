package native

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/backend/backendtest"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

const researchDoc = `roles:
  research:
    role: Researcher
    tools: [web_search]
    tasks:
      research:
        description: research the topic
  summarize:
    role: Writer
    tasks:
      summarize:
        description: summarize the research
        context: [research]
`

const partialDoc = `roles:
  worker:
    tasks:
      t1:
        description: first
      t2:
        description: needs t1
        context: [t1]
      t3:
        description: independent
      t4:
        description: needs t2
        context: [t2]
`

func statuses(rep *report.ExecutionReport) map[string]report.Status {
	out := map[string]report.Status{}
	for _, rec := range rep.Records {
		out[rec.TaskKey] = rec.Status
	}
	return out
}

func TestRun_SequentialPassesDependencyOutput(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, researchDoc)
	script := backendtest.NewScript().On("research", func(context.Context, string, provider.Request) (string, error) {
		return "three findings", nil
	})

	rep, err := New().Run(context.Background(), g, backend.RunOptions{RunID: "r1", Providers: script.Factory()})
	require.NoError(t, err)

	assert.Equal(t, []string{"research", "summarize"}, rep.TaskKeys())
	assert.Equal(t, []string{"research", "summarize"}, script.CalledTasks())
	assert.True(t, rep.Succeeded())
	assert.Equal(t, "r1", rep.RunID)
	assert.Equal(t, Name, rep.Backend)
	assert.Equal(t, "sequential", rep.Mode)

	calls := script.Calls()
	assert.Contains(t, calls[1].Request.Context, "three findings")
	assert.Equal(t, []string{"web_search"}, calls[0].Request.Tools)
	assert.Contains(t, calls[1].Request.Instructions, "Writer")

	sum, _ := g.Task("summarize")
	out, ok := sum.Result()
	assert.True(t, ok)
	assert.Equal(t, "summarize done", out)
}

func TestRun_PartialFailureSkipsDependents(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, partialDoc)
	script := backendtest.NewScript().Fail("t1", errors.New("provider down"))

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Providers: script.Factory()})
	require.NoError(t, err)

	assert.Equal(t, map[string]report.Status{
		"t1": report.StatusError,
		"t2": report.StatusSkipped,
		"t3": report.StatusCompleted,
		"t4": report.StatusSkipped,
	}, statuses(rep))
	assert.Equal(t, []string{"t1", "t3"}, script.CalledTasks())
	assert.Len(t, rep.Records, 4)

	t1, _ := rep.Record("t1")
	assert.ErrorIs(t, t1.Err, report.ErrTaskExecution)
	t2, _ := rep.Record("t2")
	assert.ErrorIs(t, t2.Err, report.ErrDependencyFailed)
	_, set := g.Tasks[0].Result()
	assert.False(t, set)
}

func TestRun_CancellationBetweenTasks(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, partialDoc)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	script := backendtest.NewScript().On("t1", func(callCtx context.Context, _ string, _ provider.Request) (string, error) {
		cancel()
		// The in-flight call is detached from run cancellation.
		if err := callCtx.Err(); err != nil {
			return "", err
		}
		return "finished anyway", nil
	})

	rep, err := New().Run(ctx, g, backend.RunOptions{Providers: script.Factory()})
	require.NoError(t, err)

	assert.Equal(t, map[string]report.Status{
		"t1": report.StatusCompleted,
		"t2": report.StatusCancelled,
		"t3": report.StatusCancelled,
		"t4": report.StatusCancelled,
	}, statuses(rep))
	t3, _ := rep.Record("t3")
	assert.ErrorIs(t, t3.Err, report.ErrTaskCancelled)
	assert.Equal(t, "cancelled", rep.Status())
}

func TestRun_TaskTimeout(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, `roles:
  worker:
    tasks:
      slow:
        description: never returns
        timeout: 20ms
      fast:
        description: quick
`)
	script := backendtest.NewScript().On("slow", func(ctx context.Context, _ string, _ provider.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Providers: script.Factory(), TaskTimeout: time.Minute})
	require.NoError(t, err)

	slow, _ := rep.Record("slow")
	assert.Equal(t, report.StatusTimeout, slow.Status)
	assert.ErrorIs(t, slow.Err, report.ErrTaskTimeout)
	fast, _ := rep.Record("fast")
	assert.Equal(t, report.StatusCompleted, fast.Status)
}

func TestRun_RunDefaultTimeout(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, "roles:\n  w:\n    tasks:\n      slow:\n        description: d\n")
	script := backendtest.NewScript().On("slow", func(ctx context.Context, _ string, _ provider.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Providers: script.Factory(), TaskTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	assert.Equal(t, report.StatusTimeout, rep.Records[0].Status)
}

func TestRun_ProviderFactoryError(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, researchDoc)
	factory := func(context.Context, *graph.Agent) (provider.Provider, error) {
		return nil, errors.New("no credentials")
	}

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Providers: factory})
	require.NoError(t, err)
	assert.Equal(t, map[string]report.Status{
		"research":  report.StatusError,
		"summarize": report.StatusSkipped,
	}, statuses(rep))
}

func TestRun_UnknownMode(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, researchDoc)
	_, err := New().Run(context.Background(), g, backend.RunOptions{Mode: "round-robin"})
	require.Error(t, err)
}

const crewDoc = `roles:
  lead:
    role: Lead
    allow_delegation: true
    tasks:
      plan:
        description: plan
  worker:
    role: Worker
    tasks:
      collect:
        description: collect
      analyze:
        description: analyze
        context: [collect]
      report:
        description: report
        context: [analyze, plan]
`

func TestRun_HierarchicalKeepsDependencies(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	script := backendtest.NewScript()

	rep, err := New().Run(context.Background(), g, backend.RunOptions{
		Mode:        backend.ModeHierarchical,
		MaxParallel: 2,
		Providers:   script.Factory(),
	})
	require.NoError(t, err)
	assert.Equal(t, "hierarchical", rep.Mode)
	require.Len(t, rep.Records, 4)
	assert.True(t, rep.Succeeded())

	pos := map[string]int{}
	for i, key := range rep.TaskKeys() {
		pos[key] = i
	}
	// collect unblocks two tasks, plan only one, so the manager runs collect first.
	assert.Less(t, pos["collect"], pos["plan"])
	assert.Less(t, pos["collect"], pos["analyze"])
	assert.Less(t, pos["analyze"], pos["report"])
	assert.Less(t, pos["plan"], pos["report"])

	for _, call := range script.Calls() {
		if call.Request.TaskKey == "report" {
			assert.Contains(t, call.Request.Context, "analyze done")
			assert.Contains(t, call.Request.Context, "plan done")
		}
	}
}

func TestRun_HierarchicalManagerTakesOverFailure(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	script := backendtest.NewScript().On("collect", func(_ context.Context, agent string, _ provider.Request) (string, error) {
		if agent == "worker" {
			return "", errors.New("worker failed")
		}
		return "collected by lead", nil
	})

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Mode: backend.ModeHierarchical, Providers: script.Factory()})
	require.NoError(t, err)
	assert.True(t, rep.Succeeded())

	collect, _ := rep.Record("collect")
	assert.Equal(t, "lead", collect.ExecutedBy)
	assert.Equal(t, "collected by lead", collect.Output)
}

func TestRun_HierarchicalFailureWithoutDelegation(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, partialDoc)
	script := backendtest.NewScript().Fail("t1", errors.New("boom"))

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Mode: backend.ModeHierarchical, Providers: script.Factory()})
	require.NoError(t, err)
	assert.Equal(t, map[string]report.Status{
		"t1": report.StatusError,
		"t2": report.StatusSkipped,
		"t3": report.StatusCompleted,
		"t4": report.StatusSkipped,
	}, statuses(rep))
}

type recordingMemory struct {
	remembered map[string]string
}

func (m *recordingMemory) Recall(_ context.Context, t *graph.Task) (string, error) {
	if t.Key == "summarize" {
		return "Memory:\n- earlier insight", nil
	}
	return "", nil
}

func (m *recordingMemory) Remember(_ context.Context, t *graph.Task, output string) error {
	m.remembered[t.Key] = output
	return nil
}

func TestRun_MemoryAndRecordHook(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, researchDoc)
	script := backendtest.NewScript()
	mem := &recordingMemory{remembered: map[string]string{}}
	var hooked []string

	rep, err := New().Run(context.Background(), g, backend.RunOptions{
		Providers: script.Factory(),
		Memory:    mem,
		OnRecord:  func(rec report.Record) { hooked = append(hooked, rec.TaskKey) },
	})
	require.NoError(t, err)
	assert.True(t, rep.Succeeded())
	assert.Equal(t, []string{"research", "summarize"}, hooked)
	assert.Equal(t, map[string]string{"research": "research done", "summarize": "summarize done"}, mem.remembered)
	assert.Contains(t, script.Calls()[1].Request.Context, "earlier insight")
}
