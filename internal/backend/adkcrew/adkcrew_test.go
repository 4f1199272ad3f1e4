package adkcrew

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/rolecall/internal/backend"
	"github.com/metalagman/rolecall/internal/backend/backendtest"
	"github.com/metalagman/rolecall/internal/graph"
	"github.com/metalagman/rolecall/internal/provider"
	"github.com/metalagman/rolecall/internal/report"
)

const crewDoc = `topic: launch
roles:
  lead:
    role: Lead
    allow_delegation: true
    tasks:
      plan:
        description: plan the launch
  writer-1:
    role: Writer
    tasks:
      draft:
        description: draft copy
        context: [plan]
      polish:
        description: polish copy
        context: [draft]
  analyst:
    role: Analyst
    tasks:
      numbers:
        description: crunch numbers
`

func TestProbe(t *testing.T) {
	t.Parallel()
	require.NoError(t, Probe(context.Background()))
}

func TestRun_SequentialFollowsGraphOrder(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	script := backendtest.NewScript()

	rep, err := New().Run(context.Background(), g, backend.RunOptions{RunID: "run-seq", Providers: script.Factory()})
	require.NoError(t, err)

	assert.Equal(t, Name, rep.Backend)
	assert.Equal(t, "launch", rep.Topic)
	assert.Equal(t, []string{"plan", "draft", "polish", "numbers"}, rep.TaskKeys())
	assert.Equal(t, rep.TaskKeys(), script.CalledTasks())
	assert.True(t, rep.Succeeded())

	for _, call := range script.Calls() {
		if call.Request.TaskKey == "draft" {
			assert.Equal(t, "writer-1", call.Agent)
			assert.Contains(t, call.Request.Context, "plan done")
		}
	}
}

func TestRun_PartialFailure(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	script := backendtest.NewScript().Fail("draft", errors.New("writer blocked"))

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Providers: script.Factory()})
	require.NoError(t, err)

	want := map[string]report.Status{
		"plan":    report.StatusCompleted,
		"draft":   report.StatusError,
		"polish":  report.StatusSkipped,
		"numbers": report.StatusCompleted,
	}
	for key, status := range want {
		rec, ok := rep.Record(key)
		require.True(t, ok, key)
		assert.Equal(t, status, rec.Status, key)
	}
}

func TestRun_HierarchicalDelegatesToManager(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	script := backendtest.NewScript().On("draft", func(_ context.Context, agent string, _ provider.Request) (string, error) {
		if agent != "lead" {
			return "", errors.New("writer blocked")
		}
		return "lead drafted", nil
	})

	rep, err := New().Run(context.Background(), g, backend.RunOptions{Mode: backend.ModeHierarchical, Providers: script.Factory()})
	require.NoError(t, err)
	require.Len(t, rep.Records, 4)
	assert.True(t, rep.Succeeded())
	// plan unblocks two tasks and runs first.
	assert.Equal(t, "plan", rep.Records[0].TaskKey)

	draft, _ := rep.Record("draft")
	assert.Equal(t, "lead", draft.ExecutedBy)
	assert.Equal(t, "lead drafted", draft.Output)
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	script := backendtest.NewScript()
	rep, err := New().Run(ctx, g, backend.RunOptions{Providers: script.Factory()})
	require.NoError(t, err)
	require.Len(t, rep.Records, 4)
	for _, rec := range rep.Records {
		assert.Equal(t, report.StatusCancelled, rec.Status, rec.TaskKey)
	}
	assert.Empty(t, script.Calls())
}

func TestRun_UnknownMode(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, crewDoc)
	_, err := New().Run(context.Background(), g, backend.RunOptions{Mode: "swarm"})
	require.Error(t, err)
}

func TestMemberName(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "member_2_writer_1", memberName(&graph.Agent{Index: 2, Key: "writer-1"}))
}
