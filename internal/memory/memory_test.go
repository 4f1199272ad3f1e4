package memory

import (
	"context"
	"database/sql"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metalagman/rolecall/internal/backend/backendtest"
	"github.com/metalagman/rolecall/internal/db"
)

const marketDoc = `roles:
  analyst:
    tasks:
      research:
        description: collect market statistics
      summarize:
        description: summarize market statistics
        context: [research]
      review:
        description: review the statistics summary
`

func openMemoryDB(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := db.Open(filepath.Join(t.TempDir(), "mem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestRun_ShortTermRememberAndRecall(t *testing.T) {
	t.Parallel()

	conn := openMemoryDB(t)
	g := backendtest.Graph(t, marketDoc)
	research, _ := g.Task("research")
	summarize, _ := g.Task("summarize")
	review, _ := g.Task("review")

	ctx := context.Background()
	mem := NewRun(conn, "run-1", nil)
	require.NoError(t, mem.Remember(ctx, research, "Market statistics show growth."))
	require.NoError(t, mem.Remember(ctx, summarize, "Summary:   market\n statistics are up"))
	require.NoError(t, mem.Remember(ctx, review, "   "))

	got, err := mem.Recall(ctx, review)
	require.NoError(t, err)
	assert.Equal(t, "Short-term Memory Context\n=========================\n\n • Summary: market statistics are up\n • Market statistics show growth.", got)

	got, err = mem.Recall(ctx, summarize)
	require.NoError(t, err)
	assert.Empty(t, got, "own and dependency outputs are already in context")

	other := NewRun(conn, "run-2", nil)
	got, err = other.Recall(ctx, review)
	require.NoError(t, err)
	assert.Empty(t, got, "short-term memory is scoped to a run")
}

func TestRun_LongTermAcrossRuns(t *testing.T) {
	t.Parallel()

	conn := openMemoryDB(t)
	g := backendtest.Graph(t, marketDoc)
	research, _ := g.Task("research")
	review, _ := g.Task("review")
	ctx := context.Background()

	long := NewLongTerm(conn, 0.6)
	first := NewRun(conn, "run-1", long)
	require.NoError(t, first.Remember(ctx, research, "collect market statistics: "+strings.Repeat("growth ", 20)))
	require.NoError(t, first.Remember(ctx, research, "market notes"))

	got, err := first.Recall(ctx, review)
	require.NoError(t, err)
	assert.NotContains(t, got, "Long-term Memory Context", "own run is served by short-term memory")

	second := NewRun(conn, "run-2", long)
	got, err = second.Recall(ctx, review)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, "Long-term Memory Context\n========================\n\n • collect market statistics: growth"), got)
	assert.NotContains(t, got, "market notes", "low quality output stays out of long-term memory")
}

func TestLongTerm_RememberThreshold(t *testing.T) {
	t.Parallel()

	conn := openMemoryDB(t)
	g := backendtest.Graph(t, marketDoc)
	research, _ := g.Task("research")
	ctx := context.Background()

	stored, err := NewLongTerm(conn, 0).Remember(ctx, "run-1", research, "market")
	require.NoError(t, err)
	assert.False(t, stored, "default threshold rejects a one word answer")

	stored, err = NewLongTerm(conn, 0.1).Remember(ctx, "run-1", research, "market")
	require.NoError(t, err)
	assert.True(t, stored)

	var n int
	require.NoError(t, conn.QueryRow(`SELECT COUNT(*) FROM long_mem`).Scan(&n))
	assert.Equal(t, 1, n)
}

func TestQuality(t *testing.T) {
	t.Parallel()

	g := backendtest.Graph(t, marketDoc)
	research, _ := g.Task("research")

	tests := []struct {
		name   string
		output string
		want   float64
	}{
		{name: "empty", output: "  ", want: 0},
		{name: "all keywords short", output: "collect market statistics", want: 0.575},
		{name: "one keyword", output: "market", want: 0.192},
		{name: "complete and relevant", output: "collect market statistics " + strings.Repeat("word ", 17), want: 1},
		{name: "long but off topic", output: strings.Repeat("word ", 20), want: 0.5},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.InDelta(t, tc.want, Quality(research, tc.output), 0.0005)
		})
	}
}

func TestBuildContext(t *testing.T) {
	t.Parallel()

	got := BuildContext(3, Section{Title: shortTermTitle, Hits: []string{"Hello  World", "hello world", "", "second", "third", "fourth"}})
	assert.Equal(t, "Short-term Memory Context\n=========================\n\n • Hello World\n • second\n • third", got)
	assert.Empty(t, BuildContext(3, Section{Title: shortTermTitle}))

	got = BuildContext(3,
		Section{Title: shortTermTitle, Hits: []string{"alpha"}},
		Section{Title: longTermTitle, Hits: []string{"ALPHA", "beta"}},
	)
	assert.Equal(t, "Short-term Memory Context\n=========================\n\n • alpha\n\nLong-term Memory Context\n========================\n\n • beta", got)
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "short", Truncate("short", 10))
	assert.Equal(t, "aaaa...", Truncate("aaaa bbbb cccc", 10))
	assert.Equal(t, "abcdefg...", Truncate("abcdefghijklmnop", 10))

	long := strings.Repeat("word ", 60)
	got := Truncate(strings.TrimSpace(long), MaxItemLen)
	assert.LessOrEqual(t, len(got), MaxItemLen)
	assert.True(t, strings.HasSuffix(got, "word..."))
}

func TestKeywords(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"review", "statistics", "summary"}, keywords("Review the statistics, the SUMMARY and review it"))
}
