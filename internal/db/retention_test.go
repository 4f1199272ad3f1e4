package db

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_PruneRuns(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 6, 10, 12, 0, 0, 0, time.UTC)
	seed := func(t *testing.T) *Store {
		t.Helper()
		store := openTestStore(t)
		for i := range 5 {
			started := now.Add(-time.Duration(i) * 24 * time.Hour).Add(-time.Hour)
			require.NoError(t, store.SaveReport(context.Background(), sampleReport(fmt.Sprintf("run-%d", i), started)))
		}
		return store
	}

	tests := []struct {
		name    string
		policy  RetentionPolicy
		dryRun  bool
		want    PruneResult
		remains []string
	}{
		{name: "disabled", policy: RetentionPolicy{}, want: PruneResult{}, remains: []string{"run-0", "run-1", "run-2", "run-3", "run-4"}},
		{name: "keep last", policy: RetentionPolicy{KeepLast: 2}, want: PruneResult{Considered: 5, Kept: 2, Deleted: 3}, remains: []string{"run-0", "run-1"}},
		{name: "keep days", policy: RetentionPolicy{KeepDays: 3}, want: PruneResult{Considered: 5, Kept: 3, Deleted: 2}, remains: []string{"run-0", "run-1", "run-2"}},
		{name: "either rule keeps", policy: RetentionPolicy{KeepLast: 4, KeepDays: 1}, want: PruneResult{Considered: 5, Kept: 4, Deleted: 1}, remains: []string{"run-0", "run-1", "run-2", "run-3"}},
		{name: "dry run", policy: RetentionPolicy{KeepLast: 1}, dryRun: true, want: PruneResult{Considered: 5, Kept: 1, Deleted: 4}, remains: []string{"run-0", "run-1", "run-2", "run-3", "run-4"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			store := seed(t)
			got, err := store.PruneRuns(context.Background(), tc.policy, now, tc.dryRun)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)

			runs, err := store.ListRuns(context.Background(), 0)
			require.NoError(t, err)
			ids := make([]string, 0, len(runs))
			for _, r := range runs {
				ids = append(ids, r.RunID)
			}
			assert.Equal(t, tc.remains, ids)
		})
	}
}

func TestStore_PruneRunsOrdersWithinSecond(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	ctx := context.Background()
	older := time.Date(2026, 6, 10, 10, 0, 5, 120_000_000, time.UTC)
	newer := time.Date(2026, 6, 10, 10, 0, 5, 123_456_789, time.UTC)
	require.NoError(t, store.SaveReport(ctx, sampleReport("older", older)))
	require.NoError(t, store.SaveReport(ctx, sampleReport("newer", newer)))

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "newer", runs[0].RunID)
	assert.True(t, runs[0].CreatedAt.Equal(newer))

	res, err := store.PruneRuns(ctx, RetentionPolicy{KeepLast: 1}, newer.Add(time.Minute), false)
	require.NoError(t, err)
	assert.Equal(t, PruneResult{Considered: 2, Kept: 1, Deleted: 1}, res)

	runs, err = store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "newer", runs[0].RunID)
}
