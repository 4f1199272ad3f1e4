package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// RetentionPolicy selects the runs to keep. A run is kept when either rule keeps it.
type RetentionPolicy struct {
	KeepLast int `mapstructure:"keep_last"`
	KeepDays int `mapstructure:"keep_days"`
}

// Enabled reports whether the policy prunes anything.
func (p RetentionPolicy) Enabled() bool {
	return p.KeepLast > 0 || p.KeepDays > 0
}

// PruneResult summarizes a prune.
type PruneResult struct {
	Considered int
	Kept       int
	Deleted    int
}

// PruneRuns deletes runs the policy does not keep, newest first.
// With dryRun set nothing is deleted; Deleted counts what would be.
func (s *Store) PruneRuns(ctx context.Context, policy RetentionPolicy, now time.Time, dryRun bool) (PruneResult, error) {
	if !policy.Enabled() {
		return PruneResult{}, nil
	}
	var cutoff time.Time
	if policy.KeepDays > 0 {
		cutoff = now.UTC().Add(-time.Duration(policy.KeepDays) * 24 * time.Hour)
	}

	runs, err := s.ListRuns(ctx, 0)
	if err != nil {
		return PruneResult{}, err
	}

	res := PruneResult{Considered: len(runs)}
	for idx, run := range runs {
		keep := policy.KeepLast > 0 && idx < policy.KeepLast
		if !keep && policy.KeepDays > 0 {
			keep = run.CreatedAt.IsZero() || run.CreatedAt.After(cutoff)
		}
		if keep {
			res.Kept++
			continue
		}
		if !dryRun {
			if _, err := s.DeleteRun(ctx, run.RunID); err != nil {
				return res, fmt.Errorf("prune run %s: %w", run.RunID, err)
			}
			log.Debug().Str("run_id", run.RunID).Msg("db: pruned run")
		}
		res.Deleted++
	}
	return res, nil
}
