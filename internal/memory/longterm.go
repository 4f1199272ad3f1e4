package memory

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/rolecall/internal/db"
	"github.com/metalagman/rolecall/internal/graph"
)

// DefaultThreshold is the quality an output needs to enter long-term memory.
const DefaultThreshold = 0.7

// completeWords is the output length scored as fully complete.
const completeWords = 20

// Quality scores an output between 0 and 1 as the mean of relevance and
// completeness. Relevance is the share of task keywords found in the output,
// 1 when the task has none. Completeness grows with the word count and
// saturates at completeWords.
func Quality(task *graph.Task, output string) float64 {
	words := strings.Fields(output)
	if len(words) == 0 {
		return 0
	}

	relevance := 1.0
	if kw := keywords(task.Spec.Description + " " + task.Spec.ExpectedOutput); len(kw) > 0 {
		lower := strings.ToLower(output)
		found := 0
		for _, w := range kw {
			if strings.Contains(lower, w) {
				found++
			}
		}
		relevance = float64(found) / float64(len(kw))
	}
	completeness := math.Min(1, float64(len(words))/completeWords)

	return math.Round((relevance+completeness)/2*1000) / 1000
}

// LongTerm keeps outputs across runs in the long_mem table.
type LongTerm struct {
	db        *sql.DB
	threshold float64
	now       func() time.Time
}

// NewLongTerm returns a long-term memory. A threshold <= 0 uses DefaultThreshold.
func NewLongTerm(conn *sql.DB, threshold float64) *LongTerm {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &LongTerm{db: conn, threshold: threshold, now: time.Now}
}

// Remember stores output when its quality reaches the threshold.
func (m *LongTerm) Remember(ctx context.Context, runID string, task *graph.Task, output string) (bool, error) {
	score := Quality(task, output)
	logger := log.With().Str("task", task.Key).Float64("quality", score).Logger()
	if score < m.threshold {
		logger.Debug().Float64("threshold", m.threshold).Msg("memory: below long-term threshold")
		return false, nil
	}

	agent := ""
	if task.Agent != nil {
		agent = task.Agent.Key
	}
	if _, err := m.db.ExecContext(ctx, `INSERT INTO long_mem(run_id, task_key, agent, content, quality, created_at) VALUES(?, ?, ?, ?, ?, ?)`,
		runID, task.Key, agent, output, score, m.now().UTC().Format(db.TimeLayout)); err != nil {
		return false, fmt.Errorf("store long-term memory: %w", err)
	}
	logger.Debug().Msg("memory: stored long-term output")
	return true, nil
}

// search returns outputs of other runs that share words with the task.
func (m *LongTerm) search(ctx context.Context, runID string, task *graph.Task) ([]string, error) {
	hits, err := searchTable(ctx, m.db, "long_mem", "run_id<>?", runID, task, nil)
	if err != nil {
		return nil, fmt.Errorf("search long-term memory: %w", err)
	}
	return hits, nil
}

// Run combines the short-term memory of one run with long-term memory.
type Run struct {
	runID string
	short *shortTerm
	long  *LongTerm
}

// NewRun returns the memory of one run. A nil long disables long-term memory.
func NewRun(conn *sql.DB, runID string, long *LongTerm) *Run {
	return &Run{runID: runID, short: newShortTerm(conn, runID), long: long}
}

// Remember stores output in short-term memory and, when it scores high
// enough, in long-term memory.
func (m *Run) Remember(ctx context.Context, task *graph.Task, output string) error {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	if err := m.short.remember(ctx, task, output); err != nil {
		return err
	}
	if m.long == nil {
		return nil
	}
	_, err := m.long.Remember(ctx, m.runID, task, output)
	return err
}

// Recall merges short-term and long-term hits into one context block.
func (m *Run) Recall(ctx context.Context, task *graph.Task) (string, error) {
	short, err := m.short.search(ctx, task)
	if err != nil {
		return "", err
	}
	sections := []Section{{Title: shortTermTitle, Hits: short}}
	if m.long != nil {
		long, err := m.long.search(ctx, m.runID, task)
		if err != nil {
			return "", err
		}
		sections = append(sections, Section{Title: longTermTitle, Hits: long})
	}
	return BuildContext(MaxItems, sections...), nil
}
