// Package memory stores task outputs and recalls the relevant ones as extra
// context for later tasks. Short-term memory is scoped to one run; long-term
// memory keeps outputs that pass a quality threshold across runs.
package memory

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/metalagman/rolecall/internal/db"
	"github.com/metalagman/rolecall/internal/graph"
)

const (
	// MaxItems bounds the recalled outputs per task.
	MaxItems = 3
	// MaxItemLen is the length recalled outputs are cut to.
	MaxItemLen = 150

	shortTermTitle = "Short-term Memory Context"
	longTermTitle  = "Long-term Memory Context"
	// keywords shorter than this are ignored when matching.
	minKeywordLen = 4
	maxKeywords   = 8
)

// shortTerm is a run-scoped memory over the short_mem table.
type shortTerm struct {
	db    *sql.DB
	runID string
	now   func() time.Time
}

func newShortTerm(conn *sql.DB, runID string) *shortTerm {
	return &shortTerm{db: conn, runID: runID, now: time.Now}
}

func (m *shortTerm) remember(ctx context.Context, task *graph.Task, output string) error {
	if strings.TrimSpace(output) == "" {
		return nil
	}
	agent := ""
	if task.Agent != nil {
		agent = task.Agent.Key
	}
	if _, err := m.db.ExecContext(ctx, `INSERT INTO short_mem(run_id, task_key, agent, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		m.runID, task.Key, agent, output, m.now().UTC().Format(db.TimeLayout)); err != nil {
		return fmt.Errorf("store short-term memory: %w", err)
	}
	log.Debug().Str("task", task.Key).Str("agent", agent).Msg("memory: stored output")
	return nil
}

// search returns earlier outputs of the run that share words with the task
// description. Outputs of direct dependencies are left out since they are
// already part of the task context.
func (m *shortTerm) search(ctx context.Context, task *graph.Task) ([]string, error) {
	exclude := map[string]bool{task.Key: true}
	for _, dep := range task.Dependencies() {
		exclude[dep.Key] = true
	}
	hits, err := searchTable(ctx, m.db, "short_mem", "run_id=?", m.runID, task, exclude)
	if err != nil {
		return nil, fmt.Errorf("search short-term memory: %w", err)
	}
	return hits, nil
}

// searchTable returns contents of table rows matching scope and any keyword
// of the task, newest first. Rows of excluded task keys are skipped.
func searchTable(ctx context.Context, conn *sql.DB, table, scope string, scopeArg any, task *graph.Task, exclude map[string]bool) ([]string, error) {
	words := keywords(task.Spec.Description + " " + task.Spec.ExpectedOutput)
	if len(words) == 0 {
		return nil, nil
	}

	clauses := make([]string, 0, len(words))
	args := []any{scopeArg}
	for _, w := range words {
		clauses = append(clauses, "LOWER(content) LIKE ?")
		args = append(args, "%"+w+"%")
	}
	query := `SELECT task_key, content FROM ` + table + ` WHERE ` + scope + ` AND (` +
		strings.Join(clauses, " OR ") + `) ORDER BY id DESC`

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var hits []string
	for rows.Next() && len(hits) < MaxItems*4 {
		var key, content string
		if err := rows.Scan(&key, &content); err != nil {
			return nil, err
		}
		if exclude[key] {
			continue
		}
		hits = append(hits, content)
	}
	return hits, rows.Err()
}

// Section is one titled group of recalled outputs.
type Section struct {
	Title string
	Hits  []string
}

// BuildContext formats sections as titled bullet lists. Hits are whitespace
// normalized, cut at a word boundary and deduplicated across sections; each
// section keeps at most limit items and empty sections are left out.
func BuildContext(limit int, sections ...Section) string {
	seen := map[string]bool{}
	var lines []string
	for _, sec := range sections {
		var items []string
		for _, h := range sec.Hits {
			if len(items) >= limit {
				break
			}
			item := Truncate(strings.Join(strings.Fields(h), " "), MaxItemLen)
			if item == "" {
				continue
			}
			key := dedupKey(item)
			if seen[key] {
				continue
			}
			seen[key] = true
			items = append(items, item)
		}
		if len(items) == 0 {
			continue
		}

		if len(lines) > 0 {
			lines = append(lines, "")
		}
		lines = append(lines, sec.Title, strings.Repeat("=", len(sec.Title)), "")
		for _, item := range items {
			lines = append(lines, " • "+item)
		}
	}
	return strings.Join(lines, "\n")
}

// Truncate cuts s to at most limit bytes at a word boundary and appends "...".
func Truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := strings.LastIndex(s[:limit-3], " ")
	if cut <= 0 {
		cut = limit - 3
		for cut > 0 && !utf8Start(s[cut]) {
			cut--
		}
	}
	return s[:cut] + "..."
}

func utf8Start(b byte) bool {
	return b&0xC0 != 0x80
}

func dedupKey(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

func keywords(text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, f := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len([]rune(f)) < minKeywordLen || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
		if len(out) == maxKeywords {
			break
		}
	}
	return out
}
