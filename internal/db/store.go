package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/metalagman/rolecall/internal/report"
)

// ErrRunNotFound is returned by LoadReport for unknown run ids.
var ErrRunNotFound = errors.New("run not found")

// TimeLayout is the fixed-width UTC format of stored timestamps. Stored
// values sort lexically in time order.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store persists execution reports.
type Store struct {
	db *sql.DB
}

// NewStore creates a store on an opened database.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database handle.
func (s *Store) DB() *sql.DB {
	return s.db
}

// RunSummary is one row of the run history.
type RunSummary struct {
	RunID      string
	CreatedAt  time.Time
	FinishedAt time.Time
	Topic      string
	Backend    string
	Mode       string
	Status     string
	Tasks      int
}

// SaveReport writes the run and its records in one transaction.
// Saving the same run id twice replaces the earlier copy.
func (s *Store) SaveReport(ctx context.Context, rep *report.ExecutionReport) error {
	if rep == nil || rep.RunID == "" {
		return fmt.Errorf("save report: run id is required")
	}

	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin save report: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, rep.RunID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("replace run: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO runs(run_id, created_at, finished_at, topic, backend, mode, status)
		VALUES(?, ?, ?, ?, ?, ?, ?)`,
		rep.RunID, formatTime(rep.StartedAt), formatTime(rep.FinishedAt), rep.Topic, rep.Backend, rep.Mode, rep.Status()); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("insert run: %w", err)
	}
	for _, rec := range rep.Records {
		if _, err := tx.ExecContext(ctx, `INSERT INTO task_results(run_id, seq, task_key, role_key, status, output, error, duration_ms, executed_by)
			VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rep.RunID, rec.Seq, rec.TaskKey, rec.RoleKey, string(rec.Status),
			nullableString(rec.Output), nullableString(rec.Error), rec.Duration.Milliseconds(), nullableString(rec.ExecutedBy)); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert task result %q: %w", rec.TaskKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit save report: %w", err)
	}
	return nil
}

// ListRuns returns the newest runs first. limit <= 0 means all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT r.run_id, r.created_at, r.finished_at, r.topic, r.backend, r.mode, r.status,
			(SELECT COUNT(*) FROM task_results t WHERE t.run_id = r.run_id)
		FROM runs r ORDER BY r.created_at DESC, r.run_id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []RunSummary
	for rows.Next() {
		var (
			sum               RunSummary
			created, finished string
		)
		if err := rows.Scan(&sum.RunID, &created, &finished, &sum.Topic, &sum.Backend, &sum.Mode, &sum.Status, &sum.Tasks); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		sum.CreatedAt = parseTime(created)
		sum.FinishedAt = parseTime(finished)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read runs: %w", err)
	}
	return out, nil
}

// LoadReport rebuilds a stored report. Record errors come back as text only.
func (s *Store) LoadReport(ctx context.Context, runID string) (*report.ExecutionReport, error) {
	rep := &report.ExecutionReport{RunID: runID}
	var created, finished string
	row := s.db.QueryRowContext(ctx, `SELECT created_at, finished_at, topic, backend, mode FROM runs WHERE run_id=?`, runID)
	if err := row.Scan(&created, &finished, &rep.Topic, &rep.Backend, &rep.Mode); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
		}
		return nil, fmt.Errorf("read run: %w", err)
	}
	rep.StartedAt = parseTime(created)
	rep.FinishedAt = parseTime(finished)

	rows, err := s.db.QueryContext(ctx, `SELECT seq, task_key, role_key, status, output, error, duration_ms, executed_by
		FROM task_results WHERE run_id=? ORDER BY seq`, runID)
	if err != nil {
		return nil, fmt.Errorf("query task results: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			rec                       report.Record
			status                    string
			output, errText, executor sql.NullString
			durationMS                int64
		)
		if err := rows.Scan(&rec.Seq, &rec.TaskKey, &rec.RoleKey, &status, &output, &errText, &durationMS, &executor); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		rec.Status = report.Status(status)
		rec.Output = output.String
		rec.Error = errText.String
		rec.ExecutedBy = executor.String
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rep.Records = append(rep.Records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read task results: %w", err)
	}
	return rep, nil
}

// DeleteRun removes a run and its records. It reports whether a run existed.
func (s *Store) DeleteRun(ctx context.Context, runID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id=?`, runID)
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete run: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM short_mem WHERE run_id=?`, runID); err != nil {
		return false, fmt.Errorf("delete run memory: %w", err)
	}
	return n > 0, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		t = time.Now()
	}
	return t.UTC().Format(TimeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}
