// Package report holds the normalized outcome of a workflow run.
package report

import (
	"time"

	"github.com/rs/zerolog"
)

// Status is the outcome of a single task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusError     Status = "error"
	StatusSkipped   Status = "skipped"
	StatusCancelled Status = "cancelled"
	StatusTimeout   Status = "timeout"
)

// Statuses lists every status in display order.
var Statuses = []Status{StatusCompleted, StatusError, StatusTimeout, StatusSkipped, StatusCancelled}

// Record is the outcome of one task.
type Record struct {
	Seq     int    `json:"seq"`
	TaskKey string `json:"task"`
	RoleKey string `json:"role"`
	Status  Status `json:"status"`
	Output  string `json:"output,omitempty"`
	// Err is the typed error behind a non-completed record. It is not persisted.
	Err      error         `json:"-"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
	// ExecutedBy names the role that produced the output when it differs from RoleKey.
	ExecutedBy string `json:"executed_by,omitempty"`
}

// Completed reports whether the task produced an output.
func (r Record) Completed() bool {
	return r.Status == StatusCompleted
}

// MarshalZerologObject implements zerolog.LogObjectMarshaler.
func (r Record) MarshalZerologObject(e *zerolog.Event) {
	e.Str("task", r.TaskKey).
		Str("role", r.RoleKey).
		Str("status", string(r.Status)).
		Dur("duration", r.Duration)
	if r.ExecutedBy != "" {
		e.Str("executed_by", r.ExecutedBy)
	}
	if r.Error != "" {
		e.Str("error", r.Error)
	}
}

// ExecutionReport is the ordered list of task records of one run.
type ExecutionReport struct {
	RunID      string    `json:"run_id"`
	Topic      string    `json:"topic,omitempty"`
	Backend    string    `json:"backend"`
	Mode       string    `json:"mode"`
	Records    []Record  `json:"records"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

// Add appends a record and assigns its sequence number.
func (r *ExecutionReport) Add(rec Record) Record {
	rec.Seq = len(r.Records) + 1
	if rec.Err != nil && rec.Error == "" {
		rec.Error = rec.Err.Error()
	}
	r.Records = append(r.Records, rec)
	return rec
}

// Record returns the record of a task.
func (r *ExecutionReport) Record(taskKey string) (Record, bool) {
	for _, rec := range r.Records {
		if rec.TaskKey == taskKey {
			return rec, true
		}
	}
	return Record{}, false
}

// TaskKeys returns task keys in execution order.
func (r *ExecutionReport) TaskKeys() []string {
	keys := make([]string, 0, len(r.Records))
	for _, rec := range r.Records {
		keys = append(keys, rec.TaskKey)
	}
	return keys
}

// Counts returns the number of records per status.
func (r *ExecutionReport) Counts() map[Status]int {
	counts := make(map[Status]int, len(Statuses))
	for _, rec := range r.Records {
		counts[rec.Status]++
	}
	return counts
}

// Succeeded reports whether every task completed.
func (r *ExecutionReport) Succeeded() bool {
	for _, rec := range r.Records {
		if !rec.Completed() {
			return false
		}
	}
	return true
}

// Status summarizes the run: completed, cancelled or failed.
func (r *ExecutionReport) Status() string {
	if r.Succeeded() {
		return "completed"
	}
	for _, rec := range r.Records {
		if rec.Status == StatusCancelled {
			return "cancelled"
		}
	}
	return "failed"
}

// Duration is the wall time of the run.
func (r *ExecutionReport) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
