package report

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for errors.Is checks on task records.
var (
	ErrTaskExecution    = errors.New("task execution failed")
	ErrTaskTimeout      = errors.New("task timed out")
	ErrTaskCancelled    = errors.New("task cancelled")
	ErrDependencyFailed = errors.New("dependency did not complete")
)

// TaskExecutionError wraps a provider or tool failure of one task.
type TaskExecutionError struct {
	TaskKey string
	Err     error
}

func (e *TaskExecutionError) Error() string {
	return fmt.Sprintf("task %q: %v", e.TaskKey, e.Err)
}

func (e *TaskExecutionError) Unwrap() []error {
	return []error{ErrTaskExecution, e.Err}
}

// TimeoutError reports a task that exceeded its timeout.
type TimeoutError struct {
	TaskKey string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("task %q: timed out after %s", e.TaskKey, e.Timeout)
}

func (e *TimeoutError) Unwrap() error { return ErrTaskTimeout }

// CancelledError reports a task that was not started because the run was cancelled.
type CancelledError struct {
	TaskKey string
	Cause   error
}

func (e *CancelledError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("task %q: cancelled", e.TaskKey)
	}
	return fmt.Sprintf("task %q: cancelled: %v", e.TaskKey, e.Cause)
}

func (e *CancelledError) Unwrap() error { return ErrTaskCancelled }

// SkippedError reports a task that was not attempted because a dependency did not complete.
type SkippedError struct {
	TaskKey    string
	Dependency string
}

func (e *SkippedError) Error() string {
	return fmt.Sprintf("task %q: skipped, dependency %q did not complete", e.TaskKey, e.Dependency)
}

func (e *SkippedError) Unwrap() error { return ErrDependencyFailed }
