package report

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutionReport_AddAssignsSequenceAndError(t *testing.T) {
	t.Parallel()

	var rep ExecutionReport
	first := rep.Add(Record{TaskKey: "a", Status: StatusCompleted, Output: "ok"})
	second := rep.Add(Record{TaskKey: "b", Status: StatusError, Err: &TaskExecutionError{TaskKey: "b", Err: errors.New("boom")}})

	assert.Equal(t, 1, first.Seq)
	assert.Equal(t, 2, second.Seq)
	assert.Equal(t, `task "b": boom`, second.Error)
	assert.Equal(t, []string{"a", "b"}, rep.TaskKeys())

	rec, ok := rep.Record("b")
	require.True(t, ok)
	assert.ErrorIs(t, rec.Err, ErrTaskExecution)
}

func TestExecutionReport_Status(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		statuses []Status
		want     string
	}{
		{name: "empty", want: "completed"},
		{name: "all completed", statuses: []Status{StatusCompleted, StatusCompleted}, want: "completed"},
		{name: "error", statuses: []Status{StatusCompleted, StatusError, StatusSkipped}, want: "failed"},
		{name: "cancelled", statuses: []Status{StatusCompleted, StatusCancelled}, want: "cancelled"},
		{name: "timeout", statuses: []Status{StatusTimeout}, want: "failed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var rep ExecutionReport
			for i, s := range tc.statuses {
				rep.Add(Record{TaskKey: string(rune('a' + i)), Status: s})
			}
			assert.Equal(t, tc.want, rep.Status())
			assert.Equal(t, tc.want == "completed", rep.Succeeded())
		})
	}
}

func TestExecutionReport_Counts(t *testing.T) {
	t.Parallel()

	var rep ExecutionReport
	rep.Add(Record{TaskKey: "a", Status: StatusCompleted})
	rep.Add(Record{TaskKey: "b", Status: StatusSkipped})
	rep.Add(Record{TaskKey: "c", Status: StatusSkipped})

	counts := rep.Counts()
	assert.Equal(t, 1, counts[StatusCompleted])
	assert.Equal(t, 2, counts[StatusSkipped])
	assert.Zero(t, counts[StatusError])
}

func TestTaskErrors_UnwrapToSentinels(t *testing.T) {
	t.Parallel()

	cause := errors.New("provider down")
	assert.ErrorIs(t, &TaskExecutionError{TaskKey: "t", Err: cause}, ErrTaskExecution)
	assert.ErrorIs(t, &TaskExecutionError{TaskKey: "t", Err: cause}, cause)
	assert.ErrorIs(t, &TimeoutError{TaskKey: "t", Timeout: time.Second}, ErrTaskTimeout)
	assert.ErrorIs(t, &CancelledError{TaskKey: "t"}, ErrTaskCancelled)
	assert.ErrorIs(t, &SkippedError{TaskKey: "t", Dependency: "d"}, ErrDependencyFailed)
	assert.Equal(t, `task "t": timed out after 1s`, (&TimeoutError{TaskKey: "t", Timeout: time.Second}).Error())
}

func TestExecutionReport_Duration(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	rep := ExecutionReport{StartedAt: start}
	assert.Zero(t, rep.Duration())
	rep.FinishedAt = start.Add(3 * time.Second)
	assert.Equal(t, 3*time.Second, rep.Duration())
}
