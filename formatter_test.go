package harness

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

func collect(t *testing.T, fn func(l *result.CollectingListener)) *result.CollectingListener {
	t.Helper()
	l := result.NewCollectingListener()
	l.InvocationStarted(types.NewInvocationContext())
	fn(l)
	l.InvocationEnded(1500 * time.Millisecond)
	return l
}

func run(l result.InvocationListener, name string, failing ...string) {
	tests := []string{"a", "b", "c"}
	l.TestRunStarted(name, len(tests))
	for _, n := range tests {
		d := types.NewTestDescription(name, n)
		l.TestStarted(d)
		for _, f := range failing {
			if f == n {
				l.TestFailed(d, n+" failed\nstack")
			}
		}
		l.TestEnded(d, map[string]string{})
	}
	l.TestRunEnded(time.Second, map[string]string{})
}

func TestRunSummary_Status(t *testing.T) {
	tests := []struct {
		name   string
		events func(l *result.CollectingListener)
		jobs   []JobResult
		status string
	}{
		{
			name:   "passing",
			events: func(l *result.CollectingListener) { run(l, "unit") },
			status: StatusPass,
		},
		{
			name:   "no runs",
			events: func(l *result.CollectingListener) {},
			status: StatusNone,
		},
		{
			name:   "failed test",
			events: func(l *result.CollectingListener) { run(l, "unit", "b") },
			status: StatusFail,
		},
		{
			name: "run failure",
			events: func(l *result.CollectingListener) {
				l.TestRunStarted("unit", 0)
				l.TestRunFailed("crashed")
				l.TestRunEnded(0, map[string]string{})
			},
			status: StatusFail,
		},
		{
			name:   "invocation failure",
			events: func(l *result.CollectingListener) { l.InvocationFailed(errors.New("setup failed")) },
			status: StatusFail,
		},
		{
			name:   "failed job",
			events: func(l *result.CollectingListener) { run(l, "unit") },
			jobs:   []JobResult{{Kind: "shard", Config: "cfg", Err: errors.New("device lost")}},
			status: StatusFail,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewRunSummary("cfg", collect(t, tt.events), tt.jobs)
			assert.Equal(t, tt.status, s.Status())
			assert.NotEmpty(t, s.InvocationID)
		})
	}
}

func TestRunSummary_Counts(t *testing.T) {
	l := collect(t, func(l *result.CollectingListener) {
		run(l, "unit", "a")
		run(l, "integration")
	})
	s := NewRunSummary("cfg", l, nil)
	c := s.Counts()
	assert.Equal(t, 5, c[types.TestStatusPassed])
	assert.Equal(t, 1, c[types.TestStatusFailure])
	assert.Equal(t, 6, total(c))
	assert.Equal(t, 1500*time.Millisecond, s.Duration)
	assert.Contains(t, s.String(), "cfg: FAIL in 1.5s (runs: 2, passed: 5, failed: 1")
}

func TestConsoleResultFormatter_FormatResults(t *testing.T) {
	l := collect(t, func(l *result.CollectingListener) {
		run(l, "unit", "b")
	})
	var buf bytes.Buffer
	f := NewConsoleResultFormatter(testLogger(), &buf)
	require.NoError(t, f.FormatResults(NewRunSummary("cfg", l, nil)))

	out := buf.String()
	assert.Contains(t, out, "Test Harness Results: cfg (1.5s)")
	assert.Contains(t, out, "unit#b")
	assert.Contains(t, out, "b failed")
	assert.NotContains(t, out, "stack")
	assert.NotContains(t, out, "unit#a")
	assert.Contains(t, out, "TOTAL")
}

func TestConsoleResultFormatter_EmptyResult(t *testing.T) {
	var buf bytes.Buffer
	f := NewConsoleResultFormatter(testLogger(), &buf)
	require.NoError(t, f.FormatResults(&RunSummary{Config: "empty"}))
	assert.Contains(t, buf.String(), StatusNone)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0.0s", formatDuration(0))
	assert.Equal(t, "1.5s", formatDuration(1500*time.Millisecond))
	assert.Equal(t, "62.0s", formatDuration(62*time.Second))
}
