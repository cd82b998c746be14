package result

import (
	"context"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// InvocationListener receives the lifecycle events of an invocation and of the
// test runs inside it. Events arrive sequentially from one goroutine.
type InvocationListener interface {
	InvocationStarted(ictx *types.InvocationContext)
	InvocationFailed(err error)
	InvocationEnded(elapsed time.Duration)

	TestRunStarted(name string, testCount int)
	TestStarted(test types.TestDescription)
	TestFailed(test types.TestDescription, trace string)
	TestAssumptionFailure(test types.TestDescription, trace string)
	TestIgnored(test types.TestDescription)
	TestEnded(test types.TestDescription, metrics map[string]string)
	TestRunFailed(message string)
	TestRunEnded(elapsed time.Duration, metrics map[string]string)

	// TestLog hands over a log stream. Listeners open their own reader from
	// src and must not retain it past the call.
	TestLog(name string, dataType types.LogDataType, src types.StreamSource)
}

// SummaryProvider is a listener that publishes a summary when the invocation
// ends.
type SummaryProvider interface {
	Summary() *types.TestSummary
}

// SummaryConsumer is a listener that wants the summaries of its peers.
type SummaryConsumer interface {
	PutSummary(summaries []*types.TestSummary)
}

// LogSaverListener is notified of where each log was persisted.
type LogSaverListener interface {
	SetLogSaver(saver LogSaver)
	TestLogSaved(name string, dataType types.LogDataType, src types.StreamSource, file types.LogFile)
}

// NopListener implements InvocationListener with no-ops. Embed it to handle
// only the events you care about.
type NopListener struct{}

var _ InvocationListener = NopListener{}

func (NopListener) InvocationStarted(*types.InvocationContext) {}
func (NopListener) InvocationFailed(error) {}
func (NopListener) InvocationEnded(time.Duration) {}
func (NopListener) TestRunStarted(string, int) {}
func (NopListener) TestStarted(types.TestDescription) {}
func (NopListener) TestFailed(types.TestDescription, string) {}
func (NopListener) TestAssumptionFailure(types.TestDescription, string) {}
func (NopListener) TestIgnored(types.TestDescription) {}
func (NopListener) TestEnded(types.TestDescription, map[string]string) {}
func (NopListener) TestRunFailed(string) {}
func (NopListener) TestRunEnded(time.Duration, map[string]string) {}
func (NopListener) TestLog(string, types.LogDataType, types.StreamSource) {}

// ResultStore persists and queries historical run records. The harness only
// consumes it; dashboards implement it.
type ResultStore interface {
	PutSummaries(ctx context.Context, invocationID string, summaries []*types.TestSummary) error
	Summaries(ctx context.Context, invocationID string) ([]*types.TestSummary, error)
}
