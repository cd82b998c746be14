package result

import (
	"sync"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// CollectingListener keeps every run result in memory, in the order the runs
// were first started. It is safe for concurrent use.
type CollectingListener struct {
	mu            sync.Mutex
	ictx          *types.InvocationContext
	runs          map[string]*TestRunResult
	order         []string
	current       *TestRunResult
	invocationErr error
	elapsed       time.Duration
	ended         bool
	dirty         bool
	counts        map[types.TestStatus]int
	total         int
	peerSummaries []*types.TestSummary
	savedLogs     []types.LogFile
	saver         LogSaver
}

var (
	_ InvocationListener = (*CollectingListener)(nil)
	_ SummaryConsumer    = (*CollectingListener)(nil)
	_ LogSaverListener   = (*CollectingListener)(nil)
)

func NewCollectingListener() *CollectingListener {
	return &CollectingListener{
		runs: make(map[string]*TestRunResult),
	}
}

func (c *CollectingListener) InvocationStarted(ictx *types.InvocationContext) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ictx = ictx
}

func (c *CollectingListener) InvocationFailed(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invocationErr = err
}

func (c *CollectingListener) InvocationEnded(elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.elapsed = elapsed
	c.ended = true
}

func (c *CollectingListener) TestRunStarted(name string, testCount int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[name]
	if !ok {
		run = NewTestRunResult(name)
		c.runs[name] = run
		c.order = append(c.order, name)
	}
	run.testRunStarted(testCount)
	c.current = run
	c.dirty = true
}

// run returns the current run, creating an unnamed one for events that arrive
// outside of a run.
func (c *CollectingListener) run() *TestRunResult {
	if c.current == nil {
		c.current = NewTestRunResult("")
		c.runs[""] = c.current
		c.order = append(c.order, "")
	}
	c.dirty = true
	return c.current
}

func (c *CollectingListener) TestStarted(test types.TestDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().testStarted(test)
}

func (c *CollectingListener) TestFailed(test types.TestDescription, trace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().setStatus(test, types.TestStatusFailure, trace)
}

func (c *CollectingListener) TestAssumptionFailure(test types.TestDescription, trace string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().setStatus(test, types.TestStatusAssumptionFailure, trace)
}

func (c *CollectingListener) TestIgnored(test types.TestDescription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().setStatus(test, types.TestStatusIgnored, "")
}

func (c *CollectingListener) TestEnded(test types.TestDescription, testMetrics map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().testEnded(test, testMetrics)
}

func (c *CollectingListener) TestRunFailed(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().testRunFailed(message)
}

func (c *CollectingListener) TestRunEnded(elapsed time.Duration, runMetrics map[string]string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.run().testRunEnded(elapsed, runMetrics)
}

func (c *CollectingListener) TestLog(string, types.LogDataType, types.StreamSource) {}

func (c *CollectingListener) SetLogSaver(saver LogSaver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.saver = saver
}

func (c *CollectingListener) TestLogSaved(_ string, _ types.LogDataType, _ types.StreamSource, file types.LogFile) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.savedLogs = append(c.savedLogs, file)
}

func (c *CollectingListener) PutSummary(summaries []*types.TestSummary) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peerSummaries = append(c.peerSummaries, summaries...)
}

// InvocationContext returns the context seen at InvocationStarted.
func (c *CollectingListener) InvocationContext() *types.InvocationContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ictx
}

func (c *CollectingListener) InvocationError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.invocationErr
}

func (c *CollectingListener) InvocationEndedCalled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ended
}

func (c *CollectingListener) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.elapsed
}

// RunResults returns copies of every run, in first-start order.
func (c *CollectingListener) RunResults() []*TestRunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*TestRunResult, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, c.runs[name].Clone())
	}
	return out
}

// CurrentRun returns a copy of the run that is receiving events.
func (c *CollectingListener) CurrentRun() *TestRunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current == nil {
		return nil
	}
	return c.current.Clone()
}

func (c *CollectingListener) RunResult(name string) (*TestRunResult, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	run, ok := c.runs[name]
	if !ok {
		return nil, false
	}
	return run.Clone(), true
}

func (c *CollectingListener) recount() {
	if !c.dirty && c.counts != nil {
		return
	}
	c.counts = make(map[types.TestStatus]int, len(types.AllTestStatuses))
	c.total = 0
	for _, run := range c.runs {
		for _, status := range types.AllTestStatuses {
			c.counts[status] += run.NumTestsInState(status)
		}
		c.total += run.NumTests()
	}
	c.dirty = false
}

// NumTestsInState returns the number of tests across all runs with the given
// status. Counts are cached until the next event.
func (c *CollectingListener) NumTestsInState(status types.TestStatus) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recount()
	return c.counts[status]
}

func (c *CollectingListener) NumTotalTests() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recount()
	return c.total
}

func (c *CollectingListener) HasFailedTests() bool {
	return c.NumTestsInState(types.TestStatusFailure) > 0
}

// HasRunFailures reports whether any run recorded a run failure.
func (c *CollectingListener) HasRunFailures() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, run := range c.runs {
		if run.IsRunFailure() {
			return true
		}
	}
	return false
}

func (c *CollectingListener) PeerSummaries() []*types.TestSummary {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*types.TestSummary(nil), c.peerSummaries...)
}

func (c *CollectingListener) SavedLogs() []types.LogFile {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.LogFile(nil), c.savedLogs...)
}
