package result

import (
	"maps"
	"strings"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// TestRunResult aggregates the results of one named test run. A run name that
// is started again appends to the same record.
type TestRunResult struct {
	name          string
	expected      int
	order         []types.TestDescription
	tests         map[types.TestDescription]*types.TestResult
	runFailures   []string
	elapsed       time.Duration
	metrics       map[string]string
	complete      bool
	startedAt     time.Time
	statusCounts  map[types.TestStatus]int
	countsChanged bool
}

func NewTestRunResult(name string) *TestRunResult {
	return &TestRunResult{
		name:    name,
		tests:   make(map[types.TestDescription]*types.TestResult),
		metrics: make(map[string]string),
	}
}

func (r *TestRunResult) Name() string {
	return r.name
}

// ExpectedTestCount is the sum of the counts announced by every
// TestRunStarted for this run.
func (r *TestRunResult) ExpectedTestCount() int {
	return r.expected
}

// NumTests returns the number of tests that were started.
func (r *TestRunResult) NumTests() int {
	return len(r.order)
}

func (r *TestRunResult) NumTestsInState(status types.TestStatus) int {
	if r.countsChanged || r.statusCounts == nil {
		r.statusCounts = make(map[types.TestStatus]int, len(types.AllTestStatuses))
		for _, res := range r.tests {
			r.statusCounts[res.Status]++
		}
		r.countsChanged = false
	}
	return r.statusCounts[status]
}

// NumCompleteTests counts tests that are no longer incomplete.
func (r *TestRunResult) NumCompleteTests() int {
	return r.NumTests() - r.NumTestsInState(types.TestStatusIncomplete)
}

func (r *TestRunResult) HasFailedTests() bool {
	return r.NumTestsInState(types.TestStatusFailure) > 0
}

// Tests returns copies of the recorded results in start order.
func (r *TestRunResult) Tests() []types.TestDescription {
	out := make([]types.TestDescription, len(r.order))
	copy(out, r.order)
	return out
}

func (r *TestRunResult) TestResult(test types.TestDescription) (*types.TestResult, bool) {
	res, ok := r.tests[test]
	if !ok {
		return nil, false
	}
	return res.Clone(), true
}

func (r *TestRunResult) IsRunFailure() bool {
	return len(r.runFailures) > 0
}

func (r *TestRunResult) RunFailureMessage() string {
	return strings.Join(r.runFailures, "\n")
}

func (r *TestRunResult) IsRunComplete() bool {
	return r.complete
}

func (r *TestRunResult) Elapsed() time.Duration {
	return r.elapsed
}

func (r *TestRunResult) Metrics() map[string]string {
	return maps.Clone(r.metrics)
}

// Clone returns an independent copy of the run.
func (r *TestRunResult) Clone() *TestRunResult {
	c := &TestRunResult{
		name:          r.name,
		expected:      r.expected,
		order:         r.Tests(),
		tests:         make(map[types.TestDescription]*types.TestResult, len(r.tests)),
		runFailures:   append([]string(nil), r.runFailures...),
		elapsed:       r.elapsed,
		metrics:       maps.Clone(r.metrics),
		complete:      r.complete,
		startedAt:     r.startedAt,
		countsChanged: true,
	}
	for k, v := range r.tests {
		c.tests[k] = v.Clone()
	}
	return c
}

func (r *TestRunResult) testRunStarted(testCount int) {
	r.expected += testCount
	r.complete = false
	r.startedAt = time.Now()
}

func (r *TestRunResult) testStarted(test types.TestDescription) {
	if _, ok := r.tests[test]; !ok {
		r.order = append(r.order, test)
	}
	r.tests[test] = &types.TestResult{
		Status:    types.TestStatusIncomplete,
		StartTime: time.Now(),
	}
	r.countsChanged = true
}

func (r *TestRunResult) setStatus(test types.TestDescription, status types.TestStatus, trace string) {
	res, ok := r.tests[test]
	if !ok {
		r.testStarted(test)
		res = r.tests[test]
	}
	res.Status = status
	res.StackTrace = trace
	r.countsChanged = true
}

func (r *TestRunResult) testEnded(test types.TestDescription, testMetrics map[string]string) {
	res, ok := r.tests[test]
	if !ok {
		r.testStarted(test)
		res = r.tests[test]
	}
	if res.Status == types.TestStatusIncomplete {
		res.Status = types.TestStatusPassed
	}
	res.EndTime = time.Now()
	res.Metrics = maps.Clone(testMetrics)
	r.countsChanged = true
}

func (r *TestRunResult) testRunFailed(message string) {
	r.runFailures = append(r.runFailures, message)
}

func (r *TestRunResult) testRunEnded(elapsed time.Duration, runMetrics map[string]string) {
	r.elapsed += elapsed
	maps.Copy(r.metrics, runMetrics)
	r.complete = true
}
