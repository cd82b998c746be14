package types

import (
	"fmt"
	"maps"
	"time"
)

// TestStatus represents the outcome of a single test
type TestStatus string

const (
	TestStatusPassed            TestStatus = "pass"
	TestStatusFailure           TestStatus = "fail"
	TestStatusAssumptionFailure TestStatus = "assumption_failure"
	TestStatusIgnored           TestStatus = "ignored"
	TestStatusIncomplete        TestStatus = "incomplete"
)

// AllTestStatuses lists every status in reporting order.
var AllTestStatuses = []TestStatus{
	TestStatusPassed,
	TestStatusFailure,
	TestStatusAssumptionFailure,
	TestStatusIgnored,
	TestStatusIncomplete,
}

// TestDescription identifies a test by class (or module) and name.
type TestDescription struct {
	ClassName string
	TestName  string
}

func NewTestDescription(className, testName string) TestDescription {
	return TestDescription{ClassName: className, TestName: testName}
}

func (d TestDescription) String() string {
	return fmt.Sprintf("%s#%s", d.ClassName, d.TestName)
}

// TestResult holds the recorded outcome of one test.
type TestResult struct {
	Status     TestStatus
	StackTrace string
	Metrics    map[string]string
	StartTime  time.Time
	EndTime    time.Time
}

// Duration returns the wall time of the test, or zero if it never ended.
func (r *TestResult) Duration() time.Duration {
	if r.EndTime.IsZero() || r.StartTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// Clone returns a deep copy of the result.
func (r *TestResult) Clone() *TestResult {
	c := *r
	c.Metrics = maps.Clone(r.Metrics)
	return &c
}

// TestSummary is an optional summary published by a listener at the end of an
// invocation, for example a link to an external results page.
type TestSummary struct {
	Source     string
	SummaryURL string
	KeyValues  map[string]string
}
