// Package exitcodes defines the exit codes of op-harness.
//
// * Success (0): every invocation passed
// * TestFailure (1): a test or a test run failed
// * RuntimeErr (2): the harness itself failed, e.g. a bad configuration or a panic
package exitcodes

const (
	Success     = 0
	TestFailure = 1
	RuntimeErr  = 2
)
