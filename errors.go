package harness

import (
	"errors"
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
)

var (
	_ cli.ExitCoder = (*RuntimeError)(nil)
	_ cli.ExitCoder = (*TestFailureError)(nil)
)

// RuntimeError is a failure of the harness itself, such as an unresolvable
// configuration or a fatal host error.
type RuntimeError struct {
	Err error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("runtime error: %v", e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

func (e *RuntimeError) ExitCode() int {
	return exitcodes.RuntimeErr
}

// NewRuntimeError wraps err, leaving an existing RuntimeError as is.
func NewRuntimeError(err error) *RuntimeError {
	if rt, ok := err.(*RuntimeError); ok {
		return rt
	}
	return &RuntimeError{Err: err}
}

// IsRuntimeError checks if the error is or wraps a RuntimeError
func IsRuntimeError(err error) bool {
	var runtimeErr *RuntimeError
	return err != nil && errors.As(err, &runtimeErr)
}

// TestFailureError means a run-once invocation completed with failed tests or
// incomplete modules. Summary is the run it ended with.
type TestFailureError struct {
	Summary *RunSummary
}

func (e *TestFailureError) Error() string {
	if e.Summary == nil {
		return "test failure"
	}
	return fmt.Sprintf("test failure: %s", e.Summary.String())
}

func (e *TestFailureError) ExitCode() int {
	return exitcodes.TestFailure
}

func NewTestFailureError(summary *RunSummary) *TestFailureError {
	return &TestFailureError{Summary: summary}
}

// IsTestFailureError checks if the error is or wraps a TestFailureError
func IsTestFailureError(err error) bool {
	var testErr *TestFailureError
	return err != nil && errors.As(err, &testErr)
}
