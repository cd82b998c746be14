package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
)

func TestErrorTypes(t *testing.T) {
	cause := errors.New("no such config")
	rt := NewRuntimeError(cause)
	assert.Equal(t, "runtime error: no such config", rt.Error())
	assert.ErrorIs(t, rt, cause)
	assert.True(t, IsRuntimeError(fmt.Errorf("start: %w", rt)))
	assert.False(t, IsTestFailureError(rt))
	assert.Same(t, rt, NewRuntimeError(rt))

	tf := NewTestFailureError(&RunSummary{Config: "smoke", Err: errors.New("boom")})
	assert.Contains(t, tf.Error(), "test failure: smoke: FAIL")
	assert.True(t, IsTestFailureError(tf))
	assert.False(t, IsRuntimeError(tf))
	assert.Equal(t, "test failure", NewTestFailureError(nil).Error())

	assert.False(t, IsRuntimeError(nil))
	assert.False(t, IsTestFailureError(nil))
}

func TestErrorTypes_ExitCodes(t *testing.T) {
	var exit cli.ExitCoder
	require.True(t, errors.As(fmt.Errorf("start: %w", NewRuntimeError(errors.New("x"))), &exit))
	assert.Equal(t, exitcodes.RuntimeErr, exit.ExitCode())

	require.True(t, errors.As(NewTestFailureError(nil), &exit))
	assert.Equal(t, exitcodes.TestFailure, exit.ExitCode())
}
