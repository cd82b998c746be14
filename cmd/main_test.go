package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	harness "github.com/ethereum-optimism/infra/op-harness"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/flags"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"nil", nil, exitcodes.Success},
		{"test failure", harness.NewTestFailureError(&harness.RunSummary{Config: "smoke"}), exitcodes.TestFailure},
		{"runtime", harness.NewRuntimeError(errors.New("bad config")), exitcodes.RuntimeErr},
		{"wrapped runtime", fmt.Errorf("start: %w", harness.NewRuntimeError(errors.New("x"))), exitcodes.RuntimeErr},
		{"wrapped test failure", fmt.Errorf("run: %w", harness.NewTestFailureError(nil)), exitcodes.TestFailure},
		{"exit coder", cli.Exit("boom", exitcodes.RuntimeErr), exitcodes.RuntimeErr},
		{"other", errors.New("unknown"), exitcodes.TestFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, exitCode(tt.err))
		})
	}
}

func TestNewApp(t *testing.T) {
	app := newApp()
	require.Equal(t, "op-harness", app.Name)
	names := make(map[string]bool)
	for _, f := range app.Flags {
		names[f.Names()[0]] = true
	}
	assert.True(t, names[flags.Config.Name])
	assert.True(t, names[flags.RunInterval.Name])
	assert.True(t, names[flags.HealthzAddr.Name])
}
