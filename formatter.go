package harness

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Status of a whole command run.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
	StatusNone = "NO TESTS"
)

// RunSummary describes one command run for display.
type RunSummary struct {
	InvocationID string
	Config       string
	Duration     time.Duration
	Runs         []*result.TestRunResult
	// Err is the invocation failure, if any.
	Err error
	// Jobs are the invocations the scheduler ran for the command.
	Jobs []JobResult
}

// NewRunSummary collects what listener saw of a command run.
func NewRunSummary(configName string, listener *result.CollectingListener, jobs []JobResult) *RunSummary {
	s := &RunSummary{
		Config:   configName,
		Duration: listener.Elapsed(),
		Runs:     listener.RunResults(),
		Err:      listener.InvocationError(),
		Jobs:     jobs,
	}
	if ictx := listener.InvocationContext(); ictx != nil {
		s.InvocationID = ictx.InvocationID()
	}
	return s
}

// Counts totals the tests of every run per state.
func (s *RunSummary) Counts() map[types.TestStatus]int {
	out := make(map[types.TestStatus]int)
	for _, r := range s.Runs {
		for _, st := range types.AllTestStatuses {
			out[st] += r.NumTestsInState(st)
		}
	}
	return out
}

// Failed reports whether anything about the run failed.
func (s *RunSummary) Failed() bool {
	if s.Err != nil {
		return true
	}
	for _, j := range s.Jobs {
		if j.Err != nil {
			return true
		}
	}
	for _, r := range s.Runs {
		if r.IsRunFailure() || r.HasFailedTests() || r.NumTestsInState(types.TestStatusIncomplete) > 0 {
			return true
		}
	}
	return false
}

func (s *RunSummary) Status() string {
	switch {
	case s.Failed():
		return StatusFail
	case len(s.Runs) == 0:
		return StatusNone
	default:
		return StatusPass
	}
}

func (s *RunSummary) String() string {
	c := s.Counts()
	return fmt.Sprintf("%s: %s in %s (runs: %d, passed: %d, failed: %d, ignored: %d, incomplete: %d)",
		s.Config, s.Status(), formatDuration(s.Duration), len(s.Runs),
		c[types.TestStatusPassed], c[types.TestStatusFailure],
		c[types.TestStatusIgnored]+c[types.TestStatusAssumptionFailure], c[types.TestStatusIncomplete])
}

// ResultFormatter displays the results of a command run.
type ResultFormatter interface {
	FormatResults(summary *RunSummary) error
}

// ConsoleResultFormatter renders a results table.
type ConsoleResultFormatter struct {
	logger log.Logger
	out    io.Writer
}

// NewConsoleResultFormatter writes to out, or stdout when out is nil.
func NewConsoleResultFormatter(logger log.Logger, out io.Writer) *ConsoleResultFormatter {
	if out == nil {
		out = os.Stdout
	}
	return &ConsoleResultFormatter{logger: logger, out: out}
}

func (f *ConsoleResultFormatter) FormatResults(summary *RunSummary) error {
	f.logger.Info("Printing results...")
	t := table.NewWriter()
	t.SetOutputMirror(f.out)
	t.SetTitle(fmt.Sprintf("Test Harness Results: %s (%s)", summary.Config, formatDuration(summary.Duration)))

	t.AppendHeader(table.Row{
		"Run", "Duration", "Tests", "Passed", "Failed", "Ignored", "Incomplete", "Status", "Error",
	})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Run", WidthMax: 50, WidthMaxEnforcer: text.WrapSoft},
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Tests", Align: text.AlignRight},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Ignored", Align: text.AlignRight},
		{Name: "Incomplete", Align: text.AlignRight},
		{Name: "Error", WidthMax: 60, WidthMaxEnforcer: text.WrapSoft},
	})

	for _, r := range summary.Runs {
		t.AppendRow(table.Row{
			r.Name(),
			formatDuration(r.Elapsed()),
			r.NumTests(),
			r.NumTestsInState(types.TestStatusPassed),
			r.NumTestsInState(types.TestStatusFailure),
			r.NumTestsInState(types.TestStatusIgnored) + r.NumTestsInState(types.TestStatusAssumptionFailure),
			r.NumTestsInState(types.TestStatusIncomplete),
			runStatus(r),
			firstLine(r.RunFailureMessage()),
		})
		for _, test := range r.Tests() {
			tr, ok := r.TestResult(test)
			if !ok || tr.Status == types.TestStatusPassed {
				continue
			}
			t.AppendRow(table.Row{
				fmt.Sprintf("└─ %s", test.String()),
				formatDuration(tr.Duration()),
				"", "", "", "", "",
				strings.ToUpper(string(tr.Status)),
				firstLine(tr.StackTrace),
			})
		}
	}
	for _, j := range summary.Jobs {
		if j.Err == nil {
			continue
		}
		t.AppendRow(table.Row{
			fmt.Sprintf("%s %s", j.Kind, j.Config), "", "", "", "", "", "", StatusFail, firstLine(j.Err.Error()),
		})
	}

	status := summary.Status()
	switch status {
	case StatusPass:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	case StatusNone:
		t.SetStyle(table.StyleColoredBlackOnYellowWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	}

	c := summary.Counts()
	invErr := ""
	if summary.Err != nil {
		invErr = firstLine(summary.Err.Error())
	}
	t.AppendFooter(table.Row{
		"TOTAL",
		formatDuration(summary.Duration),
		total(c),
		c[types.TestStatusPassed],
		c[types.TestStatusFailure],
		c[types.TestStatusIgnored] + c[types.TestStatusAssumptionFailure],
		c[types.TestStatusIncomplete],
		status,
		invErr,
	})
	t.Render()

	_, err := fmt.Fprintln(f.out, summary.String())
	return err
}

func runStatus(r *result.TestRunResult) string {
	switch {
	case r.IsRunFailure() || r.HasFailedTests():
		return StatusFail
	case r.NumTestsInState(types.TestStatusIncomplete) > 0:
		return "INCOMPLETE"
	default:
		return StatusPass
	}
}

func total(counts map[types.TestStatus]int) int {
	n := 0
	for _, v := range counts {
		n += v
	}
	return n
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(s, "\n")
	return line
}

// formatDuration formats to seconds with 1 decimal place
func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
