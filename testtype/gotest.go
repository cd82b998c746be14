package testtype

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	DefaultGoBinary = "go"

	ActionRun    = "run"
	ActionPass   = "pass"
	ActionFail   = "fail"
	ActionSkip   = "skip"
	ActionOutput = "output"
)

// TestEvent is one line of `go test -json` output.
type TestEvent struct {
	Time    time.Time // Time the event occurred
	Action  string    // The action taken (run, pause, cont, pass, fail, skip, output)
	Package string    // The package being tested
	Test    string    // The test function name (may be empty for package events)
	Output  string    // Output text (may be empty)
	Elapsed float64   // Elapsed time in seconds for the specific action
}

// GoTest runs a Go test package on the host and reports every test function
// through the listener. The build's files are exposed to the tests as
// HARNESS_BUILD_<NAME> environment variables.
type GoTest struct {
	Package  string        `option:"package,mandatory"`
	Dir      string        `option:"dir"`
	GoBinary string        `option:"go-binary"`
	Pattern  string        `option:"run"`
	Timeout  time.Duration `option:"timeout"`
	RunName  string        `option:"run-name"`

	log         log.Logger
	build       *types.BuildInfo
	collectOnly bool
	cmdBuilder  func(ctx context.Context, name string, arg ...string) *exec.Cmd
}

var (
	_ RemoteTest    = (*GoTest)(nil)
	_ TestCollector = (*GoTest)(nil)
	_ BuildReceiver = (*GoTest)(nil)
)

func NewGoTest(logger log.Logger) *GoTest {
	if logger == nil {
		logger = log.New()
	}
	return &GoTest{
		GoBinary:   DefaultGoBinary,
		Timeout:    10 * time.Minute,
		log:        logger,
		cmdBuilder: exec.CommandContext,
	}
}

func (g *GoTest) SetBuild(build *types.BuildInfo) { g.build = build }

func (g *GoTest) SetCollectTestsOnly(collect bool) { g.collectOnly = collect }

func (g *GoTest) runName() string {
	if g.RunName != "" {
		return g.RunName
	}
	return g.Package
}

func (g *GoTest) args() []string {
	args := []string{"test", "-json", "-count", "1"}
	if g.collectOnly {
		pattern := g.Pattern
		if pattern == "" {
			pattern = "."
		}
		return append(args, "-list", pattern, g.Package)
	}
	if g.Timeout > 0 {
		args = append(args, "-timeout", g.Timeout.String())
	}
	if g.Pattern != "" {
		args = append(args, "-run", g.Pattern)
	}
	return append(args, g.Package)
}

func (g *GoTest) env() []string {
	if g.build == nil {
		return nil
	}
	env := []string{"HARNESS_BUILD_ID=" + g.build.BuildID}
	for name, path := range g.build.Files {
		key := strings.ToUpper(strings.NewReplacer("-", "_", ".", "_").Replace(name))
		env = append(env, fmt.Sprintf("HARNESS_BUILD_%s=%s", key, path))
	}
	return env
}

func (g *GoTest) Run(ctx context.Context, listener result.InvocationListener) error {
	if g.Package == "" {
		return errors.New("package is required")
	}

	cmd := g.cmdBuilder(ctx, g.GoBinary, g.args()...)
	cmd.Dir = g.Dir
	if env := g.env(); env != nil {
		cmd.Env = append(cmd.Environ(), env...)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to open test output: %w", err)
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr

	g.log.Info("Running go tests", "package", g.Package, "dir", g.Dir, "collect", g.collectOnly)
	start := time.Now()
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", g.GoBinary, err)
	}

	// The run is announced with an unknown count; go test streams its tests.
	listener.TestRunStarted(g.runName(), 0)
	stream := newEventStream(g.runName(), listener, g.collectOnly)
	stream.consume(stdout)
	waitErr := cmd.Wait()
	stream.finish()

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
	case errors.As(waitErr, &exitErr) && stream.sawFailure:
		// Failures were already reported per test.
	default:
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = waitErr.Error()
		}
		listener.TestRunFailed(fmt.Sprintf("go test %s failed: %s", g.Package, msg))
	}
	if stderr.Len() > 0 {
		listener.TestLog(g.runName()+"_stderr", types.LogDataText, types.ByteSource(stderr.String()))
	}
	listener.TestRunEnded(time.Since(start), map[string]string{})
	return ctx.Err()
}

// eventStream turns go test events into listener calls.
type eventStream struct {
	runName     string
	listener    result.InvocationListener
	collectOnly bool
	output      map[string]*strings.Builder
	open        map[string]bool
	sawFailure  bool
}

func newEventStream(runName string, listener result.InvocationListener, collectOnly bool) *eventStream {
	return &eventStream{
		runName:     runName,
		listener:    listener,
		collectOnly: collectOnly,
		output:      make(map[string]*strings.Builder),
		open:        make(map[string]bool),
	}
}

func (s *eventStream) consume(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var event TestEvent
		if err := json.Unmarshal(scanner.Bytes(), &event); err != nil {
			continue
		}
		s.handle(event)
	}
}

func (s *eventStream) desc(name string) types.TestDescription {
	return types.NewTestDescription(s.runName, name)
}

func (s *eventStream) handle(event TestEvent) {
	if s.collectOnly {
		// -list prints test names as output lines of the package.
		if event.Action != ActionOutput || event.Test != "" {
			return
		}
		name := strings.TrimSpace(event.Output)
		if name == "" || !strings.HasPrefix(name, "Test") || strings.ContainsAny(name, " \t") {
			return
		}
		s.listener.TestStarted(s.desc(name))
		s.listener.TestEnded(s.desc(name), map[string]string{})
		return
	}
	if event.Test == "" {
		return
	}
	switch event.Action {
	case ActionRun:
		s.open[event.Test] = true
		s.output[event.Test] = &strings.Builder{}
		s.listener.TestStarted(s.desc(event.Test))
	case ActionOutput:
		if b, ok := s.output[event.Test]; ok {
			b.WriteString(event.Output)
		}
	case ActionPass, ActionFail, ActionSkip:
		if !s.open[event.Test] {
			return
		}
		d := s.desc(event.Test)
		switch event.Action {
		case ActionFail:
			s.sawFailure = true
			s.listener.TestFailed(d, s.output[event.Test].String())
		case ActionSkip:
			s.listener.TestIgnored(d)
		}
		s.listener.TestEnded(d, map[string]string{
			"elapsed_ms": fmt.Sprintf("%d", int64(event.Elapsed*1000)),
		})
		delete(s.open, event.Test)
		delete(s.output, event.Test)
	}
}

// finish fails tests that never reported an outcome, typically after a panic
// or a timeout killed the test binary.
func (s *eventStream) finish() {
	names := make([]string, 0, len(s.open))
	for name := range s.open {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		d := s.desc(name)
		s.sawFailure = true
		s.listener.TestFailed(d, "test did not complete: "+s.output[name].String())
		s.listener.TestEnded(d, map[string]string{})
	}
	s.open = make(map[string]bool)
}
