package suite

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Run metrics of the final module run, in milliseconds.
const (
	PrepTimeMetric     = "PREP_TIME"
	TeardownTimeMetric = "TEARDOWN_TIME"
	TestTimeMetric     = "TEST_TIME"
)

const (
	PreparationErrorTest = "PreparationError"
	incompleteTrace      = "Test did not complete due to exception."
)

// Environment is what a module runs against.
type Environment struct {
	Device      types.Device
	Build       *types.BuildInfo
	Context     *types.InvocationContext
	CollectOnly bool
}

// ModuleDefinition is one unit of suite work: a set of tests sharing the
// preparers that set the device up for them.
type ModuleDefinition struct {
	log       log.Logger
	tracer    trace.Tracer
	id        string
	tests     []testtype.RemoteTest
	preparers []types.TargetPreparer
}

func NewModuleDefinition(logger log.Logger, id string, tests []testtype.RemoteTest, preparers []types.TargetPreparer) *ModuleDefinition {
	if logger == nil {
		logger = log.New()
	}
	return &ModuleDefinition{
		log:       logger.New("module", id),
		tracer:    otel.Tracer("suite module"),
		id:        id,
		tests:     slices.Clone(tests),
		preparers: slices.Clone(preparers),
	}
}

func (m *ModuleDefinition) ID() string { return m.id }

func (m *ModuleDefinition) Tests() []testtype.RemoteTest {
	return slices.Clone(m.tests)
}

func (m *ModuleDefinition) Preparers() []types.TargetPreparer {
	return slices.Clone(m.preparers)
}

// Run sets the module up, runs its tests and tears it down, then reports one
// run named after the module. Only a DeviceNotAvailableError is returned,
// including one raised while tearing down; every other failure is reported
// to listener.
func (m *ModuleDefinition) Run(ctx context.Context, listener result.InvocationListener, env Environment) (err error) {
	ctx, span := m.tracer.Start(ctx, fmt.Sprintf("module %s", m.id))
	span.SetAttributes(attribute.Int("tests", len(m.tests)))
	defer func() {
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	prepStart := time.Now()
	var prepErr error
	if !env.CollectOnly {
		prepErr = m.setUp(ctx, env)
	}
	prepTime := time.Since(prepStart)

	var listeners []*ModuleListener
	var runFailures []string
	if prepErr == nil {
		listeners, runFailures, err = m.runTests(ctx, listener, env)
	}

	teardownStart := time.Now()
	var teardownErr error
	if !env.CollectOnly {
		teardownErr = m.tearDown(ctx, env, prepErr)
	}
	teardownTime := time.Since(teardownStart)

	if prepErr != nil {
		m.log.Error("Module preparation failed", "err", prepErr)
		m.reportPreparationError(listener, prepErr)
		metrics.RecordModule(metrics.ModulePreparationError)
		if types.IsDeviceNotAvailable(prepErr) {
			return prepErr
		}
		return teardownErr
	}

	m.reportFinalResults(listener, listeners, runFailures, prepTime, teardownTime)
	metrics.RecordModule(metrics.ModuleCompleted)
	if err != nil {
		return err
	}
	return teardownErr
}

// setUp stops at the first preparer that fails.
func (m *ModuleDefinition) setUp(ctx context.Context, env Environment) error {
	for _, p := range m.preparers {
		if d, ok := p.(types.Disableable); ok && d.IsDisabled() {
			continue
		}
		if err := p.SetUp(ctx, env.Device, env.Build); err != nil {
			return fmt.Errorf("preparer %T failed: %w", p, err)
		}
	}
	return nil
}

// tearDown runs every cleaner, most recent first, and returns the first
// DeviceNotAvailableError one of them raised.
func (m *ModuleDefinition) tearDown(ctx context.Context, env Environment, cause error) error {
	var lost error
	for _, p := range slices.Backward(m.preparers) {
		if d, ok := p.(types.Disableable); ok && d.IsDisabled() {
			continue
		}
		c, ok := p.(types.TargetCleaner)
		if !ok {
			continue
		}
		if err := c.TearDown(ctx, env.Device, env.Build, cause); err != nil {
			m.log.Warn("Module cleaner failed", "cleaner", fmt.Sprintf("%T", p), "err", err)
			if lost == nil && types.IsDeviceNotAvailable(err) {
				lost = err
			}
		}
	}
	return lost
}

func (m *ModuleDefinition) runTests(ctx context.Context, listener result.InvocationListener, env Environment) ([]*ModuleListener, []string, error) {
	var listeners []*ModuleListener
	var runFailures []string
	for _, test := range m.tests {
		if r, ok := test.(testtype.DeviceReceiver); ok && env.Device != nil {
			r.SetDevice(env.Device)
		}
		if r, ok := test.(testtype.BuildReceiver); ok {
			r.SetBuild(env.Build)
		}
		if r, ok := test.(testtype.InvocationContextReceiver); ok && env.Context != nil {
			r.SetInvocationContext(env.Context)
		}
		if r, ok := test.(testtype.SystemStatusCheckerReceiver); ok {
			r.SetSystemStatusCheckers(nil)
		}
		if r, ok := test.(testtype.TestCollector); ok {
			r.SetCollectTestsOnly(env.CollectOnly)
		}

		ml := NewModuleListener(listener)
		listeners = append(listeners, ml)
		err := runTest(ctx, test, ml)
		if err == nil {
			continue
		}
		var dnae *types.DeviceNotAvailableError
		if errors.As(err, &dnae) && !dnae.Unresponsive {
			m.log.Error("Device became unavailable during module", "serial", dnae.Serial, "err", err)
			runFailures = append(runFailures, err.Error())
			return listeners, runFailures, err
		}
		m.log.Error("Module test failed", "test", fmt.Sprintf("%T", test), "err", err)
		runFailures = append(runFailures, err.Error())
	}
	return listeners, runFailures, nil
}

func runTest(ctx context.Context, test testtype.RemoteTest, listener result.InvocationListener) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("test %T panicked: %v", test, r)
		}
	}()
	return test.Run(ctx, listener)
}

func (m *ModuleDefinition) reportPreparationError(listener result.InvocationListener, err error) {
	stack := types.Trace(err)
	test := types.NewTestDescription(m.id, PreparationErrorTest)
	listener.TestRunStarted(m.id, 1)
	listener.TestStarted(test)
	listener.TestFailed(test, stack)
	listener.TestEnded(test, map[string]string{})
	listener.TestRunFailed(stack)
	listener.TestRunEnded(0, map[string]string{TestTimeMetric: "0"})
}

// reportFinalResults replays what every per-test listener collected as a
// single run. The run metrics of every collected run are merged under the
// module timing metrics, and the elapsed time is the sum of the runs.
func (m *ModuleDefinition) reportFinalResults(listener result.InvocationListener, listeners []*ModuleListener, runFailures []string, prepTime, teardownTime time.Duration) {
	expected := 0
	numResults := 0
	var elapsed time.Duration
	runMetrics := make(map[string]string)
	for _, ml := range listeners {
		for _, run := range ml.RunResults() {
			expected += run.ExpectedTestCount()
			numResults += run.NumTests()
			elapsed += run.Elapsed()
			maps.Copy(runMetrics, run.Metrics())
		}
	}
	runMetrics[PrepTimeMetric] = strconv.FormatInt(prepTime.Milliseconds(), 10)
	runMetrics[TeardownTimeMetric] = strconv.FormatInt(teardownTime.Milliseconds(), 10)
	runMetrics[TestTimeMetric] = strconv.FormatInt(elapsed.Milliseconds(), 10)

	listener.TestRunStarted(m.id, expected)
	for _, ml := range listeners {
		for _, run := range ml.RunResults() {
			for _, test := range run.Tests() {
				res, ok := run.TestResult(test)
				if !ok {
					continue
				}
				listener.TestStarted(test)
				switch res.Status {
				case types.TestStatusFailure:
					listener.TestFailed(test, res.StackTrace)
				case types.TestStatusAssumptionFailure:
					listener.TestAssumptionFailure(test, res.StackTrace)
				case types.TestStatusIgnored:
					listener.TestIgnored(test)
				case types.TestStatusIncomplete:
					listener.TestFailed(test, incompleteTrace)
				}
				listener.TestEnded(test, res.Metrics)
			}
			if run.IsRunFailure() {
				runFailures = append(runFailures, run.RunFailureMessage())
			}
		}
	}
	if expected != numResults {
		msg := fmt.Sprintf("Module %s only ran %d out of %d expected tests.", m.id, numResults, expected)
		m.log.Warn(msg)
		runFailures = append(runFailures, msg)
	}
	for _, f := range runFailures {
		listener.TestRunFailed(f)
	}
	listener.TestRunEnded(elapsed, runMetrics)
}

// ModuleListener collects the results of one test of a module and forwards
// its logs straight away.
type ModuleListener struct {
	*result.CollectingListener
	main result.InvocationListener
}

func NewModuleListener(main result.InvocationListener) *ModuleListener {
	return &ModuleListener{
		CollectingListener: result.NewCollectingListener(),
		main:               main,
	}
}

func (l *ModuleListener) TestLog(name string, dataType types.LogDataType, src types.StreamSource) {
	l.main.TestLog(name, dataType, src)
}
