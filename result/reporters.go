package result

import (
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// MetricsReporter exports test and invocation outcomes as Prometheus metrics.
type MetricsReporter struct {
	NopListener
	configName string
	failed     bool
}

func NewMetricsReporter() *MetricsReporter {
	return &MetricsReporter{}
}

func (m *MetricsReporter) InvocationStarted(ictx *types.InvocationContext) {
	m.configName = ictx.ConfigName()
	m.failed = false
}

func (m *MetricsReporter) InvocationFailed(err error) {
	m.failed = true
	metrics.RecordErrorDetails("invocation", err)
}

func (m *MetricsReporter) TestFailed(types.TestDescription, string) {
	metrics.RecordTestResult(types.TestStatusFailure)
}

func (m *MetricsReporter) TestAssumptionFailure(types.TestDescription, string) {
	metrics.RecordTestResult(types.TestStatusAssumptionFailure)
}

func (m *MetricsReporter) TestIgnored(types.TestDescription) {
	metrics.RecordTestResult(types.TestStatusIgnored)
}

func (m *MetricsReporter) TestRunFailed(string) {
	m.failed = true
}

func (m *MetricsReporter) InvocationEnded(time.Duration) {
	status := "passed"
	if m.failed {
		status = "failed"
	}
	metrics.RecordInvocation(m.configName, status)
}

// LogReporter writes every event to a logger.
type LogReporter struct {
	log log.Logger
	run string
}

var _ InvocationListener = (*LogReporter)(nil)

func NewLogReporter(logger log.Logger) *LogReporter {
	if logger == nil {
		logger = log.New()
	}
	return &LogReporter{log: logger}
}

func (r *LogReporter) InvocationStarted(ictx *types.InvocationContext) {
	r.log.Info("Invocation started", "id", ictx.InvocationID(), "config", ictx.ConfigName())
}

func (r *LogReporter) InvocationFailed(err error) {
	r.log.Error("Invocation failed", "err", err)
}

func (r *LogReporter) InvocationEnded(elapsed time.Duration) {
	r.log.Info("Invocation ended", "elapsed", elapsed)
}

func (r *LogReporter) TestRunStarted(name string, testCount int) {
	r.run = name
	r.log.Info("Test run started", "run", name, "tests", testCount)
}

func (r *LogReporter) TestStarted(test types.TestDescription) {
	r.log.Debug("Test started", "run", r.run, "test", test)
}

func (r *LogReporter) TestFailed(test types.TestDescription, trace string) {
	r.log.Warn("Test failed", "run", r.run, "test", test, "trace", trace)
}

func (r *LogReporter) TestAssumptionFailure(test types.TestDescription, trace string) {
	r.log.Info("Test assumption failed", "run", r.run, "test", test, "trace", trace)
}

func (r *LogReporter) TestIgnored(test types.TestDescription) {
	r.log.Info("Test ignored", "run", r.run, "test", test)
}

func (r *LogReporter) TestEnded(test types.TestDescription, _ map[string]string) {
	r.log.Debug("Test ended", "run", r.run, "test", test)
}

func (r *LogReporter) TestRunFailed(message string) {
	r.log.Warn("Test run failed", "run", r.run, "message", message)
}

func (r *LogReporter) TestRunEnded(elapsed time.Duration, runMetrics map[string]string) {
	r.log.Info("Test run ended", "run", r.run, "elapsed", elapsed, "metrics", len(runMetrics))
}

func (r *LogReporter) TestLog(name string, dataType types.LogDataType, src types.StreamSource) {
	r.log.Debug("Test log", "name", name, "type", dataType, "size", src.Size())
}
