package result

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ResultForwarder relays every event to an ordered list of listeners. A
// listener that panics is logged and skipped; delivery to the others
// continues.
type ResultForwarder struct {
	log       log.Logger
	listeners []InvocationListener
}

var (
	_ InvocationListener = (*ResultForwarder)(nil)
	_ SummaryConsumer    = (*ResultForwarder)(nil)
)

func NewResultForwarder(logger log.Logger, listeners ...InvocationListener) *ResultForwarder {
	if logger == nil {
		logger = log.New()
	}
	return &ResultForwarder{
		log:       logger,
		listeners: listeners,
	}
}

// Listeners returns a copy of the listener list.
func (f *ResultForwarder) Listeners() []InvocationListener {
	out := make([]InvocationListener, len(f.listeners))
	copy(out, f.listeners)
	return out
}

func (f *ResultForwarder) forEach(event string, fn func(l InvocationListener)) {
	for _, l := range f.listeners {
		f.deliver(event, l, fn)
	}
}

func (f *ResultForwarder) deliver(event string, l InvocationListener, fn func(l InvocationListener)) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error("Listener panicked", "event", event, "listener", fmt.Sprintf("%T", l), "panic", r)
			metrics.RecordListenerPanic(event)
		}
	}()
	fn(l)
}

func (f *ResultForwarder) InvocationStarted(ictx *types.InvocationContext) {
	f.forEach("InvocationStarted", func(l InvocationListener) { l.InvocationStarted(ictx) })
}

func (f *ResultForwarder) InvocationFailed(err error) {
	f.forEach("InvocationFailed", func(l InvocationListener) { l.InvocationFailed(err) })
}

func (f *ResultForwarder) InvocationEnded(elapsed time.Duration) {
	f.forEach("InvocationEnded", func(l InvocationListener) { l.InvocationEnded(elapsed) })
}

func (f *ResultForwarder) TestRunStarted(name string, testCount int) {
	f.forEach("TestRunStarted", func(l InvocationListener) { l.TestRunStarted(name, testCount) })
}

func (f *ResultForwarder) TestStarted(test types.TestDescription) {
	f.forEach("TestStarted", func(l InvocationListener) { l.TestStarted(test) })
}

func (f *ResultForwarder) TestFailed(test types.TestDescription, trace string) {
	f.forEach("TestFailed", func(l InvocationListener) { l.TestFailed(test, trace) })
}

func (f *ResultForwarder) TestAssumptionFailure(test types.TestDescription, trace string) {
	f.forEach("TestAssumptionFailure", func(l InvocationListener) { l.TestAssumptionFailure(test, trace) })
}

func (f *ResultForwarder) TestIgnored(test types.TestDescription) {
	f.forEach("TestIgnored", func(l InvocationListener) { l.TestIgnored(test) })
}

func (f *ResultForwarder) TestEnded(test types.TestDescription, testMetrics map[string]string) {
	f.forEach("TestEnded", func(l InvocationListener) { l.TestEnded(test, testMetrics) })
}

func (f *ResultForwarder) TestRunFailed(message string) {
	f.forEach("TestRunFailed", func(l InvocationListener) { l.TestRunFailed(message) })
}

func (f *ResultForwarder) TestRunEnded(elapsed time.Duration, runMetrics map[string]string) {
	f.forEach("TestRunEnded", func(l InvocationListener) { l.TestRunEnded(elapsed, runMetrics) })
}

func (f *ResultForwarder) TestLog(name string, dataType types.LogDataType, src types.StreamSource) {
	f.forEach("TestLog", func(l InvocationListener) { l.TestLog(name, dataType, src) })
}

// Summaries collects the summary of every listener that publishes one,
// descending into nested forwarders.
func (f *ResultForwarder) Summaries() []*types.TestSummary {
	var out []*types.TestSummary
	f.forEach("Summary", func(l InvocationListener) {
		switch p := l.(type) {
		case SummaryProvider:
			if s := p.Summary(); s != nil {
				out = append(out, s)
			}
		case interface{ Summaries() []*types.TestSummary }:
			out = append(out, p.Summaries()...)
		}
	})
	return out
}

// PutSummary hands the summaries to every listener that consumes them.
func (f *ResultForwarder) PutSummary(summaries []*types.TestSummary) {
	f.forEach("PutSummary", func(l InvocationListener) {
		if c, ok := l.(SummaryConsumer); ok {
			c.PutSummary(summaries)
		}
	})
}

// LogSaverResultForwarder is a ResultForwarder that also persists every log
// through a LogSaver. The saver brackets the invocation: it sees
// InvocationStarted before any listener and InvocationEnded after all of them.
type LogSaverResultForwarder struct {
	*ResultForwarder
	saver LogSaver
}

func NewLogSaverResultForwarder(logger log.Logger, saver LogSaver, listeners ...InvocationListener) *LogSaverResultForwarder {
	if saver == nil {
		saver = NopLogSaver{}
	}
	f := &LogSaverResultForwarder{
		ResultForwarder: NewResultForwarder(logger, listeners...),
		saver:           saver,
	}
	f.forEach("SetLogSaver", func(l InvocationListener) {
		if ls, ok := l.(LogSaverListener); ok {
			ls.SetLogSaver(saver)
		}
	})
	return f
}

func (f *LogSaverResultForwarder) LogSaver() LogSaver {
	return f.saver
}

func (f *LogSaverResultForwarder) InvocationStarted(ictx *types.InvocationContext) {
	if err := f.saver.InvocationStarted(ictx); err != nil {
		f.log.Error("Log saver failed to start", "err", err)
		metrics.RecordErrorDetails("log_saver_start", err)
	}
	f.ResultForwarder.InvocationStarted(ictx)
}

func (f *LogSaverResultForwarder) InvocationEnded(elapsed time.Duration) {
	f.ResultForwarder.InvocationEnded(elapsed)
	if err := f.saver.InvocationEnded(elapsed); err != nil {
		f.log.Error("Log saver failed to end", "err", err)
		metrics.RecordErrorDetails("log_saver_end", err)
	}
}

func (f *LogSaverResultForwarder) TestLog(name string, dataType types.LogDataType, src types.StreamSource) {
	f.ResultForwarder.TestLog(name, dataType, src)
	file, err := f.saver.SaveLogData(name, dataType, src)
	if err != nil {
		f.log.Error("Failed to save log data", "name", name, "err", err)
		metrics.RecordErrorDetails("log_saver_save", err)
		return
	}
	f.forEach("TestLogSaved", func(l InvocationListener) {
		if ls, ok := l.(LogSaverListener); ok {
			ls.TestLogSaved(name, dataType, src, file)
		}
	})
}
