package result

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Profiler gathers metrics over a whole invocation and reports them once the
// devices are torn down.
type Profiler interface {
	SetUp(ctx context.Context, ictx *types.InvocationContext) error
	ReportAllMetrics(listener InvocationListener)
}

// ProfilerRunName is the run under which TimingProfiler reports.
const ProfilerRunName = "profiler"

// TimingProfiler records per-run wall time. It is also a listener so it can
// observe the runs it profiles.
type TimingProfiler struct {
	NopListener
	runs    map[string]time.Duration
	current string
	start   time.Time
}

var (
	_ Profiler           = (*TimingProfiler)(nil)
	_ InvocationListener = (*TimingProfiler)(nil)
)

func NewTimingProfiler() *TimingProfiler {
	return &TimingProfiler{runs: make(map[string]time.Duration)}
}

func (p *TimingProfiler) SetUp(context.Context, *types.InvocationContext) error {
	p.runs = make(map[string]time.Duration)
	return nil
}

func (p *TimingProfiler) TestRunStarted(name string, _ int) {
	p.current = name
	p.start = time.Now()
}

func (p *TimingProfiler) TestRunEnded(time.Duration, map[string]string) {
	if p.current == "" {
		return
	}
	p.runs[p.current] += time.Since(p.start)
	p.current = ""
}

// ReportAllMetrics emits an empty run carrying one metric per profiled run,
// in milliseconds.
func (p *TimingProfiler) ReportAllMetrics(listener InvocationListener) {
	if len(p.runs) == 0 {
		return
	}
	names := make([]string, 0, len(p.runs))
	for name := range p.runs {
		names = append(names, name)
	}
	sort.Strings(names)
	out := make(map[string]string, len(names))
	var total time.Duration
	for _, name := range names {
		out[fmt.Sprintf("%s_ms", name)] = strconv.FormatInt(p.runs[name].Milliseconds(), 10)
		total += p.runs[name]
	}
	listener.TestRunStarted(ProfilerRunName, 0)
	listener.TestRunEnded(total, out)
}
