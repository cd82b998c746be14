package invoker

import (
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ResumeResultForwarder carries the listeners of an invocation into the
// invocation that resumes it. The listeners already saw InvocationStarted,
// and the elapsed time they receive at the end covers both attempts.
type ResumeResultForwarder struct {
	*result.ResultForwarder
	prior time.Duration
}

func NewResumeResultForwarder(logger log.Logger, prior time.Duration, listeners ...result.InvocationListener) *ResumeResultForwarder {
	return &ResumeResultForwarder{
		ResultForwarder: result.NewResultForwarder(logger, listeners...),
		prior:           prior,
	}
}

func (f *ResumeResultForwarder) InvocationStarted(*types.InvocationContext) {}

func (f *ResumeResultForwarder) InvocationEnded(elapsed time.Duration) {
	f.ResultForwarder.InvocationEnded(f.prior + elapsed)
}

// ShardMasterForwarder merges the results of concurrently running shards into
// one invocation. Each shard reports through its own shard listener; a run is
// replayed into the master only once it is complete so runs of different
// shards never interleave.
type ShardMasterForwarder struct {
	log    log.Logger
	target result.InvocationListener

	mu       sync.Mutex
	started  bool
	expected int
	ended    int
	elapsed  time.Duration
}

func NewShardMasterForwarder(logger log.Logger, target result.InvocationListener, shardCount int) *ShardMasterForwarder {
	if logger == nil {
		logger = log.New()
	}
	return &ShardMasterForwarder{
		log:      logger,
		target:   target,
		expected: shardCount,
	}
}

// InvocationStarted is forwarded once, however many shards start.
func (m *ShardMasterForwarder) InvocationStarted(ictx *types.InvocationContext) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true
	m.target.InvocationStarted(ictx)
}

// NewShardListener returns the listener one shard reports through.
func (m *ShardMasterForwarder) NewShardListener() result.InvocationListener {
	return &shardListener{master: m}
}

// ShardRefused accounts for a shard that was never scheduled.
func (m *ShardMasterForwarder) ShardRefused(index int) {
	m.log.Warn("Shard was not scheduled", "shard", index)
	m.invocationFailed(fmt.Errorf("shard %d could not be scheduled", index))
	m.shardEnded(0)
}

// Done reports whether every shard has ended.
func (m *ShardMasterForwarder) Done() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ended >= m.expected
}

func (m *ShardMasterForwarder) invocationFailed(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target.InvocationFailed(err)
}

func (m *ShardMasterForwarder) testLog(name string, dataType types.LogDataType, src types.StreamSource) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.target.TestLog(name, dataType, src)
}

func (m *ShardMasterForwarder) replay(events []func(l result.InvocationListener)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range events {
		e(m.target)
	}
}

func (m *ShardMasterForwarder) shardEnded(elapsed time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ended++
	m.elapsed += elapsed
	m.log.Debug("Shard ended", "ended", m.ended, "expected", m.expected)
	if m.ended != m.expected {
		return
	}
	m.target.InvocationEnded(m.elapsed)
	if f, ok := m.target.(interface {
		Summaries() []*types.TestSummary
		PutSummary([]*types.TestSummary)
	}); ok {
		f.PutSummary(f.Summaries())
	}
}

// shardListener buffers one shard's runs.
type shardListener struct {
	master  *ShardMasterForwarder
	pending []func(l result.InvocationListener)
}

var _ result.InvocationListener = (*shardListener)(nil)

func (s *shardListener) buffer(e func(l result.InvocationListener)) {
	s.pending = append(s.pending, e)
}

func (s *shardListener) flush() {
	if len(s.pending) == 0 {
		return
	}
	s.master.replay(s.pending)
	s.pending = nil
}

func (s *shardListener) InvocationStarted(*types.InvocationContext) {}

func (s *shardListener) InvocationFailed(err error) {
	s.master.invocationFailed(err)
}

func (s *shardListener) InvocationEnded(elapsed time.Duration) {
	// A run cut short by a crash is still delivered.
	s.flush()
	s.master.shardEnded(elapsed)
}

func (s *shardListener) TestRunStarted(name string, testCount int) {
	s.flush()
	s.buffer(func(l result.InvocationListener) { l.TestRunStarted(name, testCount) })
}

func (s *shardListener) TestStarted(test types.TestDescription) {
	s.buffer(func(l result.InvocationListener) { l.TestStarted(test) })
}

func (s *shardListener) TestFailed(test types.TestDescription, trace string) {
	s.buffer(func(l result.InvocationListener) { l.TestFailed(test, trace) })
}

func (s *shardListener) TestAssumptionFailure(test types.TestDescription, trace string) {
	s.buffer(func(l result.InvocationListener) { l.TestAssumptionFailure(test, trace) })
}

func (s *shardListener) TestIgnored(test types.TestDescription) {
	s.buffer(func(l result.InvocationListener) { l.TestIgnored(test) })
}

func (s *shardListener) TestEnded(test types.TestDescription, metrics map[string]string) {
	s.buffer(func(l result.InvocationListener) { l.TestEnded(test, metrics) })
}

func (s *shardListener) TestRunFailed(message string) {
	s.buffer(func(l result.InvocationListener) { l.TestRunFailed(message) })
}

func (s *shardListener) TestRunEnded(elapsed time.Duration, metrics map[string]string) {
	s.buffer(func(l result.InvocationListener) { l.TestRunEnded(elapsed, metrics) })
	s.flush()
}

func (s *shardListener) TestLog(name string, dataType types.LogDataType, src types.StreamSource) {
	s.master.testLog(name, dataType, src)
}
