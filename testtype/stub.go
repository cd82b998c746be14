package testtype

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// StubTest reports a configurable set of tests without doing any work. It can
// be told to fail in the ways a real test fails.
type StubTest struct {
	RunName           string   `option:"run-name"`
	NumTests          int      `option:"num-tests"`
	FailingTests      []string `option:"failing-test"`
	ThrowNotAvailable bool     `option:"throw-not-available"`
	ThrowUnresponsive bool     `option:"throw-unresponsive"`
	ThrowFatal        bool     `option:"throw-fatal"`
	ThrowAssertion    bool     `option:"throw-assertion"`
	Panic             bool     `option:"panic"`
	Resumable         bool     `option:"resumable"`
	Retriable         bool     `option:"retriable"`
	ShardableTest     bool     `option:"shardable"`

	// testNames, when set, replaces the generated test0..testN names.
	testNames   []string
	device      types.Device
	build       *types.BuildInfo
	collectOnly bool
}

var (
	_ RemoteTest      = (*StubTest)(nil)
	_ Shardable       = (*StubTest)(nil)
	_ StrictShardable = (*StubTest)(nil)
	_ Resumable       = (*StubTest)(nil)
	_ Retriable       = (*StubTest)(nil)
	_ TestCollector   = (*StubTest)(nil)
	_ DeviceReceiver  = (*StubTest)(nil)
	_ BuildReceiver   = (*StubTest)(nil)
)

func NewStubTest() *StubTest {
	return &StubTest{RunName: "stub", NumTests: 1}
}

func (s *StubTest) SetDevice(device types.Device) { s.device = device }
func (s *StubTest) SetBuild(build *types.BuildInfo) { s.build = build }
func (s *StubTest) SetCollectTestsOnly(collect bool) { s.collectOnly = collect }
func (s *StubTest) IsResumable() bool { return s.Resumable }
func (s *StubTest) IsRetriable() bool { return s.Retriable }
func (s *StubTest) Device() types.Device { return s.device }
func (s *StubTest) Build() *types.BuildInfo { return s.build }

// TestNames returns the names of the tests this stub reports.
func (s *StubTest) TestNames() []string {
	if s.testNames != nil {
		return slices.Clone(s.testNames)
	}
	names := make([]string, s.NumTests)
	for i := range names {
		names[i] = fmt.Sprintf("test%d", i)
	}
	return names
}

func (s *StubTest) serial() string {
	if s.device == nil {
		return "unknown"
	}
	return s.device.Serial()
}

func (s *StubTest) Run(ctx context.Context, listener result.InvocationListener) error {
	if s.Panic {
		panic("stub test panic")
	}
	if s.ThrowFatal {
		return types.NewFatalHostError("stub fatal host error")
	}
	if s.ThrowAssertion {
		return types.NewAssertionError("stub assertion")
	}

	names := s.TestNames()
	start := time.Now()
	listener.TestRunStarted(s.RunName, len(names))
	for _, name := range names {
		test := types.NewTestDescription(s.RunName, name)
		listener.TestStarted(test)
		if !s.collectOnly && slices.Contains(s.FailingTests, name) {
			listener.TestFailed(test, fmt.Sprintf("%s failed", test))
		}
		listener.TestEnded(test, map[string]string{})
		if err := ctx.Err(); err != nil {
			listener.TestRunFailed(err.Error())
			listener.TestRunEnded(time.Since(start), map[string]string{})
			return err
		}
	}

	if !s.collectOnly {
		if s.ThrowUnresponsive {
			listener.TestRunFailed("device unresponsive")
			listener.TestRunEnded(time.Since(start), map[string]string{})
			return types.NewDeviceUnresponsiveError(s.serial(), "stub device unresponsive")
		}
		if s.ThrowNotAvailable {
			listener.TestRunFailed("device not available")
			listener.TestRunEnded(time.Since(start), map[string]string{})
			return types.NewDeviceNotAvailableError(s.serial(), "stub device not available")
		}
	}
	listener.TestRunEnded(time.Since(start), map[string]string{})
	return nil
}

func (s *StubTest) clone(names []string, runName string) *StubTest {
	c := *s
	c.FailingTests = slices.Clone(s.FailingTests)
	c.testNames = names
	c.RunName = runName
	c.ShardableTest = false
	return &c
}

// Split distributes the tests round-robin over at most shardCount shards.
func (s *StubTest) Split(shardCount int) []RemoteTest {
	if !s.ShardableTest || shardCount <= 1 {
		return nil
	}
	names := s.TestNames()
	if len(names) <= 1 {
		return nil
	}
	n := min(shardCount, len(names))
	buckets := make([][]string, n)
	for i, name := range names {
		buckets[i%n] = append(buckets[i%n], name)
	}
	out := make([]RemoteTest, 0, n)
	for _, bucket := range buckets {
		out = append(out, s.clone(bucket, s.RunName))
	}
	return out
}

// GetTestShard returns the tests whose index modulo shardCount is shardIndex.
func (s *StubTest) GetTestShard(shardCount int, shardIndex int) RemoteTest {
	var names []string
	for i, name := range s.TestNames() {
		if i%shardCount == shardIndex {
			names = append(names, name)
		}
	}
	if names == nil {
		names = []string{}
	}
	return s.clone(names, s.RunName)
}
