package suite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/build"
	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/device"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/targetprep"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const suiteDescriptor = `
config:
  - object: test
    class: config-suite
  - object: system_checker
    class: stub-checker
`

func moduleDescriptor(runName string, extra ...string) string {
	d := fmt.Sprintf(`
suite-tags: [smoke]
config:
  - object: target_preparer
    class: stub-prep
  - object: test
    class: stub-test
    options:
      - {name: run-name, value: %s}
`, runName)
	for _, opt := range extra {
		d += "      - " + opt + "\n"
	}
	return d
}

func discard() log.Logger {
	return log.NewLogger(log.DiscardHandler())
}

func newRegistry(t *testing.T) *config.Registry {
	t.Helper()
	r := config.NewRegistry()
	require.NoError(t, r.Register(config.TagBuildProvider, "stub-build", func() (any, error) {
		return build.NewStubProvider(), nil
	}))
	require.NoError(t, r.Register(config.TagTargetPreparer, "stub-prep", func() (any, error) {
		return &targetprep.StubPreparer{}, nil
	}))
	require.NoError(t, r.Register(config.TagTest, "stub-test", func() (any, error) {
		return testtype.NewStubTest(), nil
	}))
	require.NoError(t, r.Register(config.TagTest, "config-suite", func() (any, error) {
		return New(discard()), nil
	}))
	require.NoError(t, r.Register(config.TagSystemChecker, "stub-checker", func() (any, error) {
		return &device.StubChecker{}, nil
	}))
	require.NoError(t, r.SetDefault(config.TagBuildProvider, "stub-build"))
	return r
}

// newFactory writes each descriptor into a config dir, keyed by name.
func newFactory(t *testing.T, descriptors map[string]string) *config.Factory {
	t.Helper()
	dir := t.TempDir()
	for name, body := range descriptors {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".yaml"), []byte(body), 0644))
	}
	f, err := config.NewFactory(config.Config{
		Log:        discard(),
		Registry:   newRegistry(t),
		ConfigDirs: []string{dir},
	})
	require.NoError(t, err)
	return f
}

// newSuite resolves the suite config with args and hands it a device and
// its checkers.
func newSuite(t *testing.T, f *config.Factory, dev types.Device, args ...string) *Suite {
	t.Helper()
	cfg, err := f.CreateConfigurationFromArgs(context.Background(), append([]string{"suite"}, args...))
	require.NoError(t, err)
	s := cfg.Tests()[0].(*Suite)
	s.SetDevice(dev)
	s.SetSystemStatusCheckers(cfg.SystemStatusCheckers())
	return s
}

type staticLoader []ModuleConfig

func (l staticLoader) LoadModules(context.Context) ([]ModuleConfig, error) {
	return l, nil
}

func loadModule(t *testing.T, f *config.Factory, name string) ModuleConfig {
	t.Helper()
	cfg, err := f.CreateConfigurationFromArgs(context.Background(), []string{name})
	require.NoError(t, err)
	return ModuleConfig{Name: name, Config: cfg}
}

func stubPreparer(m ModuleConfig) *targetprep.StubPreparer {
	return m.Config.DeviceConfigs()[0].TargetPreparers()[0].(*targetprep.StubPreparer)
}

type logRecorder struct {
	*result.CollectingListener
	logs []string
}

func newLogRecorder() *logRecorder {
	return &logRecorder{CollectingListener: result.NewCollectingListener()}
}

func (r *logRecorder) TestLog(name string, _ types.LogDataType, _ types.StreamSource) {
	r.logs = append(r.logs, name)
}

func runNames(c *result.CollectingListener) []string {
	var names []string
	for _, r := range c.RunResults() {
		names = append(names, r.Name())
	}
	return names
}

func TestSuite_RunsModulesInOrder(t *testing.T) {
	f := newFactory(t, map[string]string{
		"suite": suiteDescriptor,
		"mod-a": moduleDescriptor("a", `{name: num-tests, value: "2"}`, `{name: failing-test, value: test1}`),
		"mod-b": moduleDescriptor("b"),
	})
	s := newSuite(t, f, device.NewFakeDevice("serial-1"), "--module", "mod-a", "--module", "mod-b")

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))

	assert.Equal(t, []string{"mod-a", "mod-b"}, runNames(c))
	run, ok := c.RunResult("mod-a")
	require.True(t, ok)
	assert.Equal(t, 2, run.ExpectedTestCount())
	assert.Equal(t, 1, run.NumTestsInState(types.TestStatusPassed))
	assert.Equal(t, 1, run.NumTestsInState(types.TestStatusFailure))
	assert.False(t, run.IsRunFailure())
	for _, m := range []string{PrepTimeMetric, TeardownTimeMetric, TestTimeMetric} {
		assert.Contains(t, run.Metrics(), m)
	}
	_, ok = run.TestResult(types.NewTestDescription("a", "test1"))
	assert.True(t, ok)
}

func TestSuite_SuiteTag(t *testing.T) {
	f := newFactory(t, map[string]string{
		"suite": suiteDescriptor,
		"mod-a": moduleDescriptor("a"),
		"mod-b": moduleDescriptor("b"),
	})
	s := newSuite(t, f, device.NewFakeDevice("serial-1"), "--suite-tag", "smoke")

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))
	assert.Equal(t, []string{"mod-a", "mod-b"}, runNames(c))
}

func TestConfigLoader_Errors(t *testing.T) {
	f := newFactory(t, map[string]string{
		"suite":  suiteDescriptor,
		"mod-a":  moduleDescriptor("a"),
		"nested": suiteDescriptor,
	})

	tests := []struct {
		name    string
		modules []string
		want    string
	}{
		{
			name:    "duplicate module",
			modules: []string{"mod-a", "mod-a"},
			want:    "Circular configuration detected: mod-a has been included several times.",
		},
		{
			name:    "nested suite",
			modules: []string{"nested"},
			want:    "Configuration nested cannot be run in a suite.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &ConfigLoader{Log: discard(), Factory: f, Names: tt.modules}
			_, err := l.LoadModules(context.Background())
			require.Error(t, err)
			assert.True(t, config.IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	_, err := (&ConfigLoader{Names: []string{"mod-a"}}).LoadModules(context.Background())
	assert.True(t, config.IsConfigurationError(err), "no factory")
}

func TestSuite_PreparationError(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-bad": moduleDescriptor("bad"),
		"mod-ok":  moduleDescriptor("ok"),
	})
	bad := loadModule(t, f, "mod-bad")
	stubPreparer(bad).Error = targetprep.StubErrorTargetSetup
	ok := loadModule(t, f, "mod-ok")

	s := New(discard())
	s.Loader = staticLoader{bad, ok}
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))

	run, found := c.RunResult("mod-bad")
	require.True(t, found)
	require.Equal(t, []types.TestDescription{types.NewTestDescription("mod-bad", PreparationErrorTest)}, run.Tests())
	assert.Equal(t, 1, run.NumTestsInState(types.TestStatusFailure))
	assert.True(t, run.IsRunFailure())
	assert.Contains(t, run.RunFailureMessage(), "stub setup failure")
	assert.Equal(t, "0", run.Metrics()[TestTimeMetric])
	_, found = c.RunResult("bad")
	assert.False(t, found, "tests of a module that failed preparation do not run")

	assert.Equal(t, 1, stubPreparer(bad).TearDownCount())
	assert.True(t, types.IsTargetSetupError(stubPreparer(bad).TearDownCause()))

	run, found = c.RunResult("mod-ok")
	require.True(t, found)
	assert.False(t, run.IsRunFailure())
	assert.NoError(t, stubPreparer(ok).TearDownCause())
}

func TestSuite_DeviceNotAvailableReportsRemainingModules(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-a": moduleDescriptor("a", `{name: throw-not-available, value: "true"}`),
		"mod-b": moduleDescriptor("b"),
		"mod-c": moduleDescriptor("c"),
	})
	s := New(discard())
	s.Loader = staticLoader{loadModule(t, f, "mod-a"), loadModule(t, f, "mod-b"), loadModule(t, f, "mod-c")}
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	err := s.Run(context.Background(), c)
	require.Error(t, err)
	assert.True(t, types.IsDeviceNotAvailable(err))

	assert.Equal(t, []string{"mod-a", "mod-b", "mod-c"}, runNames(c))
	run, _ := c.RunResult("mod-a")
	assert.True(t, run.IsRunFailure())
	for _, name := range []string{"mod-b", "mod-c"} {
		run, _ := c.RunResult(name)
		assert.Equal(t, 0, run.ExpectedTestCount())
		assert.Equal(t, notExecutedMessage, run.RunFailureMessage())
	}
}

func TestSuite_UnresponsiveDeviceContinues(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-a": moduleDescriptor("a", `{name: throw-unresponsive, value: "true"}`),
		"mod-b": moduleDescriptor("b"),
	})
	s := New(discard())
	s.Loader = staticLoader{loadModule(t, f, "mod-a"), loadModule(t, f, "mod-b")}
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))

	run, _ := c.RunResult("mod-a")
	assert.True(t, run.IsRunFailure())
	run, _ = c.RunResult("mod-b")
	assert.False(t, run.IsRunFailure())
}

func TestSuite_SystemStatusCheckers(t *testing.T) {
	f := newFactory(t, map[string]string{
		"suite": suiteDescriptor,
		"mod-a": moduleDescriptor("a"),
	})

	t.Run("reported", func(t *testing.T) {
		dev := device.NewFakeDevice("serial-1")
		s := newSuite(t, f, dev, "--module", "mod-a", "--report-system-checkers", "--fail-post")
		rec := newLogRecorder()
		require.NoError(t, s.Run(context.Background(), rec))

		assert.Equal(t, []string{"PreModuleChecker_mod-a", "mod-a", "PostModuleChecker_mod-a"}, runNames(rec.CollectingListener))
		pre, _ := rec.RunResult("PreModuleChecker_mod-a")
		assert.False(t, pre.IsRunFailure())
		post, _ := rec.RunResult("PostModuleChecker_mod-a")
		assert.Equal(t, "mod-a failed '[stub]' checkers", post.RunFailureMessage())
		assert.Equal(t, []string{"bugreport-checker-post-module-mod-a"}, rec.logs)
		assert.Contains(t, dev.Events(), "bugreport")
	})

	t.Run("skipped", func(t *testing.T) {
		s := newSuite(t, f, device.NewFakeDevice("serial-1"), "--module", "mod-a", "--report-system-checkers", "--fail-pre", "--skip-all-system-status-check")
		rec := newLogRecorder()
		require.NoError(t, s.Run(context.Background(), rec))
		assert.Equal(t, []string{"mod-a"}, runNames(rec.CollectingListener))
		assert.Empty(t, rec.logs)
	})
}

func TestSuite_RebootPerModule(t *testing.T) {
	f := newFactory(t, map[string]string{
		"suite": suiteDescriptor,
		"mod-a": moduleDescriptor("a"),
		"mod-b": moduleDescriptor("b"),
	})
	dev := device.NewFakeDevice("serial-1")
	s := newSuite(t, f, dev, "--module", "mod-a", "--module", "mod-b", "--reboot-per-module")
	require.NoError(t, s.Run(context.Background(), result.NewCollectingListener()))
	assert.Equal(t, 2, dev.RebootCount())
}

func TestSuite_CollectTestsOnly(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-a": moduleDescriptor("a", `{name: num-tests, value: "3"}`, `{name: failing-test, value: test0}`),
	})
	m := loadModule(t, f, "mod-a")
	stubPreparer(m).Error = targetprep.StubErrorTargetSetup

	s := New(discard())
	s.Loader = staticLoader{m}
	s.CollectTestsOnly = true
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))
	run, ok := c.RunResult("mod-a")
	require.True(t, ok)
	assert.Equal(t, 3, run.NumTestsInState(types.TestStatusPassed))
	assert.Equal(t, 0, stubPreparer(m).SetUpCount())
}

func TestSuite_SkipsModulesWithoutTests(t *testing.T) {
	f := newFactory(t, map[string]string{
		"empty": "config:\n  - object: target_preparer\n    class: stub-prep\n",
		"mod-a": moduleDescriptor("a"),
	})
	empty := loadModule(t, f, "empty")
	s := New(discard())
	s.Loader = staticLoader{empty, loadModule(t, f, "mod-a")}
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	require.NoError(t, s.Run(context.Background(), c))
	assert.Equal(t, []string{"mod-a"}, runNames(c))
	assert.Equal(t, 0, stubPreparer(empty).SetUpCount())
}

func unitIDs(shards []testtype.RemoteTest) []string {
	var ids []string
	for _, shard := range shards {
		for _, u := range shard.(*Suite).units {
			ids = append(ids, u.ID())
		}
	}
	return ids
}

func TestSuite_Split(t *testing.T) {
	descriptors := map[string]string{"suite": suiteDescriptor}
	var args []string
	var names []string
	for i := 0; i < 5; i++ {
		name := fmt.Sprintf("mod-%d", i)
		descriptors[name] = moduleDescriptor(name)
		args = append(args, "--module", name)
		names = append(names, name)
	}
	f := newFactory(t, descriptors)
	s := newSuite(t, f, device.NewFakeDevice("serial-1"), args...)

	assert.Nil(t, s.Split(1))

	shards := s.Split(3)
	require.Len(t, shards, 3)
	assert.ElementsMatch(t, names, unitIDs(shards))
	for _, shard := range shards {
		sh := shard.(*Suite)
		assert.True(t, sh.IsSharded())
		assert.NotEmpty(t, sh.units)
		assert.Nil(t, sh.Split(2), "shards do not split again")
	}

	shards = s.Split(10)
	require.Len(t, shards, 5)
	assert.ElementsMatch(t, names, unitIDs(shards))

	// A shard runs exactly its own modules.
	c := result.NewCollectingListener()
	first := shards[0].(*Suite)
	first.SetDevice(device.NewFakeDevice("serial-2"))
	require.NoError(t, first.Run(context.Background(), c))
	assert.Equal(t, []string{first.units[0].ID()}, runNames(c))
}

func TestModuleSplitter_ShardableModule(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-s": "shardable: true\n" + moduleDescriptor("s", `{name: num-tests, value: "4"}`, `{name: shardable, value: "true"}`),
		"mod-n": moduleDescriptor("n", `{name: num-tests, value: "4"}`, `{name: shardable, value: "true"}`),
	})
	modules := []ModuleConfig{loadModule(t, f, "mod-s"), loadModule(t, f, "mod-n")}

	units, err := (&ModuleSplitter{Log: discard()}).Units(context.Background(), modules, 2)
	require.NoError(t, err)
	require.Len(t, units, 3, "two pieces of the shardable module and the whole other one")

	assert.Equal(t, "mod-s", units[0].ID())
	assert.Equal(t, "mod-s", units[1].ID())
	assert.Equal(t, "mod-n", units[2].ID())
	require.Len(t, units[0].Preparers(), 1)
	require.Len(t, units[1].Preparers(), 1)
	assert.NotSame(t, units[0].Preparers()[0], units[1].Preparers()[0], "each piece has its own preparers")

	var tests []string
	for _, u := range units[:2] {
		tests = append(tests, u.Tests()[0].(*testtype.StubTest).TestNames()...)
	}
	assert.ElementsMatch(t, []string{"test0", "test1", "test2", "test3"}, tests)

	units, err = (&ModuleSplitter{Log: discard()}).Units(context.Background(), modules, 1)
	require.NoError(t, err)
	assert.Len(t, units, 2)
}

func TestShardModules(t *testing.T) {
	for n := 0; n <= 7; n++ {
		units := make([]*ModuleDefinition, n)
		for i := range units {
			units[i] = NewModuleDefinition(discard(), fmt.Sprintf("m%d", i), nil, nil)
		}
		for k := 1; k <= 5; k++ {
			shards := ShardModules(units, k)
			assert.Len(t, shards, min(n, k), "n=%d k=%d", n, k)
			seen := make(map[*ModuleDefinition]bool)
			for _, shard := range shards {
				assert.NotEmpty(t, shard)
				for _, u := range shard {
					assert.False(t, seen[u], "unit dealt twice")
					seen[u] = true
				}
			}
			assert.Len(t, seen, n)
		}
	}
}

// partialTest promises three tests, finishes one and leaves one running.
type partialTest struct {
	panic bool
}

func (p *partialTest) Run(ctx context.Context, listener result.InvocationListener) error {
	if p.panic {
		panic("boom")
	}
	listener.TestRunStarted("partial", 3)
	listener.TestLog("partial-log", types.LogDataText, types.ByteSource("log"))
	done := types.NewTestDescription("partial", "done")
	listener.TestStarted(done)
	listener.TestEnded(done, map[string]string{})
	listener.TestStarted(types.NewTestDescription("partial", "stuck"))
	listener.TestRunEnded(0, map[string]string{})
	return nil
}

func TestModuleDefinition_FinalRun(t *testing.T) {
	m := NewModuleDefinition(discard(), "mod", []testtype.RemoteTest{&partialTest{}, &partialTest{panic: true}}, nil)
	rec := newLogRecorder()
	require.NoError(t, m.Run(context.Background(), rec, Environment{}))

	assert.Equal(t, []string{"partial-log"}, rec.logs)
	run, ok := rec.RunResult("mod")
	require.True(t, ok)
	assert.Equal(t, 3, run.ExpectedTestCount())
	assert.Equal(t, 1, run.NumTestsInState(types.TestStatusPassed))

	res, ok := run.TestResult(types.NewTestDescription("partial", "stuck"))
	require.True(t, ok)
	assert.Equal(t, types.TestStatusFailure, res.Status)
	assert.Equal(t, incompleteTrace, res.StackTrace)

	assert.Contains(t, run.RunFailureMessage(), "Module mod only ran 2 out of 3 expected tests.")
	assert.Contains(t, run.RunFailureMessage(), "panicked")
}

func TestSuite_TeardownDeviceLossAbortsSuite(t *testing.T) {
	f := newFactory(t, map[string]string{
		"mod-a": `
config:
  - object: target_preparer
    class: stub-prep
    options:
      - {name: teardown-error, value: not-available}
  - object: test
    class: stub-test
    options:
      - {name: run-name, value: a}
`,
		"empty": "config:\n  - object: target_preparer\n    class: stub-prep\n",
		"mod-b": moduleDescriptor("b"),
	})
	modA := loadModule(t, f, "mod-a")
	modB := loadModule(t, f, "mod-b")
	s := New(discard())
	s.Loader = staticLoader{modA, loadModule(t, f, "empty"), modB}
	s.SetDevice(device.NewFakeDevice("serial-1"))

	c := result.NewCollectingListener()
	err := s.Run(context.Background(), c)
	require.Error(t, err)
	assert.True(t, types.IsDeviceNotAvailable(err))

	// The module whose teardown lost the device still reports its tests.
	assert.Equal(t, []string{"mod-a", "mod-b"}, runNames(c))
	run, _ := c.RunResult("mod-a")
	assert.Equal(t, 1, run.NumTestsInState(types.TestStatusPassed))
	assert.Equal(t, 1, stubPreparer(modA).TearDownCount())

	run, _ = c.RunResult("mod-b")
	assert.Equal(t, notExecutedMessage, run.RunFailureMessage())
	assert.Equal(t, 0, stubPreparer(modB).SetUpCount())
}

func TestModuleDefinition_TeardownDeviceLoss(t *testing.T) {
	prep := &targetprep.StubPreparer{TearDownError: targetprep.StubErrorNotAvailable}
	m := NewModuleDefinition(discard(), "mod", []testtype.RemoteTest{testtype.NewStubTest()}, []types.TargetPreparer{prep})

	c := result.NewCollectingListener()
	err := m.Run(context.Background(), c, Environment{Device: device.NewFakeDevice("serial-1")})
	require.Error(t, err)
	dnae, ok := types.AsDeviceNotAvailable(err)
	require.True(t, ok)
	assert.Equal(t, "serial-1", dnae.Serial)
	_, ok = c.RunResult("mod")
	assert.True(t, ok)
}

// metricsTest reports one passing test and its own run metrics.
type metricsTest struct {
	run     string
	elapsed time.Duration
}

func (m *metricsTest) Run(ctx context.Context, listener result.InvocationListener) error {
	listener.TestRunStarted(m.run, 1)
	test := types.NewTestDescription(m.run, "boot")
	listener.TestStarted(test)
	listener.TestEnded(test, map[string]string{})
	listener.TestRunEnded(m.elapsed, map[string]string{m.run + "_ms": "42"})
	return nil
}

func TestModuleDefinition_MergesRunMetrics(t *testing.T) {
	tests := []testtype.RemoteTest{
		&metricsTest{run: "boot", elapsed: 2 * time.Second},
		&metricsTest{run: "flash", elapsed: 500 * time.Millisecond},
	}
	m := NewModuleDefinition(discard(), "mod", tests, nil)

	c := result.NewCollectingListener()
	require.NoError(t, m.Run(context.Background(), c, Environment{}))

	run, ok := c.RunResult("mod")
	require.True(t, ok)
	got := run.Metrics()
	assert.Equal(t, "42", got["boot_ms"])
	assert.Equal(t, "42", got["flash_ms"])
	assert.Equal(t, "2500", got[TestTimeMetric])
	assert.Contains(t, got, PrepTimeMetric)
	assert.Contains(t, got, TeardownTimeMetric)
	assert.Equal(t, 2500*time.Millisecond, run.Elapsed())
}
