package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ethereum-optimism/infra/op-harness/keystore"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

type fakeProvider struct {
	BuildID string `option:"build-id"`
	Branch  string `option:"branch"`
}

func (p *fakeProvider) Build(ctx context.Context) (*types.BuildInfo, error) {
	return &types.BuildInfo{BuildID: p.BuildID, Branch: p.Branch}, nil
}
func (p *fakeProvider) BuildNotTested(build *types.BuildInfo) {}
func (p *fakeProvider) CleanUp(build *types.BuildInfo) {}

type fakePreparer struct {
	Name    string `option:"name"`
	Disable bool   `option:"disable"`
}

func (p *fakePreparer) SetUp(ctx context.Context, device types.Device, build *types.BuildInfo) error {
	return nil
}

type fakeTest struct {
	Count   int               `option:"count"`
	Names   []string          `option:"test-name"`
	Token   string            `option:"token,mandatory"`
	Extra   map[string]string `option:"extra"`
	Timeout time.Duration     `option:"timeout"`
}

func (f *fakeTest) Run(ctx context.Context, listener result.InvocationListener) error {
	return nil
}

type failingStore struct{}

func (failingStore) Get(ctx context.Context, key string) (string, error) {
	return "", errors.New("key store unavailable")
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	require.NoError(t, r.Register(TagBuildProvider, "provider", func() (any, error) {
		return &fakeProvider{Branch: "main"}, nil
	}))
	require.NoError(t, r.Register(TagTargetPreparer, "preparer", func() (any, error) {
		return &fakePreparer{}, nil
	}))
	require.NoError(t, r.Register(TagTest, "test", func() (any, error) {
		return &fakeTest{Timeout: time.Minute}, nil
	}))
	require.NoError(t, r.Register(TagResultReporter, "collecting", func() (any, error) {
		return result.NewCollectingListener(), nil
	}))
	require.NoError(t, r.Register(TagCmdOptions, "default", func() (any, error) {
		return NewCommandOptions(), nil
	}))
	require.NoError(t, r.SetDefault(TagBuildProvider, "provider"))
	require.NoError(t, r.SetDefault(TagCmdOptions, "default"))
	return r
}

func newTestFactory(t *testing.T, store KeyStore, dirs ...string) *Factory {
	t.Helper()
	f, err := NewFactory(Config{
		Log:        log.NewLogger(log.DiscardHandler()),
		Registry:   newTestRegistry(t),
		ConfigDirs: dirs,
		KeyStore:   store,
	})
	require.NoError(t, err)
	return f
}

func writeDescriptor(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name+".yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const basicDescriptor = `
description: basic
config:
  - object: build_provider
    class: provider
    options:
      - {name: build-id, value: "10"}
  - object: target_preparer
    class: preparer
    options:
      - {name: name, value: first}
  - object: target_preparer
    class: preparer
  - object: test
    class: test
    options:
      - {name: token, value: from-descriptor}
  - object: result_reporter
    class: collecting
  - option: {name: loop, value: "false"}
`

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	factory := func() (any, error) { return &fakeTest{}, nil }
	require.NoError(t, r.Register(TagTest, "test", factory))
	require.Error(t, r.Register(TagTest, "test", factory), "duplicate identifier")
	require.Error(t, r.Register(TypeTag("bogus"), "x", factory))
	require.Error(t, r.SetDefault(TagTest, "test"), "tests are not singletons")
	require.Error(t, r.SetDefault(TagLogSaver, "missing"))

	require.NoError(t, r.Register(TagTest, "another", factory))
	assert.Equal(t, []string{"another", "test"}, r.Identifiers(TagTest))

	_, err := r.Create(TagTest, "nope")
	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.Contains(t, err.Error(), "nope")
	assert.Contains(t, err.Error(), "test")

	require.NoError(t, r.Register(TagLogSaver, "wrong", factory))
	_, err = r.Create(TagLogSaver, "wrong")
	require.Error(t, err, "a test cannot be a log saver")
}

func TestTypeTags(t *testing.T) {
	assert.True(t, TagTargetPreparer.IsDeviceScoped())
	assert.False(t, TagTargetPreparer.IsSingleton())
	assert.True(t, TagBuildProvider.IsSingleton())
	assert.False(t, TagTest.IsDeviceScoped())
	assert.True(t, TagLogSaver.IsSingleton())
}

func TestReorderArgs(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{
			name: "key and target",
			args: []string{"cfg", "--loop", "--template:map", "k", "v", "--count", "1"},
			want: []string{"cfg", "--template:map", "k", "v", "--loop", "--count", "1"},
		},
		{
			name: "key=value",
			args: []string{"cfg", "--count", "1", "--template:map", "k=v"},
			want: []string{"cfg", "--template:map", "k=v", "--count", "1"},
		},
		{
			name: "keeps relative order",
			args: []string{"cfg", "--template:map", "a", "1", "--x", "--template:map=b=2"},
			want: []string{"cfg", "--template:map", "a", "1", "--template:map=b=2", "--x"},
		},
		{
			name: "option is never a template value",
			args: []string{"cfg", "--template:map", "--loop"},
			want: []string{"cfg", "--template:map", "--loop"},
		},
		{
			name: "incomplete trailing entry",
			args: []string{"cfg", "--loop", "--template:map", "k"},
			want: []string{"cfg", "--template:map", "k", "--loop"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ReorderArgs(tt.args))
		})
	}
}

func TestExtractTemplates(t *testing.T) {
	templates, rest, err := extractTemplates("cfg", []string{"--template:map", "a", "x", "--template:map", "b=y", "--loop"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "x", "b": "y"}, templates)
	assert.Equal(t, []string{"--loop"}, rest)

	for _, tokens := range [][]string{
		{"--template:map"},
		{"--template:map", "a"},
		{"--template:map", "--loop"},
		{"--template:map=a="},
	} {
		_, _, err := extractTemplates("cfg", tokens)
		require.Error(t, err, "tokens %v", tokens)
		assert.True(t, IsConfigurationError(err))
	}
}

func TestParseOptionName(t *testing.T) {
	tests := []struct {
		raw       string
		device    string
		qualifier string
		name      string
		wantErr   bool
	}{
		{raw: "loop", name: "loop"},
		{raw: "{device1}build-id", device: "device1", name: "build-id"},
		{raw: "preparer:name", qualifier: "preparer", name: "name"},
		{raw: "preparer:2:name", qualifier: "preparer:2", name: "name"},
		{raw: "{d}preparer:1:name", device: "d", qualifier: "preparer:1", name: "name"},
		{raw: "preparer:x:name", wantErr: true},
		{raw: "preparer:", wantErr: true},
		{raw: "{d", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			device, qualifier, name, err := parseOptionName(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.device, device)
			assert.Equal(t, tt.qualifier, qualifier)
			assert.Equal(t, tt.name, name)
		})
	}
}

func TestCreateConfigurationFromArgs(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "basic", basicDescriptor)
	f := newTestFactory(t, nil)

	cfg, err := f.CreateConfigurationFromArgs(context.Background(), []string{
		path,
		"--count", "3",
		"--test-name=a", "--test-name", "b",
		"--extra", "k1", "v1",
		"--extra", "k2=v2",
		"--timeout", "5s",
		"--preparer:2:name", "second",
		"--disable",
		"--no-loop",
		"--shard-count=4",
	})
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateOptions())

	assert.Equal(t, "basic", cfg.Description())
	assert.False(t, cfg.IsMultiDevice())

	devices := cfg.DeviceConfigs()
	require.Len(t, devices, 1)
	assert.Equal(t, DefaultDeviceName, devices[0].Name())
	assert.Equal(t, "10", devices[0].BuildProvider().(*fakeProvider).BuildID)

	preparers := devices[0].TargetPreparers()
	require.Len(t, preparers, 2)
	assert.Equal(t, "first", preparers[0].(*fakePreparer).Name)
	assert.Equal(t, "second", preparers[1].(*fakePreparer).Name)
	assert.True(t, preparers[0].(*fakePreparer).Disable)
	assert.True(t, preparers[1].(*fakePreparer).Disable)

	tests := cfg.Tests()
	require.Len(t, tests, 1)
	test := tests[0].(*fakeTest)
	assert.Equal(t, 3, test.Count)
	assert.Equal(t, []string{"a", "b"}, test.Names)
	assert.Equal(t, map[string]string{"k1": "v1", "k2": "v2"}, test.Extra)
	assert.Equal(t, 5*time.Second, test.Timeout)
	assert.Equal(t, "from-descriptor", test.Token)

	assert.Len(t, cfg.Listeners(), 1)
	assert.IsType(t, result.NopLogSaver{}, cfg.LogSaver())
	assert.Nil(t, cfg.LogOutput())
	assert.Nil(t, cfg.Profiler())
	assert.False(t, cfg.CommandOptions().Loop)
	assert.Equal(t, 4, cfg.CommandOptions().ShardCount)
	assert.True(t, cfg.CommandOptions().IsLegacySharding())
	assert.NotNil(t, devices[0].Requirements())
}

func TestCreateConfigurationFromArgs_Errors(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "basic", basicDescriptor)
	writeDescriptor(t, dir, "unknown-class", `
config:
  - object: test
    class: nope
`)
	writeDescriptor(t, dir, "two-providers", `
config:
  - object: build_provider
    class: provider
  - object: build_provider
    class: provider
`)
	writeDescriptor(t, dir, "bad-option", `
config:
  - object: test
    class: test
    options:
      - {name: missing, value: x}
`)
	f := newTestFactory(t, nil)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{
			name: "no config",
			args: nil,
			want: "No configuration name provided",
		},
		{
			name: "missing config",
			args: []string{filepath.Join(dir, "absent.yaml")},
			want: "Could not find configuration",
		},
		{
			name: "unknown option",
			args: []string{path, "--bogus", "1"},
			want: "Could not find option with name bogus",
		},
		{
			name: "unknown negated option",
			args: []string{path, "--no-count"},
			want: "Could not find option with name no-count",
		},
		{
			name: "unprocessed argument",
			args: []string{path, "stray", "--count", "1", "other"},
			want: "Invalid arguments provided. Unprocessed arguments: [stray other]",
		},
		{
			name: "missing value",
			args: []string{path, "--count"},
			want: "Missing value for option count",
		},
		{
			name: "invalid value",
			args: []string{path, "--count", "many"},
			want: "Invalid value for option count",
		},
		{
			name: "unknown device",
			args: []string{path, "--{nowhere}build-id", "1"},
			want: "Could not find device 'nowhere'",
		},
		{
			name: "appearance out of range",
			args: []string{path, "--preparer:3:name", "x"},
			want: "Could not find option with name name",
		},
		{
			name: "unknown class",
			args: []string{filepath.Join(dir, "unknown-class.yaml")},
			want: "Could not find object 'nope' for type tag 'test'",
		},
		{
			name: "duplicate singleton",
			args: []string{filepath.Join(dir, "two-providers.yaml")},
			want: "Only one config object allowed for build_provider, but multiple were specified.",
		},
		{
			name: "undeclared descriptor option",
			args: []string{filepath.Join(dir, "bad-option.yaml")},
			want: "Could not find option with name missing",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.CreateConfigurationFromArgs(context.Background(), tt.args)
			require.Error(t, err)
			assert.True(t, IsConfigurationError(err))
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestTemplates(t *testing.T) {
	dir := t.TempDir()
	top := writeDescriptor(t, dir, "top", `
config:
  - template-include: {name: preparers, default: prep-default}
  - include: middle
  - object: test
    class: test
    options:
      - {name: token, value: t}
`)
	writeDescriptor(t, dir, "middle", `
config:
  - template-include: {name: inner}
`)
	writeDescriptor(t, dir, "prep-default", `
config:
  - object: target_preparer
    class: preparer
    options: [{name: name, value: default}]
`)
	writeDescriptor(t, dir, "prep-custom", `
config:
  - object: target_preparer
    class: preparer
    options: [{name: name, value: custom}]
`)
	writeDescriptor(t, dir, "inner-a", `
config:
  - object: target_preparer
    class: preparer
    options: [{name: name, value: inner-a}]
`)
	f := newTestFactory(t, nil)
	ctx := context.Background()

	preparerNames := func(cfg *Configuration) []string {
		var names []string
		for _, p := range cfg.DeviceConfigs()[0].TargetPreparers() {
			names = append(names, p.(*fakePreparer).Name)
		}
		return names
	}

	t.Run("default and nested template", func(t *testing.T) {
		cfg, err := f.CreateConfigurationFromArgs(ctx, []string{top, "--template:map", "inner", "inner-a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"default", "inner-a"}, preparerNames(cfg))
	})

	t.Run("command line wins over default", func(t *testing.T) {
		cfg, err := f.CreateConfigurationFromArgs(ctx, []string{top, "--count", "1", "--template:map", "preparers=prep-custom", "--template:map", "inner", "inner-a"})
		require.NoError(t, err)
		assert.Equal(t, []string{"custom", "inner-a"}, preparerNames(cfg))
	})

	t.Run("unresolved template names config and binding", func(t *testing.T) {
		_, err := f.CreateConfigurationFromArgs(ctx, []string{top})
		require.Error(t, err)
		assert.True(t, IsConfigurationError(err))
		assert.Contains(t, err.Error(), "'inner'")
		assert.Contains(t, err.Error(), "'middle'")
		assert.Contains(t, err.Error(), "--template:map inner <target>")
		assert.Contains(t, err.Error(), "'default'")
	})

	t.Run("unused template", func(t *testing.T) {
		_, err := f.CreateConfigurationFromArgs(ctx, []string{top, "--template:map", "inner", "inner-a", "--template:map", "zz", "x", "--template:map", "aa=y"})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unused template:map parameters: {aa=y, zz=x}")
	})
}

func TestIncludes(t *testing.T) {
	dir := t.TempDir()
	a := writeDescriptor(t, dir, "a", `
config:
  - include: b
`)
	writeDescriptor(t, dir, "b", `
config:
  - include: a
`)
	bundledDir := t.TempDir()
	writeDescriptor(t, bundledDir, "bundled", `
config:
  - include: ghost
`)
	writeDescriptor(t, bundledDir, "shared", `
config:
  - object: target_preparer
    class: preparer
`)
	withShared := writeDescriptor(t, dir, "with-shared", `
config:
  - include: shared
  - include: shared
`)
	f := newTestFactory(t, nil, bundledDir)
	ctx := context.Background()

	_, err := f.CreateConfigurationFromArgs(ctx, []string{a})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Circular configuration include: config 'a' is already included")

	_, err = f.CreateConfigurationFromArgs(ctx, []string{"bundled"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bundled config 'bundled' is including a config 'ghost' that's neither local nor bundled.")

	cfg, err := f.CreateConfigurationFromArgs(ctx, []string{withShared, "--preparer:2:name", "second"})
	require.NoError(t, err, "including the same config twice in sequence is not a cycle")
	preparers := cfg.DeviceConfigs()[0].TargetPreparers()
	require.Len(t, preparers, 2)
	assert.Empty(t, preparers[0].(*fakePreparer).Name)
	assert.Equal(t, "second", preparers[1].(*fakePreparer).Name)
}

func TestMultiDevice(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "multi", `
config:
  - device: device1
    config:
      - object: build_provider
        class: provider
  - device: device2
    config:
      - object: build_provider
        class: provider
        options: [{name: build-id, value: "2"}]
      - object: target_preparer
        class: preparer
  - object: test
    class: test
    options: [{name: token, value: t}]
`)
	outside := writeDescriptor(t, dir, "outside", `
config:
  - device: device1
    config:
      - object: build_provider
        class: provider
  - object: target_preparer
    class: preparer
`)
	inside := writeDescriptor(t, dir, "inside", `
config:
  - device: device1
    config:
      - object: test
        class: test
`)
	f := newTestFactory(t, nil)
	ctx := context.Background()

	cfg, err := f.CreateConfigurationFromArgs(ctx, []string{path, "--{device1}build-id", "1", "--branch", "dev"})
	require.NoError(t, err)
	assert.True(t, cfg.IsMultiDevice())
	devices := cfg.DeviceConfigs()
	require.Len(t, devices, 2)
	assert.Equal(t, "device1", devices[0].Name())
	assert.Equal(t, "device2", devices[1].Name())

	p1 := devices[0].BuildProvider().(*fakeProvider)
	p2 := devices[1].BuildProvider().(*fakeProvider)
	assert.Equal(t, "1", p1.BuildID)
	assert.Equal(t, "2", p2.BuildID)
	assert.Equal(t, "dev", p1.Branch)
	assert.Equal(t, "dev", p2.Branch)
	assert.Empty(t, devices[0].TargetPreparers())
	assert.Len(t, devices[1].TargetPreparers(), 1)

	_, err = f.CreateConfigurationFromArgs(ctx, []string{outside})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tags [target_preparer] should be included in a <device> tag.")

	_, err = f.CreateConfigurationFromArgs(ctx, []string{inside})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Tag test should not be included in a <device> tag.")
}

func TestKeyStoreValues(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "secret", `
config:
  - object: test
    class: test
`)
	ctx := context.Background()

	f := newTestFactory(t, keystore.NewMapStore(map[string]string{"token": "s3cret"}))
	cfg, err := f.CreateConfigurationFromArgs(ctx, []string{path, "--token", "USE_KEYSTORE@token"})
	require.NoError(t, err)
	assert.Equal(t, "s3cret", cfg.Tests()[0].(*fakeTest).Token)

	_, err = f.CreateConfigurationFromArgs(ctx, []string{path, "--token", "USE_KEYSTORE@absent"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Failed to read key 'absent'")

	failing := newTestFactory(t, failingStore{})
	_, err = failing.CreateConfigurationFromArgs(ctx, []string{path, "--token", "USE_KEYSTORE@token"})
	require.Error(t, err)

	cfg, err = failing.CreateConfigurationFromArgs(ctx, []string{path, "--dry-run", "--token", "USE_KEYSTORE@token"})
	require.NoError(t, err, "dry run does not read the key store")
	assert.Empty(t, cfg.Tests()[0].(*fakeTest).Token)
	assert.True(t, cfg.CommandOptions().DryRun)
	require.NoError(t, cfg.ValidateOptions(), "the option counts as set")

	_, err = failing.CreateConfigurationFromArgs(ctx, []string{path, "--dry-run", "--unknown", "USE_KEYSTORE@token"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Could not find option with name unknown")

	noStore := newTestFactory(t, nil)
	_, err = noStore.CreateConfigurationFromArgs(ctx, []string{path, "--token", "USE_KEYSTORE@token"})
	require.Error(t, err)
}

func TestValidateOptions(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "mandatory", `
config:
  - object: test
    class: test
`)
	f := newTestFactory(t, nil)
	ctx := context.Background()

	cfg, err := f.CreateConfigurationFromArgs(ctx, []string{path})
	require.NoError(t, err)
	err = cfg.ValidateOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "'token'")

	cfg, err = f.CreateConfigurationFromArgs(ctx, []string{path, "--token", "x", "--shard-count", "2", "--shard-index", "2"})
	require.NoError(t, err)
	err = cfg.ValidateOptions()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shard-index 2 is out of range")

	cfg, err = f.CreateConfigurationFromArgs(ctx, []string{path, "--token", "x", "--shard-count", "2", "--shard-index", "1"})
	require.NoError(t, err)
	require.NoError(t, cfg.ValidateOptions())
	assert.True(t, cfg.CommandOptions().IsStrictSharding())
}

func TestDefCache(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "cached", `
description: v1
config: []
`)
	f := newTestFactory(t, nil)

	first, err := f.loadDef(path, nil)
	require.NoError(t, err)
	second, err := f.loadDef(path, nil)
	require.NoError(t, err)
	assert.Same(t, first, second)

	other, err := f.loadDef(path, map[string]string{})
	require.NoError(t, err)
	assert.Same(t, first, other, "an empty template map shares the key")

	require.NoError(t, os.WriteFile(path, []byte("description: v2\nconfig: []\n"), 0644))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	reloaded, err := f.loadDef(path, nil)
	require.NoError(t, err)
	assert.NotSame(t, first, reloaded)
	assert.Equal(t, "v2", reloaded.Description)
}

func TestDeriveAndClone(t *testing.T) {
	dir := t.TempDir()
	path := writeDescriptor(t, dir, "basic", basicDescriptor)
	f := newTestFactory(t, nil)
	ctx := context.Background()

	cfg, err := f.CreateConfigurationFromArgs(ctx, []string{path, "--count", "7"})
	require.NoError(t, err)

	replacement := &fakeTest{Token: "shard"}
	provider := &fakeProvider{BuildID: "existing"}
	derived := cfg.Derive(Override{
		Tests:          []testtype.RemoteTest{replacement},
		BuildProviders: map[string]types.BuildProvider{DefaultDeviceName: provider},
	})
	assert.Same(t, replacement, derived.Tests()[0])
	assert.Same(t, provider, derived.DeviceConfigs()[0].BuildProvider())
	assert.Equal(t, 7, cfg.Tests()[0].(*fakeTest).Count, "original is untouched")
	assert.Equal(t, "10", cfg.DeviceConfigs()[0].BuildProvider().(*fakeProvider).BuildID)
	assert.Len(t, derived.DeviceConfigs()[0].TargetPreparers(), 2)

	clone, err := cfg.Clone(ctx)
	require.NoError(t, err)
	assert.NotSame(t, cfg.Tests()[0], clone.Tests()[0])
	assert.Equal(t, 7, clone.Tests()[0].(*fakeTest).Count)
	assert.Equal(t, cfg.CommandLine(), clone.CommandLine())

	_, err = (&Configuration{name: "orphan"}).Clone(ctx)
	require.Error(t, err)
}

func TestSuiteTagLookup(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "module-a", `
suite-tags: [smoke]
config: []
`)
	writeDescriptor(t, dir, "module-b", `
suite-tags: [smoke, full]
config: []
`)
	writeDescriptor(t, dir, "module-c", `
suite-tags: [full]
config: []
`)
	writeDescriptor(t, dir, "needs-template", `
suite-tags: [smoke]
config:
  - template-include: {name: x}
`)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("ignored"), 0644))
	f := newTestFactory(t, nil, dir)

	names, err := f.ListBundledConfigs()
	require.NoError(t, err)
	assert.Equal(t, []string{"module-a", "module-b", "module-c", "needs-template"}, names)

	smoke, err := f.ConfigsForSuiteTag("smoke")
	require.NoError(t, err)
	assert.Equal(t, []string{"module-a", "module-b"}, smoke)
}

func TestDump(t *testing.T) {
	dir := t.TempDir()
	writeDescriptor(t, dir, "dump", `
description: dump example
config:
  - object: build_provider
    class: provider
    options:
      - {name: build-id, value: "10"}
  - object: target_preparer
    class: preparer
    options:
      - {name: name, value: flash}
  - object: test
    class: test
    options:
      - {name: token, value: abc}
  - object: result_reporter
    class: collecting
`)
	f := newTestFactory(t, nil, dir)
	cfg, err := f.CreateConfigurationFromArgs(context.Background(), []string{
		"dump", "--count", "2", "--extra", "k", "v", "--test-tag", "golden",
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, cfg.Dump(&buf))

	g := goldie.New(t)
	g.Assert(t, "dump", buf.Bytes())
}
