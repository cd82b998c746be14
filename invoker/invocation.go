// Package invoker drives one test invocation through build retrieval, device
// setup, target preparation, the tests and teardown.
package invoker

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/ethereum-optimism/infra/op-harness/build"
	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	BuildErrorBugreportName         = "build_error_bugreport"
	TargetSetupErrorBugreportName   = "target_setup_error_bugreport"
	DeviceUnresponsiveBugreportName = "device_unresponsive_bugreport"
	InvocationEndedBugreportName    = "invocation_ended_bugreport"
	HostLogName                     = "host_log"

	batteryAttributeFormat = "%s-battery-%s"
)

// Stage names a point at which device logs are captured.
type Stage string

const (
	StageError    Stage = "error"
	StageSetup    Stage = "setup"
	StageTest     Stage = "test"
	StageTeardown Stage = "teardown"
)

// Invocation outcomes recorded in metrics.
const (
	statusPassed     = "passed"
	statusFailed     = "failed"
	statusBuildError = "build_error"
	statusNoBuild    = "no_build"
	statusNoTests    = "no_tests"
	statusSharded    = "sharded"
	statusResumed    = "resumed"
)

type Config struct {
	Log log.Logger
}

// TestInvocation runs invocations one at a time and remembers the states the
// last one went through.
type TestInvocation struct {
	log    log.Logger
	tracer trace.Tracer

	mu      sync.Mutex
	history []State
}

func New(cfg Config) *TestInvocation {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	return &TestInvocation{
		log:    cfg.Log.New("component", "invoker"),
		tracer: otel.Tracer("test invocation"),
	}
}

// History returns the states of the most recent invocation in order.
func (t *TestInvocation) History() []State {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]State, len(t.history))
	copy(out, t.history)
	return out
}

func (t *TestInvocation) setState(s State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.history = append(t.history, s)
}

// invocation holds the state of one Invoke call.
type invocation struct {
	t           *TestInvocation
	log         log.Logger
	tracer      trace.Tracer
	cfg         *config.Configuration
	opts        *config.CommandOptions
	ictx        *types.InvocationContext
	rescheduler Rescheduler
	listeners   []result.InvocationListener
	listener    *result.LogSaverResultForwarder
	output      types.LogOutput
	tests       []testtype.RemoteTest
	start       time.Time

	reachedRunning bool
	resumed        bool
	bugreportName  string
	badDevice      types.Device
}

// Invoke runs cfg against the devices allocated in ictx. Results go to the
// configured listeners followed by extra.
//
// An invocation that fails in a way the listeners were told about returns nil.
// Device loss and unexpected errors are returned once they were reported.
func (t *TestInvocation) Invoke(ctx context.Context, ictx *types.InvocationContext, cfg *config.Configuration, rescheduler Rescheduler, extra ...result.InvocationListener) error {
	ctx, span := t.tracer.Start(ctx, fmt.Sprintf("invocation %s", cfg.Name()))
	defer span.End()
	span.SetAttributes(
		attribute.String("invocation.id", ictx.InvocationID()),
		attribute.String("invocation.config", cfg.Name()),
	)

	t.mu.Lock()
	t.history = nil
	t.mu.Unlock()
	t.setState(StateStarted)

	if rescheduler == nil {
		rescheduler = NopRescheduler{}
	}
	inv := &invocation{
		t:           t,
		log:         t.log.New("config", cfg.Name(), "invocation", ictx.InvocationID()),
		tracer:      t.tracer,
		cfg:         cfg,
		opts:        cfg.CommandOptions(),
		ictx:        ictx,
		rescheduler: rescheduler,
		output:      cfg.LogOutput(),
		start:       time.Now(),
	}
	if inv.output != nil {
		logger, err := inv.output.Init(inv.log)
		if err != nil {
			inv.log.Warn("Failed to initialise the invocation log output", "err", err)
		} else {
			inv.log = logger
		}
		defer func() {
			if err := inv.output.Close(); err != nil {
				inv.log.Warn("Failed to close the invocation log output", "err", err)
			}
		}()
	}

	inv.listeners = cfg.Listeners()
	inv.listeners = append(inv.listeners, extra...)
	if p, ok := cfg.Profiler().(result.InvocationListener); ok {
		inv.listeners = append(inv.listeners, p)
	}
	inv.listener = result.NewLogSaverResultForwarder(inv.log, cfg.LogSaver(), inv.listeners...)

	ictx.SetConfigName(cfg.Name())
	for k, v := range inv.opts.InvocationData {
		ictx.AddAttribute(k, v)
	}

	err := inv.run(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (inv *invocation) run(ctx context.Context) error {
	ok, err := inv.fetchBuilds(ctx)
	if !ok {
		return err
	}

	inv.tests = inv.cfg.Tests()
	switch {
	case inv.opts.IsStrictSharding():
		inv.tests = strictShard(inv.tests, inv.opts.ShardCount, inv.opts.ShardIndex)
	case inv.opts.IsLegacySharding():
		if inv.dispatchShards() {
			inv.t.setState(StateEnded)
			metrics.RecordInvocation(inv.cfg.Name(), statusSharded)
			return nil
		}
	}
	if len(inv.tests) == 0 {
		inv.log.Info("No tests to run")
		inv.cleanUpBuilds()
		inv.t.setState(StateEnded)
		metrics.RecordInvocation(inv.cfg.Name(), statusNoTests)
		return nil
	}

	inv.logStart()
	inv.listener.InvocationStarted(inv.ictx)
	cause := inv.perform(ctx)
	var returnErr error
	if cause != nil {
		inv.t.setState(StateFailed)
		returnErr = inv.handleError(ctx, cause)
	}
	if err := inv.finish(ctx, cause); err != nil && returnErr == nil {
		returnErr = err
	}

	status := statusPassed
	switch {
	case inv.resumed:
		status = statusResumed
	case cause != nil || returnErr != nil:
		status = statusFailed
	}
	metrics.RecordInvocation(inv.cfg.Name(), status)
	return returnErr
}

// fetchBuilds stores a build per device slot in the context. It reports false
// when the invocation must stop; the returned error is then the invocation's
// result.
func (inv *invocation) fetchBuilds(ctx context.Context) (bool, error) {
	for _, dc := range inv.cfg.DeviceConfigs() {
		b, err := fetchBuild(ctx, dc.BuildProvider(), inv.ictx.Device(dc.Name()))
		if err != nil {
			inv.reportBuildRetrievalError(ctx, dc.Name(), err)
			return false, nil
		}
		if b == nil {
			inv.log.Warn("No build available", "device", dc.Name())
			if !inv.opts.Loop {
				inv.rescheduler.RescheduleCommand()
			}
			inv.cleanUpBuilds()
			inv.t.setState(StateEnded)
			metrics.RecordInvocation(inv.cfg.Name(), statusNoBuild)
			return false, nil
		}
		if inv.opts.TestTag != "" {
			b.TestTag = inv.opts.TestTag
		}
		if inv.ictx.TestTag() == "" && b.TestTag != "" {
			inv.ictx.SetTestTag(b.TestTag)
		}
		inv.ictx.AddBuildInfo(dc.Name(), b)
	}
	return true, nil
}

func fetchBuild(ctx context.Context, provider types.BuildProvider, device types.Device) (*types.BuildInfo, error) {
	if provider == nil {
		return nil, errors.New("no build provider configured")
	}
	if dp, ok := provider.(types.DeviceBuildProvider); ok && device != nil {
		return dp.BuildForDevice(ctx, device)
	}
	return provider.Build(ctx)
}

func (inv *invocation) reportBuildRetrievalError(ctx context.Context, slot string, err error) {
	inv.log.Error("Build retrieval failed", "device", slot, "err", err)
	var brErr *types.BuildRetrievalError
	if !errors.As(err, &brErr) {
		brErr = types.NewBuildRetrievalError(nil, fmt.Errorf("failed to fetch build for %s: %w", slot, err))
	}
	inv.listener.InvocationStarted(inv.ictx)
	inv.captureLogcat(ctx, StageError)
	inv.listener.InvocationFailed(brErr)
	inv.logHostLog()
	inv.listener.InvocationEnded(0)
	inv.cleanUpBuilds()
	inv.t.setState(StateEnded)
	metrics.RecordInvocation(inv.cfg.Name(), statusBuildError)
}

func (inv *invocation) logStart() {
	var builds []string
	for _, name := range inv.ictx.DeviceNames() {
		b := inv.ictx.BuildInfo(name)
		dev := inv.ictx.Device(name)
		if b == nil || dev == nil {
			continue
		}
		builds = append(builds, fmt.Sprintf("%s on %s", b.BuildID, dev.Serial()))
	}
	inv.log.Info("Starting invocation", "tag", inv.ictx.TestTag(), "builds", strings.Join(builds, ", "))
}

// strictShard keeps the part of the tests that belongs to shard index out of
// count.
func strictShard(tests []testtype.RemoteTest, count, index int) []testtype.RemoteTest {
	var out []testtype.RemoteTest
	for i, test := range tests {
		if s, ok := test.(testtype.StrictShardable); ok {
			out = append(out, s.GetTestShard(count, index))
			continue
		}
		if i%count == index {
			out = append(out, test)
		}
	}
	return out
}

// dispatchShards splits the tests and hands every shard to the rescheduler.
// It reports false when no test could be split, in which case the invocation
// runs normally.
func (inv *invocation) dispatchShards() bool {
	var shards []testtype.RemoteTest
	split := false
	for _, test := range inv.tests {
		if s, ok := test.(testtype.Shardable); ok {
			if parts := s.Split(inv.opts.ShardCount); parts != nil {
				shards = append(shards, parts...)
				split = true
				continue
			}
		}
		shards = append(shards, test)
	}
	if !split {
		return false
	}

	inv.log.Info("Dispatching shards", "count", len(shards))
	master := NewShardMasterForwarder(inv.log, inv.listener, len(shards))
	master.InvocationStarted(inv.ictx)
	for i, test := range shards {
		opts := inv.opts.Clone()
		opts.ShardCount = 0
		opts.ShardIndex = -1
		providers := inv.clonedBuildProviders()
		derived := inv.cfg.Derive(config.Override{
			Tests:          []testtype.RemoteTest{test},
			Listeners:      []result.InvocationListener{master.NewShardListener()},
			LogSaver:       result.NopLogSaver{},
			LogOutput:      inv.clonedOutput(),
			BuildProviders: providers,
			CommandOptions: opts,
		})
		c := Continuation{Kind: ContinuationShard, Config: derived, Context: inv.ictx.Clone()}
		if inv.rescheduler.ScheduleConfig(c) {
			metrics.RecordContinuation(string(ContinuationShard), "scheduled")
			continue
		}
		metrics.RecordContinuation(string(ContinuationShard), "refused")
		cleanUpProviders(providers)
		master.ShardRefused(i)
	}
	return true
}

// clonedBuildProviders hands each slot's build, cloned, to a provider that
// reports back to the original one.
func (inv *invocation) clonedBuildProviders() map[string]types.BuildProvider {
	out := make(map[string]types.BuildProvider)
	for _, dc := range inv.cfg.DeviceConfigs() {
		b := inv.ictx.BuildInfo(dc.Name())
		if b == nil {
			continue
		}
		out[dc.Name()] = build.NewExistingProvider(b.Clone(), dc.BuildProvider())
	}
	return out
}

func cleanUpProviders(providers map[string]types.BuildProvider) {
	for _, p := range providers {
		b, err := p.Build(context.Background())
		if err == nil && b != nil {
			p.CleanUp(b)
		}
	}
}

func (inv *invocation) clonedOutput() types.LogOutput {
	if inv.output == nil {
		return nil
	}
	return inv.output.Clone()
}

func (inv *invocation) perform(ctx context.Context) error {
	inv.t.setState(StatePreDeviceSetup)
	if err := inv.preDeviceSetup(ctx); err != nil {
		return err
	}
	inv.t.setState(StateTargetPrep)
	inv.recordBattery(ctx, "initial -> setup")
	if err := inv.doSetup(ctx); err != nil {
		return err
	}
	inv.t.setState(StateRunning)
	inv.reachedRunning = true
	inv.recordBattery(ctx, "setup -> test")
	if err := inv.runTests(ctx); err != nil {
		return err
	}
	inv.recordBattery(ctx, "after test")
	return nil
}

func (inv *invocation) preDeviceSetup(ctx context.Context) error {
	for _, dc := range inv.cfg.DeviceConfigs() {
		dev := inv.ictx.Device(dc.Name())
		if dev == nil {
			continue
		}
		if r := dc.Recovery(); r != nil {
			if rr, ok := dev.(types.RecoveryReceiver); ok {
				rr.SetRecovery(r)
			}
		}
		if d, ok := dev.(types.InvocationDevice); ok {
			if err := d.PreInvocationSetup(ctx, inv.ictx.BuildInfo(dc.Name())); err != nil {
				return fmt.Errorf("pre-invocation setup of %s failed: %w", dev.Serial(), err)
			}
		}
	}
	inv.recordBattery(ctx, "initial")
	if p := inv.cfg.Profiler(); p != nil {
		if err := p.SetUp(ctx, inv.ictx); err != nil {
			return fmt.Errorf("profiler setup failed: %w", err)
		}
	}
	return nil
}

func (inv *invocation) doSetup(ctx context.Context) error {
	ctx, span := inv.tracer.Start(ctx, "target prep")
	defer span.End()

	for _, dc := range inv.cfg.DeviceConfigs() {
		dev := inv.ictx.Device(dc.Name())
		b := inv.ictx.BuildInfo(dc.Name())
		for _, prep := range dc.TargetPreparers() {
			if isDisabled(prep) {
				continue
			}
			if err := prep.SetUp(ctx, dev, b); err != nil {
				inv.log.Error("Target setup failed", "device", dc.Name(), "preparer", fmt.Sprintf("%T", prep), "err", err)
				inv.captureLogcat(ctx, StageSetup)
				span.SetStatus(codes.Error, err.Error())
				return err
			}
		}
	}
	return nil
}

func isDisabled(obj any) bool {
	d, ok := obj.(types.Disableable)
	return ok && d.IsDisabled()
}

func (inv *invocation) runTests(ctx context.Context) error {
	var device types.Device
	var b *types.BuildInfo
	if names := inv.ictx.DeviceNames(); len(names) > 0 {
		device = inv.ictx.Device(names[0])
		b = inv.ictx.BuildInfo(names[0])
	} else if dcs := inv.cfg.DeviceConfigs(); len(dcs) > 0 {
		b = inv.ictx.BuildInfo(dcs[0].Name())
	}

	for _, test := range inv.tests {
		if r, ok := test.(testtype.DeviceReceiver); ok && device != nil {
			r.SetDevice(device)
		}
		if r, ok := test.(testtype.BuildReceiver); ok {
			r.SetBuild(b)
		}
		if r, ok := test.(testtype.InvocationContextReceiver); ok {
			r.SetInvocationContext(inv.ictx)
		}
		if r, ok := test.(config.ConfigurationReceiver); ok {
			r.SetConfiguration(inv.cfg)
		}
		if r, ok := test.(testtype.SystemStatusCheckerReceiver); ok {
			r.SetSystemStatusCheckers(inv.cfg.SystemStatusCheckers())
		}
		if err := inv.runTest(ctx, test); err != nil {
			return err
		}
	}
	return nil
}

func (inv *invocation) runTest(ctx context.Context, test testtype.RemoteTest) (err error) {
	ctx, span := inv.tracer.Start(ctx, fmt.Sprintf("test %T", test))
	defer span.End()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("test %T panicked: %v", test, r)
		}
		if err != nil {
			span.SetStatus(codes.Error, err.Error())
		}
	}()
	return test.Run(ctx, inv.listener)
}

// handleError reports cause and returns the error the invocation ends with.
func (inv *invocation) handleError(ctx context.Context, cause error) error {
	var buildErr *types.BuildError
	var setupErr *types.TargetSetupError
	var dnae *types.DeviceNotAvailableError

	switch {
	case errors.As(cause, &buildErr):
		inv.log.Warn("Build failed on device", "serial", buildErr.Serial, "err", buildErr)
		inv.bugreportName = BuildErrorBugreportName
		inv.badDevice = inv.deviceBySerial(buildErr.Serial)
		if buildErr.FailedToBoot {
			inv.setRecoveryNone(inv.badDevice)
		}
		inv.reportFailure(cause)
		return nil
	case errors.As(cause, &setupErr):
		inv.log.Error("Target setup failed", "serial", setupErr.Serial, "err", setupErr)
		inv.bugreportName = TargetSetupErrorBugreportName
		inv.badDevice = inv.deviceBySerial(setupErr.Serial)
		inv.reportFailure(cause)
		return nil
	case errors.As(cause, &dnae):
		inv.log.Warn("Invocation did not complete due to device becoming not available", "serial", dnae.Serial, "err", dnae)
		inv.badDevice = inv.deviceBySerial(dnae.Serial)
		if dnae.Unresponsive && inv.badDevice != nil {
			inv.bugreportName = DeviceUnresponsiveBugreportName
		}
		inv.resumed = inv.resume(ctx)
		if inv.resumed {
			inv.log.Info("Rescheduled failed invocation for resume")
		} else {
			inv.reportFailure(cause)
		}
		inv.setRecoveryNone(inv.badDevice)
		return cause
	case types.IsAssertionError(cause):
		inv.log.Error("Assertion failed during invocation", "err", cause)
		inv.reportFailure(cause)
		return nil
	default:
		inv.log.Error("Unexpected error when running invocation", "err", cause)
		inv.reportFailure(cause)
		return cause
	}
}

func (inv *invocation) reportFailure(err error) {
	inv.listener.InvocationFailed(err)
	// A build that failed to install is neither handed back nor retried.
	if types.IsBuildError(err) {
		return
	}
	for _, dc := range inv.cfg.DeviceConfigs() {
		if b := inv.ictx.BuildInfo(dc.Name()); b != nil && dc.BuildProvider() != nil {
			dc.BuildProvider().BuildNotTested(b)
		}
	}
	if inv.isRetriable() && !inv.opts.Loop {
		inv.log.Info("Rescheduling retriable invocation")
		inv.rescheduler.RescheduleCommand()
	}
}

func (inv *invocation) isRetriable() bool {
	for _, test := range inv.tests {
		if r, ok := test.(testtype.Retriable); ok && r.IsRetriable() {
			return true
		}
	}
	return false
}

func (inv *invocation) isResumable() bool {
	for _, test := range inv.tests {
		if r, ok := test.(testtype.Resumable); ok && r.IsResumable() {
			return true
		}
	}
	return false
}

// resume hands the rest of the invocation to the rescheduler. The resumed
// invocation reports to the same listeners.
func (inv *invocation) resume(ctx context.Context) bool {
	if !inv.isResumable() {
		return false
	}
	providers := inv.clonedBuildProviders()
	fwd := NewResumeResultForwarder(inv.log, time.Since(inv.start), inv.listeners...)
	derived := inv.cfg.Derive(config.Override{
		Tests:          inv.tests,
		Listeners:      []result.InvocationListener{fwd},
		LogOutput:      inv.clonedOutput(),
		BuildProviders: providers,
	})
	c := Continuation{Kind: ContinuationResume, Config: derived, Context: inv.ictx.Clone()}
	if inv.rescheduler.ScheduleConfig(c) {
		metrics.RecordContinuation(string(ContinuationResume), "scheduled")
		return true
	}
	inv.log.Info("Failed to schedule resumed invocation")
	metrics.RecordContinuation(string(ContinuationResume), "refused")
	cleanUpProviders(providers)
	return false
}

// finish runs the cleanup that follows every invocation, failed or not. It
// returns the first teardown error when nothing failed before.
func (inv *invocation) finish(ctx context.Context, cause error) error {
	if inv.reachedRunning {
		inv.captureLogcat(ctx, StageTest)
	}
	if inv.opts.BugreportOnInvocationEnded && inv.bugreportName == "" {
		inv.bugreportName = InvocationEndedBugreportName
	}
	if inv.bugreportName != "" {
		inv.captureBugreport(ctx, inv.bugreportName, inv.badDevice)
	}

	inv.t.setState(StateTargetTeardown)
	teardownErr := inv.tearDown(ctx, cause)
	if teardownErr != nil && cause == nil {
		inv.reportFailure(teardownErr)
	}
	inv.captureLogcat(ctx, StageTeardown)

	inv.t.setState(StatePostDeviceTeardown)
	for _, dev := range inv.ictx.Devices() {
		if d, ok := dev.(types.InvocationDevice); ok {
			d.PostInvocationTearDown(ctx)
		}
	}
	if p := inv.cfg.Profiler(); p != nil {
		p.ReportAllMetrics(inv.listener)
	}

	inv.logHostLog()
	if !inv.resumed {
		inv.t.setState(StateEnded)
		inv.listener.InvocationEnded(time.Since(inv.start))
		inv.listener.PutSummary(inv.listener.Summaries())
	}
	inv.cleanUpBuilds()

	if cause != nil {
		return nil
	}
	return teardownErr
}

// tearDown runs every cleaner, per device in reverse declaration order.
func (inv *invocation) tearDown(ctx context.Context, cause error) error {
	ctx, span := inv.tracer.Start(ctx, "target teardown")
	defer span.End()

	var first error
	for _, dc := range inv.cfg.DeviceConfigs() {
		dev := inv.ictx.Device(dc.Name())
		b := inv.ictx.BuildInfo(dc.Name())
		preps := dc.TargetPreparers()
		for i := len(preps) - 1; i >= 0; i-- {
			cleaner, ok := preps[i].(types.TargetCleaner)
			if !ok || isDisabled(preps[i]) {
				continue
			}
			if err := cleaner.TearDown(ctx, dev, b, cause); err != nil {
				inv.log.Error("Target teardown failed", "device", dc.Name(), "preparer", fmt.Sprintf("%T", preps[i]), "err", err)
				if first == nil {
					first = err
				}
			}
		}
	}
	return first
}

func (inv *invocation) cleanUpBuilds() {
	for _, dc := range inv.cfg.DeviceConfigs() {
		b := inv.ictx.BuildInfo(dc.Name())
		if b == nil || dc.BuildProvider() == nil {
			continue
		}
		dc.BuildProvider().CleanUp(b)
	}
}

func (inv *invocation) deviceBySerial(serial string) types.Device {
	for _, dev := range inv.ictx.Devices() {
		if dev != nil && dev.Serial() == serial {
			return dev
		}
	}
	return nil
}

// setRecoveryNone disables recovery on dev, or on every device when dev is
// unknown.
func (inv *invocation) setRecoveryNone(dev types.Device) {
	if dev != nil {
		dev.SetRecoveryMode(types.RecoveryModeNone)
		return
	}
	for _, d := range inv.ictx.Devices() {
		if d != nil {
			d.SetRecoveryMode(types.RecoveryModeNone)
		}
	}
}

// snapshotName suffixes name with the serial when several devices take part.
func (inv *invocation) snapshotName(name string, dev types.Device) string {
	if len(inv.ictx.Devices()) > 1 {
		return name + "_" + dev.Serial()
	}
	return name
}

func (inv *invocation) captureLogcat(ctx context.Context, stage Stage) {
	for _, dev := range inv.ictx.Devices() {
		c, ok := dev.(types.LogcatCapturer)
		if !ok {
			continue
		}
		src, err := c.Logcat(ctx)
		if err != nil {
			inv.log.Warn("Failed to capture logcat", "serial", dev.Serial(), "stage", stage, "err", err)
			continue
		}
		inv.listener.TestLog(inv.snapshotName("device_logcat_"+string(stage), dev), types.LogDataLogcat, src)
	}
}

// captureBugreport takes a bugreport on only, or on every device when only is
// nil.
func (inv *invocation) captureBugreport(ctx context.Context, name string, only types.Device) {
	devices := inv.ictx.Devices()
	if only != nil {
		devices = []types.Device{only}
	}
	for _, dev := range devices {
		c, ok := dev.(types.BugreportCapturer)
		if !ok {
			continue
		}
		src, err := c.Bugreport(ctx)
		if err != nil {
			inv.log.Warn("Failed to capture bugreport", "serial", dev.Serial(), "name", name, "err", err)
			continue
		}
		inv.listener.TestLog(inv.snapshotName(name, dev), types.LogDataBugreport, src)
	}
}

func (inv *invocation) recordBattery(ctx context.Context, event string) {
	for _, dev := range inv.ictx.Devices() {
		r, ok := dev.(types.BatteryReporter)
		if !ok {
			continue
		}
		level, err := r.BatteryLevel(ctx)
		if err != nil {
			inv.log.Debug("Failed to read battery level", "serial", dev.Serial(), "err", err)
			continue
		}
		inv.log.Debug("Battery level", "serial", dev.Serial(), "event", event, "level", level)
		inv.ictx.AddAttribute(fmt.Sprintf(batteryAttributeFormat, dev.Serial(), event), strconv.Itoa(level))
	}
}

func (inv *invocation) logHostLog() {
	if inv.output == nil {
		return
	}
	src, err := inv.output.HostLog()
	if err != nil {
		inv.log.Warn("Failed to read host log", "err", err)
		return
	}
	inv.listener.TestLog(HostLogName, types.LogDataHostLog, src)
}
