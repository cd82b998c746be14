// Package suite runs a list of modules, each a configuration with its own
// preparers and tests, as a single test. Suites shard at module granularity.
package suite

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/metrics"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	notExecutedMessage = "Module did not run due to device not available."

	preModuleChecker  = "PreModuleChecker"
	postModuleChecker = "PostModuleChecker"
)

// Suite is a test made of modules.
type Suite struct {
	RebootPerModule          bool     `option:"reboot-per-module"`
	SkipAllSystemStatusCheck bool     `option:"skip-all-system-status-check"`
	ReportSystemCheckers     bool     `option:"report-system-checkers"`
	CollectTestsOnly         bool     `option:"collect-tests-only"`
	Modules                  []string `option:"module"`
	SuiteTag                 string   `option:"suite-tag"`

	// Loader overrides the configuration based loader.
	Loader ModuleLoader

	log      log.Logger
	device   types.Device
	build    *types.BuildInfo
	ictx     *types.InvocationContext
	cfg      *config.Configuration
	checkers []types.SystemStatusChecker

	// units is set on shards, which run exactly these modules.
	units   []*ModuleDefinition
	sharded bool
}

var (
	_ testtype.RemoteTest                  = (*Suite)(nil)
	_ testtype.Shardable                   = (*Suite)(nil)
	_ testtype.DeviceReceiver              = (*Suite)(nil)
	_ testtype.BuildReceiver               = (*Suite)(nil)
	_ testtype.InvocationContextReceiver   = (*Suite)(nil)
	_ testtype.SystemStatusCheckerReceiver = (*Suite)(nil)
	_ config.ConfigurationReceiver         = (*Suite)(nil)
)

func New(logger log.Logger) *Suite {
	if logger == nil {
		logger = log.New()
	}
	return &Suite{log: logger.New("component", "suite")}
}

func (s *Suite) SetDevice(device types.Device) { s.device = device }
func (s *Suite) SetBuild(build *types.BuildInfo) { s.build = build }
func (s *Suite) SetInvocationContext(ictx *types.InvocationContext) { s.ictx = ictx }
func (s *Suite) SetConfiguration(cfg *config.Configuration) { s.cfg = cfg }

func (s *Suite) SetSystemStatusCheckers(checkers []types.SystemStatusChecker) {
	s.checkers = checkers
}

// IsSharded reports whether the suite is a shard of another suite.
func (s *Suite) IsSharded() bool { return s.sharded }

func (s *Suite) loader() ModuleLoader {
	if s.Loader != nil {
		return s.Loader
	}
	l := &ConfigLoader{Log: s.log, Names: s.Modules, SuiteTag: s.SuiteTag}
	if s.cfg != nil {
		l.Factory = s.cfg.Factory()
	}
	return l
}

// LoadUnits returns the modules this suite runs, expanded for shardCount.
func (s *Suite) LoadUnits(ctx context.Context, shardCount int) ([]*ModuleDefinition, error) {
	if s.sharded {
		return s.units, nil
	}
	modules, err := s.loader().LoadModules(ctx)
	if err != nil {
		return nil, err
	}
	splitter := &ModuleSplitter{Log: s.log}
	return splitter.Units(ctx, modules, shardCount)
}

// Split deals the suite's modules into at most shardCount suites.
func (s *Suite) Split(shardCount int) []testtype.RemoteTest {
	if shardCount <= 1 || s.sharded {
		return nil
	}
	units, err := s.LoadUnits(context.Background(), shardCount)
	if err != nil {
		s.log.Error("Failed to load modules for sharding", "err", err)
		return nil
	}
	shards := ShardModules(units, shardCount)
	if len(shards) == 0 {
		return nil
	}
	out := make([]testtype.RemoteTest, 0, len(shards))
	for _, group := range shards {
		out = append(out, s.shard(group))
	}
	s.log.Info("Split suite", "units", len(units), "shards", len(out))
	return out
}

func (s *Suite) shard(units []*ModuleDefinition) *Suite {
	c := *s
	c.Modules = nil
	c.units = units
	c.sharded = true
	return &c
}

func (s *Suite) Run(ctx context.Context, listener result.InvocationListener) error {
	modules, err := s.LoadUnits(ctx, 1)
	if err != nil {
		return fmt.Errorf("failed to load suite modules: %w", err)
	}
	s.log.Info("Running suite", "modules", len(modules), "sharded", s.sharded)

	env := Environment{
		Device:      s.device,
		Build:       s.build,
		Context:     s.ictx,
		CollectOnly: s.CollectTestsOnly,
	}
	for i, m := range modules {
		if len(m.Tests()) == 0 {
			s.log.Info("Skipping module without tests", "module", m.ID())
			continue
		}
		if err := s.runModule(ctx, listener, m, env); err != nil {
			if types.IsDeviceNotAvailable(err) {
				s.reportNotExecuted(listener, modules[i+1:])
			}
			return err
		}
	}
	return nil
}

func (s *Suite) runModule(ctx context.Context, listener result.InvocationListener, m *ModuleDefinition, env Environment) error {
	if s.RebootPerModule {
		if r, ok := s.device.(types.Rebooter); ok {
			s.log.Debug("Rebooting device before module", "module", m.ID())
			if err := r.Reboot(ctx); err != nil {
				if types.IsDeviceNotAvailable(err) {
					s.reportNotExecuted(listener, []*ModuleDefinition{m})
					return err
				}
				s.log.Warn("Reboot before module failed", "module", m.ID(), "err", err)
			}
		}
	}

	runChecks := !s.SkipAllSystemStatusCheck && !s.CollectTestsOnly && len(s.checkers) > 0
	if runChecks {
		s.runCheckers(ctx, listener, m.ID(), preModuleChecker)
	}
	if err := m.Run(ctx, listener, env); err != nil {
		return err
	}
	if runChecks {
		s.runCheckers(ctx, listener, m.ID(), postModuleChecker)
	}
	return nil
}

// runCheckers runs every checker for one side of a module. Failures never
// stop the suite.
func (s *Suite) runCheckers(ctx context.Context, listener result.InvocationListener, module, phase string) {
	var failed []string
	for _, c := range s.checkers {
		var ok bool
		var err error
		if phase == preModuleChecker {
			ok, err = c.PreExecutionCheck(ctx, s.device)
		} else {
			ok, err = c.PostExecutionCheck(ctx, s.device)
		}
		if err != nil {
			s.log.Warn("System status checker errored", "checker", c.Name(), "module", module, "err", err)
			metrics.RecordErrorDetails("system_checker", err)
		}
		if err != nil || !ok {
			failed = append(failed, c.Name())
		}
	}

	if len(failed) > 0 {
		side := "pre"
		if phase == postModuleChecker {
			side = "post"
		}
		s.log.Warn("System status checks failed", "module", module, "phase", side, "checkers", failed)
		s.captureBugreport(ctx, listener, fmt.Sprintf("bugreport-checker-%s-module-%s", side, module))
	}

	if !s.ReportSystemCheckers {
		return
	}
	listener.TestRunStarted(fmt.Sprintf("%s_%s", phase, module), 0)
	if len(failed) > 0 {
		listener.TestRunFailed(fmt.Sprintf("%s failed '[%s]' checkers", module, strings.Join(failed, ", ")))
	}
	listener.TestRunEnded(0, map[string]string{})
}

func (s *Suite) captureBugreport(ctx context.Context, listener result.InvocationListener, name string) {
	bc, ok := s.device.(types.BugreportCapturer)
	if !ok {
		return
	}
	src, err := bc.Bugreport(ctx)
	if err != nil {
		s.log.Warn("Failed to capture bugreport", "name", name, "err", err)
		return
	}
	listener.TestLog(name, types.LogDataBugreport, src)
}

// reportNotExecuted gives every module that will not run an empty failed run.
func (s *Suite) reportNotExecuted(listener result.InvocationListener, modules []*ModuleDefinition) {
	for _, m := range modules {
		if len(m.Tests()) == 0 {
			continue
		}
		listener.TestRunStarted(m.ID(), 0)
		listener.TestRunFailed(notExecutedMessage)
		listener.TestRunEnded(0, map[string]string{})
		metrics.RecordModule(metrics.ModuleNotExecuted)
	}
}
