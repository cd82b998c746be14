package harness

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ethereum/go-ethereum/log"
	"github.com/sourcegraph/conc/pool"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/device"
	"github.com/ethereum-optimism/infra/op-harness/invoker"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// MaxCommandAttempts bounds how often a command is run again after asking to
// be rescheduled.
const MaxCommandAttempts = 3

// Job kinds.
const (
	JobCommand    = "command"
	JobReschedule = "reschedule"
)

// JobResult is the outcome of one invocation run by the scheduler.
type JobResult struct {
	Kind   string
	Config string
	Err    error
}

// SchedulerConfig holds the scheduler's configuration
type SchedulerConfig struct {
	Log log.Logger
	// Devices invocations are allocated from.
	Devices *device.Pool
	// MaxJobs bounds the invocations running at once. 0 is unbounded.
	MaxJobs int
}

// Scheduler runs a command and every continuation it produces. It is the
// invoker.Rescheduler handed to each invocation. Each job holds the devices it
// was allocated until its invocation returns; a device that became
// unavailable is never handed out again.
type Scheduler struct {
	log     log.Logger
	devices *device.Pool
	maxJobs int

	active  atomic.Int32
	pending sync.WaitGroup

	mu       sync.Mutex
	workers  *pool.ContextPool
	command  *config.Configuration
	attempts int
	results  []JobResult
}

var _ invoker.Rescheduler = (*Scheduler)(nil)

func NewScheduler(cfg SchedulerConfig) *Scheduler {
	if cfg.Log == nil {
		cfg.Log = log.New()
	}
	if cfg.Devices == nil {
		cfg.Devices = device.NewPool(cfg.Log)
	}
	return &Scheduler{
		log:     cfg.Log.New("component", "scheduler"),
		devices: cfg.Devices,
		maxJobs: cfg.MaxJobs,
	}
}

// Run invokes cfg and waits until it and every continuation it scheduled have
// finished. extra listeners only see the command itself; continuations reach
// them through the forwarders the invoker builds.
func (s *Scheduler) Run(ctx context.Context, cfg *config.Configuration, extra ...result.InvocationListener) ([]JobResult, error) {
	s.mu.Lock()
	if s.workers != nil {
		s.mu.Unlock()
		return nil, errors.New("scheduler is already running")
	}
	s.workers = pool.New().WithErrors().WithContext(ctx)
	s.command = cfg
	s.attempts = 1
	s.results = nil
	s.mu.Unlock()

	ictx := types.NewInvocationContext()
	devices, err := s.allocate(ctx, cfg, ictx)
	if err != nil {
		s.reset()
		return nil, fmt.Errorf("failed to allocate devices for %s: %w", cfg.Name(), err)
	}
	s.submit(JobCommand, cfg, ictx, devices, extra)

	// Only running jobs schedule new ones, so once pending drains nothing can
	// be submitted anymore.
	s.pending.Wait()
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	err = workers.Wait()

	s.mu.Lock()
	results := s.results
	s.mu.Unlock()
	s.reset()
	return results, err
}

func (s *Scheduler) reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.workers = nil
	s.command = nil
}

// ScheduleConfig runs a continuation on freshly allocated devices. It refuses
// when the job limit is reached or no suitable device is free.
func (s *Scheduler) ScheduleConfig(c invoker.Continuation) bool {
	if !s.admit() {
		s.log.Warn("Refusing continuation, job limit reached", "kind", c.Kind, "limit", s.maxJobs)
		return false
	}
	ictx := c.Context
	if ictx == nil {
		ictx = types.NewInvocationContext()
	}
	devices, err := s.allocate(context.Background(), c.Config, ictx)
	if err != nil {
		s.active.Add(-1)
		s.log.Warn("Refusing continuation", "kind", c.Kind, "config", c.Config.Name(), "err", err)
		return false
	}
	s.log.Info("Scheduling continuation", "kind", c.Kind, "config", c.Config.Name(), "devices", len(devices))
	s.dispatch(string(c.Kind), c.Config, ictx, devices, nil)
	return true
}

// RescheduleCommand runs the command again from its command line, at most
// MaxCommandAttempts times in total.
func (s *Scheduler) RescheduleCommand() bool {
	s.mu.Lock()
	cmd := s.command
	if cmd == nil || s.attempts >= MaxCommandAttempts {
		s.mu.Unlock()
		s.log.Warn("Not rescheduling command", "attempts", s.attempts)
		return false
	}
	s.attempts++
	attempt := s.attempts
	s.mu.Unlock()

	if !s.admit() {
		return false
	}
	ctx := context.Background()
	cfg, err := cmd.Clone(ctx)
	if err != nil {
		s.active.Add(-1)
		s.log.Error("Failed to resolve rescheduled command", "config", cmd.Name(), "err", err)
		return false
	}
	ictx := types.NewInvocationContext()
	devices, err := s.allocate(ctx, cfg, ictx)
	if err != nil {
		s.active.Add(-1)
		s.log.Warn("No device for rescheduled command", "config", cfg.Name(), "err", err)
		return false
	}
	s.log.Info("Rescheduling command", "config", cfg.Name(), "attempt", attempt)
	s.dispatch(JobReschedule, cfg, ictx, devices, nil)
	return true
}

// Results returns the jobs finished so far.
func (s *Scheduler) Results() []JobResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]JobResult(nil), s.results...)
}

func (s *Scheduler) admit() bool {
	if s.maxJobs <= 0 {
		s.active.Add(1)
		return true
	}
	for {
		n := s.active.Load()
		if int(n) >= s.maxJobs {
			return false
		}
		if s.active.CompareAndSwap(n, n+1) {
			return true
		}
	}
}

func (s *Scheduler) submit(kind string, cfg *config.Configuration, ictx *types.InvocationContext, devices []types.Device, extra []result.InvocationListener) {
	s.active.Add(1)
	s.dispatch(kind, cfg, ictx, devices, extra)
}

// dispatch starts an admitted job.
func (s *Scheduler) dispatch(kind string, cfg *config.Configuration, ictx *types.InvocationContext, devices []types.Device, extra []result.InvocationListener) {
	s.mu.Lock()
	workers := s.workers
	s.mu.Unlock()
	if workers == nil {
		s.active.Add(-1)
		s.release(devices, nil)
		s.log.Error("Scheduler is not running, dropping job", "kind", kind, "config", cfg.Name())
		return
	}
	s.pending.Add(1)
	workers.Go(func(ctx context.Context) error {
		defer s.pending.Done()
		defer s.active.Add(-1)
		inv := invoker.New(invoker.Config{Log: s.log})
		err := inv.Invoke(ctx, ictx, cfg, s, extra...)
		s.release(devices, err)

		s.mu.Lock()
		s.results = append(s.results, JobResult{Kind: kind, Config: cfg.Name(), Err: err})
		s.mu.Unlock()
		if err != nil {
			return fmt.Errorf("%s invocation of %s: %w", kind, cfg.Name(), err)
		}
		return nil
	})
}

// allocate binds one device per slot of cfg into ictx. Nothing stays
// allocated on failure.
func (s *Scheduler) allocate(ctx context.Context, cfg *config.Configuration, ictx *types.InvocationContext) ([]types.Device, error) {
	var out []types.Device
	for _, dc := range cfg.DeviceConfigs() {
		var matcher device.Matcher
		if req := dc.Requirements(); req != nil {
			matcher = req
		}
		d, err := s.devices.Allocate(ctx, matcher)
		if err != nil {
			s.release(out, nil)
			return nil, fmt.Errorf("slot %s: %w", dc.Name(), err)
		}
		ictx.AddAllocatedDevice(dc.Name(), d)
		out = append(out, d)
	}
	return out, nil
}

// release frees devices. The device an unavailable error names is freed as
// unavailable.
func (s *Scheduler) release(devices []types.Device, err error) {
	dnae, _ := types.AsDeviceNotAvailable(err)
	for _, d := range devices {
		state := device.FreeAvailable
		if dnae != nil && dnae.Serial == d.Serial() {
			state = device.FreeUnavailable
		}
		s.devices.Free(d, state)
	}
}
