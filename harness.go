// Package harness runs test invocations described by configurations, once or
// periodically, on the devices of this host.
package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum-optimism/optimism/op-service/cliapp"
	"github.com/urfave/cli/v2"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/device"
	"github.com/ethereum-optimism/infra/op-harness/exitcodes"
	"github.com/ethereum-optimism/infra/op-harness/keystore"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/service"
	"github.com/ethereum-optimism/infra/op-harness/targetprep"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// DefaultMinLoopTime spaces loop mode invocations when neither the command
// nor the service sets an interval.
const DefaultMinLoopTime = time.Minute

// DefaultDeviceSerial names the placeholder device used when no device is
// configured.
const DefaultDeviceSerial = "placeholder-0"

// harness implements the cliapp.Lifecycle interface.
var _ cliapp.Lifecycle = &harness{}

type harness struct {
	ctx       context.Context
	config    *Config
	version   string
	factory   *config.Factory
	scheduler *Scheduler
	formatter ResultFormatter
	svc       *service.Service
	out       io.Writer
	closers   []io.Closer

	mu      sync.Mutex
	summary *RunSummary

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup

	shutdownCallback func(error)
}

func New(ctx context.Context, cfg *Config, version string, shutdownCallback func(error)) (*harness, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	cfg.Log.Debug("Creating harness with config",
		"config", cfg.ConfigName,
		"args", cfg.Args,
		"configDirs", cfg.ConfigDirs,
		"runInterval", cfg.RunInterval,
		"runOnce", cfg.RunOnce,
		"devices", cfg.Devices)

	h := &harness{
		ctx:              ctx,
		config:           cfg,
		version:          version,
		out:              os.Stdout,
		done:             make(chan struct{}),
		shutdownCallback: shutdownCallback,
	}

	limiter := targetprep.NewFlashingLimiter(cfg.ConcurrentFlasherLimit)
	registry, err := NewRegistry(cfg, limiter)
	if err != nil {
		return nil, fmt.Errorf("failed to create registry: %w", err)
	}

	var store config.KeyStore = keystore.NewMapStore(nil)
	if cfg.KeyStore.RedisURL != "" {
		rs, err := keystore.DialRedisStore(cfg.KeyStore.RedisURL, cfg.KeyStore.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open keystore: %w", err)
		}
		store = rs
		h.closers = append(h.closers, rs)
	}

	h.factory, err = config.NewFactory(config.Config{
		Log:        cfg.Log,
		Registry:   registry,
		ConfigDirs: cfg.ConfigDirs,
		KeyStore:   store,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create configuration factory: %w", err)
	}

	serials := cfg.Devices
	if len(serials) == 0 {
		serials = []string{DefaultDeviceSerial}
	}
	devices := make([]types.Device, 0, len(serials))
	for _, serial := range serials {
		devices = append(devices, device.NewPlaceholderDevice(serial))
	}
	h.scheduler = NewScheduler(SchedulerConfig{
		Log:     cfg.Log,
		Devices: device.NewPool(cfg.Log, devices...),
		MaxJobs: cfg.ShardWorkers,
	})
	h.formatter = NewConsoleResultFormatter(cfg.Log, h.out)
	h.svc = service.New(service.Config{
		Log:         cfg.Log,
		HealthzAddr: cfg.HealthzAddr,
		MetricsAddr: cfg.MetricsAddr(),
		Ready:       h.running.Load,
	})

	cfg.Log.Info("harness.New: created registry, factory and scheduler", "devices", len(devices))
	return h, nil
}

// Start runs the command immediately, then again at every interval unless it
// runs once. Repeating harnesses also serve healthz and metrics.
// Start implements the cliapp.Lifecycle interface.
func (h *harness) Start(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			h.config.Log.Error("Runtime error occurred", "error", r)
			err = cli.Exit(fmt.Sprintf("runtime error: %v", r), exitcodes.RuntimeErr)
		}
	}()

	h.ctx = ctx
	h.done = make(chan struct{})
	h.running.Store(true)

	opts, err := h.runCommand(ctx)
	if err != nil {
		h.config.Log.Error("Runtime error running command", "error", err)
		return NewRuntimeError(err)
	}

	interval := h.config.RunInterval
	if opts != nil && opts.Loop {
		interval = max(interval, opts.MinLoopTime)
		if interval == 0 {
			interval = DefaultMinLoopTime
		}
	}
	if interval == 0 {
		h.config.Log.Info("Command completed, exiting (run-once mode)")
		if s := h.Summary(); s != nil && s.Failed() {
			h.config.Log.Warn("Run-once invocation completed with failures, returning exit code 1")
			return NewTestFailureError(s)
		}
		go func() {
			h.shutdownCallback(nil)
		}()
		return nil
	}

	if err := h.svc.Start(ctx); err != nil {
		h.running.Store(false)
		return NewRuntimeError(err)
	}

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.config.Log.Debug("Starting periodic invocation goroutine", "interval", interval)
		for {
			select {
			case <-time.After(interval):
				if !h.running.Load() {
					h.config.Log.Debug("Service stopped, exiting periodic runner")
					return
				}
				h.config.Log.Info("Running periodic invocation")
				if _, err := h.runCommand(ctx); err != nil {
					h.config.Log.Error("Error running periodic invocation", "error", err)
				}
			case <-h.done:
				h.config.Log.Debug("Done signal received, stopping periodic runner")
				return
			case <-ctx.Done():
				h.config.Log.Debug("Context canceled, stopping periodic runner")
				h.running.Store(false)
				return
			}
		}
	}()
	h.config.Log.Debug("op-harness started successfully", "interval", interval)
	return nil
}

// runCommand resolves the command and runs it with every continuation it
// produces. It returns the command options of the resolved configuration.
func (h *harness) runCommand(ctx context.Context) (*config.CommandOptions, error) {
	args := append([]string{h.config.ConfigName}, h.config.Args...)
	cfg, err := h.factory.CreateConfigurationFromArgs(ctx, args)
	if err != nil {
		return nil, NewRuntimeError(fmt.Errorf("failed to resolve configuration: %w", err))
	}
	opts := cfg.CommandOptions()
	if h.config.DryRun || opts.DryRun {
		h.config.Log.Info("Dry run, printing configuration", "config", cfg.Name())
		if err := cfg.Dump(h.out); err != nil {
			return nil, NewRuntimeError(err)
		}
		return nil, nil
	}

	listener := result.NewCollectingListener()
	jobs, err := h.scheduler.Run(ctx, cfg, listener)
	var dnae *types.DeviceNotAvailableError
	if err != nil && !errors.As(err, &dnae) {
		return nil, NewRuntimeError(err)
	}
	summary := NewRunSummary(cfg.Name(), listener, jobs)
	h.mu.Lock()
	h.summary = summary
	h.mu.Unlock()

	if err := h.formatter.FormatResults(summary); err != nil {
		h.config.Log.Warn("Failed to print results", "err", err)
	}
	h.config.Log.Info("Command completed", "invocation", summary.InvocationID, "status", summary.Status())
	return opts, nil
}

// Summary returns the result of the latest command run.
func (h *harness) Summary() *RunSummary {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.summary
}

// Stop implements the cliapp.Lifecycle interface.
func (h *harness) Stop(ctx context.Context) error {
	h.config.Log.Info("Stopping op-harness")
	if !h.running.Load() {
		h.config.Log.Debug("Service already stopped, nothing to do")
		h.shutdownService(ctx)
		return nil
	}
	h.running.Store(false)
	close(h.done)
	h.wg.Wait()
	h.shutdownService(ctx)

	for _, c := range h.closers {
		if err := c.Close(); err != nil {
			h.config.Log.Warn("Failed to close resource", "err", err)
		}
	}
	h.config.Log.Info("op-harness stopped successfully")
	return nil
}

func (h *harness) shutdownService(ctx context.Context) {
	if err := h.svc.Shutdown(ctx); err != nil {
		h.config.Log.Warn("Failed to shut down service", "err", err)
	}
}

// Stopped implements the cliapp.Lifecycle interface.
func (h *harness) Stopped() bool {
	return !h.running.Load()
}
