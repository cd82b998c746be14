package targetprep

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Errors a StubPreparer can be told to raise from SetUp.
const (
	StubErrorTargetSetup  = "target-setup"
	StubErrorBuild        = "build"
	StubErrorBoot         = "boot"
	StubErrorNotAvailable = "not-available"
	StubErrorFatal        = "fatal"
)

// StubPreparer records its calls and fails on request.
type StubPreparer struct {
	Error         string `option:"error"`
	FailTearDown  bool   `option:"fail-teardown"`
	// TearDownError is StubErrorNotAvailable to lose the device in TearDown.
	TearDownError string `option:"teardown-error"`
	Disable       bool   `option:"disable"`

	mu            sync.Mutex
	setUps        int
	tearDowns     int
	tearDownCause error
}

var (
	_ types.TargetPreparer = (*StubPreparer)(nil)
	_ types.TargetCleaner  = (*StubPreparer)(nil)
	_ types.Disableable    = (*StubPreparer)(nil)
)

func (p *StubPreparer) IsDisabled() bool { return p.Disable }

func (p *StubPreparer) SetUp(ctx context.Context, device types.Device, build *types.BuildInfo) error {
	p.mu.Lock()
	p.setUps++
	p.mu.Unlock()

	serial := device.Serial()
	switch p.Error {
	case "":
		return nil
	case StubErrorTargetSetup:
		return types.NewTargetSetupError(serial, "stub setup failure", nil)
	case StubErrorBuild:
		return types.NewBuildError(serial, "stub build failure")
	case StubErrorBoot:
		err := types.NewBuildError(serial, "stub boot failure")
		err.FailedToBoot = true
		return err
	case StubErrorNotAvailable:
		return types.NewDeviceNotAvailableError(serial, "stub device lost during setup")
	case StubErrorFatal:
		return types.NewFatalHostError("stub fatal host error")
	default:
		return fmt.Errorf("unknown stub error %q", p.Error)
	}
}

func (p *StubPreparer) TearDown(ctx context.Context, device types.Device, build *types.BuildInfo, cause error) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tearDowns++
	p.tearDownCause = cause
	if p.TearDownError == StubErrorNotAvailable {
		return types.NewDeviceNotAvailableError(device.Serial(), "stub device lost during teardown")
	}
	if p.FailTearDown {
		return errors.New("stub teardown failure")
	}
	return nil
}

func (p *StubPreparer) SetUpCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.setUps
}

func (p *StubPreparer) TearDownCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tearDowns
}

// TearDownCause returns the error the last teardown was called with.
func (p *StubPreparer) TearDownCause() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.tearDownCause
}

// RebootPreparer reboots the device before the tests run.
type RebootPreparer struct {
	Disable bool `option:"disable"`

	log log.Logger
}

func NewRebootPreparer(logger log.Logger) *RebootPreparer {
	if logger == nil {
		logger = log.New()
	}
	return &RebootPreparer{log: logger}
}

func (p *RebootPreparer) IsDisabled() bool { return p.Disable }

func (p *RebootPreparer) SetUp(ctx context.Context, device types.Device, build *types.BuildInfo) error {
	r, ok := device.(types.Rebooter)
	if !ok {
		p.log.Debug("Device does not support reboot, skipping", "serial", device.Serial())
		return nil
	}
	if err := r.Reboot(ctx); err != nil {
		return types.NewTargetSetupError(device.Serial(), "reboot failed", err)
	}
	if w, ok := device.(types.AvailabilityWaiter); ok {
		if err := w.WaitForDeviceAvailable(ctx); err != nil {
			return types.NewDeviceNotAvailableError(device.Serial(), fmt.Sprintf("device did not come back after reboot: %v", err))
		}
	}
	return nil
}
