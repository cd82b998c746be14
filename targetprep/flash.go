package targetprep

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// Flasher installs a build on a device.
type Flasher interface {
	Flash(ctx context.Context, device types.Device, build *types.BuildInfo) error
}

// DeviceFlasher flashes devices that know how to install a build themselves.
type DeviceFlasher struct{}

func (DeviceFlasher) Flash(ctx context.Context, device types.Device, build *types.BuildInfo) error {
	fd, ok := device.(types.FlashableDevice)
	if !ok {
		return fmt.Errorf("device %s cannot be flashed", device.Serial())
	}
	return fd.Flash(ctx, build)
}

// DeviceFlashPreparer flashes the build onto the device, bounded by a flashing
// limiter, then waits for the device to come back.
type DeviceFlashPreparer struct {
	ConcurrentFlasherLimit int  `option:"concurrent-flasher-limit"`
	Disable                bool `option:"disable"`
	SkipWait               bool `option:"skip-wait-for-available"`

	log         log.Logger
	flasher     Flasher
	hostLimiter *FlashingLimiter
}

var (
	_ types.TargetPreparer = (*DeviceFlashPreparer)(nil)
	_ types.Disableable    = (*DeviceFlashPreparer)(nil)
)

// NewDeviceFlashPreparer creates the preparer. A non-nil hostLimiter takes
// precedence over the concurrent-flasher-limit option.
func NewDeviceFlashPreparer(logger log.Logger, flasher Flasher, hostLimiter *FlashingLimiter) *DeviceFlashPreparer {
	if logger == nil {
		logger = log.New()
	}
	if flasher == nil {
		flasher = DeviceFlasher{}
	}
	return &DeviceFlashPreparer{
		log:         logger,
		flasher:     flasher,
		hostLimiter: hostLimiter,
	}
}

func (p *DeviceFlashPreparer) IsDisabled() bool { return p.Disable }

// Limiter returns the limiter flashes go through.
func (p *DeviceFlashPreparer) Limiter() *FlashingLimiter {
	if p.hostLimiter != nil {
		return p.hostLimiter
	}
	return SharedLimiter(p.ConcurrentFlasherLimit)
}

func (p *DeviceFlashPreparer) SetUp(ctx context.Context, device types.Device, build *types.BuildInfo) error {
	serial := device.Serial()
	if build == nil {
		return types.NewTargetSetupError(serial, "no build to flash", nil)
	}
	limiter := p.Limiter()
	p.log.Info("Flashing device", "serial", serial, "build", build.BuildID, "limit", limiter.Limit())
	err := limiter.WithPermit(ctx, func() error {
		return p.flasher.Flash(ctx, device, build)
	})
	if err != nil {
		return types.NewTargetSetupError(serial, "failed to flash device", err)
	}
	if p.SkipWait {
		return nil
	}
	if w, ok := device.(types.AvailabilityWaiter); ok {
		if err := w.WaitForDeviceAvailable(ctx); err != nil {
			buildErr := types.NewBuildError(serial, fmt.Sprintf("device did not come back after flashing build %s: %v", build.BuildID, err))
			buildErr.FailedToBoot = true
			return buildErr
		}
	}
	p.log.Info("Flashed device", "serial", serial, "build", build.BuildID)
	return nil
}
