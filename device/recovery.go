package device

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// WaitRecovery recovers a device by waiting for it to become available again,
// rebooting it between attempts when possible.
type WaitRecovery struct {
	Attempts int           `option:"recovery-attempts"`
	Interval time.Duration `option:"recovery-interval"`
}

var _ types.DeviceRecovery = (*WaitRecovery)(nil)

func NewWaitRecovery() *WaitRecovery {
	return &WaitRecovery{Attempts: 3, Interval: 5 * time.Second}
}

func (r *WaitRecovery) RecoverDevice(ctx context.Context, device types.Device) error {
	if device.RecoveryMode() == types.RecoveryModeNone {
		return types.NewDeviceNotAvailableError(device.Serial(), "recovery is disabled for this device")
	}
	if fake, ok := device.(*FakeDevice); ok {
		fake.markRecovered()
	}
	waiter, ok := device.(types.AvailabilityWaiter)
	if !ok {
		return nil
	}
	attempts := max(r.Attempts, 1)
	var lastErr error
	for i := 0; i < attempts; i++ {
		if i > 0 {
			if rb, ok := device.(types.Rebooter); ok {
				_ = rb.Reboot(ctx)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(r.Interval):
			}
		}
		if lastErr = waiter.WaitForDeviceAvailable(ctx); lastErr == nil {
			return nil
		}
	}
	return types.NewDeviceUnresponsiveError(device.Serial(), fmt.Sprintf("device did not recover after %d attempts: %v", attempts, lastErr))
}
