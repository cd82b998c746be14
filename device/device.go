// Package device provides the host-side device handles: an in-process device
// used by stub configurations and tests, a placeholder for slots without a
// real device, and a pool that allocates devices by requirement.
package device

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// FakeDevice is an in-process device. It implements every optional device
// capability and records the calls it receives.
type FakeDevice struct {
	mu           sync.Mutex
	serial       string
	mode         types.RecoveryMode
	recovery     types.DeviceRecovery
	battery      int
	available    bool
	flashErr     error
	bootFailure  bool
	preSetupErr  error
	flashed      *types.BuildInfo
	logcat       string
	events       []string
	rebootCount  int
	recoverCount int
}

var (
	_ types.Device             = (*FakeDevice)(nil)
	_ types.LogcatCapturer     = (*FakeDevice)(nil)
	_ types.BugreportCapturer  = (*FakeDevice)(nil)
	_ types.BatteryReporter    = (*FakeDevice)(nil)
	_ types.InvocationDevice   = (*FakeDevice)(nil)
	_ types.RecoveryReceiver   = (*FakeDevice)(nil)
	_ types.Rebooter           = (*FakeDevice)(nil)
	_ types.AvailabilityWaiter = (*FakeDevice)(nil)
	_ types.FlashableDevice    = (*FakeDevice)(nil)
)

func NewFakeDevice(serial string) *FakeDevice {
	return &FakeDevice{
		serial:    serial,
		mode:      types.RecoveryModeAvailable,
		battery:   100,
		available: true,
	}
}

func (d *FakeDevice) record(format string, args ...any) {
	d.events = append(d.events, fmt.Sprintf(format, args...))
}

// Events returns the calls the device received, in order.
func (d *FakeDevice) Events() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.events...)
}

func (d *FakeDevice) Serial() string { return d.serial }

func (d *FakeDevice) RecoveryMode() types.RecoveryMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *FakeDevice) SetRecoveryMode(mode types.RecoveryMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}

func (d *FakeDevice) SetRecovery(recovery types.DeviceRecovery) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recovery = recovery
}

func (d *FakeDevice) Recovery() types.DeviceRecovery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recovery
}

func (d *FakeDevice) SetBatteryLevel(level int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.battery = level
}

func (d *FakeDevice) BatteryLevel(ctx context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.battery, nil
}

// SetAvailable controls whether WaitForDeviceAvailable succeeds.
func (d *FakeDevice) SetAvailable(available bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.available = available
}

func (d *FakeDevice) WaitForDeviceAvailable(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.bootFailure || !d.available {
		return errors.New("device not available")
	}
	return ctx.Err()
}

// SetFlashError makes the next flashes fail with err.
func (d *FakeDevice) SetFlashError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.flashErr = err
}

// SetBootFailure makes the device never come back after a flash.
func (d *FakeDevice) SetBootFailure(fail bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.bootFailure = fail
}

func (d *FakeDevice) Flash(ctx context.Context, build *types.BuildInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("flash %s", build.BuildID)
	if d.flashErr != nil {
		return d.flashErr
	}
	d.flashed = build.Clone()
	return nil
}

// FlashedBuild returns the last build flashed successfully.
func (d *FakeDevice) FlashedBuild() *types.BuildInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.flashed.Clone()
}

func (d *FakeDevice) Reboot(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rebootCount++
	d.record("reboot")
	return nil
}

func (d *FakeDevice) RebootCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rebootCount
}

func (d *FakeDevice) SetPreInvocationSetupError(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.preSetupErr = err
}

func (d *FakeDevice) PreInvocationSetup(ctx context.Context, build *types.BuildInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("pre-invocation-setup")
	return d.preSetupErr
}

func (d *FakeDevice) PostInvocationTearDown(ctx context.Context) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("post-invocation-teardown")
}

// AppendLogcat adds a line to the device log.
func (d *FakeDevice) AppendLogcat(line string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.logcat += line + "\n"
}

func (d *FakeDevice) Logcat(ctx context.Context) (types.StreamSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return types.ByteSource(d.logcat), nil
}

func (d *FakeDevice) Bugreport(ctx context.Context) (types.StreamSource, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("bugreport")
	return types.ByteSource(fmt.Sprintf("bugreport for %s\nbattery: %d\n", d.serial, d.battery)), nil
}

func (d *FakeDevice) markRecovered() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.recoverCount++
	d.record("recover")
}

// RecoverCount returns how often a recovery ran against the device.
func (d *FakeDevice) RecoverCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.recoverCount
}

// PlaceholderDevice stands in for a slot that has no real device. It has none
// of the optional capabilities.
type PlaceholderDevice struct {
	mu     sync.Mutex
	serial string
	mode   types.RecoveryMode
}

func NewPlaceholderDevice(serial string) *PlaceholderDevice {
	return &PlaceholderDevice{serial: serial, mode: types.RecoveryModeNone}
}

func (d *PlaceholderDevice) Serial() string { return d.serial }

func (d *PlaceholderDevice) RecoveryMode() types.RecoveryMode {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mode
}

func (d *PlaceholderDevice) SetRecoveryMode(mode types.RecoveryMode) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.mode = mode
}
