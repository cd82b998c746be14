package types

import (
	"context"
)

// RecoveryMode controls how aggressively a device is recovered when it stops
// responding.
type RecoveryMode int

const (
	RecoveryModeAvailable RecoveryMode = iota
	RecoveryModeOnline
	RecoveryModeNone
)

func (m RecoveryMode) String() string {
	switch m {
	case RecoveryModeAvailable:
		return "available"
	case RecoveryModeOnline:
		return "online"
	case RecoveryModeNone:
		return "none"
	default:
		return "unknown"
	}
}

// Device is an opaque handle to an allocated device.
type Device interface {
	Serial() string
	RecoveryMode() RecoveryMode
	SetRecoveryMode(mode RecoveryMode)
}

// The capabilities below are optional. Placeholder devices implement none of
// them and are skipped wherever telemetry would be collected.

// LogcatCapturer can return a snapshot of the device log.
type LogcatCapturer interface {
	Logcat(ctx context.Context) (StreamSource, error)
}

// BugreportCapturer can produce a full bugreport.
type BugreportCapturer interface {
	Bugreport(ctx context.Context) (StreamSource, error)
}

// BatteryReporter exposes the battery level, in percent.
type BatteryReporter interface {
	BatteryLevel(ctx context.Context) (int, error)
}

// InvocationDevice hooks into the start and end of an invocation.
type InvocationDevice interface {
	PreInvocationSetup(ctx context.Context, build *BuildInfo) error
	PostInvocationTearDown(ctx context.Context)
}

// RecoveryReceiver accepts the recovery configured for its device slot.
type RecoveryReceiver interface {
	SetRecovery(recovery DeviceRecovery)
}

// AvailabilityWaiter blocks until the device is usable again, for example
// after a flash or a reboot.
type AvailabilityWaiter interface {
	WaitForDeviceAvailable(ctx context.Context) error
}

// FlashableDevice can install a build on itself.
type FlashableDevice interface {
	Flash(ctx context.Context, build *BuildInfo) error
}

// Rebooter can reboot the device.
type Rebooter interface {
	Reboot(ctx context.Context) error
}

// DeviceRecovery restores a device that stopped responding.
type DeviceRecovery interface {
	RecoverDevice(ctx context.Context, device Device) error
}

// SystemStatusChecker verifies device health around suite modules.
type SystemStatusChecker interface {
	Name() string
	PreExecutionCheck(ctx context.Context, device Device) (bool, error)
	PostExecutionCheck(ctx context.Context, device Device) (bool, error)
}

// ShellExecutor runs a shell command on the device. Property toggles such as
// wifi or screen state are built on it outside this module.
type ShellExecutor interface {
	ExecuteShellCommand(ctx context.Context, command string) (string, error)
}
