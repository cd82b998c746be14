package types

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// BuildRetrievalError is returned by a build provider that could not fetch a
// build. The invocation ends before any device is touched.
type BuildRetrievalError struct {
	Build *BuildInfo
	Err   error
}

func (e *BuildRetrievalError) Error() string {
	return fmt.Sprintf("build retrieval failed: %v", e.Err)
}

func (e *BuildRetrievalError) Unwrap() error {
	return e.Err
}

func NewBuildRetrievalError(build *BuildInfo, err error) *BuildRetrievalError {
	return &BuildRetrievalError{Build: build, Err: err}
}

func IsBuildRetrievalError(err error) bool {
	var target *BuildRetrievalError
	return err != nil && errors.As(err, &target)
}

// BuildError reports a build that could not be installed. FailedToBoot is set
// when the device did not come back afterwards.
type BuildError struct {
	Serial       string
	Message      string
	FailedToBoot bool
}

func (e *BuildError) Error() string {
	if e.FailedToBoot {
		return fmt.Sprintf("build error on %s (device failed to boot): %s", e.Serial, e.Message)
	}
	return fmt.Sprintf("build error on %s: %s", e.Serial, e.Message)
}

func NewBuildError(serial, message string) *BuildError {
	return &BuildError{Serial: serial, Message: message}
}

func IsBuildError(err error) bool {
	var target *BuildError
	return err != nil && errors.As(err, &target)
}

// TargetSetupError reports a target preparer that failed.
type TargetSetupError struct {
	Serial  string
	Message string
	Err     error
}

func (e *TargetSetupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("target setup failed on %s: %s: %v", e.Serial, e.Message, e.Err)
	}
	return fmt.Sprintf("target setup failed on %s: %s", e.Serial, e.Message)
}

func (e *TargetSetupError) Unwrap() error {
	return e.Err
}

func NewTargetSetupError(serial, message string, err error) *TargetSetupError {
	return &TargetSetupError{Serial: serial, Message: message, Err: err}
}

func IsTargetSetupError(err error) bool {
	var target *TargetSetupError
	return err != nil && errors.As(err, &target)
}

// DeviceNotAvailableError signals that a device went away. Unresponsive is set
// when the device is still connected but recovery succeeded only partially.
type DeviceNotAvailableError struct {
	Serial       string
	Message      string
	Unresponsive bool
}

func (e *DeviceNotAvailableError) Error() string {
	if e.Unresponsive {
		return fmt.Sprintf("device %s unresponsive: %s", e.Serial, e.Message)
	}
	return fmt.Sprintf("device %s not available: %s", e.Serial, e.Message)
}

func NewDeviceNotAvailableError(serial, message string) *DeviceNotAvailableError {
	return &DeviceNotAvailableError{Serial: serial, Message: message}
}

func NewDeviceUnresponsiveError(serial, message string) *DeviceNotAvailableError {
	return &DeviceNotAvailableError{Serial: serial, Message: message, Unresponsive: true}
}

// AsDeviceNotAvailable returns the DeviceNotAvailableError wrapped by err.
func AsDeviceNotAvailable(err error) (*DeviceNotAvailableError, bool) {
	var target *DeviceNotAvailableError
	if err != nil && errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

func IsDeviceNotAvailable(err error) bool {
	_, ok := AsDeviceNotAvailable(err)
	return ok
}

func IsDeviceUnresponsive(err error) bool {
	dnae, ok := AsDeviceNotAvailable(err)
	return ok && dnae.Unresponsive
}

// FatalHostError is an unrecoverable problem with the host itself.
type FatalHostError struct {
	Message string
}

func (e *FatalHostError) Error() string {
	return fmt.Sprintf("fatal host error: %s", e.Message)
}

func NewFatalHostError(message string) *FatalHostError {
	return &FatalHostError{Message: message}
}

func IsFatalHostError(err error) bool {
	var target *FatalHostError
	return err != nil && errors.As(err, &target)
}

// AssertionError is an invariant failure raised by a test harness component.
type AssertionError struct {
	Message string
}

func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertion failed: %s", e.Message)
}

func NewAssertionError(message string) *AssertionError {
	return &AssertionError{Message: message}
}

func IsAssertionError(err error) bool {
	var target *AssertionError
	return err != nil && errors.As(err, &target)
}

// Trace renders err with a stack trace for reporting through testFailed and
// testRunFailed.
func Trace(err error) string {
	if err == nil {
		return ""
	}
	return fmt.Sprintf("%+v", pkgerrors.WithStack(err))
}
