package types

import (
	"context"
	"maps"
)

// BuildInfo describes the build under test. It is an opaque value produced by
// a BuildProvider.
type BuildInfo struct {
	BuildID      string
	TestTag      string
	BuildFlavor  string
	Branch       string
	DeviceSerial string
	Files        map[string]string
	Attributes   map[string]string
}

// Clone returns a deep copy, used when a build is handed to a continuation.
func (b *BuildInfo) Clone() *BuildInfo {
	if b == nil {
		return nil
	}
	c := *b
	c.Files = maps.Clone(b.Files)
	c.Attributes = maps.Clone(b.Attributes)
	return &c
}

// AddAttribute records a build attribute.
func (b *BuildInfo) AddAttribute(key, value string) {
	if b.Attributes == nil {
		b.Attributes = make(map[string]string)
	}
	b.Attributes[key] = value
}

// BuildProvider produces builds. A nil build with a nil error means no build is
// currently available.
type BuildProvider interface {
	Build(ctx context.Context) (*BuildInfo, error)
	BuildNotTested(build *BuildInfo)
	CleanUp(build *BuildInfo)
}

// DeviceBuildProvider resolves a build for a specific device.
type DeviceBuildProvider interface {
	BuildForDevice(ctx context.Context, device Device) (*BuildInfo, error)
}

// TargetPreparer sets a device up before tests run.
type TargetPreparer interface {
	SetUp(ctx context.Context, device Device, build *BuildInfo) error
}

// TargetCleaner is a TargetPreparer that also undoes its work. cause is the
// error that ended the invocation, if any.
type TargetCleaner interface {
	TearDown(ctx context.Context, device Device, build *BuildInfo, cause error) error
}

// Disableable is implemented by preparers that can be switched off through
// options.
type Disableable interface {
	IsDisabled() bool
}
