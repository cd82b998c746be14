package harness

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/build"
	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/device"
	"github.com/ethereum-optimism/infra/op-harness/logging"
	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/suite"
	"github.com/ethereum-optimism/infra/op-harness/targetprep"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
)

// Identifiers of the builtin objects, usable in descriptors and on the
// command line.
const (
	ObjectStub        = "stub"
	ObjectGoTest      = "gotest"
	ObjectSuite       = "config-suite"
	ObjectDeviceFlash = "device-flash"
	ObjectReboot      = "reboot"
	ObjectLocal       = "local"
	ObjectMetrics     = "metrics"
	ObjectLog         = "log"
	ObjectFile        = "file"
	ObjectObjectStore = "object-store"
	ObjectStd         = "std"
	ObjectTiming      = "timing"
	ObjectBattery     = "battery"
	ObjectWait        = "wait"
)

type registration struct {
	tag     config.TypeTag
	id      string
	factory config.ObjectFactory
}

// NewRegistry registers every builtin object. Preparers that flash share
// limiter. Log savers write under cfg.LogDir, or to the object store when
// one is configured.
func NewRegistry(cfg *Config, limiter *targetprep.FlashingLimiter) (*config.Registry, error) {
	logger := cfg.Log
	if logger == nil {
		logger = log.New()
	}
	objectStore := cfg.ObjectStore

	regs := []registration{
		{config.TagTest, ObjectStub, func() (any, error) { return testtype.NewStubTest(), nil }},
		{config.TagTest, ObjectGoTest, func() (any, error) { return testtype.NewGoTest(logger), nil }},
		{config.TagTest, ObjectSuite, func() (any, error) { return suite.New(logger), nil }},

		{config.TagTargetPreparer, ObjectDeviceFlash, func() (any, error) {
			return targetprep.NewDeviceFlashPreparer(logger, targetprep.DeviceFlasher{}, limiter), nil
		}},
		{config.TagTargetPreparer, ObjectReboot, func() (any, error) { return targetprep.NewRebootPreparer(logger), nil }},
		{config.TagTargetPreparer, ObjectStub, func() (any, error) { return &targetprep.StubPreparer{}, nil }},

		{config.TagBuildProvider, ObjectStub, func() (any, error) { return build.NewStubProvider(), nil }},
		{config.TagBuildProvider, ObjectLocal, func() (any, error) { return build.NewLocalProvider(), nil }},

		{config.TagResultReporter, ObjectMetrics, func() (any, error) { return result.NewMetricsReporter(), nil }},
		{config.TagResultReporter, ObjectLog, func() (any, error) { return result.NewLogReporter(logger), nil }},

		{config.TagLogSaver, ObjectFile, func() (any, error) {
			s := logging.NewFileSaver(logger)
			s.Root = cfg.LogDir
			return s, nil
		}},
		{config.TagLogSaver, ObjectObjectStore, func() (any, error) {
			s := logging.NewObjectStoreSaver(logger)
			s.Endpoint = objectStore.Endpoint
			s.Bucket = objectStore.Bucket
			s.AccessKey = objectStore.AccessKey
			s.SecretKey = objectStore.SecretKey
			s.UseSSL = objectStore.UseSSL
			if objectStore.Region != "" {
				s.Region = objectStore.Region
			}
			return s, nil
		}},

		{config.TagLogger, ObjectFile, func() (any, error) { return logging.NewFileLogOutput(), nil }},
		{config.TagLogger, ObjectStd, func() (any, error) { return &logging.StdLogOutput{}, nil }},

		{config.TagProfiler, ObjectTiming, func() (any, error) { return result.NewTimingProfiler(), nil }},

		{config.TagSystemChecker, ObjectStub, func() (any, error) { return &device.StubChecker{}, nil }},
		{config.TagSystemChecker, ObjectBattery, func() (any, error) { return &device.BatteryChecker{}, nil }},

		{config.TagDeviceRecovery, ObjectWait, func() (any, error) { return device.NewWaitRecovery(), nil }},
	}

	r := config.NewRegistry()
	for _, reg := range regs {
		if err := r.Register(reg.tag, reg.id, reg.factory); err != nil {
			return nil, err
		}
	}

	saver := ObjectFile
	if objectStore.Enabled() {
		saver = ObjectObjectStore
	}
	defaults := map[config.TypeTag]string{
		config.TagBuildProvider:  ObjectStub,
		config.TagLogSaver:       saver,
		config.TagLogger:         ObjectFile,
		config.TagDeviceRecovery: ObjectWait,
	}
	for tag, id := range defaults {
		if err := r.SetDefault(tag, id); err != nil {
			return nil, err
		}
	}
	return r, nil
}
