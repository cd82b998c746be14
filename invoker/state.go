package invoker

// State is a stage of an invocation.
type State int

const (
	StateStarted State = iota
	StatePreDeviceSetup
	StateTargetPrep
	StateRunning
	StateTargetTeardown
	StatePostDeviceTeardown
	StateEnded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "STARTED"
	case StatePreDeviceSetup:
		return "PRE_DEVICE_SETUP"
	case StateTargetPrep:
		return "TARGET_PREP"
	case StateRunning:
		return "RUNNING"
	case StateTargetTeardown:
		return "TARGET_TEARDOWN"
	case StatePostDeviceTeardown:
		return "POST_DEVICE_TEARDOWN"
	case StateEnded:
		return "ENDED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}
