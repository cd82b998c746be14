package invoker

import (
	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ContinuationKind tells the rescheduler why a configuration is handed over.
type ContinuationKind string

const (
	ContinuationShard  ContinuationKind = "shard"
	ContinuationResume ContinuationKind = "resume"
)

// Continuation is work the current invocation could not, or should not, do
// itself. The rescheduler runs it as a new invocation.
type Continuation struct {
	Kind    ContinuationKind
	Config  *config.Configuration
	Context *types.InvocationContext
}

// Rescheduler accepts continuations. The orchestrator never starts
// goroutines; all concurrency lives behind this interface.
type Rescheduler interface {
	// ScheduleConfig queues a continuation. It reports false when the
	// continuation was refused.
	ScheduleConfig(c Continuation) bool
	// RescheduleCommand asks for the whole command to run again later.
	RescheduleCommand() bool
}

// NopRescheduler refuses everything.
type NopRescheduler struct{}

func (NopRescheduler) ScheduleConfig(Continuation) bool { return false }
func (NopRescheduler) RescheduleCommand() bool { return false }
