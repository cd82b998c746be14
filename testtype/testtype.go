// Package testtype defines the contract every runnable test implements, the
// optional capabilities the orchestrator looks for, and the builtin tests.
package testtype

import (
	"context"

	"github.com/ethereum-optimism/infra/op-harness/result"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// RemoteTest is a unit of work that reports its results to a listener.
type RemoteTest interface {
	Run(ctx context.Context, listener result.InvocationListener) error
}

// DeviceReceiver receives the device of the first slot before running.
type DeviceReceiver interface {
	SetDevice(device types.Device)
}

type BuildReceiver interface {
	SetBuild(build *types.BuildInfo)
}

type InvocationContextReceiver interface {
	SetInvocationContext(ictx *types.InvocationContext)
}

// SystemStatusCheckerReceiver receives the checkers run around suite modules.
type SystemStatusCheckerReceiver interface {
	SetSystemStatusCheckers(checkers []types.SystemStatusChecker)
}

// Shardable tests can split themselves into independent shards. Split
// returns nil when the test cannot be split further.
type Shardable interface {
	Split(shardCount int) []RemoteTest
}

// StrictShardable tests can produce the exact shard for a given index, so
// every host computes the same partition.
type StrictShardable interface {
	GetTestShard(shardCount int, shardIndex int) RemoteTest
}

// Resumable tests can continue where they stopped after a device loss.
type Resumable interface {
	IsResumable() bool
}

// Retriable tests ask to be rescheduled when the invocation fails.
type Retriable interface {
	IsRetriable() bool
}

// TestCollector tests can list their tests without running them.
type TestCollector interface {
	SetCollectTestsOnly(collect bool)
}
