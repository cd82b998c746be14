package config

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

const (
	// DefaultDeviceName is the implicit slot of a single-device configuration.
	DefaultDeviceName = "DEFAULT_DEVICE"

	// KeyStorePrefix marks an option value that is read from the key store.
	KeyStorePrefix = "USE_KEYSTORE@"
)

// KeyStore resolves secret option values.
type KeyStore interface {
	Get(ctx context.Context, key string) (string, error)
}

// ConfigurationReceiver objects are handed the configuration they belong to
// before they run.
type ConfigurationReceiver interface {
	SetConfiguration(cfg *Configuration)
}

// CommandOptions holds the options that drive the invocation itself.
type CommandOptions struct {
	Loop                       bool              `option:"loop"`
	MinLoopTime                time.Duration     `option:"min-loop-time"`
	DryRun                     bool              `option:"dry-run"`
	ShardCount                 int               `option:"shard-count"`
	ShardIndex                 int               `option:"shard-index"`
	BugreportOnInvocationEnded bool              `option:"bugreport-on-invocation-ended"`
	TestTag                    string            `option:"test-tag"`
	InvocationData             map[string]string `option:"invocation-data"`
}

func NewCommandOptions() *CommandOptions {
	return &CommandOptions{
		ShardIndex:     -1,
		InvocationData: make(map[string]string),
	}
}

// IsStrictSharding reports whether this host runs one fixed shard out of
// ShardCount.
func (o *CommandOptions) IsStrictSharding() bool {
	return o.ShardCount > 0 && o.ShardIndex >= 0 && o.ShardIndex < o.ShardCount
}

// IsLegacySharding reports whether tests should be split into local shards.
func (o *CommandOptions) IsLegacySharding() bool {
	return o.ShardCount > 1 && o.ShardIndex < 0
}

func (o *CommandOptions) Clone() *CommandOptions {
	c := *o
	c.InvocationData = maps.Clone(o.InvocationData)
	return &c
}

// DeviceRequirements selects which device may be allocated to a slot.
type DeviceRequirements struct {
	Serials    []string `option:"serial"`
	MinBattery int      `option:"min-battery"`
}

func NewDeviceRequirements() *DeviceRequirements {
	return &DeviceRequirements{}
}

// Matches reports whether device satisfies the requirements. Devices that
// cannot report a battery level pass the battery check.
func (r *DeviceRequirements) Matches(ctx context.Context, device types.Device) bool {
	if len(r.Serials) > 0 && !slices.Contains(r.Serials, device.Serial()) {
		return false
	}
	if r.MinBattery > 0 {
		if br, ok := device.(types.BatteryReporter); ok {
			level, err := br.BatteryLevel(ctx)
			if err != nil || level < r.MinBattery {
				return false
			}
		}
	}
	return true
}
