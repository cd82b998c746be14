package device

import (
	"context"

	"github.com/ethereum-optimism/infra/op-harness/types"
)

// BatteryChecker fails when the device battery drops below MinLevel. Devices
// without a battery always pass.
type BatteryChecker struct {
	MinLevel int `option:"min-battery-level"`
}

var _ types.SystemStatusChecker = (*BatteryChecker)(nil)

func (c *BatteryChecker) Name() string { return "battery" }

func (c *BatteryChecker) check(ctx context.Context, device types.Device) (bool, error) {
	br, ok := device.(types.BatteryReporter)
	if !ok {
		return true, nil
	}
	level, err := br.BatteryLevel(ctx)
	if err != nil {
		return false, err
	}
	return level >= c.MinLevel, nil
}

func (c *BatteryChecker) PreExecutionCheck(ctx context.Context, device types.Device) (bool, error) {
	return c.check(ctx, device)
}

func (c *BatteryChecker) PostExecutionCheck(ctx context.Context, device types.Device) (bool, error) {
	return c.check(ctx, device)
}

// StubChecker passes or fails as configured.
type StubChecker struct {
	CheckerName string `option:"checker-name"`
	FailPre     bool   `option:"fail-pre"`
	FailPost    bool   `option:"fail-post"`
}

var _ types.SystemStatusChecker = (*StubChecker)(nil)

func (c *StubChecker) Name() string {
	if c.CheckerName == "" {
		return "stub"
	}
	return c.CheckerName
}

func (c *StubChecker) PreExecutionCheck(ctx context.Context, device types.Device) (bool, error) {
	return !c.FailPre, nil
}

func (c *StubChecker) PostExecutionCheck(ctx context.Context, device types.Device) (bool, error) {
	return !c.FailPost, nil
}
