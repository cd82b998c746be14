package suite

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
	"github.com/ethereum-optimism/infra/op-harness/testtype"
	"github.com/ethereum-optimism/infra/op-harness/types"
)

// ModuleSplitter turns module configurations into units of work.
type ModuleSplitter struct {
	Log log.Logger
}

// Units expands every module into one or more ModuleDefinitions. Modules
// whose configuration is shardable have their shardable tests split into
// shardCount pieces; every piece gets its own preparers.
func (s *ModuleSplitter) Units(ctx context.Context, modules []ModuleConfig, shardCount int) ([]*ModuleDefinition, error) {
	var units []*ModuleDefinition
	for _, m := range modules {
		if shardCount <= 1 || !m.Config.IsShardable() {
			units = append(units, NewModuleDefinition(s.Log, m.Name, m.Config.Tests(), preparersOf(m.Config)))
			continue
		}
		first := true
		for _, test := range m.Config.Tests() {
			parts := []testtype.RemoteTest{test}
			if st, ok := test.(testtype.Shardable); ok {
				if split := st.Split(shardCount); split != nil {
					parts = split
				}
			}
			for _, part := range parts {
				preparers, err := s.clonePreparers(ctx, m, first)
				if err != nil {
					return nil, err
				}
				first = false
				units = append(units, NewModuleDefinition(s.Log, m.Name, []testtype.RemoteTest{part}, preparers))
			}
		}
	}
	return units, nil
}

// clonePreparers re-resolves the module configuration so each unit sets up
// the device with its own preparer objects. The first unit keeps the
// originals.
func (s *ModuleSplitter) clonePreparers(ctx context.Context, m ModuleConfig, original bool) ([]types.TargetPreparer, error) {
	if original {
		return preparersOf(m.Config), nil
	}
	clone, err := m.Config.Clone(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to clone preparers of module %s: %w", m.Name, err)
	}
	return preparersOf(clone), nil
}

func preparersOf(cfg *config.Configuration) []types.TargetPreparer {
	dcs := cfg.DeviceConfigs()
	if len(dcs) == 0 {
		return nil
	}
	return dcs[0].TargetPreparers()
}

// ShardModules deals units round-robin into min(shardCount, len(units))
// shards. No shard is empty.
func ShardModules(units []*ModuleDefinition, shardCount int) [][]*ModuleDefinition {
	n := min(shardCount, len(units))
	if n <= 0 {
		return nil
	}
	shards := make([][]*ModuleDefinition, n)
	for i, u := range units {
		shards[i%n] = append(shards[i%n], u)
	}
	return shards
}
