package suite

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/log"

	"github.com/ethereum-optimism/infra/op-harness/config"
)

// ModuleConfig is a module configuration resolved by a loader.
type ModuleConfig struct {
	Name   string
	Config *config.Configuration
}

// ModuleLoader produces the module configurations a suite runs, in order.
type ModuleLoader interface {
	LoadModules(ctx context.Context) ([]ModuleConfig, error)
}

// ConfigLoader resolves modules through a configuration factory: the names
// given explicitly, followed by every bundled configuration tagged SuiteTag.
type ConfigLoader struct {
	Log      log.Logger
	Factory  *config.Factory
	Names    []string
	SuiteTag string
}

var _ ModuleLoader = (*ConfigLoader)(nil)

func (l *ConfigLoader) LoadModules(ctx context.Context) ([]ModuleConfig, error) {
	if l.Factory == nil {
		return nil, &config.ConfigurationError{Message: "suite has no configuration factory to load modules from"}
	}
	logger := l.Log
	if logger == nil {
		logger = log.New()
	}

	names := slices.Clone(l.Names)
	if l.SuiteTag != "" {
		tagged, err := l.Factory.ConfigsForSuiteTag(l.SuiteTag)
		if err != nil {
			return nil, fmt.Errorf("failed to list configs for suite tag %s: %w", l.SuiteTag, err)
		}
		logger.Debug("Found tagged modules", "tag", l.SuiteTag, "modules", len(tagged))
		names = append(names, tagged...)
	}

	seen := make(map[string]bool, len(names))
	modules := make([]ModuleConfig, 0, len(names))
	for _, name := range names {
		if seen[name] {
			return nil, &config.ConfigurationError{
				Config:  name,
				Message: fmt.Sprintf("Circular configuration detected: %s has been included several times.", name),
			}
		}
		seen[name] = true

		cfg, err := l.Factory.CreateConfigurationFromArgs(ctx, []string{name})
		if err != nil {
			return nil, fmt.Errorf("failed to load module %s: %w", name, err)
		}
		if err := validateModule(cfg); err != nil {
			return nil, err
		}
		modules = append(modules, ModuleConfig{Name: name, Config: cfg})
	}
	return modules, nil
}

// validateModule rejects configurations that would nest a suite.
func validateModule(cfg *config.Configuration) error {
	for _, t := range cfg.Tests() {
		if _, ok := t.(*Suite); ok {
			return &config.ConfigurationError{
				Config:  cfg.Name(),
				Message: fmt.Sprintf("Configuration %s cannot be run in a suite.", cfg.Name()),
			}
		}
	}
	return nil
}
