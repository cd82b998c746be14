package config

import (
	"errors"
	"fmt"
)

// ConfigurationError is returned for every problem found while resolving a
// configuration. It is always fatal to the load.
type ConfigurationError struct {
	Config  string
	Message string
}

func (e *ConfigurationError) Error() string {
	return e.Message
}

func newConfigError(config string, format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Config: config, Message: fmt.Sprintf(format, args...)}
}

// IsConfigurationError checks if an error is a ConfigurationError
func IsConfigurationError(err error) bool {
	var configErr *ConfigurationError
	return errors.As(err, &configErr)
}
