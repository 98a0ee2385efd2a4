// Package errs holds the error kinds shared by the setup-time builders.
package errs

import (
	"errors"
	"fmt"
)

// ErrConfig is matched by every ConfigError through errors.Is.
var ErrConfig = errors.New("configuration error")

// ConfigError reports an inconsistent parameter set detected before any
// record is processed.
type ConfigError struct {
	Component string // "criteria", "axis", "aggregator", ...
	Field     string
	Reason    string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Component, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", e.Component, e.Field, e.Reason)
}

func (e *ConfigError) Is(target error) bool {
	return target == ErrConfig
}

// Config builds a ConfigError.
func Config(component, field, format string, args ...any) error {
	return &ConfigError{
		Component: component,
		Field:     field,
		Reason:    fmt.Sprintf(format, args...),
	}
}
