package models

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration marks invalid run parameters. It is never retried.
	ErrConfiguration = errors.New("configuration error")

	// ErrState marks a simulation that cannot start or has already run.
	ErrState = errors.New("state error")
)

// ConfigError reports an invalid configuration field.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("configuration error: %s", e.Reason)
	}
	return fmt.Sprintf("configuration error: %s %s", e.Field, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfiguration
}

// StateError reports a precondition violation of the simulation driver.
type StateError struct {
	Reason string
}

func (e *StateError) Error() string {
	return "state error: " + e.Reason
}

// Is makes errors.Is(err, ErrState) succeed.
func (e *StateError) Is(target error) bool {
	return target == ErrState
}
