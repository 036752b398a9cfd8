package types

import (
	"fmt"
	"strings"
)

// ConfigError reports an invalid benchmark configuration: a bad
// statement source, a non-positive run count, or a missing connection.
// It is surfaced at configure time, never deferred.
type ConfigError struct {
	Reason string
}

func (e ConfigError) Error() string {
	return "invalid configuration: " + e.Reason
}

// StateError reports an operation that is illegal in the benchmark's
// current state, such as reconfiguring after iteration has started or
// restarting an exhausted iteration.
type StateError struct {
	Op string
}

func (e StateError) Error() string {
	return "illegal state: " + e.Op
}

// ExecError wraps the driver error that terminated a run sequence. The
// engine never retries: a benchmark measures real behavior, and a
// partially failed run is not a meaningful sample.
type ExecError struct {
	Run int
	Err error
}

func (e ExecError) Error() string {
	return fmt.Sprintf("run %d failed: %v", e.Run, e.Err)
}

func (e ExecError) Unwrap() error {
	return e.Err
}

// Errors is an error type that concatenates multiple errors.
type Errors []error

// Error returns a string containing all the errors in e.
func (e Errors) Error() string {
	var errs []string
	for _, err := range e {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}
	return strings.Join(errs, "; ")
}

// Empty returns whether e has any non-nil errors in it.
func (e Errors) Empty() bool {
	for _, err := range e {
		if err != nil {
			return false
		}
	}
	return true
}
