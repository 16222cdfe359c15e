package task

import (
	"errors"
	"fmt"
)

// ErrDependencyMissing indicates a declared dependency has not produced the
// data this task needs. Raised while evaluating readiness for submission.
var ErrDependencyMissing = errors.New("task: dependency output is missing")

// ConfigurationError reports an invalid execution policy. It is raised at
// construction time and never retried.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("task: invalid policy: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("task: invalid policy: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// StateError reports an operation invoked before the task reached the status
// it requires, e.g. reading results before Done. It signals a caller
// sequencing bug.
type StateError struct {
	Op     string
	Status Status
}

func (e *StateError) Error() string {
	return fmt.Sprintf("task: cannot %s while status is %s", e.Op, e.Status)
}
