package task

import (
	"encoding/json"
	"fmt"
	"os"
)

// Reserved metadata keys identifying a serialized results record. Written
// on dump, stripped on load.
const (
	classKey  = "@class"
	moduleKey = "@module"

	resultsClass  = "TaskResults"
	resultsModule = "jobflow/task"
)

// Results is the flat record of the most important facts about a finished
// task. The four mandatory fields are always present; exceptions accumulate
// without duplicates.
type Results struct {
	Name       string                 `json:"task_name"`
	ExitCode   int                    `json:"task_returncode"`
	Status     Status                 `json:"task_status"`
	Events     map[string]interface{} `json:"task_events"`
	Exceptions []string               `json:"_exceptions"`
}

// NewResults builds a record with an empty exception list.
func NewResults(name string, exitCode int, status Status, eventSummary map[string]interface{}) *Results {
	return &Results{
		Name:       name,
		ExitCode:   exitCode,
		Status:     status,
		Events:     eventSummary,
		Exceptions: []string{},
	}
}

// PushExceptions appends descriptions, skipping any already recorded.
func (r *Results) PushExceptions(descriptions ...string) {
	for _, d := range descriptions {
		seen := false
		for _, existing := range r.Exceptions {
			if existing == d {
				seen = true
				break
			}
		}
		if !seen {
			r.Exceptions = append(r.Exceptions, d)
		}
	}
}

// AssertValid records an exception description when the exit code is
// non-zero or the status is not Completed, and returns the current
// exception list. It never raises: supervisors collect the verdicts.
func (r *Results) AssertValid() []string {
	if r.ExitCode != 0 || r.Status != StatusOk {
		r.PushExceptions(fmt.Sprintf(
			"invalid results: task_returncode=%d task_status=%s", r.ExitCode, r.Status))
	}
	return r.Exceptions
}

// Dump writes the record as pretty-printed JSON with the reserved type
// markers added.
func (r *Results) Dump(path string) error {
	raw, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("task: marshal results: %w", err)
	}

	record := map[string]interface{}{}
	if err := json.Unmarshal(raw, &record); err != nil {
		return fmt.Errorf("task: marshal results: %w", err)
	}
	record[classKey] = resultsClass
	record[moduleKey] = resultsModule

	pretty, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return fmt.Errorf("task: marshal results: %w", err)
	}
	return os.WriteFile(path, append(pretty, '\n'), 0644)
}

// LoadResults reads a record dumped by Dump, stripping the reserved
// metadata keys.
func LoadResults(path string) (*Results, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("task: read results: %w", err)
	}

	record := map[string]interface{}{}
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("task: unmarshal results: %w", err)
	}
	delete(record, classKey)
	delete(record, moduleKey)

	raw, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("task: unmarshal results: %w", err)
	}

	r := &Results{}
	if err := json.Unmarshal(raw, r); err != nil {
		return nil, fmt.Errorf("task: unmarshal results: %w", err)
	}
	if r.Exceptions == nil {
		r.Exceptions = []string{}
	}
	return r, nil
}
