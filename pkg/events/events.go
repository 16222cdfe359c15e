// Package events classifies the outcome of a job from its main output
// artifact. The classifier only answers the lifecycle questions: did the run
// complete, and did it report errors or bugs. Deeper semantic analysis of
// the output belongs to the job's own tooling.
package events

import "fmt"

// Event kinds reported in a job output artifact.
const (
	KindError   = "error"
	KindBug     = "bug"
	KindWarning = "warning"
	KindComment = "comment"
)

// Event is one diagnostic reported by the job itself.
type Event struct {
	Kind    string `json:"kind" yaml:"kind"`
	Message string `json:"message" yaml:"message"`
}

// Report is the structured outcome extracted from one output artifact.
type Report struct {
	RunCompleted bool
	Errors       []Event
	Bugs         []Event
	Warnings     []Event
	Comments     []Event
}

// HasProblems reports whether the job declared errors or bugs.
func (r *Report) HasProblems() bool {
	return len(r.Errors) > 0 || len(r.Bugs) > 0
}

// Problems returns a flat description of all declared errors and bugs.
func (r *Report) Problems() []string {
	out := make([]string, 0, len(r.Errors)+len(r.Bugs))
	for _, e := range r.Errors {
		out = append(out, fmt.Sprintf("%s: %s", e.Kind, e.Message))
	}
	for _, e := range r.Bugs {
		out = append(out, fmt.Sprintf("%s: %s", e.Kind, e.Message))
	}
	return out
}

// Summary returns the serializable digest stored in task results.
func (r *Report) Summary() map[string]interface{} {
	return map[string]interface{}{
		"run_completed": r.RunCompleted,
		"num_errors":    len(r.Errors),
		"num_bugs":      len(r.Bugs),
		"num_warnings":  len(r.Warnings),
		"num_comments":  len(r.Comments),
		"problems":      r.Problems(),
	}
}

// ParseError is the distinguished failure of the outcome classifier.
// It is never silently treated as success or as "still running".
type ParseError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("events: cannot parse %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("events: cannot parse %s: %s", e.Path, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
