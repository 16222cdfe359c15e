package task

import "fmt"

// Status is the position of a task in its lifecycle. The values form a
// total order used for comparisons ("at least Done"); once a task is
// submitted, status never decreases except for the single Ready reset
// performed by adaptive tuning.
type Status int

const (
	// StatusReady: the task is ready for submission.
	StatusReady Status = 1
	// StatusSubmitted: the task has been handed to the queue backend.
	StatusSubmitted Status = 2
	// StatusRunning: the task is assumed to be executing.
	StatusRunning Status = 4
	// StatusDone: the process terminated. This says nothing about whether
	// the computation itself succeeded.
	StatusDone Status = 8
	// StatusError: classification found a concrete failure signal.
	StatusError Status = 16
	// StatusOk: the run completed successfully.
	StatusOk Status = 32
)

var statusNames = map[Status]string{
	StatusReady:     "Ready",
	StatusSubmitted: "Submitted",
	StatusRunning:   "Running",
	StatusDone:      "Done",
	StatusError:     "Error",
	StatusOk:        "Completed",
}

// Known reports whether s is one of the recognized statuses.
func (s Status) Known() bool {
	_, ok := statusNames[s]
	return ok
}

// Terminal reports whether classification has reached a verdict.
func (s Status) Terminal() bool {
	return s == StatusError || s == StatusOk
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// historyCap bounds the lifecycle log so long-running supervisors do not
// accumulate unbounded per-task state.
const historyCap = 10

// History is a bounded log of human-readable lifecycle annotations,
// oldest evicted first.
type History struct {
	entries []string
}

// Append records one annotation, evicting the oldest past capacity.
func (h *History) Append(entry string) {
	h.entries = append(h.entries, entry)
	if len(h.entries) > historyCap {
		h.entries = h.entries[len(h.entries)-historyCap:]
	}
}

// Entries returns a copy of the recorded annotations, oldest first.
func (h *History) Entries() []string {
	out := make([]string, len(h.entries))
	copy(out, h.entries)
	return out
}

// Len returns the number of retained annotations.
func (h *History) Len() int {
	return len(h.entries)
}
