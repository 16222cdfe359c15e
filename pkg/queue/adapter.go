// Package queue abstracts the backend a job script is submitted to: a
// batch queue system or, for direct runs, a local shell.
package queue

import (
	"context"

	"github.com/jobflow/jobflow/pkg/process"
)

// ScriptSpec names everything a backend needs to render a submission
// script for one job.
type ScriptSpec struct {
	JobName    string
	LaunchDir  string
	Executable string

	// Queue-manager streams (the script's own stdout/stderr).
	QueueOutPath string
	QueueErrPath string

	// Job streams.
	StdinPath  string
	StdoutPath string
	StderrPath string
}

// Submission names a rendered script and the queue-manager stream paths
// its process writes to. Empty stream paths default to queue.out/queue.err
// next to the script.
type Submission struct {
	ScriptPath   string
	QueueOutPath string
	QueueErrPath string
}

// Adapter renders a submission script and submits it, and owns the CPU
// geometry (MPI process count, thread count) applied to every submission.
type Adapter interface {
	// RenderScript returns the submission script text for spec.
	RenderScript(spec ScriptSpec) (string, error)

	// Submit hands a rendered script to the backend and returns a handle on
	// the spawned process along with the backend-assigned job identifier.
	Submit(ctx context.Context, sub Submission) (process.Handle, string, error)

	MPIProcs() int
	SetMPIProcs(n int)
	OmpThreads() int
	SetOmpThreads(n int)
}
