package queue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/jobflow/jobflow/pkg/process"
)

// ShellOptions configures a ShellAdapter. Zero values select one MPI
// process, one thread, bash, and mpirun.
type ShellOptions struct {
	MPIProcs   int
	OmpThreads int
	MPIRunner  string
	Shell      string

	// Env is exported at the top of every rendered script.
	Env map[string]string

	// PreRun/PostRun lines bracket the executable invocation, e.g. module
	// loads and scratch cleanup.
	PreRun  []string
	PostRun []string
}

// ShellAdapter submits jobs as direct subprocesses of the current host,
// bypassing any batch queue. It doubles as the probe backend for adaptive
// tuning, which needs a synchronous single-CPU execution context.
type ShellAdapter struct {
	opts ShellOptions
}

// NewShellAdapter returns an adapter with defaults applied.
func NewShellAdapter(opts ShellOptions) *ShellAdapter {
	if opts.MPIProcs <= 0 {
		opts.MPIProcs = 1
	}
	if opts.OmpThreads <= 0 {
		opts.OmpThreads = 1
	}
	if opts.MPIRunner == "" {
		opts.MPIRunner = "mpirun"
	}
	if opts.Shell == "" {
		opts.Shell = "/bin/bash"
	}
	return &ShellAdapter{opts: opts}
}

// MPIProcs implements Adapter.
func (a *ShellAdapter) MPIProcs() int { return a.opts.MPIProcs }

// SetMPIProcs implements Adapter.
func (a *ShellAdapter) SetMPIProcs(n int) {
	if n > 0 {
		a.opts.MPIProcs = n
	}
}

// OmpThreads implements Adapter.
func (a *ShellAdapter) OmpThreads() int { return a.opts.OmpThreads }

// SetOmpThreads implements Adapter.
func (a *ShellAdapter) SetOmpThreads(n int) {
	if n > 0 {
		a.opts.OmpThreads = n
	}
}

// RenderScript implements Adapter.
func (a *ShellAdapter) RenderScript(spec ScriptSpec) (string, error) {
	if spec.Executable == "" {
		return "", fmt.Errorf("queue: script spec has no executable")
	}

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "# job: %s\n", spec.JobName)
	fmt.Fprintf(&b, "cd %s\n", spec.LaunchDir)
	fmt.Fprintf(&b, "export OMP_NUM_THREADS=%d\n", a.opts.OmpThreads)

	for _, k := range sortedKeys(a.opts.Env) {
		fmt.Fprintf(&b, "export %s=%s\n", k, a.opts.Env[k])
	}
	for _, line := range a.opts.PreRun {
		b.WriteString(line + "\n")
	}

	if a.opts.MPIProcs > 1 {
		fmt.Fprintf(&b, "%s -np %d %s < %s > %s 2> %s\n",
			a.opts.MPIRunner, a.opts.MPIProcs, spec.Executable,
			spec.StdinPath, spec.StdoutPath, spec.StderrPath)
	} else {
		fmt.Fprintf(&b, "%s < %s > %s 2> %s\n",
			spec.Executable, spec.StdinPath, spec.StdoutPath, spec.StderrPath)
	}

	for _, line := range a.opts.PostRun {
		b.WriteString(line + "\n")
	}

	return b.String(), nil
}

// Submit implements Adapter. The script's own stdout/stderr go to the
// queue stream paths named in the submission, so they line up with the
// artifacts status classification reads. The backend job identifier is the
// spawned pid.
func (a *ShellAdapter) Submit(ctx context.Context, sub Submission) (process.Handle, string, error) {
	qout, qerr, err := queueStreams(sub)
	if err != nil {
		return nil, "", err
	}
	defer qout.Close()
	defer qerr.Close()

	cmd := exec.CommandContext(ctx, a.opts.Shell, sub.ScriptPath)
	cmd.Stdout = qout
	cmd.Stderr = qerr

	h, err := process.Start(cmd)
	if err != nil {
		return nil, "", fmt.Errorf("queue: submit %s: %w", sub.ScriptPath, err)
	}

	return h, strconv.Itoa(h.Pid()), nil
}

func queueStreams(sub Submission) (*os.File, *os.File, error) {
	outPath := sub.QueueOutPath
	if outPath == "" {
		outPath = filepath.Join(filepath.Dir(sub.ScriptPath), "queue.out")
	}
	errPath := sub.QueueErrPath
	if errPath == "" {
		errPath = filepath.Join(filepath.Dir(sub.ScriptPath), "queue.err")
	}

	qout, err := os.OpenFile(outPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, nil, fmt.Errorf("queue: open queue stdout: %w", err)
	}
	qerr, err := os.OpenFile(errPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		qout.Close()
		return nil, nil, fmt.Errorf("queue: open queue stderr: %w", err)
	}
	return qout, qerr, nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
