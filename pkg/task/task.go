// Package task tracks one unit of external computational work through its
// lifecycle: submission, status triangulation from partial signals, and
// result extraction. State lives in memory; the authoritative ground truth
// is the task's own artifacts on disk.
package task

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/jobflow/jobflow/internal/fsutil"
	"github.com/jobflow/jobflow/pkg/events"
	"github.com/jobflow/jobflow/pkg/process"
)

// Artifact file names inside a task's working directory.
const (
	inputName         = "run.in"
	outputName        = "run.out"
	stdinManifestName = "run.files"
	scriptName        = "job.sh"
	logName           = "run.log"
	stderrName        = "run.err"
	queueOutName      = "queue.out"
	queueErrName      = "queue.err"
)

// Data subdirectories created under the working directory.
const (
	inDataDir  = "indata"
	outDataDir = "outdata"
	tmpDataDir = "tmpdata"
)

// Observer is notified after every status change. It runs under the task's
// lock and must not call back into the task; use it to feed metrics and
// external supervisors.
type Observer func(id int, from, to Status, reason string)

// Task is one externally executed job. All mutable state is guarded by an
// internal lock; a task still has exactly one logical owner at a time.
type Task struct {
	mu sync.Mutex

	id         int
	workdir    string
	executable string
	params     *Params
	render     Renderer
	deps       []*Task

	status   Status
	history  History
	queueID  string
	exitCode int
	exitSet  bool

	// Absent until submission; the nil handle is the "not started" variant
	// and polls as still running.
	proc process.Handle

	// Computed once the task reaches Done.
	report  *events.Report
	results *Results

	observer Observer
	log      *zap.Logger

	// Owned artifact references.
	Input         fsutil.File
	Output        fsutil.File
	StdinManifest fsutil.File
	Script        fsutil.File
	Log           fsutil.File
	Stderr        fsutil.File
	QueueOut      fsutil.File
	QueueErr      fsutil.File
}

// Option configures a Task at construction.
type Option func(*Task)

// WithExecutable sets the external executable invoked by the job script.
func WithExecutable(path string) Option {
	return func(t *Task) { t.executable = path }
}

// WithParams seeds the task's parameter set.
func WithParams(vars map[string]interface{}) Option {
	return func(t *Task) { t.params = NewParams(vars) }
}

// WithDependencies declares the tasks whose completion gates this one.
func WithDependencies(deps ...*Task) Option {
	return func(t *Task) { t.deps = append(t.deps, deps...) }
}

// WithRenderer overrides the input artifact renderer.
func WithRenderer(r Renderer) Option {
	return func(t *Task) { t.render = r }
}

// WithObserver registers a status change observer.
func WithObserver(obs Observer) Option {
	return func(t *Task) { t.observer = obs }
}

// WithLogger attaches a logger. Default is a nop logger.
func WithLogger(log *zap.Logger) Option {
	return func(t *Task) { t.log = log }
}

// New constructs a Ready task rooted at workdir. The id must be unique
// within the owning collection.
func New(id int, workdir string, opts ...Option) *Task {
	abs, err := filepath.Abs(workdir)
	if err != nil {
		abs = workdir
	}

	t := &Task{
		id:      id,
		workdir: abs,
		params:  NewParams(nil),
		render:  DefaultRenderer,
		status:  StatusReady,
		log:     zap.NewNop(),

		Input:         fsutil.NewFile(filepath.Join(abs, inputName)),
		Output:        fsutil.NewFile(filepath.Join(abs, outputName)),
		StdinManifest: fsutil.NewFile(filepath.Join(abs, stdinManifestName)),
		Script:        fsutil.NewFile(filepath.Join(abs, scriptName)),
		Log:           fsutil.NewFile(filepath.Join(abs, logName)),
		Stderr:        fsutil.NewFile(filepath.Join(abs, stderrName)),
		QueueOut:      fsutil.NewFile(filepath.Join(abs, queueOutName)),
		QueueErr:      fsutil.NewFile(filepath.Join(abs, queueErrName)),
	}

	for _, opt := range opts {
		opt(t)
	}
	return t
}

// ID returns the task identifier.
func (t *Task) ID() int { return t.id }

// Workdir returns the absolute working directory.
func (t *Task) Workdir() string { return t.workdir }

// Name returns the short task name (the working directory base).
func (t *Task) Name() string { return filepath.Base(t.workdir) }

// Executable returns the external executable path, or its default.
func (t *Task) Executable() string {
	if t.executable == "" {
		return "solver"
	}
	return t.executable
}

// Params returns the task's mutable parameter set.
func (t *Task) Params() *Params { return t.params }

// Dependencies returns the declared dependency tasks in insertion order.
func (t *Task) Dependencies() []*Task { return t.deps }

// Status returns the current lifecycle status.
func (t *Task) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// History returns a copy of the lifecycle annotations.
func (t *Task) History() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.history.Entries()
}

// QueueID returns the backend-assigned identifier, empty until submission.
func (t *Task) QueueID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.queueID
}

// ExitCode returns the recorded exit code, defaulting to 0 if the process
// has not been observed to terminate.
func (t *Task) ExitCode() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.exitCode
}

// IndataDir returns the directory for input data files.
func (t *Task) IndataDir() string { return filepath.Join(t.workdir, inDataDir) }

// OutdataDir returns the directory for output data files.
func (t *Task) OutdataDir() string { return filepath.Join(t.workdir, outDataDir) }

// TmpdataDir returns the directory for temporary data files.
func (t *Task) TmpdataDir() string { return filepath.Join(t.workdir, tmpDataDir) }

// CanRun reports whether the task is Ready and every dependency is at
// least Done.
func (t *Task) CanRun() bool {
	if t.Status() != StatusReady {
		return false
	}
	for _, dep := range t.deps {
		if dep.Status() < StatusDone {
			return false
		}
	}
	return true
}

// IsCompleted reports whether the process has finished, successfully or not.
func (t *Task) IsCompleted() bool {
	return t.Status() >= StatusDone
}

// setStatus records a status change, appending history entries for the
// state-changing events. Once submitted, status never moves backward: a
// lower classification is ignored and the current status returned.
func (t *Task) setStatus(status Status, reason string) (Status, error) {
	if !status.Known() {
		return t.status, fmt.Errorf("task %d: unknown status %d", t.id, int(status))
	}

	if status < t.status && t.status >= StatusSubmitted {
		return t.status, nil
	}

	from := t.status
	changed := status != t.status
	t.status = status

	if changed {
		switch status {
		case StatusSubmitted:
			t.history.Append(fmt.Sprintf("Submitted on %s", time.Now().Format(time.RFC3339)))
		case StatusOk:
			t.history.Append(fmt.Sprintf("Completed on %s", time.Now().Format(time.RFC3339)))
		case StatusError:
			t.history.Append(fmt.Sprintf("Error: %s", reason))
			t.log.Warn("task failed", zap.Int("task_id", t.id), zap.String("reason", reason))
		}

		if t.observer != nil {
			t.observer(t.id, from, status, reason)
		}
	}

	return t.status, nil
}

// Submit marks the task Submitted. It fails if the current status is not a
// recognized state.
func (t *Task) Submit() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.status.Known() {
		return fmt.Errorf("task %d: unknown status %d", t.id, int(t.status))
	}
	_, err := t.setStatus(StatusSubmitted, "")
	return err
}

// AttachProcess hands the spawned process and its backend identifier to the
// task. The task owns the handle exclusively from here on.
func (t *Task) AttachProcess(h process.Handle, queueID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.proc = h
	t.queueID = queueID
}

// Poll checks without blocking whether the process has terminated. A task
// that was never submitted polls as still running. Termination immediately
// forces Done, whether or not Running was ever observed.
func (t *Task) Poll() (int, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.proc == nil {
		return 0, false
	}

	code, done := t.proc.Poll()
	if done {
		t.recordExit(code)
	}
	return code, done
}

// Wait blocks until the process terminates and returns its exit code.
// Waiting on a never-submitted task is a sequencing bug.
func (t *Task) Wait() (int, error) {
	t.mu.Lock()
	proc := t.proc
	t.mu.Unlock()

	if proc == nil {
		return 0, process.ErrNotStarted
	}

	code, err := proc.Wait()
	if err != nil {
		return 0, err
	}

	t.mu.Lock()
	t.recordExit(code)
	t.mu.Unlock()
	return code, nil
}

// Communicate feeds input to the process, waits for completion, and returns
// captured stdout/stderr.
func (t *Task) Communicate(input string) (string, string, error) {
	t.mu.Lock()
	proc := t.proc
	t.mu.Unlock()

	if proc == nil {
		return "", "", process.ErrNotStarted
	}

	stdout, stderr, err := proc.Communicate(input)
	if err != nil {
		return stdout, stderr, err
	}

	t.mu.Lock()
	t.recordExit(proc.ExitCode())
	t.mu.Unlock()
	return stdout, stderr, nil
}

// Kill terminates the process. It does not transition status: the caller
// still observes the outcome via Poll or CheckStatus.
func (t *Task) Kill() error {
	t.mu.Lock()
	proc := t.proc
	t.mu.Unlock()

	if proc == nil {
		return process.ErrNotStarted
	}
	return proc.Kill()
}

// recordExit stores the exit code and forces Done. Callers hold the lock.
func (t *Task) recordExit(code int) {
	t.exitCode = code
	t.exitSet = true
	t.setStatus(StatusDone, "")
}

// failureSignal is one source consulted, in priority order, when a parsed
// but incomplete output leaves the outcome ambiguous.
type failureSignal struct {
	name  string
	check func(report *events.Report) (bool, string)
}

func (t *Task) failureSignals() []failureSignal {
	return []failureSignal{
		{
			// The job itself declared errors or bugs in its output.
			name: "report",
			check: func(r *events.Report) (bool, string) {
				if r.HasProblems() {
					return true, fmt.Sprintf("output declared problems: %v", r.Problems())
				}
				return false, ""
			},
		},
		{
			// Runtime fault upstream of the job's own reporting: segfault,
			// library abort. The process stderr is the only trace.
			name: "stderr",
			check: func(*events.Report) (bool, string) {
				if msg := readNonEmpty(t.Stderr); msg != "" {
					return true, "stderr: " + msg
				}
				return false, ""
			},
		},
		{
			// Queue backend fault: walltime kill, resource error. Only the
			// queue stderr artifact records it.
			name: "queue stderr",
			check: func(*events.Report) (bool, string) {
				if msg := readNonEmpty(t.QueueErr); msg != "" {
					return true, "queue stderr: " + msg
				}
				return false, ""
			},
		},
	}
}

// CheckStatus triangulates the task's status from its exit code and its
// artifacts. No single signal is trustworthy on its own: a failure upstream
// of this supervisor leaves no exit code or output it can rely on, so the
// verdict is assembled from three independent, partially available streams,
// and the default in the absence of any concrete signal is "still running",
// never Ok.
func (t *Task) CheckStatus() (Status, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status < StatusSubmitted {
		return t.status, nil
	}

	if t.exitSet && t.exitCode != 0 {
		return t.setStatus(StatusError, fmt.Sprintf("exit code %d", t.exitCode))
	}

	// An output created but not yet written (a solver that opens the file
	// on startup) is as inconclusive as a missing one.
	if !t.Output.Exists() || t.Output.IsEmpty() {
		if !t.Stderr.Exists() {
			// Still in the queue.
			return t.status, nil
		}
		if msg := readNonEmpty(t.Stderr); msg != "" {
			// Crashed before producing any output.
			return t.setStatus(StatusError, "stderr: "+msg)
		}
		return t.status, nil
	}

	report, err := (events.Parser{}).Parse(t.Output.Path())
	if err != nil {
		return t.setStatus(StatusError, "outcome parse failed: "+err.Error())
	}

	if report.RunCompleted {
		return t.setStatus(StatusOk, "")
	}

	for _, sig := range t.failureSignals() {
		if hit, reason := sig.check(report); hit {
			return t.setStatus(StatusError, reason)
		}
	}

	return t.setStatus(StatusRunning, "")
}

// Build creates the working directory layout, links every dependency's
// output into the input data directory, and writes the input artifacts.
// Directories and the stdin manifest are only created when missing; the
// input artifact is re-rendered because the parameter set may have changed
// since the last build.
func (t *Task) Build() error {
	for _, dep := range t.deps {
		if !dep.Output.Exists() {
			return fmt.Errorf("task %d: dependency %q: %w", t.id, dep.Name(), ErrDependencyMissing)
		}
	}

	for _, dir := range []string{t.workdir, t.IndataDir(), t.OutdataDir(), t.TmpdataDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("task %d: create %s: %w", t.id, dir, err)
		}
	}

	for _, dep := range t.deps {
		link := filepath.Join(t.IndataDir(), dep.Name()+"_"+dep.Output.Base())
		if _, err := os.Lstat(link); err == nil {
			continue
		}
		if err := os.Symlink(dep.Output.Path(), link); err != nil {
			return fmt.Errorf("task %d: link dependency output: %w", t.id, err)
		}
	}

	if !t.StdinManifest.Exists() {
		if err := t.StdinManifest.Write(t.manifestContent()); err != nil {
			return fmt.Errorf("task %d: write manifest: %w", t.id, err)
		}
	}

	content, err := t.render(t.params)
	if err != nil {
		return fmt.Errorf("task %d: render input: %w", t.id, err)
	}
	if err := t.Input.Write(content); err != nil {
		return fmt.Errorf("task %d: write input: %w", t.id, err)
	}

	return nil
}

// manifestContent lists the paths and prefixes the executable reads on
// stdin: input, output, then the in/out/tmp data prefixes.
func (t *Task) manifestContent() string {
	return t.Input.Path() + "\n" +
		t.Output.Path() + "\n" +
		filepath.Join(t.IndataDir(), "in") + "\n" +
		filepath.Join(t.OutdataDir(), "out") + "\n" +
		filepath.Join(t.TmpdataDir(), "tmp") + "\n"
}

// EventReport returns the parsed outcome report, computing it on first
// access. Accessing it before the task is Done is a sequencing bug.
func (t *Task) EventReport() (*events.Report, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status < StatusDone {
		return nil, &StateError{Op: "read event report", Status: t.status}
	}

	if t.report == nil {
		report, err := (events.Parser{}).Parse(t.Output.Path())
		if err != nil {
			return nil, err
		}
		t.report = report
	}
	return t.report, nil
}

// Results returns the task's result record, computing it on first access.
// Accessing it before the task is Done is a sequencing bug.
func (t *Task) Results() (*Results, error) {
	t.mu.Lock()
	status := t.status
	cached := t.results
	t.mu.Unlock()

	if status < StatusDone {
		return nil, &StateError{Op: "read results", Status: status}
	}
	if cached != nil {
		return cached, nil
	}

	report, err := t.EventReport()
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.results = NewResults(t.Name(), t.exitCode, t.status, report.Summary())
	return t.results, nil
}

// resetReady moves the task back to Ready. It is the single permitted
// backward transition and belongs to adaptive tuning: once real data has
// been classified Ok or Error, the reset is refused.
func (t *Task) resetReady(reason string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.status.Terminal() {
		return &StateError{Op: "reset to ready", Status: t.status}
	}

	t.status = StatusReady
	t.proc = nil
	t.exitCode = 0
	t.exitSet = false
	t.queueID = ""
	t.history.Append(reason)
	return nil
}

func readNonEmpty(f fsutil.File) string {
	if !f.Exists() {
		return ""
	}
	msg, err := f.Read()
	if err != nil {
		return ""
	}
	return msg
}
