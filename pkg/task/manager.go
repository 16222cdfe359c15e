package task

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/jobflow/jobflow/pkg/hints"
	"github.com/jobflow/jobflow/pkg/metrics"
	"github.com/jobflow/jobflow/pkg/process"
	"github.com/jobflow/jobflow/pkg/queue"
)

// Probe-mode parameter names injected into a task before an adaptive
// tuning run and stripped again afterwards.
const (
	autoparalVar = "autoparal"
	maxCPUsVar   = "max_ncpus"
)

// Manager submits tasks through a queue adapter and runs the adaptive
// resource loop. Its CPU allocation is shared by every task it launches;
// concurrent Autotune calls against one manager must be serialized by the
// caller.
type Manager struct {
	adapter queue.Adapter
	policy  Policy
	log     *zap.Logger
	metrics *metrics.Collector

	// direct builds the non-queued execution context used for probe runs.
	direct func(mpiProcs int) queue.Adapter
}

// ManagerOption configures a Manager at construction.
type ManagerOption func(*Manager)

// WithManagerLogger attaches a logger. Default is a nop logger.
func WithManagerLogger(log *zap.Logger) ManagerOption {
	return func(m *Manager) { m.log = log }
}

// WithMetrics attaches a lifecycle metrics collector.
func WithMetrics(c *metrics.Collector) ManagerOption {
	return func(m *Manager) { m.metrics = c }
}

// WithDirectFactory overrides how the probe-mode execution context is
// built. The default is a single shell subprocess.
func WithDirectFactory(f func(mpiProcs int) queue.Adapter) ManagerOption {
	return func(m *Manager) { m.direct = f }
}

// NewManager builds a manager over adapter governed by policy. The policy
// must already be validated (construct it with NewPolicy or DefaultPolicy).
func NewManager(adapter queue.Adapter, policy Policy, opts ...ManagerOption) *Manager {
	m := &Manager{
		adapter: adapter,
		policy:  policy,
		log:     zap.NewNop(),
		direct: func(mpiProcs int) queue.Adapter {
			return queue.NewShellAdapter(queue.ShellOptions{MPIProcs: mpiProcs})
		},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Policy returns the manager's execution policy.
func (m *Manager) Policy() Policy { return m.policy }

// MPIProcs returns the MPI process count applied to submissions.
func (m *Manager) MPIProcs() int { return m.adapter.MPIProcs() }

// OmpThreads returns the thread count applied to submissions.
func (m *Manager) OmpThreads() int { return m.adapter.OmpThreads() }

// TotCPUs returns the total CPU count applied to submissions.
func (m *Manager) TotCPUs() int { return m.adapter.MPIProcs() * m.adapter.OmpThreads() }

// SetMPIProcs updates the MPI process count.
func (m *Manager) SetMPIProcs(n int) { m.adapter.SetMPIProcs(n) }

// SetOmpThreads updates the thread count.
func (m *Manager) SetOmpThreads(n int) { m.adapter.SetOmpThreads(n) }

// WriteScript renders the submission script for t into its script artifact
// and returns the script path.
func (m *Manager) WriteScript(t *Task) (string, error) {
	script, err := m.adapter.RenderScript(queue.ScriptSpec{
		JobName:      t.Name(),
		LaunchDir:    t.Workdir(),
		Executable:   t.Executable(),
		QueueOutPath: t.QueueOut.Path(),
		QueueErrPath: t.QueueErr.Path(),
		StdinPath:    t.StdinManifest.Path(),
		StdoutPath:   t.Log.Path(),
		StderrPath:   t.Stderr.Path(),
	})
	if err != nil {
		return "", fmt.Errorf("task %d: render script: %w", t.ID(), err)
	}

	if err := t.Script.Write(script); err != nil {
		return "", fmt.Errorf("task %d: write script: %w", t.ID(), err)
	}
	return t.Script.Path(), nil
}

// Launch builds t's on-disk layout, writes its submission script, marks it
// Submitted and hands it to the queue backend. The task's status and
// process handle are mutated in place.
func (m *Manager) Launch(ctx context.Context, t *Task) (process.Handle, error) {
	if err := t.Build(); err != nil {
		return nil, err
	}

	scriptPath, err := m.WriteScript(t)
	if err != nil {
		return nil, err
	}

	if err := t.Submit(); err != nil {
		return nil, err
	}

	h, queueID, err := m.adapter.Submit(ctx, queue.Submission{
		ScriptPath:   scriptPath,
		QueueOutPath: t.QueueOut.Path(),
		QueueErrPath: t.QueueErr.Path(),
	})
	if err != nil {
		// Leave the task Submitted; the caller decides whether to retry or
		// classify. No process exists, so polling keeps reporting running.
		return nil, fmt.Errorf("task %d: submit: %w", t.ID(), err)
	}

	t.AttachProcess(h, queueID)
	if m.metrics != nil {
		m.metrics.JobSubmitted()
	}

	m.log.Info("task submitted",
		zap.Int("task_id", t.ID()),
		zap.String("queue_id", queueID),
		zap.Int("mpi_ncpus", m.MPIProcs()),
		zap.Int("omp_ncpus", m.OmpThreads()))

	return h, nil
}

// Autotune runs one cheap single-CPU probe of t, parses the resource hints
// it reports, selects the optimal configuration, and retunes both the
// task's parameters and this manager's MPI allocation before the real
// submission.
//
// It returns the full hint set and the selected configuration. When
// adaptive tuning is disabled, or the probe yields no usable hints, it
// returns (nil, nil, nil) and the task keeps its untuned configuration.
func (m *Manager) Autotune(ctx context.Context, t *Task) (*hints.Set, *hints.Conf, error) {
	if !m.policy.AdaptiveEnabled() {
		return nil, nil, nil
	}

	if m.metrics != nil {
		m.metrics.AutotuneRun()
	}

	// Inject the probe variables; the snapshot restores the parameter set
	// to its pre-probe shape whatever happens below.
	snapshot := t.Params().Snapshot()
	t.Params().Set(autoparalVar, m.policy.Autoparal)
	t.Params().Set(maxCPUsVar, m.policy.MaxCPUs)

	set, optimal, err := m.runProbe(ctx, t)

	t.Params().Restore(snapshot)

	if err != nil {
		return nil, nil, err
	}
	if optimal == nil {
		if m.metrics != nil {
			m.metrics.AutotuneFailure()
		}
		m.log.Warn("autotune produced no usable hints, keeping untuned configuration",
			zap.Int("task_id", t.ID()))
		return nil, nil, nil
	}

	// Apply the selection: extra variables into the task, MPI count into
	// this manager so the real submission picks it up.
	t.Params().Merge(optimal.Vars)
	m.SetMPIProcs(optimal.MPIProcs)

	m.log.Info("autotune selected configuration",
		zap.Int("task_id", t.ID()),
		zap.Int("tot_ncpus", optimal.TotCPUs),
		zap.Int("mpi_ncpus", optimal.MPIProcs),
		zap.Float64("speedup", optimal.Speedup()))

	return set, optimal, nil
}

// runProbe executes the disposable probe copy of t and extracts hints from
// its process log. A (nil, nil, nil) return means "no hints".
func (m *Manager) runProbe(ctx context.Context, t *Task) (*hints.Set, *hints.Conf, error) {
	if err := t.Build(); err != nil {
		return nil, nil, err
	}

	probe := NewManager(m.direct(1), m.policy, WithManagerLogger(m.log))
	h, err := probe.Launch(ctx, t)
	if err != nil {
		t.resetReady("adaptive probe failed to launch")
		return nil, nil, err
	}

	// The probe conventionally exits non-zero; its code is not a verdict.
	if _, err := h.Wait(); err != nil {
		t.resetReady("adaptive probe wait failed")
		return nil, nil, fmt.Errorf("task %d: probe wait: %w", t.ID(), err)
	}

	if err := t.resetReady("adaptive probe completed"); err != nil {
		return nil, nil, err
	}

	// The probe may have produced a stray output artifact; a fresh run must
	// not be classified against it.
	if err := t.Output.Remove(); err != nil {
		m.log.Debug("could not remove probe output", zap.Error(err))
	}

	set, err := (hints.Parser{}).Parse(t.Log.Path())
	if err != nil {
		m.log.Warn("probe log has no parsable hints", zap.Error(err))
		return nil, nil, nil
	}

	optimal, err := set.SelectOptimal(m.policy.Mode)
	if err != nil {
		if errors.Is(err, hints.ErrNoHints) {
			return nil, nil, nil
		}
		return nil, nil, err
	}

	return set, &optimal, nil
}

// Start builds, tunes and launches t in one call.
func (m *Manager) Start(ctx context.Context, t *Task) (process.Handle, error) {
	if _, _, err := m.Autotune(ctx, t); err != nil {
		return nil, err
	}
	return m.Launch(ctx, t)
}

// StartAndWait launches t and blocks until its process terminates,
// returning the exit code.
func (m *Manager) StartAndWait(ctx context.Context, t *Task) (int, error) {
	if _, err := m.Start(ctx, t); err != nil {
		return 0, err
	}
	return t.Wait()
}
