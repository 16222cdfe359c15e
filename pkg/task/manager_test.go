package task

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jobflow/jobflow/pkg/process"
	"github.com/jobflow/jobflow/pkg/queue"
)

// fakeHandle is a process handle whose run already finished.
type fakeHandle struct {
	code int
}

func (h *fakeHandle) Poll() (int, bool)                        { return h.code, true }
func (h *fakeHandle) Wait() (int, error)                       { return h.code, nil }
func (h *fakeHandle) Communicate(string) (string, string, error) { return "", "", nil }
func (h *fakeHandle) Kill() error                              { return nil }
func (h *fakeHandle) ExitCode() int                            { return h.code }

// fakeAdapter records submissions and optionally drops content into the
// job directory to simulate what the spawned process would write.
type fakeAdapter struct {
	mpi, omp int

	subs     []queue.Submission
	exitCode int

	// onSubmit runs with the submitted script's directory, before the
	// handle is returned.
	onSubmit func(jobDir string)
}

func newFakeAdapter() *fakeAdapter {
	return &fakeAdapter{mpi: 1, omp: 1}
}

func (a *fakeAdapter) RenderScript(spec queue.ScriptSpec) (string, error) {
	return "#!/bin/bash\n# job: " + spec.JobName + "\n" + spec.Executable + "\n", nil
}

func (a *fakeAdapter) Submit(ctx context.Context, sub queue.Submission) (process.Handle, string, error) {
	a.subs = append(a.subs, sub)
	if a.onSubmit != nil {
		a.onSubmit(filepath.Dir(sub.ScriptPath))
	}
	return &fakeHandle{code: a.exitCode}, "fake-1", nil
}

func (a *fakeAdapter) MPIProcs() int      { return a.mpi }
func (a *fakeAdapter) SetMPIProcs(n int)  { a.mpi = n }
func (a *fakeAdapter) OmpThreads() int    { return a.omp }
func (a *fakeAdapter) SetOmpThreads(n int) { a.omp = n }

// probeLog is a probe run log whose best configuration is 108 MPI
// processes with extra variables npband/npfft.
const probeLog = `solver starting in probe mode
<RUN_HINTS>
header:
  version: 1
  autoparal: 1
  max_ncpus: 108
configurations:
  - tot_ncpus: 84
    mpi_ncpus: 84
    efficiency: 0.002976
    vars: {npband: 12, npfft: 7}
  - tot_ncpus: 108
    mpi_ncpus: 108
    efficiency: 0.25
    vars: {npband: 108, npfft: 1}
  - tot_ncpus: 96
    mpi_ncpus: 96
    efficiency: 0.015625
    vars: {npband: 24, npfft: 4}
</RUN_HINTS>
probe exiting
`

func adaptivePolicy(t *testing.T) Policy {
	t.Helper()
	p, err := NewPolicy(map[string]interface{}{"autoparal": 1, "max_ncpus": 108})
	if err != nil {
		t.Fatalf("policy failed: %v", err)
	}
	return p
}

// TestLaunch tests the build-render-submit sequence
func TestLaunch(t *testing.T) {
	adapter := newFakeAdapter()
	m := NewManager(adapter, DefaultPolicy())
	tk := newTestTask(t, WithExecutable("/opt/solver/bin/solver"))

	h, err := m.Launch(context.Background(), tk)
	if err != nil {
		t.Fatalf("launch failed: %v", err)
	}
	if h == nil {
		t.Fatal("expected a process handle")
	}

	if tk.Status() != StatusSubmitted {
		t.Errorf("expected Submitted, got %s", tk.Status())
	}
	if tk.QueueID() != "fake-1" {
		t.Errorf("expected backend id fake-1, got %s", tk.QueueID())
	}

	if len(adapter.subs) != 1 || adapter.subs[0].ScriptPath != tk.Script.Path() {
		t.Errorf("expected submission of %s, got %v", tk.Script.Path(), adapter.subs)
	}
	if adapter.subs[0].QueueOutPath != tk.QueueOut.Path() || adapter.subs[0].QueueErrPath != tk.QueueErr.Path() {
		t.Errorf("submission should name the task's queue stream artifacts: %+v", adapter.subs[0])
	}
	script, err := tk.Script.Read()
	if err != nil {
		t.Fatalf("read script failed: %v", err)
	}
	if !strings.Contains(script, "/opt/solver/bin/solver") {
		t.Errorf("script should invoke the executable: %q", script)
	}
}

// TestAutotuneDisabled tests that a default policy skips the probe entirely
func TestAutotuneDisabled(t *testing.T) {
	adapter := newFakeAdapter()
	m := NewManager(adapter, DefaultPolicy())
	tk := newTestTask(t)

	set, optimal, err := m.Autotune(context.Background(), tk)
	if err != nil {
		t.Fatalf("autotune failed: %v", err)
	}
	if set != nil || optimal != nil {
		t.Error("disabled policy should yield no hints")
	}
	if tk.Status() != StatusReady {
		t.Errorf("task should be untouched, got %s", tk.Status())
	}
}

// TestAutotune tests the full probe cycle: inject, run, parse, select,
// restore, retune
func TestAutotune(t *testing.T) {
	probeBackend := newFakeAdapter()
	probeBackend.onSubmit = func(jobDir string) {
		// The probe writes its hints into the process log and leaves a
		// stray partial output behind.
		os.WriteFile(filepath.Join(jobDir, "run.log"), []byte(probeLog), 0644)
		os.WriteFile(filepath.Join(jobDir, "run.out"), []byte("probe noise\n"), 0644)
	}
	probeBackend.exitCode = 1 // conventional probe exit, not a verdict

	real := newFakeAdapter()
	m := NewManager(real, adaptivePolicy(t),
		WithDirectFactory(func(mpiProcs int) queue.Adapter { return probeBackend }))

	tk := newTestTask(t, WithParams(map[string]interface{}{"nstep": 50}))

	set, optimal, err := m.Autotune(context.Background(), tk)
	if err != nil {
		t.Fatalf("autotune failed: %v", err)
	}
	if set == nil || optimal == nil {
		t.Fatal("expected hints from the probe")
	}

	if optimal.MPIProcs != 108 {
		t.Errorf("expected 108 MPI processes selected, got %d", optimal.MPIProcs)
	}
	if real.MPIProcs() != 108 {
		t.Errorf("manager allocation should be retuned to 108, got %d", real.MPIProcs())
	}

	// Probe variables were stripped; the selected extras were merged.
	if _, ok := tk.Params().Get(autoparalVar); ok {
		t.Error("probe variable autoparal should be restored away")
	}
	if _, ok := tk.Params().Get(maxCPUsVar); ok {
		t.Error("probe variable max_ncpus should be restored away")
	}
	if v, ok := tk.Params().Get("npband"); !ok || v != 108 {
		t.Errorf("expected npband 108 merged in, got %v", v)
	}
	if v, ok := tk.Params().Get("nstep"); !ok || v != 50 {
		t.Errorf("original parameters should survive, got %v", v)
	}

	// The task is back to Ready and its stray probe output is gone.
	if tk.Status() != StatusReady {
		t.Errorf("expected Ready after probe, got %s", tk.Status())
	}
	if tk.Output.Exists() {
		t.Error("stray probe output should be removed")
	}
}

// TestAutotuneNoHints tests the fallback when the probe log has no
// parsable hints section
func TestAutotuneNoHints(t *testing.T) {
	probeBackend := newFakeAdapter()
	probeBackend.onSubmit = func(jobDir string) {
		os.WriteFile(filepath.Join(jobDir, "run.log"), []byte("nothing useful\n"), 0644)
	}

	real := newFakeAdapter()
	m := NewManager(real, adaptivePolicy(t),
		WithDirectFactory(func(mpiProcs int) queue.Adapter { return probeBackend }))

	tk := newTestTask(t)

	set, optimal, err := m.Autotune(context.Background(), tk)
	if err != nil {
		t.Fatalf("autotune should fall back, not fail: %v", err)
	}
	if set != nil || optimal != nil {
		t.Error("expected no hints")
	}
	if real.MPIProcs() != 1 {
		t.Errorf("allocation should stay untuned, got %d", real.MPIProcs())
	}
	if tk.Status() != StatusReady {
		t.Errorf("expected Ready for resubmission, got %s", tk.Status())
	}
}

// TestStart tests the combined tune-and-launch entry point
func TestStart(t *testing.T) {
	probeBackend := newFakeAdapter()
	probeBackend.onSubmit = func(jobDir string) {
		os.WriteFile(filepath.Join(jobDir, "run.log"), []byte(probeLog), 0644)
	}

	real := newFakeAdapter()
	m := NewManager(real, adaptivePolicy(t),
		WithDirectFactory(func(mpiProcs int) queue.Adapter { return probeBackend }))

	tk := newTestTask(t)

	h, err := m.Start(context.Background(), tk)
	if err != nil {
		t.Fatalf("start failed: %v", err)
	}
	if h == nil {
		t.Fatal("expected a process handle")
	}

	if tk.Status() != StatusSubmitted {
		t.Errorf("expected Submitted after start, got %s", tk.Status())
	}
	if real.MPIProcs() != 108 {
		t.Errorf("real submission should use the tuned allocation, got %d", real.MPIProcs())
	}
	if len(real.subs) != 1 {
		t.Errorf("expected one real submission, got %d", len(real.subs))
	}
}

// TestWriteScript tests script artifact rendering against the adapter spec
func TestWriteScript(t *testing.T) {
	adapter := newFakeAdapter()
	m := NewManager(adapter, DefaultPolicy())
	tk := newTestTask(t)
	if err := tk.Build(); err != nil {
		t.Fatalf("build failed: %v", err)
	}

	path, err := m.WriteScript(tk)
	if err != nil {
		t.Fatalf("write script failed: %v", err)
	}
	if path != tk.Script.Path() {
		t.Errorf("expected script at %s, got %s", tk.Script.Path(), path)
	}

	script, err := tk.Script.Read()
	if err != nil {
		t.Fatalf("read script failed: %v", err)
	}
	if !strings.Contains(script, "# job: "+tk.Name()) {
		t.Errorf("script should carry the job name: %q", script)
	}
}
