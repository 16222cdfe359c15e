package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/jobflow/jobflow/pkg/api"
	"github.com/jobflow/jobflow/pkg/metrics"
	"github.com/jobflow/jobflow/pkg/queue"
	"github.com/jobflow/jobflow/pkg/task"
)

var (
	runPollInterval time.Duration
	runTimeout      time.Duration
	runAutotune     bool
	runServeAddr    string
	runResultsOut   string
)

// jobDefinition is the YAML document describing one job to run.
type jobDefinition struct {
	Name       string                 `yaml:"name"`
	Workdir    string                 `yaml:"workdir"`
	Executable string                 `yaml:"executable"`
	MPIProcs   int                    `yaml:"mpi_ncpus"`
	OmpThreads int                    `yaml:"omp_ncpus"`
	MPIRunner  string                 `yaml:"mpi_runner"`
	Params     map[string]interface{} `yaml:"params"`
	Policy     map[string]interface{} `yaml:"policy"`
}

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run <job.yaml>",
	Short: "Submit a job and supervise it to completion",
	Long: `Reads a job definition, optionally runs the adaptive tuning probe,
submits the job through the shell backend, and polls it until a verdict
is reached. The process exits non-zero when the job ends in Error.`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().DurationVar(&runPollInterval, "poll-interval", 2*time.Second, "delay between status checks")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 0, "wall-clock limit before the job is killed (0 = none)")
	runCmd.Flags().BoolVar(&runAutotune, "autotune", true, "run the adaptive tuning probe when the policy enables it")
	runCmd.Flags().StringVar(&runServeAddr, "serve", "", "address for the status/metrics HTTP server (e.g. :8080)")
	runCmd.Flags().StringVar(&runResultsOut, "results", "", "path for the results JSON (default <workdir>/results.json)")
}

func loadJobDefinition(path string) (*jobDefinition, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open job definition: %w", err)
	}
	defer f.Close()

	def := &jobDefinition{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(def); err != nil {
		return nil, fmt.Errorf("malformed job definition %s: %w", path, err)
	}

	if def.Workdir == "" {
		return nil, fmt.Errorf("job definition %s has no workdir", path)
	}
	if def.Executable == "" {
		return nil, fmt.Errorf("job definition %s has no executable", path)
	}
	return def, nil
}

func runRun(cmd *cobra.Command, args []string) error {
	def, err := loadJobDefinition(args[0])
	if err != nil {
		return err
	}

	policy, err := task.NewPolicy(def.Policy)
	if err != nil {
		return err
	}
	if !runAutotune {
		policy.Autoparal = 0
	}

	runID := uuid.NewString()
	log := logger.With(zap.String("run_id", runID), zap.String("job", def.Name))

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	t := task.New(1, def.Workdir,
		task.WithExecutable(def.Executable),
		task.WithParams(def.Params),
		task.WithLogger(log),
		task.WithObserver(func(id int, from, to task.Status, reason string) {
			collector.StatusChanged(from.String(), to.String())
		}),
	)

	adapter := queue.NewShellAdapter(queue.ShellOptions{
		MPIProcs:   def.MPIProcs,
		OmpThreads: def.OmpThreads,
		MPIRunner:  def.MPIRunner,
	})
	manager := task.NewManager(adapter, policy,
		task.WithManagerLogger(log),
		task.WithMetrics(collector),
	)

	if runServeAddr != "" {
		server := api.NewServer(func() []api.JobView {
			return []api.JobView{taskView(t, runID)}
		}, registry, log)
		go func() {
			if err := http.ListenAndServe(runServeAddr, server.Handler()); err != nil {
				log.Warn("status server stopped", zap.Error(err))
			}
		}()
	}

	ctx := cmd.Context()
	if _, err := manager.Start(ctx, t); err != nil {
		return err
	}

	status, err := superviseTask(ctx, t, log)
	if err != nil {
		return err
	}

	if err := writeResults(t, def.Workdir); err != nil {
		log.Warn("could not write results", zap.Error(err))
	}

	fmt.Printf("job %s finished with status %s (exit code %d)\n", def.Name, status, t.ExitCode())
	if status == task.StatusError {
		return fmt.Errorf("job %s failed", def.Name)
	}
	return nil
}

// superviseTask polls the task until classification reaches a verdict,
// applying the wall-clock timeout externally as a kill plus re-check.
func superviseTask(ctx context.Context, t *task.Task, log *zap.Logger) (task.Status, error) {
	var deadline time.Time
	if runTimeout > 0 {
		deadline = time.Now().Add(runTimeout)
	}

	for {
		t.Poll()

		status, err := t.CheckStatus()
		if err != nil {
			return status, err
		}
		if status.Terminal() {
			return status, nil
		}

		// Done but not yet classified: the artifacts may still be settling.
		if !deadline.IsZero() && time.Now().After(deadline) {
			log.Warn("wall-clock timeout reached, killing job")
			if err := t.Kill(); err != nil {
				log.Warn("kill failed", zap.Error(err))
			}
			deadline = time.Time{}
		}

		select {
		case <-ctx.Done():
			return status, ctx.Err()
		case <-time.After(runPollInterval):
		}
	}
}

func writeResults(t *task.Task, workdir string) error {
	results, err := t.Results()
	if err != nil {
		return err
	}
	results.AssertValid()

	out := runResultsOut
	if out == "" {
		out = filepath.Join(workdir, "results.json")
	}
	return results.Dump(out)
}

func taskView(t *task.Task, runID string) api.JobView {
	return api.JobView{
		ID:       t.ID(),
		RunID:    runID,
		Name:     t.Name(),
		Workdir:  t.Workdir(),
		Status:   t.Status().String(),
		QueueID:  t.QueueID(),
		ExitCode: t.ExitCode(),
		History:  t.History(),
	}
}
