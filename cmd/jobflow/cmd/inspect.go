package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jobflow/jobflow/pkg/events"
	"github.com/jobflow/jobflow/pkg/task"
)

var inspectShowEvents bool

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect <workdir>",
	Short: "Classify a job directory from its on-disk artifacts",
	Long: `Reads the artifacts left in a job working directory and reports the
status a supervisor would assign: the completion marker, declared
problems, and the process and queue error streams are all consulted.

No process is attached, so a directory without any decisive signal
classifies as still running.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().BoolVar(&inspectShowEvents, "events", false, "list every parsed event, not just the verdict")
}

func runInspect(cmd *cobra.Command, args []string) error {
	workdir := args[0]
	if info, err := os.Stat(workdir); err != nil || !info.IsDir() {
		return fmt.Errorf("not a job directory: %s", workdir)
	}

	t := task.New(0, workdir, task.WithLogger(logger))

	// Pretend the job was handed to a backend so artifact triangulation
	// applies; a Ready task would short-circuit to "not yet classified".
	if err := t.Submit(); err != nil {
		return err
	}

	status, err := t.CheckStatus()
	if err != nil {
		return err
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Field", "Value")
	table.Append("Name", t.Name())
	table.Append("Workdir", t.Workdir())
	table.Append("Status", status.String())
	table.Append("Output present", fmt.Sprintf("%t", t.Output.Exists()))
	table.Append("Stderr present", fmt.Sprintf("%t", t.Stderr.Exists() && !t.Stderr.IsEmpty()))
	table.Append("Queue stderr present", fmt.Sprintf("%t", t.QueueErr.Exists() && !t.QueueErr.IsEmpty()))
	table.Render()

	if !t.Output.Exists() {
		return nil
	}

	report, err := (events.Parser{}).Parse(t.Output.Path())
	if err != nil {
		fmt.Printf("\noutput not parseable: %v\n", err)
		return nil
	}

	fmt.Printf("\nrun completed: %t, errors: %d, bugs: %d, warnings: %d, comments: %d\n",
		report.RunCompleted, len(report.Errors), len(report.Bugs),
		len(report.Warnings), len(report.Comments))

	if inspectShowEvents {
		for _, ev := range append(append(append(append([]events.Event{},
			report.Errors...), report.Bugs...), report.Warnings...), report.Comments...) {
			fmt.Printf("  [%s] %s\n", ev.Kind, ev.Message)
		}
	}
	return nil
}
