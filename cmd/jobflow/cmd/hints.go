package cmd

import (
	"fmt"
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobflow/jobflow/pkg/hints"
)

var (
	hintsMode   string
	hintsOutput string
)

// hintsCmd represents the hints command
var hintsCmd = &cobra.Command{
	Use:   "hints <run.log>",
	Short: "Parse and rank the resource hints from a probe log",
	Long: `Extracts the RUN_HINTS section from a probe log, lists every reported
parallel configuration, and marks the one the selection algorithm would
apply before resubmission.`,
	Args: cobra.ExactArgs(1),
	RunE: runHints,
}

func init() {
	rootCmd.AddCommand(hintsCmd)

	hintsCmd.Flags().StringVar(&hintsMode, "mode", hints.ModeDefault, "selection mode: default, aggressive, conservative")
	hintsCmd.Flags().StringVarP(&hintsOutput, "output", "o", "table", "output format: table or yaml")
}

func runHints(cmd *cobra.Command, args []string) error {
	set, err := (hints.Parser{}).Parse(args[0])
	if err != nil {
		return err
	}

	optimal, err := set.SelectOptimal(hintsMode)
	if err != nil {
		return err
	}

	if hintsOutput == "yaml" {
		doc := map[string]interface{}{
			"header":         set.Header,
			"configurations": set.Confs(),
			"optimal":        optimal,
		}
		out, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
		return nil
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.Header("Tot CPUs", "MPI", "Threads", "Mem/CPU (GB)", "Efficiency", "Speedup", "Optimal")

	for i := 0; i < set.Len(); i++ {
		c := set.At(i)
		marker := ""
		if c.TotCPUs == optimal.TotCPUs && c.Efficiency == optimal.Efficiency {
			marker = "*"
		}
		table.Append(
			fmt.Sprintf("%d", c.TotCPUs),
			fmt.Sprintf("%d", c.MPIProcs),
			fmt.Sprintf("%d", c.OmpThreads),
			fmt.Sprintf("%.1f", c.MemPerCPU),
			fmt.Sprintf("%.4f", c.Efficiency),
			fmt.Sprintf("%.2f", c.Speedup()),
			marker,
		)
	}

	table.Render()
	fmt.Printf("\ndeclared max CPUs: %d\n", set.Header.MaxCPUs)
	return nil
}
