package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jobflow/jobflow/pkg/hints"
	"github.com/jobflow/jobflow/pkg/queue"
)

var configOutput string

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect and generate jobflow configuration",
}

// configRecommendCmd suggests a resource policy derived from the local
// hardware. The suggestion caps the adaptive search at the physical core
// count: hyperthreads rarely help memory-bound solvers.
var configRecommendCmd = &cobra.Command{
	Use:   "recommend",
	Short: "Suggest a resource policy for this machine",
	RunE:  runConfigRecommend,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configRecommendCmd)

	configRecommendCmd.Flags().StringVarP(&configOutput, "output", "o", "yaml", "output format: yaml or json")
}

func runConfigRecommend(cmd *cobra.Command, args []string) error {
	res, err := queue.DetectResources()
	if err != nil {
		return fmt.Errorf("detect hardware: %w", err)
	}

	maxCPUs := res.PhysicalCPUs
	if maxCPUs <= 0 {
		maxCPUs = res.LogicalCPUs
	}

	doc := map[string]interface{}{
		"hardware": map[string]interface{}{
			"cpu_model":     res.CPUModel,
			"logical_cpus":  res.LogicalCPUs,
			"physical_cpus": res.PhysicalCPUs,
			"memory_gb":     float64(res.MemoryBytes) / (1024 * 1024 * 1024),
			"mem_per_cpu":   res.MemPerCPUGB(),
		},
		"policy": map[string]interface{}{
			"autoparal": 1,
			"mode":      hints.ModeDefault,
			"max_ncpus": maxCPUs,
		},
	}

	switch configOutput {
	case "json":
		out, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	default:
		out, err := yaml.Marshal(doc)
		if err != nil {
			return err
		}
		fmt.Print(string(out))
	}
	return nil
}
