package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report <task-id>",
	Short: "Print the quality report for a task",
	Long: `Report re-walks the task's output file and recomputes the quality
metrics (generation success rate, quality pass rate, average generations
per input) rather than trusting any in-memory counters, so it is safe to
run against a task from a different process, after a crash, or long
after the run finished.`,
	Args: cobra.ExactArgs(1),
	RunE: runReport,
}

func init() {
	reportCmd.Flags().Bool("json", false, "print machine-readable JSON instead of a summary")
}

func runReport(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	report, err := ctrl.Report(context.Background(), taskID)
	if err != nil {
		return err
	}

	asJSON, _ := cmd.Flags().GetBool("json")
	if asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	fmt.Printf("task:                  %s\n", taskID)
	fmt.Printf("total input items:     %d\n", report.TotalInputItems)
	fmt.Printf("total generated items: %d\n", report.TotalGeneratedItems)
	fmt.Printf("quality passed items:  %d\n", report.QualityPassedItems)
	fmt.Printf("quality pass rate:     %.2f%%\n", report.QualityPassRate*100)
	fmt.Printf("generation success:    %.2f%%\n", report.GenerationSuccessRate*100)
	fmt.Printf("avg generations/input: %.2f\n", report.AverageGenerationsPerInput)
	return nil
}
