package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kilnforge/distill/internal/taskcontroller"
	"github.com/kilnforge/distill/internal/taskstate"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <task-id>",
	Short: "Resume a paused, failed, or crashed task",
	Long: `Resume loads the task's persisted state, replays its checkpoint to
skip already-completed input records, and continues from there. Only a
small set of parameters (model, concurrency, sampling, rate limit, and
backoff cap) may be overridden on resume; strategy, input path,
generation_count, and target_field must match the original run exactly.

Use --as-new to fork a new task id with its own output file instead of
continuing the original in place.`,
	Args: cobra.ExactArgs(1),
	RunE: runResume,
}

var (
	resumeModel        string
	resumeWorkers      int
	resumeInflight     int
	resumeTemperature  float64
	resumeTopP         float64
	resumeTopK         int
	resumeMaxTokens    int
	resumeRateLimit    float64
	resumeMaxBackoff   float64
	resumeAsNew        bool
	resumeBackground   bool
)

func init() {
	f := resumeCmd.Flags()
	f.StringVarP(&resumeModel, "model", "m", "", "override model_id")
	f.IntVarP(&resumeWorkers, "workers", "w", 0, "override worker count")
	f.IntVar(&resumeInflight, "inflight-multiplier", 0, "override dispatch depth multiplier")
	f.Float64Var(&resumeTemperature, "temperature", 0, "override sampling temperature")
	f.Float64Var(&resumeTopP, "top-p", 0, "override top_p")
	f.IntVar(&resumeTopK, "top-k", 0, "override top_k")
	f.IntVar(&resumeMaxTokens, "max-tokens", 0, "override max_tokens")
	f.Float64Var(&resumeRateLimit, "rate-limit", 0, "override requests-per-second limit")
	f.Float64Var(&resumeMaxBackoff, "max-backoff", 0, "override retry backoff cap, in seconds")
	f.BoolVar(&resumeAsNew, "as-new", false, "fork a new task id instead of resuming in place")
	f.BoolVar(&resumeBackground, "background", false, "return immediately after resuming instead of watching progress")
}

func runResume(cmd *cobra.Command, args []string) error {
	taskID := args[0]

	var overrides taskstate.Params
	if cmd.Flags().Changed("model") {
		overrides.ModelID = resumeModel
	}
	if cmd.Flags().Changed("workers") {
		overrides.Workers = resumeWorkers
	}
	if cmd.Flags().Changed("inflight-multiplier") {
		overrides.InflightMultiplier = resumeInflight
	}
	if cmd.Flags().Changed("temperature") {
		overrides.Temperature = resumeTemperature
	}
	if cmd.Flags().Changed("top-p") {
		overrides.TopP = resumeTopP
	}
	if cmd.Flags().Changed("top-k") {
		overrides.TopK = resumeTopK
	}
	if cmd.Flags().Changed("max-tokens") {
		overrides.MaxTokens = resumeMaxTokens
	}
	if cmd.Flags().Changed("rate-limit") {
		overrides.RateLimitRPS = resumeRateLimit
	}
	if cmd.Flags().Changed("max-backoff") {
		overrides.MaxBackoffSeconds = resumeMaxBackoff
	}

	ctx := context.Background()
	newID, err := ctrl.Resume(ctx, taskID, taskcontroller.ResumeOptions{
		Overrides:   overrides,
		ResumeAsNew: resumeAsNew,
	})
	if err != nil {
		return err
	}

	if resumeAsNew {
		fmt.Printf("resumed as new task %s (forked from %s)\n", newID, taskID)
	} else {
		fmt.Printf("resumed task %s\n", newID)
	}

	if resumeBackground {
		return nil
	}
	return watchUntilDone(ctx, newID)
}
