package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kilnforge/distill/internal/taskcontroller"
	"github.com/kilnforge/distill/internal/taskstate"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a new distillation task",
	Long: `Start drives the configured model over an input file according to a
strategy (expand, enhance, paraphrase, classify_label, q_to_a, custom),
writing JSONL output and a durable checkpoint as it goes.

Examples:
  # Answer every question in a JSONL file with gpt-4o-mini
  distill start -i questions.jsonl -o answers.jsonl -m gpt-4o-mini -s q_to_a --q-field question

  # Classify records into a fixed label set
  distill start -i reviews.jsonl -o labeled.jsonl -m gpt-4o-mini -s classify_label \
    --target-field text --label-set positive,negative,neutral`,
	RunE: runStart,
}

var (
	startInput           string
	startOutput          string
	startModel           string
	startStrategy        string
	startSystemPrompt    string
	startTemperature     float64
	startTopP            float64
	startTopK            int
	startMaxTokens       int
	startTimeoutMs       int
	startWorkers         int
	startInflight        int
	startFsyncInterval   int
	startCheckpointEvery int
	startRateLimitRPS    float64
	startMaxBackoff      float64
	startUnordered       bool
	startGenCount        int
	startTargetField     string
	startQField          string
	startSelectedFields  string
	startLabelSet        string
	startQPrompt         string
	startAPrompt         string
	startCustomTemplate  string
	startBackground      bool
)

func init() {
	f := startCmd.Flags()
	f.StringVarP(&startInput, "input", "i", "", "input file (.jsonl or .json), required")
	f.StringVarP(&startOutput, "output", "o", "", "output JSONL path, required")
	f.StringVarP(&startModel, "model", "m", "", "model_id declared in distill.yaml, required")
	f.StringVarP(&startStrategy, "strategy", "s", "", "expand|enhance|paraphrase|classify_label|q_to_a|custom, required")
	f.StringVar(&startSystemPrompt, "system-prompt", "", "custom system prompt prepended to every request")
	f.Float64Var(&startTemperature, "temperature", 0, "sampling temperature (unset = config default; 0 = not sent, backend default)")
	f.Float64Var(&startTopP, "top-p", 0, "nucleus sampling top_p")
	f.IntVar(&startTopK, "top-k", 0, "top_k sampling, if supported by the backend")
	f.IntVar(&startMaxTokens, "max-tokens", 0, "maximum response tokens (0 = backend default)")
	f.IntVar(&startTimeoutMs, "timeout-ms", 0, "per-request timeout in milliseconds (0 = config default)")
	f.IntVarP(&startWorkers, "workers", "w", 0, "concurrent workers (0 = config default)")
	f.IntVar(&startInflight, "inflight-multiplier", 0, "dispatch channel depth as a multiple of workers")
	f.IntVar(&startFsyncInterval, "fsync-interval", 0, "fsync the output file every N lines")
	f.IntVar(&startCheckpointEvery, "checkpoint-interval", 0, "persist the checkpoint every N completed groups")
	f.Float64Var(&startRateLimitRPS, "rate-limit", 0, "requests per second across all workers (0 = unlimited)")
	f.Float64Var(&startMaxBackoff, "max-backoff", 0, "cap on retry backoff, in seconds")
	f.BoolVar(&startUnordered, "unordered", false, "write output as it completes instead of preserving input order")
	f.IntVarP(&startGenCount, "generation-count", "n", 1, "number of generations to fan out per input record")
	f.StringVar(&startTargetField, "target-field", "", "field to rewrite/classify (enhance, paraphrase, classify_label)")
	f.StringVar(&startQField, "q-field", "", "question field name (q_to_a)")
	f.StringVar(&startSelectedFields, "selected-fields", "", "comma-separated fields to derive (expand)")
	f.StringVar(&startLabelSet, "label-set", "", "comma-separated labels (classify_label)")
	f.StringVar(&startQPrompt, "q-prompt", "", "prompt prefix for the question (q_to_a)")
	f.StringVar(&startAPrompt, "a-prompt", "", "prompt suffix steering the answer (q_to_a)")
	f.StringVar(&startCustomTemplate, "custom-template", "", "{{field}}/{{topic}} template (custom)")
	f.BoolVar(&startBackground, "background", false, "return immediately after starting instead of watching progress")
}

func runStart(cmd *cobra.Command, args []string) error {
	if startInput == "" {
		return fmt.Errorf("--input is required")
	}
	if startOutput == "" {
		return fmt.Errorf("--output is required")
	}
	if startModel == "" {
		return fmt.Errorf("--model is required")
	}
	if startStrategy == "" {
		return fmt.Errorf("--strategy is required")
	}

	p, err := GetConfig().ToParams(startModel)
	if err != nil {
		return err
	}
	p.InputPath = startInput
	p.OutputPath = startOutput
	p.Strategy = startStrategy
	p.SystemPrompt = startSystemPrompt
	p.UnorderedWrite = startUnordered
	p.GenerationCount = startGenCount

	applyOverride(&p, cmd, "temperature", startTemperature)
	applyOverride(&p, cmd, "top-p", startTopP)
	applyOverride(&p, cmd, "top-k", float64(startTopK))
	applyOverride(&p, cmd, "max-tokens", float64(startMaxTokens))
	applyOverride(&p, cmd, "timeout-ms", float64(startTimeoutMs))
	applyOverride(&p, cmd, "workers", float64(startWorkers))
	applyOverride(&p, cmd, "inflight-multiplier", float64(startInflight))
	applyOverride(&p, cmd, "fsync-interval", float64(startFsyncInterval))
	applyOverride(&p, cmd, "checkpoint-interval", float64(startCheckpointEvery))
	applyOverride(&p, cmd, "rate-limit", startRateLimitRPS)
	applyOverride(&p, cmd, "max-backoff", startMaxBackoff)

	if startTargetField != "" {
		p.TargetField = startTargetField
	}
	if startQField != "" {
		p.QFieldName = startQField
	}
	if startSelectedFields != "" {
		p.SelectedFields = splitCSV(startSelectedFields)
	}
	if startLabelSet != "" {
		p.LabelSet = splitCSV(startLabelSet)
	}
	p.QPrompt = startQPrompt
	p.APrompt = startAPrompt
	p.CustomTemplate = startCustomTemplate

	ctx := context.Background()
	taskID, err := ctrl.Start(ctx, taskcontroller.StartOptions{Params: p})
	if err != nil {
		return err
	}
	fmt.Printf("started task %s\n", taskID)
	fmt.Printf("  output:     %s\n", p.OutputPath)
	fmt.Printf("  checkpoint: %s\n", taskstate.CheckpointPathFor(p.OutputPath))

	if startBackground {
		return nil
	}
	return watchUntilDone(ctx, taskID)
}

// watchUntilDone polls the State Store and renders a progress bar until
// the task leaves the running/pending state. On SIGINT/SIGTERM it asks
// the Task Controller to pause gracefully (flush + checkpoint) rather
// than letting the process die mid-write; a second signal stops it
// outright.
func watchUntilDone(ctx context.Context, taskID string) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetDescription("distilling"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetWidth(40),
		progressbar.OptionOnCompletion(func() { fmt.Println() }),
	)

	interruptedOnce := false
	ticker := time.NewTicker(300 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case sig := <-sigCh:
			if interruptedOnce {
				fmt.Printf("\nreceived %s again, stopping task %s immediately\n", sig, taskID)
				_ = ctrl.Stop(taskID)
				return fmt.Errorf("task %s stopped by user", taskID)
			}
			interruptedOnce = true
			fmt.Printf("\nreceived %s, pausing task %s (checkpoint will be flushed)...\n", sig, taskID)
			go func() { _ = ctrl.Pause(ctx, taskID) }()

		case <-ticker.C:
			ts, err := states.Get(ctx, taskID)
			if err != nil {
				return err
			}
			if ts.InputTotal > 0 {
				bar.ChangeMax(ts.InputTotal)
			}
			_ = bar.Set(ts.InputProcessed)

			switch ts.Status {
			case taskstate.StatusCompleted:
				bar.Finish()
				fmt.Printf("task %s completed: %d processed, %d outputs, %d failures\n",
					taskID, ts.InputProcessed, ts.OutputsWritten, ts.Failures)
				return nil
			case taskstate.StatusPaused:
				bar.Finish()
				fmt.Printf("task %s paused at %d/%d; resume with `distill resume %s`\n",
					taskID, ts.InputProcessed, ts.InputTotal, taskID)
				return nil
			case taskstate.StatusFailed:
				bar.Finish()
				return fmt.Errorf("task %s failed after %d/%d processed", taskID, ts.InputProcessed, ts.InputTotal)
			}
		}
	}
}

func applyOverride(p *taskstate.Params, cmd *cobra.Command, flag string, v float64) {
	if !cmd.Flags().Changed(flag) {
		return
	}
	switch flag {
	case "temperature":
		p.Temperature = v
	case "top-p":
		p.TopP = v
	case "top-k":
		p.TopK = int(v)
	case "max-tokens":
		p.MaxTokens = int(v)
	case "timeout-ms":
		p.TimeoutMs = int(v)
	case "workers":
		p.Workers = int(v)
	case "inflight-multiplier":
		p.InflightMultiplier = int(v)
	case "fsync-interval":
		p.FsyncInterval = int(v)
	case "checkpoint-interval":
		p.CheckpointInterval = int(v)
	case "rate-limit":
		p.RateLimitRPS = v
	case "max-backoff":
		p.MaxBackoffSeconds = v
	}
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
