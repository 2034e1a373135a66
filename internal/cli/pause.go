package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var pauseCmd = &cobra.Command{
	Use:   "pause <task-id>",
	Short: "Pause a running task",
	Long: `Pause requests a graceful stop: the producer stops enqueueing new
work, in-flight requests finish normally, and the output writer and
checkpoint are flushed before the task's status reaches "paused". A
paused task can later be continued with "distill resume".`,
	Args: cobra.ExactArgs(1),
	RunE: runPause,
}

var pauseWait time.Duration

func init() {
	pauseCmd.Flags().DurationVar(&pauseWait, "wait", 2*time.Minute, "how long to wait for the task to reach paused state")
}

func runPause(cmd *cobra.Command, args []string) error {
	taskID := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), pauseWait)
	defer cancel()

	if err := ctrl.Pause(ctx, taskID); err != nil {
		return err
	}
	fmt.Printf("task %s paused\n", taskID)
	return nil
}
