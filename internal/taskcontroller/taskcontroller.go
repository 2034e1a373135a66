// Package taskcontroller implements the Task Controller of §4.8: the
// public start/resume/pause/report surface, backed by the State Store,
// Checkpoint Store, Output Writer, and Scheduler.
package taskcontroller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kilnforge/distill/internal/checkpoint"
	"github.com/kilnforge/distill/internal/modelclient"
	"github.com/kilnforge/distill/internal/outputwriter"
	"github.com/kilnforge/distill/internal/promptbuilder"
	"github.com/kilnforge/distill/internal/qualityreport"
	"github.com/kilnforge/distill/internal/ratelimit"
	"github.com/kilnforge/distill/internal/record"
	"github.com/kilnforge/distill/internal/retry"
	"github.com/kilnforge/distill/internal/scheduler"
	"github.com/kilnforge/distill/internal/statestore"
	"github.com/kilnforge/distill/internal/taskstate"
)

// outputFormatParquet selects the Parquet Output Writer over the default
// JSONL one (Params.OutputFormat). Parquet has no incremental append, so
// it is accepted on start but rejected on resume (see Resume below).
const outputFormatParquet = "parquet"

// ConfigError mirrors §7 CONFIG_ERROR: surfaced synchronously, no
// mutation occurs.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("CONFIG_ERROR: %s: %s", e.Field, e.Reason)
}

// Controller owns the process-scoped dependencies shared across every
// task it manages: the registry of model clients, the state store, and
// a table of currently-running schedulers so Pause can find them (§9:
// "process-scoped services with a single lifecycle", modeled as
// explicit constructor dependencies rather than global singletons).
type Controller struct {
	models *modelclient.Registry
	states statestore.Store
	log    *zap.SugaredLogger

	mu      sync.Mutex
	running map[string]*scheduler.Scheduler
	cancels map[string]context.CancelFunc
}

// New constructs a Controller. The caller owns models' and states'
// lifecycles and must Close them after every task has finished. logger
// may be nil, in which case a no-op logger is used — callers that care
// about structured logs construct one with internal/applog and pass it
// in here rather than this package reaching for a package-level global.
func New(models *modelclient.Registry, states statestore.Store, logger *zap.SugaredLogger) *Controller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Controller{
		models:  models,
		states:  states,
		log:     logger,
		running: make(map[string]*scheduler.Scheduler),
		cancels: make(map[string]context.CancelFunc),
	}
}

// StartOptions bundles everything `start` needs (§4.8, §6).
type StartOptions struct {
	Params taskstate.Params
}

// Start validates params, assigns a task id, persists a pending
// TaskState, and launches the scheduler in the background. Validation
// is total: on any error, no TaskState is written and no goroutine is
// launched (§4.8: "no mutation occurs on invalid params").
func (c *Controller) Start(ctx context.Context, opts StartOptions) (string, error) {
	if err := validateParams(opts.Params); err != nil {
		return "", err
	}

	taskID := uuid.NewString()
	now := time.Now().UTC()

	ts := &taskstate.TaskState{
		TaskID:         taskID,
		Status:         taskstate.StatusPending,
		Params:         opts.Params,
		StartedAt:      now,
		LastUpdateAt:   now,
		OutputPath:     opts.Params.OutputPath,
		CheckpointPath: taskstate.CheckpointPathFor(opts.Params.OutputPath),
	}
	if err := c.states.Put(ctx, ts); err != nil {
		return "", fmt.Errorf("taskcontroller: persisting initial state: %w", err)
	}
	if err := writeParamsSnapshot(opts.Params); err != nil {
		return "", err
	}

	c.log.Infow("task started", "task_id", taskID, "strategy", opts.Params.Strategy, "model_id", opts.Params.ModelID)
	c.launch(taskID, opts.Params)
	return taskID, nil
}

// ResumeOptions carries the override params a caller may apply on
// resume (§4.8 parameter override policy).
type ResumeOptions struct {
	Overrides    taskstate.Params
	ResumeAsNew  bool
}

// Resume loads the persisted TaskState, validates that immutable fields
// match, merges overrides, and relaunches. If resumeAsNew is set, it
// forks a new task id with a fresh output file rather than continuing
// in place, leaving the original untouched (§4.8).
func (c *Controller) Resume(ctx context.Context, taskID string, opts ResumeOptions) (string, error) {
	ts, err := c.states.Get(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("taskcontroller: loading task %q: %w", taskID, err)
	}

	merged := mergeOverrides(ts.Params, opts.Overrides)
	if ok, field := ts.Params.MatchesImmutable(merged); !ok {
		return "", &ConfigError{Field: field, Reason: "cannot change on resume"}
	}
	if merged.OutputFormat == outputFormatParquet {
		return "", &ConfigError{Field: "output_format", Reason: "parquet output cannot be resumed: the writer only materializes the file on a clean completion, so a paused or crashed run has nothing durable to resume from"}
	}
	if err := validateParams(merged); err != nil {
		return "", err
	}

	if opts.ResumeAsNew {
		newID := uuid.NewString()
		merged.OutputPath = forkOutputPath(merged.OutputPath, newID)
		now := time.Now().UTC()
		newTS := &taskstate.TaskState{
			TaskID:         newID,
			Status:         taskstate.StatusPending,
			Params:         merged,
			StartedAt:      now,
			LastUpdateAt:   now,
			OutputPath:     merged.OutputPath,
			CheckpointPath: taskstate.CheckpointPathFor(merged.OutputPath),
		}
		if err := c.states.Put(ctx, newTS); err != nil {
			return "", fmt.Errorf("taskcontroller: persisting forked state: %w", err)
		}
		if err := writeParamsSnapshot(merged); err != nil {
			return "", err
		}
		c.log.Infow("task resumed as new", "task_id", newID, "forked_from", taskID)
		c.launch(newID, merged)
		return newID, nil
	}

	if err := c.states.Update(ctx, taskID, func(s *taskstate.TaskState) error {
		s.Params = merged
		s.Status = taskstate.StatusPending
		s.LastUpdateAt = time.Now().UTC()
		return nil
	}); err != nil {
		return "", fmt.Errorf("taskcontroller: updating task %q: %w", taskID, err)
	}

	c.log.Infow("task resumed", "task_id", taskID)
	c.launch(taskID, merged)
	return taskID, nil
}

// Pause signals the running scheduler and blocks until the task's
// status reaches `paused` (§4.8, §8 testable property 6).
func (c *Controller) Pause(ctx context.Context, taskID string) error {
	c.mu.Lock()
	sched, ok := c.running[taskID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskcontroller: task %q is not running", taskID)
	}
	c.log.Infow("task pause requested", "task_id", taskID)
	sched.Pause()

	for {
		ts, err := c.states.Get(ctx, taskID)
		if err != nil {
			return err
		}
		if ts.Status == taskstate.StatusPaused || ts.Status == taskstate.StatusCompleted || ts.Status == taskstate.StatusFailed {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(50 * time.Millisecond):
		}
	}
}

// Stop cancels the task's scope outright (§5: "pause and stop both
// cancel the scope; the difference is whether the final state is paused
// (resumable) or failed/completed").
func (c *Controller) Stop(taskID string) error {
	c.mu.Lock()
	cancel, ok := c.cancels[taskID]
	c.mu.Unlock()
	if !ok {
		return fmt.Errorf("taskcontroller: task %q is not running", taskID)
	}
	c.log.Infow("task stop requested", "task_id", taskID)
	cancel()
	return nil
}

// Report computes the Quality Reporter's output for a task by re-walking
// its output file (§4.9), whether or not the task runs in this process.
func (c *Controller) Report(ctx context.Context, taskID string) (qualityreport.Report, error) {
	ts, err := c.states.Get(ctx, taskID)
	if err != nil {
		return qualityreport.Report{}, err
	}
	return qualityreport.WalkOutputFile(ts.OutputPath, ts.InputTotal)
}

// launch wires up a fresh Scheduler with all its dependencies and runs
// it in a goroutine, updating the State Store as it progresses and on
// completion.
func (c *Controller) launch(taskID string, params taskstate.Params) {
	ctx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancels[taskID] = cancel
	c.mu.Unlock()

	go func() {
		defer func() {
			c.mu.Lock()
			delete(c.running, taskID)
			delete(c.cancels, taskID)
			c.mu.Unlock()
			cancel()
		}()

		result, err := c.runOne(ctx, taskID, params)
		now := time.Now().UTC()

		if err != nil {
			c.log.Errorw("task run failed to launch", "task_id", taskID, "error", err)
		} else {
			c.log.Infow("task run finished", "task_id", taskID, "outcome", result.Outcome, "processed", result.Progress.InputProcessed, "failures", result.Progress.Failures)
		}

		_ = c.states.Update(ctx, taskID, func(s *taskstate.TaskState) error {
			s.LastUpdateAt = now
			if err != nil {
				s.Status = taskstate.StatusFailed
				s.FinishedAt = &now
				return nil
			}
			switch result.Outcome {
			case scheduler.OutcomeCompleted:
				s.Status = taskstate.StatusCompleted
				s.FinishedAt = &now
			case scheduler.OutcomePaused:
				s.Status = taskstate.StatusPaused
			case scheduler.OutcomeFailed:
				s.Status = taskstate.StatusFailed
				s.FinishedAt = &now
			}
			if result.Progress.InputTotal > 0 {
				s.InputTotal = result.Progress.InputTotal
			}
			s.InputProcessed = result.Progress.InputProcessed
			s.OutputsWritten = result.Progress.OutputsWritten
			s.Failures = result.Progress.Failures
			if s.InputTotal > 0 {
				s.Progress = float64(s.InputProcessed) / float64(s.InputTotal)
			}
			return nil
		})

		if err == nil && result.Outcome == scheduler.OutcomeCompleted {
			c.finalizeReport(ctx, taskID)
		}
	}()
}

func (c *Controller) finalizeReport(ctx context.Context, taskID string) {
	ts, err := c.states.Get(ctx, taskID)
	if err != nil {
		return
	}
	report, err := qualityreport.WalkOutputFile(ts.OutputPath, ts.InputTotal)
	if err != nil {
		return
	}
	_ = qualityreport.Save(taskstate.QualityReportPathFor(ts.OutputPath), report)
}

// runOne builds every per-task dependency and hands off to a Scheduler.
// This is the application-wiring step §9 calls for in place of global
// singletons: each run gets its own Checkpoint Store, Output Writer,
// Rate Limiter and Retry Policy instance, constructed fresh here.
func (c *Controller) runOne(ctx context.Context, taskID string, p taskstate.Params) (scheduler.Result, error) {
	client, err := c.models.Get(p.ModelID)
	if err != nil {
		return scheduler.Result{}, err
	}

	cpStore, err := checkpoint.Load(taskstate.CheckpointPathFor(p.OutputPath))
	if err != nil {
		return scheduler.Result{}, err
	}

	var writer outputwriter.Writer
	if p.OutputFormat == outputFormatParquet {
		// Resume already refuses parquet tasks, so this is always a fresh
		// start: no append/resume path to wire up here.
		writer = outputwriter.NewParquetWriter(p.OutputPath)
	} else {
		mode := outputwriter.ModeOrdered
		if p.UnorderedWrite {
			mode = outputwriter.ModeUnordered
		}
		resuming := cpStore.LastCommittedIndex() > 0 || len(cpStore.Snapshot().CompletedIndices) > 0
		writer, err = outputwriter.New(outputwriter.Options{
			Path:            p.OutputPath,
			Mode:            mode,
			FsyncIntervalN:  p.FsyncInterval,
			Resume:          resuming,
			NextExpectedIdx: cpStore.LastCommittedIndex(),
			MaxBuffered:     p.Workers * p.InflightMultiplier * 4,
		})
		if err != nil {
			return scheduler.Result{}, err
		}
	}

	limiter := ratelimit.New(p.RateLimitRPS)
	policy := retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxBackoff: time.Duration(p.MaxBackoffSeconds * float64(time.Second))}
	if policy.MaxBackoff <= 0 {
		policy.MaxBackoff = retry.Default().MaxBackoff
	}

	counters := qualityreport.NewCounters(0)

	sched := scheduler.New(scheduler.Config{
		InputPath:          p.InputPath,
		Workers:            p.Workers,
		InflightMultiplier: p.InflightMultiplier,
		CheckpointInterval: p.CheckpointInterval,
		Strategy:           p.Strategy,
		ModelID:            p.ModelID,
		Params:             recordParamsFrom(p),
	}, scheduler.Deps{
		ModelClient: client,
		RateLimiter: limiter,
		RetryPolicy: policy,
		Checkpoint:  cpStore,
		Writer:      writer,
		Counters:    counters,
		Progress: func(pr scheduler.Progress) {
			_ = c.states.Update(ctx, taskID, func(s *taskstate.TaskState) error {
				if pr.InputTotal > 0 {
					s.InputTotal = pr.InputTotal
				}
				s.InputProcessed = pr.InputProcessed
				s.OutputsWritten = pr.OutputsWritten
				s.Failures = pr.Failures
				s.LastUpdateAt = time.Now().UTC()
				if s.Status == taskstate.StatusPending {
					s.Status = taskstate.StatusRunning
				}
				return nil
			})
		},
	})

	c.mu.Lock()
	c.running[taskID] = sched
	c.mu.Unlock()

	return sched.Run(ctx), nil
}

func recordParamsFrom(p taskstate.Params) record.Params {
	return record.Params{
		Model:           p.ModelID,
		SystemPrompt:    p.SystemPrompt,
		Temperature:     p.Temperature,
		TopP:            p.TopP,
		TopK:            p.TopK,
		MaxTokens:       p.MaxTokens,
		TimeoutMs:       p.TimeoutMs,
		TargetField:     p.TargetField,
		QFieldName:      p.QFieldName,
		SelectedFields:  p.SelectedFields,
		LabelSet:        p.LabelSet,
		QPrompt:         p.QPrompt,
		APrompt:         p.APrompt,
		CustomTemplate:  p.CustomTemplate,
		GenerationCount: p.GenerationCount,
	}
}

func validateParams(p taskstate.Params) error {
	if p.InputPath == "" {
		return &ConfigError{Field: "input_path", Reason: "required"}
	}
	if p.OutputPath == "" {
		return &ConfigError{Field: "output_path", Reason: "required"}
	}
	if p.ModelID == "" {
		return &ConfigError{Field: "model_id", Reason: "required"}
	}
	if err := promptbuilder.ValidateParams(p.Strategy, recordParamsFrom(p)); err != nil {
		return err
	}
	if p.GenerationCount > 1 {
		d, derr := promptbuilder.Describe(p.Strategy)
		if derr == nil && !d.SupportsFanout {
			return &ConfigError{Field: "generation_count", Reason: fmt.Sprintf("strategy %q does not support generation_count > 1", p.Strategy)}
		}
	}
	return nil
}

// mergeOverrides applies the §4.8 override policy: model, concurrency,
// sampling, and rate/backoff may change; everything else is taken from
// the original. Strategy, input path, generation_count and target_field
// are copied from overrides when set, so that MatchesImmutable afterward
// rejects any attempt to change them.
func mergeOverrides(original, overrides taskstate.Params) taskstate.Params {
	merged := original
	if overrides.Strategy != "" {
		merged.Strategy = overrides.Strategy
	}
	if overrides.InputPath != "" {
		merged.InputPath = overrides.InputPath
	}
	if overrides.GenerationCount != 0 {
		merged.GenerationCount = overrides.GenerationCount
	}
	if overrides.TargetField != "" {
		merged.TargetField = overrides.TargetField
	}
	if overrides.ModelID != "" {
		merged.ModelID = overrides.ModelID
	}
	if overrides.Workers > 0 {
		merged.Workers = overrides.Workers
	}
	if overrides.InflightMultiplier > 0 {
		merged.InflightMultiplier = overrides.InflightMultiplier
	}
	if overrides.Temperature != 0 {
		merged.Temperature = overrides.Temperature
	}
	if overrides.TopP != 0 {
		merged.TopP = overrides.TopP
	}
	if overrides.TopK != 0 {
		merged.TopK = overrides.TopK
	}
	if overrides.MaxTokens != 0 {
		merged.MaxTokens = overrides.MaxTokens
	}
	if overrides.RateLimitRPS != 0 {
		merged.RateLimitRPS = overrides.RateLimitRPS
	}
	if overrides.MaxBackoffSeconds != 0 {
		merged.MaxBackoffSeconds = overrides.MaxBackoffSeconds
	}
	return merged
}

func forkOutputPath(original, newTaskID string) string {
	return original + "." + newTaskID[:8] + ".fork.jsonl"
}

func writeParamsSnapshot(p taskstate.Params) error {
	return taskstate.WriteParamsSnapshot(p)
}
