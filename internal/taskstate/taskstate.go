// Package taskstate defines the persisted task record of §3 TaskState and
// its sibling-file paths, consumed by the Task Controller; the Task State
// Store contract itself is statestore.Store.
package taskstate

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Status is the task lifecycle state (§3).
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Params is the full parameter snapshot needed to relaunch a task on
// resume, and to validate override compatibility (§4.8).
type Params struct {
	InputPath          string   `json:"input_path"`
	OutputPath         string   `json:"output_path"`
	Strategy           string   `json:"strategy"`
	ModelID            string   `json:"model_id"`
	SystemPrompt       string   `json:"system_prompt,omitempty"`
	Temperature        float64  `json:"temperature"`
	TopP               float64  `json:"top_p"`
	TopK               int      `json:"top_k"`
	MaxTokens          int      `json:"max_tokens"`
	TimeoutMs          int      `json:"timeout_ms"`
	Workers            int      `json:"workers"`
	InflightMultiplier int      `json:"inflight_multiplier"`
	FsyncInterval      int      `json:"fsync_interval"`
	CheckpointInterval int      `json:"checkpoint_interval"`
	RateLimitRPS       float64  `json:"rate_limit_rps,omitempty"`
	MaxBackoffSeconds  float64  `json:"max_backoff"`
	UnorderedWrite     bool     `json:"unordered_write"`
	GenerationCount    int      `json:"generation_count"`
	TargetField        string   `json:"target_field"`
	QFieldName         string   `json:"q_field_name"`
	SelectedFields     []string `json:"selected_fields,omitempty"`
	LabelSet           []string `json:"label_set,omitempty"`
	QPrompt            string   `json:"q_prompt,omitempty"`
	APrompt            string   `json:"a_prompt,omitempty"`
	CustomTemplate     string   `json:"custom_template,omitempty"`
	OutputFormat       string   `json:"output_format,omitempty"`
	ResumeAsNew        bool     `json:"resume_as_new,omitempty"`
}

// MatchesImmutable applies the override checks of §4.8: these must match
// the original task's params exactly, or resume is rejected with
// CONFIG_ERROR. Everything else (model, concurrency, sampling,
// rate/backoff) may change freely on resume.
func (p Params) MatchesImmutable(other Params) (ok bool, mismatchField string) {
	if p.Strategy != other.Strategy {
		return false, "strategy"
	}
	if p.InputPath != other.InputPath {
		return false, "input_path"
	}
	if p.GenerationCount != other.GenerationCount {
		return false, "generation_count"
	}
	if p.TargetField != other.TargetField {
		return false, "target_field"
	}
	return true, ""
}

// TaskState is the persisted record of §3.
type TaskState struct {
	TaskID         string     `json:"task_id"`
	Status         Status     `json:"status"`
	Progress       float64    `json:"progress"`
	InputTotal     int        `json:"input_total"`
	InputProcessed int        `json:"input_processed"`
	OutputsWritten int        `json:"outputs_written"`
	Failures       int        `json:"failures"`
	Params         Params     `json:"params"`
	StartedAt      time.Time  `json:"started_at"`
	LastUpdateAt   time.Time  `json:"last_update_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	OutputPath     string     `json:"output_path"`
	CheckpointPath string     `json:"checkpoint_path"`
}

// CheckpointPathFor and QualityReportPathFor/ParamsSnapshotPathFor derive
// the sibling-file paths of §6 from an output path.
func CheckpointPathFor(outputPath string) string     { return siblingPath(outputPath, "checkpoint.json") }
func QualityReportPathFor(outputPath string) string  { return siblingPath(outputPath, "quality_report.json") }
func ParamsSnapshotPathFor(outputPath string) string { return siblingPath(outputPath, "task_params.json") }

func siblingPath(outputPath, name string) string {
	return filepath.Join(filepath.Dir(outputPath), name)
}

// WriteParamsSnapshot persists the task_params.json sibling file of §6:
// a plain snapshot of the params used for this run, written once at
// start/resume time. Unlike the Checkpoint Store and State Store this
// file is informational only, so a simple truncate-and-write is enough.
func WriteParamsSnapshot(p Params) error {
	path := ParamsSnapshotPathFor(p.OutputPath)
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("taskstate: mkdir %s: %w", dir, err)
		}
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("taskstate: marshal params snapshot: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("taskstate: writing %s: %w", path, err)
	}
	return nil
}
