// Package qualityreport implements the Quality Reporter of §4.9: walk the
// output file once and summarize generation yield and quality-check pass
// rate.
package qualityreport

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/kilnforge/distill/internal/record"
)

// Report is persisted alongside the output file as quality_report.json.
type Report struct {
	TotalInputItems            int     `json:"total_input_items"`
	TotalGeneratedItems        int     `json:"total_generated_items"`
	QualityPassedItems         int     `json:"quality_passed_items"`
	QualityPassRate            float64 `json:"quality_pass_rate"`
	GenerationSuccessRate      float64 `json:"generation_success_rate"`
	AverageGenerationsPerInput float64 `json:"average_generations_per_input"`
}

// Counters accumulates the raw tallies the Scheduler already tracks as
// it runs; Finalize turns them into the derived rates of the Report.
// The Task Controller's persisted report and the `report` command do not
// use the Scheduler's live counters: both come from WalkOutputFile, which
// builds its own Counters from the output file.
type Counters struct {
	InputTotal       int
	GeneratedItems   int
	PassedItems      int
	DistinctIndices  map[int]struct{}
}

// NewCounters creates an empty Counters for inputTotal records.
func NewCounters(inputTotal int) *Counters {
	return &Counters{InputTotal: inputTotal, DistinctIndices: make(map[int]struct{})}
}

// RecordSuccess registers one successfully written output for inputIndex
// (already past any quality check).
func (c *Counters) RecordSuccess(inputIndex int) {
	c.GeneratedItems++
	c.PassedItems++
	c.DistinctIndices[inputIndex] = struct{}{}
}

// RecordQualityFail registers a generation that was produced but failed
// validation (no output line emitted, §7 QUALITY_FAIL) — it still counts
// toward total_generated_items per §4.9's definition of "generated".
func (c *Counters) RecordQualityFail(inputIndex int) {
	c.GeneratedItems++
	c.DistinctIndices[inputIndex] = struct{}{}
}

// Finalize computes the derived rates of §4.9.
func (c *Counters) Finalize() Report {
	r := Report{
		TotalInputItems:     c.InputTotal,
		TotalGeneratedItems: c.GeneratedItems,
		QualityPassedItems:  c.PassedItems,
	}
	if c.GeneratedItems > 0 {
		r.QualityPassRate = float64(c.PassedItems) / float64(c.GeneratedItems)
	}
	if c.InputTotal > 0 {
		r.GenerationSuccessRate = float64(len(c.DistinctIndices)) / float64(c.InputTotal)
		r.AverageGenerationsPerInput = float64(c.GeneratedItems) / float64(c.InputTotal)
	}
	return r
}

// WalkOutputFile recomputes a Report by reading the output JSONL file
// directly; the Task Controller uses it for both the `report` command and
// the quality_report.json written on completion. Every line is assumed to have passed quality checks already,
// since QUALITY_FAIL generations are never written; inputTotal must be
// supplied from the TaskState or recomputed from the input file.
func WalkOutputFile(path string, inputTotal int) (Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return Report{}, fmt.Errorf("qualityreport: opening %s: %w", path, err)
	}
	defer f.Close()

	c := NewCounters(inputTotal)

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal(line, &fields); err != nil {
			continue
		}
		idxFloat, _ := fields[record.MetaIndex].(float64)
		c.RecordSuccess(int(idxFloat))
	}
	if err := scanner.Err(); err != nil {
		return Report{}, fmt.Errorf("qualityreport: reading %s: %w", path, err)
	}

	return c.Finalize(), nil
}

// Save persists r to path using an atomic write-tmp/fsync/rename-over,
// matching the durability protocol used by the Checkpoint Store and
// State Store for every other sibling file.
func Save(path string, r Report) error {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Errorf("qualityreport: marshal: %w", err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("qualityreport: open tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("qualityreport: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("qualityreport: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("qualityreport: close tmp: %w", err)
	}
	return os.Rename(tmp, path)
}
