package qualityreport

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCounters_Finalize(t *testing.T) {
	c := NewCounters(10)
	c.RecordSuccess(0)
	c.RecordSuccess(0)
	c.RecordSuccess(1)
	c.RecordQualityFail(2)

	r := c.Finalize()
	if r.TotalInputItems != 10 {
		t.Fatalf("expected total_input_items 10, got %d", r.TotalInputItems)
	}
	if r.TotalGeneratedItems != 4 {
		t.Fatalf("expected total_generated_items 4, got %d", r.TotalGeneratedItems)
	}
	if r.QualityPassedItems != 3 {
		t.Fatalf("expected quality_passed_items 3, got %d", r.QualityPassedItems)
	}
	if r.QualityPassRate != 0.75 {
		t.Fatalf("expected quality_pass_rate 0.75, got %v", r.QualityPassRate)
	}
	// 3 distinct indices (0,1,2) out of 10 inputs.
	if r.GenerationSuccessRate != 0.3 {
		t.Fatalf("expected generation_success_rate 0.3, got %v", r.GenerationSuccessRate)
	}
	if r.AverageGenerationsPerInput != 0.4 {
		t.Fatalf("expected average_generations_per_input 0.4, got %v", r.AverageGenerationsPerInput)
	}
}

func TestCounters_Finalize_ZeroInputsNoDivideByZero(t *testing.T) {
	c := NewCounters(0)
	r := c.Finalize()
	if r.GenerationSuccessRate != 0 || r.AverageGenerationsPerInput != 0 {
		t.Fatalf("expected zero rates when input_total is 0, got %+v", r)
	}
}

func TestWalkOutputFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	content := `{"_gen_index":0,"output":"a"}
{"_gen_index":0,"output":"b"}
{"_gen_index":2,"output":"c"}
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	r, err := WalkOutputFile(path, 3)
	if err != nil {
		t.Fatalf("WalkOutputFile: %v", err)
	}
	if r.TotalGeneratedItems != 3 {
		t.Fatalf("expected 3 generated items, got %d", r.TotalGeneratedItems)
	}
	if r.GenerationSuccessRate != 2.0/3.0 {
		t.Fatalf("expected generation_success_rate 2/3 (indices 0 and 2 out of 3), got %v", r.GenerationSuccessRate)
	}
}

func TestSave_AtomicRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quality_report.json")
	r := Report{TotalInputItems: 5, TotalGeneratedItems: 4}
	if err := Save(path, r); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected .tmp file to be gone after rename")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading saved report: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected non-empty report file")
	}
}
