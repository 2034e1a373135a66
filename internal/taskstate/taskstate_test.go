package taskstate

import (
	"os"
	"path/filepath"
	"testing"
)

func TestMatchesImmutable(t *testing.T) {
	base := Params{Strategy: "q_to_a", InputPath: "in.jsonl", GenerationCount: 2, TargetField: "output"}

	tests := []struct {
		name      string
		mutate    func(Params) Params
		wantOK    bool
		wantField string
	}{
		{"identical", func(p Params) Params { return p }, true, ""},
		{"model changed is fine", func(p Params) Params { p.ModelID = "gpt-new"; return p }, true, ""},
		{"strategy changed is rejected", func(p Params) Params { p.Strategy = "enhance"; return p }, false, "strategy"},
		{"input_path changed is rejected", func(p Params) Params { p.InputPath = "other.jsonl"; return p }, false, "input_path"},
		{"generation_count changed is rejected", func(p Params) Params { p.GenerationCount = 5; return p }, false, "generation_count"},
		{"target_field changed is rejected", func(p Params) Params { p.TargetField = "other"; return p }, false, "target_field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ok, field := base.MatchesImmutable(tt.mutate(base))
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v (field=%q)", tt.wantOK, ok, field)
			}
			if field != tt.wantField {
				t.Fatalf("expected mismatch field %q, got %q", tt.wantField, field)
			}
		})
	}
}

func TestSiblingPaths(t *testing.T) {
	out := filepath.Join("data", "runs", "out.jsonl")
	if got := CheckpointPathFor(out); got != filepath.Join("data", "runs", "checkpoint.json") {
		t.Fatalf("unexpected checkpoint path: %s", got)
	}
	if got := QualityReportPathFor(out); got != filepath.Join("data", "runs", "quality_report.json") {
		t.Fatalf("unexpected quality report path: %s", got)
	}
	if got := ParamsSnapshotPathFor(out); got != filepath.Join("data", "runs", "task_params.json") {
		t.Fatalf("unexpected params snapshot path: %s", got)
	}
}

func TestWriteParamsSnapshot(t *testing.T) {
	dir := t.TempDir()
	p := Params{InputPath: "in.jsonl", OutputPath: filepath.Join(dir, "out.jsonl"), Strategy: "enhance"}

	if err := WriteParamsSnapshot(p); err != nil {
		t.Fatalf("WriteParamsSnapshot: %v", err)
	}

	data, err := os.ReadFile(ParamsSnapshotPathFor(p.OutputPath))
	if err != nil {
		t.Fatalf("reading snapshot: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("expected a non-empty snapshot file")
	}
}
