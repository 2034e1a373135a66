package outputwriter

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kilnforge/distill/internal/record"
)

func TestParquetWriter_SubmitTracksMaxIndexAndPending(t *testing.T) {
	w := NewParquetWriter(filepath.Join(t.TempDir(), "out.parquet"))

	job := record.Job{InputIndex: 0, Strategy: "enhance", Params: record.Params{TargetField: "output", Model: "m1"}}
	out := record.NewOutputRecord(job, "generated", "", time.Millisecond)

	if err := w.Submit(Group{InputIndex: 2, Outputs: []*record.OutputRecord{out}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Submit(Group{InputIndex: 0, Outputs: []*record.OutputRecord{out}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if w.Pending() != 2 {
		t.Fatalf("expected 2 buffered groups, got %d", w.Pending())
	}
	if maxIdx, _ := w.Sync(); maxIdx != 2 {
		t.Fatalf("expected Sync to report the highest buffered index, got %d", maxIdx)
	}
}

func TestParquetWriter_FlushIsANoOp(t *testing.T) {
	w := NewParquetWriter(filepath.Join(t.TempDir(), "out.parquet"))
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
}

func TestParquetWriter_CloseMaterializesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewParquetWriter(path)

	job := record.Job{InputIndex: 0, Strategy: "enhance", Params: record.Params{TargetField: "output", Model: "m1"}}
	out := record.NewOutputRecord(job, "generated text", "", time.Millisecond)
	if err := w.Submit(Group{InputIndex: 0, Outputs: []*record.OutputRecord{out}}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("expected the parquet file to exist after Close: %v", err)
	}
	if info.Size() == 0 {
		t.Fatalf("expected a non-empty parquet file")
	}
}

func TestParquetWriter_CloseWithNoGroupsWritesNothing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.parquet")
	w := NewParquetWriter(path)
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected no file to be created when nothing was submitted")
	}
}
