package outputwriter

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/kilnforge/distill/internal/record"
)

func readLines(t *testing.T, path string) []map[string]any {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("opening %s: %v", path, err)
	}
	defer f.Close()

	var out []map[string]any
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var m map[string]any
		if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
			t.Fatalf("unmarshalling line %q: %v", scanner.Text(), err)
		}
		out = append(out, m)
	}
	return out
}

func group(idx int, seqs ...int) Group {
	outs := make([]*record.OutputRecord, 0, len(seqs))
	for _, seq := range seqs {
		outs = append(outs, &record.OutputRecord{Fields: map[string]any{
			record.MetaIndex: idx,
			record.MetaSeq:   seq,
		}})
	}
	return Group{InputIndex: idx, Outputs: outs}
}

func TestUnorderedWriter_WritesImmediately(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := New(Options{Path: path, Mode: ModeUnordered, FsyncIntervalN: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := w.Submit(group(2, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Submit(group(0, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	// Completion order, not input order: index 2 arrived first.
	if int(lines[0][record.MetaIndex].(float64)) != 2 {
		t.Fatalf("expected unordered mode to preserve completion order, got %v", lines[0][record.MetaIndex])
	}
}

func TestOrderedWriter_EmitsInAscendingOrderDespiteOutOfOrderArrival(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := New(Options{Path: path, Mode: ModeOrdered, FsyncIntervalN: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// Arrive out of order: 2, 0, 1.
	if err := w.Submit(group(2, 0)); err != nil {
		t.Fatalf("Submit(2): %v", err)
	}
	if got := w.Pending(); got != 1 {
		t.Fatalf("expected group 2 to be parked pending a gap, Pending()=%d", got)
	}
	if err := w.Submit(group(0, 0, 1)); err != nil {
		t.Fatalf("Submit(0): %v", err)
	}
	if err := w.Submit(group(1, 0)); err != nil {
		t.Fatalf("Submit(1): %v", err)
	}
	if got := w.Pending(); got != 0 {
		t.Fatalf("expected the reorder buffer to have drained, Pending()=%d", got)
	}

	if _, err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 4 {
		t.Fatalf("expected 4 lines (2 from group 0, 1 each from 1 and 2), got %d", len(lines))
	}

	wantIdx := []int{0, 0, 1, 2}
	wantSeq := []int{0, 1, 0, 0}
	for i, line := range lines {
		if int(line[record.MetaIndex].(float64)) != wantIdx[i] {
			t.Fatalf("line %d: expected index %d, got %v", i, wantIdx[i], line[record.MetaIndex])
		}
		if int(line[record.MetaSeq].(float64)) != wantSeq[i] {
			t.Fatalf("line %d: expected seq %d, got %v", i, wantSeq[i], line[record.MetaSeq])
		}
	}
}

func TestOrderedWriter_SyncReportsContiguousDurablePrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := New(Options{Path: path, Mode: ModeOrdered, FsyncIntervalN: 100})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Submit(group(0, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if err := w.Submit(group(2, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	maxDurable, err := w.Sync()
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if maxDurable != 0 {
		t.Fatalf("expected durable prefix to stop at index 0 (index 1 is missing), got %d", maxDurable)
	}
}

func TestOrderedWriter_BufferFullReturnsError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	w, err := New(Options{Path: path, Mode: ModeOrdered, FsyncIntervalN: 1, MaxBuffered: 1})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer w.Close()

	if err := w.Submit(group(5, 0)); err != nil {
		t.Fatalf("first out-of-order submit should buffer fine: %v", err)
	}
	if err := w.Submit(group(6, 0)); err == nil {
		t.Fatalf("expected ErrBufferFull once the reorder buffer is at capacity")
	}
}

func TestWriter_ResumeTruncatesTrailingPartialLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	// Simulate a crash mid-write: one complete line, then a torn fragment.
	if err := os.WriteFile(path, []byte(`{"a":1}`+"\n"+`{"a":2`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	w, err := New(Options{Path: path, Mode: ModeUnordered, FsyncIntervalN: 1, Resume: true})
	if err != nil {
		t.Fatalf("New (resume): %v", err)
	}
	if err := w.Submit(group(1, 0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if _, err := w.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := readLines(t, path)
	if len(lines) != 2 {
		t.Fatalf("expected the torn line to be dropped and one appended, got %d lines", len(lines))
	}
	if lines[0]["a"] != float64(1) {
		t.Fatalf("expected the first complete line to survive untouched, got %v", lines[0])
	}
}
