package checkpoint

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStore_MarkCompletedAdvancesContiguousPrefix(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	s.MarkCompleted(2, 1)
	s.MarkCompleted(0, 1)
	s.MarkCompleted(1, 1)

	if got := s.LastCommittedIndex(); got != 3 {
		t.Fatalf("expected last_committed_index 3 after completing 0,1,2 in any order, got %d", got)
	}
	for i := 0; i < 3; i++ {
		if !s.IsCompleted(i) {
			t.Fatalf("index %d should be completed (< last_committed_index)", i)
		}
	}
}

func TestStore_GapLeavesPrefixBehind(t *testing.T) {
	s := NewStore(filepath.Join(t.TempDir(), "checkpoint.json"))

	s.MarkCompleted(0, 1)
	s.MarkCompleted(2, 1) // index 1 still missing

	if got := s.LastCommittedIndex(); got != 1 {
		t.Fatalf("expected last_committed_index 1 (index 1 still pending), got %d", got)
	}
	if !s.IsCompleted(2) {
		t.Fatalf("index 2 should be in the completed set even though not yet prefix-absorbed")
	}
	if s.IsCompleted(1) {
		t.Fatalf("index 1 should not be completed")
	}
}

func TestStore_SaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s := NewStore(path)
	s.MarkCompleted(0, 2)
	s.MarkCompleted(1, 1)
	s.MarkCompleted(3, 1) // gap at 2

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded.LastCommittedIndex() != 2 {
		t.Fatalf("expected loaded last_committed_index 2, got %d", loaded.LastCommittedIndex())
	}
	if !loaded.IsCompleted(3) {
		t.Fatalf("expected index 3 to be loaded as completed")
	}
	if loaded.IsCompleted(2) {
		t.Fatalf("index 2 should not appear completed after reload")
	}
}

func TestLoad_MissingFileIsEmptyNotError(t *testing.T) {
	s, err := Load(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("missing checkpoint file should not be an error, got %v", err)
	}
	if s.LastCommittedIndex() != 0 {
		t.Fatalf("expected a fresh empty store, got last_committed_index=%d", s.LastCommittedIndex())
	}
}

func TestLoad_SchemaVersionMismatchIsTreatedAsAbsent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	if err := os.WriteFile(path, []byte(`{"schema_version": 999, "last_committed_index": 50}`), 0o644); err != nil {
		t.Fatalf("writing fixture: %v", err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.LastCommittedIndex() != 0 {
		t.Fatalf("a schema_version mismatch must not be trusted, got last_committed_index=%d", s.LastCommittedIndex())
	}
}

func TestSave_AtomicRenameLeavesNoTmpFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "checkpoint.json")
	s := NewStore(path)
	s.MarkCompleted(0, 1)

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected the .tmp file to be renamed away, stat err=%v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected final checkpoint file to exist: %v", err)
	}
}
