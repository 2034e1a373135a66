// Package checkpoint implements the durable progress marker of §4.5: a
// contiguous completed-prefix plus a completed-index set, atomically
// rewritten so a crash can never leave a torn file behind.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// SchemaVersion is bumped whenever the on-disk shape changes in a way
// that is not backward compatible; a checkpoint whose version does not
// match is treated as absent rather than partially trusted.
const SchemaVersion = 1

// Checkpoint is the durable structure of §3/§4.5.
type Checkpoint struct {
	SchemaVersion      int   `json:"schema_version"`
	LastCommittedIndex int   `json:"last_committed_index"`
	CompletedIndices   []int `json:"completed_indices"`
	OutputsWritten     int   `json:"outputs_written"`
}

// completedSet is the in-memory representation backing CompletedIndices.
type completedSet map[int]struct{}

// Store owns the checkpoint file exclusively (§3 Ownership) and provides
// the atomic write-tmp/fsync/rename-over save protocol of §4.5.
type Store struct {
	mu sync.Mutex

	path               string
	lastCommittedIndex int
	completed          completedSet
	outputsWritten     int
}

// NewStore creates an empty checkpoint store rooted at path (conventionally
// "checkpoint.json" next to the output file).
func NewStore(path string) *Store {
	return &Store{path: path, completed: make(completedSet)}
}

// Load reads an existing checkpoint from path. If the file is absent, it
// returns a fresh empty Store with no error — there is simply nothing to
// resume from. A schema-version mismatch is treated the same way (§4.5:
// "if the file exists and the schema version matches, the contained...set
// and last_committed_index are authoritative").
func Load(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewStore(path), nil
		}
		return nil, fmt.Errorf("checkpoint: reading %s: %w", path, err)
	}

	var cp Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("checkpoint: parsing %s: %w", path, err)
	}

	if cp.SchemaVersion != SchemaVersion {
		return NewStore(path), nil
	}

	s := NewStore(path)
	s.lastCommittedIndex = cp.LastCommittedIndex
	s.outputsWritten = cp.OutputsWritten
	for _, idx := range cp.CompletedIndices {
		s.completed[idx] = struct{}{}
	}
	return s, nil
}

// IsCompleted reports whether index is already accounted for, either
// because it is below the committed prefix or explicitly in the
// completed set. The scheduler uses this to skip redoing work on resume.
func (s *Store) IsCompleted(index int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index < s.lastCommittedIndex {
		return true
	}
	_, ok := s.completed[index]
	return ok
}

// LastCommittedIndex returns the contiguous guaranteed-durable prefix
// boundary: every index < this value is fully written and fsynced.
func (s *Store) LastCommittedIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommittedIndex
}

// MarkCompleted records that index's outputs have been fsynced to the
// output file. The caller (the Output Writer, via the Scheduler) must
// only call this after §4.5's fsync-before-advance invariant is satisfied.
func (s *Store) MarkCompleted(index int, outputsForIndex int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.completed[index] = struct{}{}
	s.outputsWritten += outputsForIndex
	s.advancePrefix()
}

// advancePrefix rolls lastCommittedIndex forward over any run of
// consecutive completed indices starting at the current boundary,
// shrinking the completed set as it goes (§3: "indices outside the
// completed set and >= last_committed_index are the in-flight/pending
// frontier" — once they're absorbed into the prefix they no longer need
// to be listed individually). Must be called with s.mu held.
func (s *Store) advancePrefix() {
	for {
		if _, ok := s.completed[s.lastCommittedIndex]; !ok {
			return
		}
		delete(s.completed, s.lastCommittedIndex)
		s.lastCommittedIndex++
	}
}

// Snapshot returns a serializable copy of current state for Save.
func (s *Store) Snapshot() Checkpoint {
	s.mu.Lock()
	defer s.mu.Unlock()

	indices := make([]int, 0, len(s.completed))
	for idx := range s.completed {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	return Checkpoint{
		SchemaVersion:      SchemaVersion,
		LastCommittedIndex: s.lastCommittedIndex,
		CompletedIndices:   indices,
		OutputsWritten:     s.outputsWritten,
	}
}

// Save persists the checkpoint using the write-tmp/fsync/rename-over
// protocol mandated by §4.5, so a crash mid-write can never corrupt the
// previous, still-valid checkpoint.
func (s *Store) Save() error {
	cp := s.Snapshot()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("checkpoint: marshal: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("checkpoint: mkdir %s: %w", dir, err)
		}
	}

	tmpPath := s.path + ".tmp"
	f, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("checkpoint: open tmp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: write tmp: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("checkpoint: fsync tmp: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("checkpoint: close tmp: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("checkpoint: rename: %w", err)
	}
	return nil
}
