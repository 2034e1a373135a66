package outputwriter

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/kilnforge/distill/internal/record"
)

// lineFile is the shared append-only, newline-terminated JSON writer both
// writer modes build on (§4.6: "one JSON object per line, UTF-8, newline
// \n; fsync after every fsync_interval lines").
type lineFile struct {
	mu             sync.Mutex
	file           *os.File
	w              *bufio.Writer
	fsyncInterval  int
	linesSinceSync int
	totalLines     int
}

func newLineFile(fsyncInterval int) *lineFile {
	if fsyncInterval <= 0 {
		fsyncInterval = 50
	}
	return &lineFile{fsyncInterval: fsyncInterval}
}

// open truncates and creates the output file fresh.
func (l *lineFile) open(path string) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("outputwriter: open %s: %w", path, err)
	}
	l.file = f
	l.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// openAppend opens path in append mode after truncating any trailing bytes
// beyond the last complete line, detected by scanning from the end (§4.6
// "Atomicity of restart").
func (l *lineFile) openAppend(path string) error {
	if err := truncateTrailingPartialLine(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("outputwriter: open-append %s: %w", path, err)
	}
	l.file = f
	l.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

// truncateTrailingPartialLine scans the file from the end and truncates
// any bytes after the last '\n', so a crash mid-write never leaves a torn
// JSON object for the next run to choke on or double-count.
func truncateTrailingPartialLine(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("outputwriter: opening %s for truncation scan: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	size := info.Size()
	if size == 0 {
		return nil
	}

	const chunk = 4096
	var buf []byte
	for offset := size; offset > 0; {
		readSize := int64(chunk)
		if offset < readSize {
			readSize = offset
		}
		offset -= readSize
		tmp := make([]byte, readSize)
		if _, err := f.ReadAt(tmp, offset); err != nil {
			return err
		}
		buf = append(tmp, buf...)
		if idx := bytes.LastIndexByte(buf, '\n'); idx != -1 {
			validEnd := offset + int64(idx) + 1
			if validEnd < size {
				return f.Truncate(validEnd)
			}
			return nil
		}
	}
	// No newline found anywhere: the entire file is a partial line.
	return f.Truncate(0)
}

// writeLine marshals fields as one JSON line and writes it, fsyncing every
// fsyncInterval lines.
func (l *lineFile) writeLine(fields map[string]any) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("outputwriter: marshal: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.w.Write(data); err != nil {
		return fmt.Errorf("outputwriter: write: %w", err)
	}
	if err := l.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("outputwriter: write: %w", err)
	}
	l.totalLines++
	l.linesSinceSync++

	if l.linesSinceSync >= l.fsyncInterval {
		if err := l.flushAndSyncLocked(); err != nil {
			return err
		}
	}
	return nil
}

func (l *lineFile) flushAndSyncLocked() error {
	if err := l.w.Flush(); err != nil {
		return fmt.Errorf("outputwriter: flush: %w", err)
	}
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("outputwriter: fsync: %w", err)
	}
	l.linesSinceSync = 0
	return nil
}

// sync flushes and fsyncs unconditionally, regardless of the interval
// counter. Used at checkpoint boundaries (§4.5's fsync-before-advance
// invariant) and on shutdown/completion.
func (l *lineFile) sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	return l.flushAndSyncLocked()
}

func (l *lineFile) flush() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.w == nil {
		return nil
	}
	return l.w.Flush()
}

func (l *lineFile) close() error {
	if err := l.flush(); err != nil {
		return err
	}
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}

// writeRecords writes a fan-out group's output records, in ascending
// FanoutSeq order, as consecutive lines.
func (l *lineFile) writeRecords(outs []*record.OutputRecord) error {
	for _, o := range outs {
		if err := l.writeLine(o.Fields); err != nil {
			return err
		}
	}
	return nil
}
