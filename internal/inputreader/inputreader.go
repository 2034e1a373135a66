// Package inputreader streams InputRecords from the two file formats §6
// accepts: JSON Lines, and a top-level JSON array (or an object whose
// first list-valued field holds the array).
package inputreader

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/kilnforge/distill/internal/record"
)

// MalformedRecordError wraps a per-record parse failure with its
// zero-based position, so the caller can apply §7's INPUT_ERROR policy
// (skip-with-warning, unless the first 100 records are all malformed).
type MalformedRecordError struct {
	Index int
	Cause error
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("inputreader: record %d: %v", e.Index, e.Cause)
}

func (e *MalformedRecordError) Unwrap() error { return e.Cause }

// Handler is called once per successfully parsed record, in file order.
// A MalformedRecordError is reported through the handler too (with Rec
// left at its zero value) so the caller can apply the bad-record policy
// without the reader itself deciding when to abort.
type Handler func(rec record.InputRecord, err error) error

// ReadAll detects the format from path's extension and streams every
// record to handler in order. It stops early if handler returns a
// non-nil error.
func ReadAll(path string, handler Handler) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jsonl":
		return readJSONL(path, handler)
	case ".json":
		return readJSONArray(path, handler)
	default:
		return fmt.Errorf("inputreader: unsupported extension for %s (want .jsonl or .json)", path)
	}
}

// readJSONL reads one JSON object per line, skipping blank lines and
// lines beginning with '#' (§6).
func readJSONL(path string, handler Handler) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("inputreader: opening %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	index := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			if herr := handler(record.InputRecord{Index: index}, &MalformedRecordError{Index: index, Cause: err}); herr != nil {
				return herr
			}
			index++
			continue
		}

		if err := handler(record.InputRecord{Index: index, Fields: fields}, nil); err != nil {
			return err
		}
		index++
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("inputreader: reading %s: %w", path, err)
	}
	return nil
}

// readJSONArray reads a top-level array, or an object whose first
// list-valued field is the array, per §6.
func readJSONArray(path string, handler Handler) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("inputreader: opening %s: %w", path, err)
	}

	arr, err := extractArray(data)
	if err != nil {
		return fmt.Errorf("inputreader: %s: %w", path, err)
	}

	for index, raw := range arr {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			if herr := handler(record.InputRecord{Index: index}, &MalformedRecordError{Index: index, Cause: err}); herr != nil {
				return herr
			}
			continue
		}
		if err := handler(record.InputRecord{Index: index, Fields: fields}, nil); err != nil {
			return err
		}
	}
	return nil
}

// extractArray finds the JSON array to iterate: the top-level value
// itself if it is an array, else the first field of a top-level object
// whose value is a JSON array.
func extractArray(data []byte) ([]json.RawMessage, error) {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "" {
		return nil, fmt.Errorf("empty file")
	}

	switch trimmed[0] {
	case '[':
		var arr []json.RawMessage
		if err := json.Unmarshal(data, &arr); err != nil {
			return nil, fmt.Errorf("parsing top-level array: %w", err)
		}
		return arr, nil
	case '{':
		// Walk the object's keys in file order (map iteration order is
		// not stable, and the spec is explicit about "first list-valued
		// field") looking for the first array-typed value.
		return firstListField(trimmed)
	default:
		return nil, fmt.Errorf("top-level JSON value must be an array or object")
	}
}

func firstListField(raw string) ([]json.RawMessage, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, fmt.Errorf("expected top-level object")
	}

	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, _ := keyTok.(string)

		// Decode the value straight off dec, regardless of its shape, so
		// the decoder's position always advances to the next key —
		// unmarshalling obj[key]'s already-extracted bytes instead (the
		// previous approach) leaves dec itself still sitting on this
		// value, and the next Token() call returns it instead of the
		// following key.
		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}

		if len(value) > 0 && value[0] == '[' {
			var arr []json.RawMessage
			if err := json.Unmarshal(value, &arr); err != nil {
				return nil, fmt.Errorf("parsing field %q: %w", key, err)
			}
			return arr, nil
		}
	}
	return nil, fmt.Errorf("no list-valued field found in top-level object")
}
