package outputwriter

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/kilnforge/distill/internal/record"
)

// parquetJSONSchema describes one row of the Parquet export: the
// generation metadata columns every OutputRecord carries, plus a single
// fields_json column holding the rest of the record. A fixed per-field
// columnar schema (the way the teacher's ParquetRecord does it) only
// works when every row shares the same fields; here the field set varies
// by strategy (expand vs. q_to_a vs. classify_label each stamp different
// keys), so the variable part is kept as one JSON-encoded column instead.
const parquetJSONSchema = `{
  "Tag": "name=row, repetitiontype=REQUIRED",
  "Fields": [
    {"Tag": "name=input_index, type=INT64, repetitiontype=REQUIRED"},
    {"Tag": "name=fanout_seq, type=INT64, repetitiontype=REQUIRED"},
    {"Tag": "name=strategy, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
    {"Tag": "name=model, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
    {"Tag": "name=generated_at, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"},
    {"Tag": "name=elapsed_ms, type=INT64, repetitiontype=REQUIRED"},
    {"Tag": "name=fields_json, type=BYTE_ARRAY, convertedtype=UTF8, repetitiontype=REQUIRED"}
  ]
}`

type parquetRow struct {
	InputIndex  int64  `json:"input_index"`
	FanoutSeq   int64  `json:"fanout_seq"`
	Strategy    string `json:"strategy"`
	Model       string `json:"model"`
	GeneratedAt string `json:"generated_at"`
	ElapsedMs   int64  `json:"elapsed_ms"`
	FieldsJSON  string `json:"fields_json"`
}

// ParquetWriter buffers every submitted Group in memory and writes a
// single Parquet file on Close, matching the teacher's own documented
// limitation that Parquet has no true append mode: "samples in memory,
// rewrite on Close" (internal/output/parquet.go). Unlike the JSONL
// writers this means a crash before Close loses the whole run's output,
// so it is meant for bounded batch exports (e.g. "materialize the
// finished run as a single Parquet file"), not as the primary writer for
// a long resumable task. The Task Controller uses it as the task's Writer
// in place of the JSONL writer when the output format is parquet, and
// refuses to resume such a task.
type ParquetWriter struct {
	mu     sync.Mutex
	path   string
	groups map[int]Group
	maxIdx int
	sawAny bool
}

// NewParquetWriter constructs a Parquet Writer for path. It implements
// the same Writer interface as the JSONL writers so the Task Controller
// can select it via Params.OutputFormat without the Scheduler knowing the
// difference, but Sync/Flush are no-ops until Close (see the type doc).
func NewParquetWriter(path string) *ParquetWriter {
	return &ParquetWriter{path: path, groups: make(map[int]Group)}
}

func (w *ParquetWriter) Submit(g Group) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.groups[g.InputIndex] = g
	if !w.sawAny || g.InputIndex > w.maxIdx {
		w.maxIdx = g.InputIndex
	}
	w.sawAny = true
	return nil
}

// Flush is a no-op: there is nothing to flush to disk until Close, since
// Parquet's column-chunk layout requires every row up front.
func (w *ParquetWriter) Flush() error { return nil }

// Sync reports the highest buffered index but guarantees nothing durable
// has hit disk yet — callers relying on Sync's return value to advance a
// checkpoint should not select this writer for a resumable task.
func (w *ParquetWriter) Sync() (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.maxIdx, nil
}

func (w *ParquetWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.groups)
}

// Close writes every buffered group to a single Parquet file, sorted by
// input index so the export reads in input order, whatever order the
// groups were submitted in.
func (w *ParquetWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.groups) == 0 {
		return nil
	}

	indices := make([]int, 0, len(w.groups))
	for idx := range w.groups {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	fw, err := local.NewLocalFileWriter(w.path)
	if err != nil {
		return fmt.Errorf("outputwriter: creating parquet file: %w", err)
	}
	defer fw.Close()

	pw, err := writer.NewJSONWriter(parquetJSONSchema, fw, 4)
	if err != nil {
		return fmt.Errorf("outputwriter: creating parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, idx := range indices {
		for _, out := range w.groups[idx].Outputs {
			row, err := rowFor(idx, out)
			if err != nil {
				pw.WriteStop()
				return err
			}
			rowJSON, err := json.Marshal(row)
			if err != nil {
				pw.WriteStop()
				return fmt.Errorf("outputwriter: marshal parquet row: %w", err)
			}
			if err := pw.Write(string(rowJSON)); err != nil {
				pw.WriteStop()
				return fmt.Errorf("outputwriter: writing parquet row: %w", err)
			}
		}
	}

	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("outputwriter: finalizing parquet: %w", err)
	}
	return nil
}

func rowFor(inputIndex int, out *record.OutputRecord) (parquetRow, error) {
	fields := make(map[string]any, len(out.Fields))
	for k, v := range out.Fields {
		fields[k] = v
	}

	strategy, _ := fields[record.MetaStrategy].(string)
	model, _ := fields[record.MetaModel].(string)
	generatedAt, _ := fields[record.MetaTimestamp].(string)
	var elapsedMs int64
	if v, ok := fields[record.MetaElapsedMs].(int64); ok {
		elapsedMs = v
	}
	seq, _ := fields[record.MetaSeq].(int)

	delete(fields, record.MetaStrategy)
	delete(fields, record.MetaModel)
	delete(fields, record.MetaIndex)
	delete(fields, record.MetaSeq)
	delete(fields, record.MetaTimestamp)
	delete(fields, record.MetaElapsedMs)

	fieldsJSON, err := json.Marshal(fields)
	if err != nil {
		return parquetRow{}, fmt.Errorf("outputwriter: marshal record fields: %w", err)
	}

	return parquetRow{
		InputIndex:  int64(inputIndex),
		FanoutSeq:   int64(seq),
		Strategy:    strategy,
		Model:       model,
		GeneratedAt: generatedAt,
		ElapsedMs:   elapsedMs,
		FieldsJSON:  string(fieldsJSON),
	}, nil
}
