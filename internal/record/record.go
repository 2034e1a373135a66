// Package record defines the data shapes shared across the distillation
// pipeline: the raw InputRecord read from the dataset, the Job dispatched
// to a worker, and the OutputRecord written to disk.
package record

import "time"

// InputRecord is an arbitrary mapping from field name to JSON-typed value,
// identified by its zero-based position in the input stream. Records are
// never mutated in place; downstream stages always derive a copy.
type InputRecord struct {
	Index  int
	Fields map[string]any
}

// Clone returns a shallow copy of the record's fields, safe to hand to
// a prompt builder that may further shallow-copy into an OutputRecord.
func (r InputRecord) Clone() map[string]any {
	out := make(map[string]any, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v
	}
	return out
}

// Job is the internal unit of work dispatched to a worker. A record that
// fans out into N generations produces N jobs sharing InputIndex but with
// distinct FanoutSeq, so that each generation can run concurrently.
type Job struct {
	InputIndex  int
	Record      InputRecord
	Strategy    string
	Params      Params
	FanoutSeq   int
	FanoutTotal int
}

// Params is the validated, typed parameter bag threaded through a job.
// The CLI/config layer is responsible for producing one of these per task;
// nothing downstream re-parses a generic map.
type Params struct {
	Model           string
	SystemPrompt    string
	Temperature     float64
	TopP            float64
	TopK            int
	MaxTokens       int
	TimeoutMs       int
	TargetField     string
	QFieldName      string
	SelectedFields  []string
	LabelSet        []string
	QPrompt         string
	APrompt         string
	CustomTemplate  string
	GenerationCount int
}

// Metadata field names written onto every OutputRecord. These are an
// invariant of the output writer: every emitted line carries all of them.
const (
	MetaStrategy  = "_gen_strategy"
	MetaModel     = "_gen_model"
	MetaIndex     = "_gen_index"
	MetaSeq       = "_gen_seq"
	MetaTimestamp = "_gen_timestamp"
	MetaElapsedMs = "_gen_elapsed_ms"
)

// OutputRecord extends an input record with the generated content and
// mandatory generation metadata.
type OutputRecord struct {
	Fields map[string]any
}

// NewOutputRecord builds an OutputRecord from the job that produced it,
// the original input fields, the generated text (already stripped of
// chain-of-thought and fences by the prompt builder), and an optional
// question field for strategies that synthesize one.
func NewOutputRecord(job Job, generated string, question string, elapsed time.Duration) *OutputRecord {
	fields := job.Record.Clone()
	fields[job.Params.TargetField] = generated
	if question != "" {
		fields[job.Params.QFieldName] = question
	}
	return &OutputRecord{Fields: stampMetadata(fields, job, elapsed)}
}

// NewExpandOutputRecord builds an OutputRecord for the `expand` strategy,
// whose output is a replacement record covering several fields at once
// (§4.4: "replacement record derived from originals") rather than a
// single target field. generatedFields overlays the cloned input fields.
func NewExpandOutputRecord(job Job, generatedFields map[string]any, elapsed time.Duration) *OutputRecord {
	fields := job.Record.Clone()
	for k, v := range generatedFields {
		fields[k] = v
	}
	return &OutputRecord{Fields: stampMetadata(fields, job, elapsed)}
}

// stampMetadata writes the mandatory _gen_* fields (§3) onto fields,
// shared by every OutputRecord constructor.
func stampMetadata(fields map[string]any, job Job, elapsed time.Duration) map[string]any {
	fields[MetaStrategy] = job.Strategy
	fields[MetaModel] = job.Params.Model
	fields[MetaIndex] = job.InputIndex
	fields[MetaSeq] = job.FanoutSeq
	fields[MetaTimestamp] = time.Now().UTC().Format(time.RFC3339Nano)
	fields[MetaElapsedMs] = elapsed.Milliseconds()
	return fields
}
