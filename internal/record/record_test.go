package record

import (
	"testing"
	"time"
)

func TestInputRecordClone(t *testing.T) {
	rec := InputRecord{Index: 3, Fields: map[string]any{"q": "hello"}}
	clone := rec.Clone()
	clone["q"] = "mutated"

	if rec.Fields["q"] != "hello" {
		t.Fatalf("Clone must not alias the original fields map, original now %v", rec.Fields["q"])
	}
}

func TestNewOutputRecord_MandatoryMetadata(t *testing.T) {
	job := Job{
		InputIndex:  2,
		Record:      InputRecord{Index: 2, Fields: map[string]any{"q": "A"}},
		Strategy:    "q_to_a",
		Params:      Params{Model: "gpt-test", TargetField: "output", QFieldName: "question"},
		FanoutSeq:   1,
		FanoutTotal: 3,
	}

	out := NewOutputRecord(job, "ans(A)", "", 150*time.Millisecond)

	if out.Fields["output"] != "ans(A)" {
		t.Fatalf("expected target field to carry the generated text, got %v", out.Fields["output"])
	}
	if out.Fields["q"] != "A" {
		t.Fatalf("expected original fields to survive, got %v", out.Fields["q"])
	}

	for _, key := range []string{MetaStrategy, MetaModel, MetaIndex, MetaSeq, MetaTimestamp, MetaElapsedMs} {
		if _, ok := out.Fields[key]; !ok {
			t.Fatalf("missing mandatory metadata field %q", key)
		}
	}
	if out.Fields[MetaIndex] != 2 {
		t.Fatalf("expected _gen_index 2, got %v", out.Fields[MetaIndex])
	}
	if out.Fields[MetaSeq] != 1 {
		t.Fatalf("expected _gen_seq 1, got %v", out.Fields[MetaSeq])
	}
	if out.Fields[MetaElapsedMs] != int64(150) {
		t.Fatalf("expected _gen_elapsed_ms 150, got %v", out.Fields[MetaElapsedMs])
	}
}

func TestNewOutputRecord_OptionalQuestion(t *testing.T) {
	job := Job{
		Record: InputRecord{Fields: map[string]any{}},
		Params: Params{TargetField: "output", QFieldName: "question"},
	}
	out := NewOutputRecord(job, "answer text", "synthesized question", time.Millisecond)
	if out.Fields["question"] != "synthesized question" {
		t.Fatalf("expected optional question field to be set, got %v", out.Fields["question"])
	}
}

func TestNewExpandOutputRecord_MergesMultipleFields(t *testing.T) {
	job := Job{
		InputIndex: 5,
		Record:     InputRecord{Index: 5, Fields: map[string]any{"title": "old", "untouched": "keep"}},
		Strategy:   "expand",
		Params:     Params{Model: "m1", SelectedFields: []string{"title", "body"}},
		FanoutSeq:  0,
	}
	generated := map[string]any{"title": "new title", "body": "new body"}

	out := NewExpandOutputRecord(job, generated, 10*time.Millisecond)

	if out.Fields["title"] != "new title" {
		t.Fatalf("expected title to be overwritten by expand output, got %v", out.Fields["title"])
	}
	if out.Fields["body"] != "new body" {
		t.Fatalf("expected body to be added by expand output, got %v", out.Fields["body"])
	}
	if out.Fields["untouched"] != "keep" {
		t.Fatalf("expected fields outside selected_fields to survive untouched, got %v", out.Fields["untouched"])
	}
	if out.Fields[MetaIndex] != 5 {
		t.Fatalf("expected metadata to still be stamped, got %v", out.Fields[MetaIndex])
	}
}
