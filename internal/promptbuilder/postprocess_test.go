package promptbuilder

import (
	"errors"
	"testing"
)

func TestStripThink(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"with think block", "<think>\nreasoning here\n</think>\n\nfinal answer", "final answer"},
		{"without think block", "just the answer", "just the answer"},
		{"unterminated think block left alone", "<think>\nno closing tag", "<think>\nno closing tag"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThink(tt.in); got != tt.want {
				t.Fatalf("StripThink(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestStripFences(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"plain fence", "```\nhello\n```", "hello"},
		{"no fence", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripFences(tt.in); got != tt.want {
				t.Fatalf("StripFences(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestPostProcess_StripsThinkThenFences(t *testing.T) {
	raw := "<think>\nscratch work\n</think>\n\n```json\n{\"x\":true}\n```"
	got := PostProcess(raw)
	want := `{"x":true}`
	if got != want {
		t.Fatalf("PostProcess(%q) = %q, want %q", raw, got, want)
	}
}

func TestSnapLabel_CaseInsensitiveExactMatch(t *testing.T) {
	labels := []string{"pos", "neg"}

	got, err := SnapLabel("POS", labels)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "pos" {
		t.Fatalf("expected case-insensitive snap to canonical label %q, got %q", "pos", got)
	}
}

func TestSnapLabel_NoMatchIsQualityFail(t *testing.T) {
	labels := []string{"pos", "neg"}

	_, err := SnapLabel("maybe", labels)
	if err == nil {
		t.Fatalf("expected a QUALITY_FAIL error for an unmatched label")
	}
	var qf *QualityFailError
	if !errors.As(err, &qf) {
		t.Fatalf("expected a *QualityFailError, got %v (%T)", err, err)
	}
}

func TestExpandFields_SelectsOnlyRequestedFields(t *testing.T) {
	raw := "```json\n{\"title\": \"new title\", \"body\": \"new body\", \"extra\": \"ignored\"}\n```"
	out, err := ExpandFields(raw, []string{"title", "body"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected exactly the 2 selected fields, got %v", out)
	}
	if out["title"] != "new title" || out["body"] != "new body" {
		t.Fatalf("unexpected fields: %v", out)
	}
	if _, ok := out["extra"]; ok {
		t.Fatalf("expand must not surface fields outside selected_fields")
	}
}

func TestExpandFields_NonJSONIsError(t *testing.T) {
	if _, err := ExpandFields("not json at all", []string{"title"}); err == nil {
		t.Fatalf("expected an error for a non-JSON expand response")
	}
}

func TestExpandFields_NoneOfSelectedPresentIsError(t *testing.T) {
	if _, err := ExpandFields(`{"other":"x"}`, []string{"title"}); err == nil {
		t.Fatalf("expected an error when none of the selected fields are present")
	}
}
