package promptbuilder

import (
	"strings"
	"testing"

	"github.com/kilnforge/distill/internal/record"
)

func TestValidateParams_RequiredParamMissing(t *testing.T) {
	tests := []struct {
		name    string
		kind    string
		params  record.Params
		wantErr bool
	}{
		{"expand missing selected_fields", "expand", record.Params{}, true},
		{"expand with selected_fields", "expand", record.Params{SelectedFields: []string{"a"}}, false},
		{"enhance missing target_field", "enhance", record.Params{}, true},
		{"enhance with target_field", "enhance", record.Params{TargetField: "output"}, false},
		{"classify_label missing label_set", "classify_label", record.Params{TargetField: "output"}, true},
		{"classify_label complete", "classify_label", record.Params{TargetField: "output", LabelSet: []string{"pos", "neg"}}, false},
		{"q_to_a missing q_field_name", "q_to_a", record.Params{}, true},
		{"unknown strategy", "bogus", record.Params{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.kind, tt.params)
			if tt.wantErr && err == nil {
				t.Fatalf("expected a CONFIG_ERROR, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if tt.wantErr {
				var ce *ConfigError
				if !strings.Contains(err.Error(), "CONFIG_ERROR") {
					t.Fatalf("expected a CONFIG_ERROR-tagged error, got %v (%T)", err, ce)
				}
			}
		})
	}
}

func TestDescribe_EnhanceDoesNotSupportFanout(t *testing.T) {
	d, err := Describe("enhance")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.SupportsFanout {
		t.Fatalf("enhance must not support generation_count > 1 (§9 open question)")
	}
}

func TestBuild_UnknownStrategy(t *testing.T) {
	if _, err := Build("nope", record.InputRecord{}, record.Params{}, ""); err == nil {
		t.Fatalf("expected an error for an unknown strategy")
	}
}

func TestBuild_QToAIncludesQuestionField(t *testing.T) {
	rec := record.InputRecord{Fields: map[string]any{"q": "What is Go?"}}
	prompt, err := Build("q_to_a", rec, record.Params{QFieldName: "q"}, "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(prompt, "What is Go?") {
		t.Fatalf("expected prompt to embed the question field, got %q", prompt)
	}
}

func TestBuild_CustomSubstitutesPlaceholders(t *testing.T) {
	rec := record.InputRecord{Fields: map[string]any{"name": "Ada"}}
	prompt, err := Build("custom", rec, record.Params{CustomTemplate: "Hello {{name}}, topic is {{topic}}"}, "seed-topic")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if prompt != "Hello Ada, topic is seed-topic" {
		t.Fatalf("unexpected rendered prompt: %q", prompt)
	}
}
