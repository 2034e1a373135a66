// Package promptbuilder implements §4.4: turning (strategy, record, fields,
// labels, user prompts) into a concrete prompt, and extracting the
// semantic output back out of raw model text.
package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/kilnforge/distill/internal/record"
)

// Kind enumerates the supported strategies (§4.4 table).
type Kind string

const (
	KindExpand         Kind = "expand"
	KindEnhance        Kind = "enhance"
	KindParaphrase     Kind = "paraphrase"
	KindClassifyLabel  Kind = "classify_label"
	KindQToA           Kind = "q_to_a"
	KindCustom         Kind = "custom"
)

// Descriptor mirrors the spec's StrategyConfig (§3): fixed at build time,
// describing what a strategy requires and its default sampling behavior.
type Descriptor struct {
	Kind               Kind
	RequiredParams     []string
	OptionalParams     []string
	DefaultTemperature float64
	TemplateID         string
	SupportsFanout     bool // whether generation_count > 1 is meaningful
}

var descriptors = map[Kind]Descriptor{
	KindExpand: {
		Kind: KindExpand, RequiredParams: []string{"selected_fields"},
		DefaultTemperature: 0.8, TemplateID: "expand.v1", SupportsFanout: true,
	},
	KindEnhance: {
		Kind: KindEnhance, RequiredParams: []string{"target_field"},
		DefaultTemperature: 0.5, TemplateID: "enhance.v1", SupportsFanout: false,
	},
	KindParaphrase: {
		Kind: KindParaphrase, RequiredParams: []string{"target_field"},
		DefaultTemperature: 0.9, TemplateID: "paraphrase.v1", SupportsFanout: true,
	},
	KindClassifyLabel: {
		Kind: KindClassifyLabel, RequiredParams: []string{"target_field", "label_set"},
		DefaultTemperature: 0.0, TemplateID: "classify_label.v1", SupportsFanout: false,
	},
	KindQToA: {
		Kind: KindQToA, RequiredParams: []string{"q_field_name"},
		OptionalParams:     []string{"target_field", "q_prompt", "a_prompt"},
		DefaultTemperature: 0.6, TemplateID: "q_to_a.v1", SupportsFanout: true,
	},
	KindCustom: {
		Kind: KindCustom, RequiredParams: []string{"custom_template"},
		DefaultTemperature: 0.7, TemplateID: "custom.v1", SupportsFanout: true,
	},
}

// Describe returns the Descriptor for a strategy kind.
func Describe(kind string) (Descriptor, error) {
	d, ok := descriptors[Kind(kind)]
	if !ok {
		return Descriptor{}, fmt.Errorf("promptbuilder: unknown strategy %q", kind)
	}
	return d, nil
}

// ConfigError is returned for missing/invalid parameters, surfaced
// synchronously before scheduling begins (§4.4, §7 CONFIG_ERROR).
type ConfigError struct {
	Strategy string
	Param    string
	Reason   string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("CONFIG_ERROR: strategy %s: param %q: %s", e.Strategy, e.Param, e.Reason)
}

// ValidateParams enforces the required-parameter contract of §4.4 before
// the scheduler accepts any work.
func ValidateParams(kind string, p record.Params) error {
	d, err := Describe(kind)
	if err != nil {
		return &ConfigError{Strategy: kind, Reason: err.Error()}
	}

	for _, req := range d.RequiredParams {
		if !hasParam(d.Kind, req, p) {
			return &ConfigError{Strategy: kind, Param: req, Reason: "required parameter missing"}
		}
	}
	return nil
}

func hasParam(kind Kind, name string, p record.Params) bool {
	switch name {
	case "selected_fields":
		return len(p.SelectedFields) > 0
	case "target_field":
		return strings.TrimSpace(p.TargetField) != ""
	case "label_set":
		return len(p.LabelSet) > 0
	case "q_field_name":
		return strings.TrimSpace(p.QFieldName) != ""
	case "custom_template":
		return strings.TrimSpace(p.CustomTemplate) != ""
	default:
		return true
	}
}

// Build dispatches to the strategy-specific template and returns the
// prompt to send to the model. rec is the original input record; topic is
// an optional seed/topic string threaded in by the caller (e.g. from a
// sampler over the input file).
func Build(kind string, rec record.InputRecord, p record.Params, topic string) (string, error) {
	switch Kind(kind) {
	case KindExpand:
		return buildExpand(rec, p, topic)
	case KindEnhance:
		return buildEnhance(rec, p)
	case KindParaphrase:
		return buildParaphrase(rec, p)
	case KindClassifyLabel:
		return buildClassifyLabel(rec, p)
	case KindQToA:
		return buildQToA(rec, p)
	case KindCustom:
		return buildCustom(rec, p, topic)
	default:
		return "", fmt.Errorf("promptbuilder: unknown strategy %q", kind)
	}
}

// fieldOr returns the string value of a record field, or "" if absent.
func fieldOr(rec record.InputRecord, name string) string {
	v, ok := rec.Fields[name]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
