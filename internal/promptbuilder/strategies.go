package promptbuilder

import (
	"fmt"
	"strings"

	"github.com/kilnforge/distill/internal/record"
)

func sysPrefix(p record.Params) string {
	if p.SystemPrompt == "" {
		return ""
	}
	return p.SystemPrompt + "\n\n"
}

// buildExpand asks the model to derive a replacement record from the
// selected source fields, returning a JSON object covering exactly those
// fields (§4.4: "replacement record derived from originals").
func buildExpand(rec record.InputRecord, p record.Params, topic string) (string, error) {
	var sb strings.Builder
	sb.WriteString(sysPrefix(p))
	sb.WriteString("Expand the following record into a richer, higher-quality version of the same fields.\n\n")

	for _, f := range p.SelectedFields {
		sb.WriteString(fmt.Sprintf("%s: %s\n", f, fieldOr(rec, f)))
	}
	if topic != "" {
		sb.WriteString(fmt.Sprintf("\nTopic/seed: %s\n", topic))
	}

	sb.WriteString("\nRespond with ONLY a JSON object containing exactly these fields: ")
	sb.WriteString(strings.Join(p.SelectedFields, ", "))
	sb.WriteString(".\n")
	return sb.String(), nil
}

// buildEnhance asks for a rewritten target field, keeping the rest of the
// record unchanged (§4.4: "rewritten target field, same record").
func buildEnhance(rec record.InputRecord, p record.Params) (string, error) {
	var sb strings.Builder
	sb.WriteString(sysPrefix(p))
	sb.WriteString("Rewrite the following text to improve clarity, correctness and quality. ")
	sb.WriteString("Preserve its meaning and intent.\n\n")
	sb.WriteString(fieldOr(rec, p.TargetField))
	sb.WriteString("\n\nRespond with ONLY the rewritten text, no preamble.")
	return sb.String(), nil
}

// buildParaphrase asks for an alternate phrasing of the target field.
func buildParaphrase(rec record.InputRecord, p record.Params) (string, error) {
	var sb strings.Builder
	sb.WriteString(sysPrefix(p))
	sb.WriteString("Paraphrase the following text. Use different wording and sentence structure ")
	sb.WriteString("while preserving the original meaning.\n\n")
	sb.WriteString(fieldOr(rec, p.TargetField))
	sb.WriteString("\n\nRespond with ONLY the paraphrased text, no preamble.")
	return sb.String(), nil
}

// buildClassifyLabel asks the model to pick a single label from label_set.
func buildClassifyLabel(rec record.InputRecord, p record.Params) (string, error) {
	var sb strings.Builder
	sb.WriteString(sysPrefix(p))
	sb.WriteString("Classify the following text using exactly one of these labels: ")
	sb.WriteString(strings.Join(p.LabelSet, ", "))
	sb.WriteString(".\n\n")
	sb.WriteString(fieldOr(rec, p.TargetField))
	sb.WriteString("\n\nRespond with ONLY the chosen label, no punctuation, no explanation.")
	return sb.String(), nil
}

// buildQToA asks for an answer to the record's question field.
func buildQToA(rec record.InputRecord, p record.Params) (string, error) {
	var sb strings.Builder
	sb.WriteString(sysPrefix(p))
	if p.QPrompt != "" {
		sb.WriteString(p.QPrompt)
		sb.WriteString("\n\n")
	} else {
		sb.WriteString("Answer the following question accurately and completely.\n\n")
	}
	sb.WriteString(fieldOr(rec, p.QFieldName))
	if p.APrompt != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p.APrompt)
	}
	sb.WriteString("\n\nRespond with ONLY the answer, no preamble.")
	return sb.String(), nil
}

// buildCustom renders the user-supplied freeform template, substituting
// {{field}} placeholders with the record's values and {{topic}} with the
// sampled seed, if any.
func buildCustom(rec record.InputRecord, p record.Params, topic string) (string, error) {
	tmpl := p.CustomTemplate
	tmpl = strings.ReplaceAll(tmpl, "{{topic}}", topic)
	for k, v := range rec.Fields {
		s := fmt.Sprintf("%v", v)
		tmpl = strings.ReplaceAll(tmpl, "{{"+k+"}}", s)
	}
	return sysPrefix(p) + tmpl, nil
}
