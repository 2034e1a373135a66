package promptbuilder

import (
	"encoding/json"
	"fmt"
	"strings"
)

const (
	thinkOpenTag  = "<think>"
	thinkCloseTag = "</think>"
)

// StripThink removes a leading <think>...</think> chain-of-thought block,
// if present. The Model Client never strips it (§4.1/§9); this is the
// Prompt Builder's job, applied unconditionally during post-processing.
func StripThink(raw string) string {
	s := strings.TrimSpace(raw)
	if !strings.HasPrefix(s, thinkOpenTag) {
		return raw
	}
	end := strings.Index(s, thinkCloseTag)
	if end == -1 {
		return raw
	}
	return strings.TrimSpace(s[end+len(thinkCloseTag):])
}

// StripFences removes a surrounding ``` or ```json code fence.
func StripFences(raw string) string {
	s := strings.TrimSpace(raw)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```")
		if idx := strings.IndexByte(s, '\n'); idx != -1 {
			firstLine := strings.TrimSpace(s[:idx])
			if firstLine == "json" || firstLine == "" {
				s = s[idx+1:]
			}
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

// PostProcess applies the mandatory pipeline of §4.4: strip a leading
// <think> block, strip surrounding code fences, trim whitespace.
func PostProcess(raw string) string {
	return StripFences(StripThink(raw))
}

// QualityFailError marks output that was produced but failed
// strategy-specific validation (§7 QUALITY_FAIL): counted as a failure,
// no output line emitted.
type QualityFailError struct {
	Strategy string
	Reason   string
}

func (e *QualityFailError) Error() string {
	return fmt.Sprintf("QUALITY_FAIL: strategy %s: %s", e.Strategy, e.Reason)
}

// SnapLabel matches text against label_set case-insensitively; if no
// label matches, returns a QualityFailError (§4.4: "snaps the output to
// the nearest label by case-insensitive exact match"). This reads §4.4
// as requiring an exact match once case is normalized — a model response
// of "POSITIVE" against label_set {"pos","neg"} is a QUALITY_FAIL, not a
// snap to "pos", even though §8's S6 narrative describes exactly that
// mapping. We follow §4.4's literal wording over the S6 illustration.
func SnapLabel(text string, labelSet []string) (string, error) {
	candidate := strings.ToLower(strings.TrimSpace(text))
	for _, label := range labelSet {
		if strings.ToLower(strings.TrimSpace(label)) == candidate {
			return label, nil
		}
	}
	return "", &QualityFailError{Strategy: string(KindClassifyLabel), Reason: fmt.Sprintf("output %q does not match any label in set", text)}
}

// ExpandFields parses an `expand` strategy response (a JSON object) and
// returns only the selected fields, ignoring anything extra the model
// added. Fields missing from the response are left absent rather than
// forcing an empty string, so the caller can decide whether that is fatal.
func ExpandFields(raw string, selectedFields []string) (map[string]any, error) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(PostProcess(raw)), &obj); err != nil {
		return nil, fmt.Errorf("promptbuilder: expand response is not valid JSON: %w", err)
	}
	out := make(map[string]any, len(selectedFields))
	for _, f := range selectedFields {
		if v, ok := obj[f]; ok {
			out[f] = v
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("promptbuilder: expand response contained none of the selected fields")
	}
	return out, nil
}
