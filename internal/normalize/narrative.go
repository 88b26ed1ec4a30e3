package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Narrative holds the three optional rationale fields produced by the analysis workflow.
// An empty field means "not rendered".
type Narrative struct {
	Summary  string `json:"summary,omitempty"`
	Reason   string `json:"reason,omitempty"`
	OneLiner string `json:"one_liner,omitempty"`
}

// Empty reports whether nothing would be rendered.
func (n Narrative) Empty() bool {
	return n.Summary == "" && n.Reason == "" && n.OneLiner == ""
}

// fenceLineRe matches a fence alone on its line, with an optional language tag.
var fenceLineRe = regexp.MustCompile("(?m)^[ \\t]*```[A-Za-z0-9_+-]*[ \\t]*$")

// stripFences drops fence lines and any remaining inline fence markers, leaving the text
// between them intact.
func stripFences(text string) string {
	return strings.ReplaceAll(fenceLineRe.ReplaceAllString(text, ""), "```", "")
}

// ParseNarrative extracts a Narrative from AI output text. It accepts a JSON object, the same
// object inside markdown fences, or an array whose first element carries either form in its
// "output" field. Anything else becomes the summary verbatim. It never fails.
func ParseNarrative(text string) Narrative {
	if unwrapped, ok := unwrapOutputArray(text); ok {
		return parseCandidate(unwrapped)
	}
	return parseCandidate(text)
}

// ParseNarrativeValue parses a raw record value. Decoded objects and arrays are encoded back to
// JSON first so they take the same path as text.
func ParseNarrativeValue(v any) Narrative {
	switch t := v.(type) {
	case nil:
		return Narrative{}
	case string:
		return ParseNarrative(t)
	case []byte:
		return ParseNarrative(string(t))
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return Narrative{}
		}
		return ParseNarrative(string(b))
	}
	if s, ok := asString(v); ok {
		return ParseNarrative(s)
	}
	return Narrative{}
}

// NarrativeOf reads the narrative of a run from ai_summary, then ai_output.
func NarrativeOf(rec Record) Narrative {
	for _, key := range []string{"ai_summary", "ai_output"} {
		v, ok := rec.lookup(key)
		if !ok {
			continue
		}
		if n := ParseNarrativeValue(v); !n.Empty() {
			return n
		}
	}
	return Narrative{}
}

// unwrapOutputArray returns the "output" string of the first array element. It does not look
// inside the result again, so at most one level of wrapping is removed.
func unwrapOutputArray(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "[") {
		return "", false
	}
	var items []json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &items); err != nil || len(items) == 0 {
		return "", false
	}
	var first struct {
		Output *string `json:"output"`
	}
	if err := json.Unmarshal(items[0], &first); err != nil || first.Output == nil {
		return "", false
	}
	return *first.Output, true
}

func parseCandidate(text string) Narrative {
	cleaned := strings.TrimSpace(stripFences(text))
	if cleaned == "" {
		return Narrative{}
	}

	var obj map[string]any
	if strings.HasPrefix(cleaned, "{") {
		if err := json.Unmarshal([]byte(cleaned), &obj); err == nil {
			return Narrative{
				Summary:  trimmedField(obj, "ai_summary"),
				Reason:   trimmedField(obj, "decision_reason"),
				OneLiner: trimmedField(obj, "one_liner"),
			}
		}
	}
	return Narrative{Summary: cleaned}
}

func trimmedField(obj map[string]any, key string) string {
	s, ok := obj[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
