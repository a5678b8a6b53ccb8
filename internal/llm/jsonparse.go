package llm

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"
)

// ErrUnparsable is returned when no parse strategy yields a usable value.
var ErrUnparsable = errors.New("llm output is not parsable JSON")

var (
	jsonFenceRe = regexp.MustCompile("(?s)```json\\s*(.*?)\\s*```")
	anyFenceRe  = regexp.MustCompile("(?s)```\\s*(.*?)\\s*```")
	braceRe     = regexp.MustCompile(`(?s)(\{.*\})`)
)

// candidates lists the substrings tried, in order: the raw text, a ```json
// fence, any fence, then the outermost brace span.
func candidates(raw string) []string {
	out := []string{raw}
	for _, re := range []*regexp.Regexp{jsonFenceRe, anyFenceRe, braceRe} {
		if m := re.FindStringSubmatch(raw); m != nil {
			out = append(out, m[1])
		}
	}
	return out
}

// ParseValue decodes the first candidate that is valid JSON.
func ParseValue(raw string) (any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrUnparsable
	}
	for _, c := range candidates(raw) {
		var v any
		if err := json.Unmarshal([]byte(c), &v); err == nil && v != nil {
			return v, nil
		}
	}
	return nil, ErrUnparsable
}

// ParseObject decodes the first candidate that is a JSON object.
func ParseObject(raw string) (map[string]any, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, ErrUnparsable
	}
	for _, c := range candidates(raw) {
		var m map[string]any
		if err := json.Unmarshal([]byte(c), &m); err == nil && m != nil {
			return m, nil
		}
	}
	return nil, ErrUnparsable
}
