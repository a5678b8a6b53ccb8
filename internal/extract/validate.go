package extract

import (
	"regexp"
	"sort"
	"strings"
)

var injectionPattern = regexp.MustCompile(
	`(?i)(ignore\s+(previous|all|above)\s+instructions|system\s*prompt|you\s+are\s+now|` +
		`forget\s+(everything|all)|new\s+instructions)`,
)

// cleanOutput trims string values and drops blank list entries. Maps are
// cleaned in place; the return value replaces list values.
func cleanOutput(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, child := range t {
			t[k] = cleanOutput(child)
		}
		return t
	case []any:
		out := t[:0]
		for _, item := range t {
			if s, ok := item.(string); ok {
				s = strings.TrimSpace(s)
				if s == "" {
					continue
				}
				out = append(out, s)
				continue
			}
			if item == nil {
				continue
			}
			out = append(out, cleanOutput(item))
		}
		return out
	case string:
		return strings.TrimSpace(t)
	default:
		return v
	}
}

// instructionLike returns the strings in v that read like instructions to
// the model. Matches are reported, never removed: clinical text such as
// "sites received new instructions" trips the same pattern.
func instructionLike(v any) []string {
	var found []string
	var walk func(any)
	walk = func(v any) {
		switch t := v.(type) {
		case map[string]any:
			keys := make([]string, 0, len(t))
			for k := range t {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				walk(t[k])
			}
		case []any:
			for _, item := range t {
				walk(item)
			}
		case string:
			if injectionPattern.MatchString(t) {
				found = append(found, t)
			}
		}
	}
	walk(v)
	return found
}
