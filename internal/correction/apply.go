package correction

import (
	"sort"

	"github.com/dgallion1/groundtruth/internal/grounding"
)

// Action is what an edit does to its target.
type Action string

const (
	ActionCorrect Action = "correct"
	ActionRemove  Action = "remove"
)

// Edit targets one element of a result list. Field is the list name
// (key_findings, supporting_quotes, adverse_events or
// serious_adverse_events). For TypeStatEvidence a correction with a string
// value rewrites statistical_evidence and a removal clears it.
type Edit struct {
	Type   string
	Field  string
	Index  int
	Action Action
	Value  any
	Claim  string
}

// Apply returns a copy of result with edits applied, and a record of the
// edits that changed something. Corrections run first in order; removals
// run last per field in descending index order. Edits that would change a
// value's shape or point outside their list are skipped. result is never
// modified.
func Apply(result map[string]any, edits []Edit) (map[string]any, []grounding.Correction) {
	out := cloneValue(result).(map[string]any)
	var applied []grounding.Correction

	removals := map[string][]int{}
	removed := map[string]map[int]bool{}
	var clears []Edit

	for _, e := range edits {
		switch e.Action {
		case ActionCorrect:
			if e.Value == nil {
				continue
			}
			list := listFor(out, e.Field)
			if e.Index < 0 || e.Index >= len(list) {
				continue
			}
			next, ok := reshape(list[e.Index], e.Value, e.Type)
			if !ok {
				continue
			}
			list[e.Index] = next
			applied = append(applied, grounding.Correction{Type: e.Type, Action: "corrected", Original: e.Claim, Corrected: e.Value})

		case ActionRemove:
			if e.Type == TypeStatEvidence {
				clears = append(clears, e)
				continue
			}
			if e.Index < 0 || e.Index >= len(listFor(out, e.Field)) {
				continue
			}
			if removed[e.Field] == nil {
				removed[e.Field] = map[int]bool{}
			}
			if removed[e.Field][e.Index] {
				continue
			}
			removed[e.Field][e.Index] = true
			removals[e.Field] = append(removals[e.Field], e.Index)
			applied = append(applied, grounding.Correction{Type: e.Type, Action: "removed", Original: e.Claim})
		}
	}

	for _, e := range clears {
		list := listFor(out, e.Field)
		if e.Index < 0 || e.Index >= len(list) {
			continue
		}
		obj, ok := list[e.Index].(map[string]any)
		if !ok {
			continue
		}
		obj["statistical_evidence"] = ""
		applied = append(applied, grounding.Correction{Type: e.Type, Action: "removed", Original: e.Claim})
	}

	fields := make([]string, 0, len(removals))
	for f := range removals {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	for _, f := range fields {
		idx := removals[f]
		sort.Sort(sort.Reverse(sort.IntSlice(idx)))
		list := listFor(out, f)
		for _, i := range idx {
			list = append(list[:i], list[i+1:]...)
		}
		setList(out, f, list)
	}

	return out, applied
}

// reshape merges value into old without changing old's shape.
func reshape(old, value any, typ string) (any, bool) {
	switch o := old.(type) {
	case map[string]any:
		switch v := value.(type) {
		case map[string]any:
			if !sameShape(o, v) {
				return nil, false
			}
			for k, val := range v {
				o[k] = cloneValue(val)
			}
			return o, true
		case string:
			key := "finding"
			if typ == TypeStatEvidence {
				key = "statistical_evidence"
			}
			o[key] = v
			return o, true
		}
	case string:
		if v, ok := value.(string); ok {
			return v, true
		}
	}
	return nil, false
}

// sameShape reports whether every key of value already present in old has
// the same kind there. Nested objects are checked recursively; nulls match
// anything.
func sameShape(old, value map[string]any) bool {
	for k, nv := range value {
		ov, ok := old[k]
		if !ok || ov == nil || nv == nil {
			continue
		}
		switch o := ov.(type) {
		case map[string]any:
			n, ok := nv.(map[string]any)
			if !ok || !sameShape(o, n) {
				return false
			}
		case []any:
			if _, ok := nv.([]any); !ok {
				return false
			}
		case string:
			if _, ok := nv.(string); !ok {
				return false
			}
		case float64:
			if _, ok := nv.(float64); !ok {
				return false
			}
		case bool:
			if _, ok := nv.(bool); !ok {
				return false
			}
		}
	}
	return true
}

func listFor(result map[string]any, field string) []any {
	switch field {
	case grounding.FieldAdverseEvents, grounding.FieldSeriousAdverseEvents:
		safety, _ := result[grounding.FieldSafetyProfile].(map[string]any)
		list, _ := safety[field].([]any)
		return list
	default:
		list, _ := result[field].([]any)
		return list
	}
}

func setList(result map[string]any, field string, list []any) {
	switch field {
	case grounding.FieldAdverseEvents, grounding.FieldSeriousAdverseEvents:
		if safety, ok := result[grounding.FieldSafetyProfile].(map[string]any); ok {
			safety[field] = list
		}
	default:
		result[field] = list
	}
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, c := range t {
			m[k] = cloneValue(c)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, c := range t {
			s[i] = cloneValue(c)
		}
		return s
	default:
		return v
	}
}
