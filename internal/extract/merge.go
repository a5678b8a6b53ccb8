package extract

import (
	"encoding/json"
	"regexp"
	"strings"
)

// maxMergedQuotes caps supporting_quotes in a deterministic merge.
const maxMergedQuotes = 6

// Merge combines partial outputs without the model. Lists are concatenated
// and de-duplicated, nested objects merged recursively, and scalars take the
// first non-empty value in chunk order.
func Merge(partials []map[string]any) map[string]any {
	out := map[string]any{}
	for _, p := range partials {
		mergeInto(out, p)
	}
	if quotes, ok := out["supporting_quotes"].([]any); ok && len(quotes) > maxMergedQuotes {
		out["supporting_quotes"] = quotes[:maxMergedQuotes]
	}
	resolveTieBreaks(out, partials)
	return out
}

func mergeInto(dst, src map[string]any) {
	for k, v := range src {
		cur, exists := dst[k]
		if !exists || isEmpty(cur) {
			dst[k] = cloneValue(v)
			continue
		}
		switch cv := cur.(type) {
		case []any:
			if sv, ok := v.([]any); ok {
				dst[k] = appendUnique(cv, sv)
			}
		case map[string]any:
			if sv, ok := v.(map[string]any); ok {
				mergeInto(cv, sv)
			}
		}
	}
}

func appendUnique(dst, src []any) []any {
	seen := make(map[string]bool, len(dst)+len(src))
	for _, v := range dst {
		seen[canonical(v)] = true
	}
	for _, v := range src {
		key := canonical(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		dst = append(dst, cloneValue(v))
	}
	return dst
}

func canonical(v any) string {
	if s, ok := v.(string); ok {
		return strings.ToLower(strings.Join(strings.Fields(s), " "))
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func isEmpty(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case []any:
		return len(t) == 0
	case map[string]any:
		return len(t) == 0
	}
	return false
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

// resolveTieBreaks overrides trial_phase_signals and confidence with values
// derived from the partials: the most specific phase, and the most frequent
// confidence with ties going to the lower level.
func resolveTieBreaks(out map[string]any, partials []map[string]any) {
	if phase, ok := mostSpecificPhase(partials); ok {
		out["trial_phase_signals"] = phase
	}
	if conf, ok := consensusConfidence(partials); ok {
		out["confidence"] = conf
	}
}

var phasePatterns = []struct {
	re   *regexp.Regexp
	rank int
}{
	{regexp.MustCompile(`(?i)\bpre-?clinical\b`), 1},
	{regexp.MustCompile(`(?i)\bphase\s*(?:i|1)\b`), 2},
	{regexp.MustCompile(`(?i)\bphase\s*(?:i|1)\s*/\s*(?:ii|2)\b`), 3},
	{regexp.MustCompile(`(?i)\bphase\s*(?:ii|2)\b`), 4},
	{regexp.MustCompile(`(?i)\bphase\s*(?:ii|2)\s*/\s*(?:iii|3)\b`), 5},
	{regexp.MustCompile(`(?i)\bphase\s*(?:iii|3)\b`), 6},
	{regexp.MustCompile(`(?i)\bphase\s*(?:iv|4)\b`), 7},
}

// phaseRank orders phase labels by specificity; unrecognised labels rank 0.
func phaseRank(s string) int {
	best := 0
	for _, p := range phasePatterns {
		if p.rank > best && p.re.MatchString(s) {
			best = p.rank
		}
	}
	return best
}

func mostSpecificPhase(partials []map[string]any) (string, bool) {
	best, bestRank := "", 0
	for _, p := range partials {
		s, ok := p["trial_phase_signals"].(string)
		if !ok {
			continue
		}
		if r := phaseRank(s); r > bestRank {
			best, bestRank = s, r
		}
	}
	return best, bestRank > 0
}

var confidenceLevels = map[string]int{"low": 0, "medium": 1, "high": 2}

func consensusConfidence(partials []map[string]any) (string, bool) {
	counts := map[string]int{}
	for _, p := range partials {
		s, ok := p["confidence"].(string)
		if !ok {
			continue
		}
		s = strings.ToLower(strings.TrimSpace(s))
		if _, known := confidenceLevels[s]; known {
			counts[s]++
		}
	}
	best, bestCount := "", 0
	for level, n := range counts {
		if n > bestCount || (n == bestCount && confidenceLevels[level] < confidenceLevels[best]) {
			best, bestCount = level, n
		}
	}
	return best, bestCount > 0
}
