package grounding

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

const num = `(\d+(?:\.\d+)?|\.\d+)`

var (
	metricAbbrev = regexp.MustCompile(`\b(HR|RR|OR)\s*(?:=|:|is|of|was)?\s*` + num + `(\s*%)?`)
	// Lower or mixed case needs an explicit "=" or ":" so the word "or"
	// followed by a number is not read as an odds ratio.
	metricAbbrevAnyCase = regexp.MustCompile(`(?i)\b(hr|rr|or)\s*(?:=|:)\s*` + num + `(\s*%)?`)
	metricFull   = regexp.MustCompile(`(?i)\b(hazard ratio|risk ratio|relative risk|odds ratio)\s*(?:\((?:HR|RR|OR)\))?\s*(?:=|:|is|of|was)?\s*` + num)
	pValue       = regexp.MustCompile(`(?i)\bp\s*(<=|>=|≤|≥|<|>|=)\s*` + num)
	ciRange      = regexp.MustCompile(`(?i)\bCI\b[:,\s]*` + num + `\s*(?:-|,|to)\s*` + num)
	bracketRange = regexp.MustCompile(`[\[(]` + num + `\s*[,;\s]\s*` + num + `[\])]`)
	percent      = regexp.MustCompile(num + `\s*%`)
	sampleSize   = regexp.MustCompile(`\b[Nn]\s*=\s*(\d{1,3}(?:,\d{3})+|\d+)`)
	duration     = regexp.MustCompile(`(?i)` + num + `\s*(days?|weeks?|months?|years?)\b`)
	dosage       = regexp.MustCompile(`(?i)` + num + `\s*(Gy|mg/m²|mg/m2|mg/kg|mg)`)

	numberToken = regexp.MustCompile(`\d+(?:,\d{3})*(?:\.\d+)?|\.\d+`)
)

var metricNames = map[string]string{
	"hazard ratio":  "HR",
	"risk ratio":    "RR",
	"relative risk": "RR",
	"odds ratio":    "OR",
}

var metricMentions = map[string]*regexp.Regexp{
	"HR": regexp.MustCompile(`\b(?:hr|hazard ratios?)\b`),
	"RR": regexp.MustCompile(`\b(?:rr|risk ratios?|relative risks?)\b`),
	"OR": regexp.MustCompile(`\b(?:or|odds ratios?)\b`),
}

type statKind int

const (
	kindMetric statKind = iota
	kindPValue
	kindRange
	kindNumber
)

// statValue is one typed value pulled from statistical text.
type statValue struct {
	kind  statKind
	label string
	name  string
	op    string
	nums  []float64
}

func parseNum(s string) float64 {
	f, _ := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	return f
}

// extractStats pulls typed statistics out of text.
func extractStats(text string) []statValue {
	text = flatten(text)
	var out []statValue

	for _, m := range metricAbbrev.FindAllStringSubmatch(text, -1) {
		if m[3] != "" {
			continue
		}
		out = append(out, statValue{kind: kindMetric, label: m[1] + "=" + m[2], name: m[1], nums: []float64{parseNum(m[2])}})
	}
	for _, m := range metricAbbrevAnyCase.FindAllStringSubmatch(text, -1) {
		if m[3] != "" || m[1] == strings.ToUpper(m[1]) {
			continue
		}
		name := strings.ToUpper(m[1])
		out = append(out, statValue{kind: kindMetric, label: name + "=" + m[2], name: name, nums: []float64{parseNum(m[2])}})
	}
	for _, m := range metricFull.FindAllStringSubmatch(text, -1) {
		name := metricNames[strings.ToLower(m[1])]
		out = append(out, statValue{kind: kindMetric, label: name + "=" + m[2], name: name, nums: []float64{parseNum(m[2])}})
	}
	for _, m := range pValue.FindAllStringSubmatch(text, -1) {
		op := canonicalOp(m[1])
		out = append(out, statValue{kind: kindPValue, label: "p" + op + m[2], op: op, nums: []float64{parseNum(m[2])}})
	}
	for _, m := range ciRange.FindAllStringSubmatch(text, -1) {
		out = append(out, statValue{kind: kindRange, label: fmt.Sprintf("CI %s-%s", m[1], m[2]), nums: []float64{parseNum(m[1]), parseNum(m[2])}})
	}
	for _, m := range bracketRange.FindAllStringSubmatch(text, -1) {
		out = append(out, statValue{kind: kindRange, label: fmt.Sprintf("[%s, %s]", m[1], m[2]), nums: []float64{parseNum(m[1]), parseNum(m[2])}})
	}
	for _, m := range percent.FindAllStringSubmatch(text, -1) {
		out = append(out, statValue{kind: kindNumber, label: m[1] + "%", nums: []float64{parseNum(m[1])}})
	}
	for _, m := range sampleSize.FindAllStringSubmatch(text, -1) {
		n := strings.ReplaceAll(m[1], ",", "")
		out = append(out, statValue{kind: kindNumber, label: "N=" + n, nums: []float64{parseNum(n)}})
	}
	for _, m := range duration.FindAllStringSubmatch(text, -1) {
		out = append(out, statValue{kind: kindNumber, label: m[1] + " " + strings.ToLower(m[2]), nums: []float64{parseNum(m[1])}})
	}
	for _, m := range dosage.FindAllStringSubmatch(text, -1) {
		out = append(out, statValue{kind: kindNumber, label: m[1] + " " + m[2], nums: []float64{parseNum(m[1])}})
	}
	return out
}

func canonicalOp(op string) string {
	switch op {
	case "≤":
		return "<="
	case "≥":
		return ">="
	}
	return op
}

// sourceIndex is the source text prepared for repeated lookups.
type sourceIndex struct {
	norm    string
	dehyph  string
	numbers map[float64]bool
	metrics map[string]map[float64]bool
	pValues []float64
}

func newSourceIndex(source string) *sourceIndex {
	norm := Normalize(source)
	idx := &sourceIndex{
		norm:    norm,
		dehyph:  dehyphenate(norm),
		numbers: map[float64]bool{},
		metrics: map[string]map[float64]bool{},
	}
	for _, tok := range numberToken.FindAllString(norm, -1) {
		idx.numbers[parseNum(tok)] = true
	}
	for _, v := range extractStats(source) {
		switch v.kind {
		case kindMetric:
			if idx.metrics[v.name] == nil {
				idx.metrics[v.name] = map[float64]bool{}
			}
			idx.metrics[v.name][v.nums[0]] = true
		case kindPValue:
			idx.pValues = append(idx.pValues, v.nums[0])
		}
	}
	return idx
}

func (idx *sourceIndex) found(v statValue) bool {
	switch v.kind {
	case kindMetric:
		val := v.nums[0]
		if idx.metrics[v.name][val] {
			return true
		}
		return idx.numbers[val] && metricMentions[v.name].MatchString(idx.norm)
	case kindPValue:
		claim := v.nums[0]
		for _, sp := range idx.pValues {
			switch v.op {
			case "<", "<=":
				if sp <= claim {
					return true
				}
			case ">", ">=":
				if sp >= claim {
					return true
				}
			case "=":
				if math.Abs(sp-claim) < 1e-9 {
					return true
				}
			}
		}
		return idx.numbers[claim]
	default:
		for _, n := range v.nums {
			if !idx.numbers[n] {
				return false
			}
		}
		return true
	}
}

// verifyStats scores the statistics quoted in evidence against the source.
func verifyStats(evidence string, idx *sourceIndex, threshold float64) StatVerdict {
	values := extractStats(evidence)
	if len(values) == 0 {
		return StatVerdict{Detail: "no_stats_to_verify"}
	}

	var found, missing []string
	seen := map[string]bool{}
	for _, v := range values {
		if seen[v.label] {
			continue
		}
		seen[v.label] = true
		if idx.found(v) {
			found = append(found, v.label)
		} else {
			missing = append(missing, v.label)
		}
	}

	score := float64(len(found)) / float64(len(found)+len(missing))
	return StatVerdict{
		Grounded: boolPtr(score >= threshold),
		Score:    round2(score),
		Found:    found,
		Missing:  missing,
	}
}
