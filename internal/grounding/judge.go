package grounding

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/groundtruth/internal/llm"
)

const judgeSystemPrompt = "You are a regulatory compliance auditor. Return valid JSON only."

const judgeTemplate = `You are a REGULATORY COMPLIANCE AUDITOR for pharmaceutical research.

Your task: verify whether each claim below is GROUNDED in the source paper text.
For each claim, determine:
- "grounded": true if the claim is directly supported by the text, false if it appears fabricated or unsupported
- "severity": "ok" if grounded, "warning" if partially supported or ambiguous, "error" if clearly not in the text
- "reason": brief explanation of your verdict (1 sentence)

Be STRICT. In regulatory contexts, even small inaccuracies matter.
A claim is grounded ONLY if you can point to specific text that supports it.
If a claim makes a stronger assertion than the paper supports, mark as "warning".
If a statistic is cited that doesn't appear in the text, mark as "error".

CLAIMS TO VERIFY:
%s

SOURCE PAPER TEXT:
%s

Return JSON array:
[
  {"claim_index": 1, "grounded": true/false, "severity": "ok"|"warning"|"error", "reason": "..."},
  ...
]

Return JSON only.`

const judgeTruncationMarker = "[...middle sections omitted for length...]"

// claim is a claim-like field queued for the judge.
type claim struct {
	Text     string
	Evidence string
	Field    string
	Index    int
}

type verdict struct {
	Grounded *bool
	Severity Severity
	Reason   string
}

func buildJudgeRequest(claims []claim, source string) llm.Request {
	var sb strings.Builder
	for i, c := range claims {
		fmt.Fprintf(&sb, "\n[Claim %d]: %s\n", i+1, c.Text)
		if c.Evidence != "" {
			fmt.Fprintf(&sb, "  Evidence cited: %s\n", c.Evidence)
		}
	}
	prompt := fmt.Sprintf(judgeTemplate, sb.String(), Truncate(source, judgeTruncationMarker))
	return llm.Request{
		Messages:    []llm.Message{llm.System(judgeSystemPrompt), llm.User(prompt)},
		Temperature: 0,
		MaxTokens:   2048,
		JSONMode:    true,
	}
}

// judge asks the model for one verdict per claim. It never fails: call or
// parse errors turn every claim into an unchecked warning.
func (v *Validator) judge(ctx context.Context, claims []claim, source string) []verdict {
	if len(claims) == 0 {
		return nil
	}

	raw, err := v.llm.Complete(llm.WithOperation(ctx, "judge"), buildJudgeRequest(claims, source))
	if err == nil {
		var parsed any
		parsed, err = llm.ParseValue(raw)
		if err == nil {
			return mapVerdicts(verdictList(parsed), len(claims))
		}
	}

	v.log.Warn("claim verification failed", "claims", len(claims), "error", err)
	out := make([]verdict, len(claims))
	for i := range out {
		out[i] = verdict{Severity: SeverityWarning, Reason: fmt.Sprintf("Verification failed: %v", err)}
	}
	return out
}

// verdictList finds the verdict array in the judge reply, which may be a
// bare array or an object wrapping one.
func verdictList(parsed any) []any {
	switch t := parsed.(type) {
	case []any:
		return t
	case map[string]any:
		for _, key := range []string{"results", "claims", "verdicts"} {
			if list, ok := t[key].([]any); ok {
				return list
			}
		}
		for _, val := range t {
			if list, ok := val.([]any); ok {
				return list
			}
		}
	}
	return nil
}

// mapVerdicts aligns verdicts with claims by claim_index, falling back to
// list position for entries without a usable index.
func mapVerdicts(items []any, n int) []verdict {
	out := make([]verdict, n)
	set := make([]bool, n)

	var unindexed []int
	for pos, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if f, ok := m["claim_index"].(float64); ok {
			i := int(f) - 1
			if i >= 0 && i < n && !set[i] {
				out[i], set[i] = toVerdict(m), true
				continue
			}
		}
		unindexed = append(unindexed, pos)
	}
	for _, pos := range unindexed {
		if pos < n && !set[pos] {
			out[pos], set[pos] = toVerdict(items[pos].(map[string]any)), true
		}
	}

	for i := range out {
		if !set[i] {
			out[i] = verdict{Severity: SeverityWarning, Reason: "no verdict returned"}
		}
	}
	return out
}

func toVerdict(m map[string]any) verdict {
	var v verdict
	if b, ok := m["grounded"].(bool); ok {
		v.Grounded = boolPtr(b)
	}
	v.Reason, _ = m["reason"].(string)

	sev, _ := m["severity"].(string)
	switch Severity(strings.ToLower(strings.TrimSpace(sev))) {
	case SeverityOK:
		v.Severity = SeverityOK
	case SeverityWarning:
		v.Severity = SeverityWarning
	case SeverityError:
		v.Severity = SeverityError
	default:
		switch {
		case isTrue(v.Grounded):
			v.Severity = SeverityOK
		case isFalse(v.Grounded):
			v.Severity = SeverityError
		default:
			v.Severity = SeverityWarning
		}
	}
	return v
}
