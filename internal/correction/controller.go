// Package correction rewrites or removes ungrounded claims and re-checks
// the result.
package correction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dgallion1/groundtruth/internal/grounding"
	"github.com/dgallion1/groundtruth/internal/llm"
)

// DefaultMaxRounds is the number of correction rounds attempted per run.
const DefaultMaxRounds = 1

// Validator produces grounding reports.
type Validator interface {
	Validate(ctx context.Context, result map[string]any, source string, opts grounding.Options) *grounding.Report
}

// Controller runs validate, correct, re-validate cycles.
type Controller struct {
	validator Validator
	llm       llm.Completer
	maxRounds int
	log       *slog.Logger
}

// NewController creates a Controller. maxRounds below zero means the default.
func NewController(v Validator, c llm.Completer, maxRounds int, log *slog.Logger) *Controller {
	if maxRounds < 0 {
		maxRounds = DefaultMaxRounds
	}
	if log == nil {
		log = slog.Default()
	}
	return &Controller{validator: v, llm: c, maxRounds: maxRounds, log: log}
}

// Run validates result and, while errors remain and rounds are left, asks
// the model to correct the flagged claims and re-validates without the
// judge. It returns the final result and report. result is never modified;
// when nothing is corrected the returned map is result itself.
func (c *Controller) Run(ctx context.Context, result map[string]any, source string) (map[string]any, *grounding.Report) {
	report := c.validator.Validate(ctx, result, source, grounding.Options{})
	current := result

	var applied []grounding.Correction
	rounds := 0
	for report.Errors > 0 && rounds < c.maxRounds {
		flags := collectFlagged(report)
		if len(flags) == 0 {
			break
		}
		rounds++
		c.log.Info("correcting claims", "round", rounds, "flagged", len(flags))

		edits := c.requestEdits(ctx, flags, current, source)
		next, changes := Apply(current, edits)
		if skipped := len(edits) - len(changes); skipped > 0 {
			c.log.Warn("corrections skipped", "round", rounds, "skipped", skipped)
		}
		if len(changes) == 0 {
			c.log.Info("no corrections applied", "round", rounds)
			break
		}
		current = next
		applied = append(applied, changes...)
		report = c.validator.Validate(ctx, current, source, grounding.Options{SkipLLM: true})
	}

	report.CorrectionsApplied = applied
	if len(applied) > 0 {
		report.CorrectionRounds = rounds
	}
	return current, report
}

// requestEdits asks the model how to fix each flagged claim. Failures are
// logged and yield no edits.
func (c *Controller) requestEdits(ctx context.Context, flags []flagged, current map[string]any, source string) []Edit {
	req, err := buildCorrectionRequest(flags, current, source)
	if err != nil {
		c.log.Warn("build correction prompt", "error", err)
		return nil
	}
	raw, err := c.llm.Complete(llm.WithOperation(ctx, "correct"), req)
	if err != nil {
		c.log.Warn("correction call failed", "error", err)
		return nil
	}
	parsed, err := llm.ParseObject(raw)
	if err != nil {
		c.log.Warn("correction reply not parseable", "error", err)
		return nil
	}
	items, _ := parsed["corrections"].([]any)
	return editsFrom(items, flags)
}

// editsFrom maps correction entries onto flagged claims. Entries are matched
// by error_index, or by type and original_index when that is missing. The
// first entry for each flagged claim wins.
func editsFrom(items []any, flags []flagged) []Edit {
	used := make([]bool, len(flags))
	var edits []Edit
	for _, item := range items {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		i := flagIndex(m, flags)
		if i < 0 || used[i] {
			continue
		}
		action := Action(strings.ToLower(strings.TrimSpace(stringField(m, "action"))))
		if action != ActionCorrect && action != ActionRemove {
			continue
		}
		value := m["corrected_value"]
		if action == ActionCorrect && value == nil {
			continue
		}
		used[i] = true
		f := flags[i]
		edits = append(edits, Edit{Type: f.Type, Field: f.Field, Index: f.Index, Action: action, Value: value, Claim: f.Claim})
	}
	return edits
}

func flagIndex(m map[string]any, flags []flagged) int {
	if n, ok := m["error_index"].(float64); ok {
		if i := int(n) - 1; i >= 0 && i < len(flags) {
			return i
		}
	}
	orig, ok := m["original_index"].(float64)
	if !ok {
		return -1
	}
	typ := stringField(m, "type")
	for i, f := range flags {
		if f.Type == typ && f.Index == int(orig) {
			return i
		}
	}
	return -1
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

const correctionSystemPrompt = "You are a regulatory compliance editor. Return valid JSON only."

const correctionTemplate = `You are a regulatory compliance editor for pharmaceutical research outputs.

The following LLM output was validated against the source paper, and %d claims were flagged as UNGROUNDED (not supported by the source text).

Your task: For each ungrounded claim, decide:
1. **CORRECT** it: Rewrite using ONLY information from the source text. Keep the same field structure.
2. **REMOVE** it: If the claim simply cannot be supported by the text, mark for removal.

UNGROUNDED CLAIMS:
%s

CURRENT OUTPUT (JSON):
%s

SOURCE PAPER TEXT:
%s

RULES:
- NEVER invent information not in the source text.
- For key_findings: rewrite the "finding" and "statistical_evidence" fields to match source text exactly.
- For safety claims (adverse_events, serious_adverse_events): remove entries that aren't mentioned in the source.
- For supporting_quotes: replace with actual verbatim text from the source paper.
- If a finding is partially correct, keep the correct part and fix the wrong part.
- For statistics, use the EXACT numbers from the source text.

Return a JSON object with this structure:
{
  "corrections": [
    {
      "error_index": 1,
      "action": "correct" or "remove",
      "type": "<key_finding|safety_claim|supporting_quote|stat_evidence>",
      "original_index": <index in the original array>,
      "corrected_value": <corrected text/object, or null if removing>
    },
    ...
  ]
}

Return JSON only.`

const maxOutputChars = 8000

func buildCorrectionRequest(flags []flagged, current map[string]any, source string) (llm.Request, error) {
	var sb strings.Builder
	for i, f := range flags {
		fmt.Fprintf(&sb, "\n[Error %d] Type: %s\n", i+1, f.Type)
		fmt.Fprintf(&sb, "  Claim: %s\n", f.Claim)
		fmt.Fprintf(&sb, "  Reason it failed: %s\n", f.Reason)
	}

	body, err := json.MarshalIndent(current, "", "  ")
	if err != nil {
		return llm.Request{}, fmt.Errorf("marshal output: %w", err)
	}
	out := []rune(string(body))
	if len(out) > maxOutputChars {
		out = out[:maxOutputChars]
	}

	prompt := fmt.Sprintf(correctionTemplate, len(flags), sb.String(), string(out), grounding.Truncate(source, "[...middle omitted...]"))
	return llm.Request{
		Messages:    []llm.Message{llm.System(correctionSystemPrompt), llm.User(prompt)},
		Temperature: 0,
		MaxTokens:   2048,
		JSONMode:    true,
	}, nil
}
