package grounding

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dgallion1/groundtruth/internal/llm"
)

// Default thresholds.
const (
	DefaultQuoteSimilarity = 0.60
	DefaultStatMatch       = 0.50
)

// Config tunes acceptance thresholds.
type Config struct {
	QuoteSimilarity float64
	StatMatch       float64
}

// Options for a single validation pass.
type Options struct {
	// SkipLLM bypasses the judge and accepts every claim.
	SkipLLM bool
}

// Validator grounds structured results against source text.
type Validator struct {
	llm llm.Completer
	cfg Config
	log *slog.Logger
}

// NewValidator creates a Validator. Zero thresholds fall back to defaults.
func NewValidator(c llm.Completer, cfg Config, log *slog.Logger) *Validator {
	if cfg.QuoteSimilarity <= 0 {
		cfg.QuoteSimilarity = DefaultQuoteSimilarity
	}
	if cfg.StatMatch <= 0 {
		cfg.StatMatch = DefaultStatMatch
	}
	if log == nil {
		log = slog.Default()
	}
	return &Validator{llm: c, cfg: cfg, log: log}
}

// Validate builds a fresh report for result. It does not modify result.
func (v *Validator) Validate(ctx context.Context, result map[string]any, source string, opts Options) *Report {
	idx := newSourceIndex(source)
	r := &Report{}

	claims, stats := v.collect(result, idx)
	r.Details.StatisticalEvidence = stats

	if quotes, ok := result[FieldSupportingQuotes].([]any); ok {
		for i, q := range quotes {
			qv := verifyQuote(textOf(q), idx, v.cfg.QuoteSimilarity)
			qv.Index = i
			r.Details.SupportingQuotes = append(r.Details.SupportingQuotes, qv)
		}
	}

	var verdicts []verdict
	if opts.SkipLLM {
		verdicts = make([]verdict, len(claims))
		for i := range verdicts {
			verdicts[i] = verdict{Grounded: boolPtr(true), Severity: SeverityOK, Reason: "Accepted after self-correction"}
		}
	} else {
		verdicts = v.judge(ctx, claims, source)
	}

	for i, c := range claims {
		cv := ClaimVerdict{
			Claim:    truncateRunes(c.Text, 120),
			Field:    c.Field,
			Index:    c.Index,
			Grounded: verdicts[i].Grounded,
			Severity: verdicts[i].Severity,
			Reason:   verdicts[i].Reason,
		}
		switch c.Field {
		case FieldKeyFindings:
			r.Details.KeyFindings = append(r.Details.KeyFindings, cv)
		case FieldAdverseEvents, FieldSeriousAdverseEvents:
			r.Details.SafetyClaims = append(r.Details.SafetyClaims, cv)
		case FieldClinicalImplications:
			r.Details.ClinicalImplications = append(r.Details.ClinicalImplications, cv)
		}
	}

	r.Recompute()
	v.log.Info("grounding validated",
		"skip_llm", opts.SkipLLM,
		"score", r.OverallScore,
		"status", r.OverallStatus,
		"errors", r.Errors,
		"warnings", r.Warnings,
	)
	return r
}

// collect gathers claims for the judge and checks statistical evidence on
// key findings.
func (v *Validator) collect(result map[string]any, idx *sourceIndex) ([]claim, []StatVerdict) {
	var claims []claim
	var stats []StatVerdict

	if findings, ok := result[FieldKeyFindings].([]any); ok {
		for i, f := range findings {
			switch t := f.(type) {
			case map[string]any:
				text, _ := t["finding"].(string)
				evidence, _ := t["statistical_evidence"].(string)
				sv := StatVerdict{Detail: "no_evidence_provided"}
				if evidence != "" {
					sv = verifyStats(evidence, idx, v.cfg.StatMatch)
				}
				sv.Finding = truncateRunes(text, 120)
				sv.Index = i
				sv.Evidence = evidence
				stats = append(stats, sv)
				claims = append(claims, claim{Text: text, Evidence: evidence, Field: FieldKeyFindings, Index: i})
			case string:
				claims = append(claims, claim{Text: t, Field: FieldKeyFindings, Index: i})
			}
		}
	}

	if safety, ok := result[FieldSafetyProfile].(map[string]any); ok {
		for _, field := range []struct{ key, prefix string }{
			{FieldAdverseEvents, "Adverse event: "},
			{FieldSeriousAdverseEvents, "Serious adverse event: "},
		} {
			events, _ := safety[field.key].([]any)
			for i, e := range events {
				claims = append(claims, claim{Text: field.prefix + textOf(e), Field: field.key, Index: i})
			}
		}
	}

	switch t := result[FieldClinicalImplications].(type) {
	case string:
		if t != "" {
			claims = append(claims, claim{Text: t, Field: FieldClinicalImplications})
		}
	case []any:
		for i, imp := range t {
			claims = append(claims, claim{Text: textOf(imp), Field: FieldClinicalImplications, Index: i})
		}
	}

	return claims, stats
}

// textOf renders a result value as claim text.
func textOf(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case nil:
		return ""
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	default:
		return fmt.Sprint(t)
	}
}
