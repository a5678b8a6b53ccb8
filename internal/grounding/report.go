// Package grounding checks a structured extraction against the source text
// it was derived from and scores how much of it is supported.
package grounding

import "math"

// Severity of a claim verdict.
type Severity string

const (
	SeverityOK      Severity = "ok"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Status summarizes a report.
type Status string

const (
	StatusGrounded          Status = "grounded"
	StatusPartiallyGrounded Status = "partially_grounded"
	StatusReviewNeeded      Status = "review_needed"
)

// Result fields that hold claims, used as verdict targets.
const (
	FieldKeyFindings          = "key_findings"
	FieldAdverseEvents        = "adverse_events"
	FieldSeriousAdverseEvents = "serious_adverse_events"
	FieldClinicalImplications = "clinical_implications"
	FieldSupportingQuotes     = "supporting_quotes"
	FieldSafetyProfile        = "safety_profile"
)

// ClaimVerdict is the judge's assessment of one claim. Grounded is nil when
// the claim was not checked.
type ClaimVerdict struct {
	Claim    string   `json:"claim"`
	Field    string   `json:"field"`
	Index    int      `json:"index"`
	Grounded *bool    `json:"grounded"`
	Severity Severity `json:"severity"`
	Reason   string   `json:"reason"`
}

// QuoteVerdict records how a supporting quote matched the source.
type QuoteVerdict struct {
	Quote    string  `json:"quote"`
	Index    int     `json:"index"`
	Grounded *bool   `json:"grounded"`
	Score    float64 `json:"score"`
	Method   string  `json:"method,omitempty"`
	Detail   string  `json:"detail,omitempty"`
}

// StatVerdict records which statistics of a finding were found in the source.
type StatVerdict struct {
	Finding  string   `json:"finding"`
	Index    int      `json:"index"`
	Evidence string   `json:"statistical_evidence"`
	Grounded *bool    `json:"grounded"`
	Score    float64  `json:"score"`
	Found    []string `json:"found,omitempty"`
	Missing  []string `json:"missing,omitempty"`
	Detail   string   `json:"detail,omitempty"`
}

// Details holds per-category verdict lists.
type Details struct {
	KeyFindings          []ClaimVerdict `json:"key_findings"`
	SafetyClaims         []ClaimVerdict `json:"safety_claims"`
	ClinicalImplications []ClaimVerdict `json:"clinical_implications"`
	SupportingQuotes     []QuoteVerdict `json:"supporting_quotes"`
	StatisticalEvidence  []StatVerdict  `json:"statistical_evidence"`
}

// Correction describes one edit applied by self-correction.
type Correction struct {
	Type      string `json:"type"`
	Action    string `json:"action"`
	Original  any    `json:"original"`
	Corrected any    `json:"corrected"`
}

// Report is the outcome of a grounding pass. Totals, score and status are
// derived from Details by Recompute.
type Report struct {
	OverallScore   float64 `json:"overall_score"`
	OverallStatus  Status  `json:"overall_status"`
	TotalClaims    int     `json:"total_claims"`
	GroundedClaims int     `json:"grounded_claims"`
	Warnings       int     `json:"warnings"`
	Errors         int     `json:"errors"`
	Details        Details `json:"details"`

	CorrectionsApplied []Correction `json:"corrections_applied,omitempty"`
	CorrectionRounds   int          `json:"correction_rounds"`
}

// Recompute derives the totals, score and status from Details.
func (r *Report) Recompute() {
	var total, grounded, warnings, errs int

	claims := [][]ClaimVerdict{r.Details.KeyFindings, r.Details.SafetyClaims, r.Details.ClinicalImplications}
	for _, list := range claims {
		for _, v := range list {
			total++
			switch {
			case v.Severity == SeverityOK || isTrue(v.Grounded):
				grounded++
			case v.Severity == SeverityWarning:
				warnings++
			default:
				errs++
			}
		}
	}

	for _, q := range r.Details.SupportingQuotes {
		total++
		switch {
		case q.Grounded == nil:
			warnings++
		case *q.Grounded:
			grounded++
		default:
			errs++
		}
	}

	for _, s := range r.Details.StatisticalEvidence {
		if s.Grounded == nil {
			continue
		}
		total++
		if *s.Grounded {
			grounded++
		} else {
			errs++
		}
	}

	score := 0.0
	if total > 0 {
		score = float64(grounded) / float64(total)
	}

	r.TotalClaims = total
	r.GroundedClaims = grounded
	r.Warnings = warnings
	r.Errors = errs
	r.OverallScore = round2(score)
	switch {
	case score >= 0.85 && errs == 0:
		r.OverallStatus = StatusGrounded
	case score >= 0.6 || errs <= 1:
		r.OverallStatus = StatusPartiallyGrounded
	default:
		r.OverallStatus = StatusReviewNeeded
	}
}

func isTrue(b *bool) bool  { return b != nil && *b }
func isFalse(b *bool) bool { return b != nil && !*b }

func boolPtr(b bool) *bool { return &b }

func round2(f float64) float64 { return math.Round(f*100) / 100 }

// truncateRunes shortens s to n runes with a trailing ellipsis.
func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
