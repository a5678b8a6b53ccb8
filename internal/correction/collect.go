package correction

import (
	"fmt"
	"strings"

	"github.com/dgallion1/groundtruth/internal/grounding"
)

// Claim types named in correction prompts and records.
const (
	TypeKeyFinding      = "key_finding"
	TypeSafetyClaim     = "safety_claim"
	TypeSupportingQuote = "supporting_quote"
	TypeStatEvidence    = "stat_evidence"
)

// flagged is a claim that failed grounding, with its position in the result.
type flagged struct {
	Type   string
	Field  string
	Index  int
	Claim  string
	Reason string
}

func failed(grounded *bool, sev grounding.Severity) bool {
	return (grounded != nil && !*grounded) || sev == grounding.SeverityError
}

// collectFlagged lists every ungrounded claim in the report.
func collectFlagged(r *grounding.Report) []flagged {
	var out []flagged

	for _, v := range r.Details.KeyFindings {
		if failed(v.Grounded, v.Severity) {
			out = append(out, flagged{TypeKeyFinding, v.Field, v.Index, v.Claim, v.Reason})
		}
	}
	for _, v := range r.Details.SafetyClaims {
		if failed(v.Grounded, v.Severity) {
			out = append(out, flagged{TypeSafetyClaim, v.Field, v.Index, v.Claim, v.Reason})
		}
	}
	for _, q := range r.Details.SupportingQuotes {
		if q.Grounded != nil && !*q.Grounded {
			out = append(out, flagged{TypeSupportingQuote, grounding.FieldSupportingQuotes, q.Index, q.Quote, fmt.Sprintf("score=%.2f", q.Score)})
		}
	}
	for _, s := range r.Details.StatisticalEvidence {
		if s.Grounded != nil && !*s.Grounded {
			out = append(out, flagged{
				TypeStatEvidence, grounding.FieldKeyFindings, s.Index, s.Finding,
				fmt.Sprintf("missing: [%s]", strings.Join(s.Missing, ", ")),
			})
		}
	}
	return out
}
