package grounding

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/groundtruth/internal/llm"
)

type scriptedLLM struct {
	calls int
	last  llm.Request
	reply string
	err   error
}

func (s *scriptedLLM) Complete(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.last = req
	return s.reply, s.err
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ci 0.58-0.71 and -3", Normalize("CI  0.58–0.71\n and −3"))
	assert.Equal(t, "overall survival", dehyphenate("overall sur- vival"))
}

func TestVerifyStats_FormatAgnostic(t *testing.T) {
	idx := newSourceIndex("The hazard ratio of 0.64 (95% CI: 0.58 to 0.71), p<0.001 favoured treatment.")
	v := verifyStats("HR=0.64, 95% CI 0.58-0.71, p<0.001", idx, DefaultStatMatch)

	require.NotNil(t, v.Grounded)
	assert.True(t, *v.Grounded)
	assert.Equal(t, 1.0, v.Score)
	assert.Contains(t, v.Found, "HR=0.64")
	assert.Contains(t, v.Found, "CI 0.58-0.71")
	assert.Contains(t, v.Found, "p<0.001")
	assert.Empty(t, v.Missing)
}

func TestVerifyStats_PValueDirection(t *testing.T) {
	idx := newSourceIndex("Response differed (p = 0.0004). Toxicity did not (P > 0.2).")
	tests := []struct {
		evidence string
		want     bool
	}{
		{"p<0.001", true},
		{"p<0.0001", false},
		{"p=0.0004", true},
		{"p>0.1", true},
		{"p>0.5", false},
	}
	for _, tt := range tests {
		t.Run(tt.evidence, func(t *testing.T) {
			v := verifyStats(tt.evidence, idx, DefaultStatMatch)
			require.NotNil(t, v.Grounded)
			assert.Equal(t, tt.want, *v.Grounded)
		})
	}
}

func TestVerifyStats_Values(t *testing.T) {
	idx := newSourceIndex("We enrolled n = 1,204 patients; 62.5% responded. Median follow-up 14.6 months at 60 Gy and 75 mg/m².")
	v := verifyStats("N=1204, 62.5%, 14.6 months, 60 Gy, 75 mg/m²", idx, DefaultStatMatch)
	require.NotNil(t, v.Grounded)
	assert.True(t, *v.Grounded)
	assert.ElementsMatch(t, []string{"N=1204", "62.5%", "14.6 months", "60 Gy", "75 mg/m²"}, v.Found)

	v = verifyStats("OR=2.4, 12%, N=50", idx, DefaultStatMatch)
	require.NotNil(t, v.Grounded)
	assert.False(t, *v.Grounded)
	assert.Equal(t, 0.0, v.Score)
}

func TestVerifyStats_LeadingZeroAndDedup(t *testing.T) {
	idx := newSourceIndex("odds ratio .64")
	v := verifyStats("OR=0.64 and OR = 0.64", idx, DefaultStatMatch)
	assert.Equal(t, []string{"OR=0.64"}, v.Found)
}

func TestVerifyStats_LowercaseMetrics(t *testing.T) {
	idx := newSourceIndex("The hazard ratio was 0.64, p<0.001; odds ratio 1.8 and relative risk 0.9.")

	v := verifyStats("hr=0.64", idx, DefaultStatMatch)
	require.NotNil(t, v.Grounded)
	assert.True(t, *v.Grounded)
	assert.Equal(t, []string{"HR=0.64"}, v.Found)

	v = verifyStats("hr=0.99, p<0.001", idx, DefaultStatMatch)
	assert.Equal(t, []string{"HR=0.99"}, v.Missing)
	assert.Equal(t, []string{"p<0.001"}, v.Found)
	assert.Equal(t, 0.5, v.Score)

	v = verifyStats("Or: 1.8, rr = 0.9", idx, DefaultStatMatch)
	assert.Equal(t, []string{"OR=1.8", "RR=0.9"}, v.Found)
	assert.Empty(t, v.Missing)

	v = verifyStats("survival or 12 of the cohort", idx, DefaultStatMatch)
	assert.Equal(t, "no_stats_to_verify", v.Detail)
}

func TestVerifyStats_NothingToVerify(t *testing.T) {
	v := verifyStats("improved markedly", newSourceIndex("text"), DefaultStatMatch)
	assert.Nil(t, v.Grounded)
	assert.Equal(t, "no_stats_to_verify", v.Detail)
}

func TestFuzzyContains_WindowSpansLineBreakHyphen(t *testing.T) {
	idx := newSourceIndex("Overall sur- vival was improved markedly in treated patients.")
	quote := Normalize("Overall survival was improvd markedy in treatd patients")

	ok, ratio, method := fuzzyContains(idx, quote, 0.96)
	assert.True(t, ok)
	assert.Equal(t, MethodSlidingWindow, method)
	assert.GreaterOrEqual(t, ratio, 0.96)
}

func TestVerifyQuote(t *testing.T) {
	source := "In the trial, a significant improvement in overall sur- vival was observed in the treatment arm compared with placebo."
	idx := newSourceIndex(source)

	t.Run("exact", func(t *testing.T) {
		v := verifyQuote("Improvement in overall  SUR- VIVAL was observed", idx, DefaultQuoteSimilarity)
		require.NotNil(t, v.Grounded)
		assert.True(t, *v.Grounded)
		assert.Equal(t, MethodExact, v.Method)
		assert.Equal(t, 1.0, v.Score)
	})

	t.Run("hyphenation artifact", func(t *testing.T) {
		v := verifyQuote("significant improvement in overall survival", idx, DefaultQuoteSimilarity)
		require.NotNil(t, v.Grounded)
		assert.True(t, *v.Grounded)
		assert.Equal(t, MethodContentWords, v.Method)
	})

	t.Run("fabricated", func(t *testing.T) {
		v := verifyQuote("quixotic jukebox zephyr wafts over fjords", idx, DefaultQuoteSimilarity)
		require.NotNil(t, v.Grounded)
		assert.False(t, *v.Grounded)
		assert.Less(t, v.Score, 0.6)
		assert.Empty(t, v.Method)
	})

	t.Run("too short", func(t *testing.T) {
		v := verifyQuote("  survival ", idx, DefaultQuoteSimilarity)
		assert.Nil(t, v.Grounded)
		assert.Equal(t, "too_short", v.Detail)
	})
}

func TestVerifyQuote_SlidingWindow(t *testing.T) {
	idx := newSourceIndex("Patients receiving the combination regimen experienced fewer relapses during follow-up.")
	v := verifyQuote("patients receiving combined regimens experienced fewer relapse", idx, DefaultQuoteSimilarity)
	require.NotNil(t, v.Grounded)
	assert.True(t, *v.Grounded)
	assert.GreaterOrEqual(t, v.Score, 0.6)
}

func TestTruncate(t *testing.T) {
	short := strings.Repeat("a", 20000)
	assert.Equal(t, short, Truncate(short, "[cut]"))

	long := strings.Repeat("h", 15000) + strings.Repeat("m", 1000) + strings.Repeat("t", 5000)
	got := Truncate(long, "[cut]")
	assert.Equal(t, strings.Repeat("h", 15000)+"\n\n[cut]\n\n"+strings.Repeat("t", 5000), got)
}

func sampleResult() map[string]any {
	return map[string]any{
		"key_findings": []any{
			map[string]any{"finding": "Drug X improved survival", "statistical_evidence": "HR=0.64, p<0.001"},
			"Drug X was well tolerated",
		},
		"safety_profile": map[string]any{
			"adverse_events":         []any{"nausea"},
			"serious_adverse_events": []any{"neutropenia"},
		},
		"clinical_implications": "Consider Drug X as first line.",
		"supporting_quotes":     []any{"hazard ratio of 0.64 for death", "short"},
	}
}

const sampleSource = "Drug X reduced the risk of death (hazard ratio of 0.64 for death, p<0.001). Nausea was common."

func TestValidate_JudgeVerdictsByIndex(t *testing.T) {
	judge := &scriptedLLM{reply: `{"results": [
		{"claim_index": 2, "grounded": true, "severity": "ok", "reason": "stated"},
		{"claim_index": 1, "grounded": true, "severity": "ok", "reason": "stated"},
		{"claim_index": 3, "grounded": true, "severity": "ok", "reason": "nausea"},
		{"claim_index": 4, "grounded": false, "severity": "error", "reason": "not mentioned"}
	]}`}
	v := NewValidator(judge, Config{}, nil)
	r := v.Validate(context.Background(), sampleResult(), sampleSource, Options{})

	assert.Equal(t, 1, judge.calls)
	user := judge.last.Messages[1].Content
	assert.Contains(t, user, "[Claim 1]: Drug X improved survival\n  Evidence cited: HR=0.64, p<0.001")
	assert.Contains(t, user, "[Claim 3]: Adverse event: nausea")
	assert.Contains(t, user, "[Claim 4]: Serious adverse event: neutropenia")
	assert.Equal(t, float32(0), judge.last.Temperature)

	require.Len(t, r.Details.KeyFindings, 2)
	require.Len(t, r.Details.SafetyClaims, 2)
	require.Len(t, r.Details.ClinicalImplications, 1)
	assert.Equal(t, FieldSeriousAdverseEvents, r.Details.SafetyClaims[1].Field)
	assert.Equal(t, 0, r.Details.SafetyClaims[1].Index)
	assert.Equal(t, SeverityError, r.Details.SafetyClaims[1].Severity)
	assert.Equal(t, "no verdict returned", r.Details.ClinicalImplications[0].Reason)
	assert.Nil(t, r.Details.ClinicalImplications[0].Grounded)

	// Claims: 3 ok, 1 error, 1 warning. Quotes: 1 grounded, 1 too short. Stats: 1 grounded.
	assert.Equal(t, 8, r.TotalClaims)
	assert.Equal(t, 5, r.GroundedClaims)
	assert.Equal(t, 2, r.Warnings)
	assert.Equal(t, 1, r.Errors)
	assert.Equal(t, 0.63, r.OverallScore)
	assert.Equal(t, StatusPartiallyGrounded, r.OverallStatus)
}

func TestValidate_JudgeFailureDegradesToWarnings(t *testing.T) {
	judge := &scriptedLLM{err: errors.New("503")}
	r := NewValidator(judge, Config{}, nil).Validate(context.Background(), sampleResult(), sampleSource, Options{})
	for _, c := range append(r.Details.KeyFindings, r.Details.SafetyClaims...) {
		assert.Equal(t, SeverityWarning, c.Severity)
		assert.Nil(t, c.Grounded)
		assert.Contains(t, c.Reason, "Verification failed")
	}
}

func TestValidate_UnparsableJudgeReply(t *testing.T) {
	judge := &scriptedLLM{reply: "I refuse"}
	r := NewValidator(judge, Config{}, nil).Validate(context.Background(), sampleResult(), sampleSource, Options{})
	assert.Equal(t, 0, r.Errors-countQuoteAndStatErrors(r))
	assert.Equal(t, SeverityWarning, r.Details.KeyFindings[0].Severity)
}

func countQuoteAndStatErrors(r *Report) int {
	n := 0
	for _, q := range r.Details.SupportingQuotes {
		if isFalse(q.Grounded) {
			n++
		}
	}
	for _, s := range r.Details.StatisticalEvidence {
		if isFalse(s.Grounded) {
			n++
		}
	}
	return n
}

func TestValidate_PositionalFallback(t *testing.T) {
	judge := &scriptedLLM{reply: `[{"grounded": false}, {"grounded": true}]`}
	r := NewValidator(judge, Config{}, nil).Validate(context.Background(), map[string]any{
		"key_findings": []any{"a", "b"},
	}, "source", Options{})
	require.Len(t, r.Details.KeyFindings, 2)
	assert.Equal(t, SeverityError, r.Details.KeyFindings[0].Severity)
	assert.Equal(t, SeverityOK, r.Details.KeyFindings[1].Severity)
}

func TestValidate_SkipLLM(t *testing.T) {
	judge := &scriptedLLM{}
	r := NewValidator(judge, Config{}, nil).Validate(context.Background(), sampleResult(), sampleSource, Options{SkipLLM: true})
	assert.Zero(t, judge.calls)
	for _, c := range r.Details.KeyFindings {
		assert.Equal(t, SeverityOK, c.Severity)
		assert.Equal(t, "Accepted after self-correction", c.Reason)
	}
}

func TestValidate_NoEvidenceFinding(t *testing.T) {
	r := NewValidator(&scriptedLLM{}, Config{}, nil).Validate(context.Background(), map[string]any{
		"key_findings": []any{map[string]any{"finding": "x"}},
	}, "source", Options{SkipLLM: true})
	require.Len(t, r.Details.StatisticalEvidence, 1)
	assert.Equal(t, "no_evidence_provided", r.Details.StatisticalEvidence[0].Detail)
	assert.Nil(t, r.Details.StatisticalEvidence[0].Grounded)
	assert.Equal(t, 1, r.TotalClaims)
}

func TestRecompute_Statuses(t *testing.T) {
	yes, no := boolPtr(true), boolPtr(false)
	tests := []struct {
		name   string
		quotes []*bool
		want   Status
	}{
		{"all grounded", []*bool{yes, yes, yes}, StatusGrounded},
		{"one error low score", []*bool{yes, no}, StatusPartiallyGrounded},
		{"many errors", []*bool{yes, no, no, no}, StatusReviewNeeded},
		{"empty", nil, StatusPartiallyGrounded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &Report{}
			for _, g := range tt.quotes {
				r.Details.SupportingQuotes = append(r.Details.SupportingQuotes, QuoteVerdict{Grounded: g})
			}
			r.Recompute()
			assert.Equal(t, tt.want, r.OverallStatus)
		})
	}
}
