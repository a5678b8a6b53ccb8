package grounding

import (
	"strings"
	"unicode/utf8"

	"github.com/pmezard/go-difflib/difflib"
)

// Quote match strategies, reported in QuoteVerdict.Method.
const (
	MethodExact         = "exact"
	MethodContentWords  = "content_words"
	MethodSlidingWindow = "sliding_window"
)

const (
	minQuoteLen        = 10
	contentWordsAccept = 0.85
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true, "was": true,
	"were": true, "of": true, "in": true, "to": true, "and": true, "for": true,
	"with": true, "that": true, "this": true, "by": true,
}

// verifyQuote checks one supporting quote against the source.
func verifyQuote(quote string, idx *sourceIndex, threshold float64) QuoteVerdict {
	shown := truncateRunes(quote, 100)
	trimmed := strings.TrimSpace(quote)
	if utf8.RuneCountInString(trimmed) < minQuoteLen {
		return QuoteVerdict{Quote: shown, Detail: "too_short"}
	}

	ok, ratio, method := fuzzyContains(idx, Normalize(trimmed), threshold)
	v := QuoteVerdict{Quote: shown, Grounded: boolPtr(ok), Score: round2(ratio)}
	if ok {
		v.Method = method
	}
	return v
}

// fuzzyContains tries exact containment, content-word coverage and then a
// sliding window of sequence similarity. It returns the best ratio seen.
func fuzzyContains(idx *sourceIndex, quote string, threshold float64) (bool, float64, string) {
	if strings.Contains(idx.norm, quote) {
		return true, 1.0, MethodExact
	}

	best, bestMethod := 0.0, ""
	quoteWords := strings.Fields(quote)

	var content []string
	for _, w := range quoteWords {
		if !stopWords[w] && utf8.RuneCountInString(w) > 2 {
			content = append(content, w)
		}
	}
	if len(content) > 0 {
		hits := 0
		for _, w := range content {
			if strings.Contains(idx.norm, w) || strings.Contains(idx.dehyph, w) {
				hits++
			}
		}
		ratio := float64(hits) / float64(len(content))
		best, bestMethod = ratio, MethodContentWords
		if ratio >= contentWordsAccept {
			return true, ratio, MethodContentWords
		}
	}

	words := strings.Fields(idx.dehyph)
	m := difflib.NewMatcher(nil, splitChars(quote))
	for size := len(quoteWords) - 2; size <= len(quoteWords)+3; size++ {
		if size < 3 || size > len(words) {
			continue
		}
		for i := 0; i+size <= len(words); i += 2 {
			m.SetSeq1(splitChars(strings.Join(words[i:i+size], " ")))
			if q := m.QuickRatio(); q < threshold && q <= best {
				continue
			}
			ratio := m.Ratio()
			if ratio > best {
				best, bestMethod = ratio, MethodSlidingWindow
			}
			if ratio >= threshold {
				return true, ratio, MethodSlidingWindow
			}
		}
	}
	return best >= threshold, best, bestMethod
}

func splitChars(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
