package grounding

import (
	"regexp"
	"strings"
)

var dashes = strings.NewReplacer(
	"\u2010", "-", "\u2011", "-", "\u2012", "-",
	"\u2013", "-", "\u2014", "-", "\u2212", "-",
)

// flatten unifies dash variants and collapses whitespace.
func flatten(s string) string {
	return strings.Join(strings.Fields(dashes.Replace(s)), " ")
}

// Normalize lowercases s, unifies dashes and collapses whitespace.
func Normalize(s string) string {
	return strings.ToLower(flatten(s))
}

var lineBreakHyphen = regexp.MustCompile(`(\w)- (\w)`)

// dehyphenate joins words split across lines, "sur- vival" to "survival".
func dehyphenate(s string) string {
	return lineBreakHyphen.ReplaceAllString(s, "$1$2")
}

// Truncate keeps the first 15000 and last 5000 characters of a source
// longer than 20000 characters, joined by marker.
func Truncate(source, marker string) string {
	r := []rune(source)
	if len(r) <= 20000 {
		return source
	}
	return string(r[:15000]) + "\n\n" + marker + "\n\n" + string(r[len(r)-5000:])
}
