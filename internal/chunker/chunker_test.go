package chunker

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dgallion1/groundtruth/internal/document"
)

func TestSplit_NoSectionsFallsBackToParts(t *testing.T) {
	text := strings.Repeat("a", 70000)
	chunks := Split(text, nil, Config{MaxChunkChars: 30000})

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		want := fmt.Sprintf("Part %d", i+1)
		if c.Heading != want {
			t.Errorf("chunk[%d]: expected heading %q, got %q", i, want, c.Heading)
		}
	}
	if len(chunks[2].Content) != 10000 {
		t.Errorf("expected last chunk of 10000 chars, got %d", len(chunks[2].Content))
	}
}

func TestSplit_SingleKnownSectionFallsBack(t *testing.T) {
	sections := []document.Section{
		document.NewSection("Intro", 0),
		{Heading: "Unplaced"},
	}
	chunks := Split("short body", sections, DefaultConfig())
	if len(chunks) != 1 || chunks[0].Heading != "Part 1" {
		t.Fatalf("expected a single Part 1 chunk, got %+v", chunks)
	}
}

func TestSplit_EmptyText(t *testing.T) {
	if chunks := Split("", nil, DefaultConfig()); len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
	if chunks := Split("   \n\t ", nil, DefaultConfig()); len(chunks) != 0 {
		t.Errorf("expected no chunks for whitespace, got %d", len(chunks))
	}
}

func sectionedDoc() (string, []document.Section) {
	text := "Title line\n\nAbstract\nWe studied things.\n\nMethods\nWe did things.\n\nResults\nThings happened."
	offsets := map[string]int{}
	for _, h := range []string{"Abstract", "Methods", "Results"} {
		offsets[h] = strings.Index(text, h)
	}
	// Deliberately out of order to exercise sorting.
	return text, []document.Section{
		document.NewSection("Results", offsets["Results"]),
		document.NewSection("Abstract", offsets["Abstract"]),
		document.NewSection("Methods", offsets["Methods"]),
	}
}

func TestSplit_SectionsMergeWithinBudget(t *testing.T) {
	text, sections := sectionedDoc()
	chunks := Split(text, sections, DefaultConfig())

	if len(chunks) != 1 {
		t.Fatalf("expected 1 merged chunk, got %d", len(chunks))
	}
	if chunks[0].Heading != "Preamble + Abstract + Methods + Results" {
		t.Errorf("unexpected heading %q", chunks[0].Heading)
	}
	if !strings.HasPrefix(chunks[0].Content, "Title line") {
		t.Errorf("expected preamble first, got %q", chunks[0].Content)
	}
}

func TestSplit_SectionsSplitWhenBudgetSmall(t *testing.T) {
	text, sections := sectionedDoc()
	chunks := Split(text, sections, Config{MaxChunkChars: 30})

	want := []string{"Preamble", "Abstract", "Methods", "Results"}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d: %+v", len(want), len(chunks), chunks)
	}
	for i, w := range want {
		if chunks[i].Heading != w {
			t.Errorf("chunk[%d]: expected heading %q, got %q", i, w, chunks[i].Heading)
		}
	}
}

func TestSplit_NeverExceedsBudget(t *testing.T) {
	var sb strings.Builder
	var sections []document.Section
	for i := 0; i < 12; i++ {
		sections = append(sections, document.NewSection(fmt.Sprintf("S%d", i), len([]rune(sb.String()))))
		sb.WriteString(fmt.Sprintf("S%d\n", i))
		sb.WriteString(strings.Repeat("lorem ipsum dolor sit amet. ", 10*(i+1)))
		sb.WriteString("\n\n")
	}
	text := sb.String()

	for _, budget := range []int{200, 500, 1000, 5000} {
		for _, c := range Split(text, sections, Config{MaxChunkChars: budget}) {
			if n := len([]rune(c.Content)); n > budget {
				t.Errorf("budget %d: chunk %q has %d chars", budget, c.Heading, n)
			}
		}
	}
}

func TestSplit_CountMonotonicInBudget(t *testing.T) {
	var sb strings.Builder
	var sections []document.Section
	for i := 0; i < 8; i++ {
		sections = append(sections, document.NewSection(fmt.Sprintf("S%d", i), sb.Len()))
		sb.WriteString(strings.Repeat("x", 100+i*37))
		sb.WriteString("\n\n")
	}
	text := sb.String()

	prev := 0
	for _, budget := range []int{5000, 2000, 1000, 600, 300, 150} {
		n := len(Split(text, sections, Config{MaxChunkChars: budget}))
		if n < prev {
			t.Errorf("budget %d: chunk count %d dropped below %d", budget, n, prev)
		}
		prev = n
	}
}

func TestSplit_ConcatenationPreservesContent(t *testing.T) {
	text, sections := sectionedDoc()
	chunks := Split(text, sections, Config{MaxChunkChars: 30})

	var parts []string
	for _, c := range chunks {
		parts = append(parts, c.Content)
	}
	joined := strings.Join(strings.Fields(strings.Join(parts, " ")), " ")
	want := strings.Join(strings.Fields(text), " ")
	if joined != want {
		t.Errorf("content mismatch:\n got %q\nwant %q", joined, want)
	}
}

func TestSplit_OversizedSectionIsCut(t *testing.T) {
	text := "Intro\nshort\n\nBig\n" + strings.Repeat("p", 250) + "\n\n" + strings.Repeat("q", 40)
	sections := []document.Section{
		document.NewSection("Intro", 0),
		document.NewSection("Big", strings.Index(text, "Big")),
	}
	chunks := Split(text, sections, Config{MaxChunkChars: 100})

	for _, c := range chunks {
		if len(c.Content) > 100 {
			t.Errorf("chunk %q exceeds budget: %d", c.Heading, len(c.Content))
		}
	}
	if !strings.Contains(chunks[len(chunks)-1].Heading, "Big (part") {
		t.Errorf("expected continuation heading, got %q", chunks[len(chunks)-1].Heading)
	}
}

func TestEstimateTokens(t *testing.T) {
	if EstimateTokens("") != 0 {
		t.Error("expected 0 tokens for empty text")
	}
	if got := EstimateTokens("one two three"); got != 3 {
		t.Errorf("expected 3 tokens, got %d", got)
	}
	chunks := []document.Chunk{{Content: "one two three"}, {Content: "four"}}
	if got := TotalTokens(chunks); got != 4 {
		t.Errorf("expected 4 total tokens, got %d", got)
	}
}
