package chunker

import (
	"fmt"
	"sort"
	"strings"

	"github.com/dgallion1/groundtruth/internal/document"
)

// DefaultMaxChunkChars is the per-chunk character budget.
const DefaultMaxChunkChars = 30000

// Config controls chunking behavior.
type Config struct {
	MaxChunkChars int // Upper bound on chunk content length, in characters.
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{MaxChunkChars: DefaultMaxChunkChars}
}

// Split partitions text into ordered chunks bounded by cfg.MaxChunkChars.
//
// When at least two sections carry a known offset the text is cut at section
// boundaries and adjacent sections are merged greedily up to the budget.
// Otherwise the text is sliced into fixed-size parts.
func Split(text string, sections []document.Section, cfg Config) []document.Chunk {
	if cfg.MaxChunkChars <= 0 {
		cfg.MaxChunkChars = DefaultMaxChunkChars
	}
	if strings.TrimSpace(text) == "" {
		return nil
	}

	runes := []rune(text)
	known := knownSections(sections, len(runes))
	if len(known) < 2 {
		return bySize(runes, cfg.MaxChunkChars)
	}

	var chunks []document.Chunk
	if first := *known[0].Offset; first > 0 {
		if pre := strings.TrimSpace(string(runes[:first])); pre != "" {
			chunks = append(chunks, document.Chunk{Heading: "Preamble", Content: pre})
		}
	}
	for i, sec := range known {
		start := *sec.Offset
		end := len(runes)
		if i+1 < len(known) {
			end = *known[i+1].Offset
		}
		content := strings.TrimSpace(string(runes[start:end]))
		if content == "" {
			continue
		}
		chunks = append(chunks, splitOversized(sec.Heading, content, cfg.MaxChunkChars)...)
	}
	return merge(chunks, cfg.MaxChunkChars)
}

// knownSections returns sections with offsets, clamped to the text and
// sorted by offset. Sections sharing an offset keep their input order.
func knownSections(sections []document.Section, n int) []document.Section {
	var out []document.Section
	for _, s := range sections {
		if s.Offset == nil {
			continue
		}
		off := min(max(*s.Offset, 0), n)
		out = append(out, document.NewSection(s.Heading, off))
	}
	sort.SliceStable(out, func(i, j int) bool { return *out[i].Offset < *out[j].Offset })
	return out
}

func bySize(runes []rune, size int) []document.Chunk {
	chunks := make([]document.Chunk, 0, (len(runes)+size-1)/size)
	for i := 0; i < len(runes); i += size {
		end := min(i+size, len(runes))
		chunks = append(chunks, document.Chunk{
			Heading: fmt.Sprintf("Part %d", len(chunks)+1),
			Content: string(runes[i:end]),
		})
	}
	return chunks
}

// merge folds consecutive chunks together while the combined content,
// including the paragraph separator, stays within max.
func merge(chunks []document.Chunk, max int) []document.Chunk {
	var out []document.Chunk
	var heading string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			out = append(out, document.Chunk{Heading: heading, Content: strings.TrimSpace(buf.String())})
		}
		heading = ""
		buf.Reset()
		bufLen = 0
	}

	for _, c := range chunks {
		n := runeLen(c.Content)
		if bufLen > 0 && bufLen+2+n <= max {
			heading += " + " + c.Heading
			buf.WriteString("\n\n")
			buf.WriteString(c.Content)
			bufLen += 2 + n
			continue
		}
		flush()
		heading = c.Heading
		buf.WriteString(c.Content)
		bufLen = n
	}
	flush()
	return out
}

// splitOversized breaks a section that exceeds the budget at paragraph
// boundaries, cutting single oversized paragraphs by length.
func splitOversized(heading, content string, max int) []document.Chunk {
	if runeLen(content) <= max {
		return []document.Chunk{{Heading: heading, Content: content}}
	}

	var parts []string
	var cur strings.Builder
	curLen := 0
	for _, para := range splitByParagraphs(content) {
		pr := []rune(para)
		if len(pr) > max {
			if curLen > 0 {
				parts = append(parts, cur.String())
				cur.Reset()
				curLen = 0
			}
			for i := 0; i < len(pr); i += max {
				parts = append(parts, strings.TrimSpace(string(pr[i:min(i+max, len(pr))])))
			}
			continue
		}
		if curLen > 0 && curLen+2+len(pr) > max {
			parts = append(parts, cur.String())
			cur.Reset()
			curLen = 0
		}
		if curLen > 0 {
			cur.WriteString("\n\n")
			curLen += 2
		}
		cur.WriteString(para)
		curLen += len(pr)
	}
	if curLen > 0 {
		parts = append(parts, cur.String())
	}

	chunks := make([]document.Chunk, 0, len(parts))
	for i, p := range parts {
		if p == "" {
			continue
		}
		h := heading
		if i > 0 {
			h = fmt.Sprintf("%s (part %d)", heading, i+1)
		}
		chunks = append(chunks, document.Chunk{Heading: h, Content: p})
	}
	return chunks
}

func runeLen(s string) int {
	return len([]rune(s))
}
