package parser

import (
	"fmt"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/groundtruth/internal/document"
)

// Parser converts raw document bytes into a document structure: full text
// plus section headings with their rune offsets into that text.
type Parser interface {
	Parse(r io.Reader, filename string) (*document.Structure, error)
}

// SupportedExtensions lists file extensions this service can handle.
var SupportedExtensions = map[string]bool{
	".txt":      true,
	".md":       true,
	".markdown": true,
	".csv":      true,
	".html":     true,
	".htm":      true,
	".pdf":      true,
	".docx":     true,
}

// ForFile returns the appropriate parser for a filename.
func ForFile(filename string) (Parser, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	switch ext {
	case ".txt":
		return &TextParser{}, nil
	case ".md", ".markdown":
		return &MarkdownParser{}, nil
	case ".csv":
		return &CSVParser{}, nil
	case ".html", ".htm":
		return &HTMLParser{}, nil
	case ".pdf":
		return &PDFParser{}, nil
	case ".docx":
		return &DOCXParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported file extension: %s", ext)
	}
}

// IsSupportedExtension checks if a file extension is supported.
func IsSupportedExtension(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return SupportedExtensions[ext]
}

func titleFrom(filename string) string {
	return strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
}

// builder accumulates blocks separated by blank lines and records where
// each heading starts.
type builder struct {
	sb       strings.Builder
	runes    int
	sections []document.Section
	tables   []string
}

func (b *builder) block(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if b.runes > 0 {
		b.sb.WriteString("\n\n")
		b.runes += 2
	}
	b.sb.WriteString(s)
	b.runes += utf8.RuneCountInString(s)
}

func (b *builder) heading(h string) {
	h = strings.Join(strings.Fields(h), " ")
	if h == "" {
		return
	}
	off := b.runes
	if off > 0 {
		off += 2
	}
	b.sections = append(b.sections, document.NewSection(h, off))
	b.block(h)
}

func (b *builder) table(markdown string) {
	if markdown = strings.TrimSpace(markdown); markdown != "" {
		b.tables = append(b.tables, markdown)
	}
}

func (b *builder) structure(title string) *document.Structure {
	return &document.Structure{
		Title:    title,
		Text:     b.sb.String(),
		Sections: b.sections,
		Tables:   b.tables,
	}
}

// Plain-text formats carry no heading markup, so scientific section names
// and short numbered lines ("2.1 Study design") are treated as headings.
var (
	namedHeading = regexp.MustCompile(`(?i)^(?:\d+(?:\.\d+)*\.?\s+|[IVX]+\.\s+)?(abstract|summary|background|introduction|methods?|materials and methods|patients and methods|study design|results|discussion|conclusions?|limitations|references|acknowledge?ments|funding|supplementary (?:material|appendix))\s*:?$`)
	numberedHeading = regexp.MustCompile(`^\d+(?:\.\d+)*\.?\s+[A-Z][^.!?]*$`)
)

const maxHeadingLen = 80

func isHeading(line string) bool {
	line = strings.TrimSpace(line)
	if line == "" || utf8.RuneCountInString(line) > maxHeadingLen {
		return false
	}
	if namedHeading.MatchString(line) {
		return true
	}
	return numberedHeading.MatchString(line) && len(strings.Fields(line)) <= 8
}

// addPlainText splits text into paragraphs on blank lines, promoting
// heading-like lines to sections.
func (b *builder) addPlainText(text string) {
	var para []string
	flush := func() {
		if len(para) > 0 {
			b.block(strings.Join(para, "\n"))
			para = para[:0]
		}
	}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, " \t\r")
		switch {
		case strings.TrimSpace(line) == "":
			flush()
		case isHeading(line):
			flush()
			b.heading(line)
		default:
			para = append(para, line)
		}
	}
	flush()
}
