package document

import (
	"fmt"
	"strings"
)

// Structure is a document as handed to a workflow run.
type Structure struct {
	Title    string    `json:"title,omitempty"`
	Text     string    `json:"text"`
	Sections []Section `json:"sections,omitempty"`
	Images   []Image   `json:"images,omitempty"`
	Tables   []string  `json:"tables,omitempty"` // markdown, one entry per table
	Pages    int       `json:"pages,omitempty"`
}

// Section is a heading with its rune offset into Structure.Text.
// A nil Offset means the layout extractor could not place the heading.
type Section struct {
	Heading string `json:"heading"`
	Offset  *int   `json:"offset"`
}

// NewSection returns a section with a known offset.
func NewSection(heading string, offset int) Section {
	return Section{Heading: heading, Offset: &offset}
}

// Image is an embedded image candidate for vision description.
type Image struct {
	Index   int    `json:"index"`
	Page    int    `json:"page"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Caption string `json:"caption,omitempty"`
	Data    []byte `json:"image_base64"`
}

// Chunk is a bounded slice of document text passed to one extraction call.
type Chunk struct {
	Heading string `json:"heading"`
	Content string `json:"content"`
}

// FigureDescription is the vision model's account of one image.
type FigureDescription struct {
	Index       int    `json:"index"`
	Page        int    `json:"page"`
	Caption     string `json:"caption,omitempty"`
	Description string `json:"description"`
}

// MatchedFigure is a figure description labelled with the paper's own numbering.
type MatchedFigure struct {
	Label       string `json:"label"`
	Page        int    `json:"page"`
	Description string `json:"description"`
}

const rule = "============================================================"

// EnrichText appends the vision analysis block for matched figures.
// With no figures the text is returned unchanged.
func EnrichText(text string, figures []MatchedFigure) string {
	if len(figures) == 0 {
		return text
	}
	var sb strings.Builder
	sb.WriteString(text)
	sb.WriteString("\n\n" + rule + "\n")
	sb.WriteString("AI VISION ANALYSIS OF FIGURES IN THIS PAPER\n")
	sb.WriteString(rule + "\n\n")
	for _, f := range figures {
		fmt.Fprintf(&sb, "### %s (PDF Page %d)\n", f.Label, f.Page)
		fmt.Fprintf(&sb, "Description: %s\n\n", f.Description)
	}
	return sb.String()
}

// FullText returns Text with the extracted tables block appended, unless the
// tables are already part of the text.
func (s *Structure) FullText() string {
	if len(s.Tables) == 0 || strings.Contains(s.Text, "EXTRACTED TABLES") {
		return s.Text
	}
	var sb strings.Builder
	sb.WriteString(s.Text)
	sb.WriteString("\n\n" + rule + "\n")
	sb.WriteString("EXTRACTED TABLES (Markdown format)\n")
	sb.WriteString(rule + "\n\n")
	sb.WriteString(strings.Join(s.Tables, "\n\n"))
	return sb.String()
}
