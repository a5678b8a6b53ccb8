package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnrichText_NoFigures(t *testing.T) {
	assert.Equal(t, "body", EnrichText("body", nil))
}

func TestEnrichText_Block(t *testing.T) {
	out := EnrichText("body", []MatchedFigure{
		{Label: "Fig. 1", Page: 3, Description: "A forest plot."},
		{Label: "Image from Page 5", Page: 5, Description: "A bar chart."},
	})

	want := "body\n\n" + strings.Repeat("=", 60) + "\nAI VISION ANALYSIS OF FIGURES IN THIS PAPER\n" +
		strings.Repeat("=", 60) + "\n\n" +
		"### Fig. 1 (PDF Page 3)\nDescription: A forest plot.\n\n" +
		"### Image from Page 5 (PDF Page 5)\nDescription: A bar chart.\n\n"
	assert.Equal(t, want, out)
}

func TestFullText_AppendsTablesOnce(t *testing.T) {
	s := &Structure{Text: "intro", Tables: []string{"### Table 1\n| a | b |"}}
	full := s.FullText()
	assert.Contains(t, full, "EXTRACTED TABLES (Markdown format)")
	assert.True(t, strings.HasPrefix(full, "intro\n\n"))

	s.Text = full
	assert.Equal(t, full, s.FullText())
}

func TestSection_NullOffsetDecodes(t *testing.T) {
	var s Structure
	err := json.Unmarshal([]byte(`{"text":"x","sections":[{"heading":"A","offset":null},{"heading":"B","offset":4}]}`), &s)
	require.NoError(t, err)
	require.Len(t, s.Sections, 2)
	assert.Nil(t, s.Sections[0].Offset)
	require.NotNil(t, s.Sections[1].Offset)
	assert.Equal(t, 4, *s.Sections[1].Offset)
}

func TestImage_Base64RoundTrip(t *testing.T) {
	var img Image
	require.NoError(t, json.Unmarshal([]byte(`{"index":1,"page":2,"image_base64":"aGVsbG8="}`), &img))
	assert.Equal(t, []byte("hello"), img.Data)
}
