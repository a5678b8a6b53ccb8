package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDocument_Structure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.json")
	body := `{"text": "Results\n\nDrug X worked.", "sections": [{"heading": "Results", "offset": 0}],
		"images": [{"index": 0, "page": 1, "width": 400, "height": 300, "image_base64": "AQID"}]}`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	doc, err := loadDocument(path)
	require.NoError(t, err)
	require.Len(t, doc.Images, 1)
	assert.Equal(t, []byte{1, 2, 3}, doc.Images[0].Data)
	require.Len(t, doc.Sections, 1)
	assert.Equal(t, 0, *doc.Sections[0].Offset)
}

func TestLoadDocument_PaperFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "paper.md")
	require.NoError(t, os.WriteFile(path, []byte("# Methods\n\nRandomized.\n"), 0o644))

	doc, err := loadDocument(path)
	require.NoError(t, err)
	assert.Equal(t, "paper", doc.Title)
	assert.Equal(t, "Methods\n\nRandomized.", doc.Text)

	_, err = loadDocument(filepath.Join(t.TempDir(), "paper.xlsx"))
	assert.ErrorContains(t, err, "unsupported file extension")
}

func TestNewLogger(t *testing.T) {
	logLevel = "warn"
	t.Cleanup(func() { logLevel = "info" })
	_, err := newLogger()
	require.NoError(t, err)

	logLevel = "loud"
	_, err = newLogger()
	assert.ErrorContains(t, err, "invalid --log-level")
}
