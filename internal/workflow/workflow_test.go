package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltins(t *testing.T) {
	assert.Equal(t, []string{"deep-analysis", "quick-summary"}, BuiltinNames())
	for _, name := range BuiltinNames() {
		w, err := Builtin(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, w.Name)
		assert.Contains(t, w.PromptTemplate, TextPlaceholder)
		assert.Contains(t, w.PromptTemplate, SchemaPlaceholder)
	}
	assert.Equal(t, DefaultName, Default().Name)
}

func TestBuiltin_Unknown(t *testing.T) {
	_, err := Builtin("nope")
	assert.Error(t, err)
}

func TestParse_Validation(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{"missing name", "prompt_template: '{text}'\noutput_schema: '{}'", "Name is required"},
		{"missing placeholder", "name: x\nprompt_template: 'no placeholder'\noutput_schema: '{}'", "must contain {text}"},
		{"bad schema", "name: x\nprompt_template: '{text}'\noutput_schema: '{not json'", "must be valid JSON"},
		{"bad yaml", "name: [unclosed", "decode workflow yaml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRender_SubstitutesVerbatim(t *testing.T) {
	w := Workflow{
		Name:           "t",
		PromptTemplate: "S={schema_json}\nT={text}\nAgain {text}",
		OutputSchema:   `{"a":"string"}`,
	}
	got := w.Render("body {schema_json}")
	assert.Equal(t, "S={\"a\":\"string\"}\nT=body {schema_json}\nAgain body {schema_json}", got)
}

func TestResolve(t *testing.T) {
	w, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, DefaultName, w.Name)

	w, err = Resolve("quick-summary")
	require.NoError(t, err)
	assert.Equal(t, "quick-summary", w.Name)

	path := filepath.Join(t.TempDir(), "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: custom\nprompt_template: 'Go: {text}'\noutput_schema: '{\"x\": 1}'\n"), 0o644))
	w, err = Resolve(path)
	require.NoError(t, err)
	assert.Equal(t, "custom", w.Name)
	assert.Equal(t, "Go: hello", w.Render("hello"))
}
