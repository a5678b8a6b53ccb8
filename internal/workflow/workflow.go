// Package workflow defines extraction workflows: a prompt template and the
// output schema the model is asked to fill.
package workflow

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Placeholders substituted into PromptTemplate.
const (
	TextPlaceholder   = "{text}"
	SchemaPlaceholder = "{schema_json}"
)

// Workflow is a named extraction recipe.
type Workflow struct {
	Name           string `yaml:"name" json:"name" validate:"required,max=100"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`
	PromptTemplate string `yaml:"prompt_template" json:"prompt_template" validate:"required,has_text_placeholder"`
	OutputSchema   string `yaml:"output_schema" json:"output_schema" validate:"required,json"`
}

//go:embed builtin/*.yaml
var builtinFS embed.FS

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("has_text_placeholder", func(fl validator.FieldLevel) bool {
		return strings.Contains(fl.Field().String(), TextPlaceholder)
	})
	return v
}

// Validate checks required fields, the {text} placeholder and schema JSON.
func (w Workflow) Validate() error {
	if err := validate.Struct(w); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fieldMessage(fe))
			}
			return fmt.Errorf("invalid workflow: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid workflow: %w", err)
	}
	return nil
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "has_text_placeholder":
		return fe.Field() + " must contain " + TextPlaceholder
	case "json":
		return fe.Field() + " must be valid JSON"
	default:
		return fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag())
	}
}

// Parse decodes and validates a YAML workflow definition.
func Parse(data []byte) (Workflow, error) {
	var w Workflow
	if err := yaml.Unmarshal(data, &w); err != nil {
		return Workflow{}, fmt.Errorf("decode workflow yaml: %w", err)
	}
	if err := w.Validate(); err != nil {
		return Workflow{}, err
	}
	return w, nil
}

// Load reads a workflow from a YAML file.
func Load(path string) (Workflow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Workflow{}, fmt.Errorf("read workflow: %w", err)
	}
	return Parse(data)
}

// Builtin returns a bundled workflow by name.
func Builtin(name string) (Workflow, error) {
	data, err := builtinFS.ReadFile("builtin/" + name + ".yaml")
	if err != nil {
		return Workflow{}, fmt.Errorf("unknown workflow %q", name)
	}
	return Parse(data)
}

// BuiltinNames lists bundled workflows.
func BuiltinNames() []string {
	entries, _ := builtinFS.ReadDir("builtin")
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
	}
	sort.Strings(names)
	return names
}

// DefaultName is the workflow used when a request names none.
const DefaultName = "deep-analysis"

// Default returns the deep-analysis workflow.
func Default() Workflow {
	w, err := Builtin(DefaultName)
	if err != nil {
		panic(err)
	}
	return w
}

// Resolve loads a workflow from a file path if it exists, otherwise by
// builtin name. An empty ref yields the default.
func Resolve(ref string) (Workflow, error) {
	if ref == "" {
		return Default(), nil
	}
	if _, err := os.Stat(ref); err == nil {
		return Load(ref)
	}
	return Builtin(ref)
}

// Render substitutes the schema and text into the prompt template.
func (w Workflow) Render(text string) string {
	return strings.ReplaceAll(strings.ReplaceAll(w.PromptTemplate, SchemaPlaceholder, w.OutputSchema), TextPlaceholder, text)
}
