package extract

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// CheckSchema reports advisory mismatches between parsed output and the
// workflow schema. A schema with "$schema" or "properties" at the top level
// is compiled as JSON Schema; otherwise it is treated as an example document
// and only top-level keys and list/object shapes are compared. Issues never
// fail an extraction.
func CheckSchema(schema string, parsed map[string]any) []string {
	if parsed == nil {
		return nil
	}
	var doc map[string]any
	if err := json.Unmarshal([]byte(schema), &doc); err != nil {
		return nil
	}
	if _, ok := doc["$schema"]; ok {
		return checkJSONSchema(schema, parsed)
	}
	if _, ok := doc["properties"]; ok {
		return checkJSONSchema(schema, parsed)
	}
	return checkExampleShape(doc, parsed)
}

func checkJSONSchema(schema string, parsed map[string]any) []string {
	compiled, err := jsonschema.CompileString("workflow-schema.json", schema)
	if err != nil {
		return []string{fmt.Sprintf("schema does not compile: %v", err)}
	}
	err = compiled.Validate(any(parsed))
	if err == nil {
		return nil
	}
	verr, ok := err.(*jsonschema.ValidationError)
	if !ok {
		return []string{err.Error()}
	}
	var issues []string
	flattenCauses(verr, &issues)
	return issues
}

func flattenCauses(e *jsonschema.ValidationError, out *[]string) {
	if len(e.Causes) == 0 {
		loc := e.InstanceLocation
		if loc == "" {
			loc = "/"
		}
		*out = append(*out, fmt.Sprintf("%s: %s", loc, e.Message))
		return
	}
	for _, c := range e.Causes {
		flattenCauses(c, out)
	}
}

func checkExampleShape(example, parsed map[string]any) []string {
	keys := make([]string, 0, len(example))
	for k := range example {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var issues []string
	for _, k := range keys {
		got, ok := parsed[k]
		if !ok {
			issues = append(issues, fmt.Sprintf("missing key %q", k))
			continue
		}
		if got == nil {
			continue
		}
		switch example[k].(type) {
		case []any:
			if _, ok := got.([]any); !ok {
				issues = append(issues, fmt.Sprintf("%q: expected a list", k))
			}
		case map[string]any:
			if _, ok := got.(map[string]any); !ok {
				issues = append(issues, fmt.Sprintf("%q: expected an object", k))
			}
		}
	}
	return issues
}
