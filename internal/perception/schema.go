package perception

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedResponse means a stage LLM returned output that is not valid
// JSON or does not satisfy the stage's schema. Callers decide the fail-open
// or fail-closed default for their stage.
var ErrMalformedResponse = errors.New("malformed LLM response")

// Stage response schemas. Guard and critique responses are structured JSON;
// validating them here keeps pipeline decisions deterministic even when the
// model drifts.
const inputGuardSchemaJSON = `{
	"type": "object",
	"properties": {
		"allowed": {"type": "boolean"},
		"reason": {"type": "string"}
	},
	"required": ["allowed"]
}`

const critiqueSchemaJSON = `{
	"type": "object",
	"properties": {
		"scores": {
			"type": "object",
			"properties": {
				"accuracy": {"type": "number", "minimum": 0, "maximum": 10},
				"completeness": {"type": "number", "minimum": 0, "maximum": 10},
				"clarity": {"type": "number", "minimum": 0, "maximum": 10},
				"format": {"type": "number", "minimum": 0, "maximum": 10}
			},
			"required": ["accuracy", "completeness", "clarity", "format"]
		},
		"issues": {"type": "array", "items": {"type": "string"}},
		"revised_answer": {"type": "string"},
		"formatting_only": {"type": "boolean"}
	},
	"required": ["scores"]
}`

const outputGuardSchemaJSON = `{
	"type": "object",
	"properties": {
		"valid": {"type": "boolean"},
		"corrected_answer": {"type": "string"},
		"reason": {"type": "string"}
	},
	"required": ["valid"]
}`

var (
	// InputGuardSchema validates the input guard verdict.
	InputGuardSchema = mustCompile("input_guard.json", inputGuardSchemaJSON)

	// CritiqueSchema validates the critique stage's raw dimension scores.
	CritiqueSchema = mustCompile("critique.json", critiqueSchemaJSON)

	// OutputGuardSchema validates the output guard verdict.
	OutputGuardSchema = mustCompile("output_guard.json", outputGuardSchemaJSON)
)

func mustCompile(name, schemaJSON string) *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name, strings.NewReader(schemaJSON)); err != nil {
		panic(fmt.Sprintf("bad schema %s: %v", name, err))
	}
	return compiler.MustCompile(name)
}

// StripFences removes markdown code fences around a JSON payload. Models
// frequently wrap structured answers in ```json blocks despite instructions.
func StripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

// ExtractJSON finds the outermost JSON object in a response that may carry
// prose around it. Returns the raw input when no braces are found.
func ExtractJSON(s string) string {
	s = StripFences(s)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// DecodeValidated strips fences, validates the payload against schema and
// decodes it into out. All failures wrap ErrMalformedResponse.
func DecodeValidated(raw string, schema *jsonschema.Schema, out interface{}) error {
	payload := ExtractJSON(raw)

	var generic interface{}
	if err := json.Unmarshal([]byte(payload), &generic); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := schema.Validate(generic); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return nil
}
