package validation

import (
	"fmt"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"league-signup/internal/models"
)

// ValidationResult carries every violation found in one document.
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// Summary joins all violations into one line, sorted by field.
func (r *ValidationResult) Summary() string {
	parts := make([]string, 0, len(r.Errors))
	for _, e := range r.Errors {
		parts = append(parts, fmt.Sprintf("%s: %s", e.Field, e.Message))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// SignupRecordSchema is the JSON schema every loaded record must satisfy.
var SignupRecordSchema = map[string]interface{}{
	"type":     "object",
	"required": []interface{}{"firstName", "lastName", "email", "phone", "dateOfBirth"},
	"properties": map[string]interface{}{
		"firstName": map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 100},
		"lastName":  map[string]interface{}{"type": "string", "minLength": 1, "maxLength": 100},
		"email":     map[string]interface{}{"type": "string", "format": "email", "maxLength": 255},
		"phone": map[string]interface{}{
			"type":    "string",
			"pattern": `^[0-9+()\-. ]{7,20}$`,
		},
		"dateOfBirth": map[string]interface{}{"type": "string", "minLength": 6, "maxLength": 10},
	},
}

var recordSchema = mustCompile(SignupRecordSchema)

func mustCompile(schema map[string]interface{}) *gojsonschema.Schema {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		panic(fmt.Sprintf("invalid built-in schema: %v", err))
	}
	return s
}

// ValidateRecord checks a signup record against SignupRecordSchema.
func ValidateRecord(r models.SignupRecord) *ValidationResult {
	return validate(recordSchema, r)
}

// ValidateDocument checks an arbitrary document against a schema given as a Go map.
func ValidateDocument(schema map[string]interface{}, doc interface{}) (*ValidationResult, error) {
	s, err := gojsonschema.NewSchema(gojsonschema.NewGoLoader(schema))
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}
	return validate(s, doc), nil
}

func validate(schema *gojsonschema.Schema, doc interface{}) *ValidationResult {
	result, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return &ValidationResult{
			Valid:  false,
			Errors: []ValidationError{{Field: "(root)", Message: err.Error(), Code: "SCHEMA_ERROR"}},
		}
	}

	out := &ValidationResult{Valid: result.Valid()}
	for _, e := range result.Errors() {
		out.Errors = append(out.Errors, ValidationError{
			Field:   e.Field(),
			Message: e.Description(),
			Code:    strings.ToUpper(e.Type()),
		})
	}
	return out
}
