package sema

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"reflect"
	"strings"

	"github.com/zoobzio/sentinel"
)

// Schema is the boundary Validate repairs against: strict parse-and-check,
// canonical serialization, and a textual description the remedy prompt can
// show the engine.
//
// Validate must return a *ValidationError for every fixable mismatch; any
// other error kind is treated as an unexpected response shape and aborts
// the repair loop.
type Schema interface {
	Validate(text string) (any, error)
	Serialize(instance any) (string, error)
	Describe() string
}

// TypedSchema validates JSON text against a Go struct type. Field
// metadata is extracted with sentinel: json tags name the fields, a
// `desc` tag documents them, and every field without omitempty is
// required.
type TypedSchema[T any] struct {
	fields []sentinel.FieldMetadata
}

// NewSchema builds a TypedSchema for T.
func NewSchema[T any]() *TypedSchema[T] {
	metadata := sentinel.Inspect[T]()
	return &TypedSchema[T]{fields: metadata.Fields}
}

// Validate strictly decodes text into T. Unknown fields, type mismatches,
// malformed JSON and missing required fields all surface as a
// *ValidationError listing every violation found.
func (s *TypedSchema[T]) Validate(text string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(text))
	dec.DisallowUnknownFields()

	var out T
	if err := dec.Decode(&out); err != nil {
		return nil, asValidationError(err)
	}

	if violations := s.missingRequired(&out); len(violations) > 0 {
		return nil, &ValidationError{Violations: violations}
	}
	return out, nil
}

// Serialize renders an instance as canonical JSON.
func (s *TypedSchema[T]) Serialize(instance any) (string, error) {
	b, err := json.Marshal(instance)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Describe renders the type as a JSON Schema document.
func (s *TypedSchema[T]) Describe() string {
	properties := make(map[string]any)
	required := []string{}

	for _, field := range s.fields {
		name := jsonFieldName(field)
		if name == "-" {
			continue
		}
		prop := map[string]any{"type": jsonTypeOf(field.Type)}
		if desc, ok := field.Tags["desc"]; ok {
			prop["description"] = desc
		}
		properties[name] = prop
		if !hasOmitempty(field) {
			required = append(required, name)
		}
	}

	doc := map[string]any{
		"type":                 "object",
		"properties":           properties,
		"required":             required,
		"additionalProperties": false,
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(b)
}

// missingRequired reports a violation for every required field left at its
// zero value after decoding.
func (s *TypedSchema[T]) missingRequired(instance *T) []Violation {
	var violations []Violation
	rv := reflect.ValueOf(instance).Elem()
	if rv.Kind() != reflect.Struct {
		return nil
	}
	for _, field := range s.fields {
		name := jsonFieldName(field)
		if name == "-" || hasOmitempty(field) {
			continue
		}
		fv := rv.FieldByName(field.Name)
		if !fv.IsValid() || !fv.IsZero() {
			continue
		}
		violations = append(violations, Violation{
			Path:     name,
			Message:  "required field is missing or empty",
			Expected: field.Type,
		})
	}
	return violations
}

// asValidationError maps JSON decoding failures to the retryable
// validation-error kind. Failures that do not describe the input text,
// such as decoding into an invalid destination, pass through untouched.
func asValidationError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		path := typeErr.Field
		if path == "" {
			path = "$"
		}
		return &ValidationError{Violations: []Violation{{
			Path:     path,
			Message:  fmt.Sprintf("cannot decode %s value", typeErr.Value),
			Expected: typeErr.Type.String(),
		}}}
	}

	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		return &ValidationError{Violations: []Violation{{
			Path:     "$",
			Message:  fmt.Sprintf("malformed JSON at offset %d: %s", syntaxErr.Offset, syntaxErr.Error()),
			Expected: "valid JSON document",
		}}}
	}

	// A reply cut off mid-document is a fixable mismatch, not a broken
	// response shape.
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return &ValidationError{Violations: []Violation{{
			Path:     "$",
			Message:  "truncated JSON document",
			Expected: "valid JSON document",
		}}}
	}

	// encoding/json reports unknown fields as a plain error string.
	if strings.Contains(err.Error(), "unknown field") {
		return &ValidationError{Violations: []Violation{{
			Path:     "$",
			Message:  err.Error(),
			Expected: "only declared fields",
		}}}
	}

	return err
}

// jsonFieldName extracts the wire name of a field, honoring the json tag.
func jsonFieldName(field sentinel.FieldMetadata) string {
	if tag, ok := field.Tags["json"]; ok {
		parts := strings.Split(tag, ",")
		if len(parts) > 0 && parts[0] != "" {
			return parts[0]
		}
	}
	return strings.ToLower(field.Name[:1]) + field.Name[1:]
}

func hasOmitempty(field sentinel.FieldMetadata) bool {
	if tag, ok := field.Tags["json"]; ok {
		return strings.Contains(tag, "omitempty")
	}
	return false
}

// jsonTypeOf maps a Go type name to its JSON Schema type.
func jsonTypeOf(goType string) string {
	switch {
	case strings.HasPrefix(goType, "string"):
		return "string"
	case strings.HasPrefix(goType, "int"), strings.HasPrefix(goType, "uint"):
		return "integer"
	case strings.HasPrefix(goType, "float"):
		return "number"
	case strings.HasPrefix(goType, "bool"):
		return "boolean"
	case strings.HasPrefix(goType, "[]"):
		return "array"
	case strings.HasPrefix(goType, "map["):
		return "object"
	default:
		return "object"
	}
}
