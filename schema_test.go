package sema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

type article struct {
	Title   string   `json:"title" desc:"headline of the article"`
	Body    string   `json:"body"`
	Tags    []string `json:"tags,omitempty"`
	Ignored string   `json:"-"`
}

func TestTypedSchemaValidate(t *testing.T) {
	schema := NewSchema[article]()

	t.Run("valid payload", func(t *testing.T) {
		got, err := schema.Validate(`{"title": "Go", "body": "text", "tags": ["a"]}`)
		if err != nil {
			t.Fatalf("Validate() error: %v", err)
		}
		a, ok := got.(article)
		if !ok {
			t.Fatalf("instance type = %T", got)
		}
		if a.Title != "Go" || len(a.Tags) != 1 {
			t.Errorf("instance = %+v", a)
		}
	})

	t.Run("omitempty field is optional", func(t *testing.T) {
		if _, err := schema.Validate(`{"title": "Go", "body": "text"}`); err != nil {
			t.Errorf("Validate() error: %v", err)
		}
	})

	t.Run("unknown field rejected", func(t *testing.T) {
		_, err := schema.Validate(`{"title": "Go", "body": "text", "extra": 1}`)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Validate() error = %v, want ValidationError", err)
		}
	})

	t.Run("type mismatch names the field", func(t *testing.T) {
		_, err := schema.Validate(`{"title": 42, "body": "text"}`)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Validate() error = %v, want ValidationError", err)
		}
		v := vErr.Violations[0]
		if v.Path != "title" || v.Expected != "string" {
			t.Errorf("violation = %+v", v)
		}
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := schema.Validate(`{"title": `)
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			t.Fatalf("Validate() error = %v, want ValidationError", err)
		}
		if vErr.Violations[0].Path != "$" {
			t.Errorf("violation = %+v", vErr.Violations[0])
		}
	})

	t.Run("truncated reply", func(t *testing.T) {
		for _, text := range []string{`{"title": "Go", "body": `, ""} {
			_, err := schema.Validate(text)
			var vErr *ValidationError
			if !errors.As(err, &vErr) {
				t.Fatalf("Validate(%q) error = %v, want ValidationError", text, err)
			}
			v := vErr.Violations[0]
			if v.Path != "$" || !strings.Contains(v.Message, "truncated") {
				t.Errorf("violation = %+v", v)
			}
		}
	})
}

func TestTypedSchemaSerialize(t *testing.T) {
	schema := NewSchema[article]()
	text, err := schema.Serialize(article{Title: "Go", Body: "text"})
	if err != nil {
		t.Fatalf("Serialize() error: %v", err)
	}
	round, err := schema.Validate(text)
	if err != nil {
		t.Fatalf("serialized instance should validate: %v", err)
	}
	if round.(article).Title != "Go" {
		t.Errorf("round trip = %+v", round)
	}
}

func TestTypedSchemaDescribe(t *testing.T) {
	doc := NewSchema[article]().Describe()

	var parsed struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Describe() is not valid JSON: %v", err)
	}
	if parsed.Type != "object" {
		t.Errorf("type = %q", parsed.Type)
	}
	if parsed.Properties["title"]["type"] != "string" {
		t.Errorf("title property = %v", parsed.Properties["title"])
	}
	if parsed.Properties["title"]["description"] != "headline of the article" {
		t.Errorf("desc tag ignored: %v", parsed.Properties["title"])
	}
	if parsed.Properties["tags"]["type"] != "array" {
		t.Errorf("tags property = %v", parsed.Properties["tags"])
	}
	if _, ok := parsed.Properties["-"]; ok {
		t.Error("json:\"-\" fields should be skipped")
	}

	required := strings.Join(parsed.Required, ",")
	if !strings.Contains(required, "title") || !strings.Contains(required, "body") {
		t.Errorf("required = %v", parsed.Required)
	}
	if strings.Contains(required, "tags") {
		t.Error("omitempty fields should not be required")
	}
}
