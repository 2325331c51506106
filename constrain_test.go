package sema

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestLengthConstraintDirectives(t *testing.T) {
	ctx := context.Background()

	t.Run("too short names the shortfall", func(t *testing.T) {
		c := LengthConstraint{Min: 10, Max: 20}
		msg, err := c.Check(ctx, New("12345"))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "at least 5") {
			t.Errorf("violation = %q, want the missing amount", msg)
		}
	})

	t.Run("too long names the excess", func(t *testing.T) {
		c := LengthConstraint{Min: 1, Max: 4}
		msg, err := c.Check(ctx, New("1234567"))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "at least 3") {
			t.Errorf("violation = %q, want the excess amount", msg)
		}
	})

	t.Run("conforming value passes", func(t *testing.T) {
		c := LengthConstraint{Min: 2, Max: 10}
		msg, err := c.Check(ctx, New("12345"))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if msg != "" {
			t.Errorf("violation = %q, want none", msg)
		}
	})
}

func TestLengthConstraintFields(t *testing.T) {
	ctx := context.Background()
	candidate := New(map[string]any{
		"title": "hi",
		"tags":  []any{"go", "llm", "orchestration"},
	})

	t.Run("named field checks its text length", func(t *testing.T) {
		c := LengthConstraint{Field: "title", Min: 5, Max: 50}
		msg, err := c.Check(ctx, candidate)
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "field 'title'") {
			t.Errorf("violation = %q", msg)
		}
	})

	t.Run("plain field on a list checks cardinality", func(t *testing.T) {
		c := LengthConstraint{Field: "tags", Min: 1, Max: 5}
		msg, err := c.Check(ctx, candidate)
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if msg != "" {
			t.Errorf("violation = %q, want none for 3 items in 1..5", msg)
		}
	})

	t.Run("items suffix checks each element", func(t *testing.T) {
		c := LengthConstraint{Field: "tags" + ItemsSuffix, Min: 3, Max: 50}
		msg, err := c.Check(ctx, candidate)
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "item 0") {
			t.Errorf("violation = %q, want the short element flagged", msg)
		}
		if strings.Contains(msg, "item 1") {
			t.Errorf("violation = %q, conforming element flagged", msg)
		}
	})

	t.Run("struct instances resolve by wire name", func(t *testing.T) {
		c := LengthConstraint{Field: "name", Min: 10, Max: 50}
		msg, err := c.Check(ctx, New(person{Name: "Ada", Age: 36}))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "field 'name'") {
			t.Errorf("violation = %q", msg)
		}
	})
}

func TestCustomConstraint(t *testing.T) {
	ctx := context.Background()

	t.Run("pass verdict", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt", WithMockResponse("PASS")))

		c := CustomConstraint{Rule: "the text must be polite"}
		msg, err := c.Check(ctx, New("please and thank you", WithRegistry(reg)))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if msg != "" {
			t.Errorf("violation = %q, want none", msg)
		}
	})

	t.Run("explanation becomes the violation", func(t *testing.T) {
		reg := NewRegistry()
		reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt", WithMockResponse("The text is dismissive.")))

		c := CustomConstraint{Rule: "the text must be polite"}
		msg, err := c.Check(ctx, New("whatever", WithRegistry(reg)))
		if err != nil {
			t.Fatalf("Check() error: %v", err)
		}
		if !strings.Contains(msg, "The text is dismissive.") {
			t.Errorf("violation = %q", msg)
		}
	})
}

func TestConstrainRepairs(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()

	var remedy string
	engine := NewMockEngine("gpt", WithMockCallback(func(req *Request) (string, error) {
		remedy = req.Instruction
		return "a corrected thirteen character output", nil
	}))
	reg.Register(CapabilityNeurosymbolic, engine)

	constraints := []Constraint{LengthConstraint{Min: 10, Max: 100}}
	result, err := Constrain(ctx, "write a short description",
		New("12345", WithRegistry(reg)), constraints)
	if err != nil {
		t.Fatalf("Constrain() error: %v", err)
	}
	if result.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2", result.Attempts)
	}

	for _, marker := range []string{
		"[ORIGINAL_TASK]", "[CURRENT_OUTPUT]", "[CONSTRAINTS]", "[VIOLATIONS]",
		"write a short description", "at least 5",
	} {
		if !strings.Contains(remedy, marker) {
			t.Errorf("remedy missing %q", marker)
		}
	}
}

func TestConstrainAccumulatesAllViolations(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	reg.Register(CapabilityNeurosymbolic, NewMockEngine("gpt"))

	candidate := New(map[string]any{"title": "x", "body": "y"}, WithRegistry(reg))
	constraints := []Constraint{
		LengthConstraint{Field: "title", Min: 5, Max: 50},
		LengthConstraint{Field: "body", Min: 5, Max: 50},
	}

	_, err := Constrain(ctx, "task", candidate, constraints, WithConstrainAttempts(1))
	var exhausted *ConstraintExhaustedError
	if !errors.As(err, &exhausted) {
		t.Fatalf("Constrain() error = %v, want ConstraintExhaustedError", err)
	}
	if len(exhausted.Violations) != 2 {
		t.Fatalf("violations = %d, want both constraints reported", len(exhausted.Violations))
	}
	joined := exhausted.Error()
	if !strings.Contains(joined, "title") || !strings.Contains(joined, "body") {
		t.Errorf("exhaustion error = %q", joined)
	}
}

func TestConstrainReparsesStructured(t *testing.T) {
	ctx := context.Background()
	reg := NewRegistry()
	engine := NewMockEngine("gpt", WithMockResponse(`{"name": "Augusta Ada King", "age": 36}`))
	reg.Register(CapabilityNeurosymbolic, engine)

	candidate := New(map[string]any{"name": "Ada", "age": 36.0}, WithRegistry(reg))
	constraints := []Constraint{LengthConstraint{Field: "name", Min: 10, Max: 50}}

	result, err := Constrain(ctx, "describe the person", candidate, constraints,
		WithConstrainSchema(NewSchema[person]()))
	if err != nil {
		t.Fatalf("Constrain() error: %v", err)
	}
	got, ok := result.Value.Value().(person)
	if !ok {
		t.Fatalf("result payload = %T, want schema-typed instance", result.Value.Value())
	}
	if got.Name != "Augusta Ada King" {
		t.Errorf("Name = %q", got.Name)
	}
}
