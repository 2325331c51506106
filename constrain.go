package sema

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
)

// Constraint is a declarative rule checked against a candidate value.
// Check returns a human-readable violation message, or the empty string
// when the candidate conforms. An error return means the check itself
// could not run and aborts the loop.
type Constraint interface {
	Describe() string
	Check(ctx context.Context, v *Value) (string, error)
}

// ItemsSuffix on a LengthConstraint field name switches the constraint
// from the list's cardinality to the length of each list element.
const ItemsSuffix = ".items"

// LengthConstraint bounds the character length of the whole value, of a
// named field of a structured value, or, with the ".items" suffix on the
// field name, of every element of a list-valued field. A plain field name
// on a list-valued field bounds the list's cardinality instead.
type LengthConstraint struct {
	Field string // empty = whole value
	Min   int
	Max   int
}

func (c LengthConstraint) Describe() string {
	target := "the value"
	switch {
	case strings.HasSuffix(c.Field, ItemsSuffix):
		target = fmt.Sprintf("each item of field '%s'", strings.TrimSuffix(c.Field, ItemsSuffix))
	case c.Field != "":
		target = fmt.Sprintf("field '%s'", c.Field)
	}
	return fmt.Sprintf("%s must be between %d and %d characters long", target, c.Min, c.Max)
}

func (c LengthConstraint) Check(_ context.Context, v *Value) (string, error) {
	if strings.HasSuffix(c.Field, ItemsSuffix) {
		name := strings.TrimSuffix(c.Field, ItemsSuffix)
		target, ok := fieldValue(v, name)
		if !ok {
			return fmt.Sprintf("field '%s' is missing", name), nil
		}
		items, ok := target.([]any)
		if !ok {
			return fmt.Sprintf("field '%s' is not a list", name), nil
		}
		var problems []string
		for i, item := range items {
			if msg := c.checkLength(len([]rune(render(item)))); msg != "" {
				problems = append(problems, fmt.Sprintf("field '%s' item %d: %s", name, i, msg))
			}
		}
		return strings.Join(problems, "; "), nil
	}

	if c.Field != "" {
		target, ok := fieldValue(v, c.Field)
		if !ok {
			return fmt.Sprintf("field '%s' is missing", c.Field), nil
		}
		var n int
		if items, isList := target.([]any); isList {
			n = len(items)
		} else {
			n = len([]rune(render(target)))
		}
		if msg := c.checkLength(n); msg != "" {
			return fmt.Sprintf("field '%s': %s", c.Field, msg), nil
		}
		return "", nil
	}

	if msg := c.checkLength(v.Len()); msg != "" {
		return "the value: " + msg, nil
	}
	return "", nil
}

// checkLength returns a violation with a directive amount so the engine
// knows how far off the candidate is, not just that it is off.
func (c LengthConstraint) checkLength(n int) string {
	if c.Min > 0 && n < c.Min {
		return fmt.Sprintf("length %d is below the minimum of %d. Increase the length by at least %d characters",
			n, c.Min, c.Min-n)
	}
	if c.Max > 0 && n > c.Max {
		return fmt.Sprintf("length %d exceeds the maximum of %d. Decrease the length by at least %d characters",
			n, c.Max, n-c.Max)
	}
	return ""
}

// CustomConstraint is a free-form natural-language rule. The engine
// judges conformance and must answer PASS or explain the violation.
type CustomConstraint struct {
	Rule string
}

func (c CustomConstraint) Describe() string { return c.Rule }

func (c CustomConstraint) Check(ctx context.Context, v *Value) (string, error) {
	verdict, err := v.Query(ctx, fmt.Sprintf(
		"Does the content satisfy the following rule? Rule: %s. If it does, answer with exactly 'PASS'. Otherwise explain concisely why it does not.",
		c.Rule))
	if err != nil {
		return "", err
	}
	reply := strings.TrimSpace(verdict.String())
	if strings.HasPrefix(strings.ToUpper(reply), "PASS") {
		return "", nil
	}
	return fmt.Sprintf("rule %q violated: %s", c.Rule, reply), nil
}

// ConstrainResult carries the conforming candidate and the number of
// evaluation attempts it took.
type ConstrainResult struct {
	Value    *Value
	Attempts int
}

// ConstrainOption configures a Constrain loop.
type ConstrainOption func(*constrainConfig)

type constrainConfig struct {
	attempts int
	seed     int64
	schema   Schema
}

// WithConstrainAttempts bounds the number of enforcement attempts.
func WithConstrainAttempts(n int) ConstrainOption {
	return func(c *constrainConfig) { c.attempts = n }
}

// WithConstrainSeed fixes the seed stream for regeneration.
func WithConstrainSeed(seed int64) ConstrainOption {
	return func(c *constrainConfig) { c.seed = seed }
}

// WithConstrainSchema attaches a strict parser; each regenerated text is
// parsed back into the structured type before the next evaluation pass.
func WithConstrainSchema(s Schema) ConstrainOption {
	return func(c *constrainConfig) { c.schema = s }
}

// Constrain enforces declarative rules on a candidate value, regenerating
// it against the original task until every constraint passes or the
// attempt bound is hit. Every constraint is evaluated on every round so
// the remedy lists the complete set of violations, and the remedy always
// restates all constraints so the engine does not regress ones already
// satisfied.
func Constrain(ctx context.Context, task string, candidate *Value, constraints []Constraint, opts ...ConstrainOption) (*ConstrainResult, error) {
	cfg := constrainConfig{attempts: 3, seed: 42}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.attempts < 1 {
		cfg.attempts = 1
	}
	seeds := remedySeeds(cfg.seed, cfg.attempts)

	current := candidate
	var lastViolations []string

	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		var violations []string
		for _, c := range constraints {
			msg, err := c.Check(ctx, current)
			if err != nil {
				return nil, err
			}
			if msg != "" {
				violations = append(violations, msg)
			}
		}
		if len(violations) == 0 {
			return &ConstrainResult{Value: current, Attempts: attempt}, nil
		}
		lastViolations = violations

		capitan.Info(ctx, ConstraintAttempt,
			AttemptKey.Field(attempt),
			RetriesKey.Field(cfg.attempts),
			ViolationsKey.Field(strings.Join(violations, " | ")),
		)

		if attempt == cfg.attempts {
			break
		}

		remedy := constraintRemedy(task, current.String(), constraints, violations)
		fixed, err := current.Interpret(ctx, remedy,
			WithSeed(seeds[attempt-1]),
			WithTemperature(TemperatureZero),
		)
		if err != nil {
			return nil, err
		}
		current = reshape(fixed, cfg.schema)
	}

	capitan.Error(ctx, ConstraintFailed,
		RetriesKey.Field(cfg.attempts),
		ViolationsKey.Field(strings.Join(lastViolations, " | ")),
	)
	return nil, &ConstraintExhaustedError{Attempts: cfg.attempts, Violations: lastViolations}
}

// constraintRemedy restates the original task, the non-conforming output,
// the full constraint list and the specific violations.
func constraintRemedy(task, output string, constraints []Constraint, violations []string) string {
	var sb strings.Builder
	sb.WriteString("The output below does not satisfy its constraints. Redo the original task so every constraint holds. Return only the corrected output.\n\n")
	sb.WriteString("[ORIGINAL_TASK]\n")
	sb.WriteString(task)
	sb.WriteString("\n\n[CURRENT_OUTPUT]\n")
	sb.WriteString(output)
	sb.WriteString("\n\n[CONSTRAINTS]\n")
	for _, c := range constraints {
		sb.WriteString("- ")
		sb.WriteString(c.Describe())
		sb.WriteString("\n")
	}
	sb.WriteString("\n[VIOLATIONS]\n")
	for _, v := range violations {
		sb.WriteString("- ")
		sb.WriteString(v)
		sb.WriteString("\n")
	}
	return sb.String()
}

// reshape parses a regenerated candidate back into structured form. With
// a schema attached the strict parser is tried first; a still-invalid
// candidate keeps its best-effort structure so the next evaluation pass
// reports the remaining violations.
func reshape(v *Value, schema Schema) *Value {
	text := normalizeText(v.String())
	if schema != nil {
		instance, err := schema.Validate(text)
		if err == nil {
			return v.derive(instance)
		}
		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			return v.derive(recoverStructure(text))
		}
	}
	return v.derive(recoverStructure(text))
}

// fieldValue extracts a named field from a structured candidate. Mapping
// payloads are read directly; anything else is round-tripped through JSON
// so struct instances resolve by their wire names.
func fieldValue(v *Value, name string) (any, bool) {
	if m, ok := v.Value().(map[string]any); ok {
		val, ok := m[name]
		return val, ok
	}
	b, err := json.Marshal(v.Value())
	if err != nil {
		return nil, false
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, false
	}
	val, ok := m[name]
	return val, ok
}
