package sema

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"strings"
	"unicode"

	"github.com/zoobzio/capitan"
)

// ValidationResult carries the first candidate that satisfied the schema
// and the number of validation attempts it took to get there.
type ValidationResult struct {
	Instance any    // the parsed, schema-typed instance
	Text     string // the normalized text the instance was parsed from
	Attempts int    // attempts consumed, 1 = first candidate was valid
}

// ValidateOption configures a Validate loop.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	attempts int
	seed     int64
}

// WithValidateAttempts bounds the number of validation attempts.
func WithValidateAttempts(n int) ValidateOption {
	return func(c *validateConfig) { c.attempts = n }
}

// WithValidateSeed fixes the seed stream for remedy regeneration, making
// the repair sequence reproducible.
func WithValidateSeed(seed int64) ValidateOption {
	return func(c *validateConfig) { c.seed = seed }
}

// Validate forces a candidate value to parse against a schema, asking the
// engine to repair the text on each failed attempt. Each remedy round
// regenerates with its own seed drawn from a deterministic stream, so a
// fixed seed replays the same repair sequence.
//
// Only *ValidationError failures are retried. Any other parse error
// signals an unexpected response shape and propagates immediately.
func Validate(ctx context.Context, candidate *Value, schema Schema, opts ...ValidateOption) (*ValidationResult, error) {
	cfg := validateConfig{attempts: 5, seed: 42}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.attempts < 1 {
		cfg.attempts = 1
	}
	seeds := remedySeeds(cfg.seed, cfg.attempts)

	current := candidate
	var lastViolations []Violation

	for attempt := 1; attempt <= cfg.attempts; attempt++ {
		text, err := normalizeCandidate(current, schema)
		if err != nil {
			return nil, err
		}

		instance, err := schema.Validate(text)
		if err == nil {
			return &ValidationResult{Instance: instance, Text: text, Attempts: attempt}, nil
		}

		var vErr *ValidationError
		if !errors.As(err, &vErr) {
			return nil, &UnexpectedResponseShapeError{Err: err}
		}
		lastViolations = vErr.Violations

		capitan.Info(ctx, ValidationAttempt,
			AttemptKey.Field(attempt),
			RetriesKey.Field(cfg.attempts),
			SeedKey.Field(int(seeds[attempt-1])),
			ViolationsKey.Field(renderViolations(lastViolations)),
		)

		if attempt == cfg.attempts {
			break
		}

		remedy := remedyPrompt(text, lastViolations, schema.Describe())
		fixed, rerr := current.Interpret(ctx, remedy,
			WithSeed(seeds[attempt-1]),
			WithTemperature(TemperatureZero),
		)
		if rerr != nil {
			return nil, rerr
		}
		current = fixed
	}

	capitan.Error(ctx, ValidationFailed,
		RetriesKey.Field(cfg.attempts),
		ViolationsKey.Field(renderViolations(lastViolations)),
	)
	return nil, &ValidationExhaustedError{Attempts: cfg.attempts, Violations: lastViolations}
}

// normalizeCandidate renders the current candidate as text ready for
// strict parsing: mappings serialize to JSON, schema-typed instances go
// through the schema's canonical serializer, and raw text is stripped of
// non-printable characters and a leading literal "json" marker.
func normalizeCandidate(candidate *Value, schema Schema) (string, error) {
	switch p := candidate.Value().(type) {
	case string:
		return normalizeText(p), nil
	case []byte:
		return normalizeText(string(p)), nil
	case map[string]any, []any:
		b, err := json.Marshal(p)
		if err != nil {
			return "", err
		}
		return string(b), nil
	case nil:
		return "", nil
	default:
		return schema.Serialize(p)
	}
}

func normalizeText(text string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == '\n' || r == '\t' {
			return r
		}
		return -1
	}, text)
	cleaned = strings.TrimSpace(cleaned)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)
	if rest, ok := strings.CutPrefix(cleaned, "json"); ok {
		cleaned = strings.TrimSpace(rest)
	}
	return cleaned
}

// renderViolations lists every violation, one per line, so the engine and
// the final error show the full picture rather than the first mismatch.
func renderViolations(violations []Violation) string {
	lines := make([]string, len(violations))
	for i, v := range violations {
		lines[i] = v.String()
	}
	return strings.Join(lines, "\n")
}

func remedyPrompt(invalid string, violations []Violation, schemaDoc string) string {
	var sb strings.Builder
	sb.WriteString("The generated output does not conform to the required schema. ")
	sb.WriteString("Fix every listed violation and return only the corrected JSON, with no commentary.\n\n")
	sb.WriteString("[INVALID_OUTPUT]\n")
	sb.WriteString(invalid)
	sb.WriteString("\n\n[VALIDATION_ERRORS]\n")
	sb.WriteString(renderViolations(violations))
	sb.WriteString("\n\n[SCHEMA]\n")
	sb.WriteString(schemaDoc)
	return sb.String()
}

// remedySeeds derives one seed per attempt from a deterministic stream.
func remedySeeds(seed int64, n int) []int64 {
	rng := rand.New(rand.NewPCG(uint64(seed), uint64(n)))
	seeds := make([]int64, n)
	for i := range seeds {
		seeds[i] = rng.Int64()
	}
	return seeds
}
