package sema

import (
	"context"
	"fmt"
	"strings"

	"github.com/zoobzio/capitan"
)

// Operation is a step that consumes and produces a Value. The repair
// loops compose around Operations rather than raw engine calls so any
// transformation, backend-mediated or not, can be made self-correcting.
type Operation interface {
	Apply(ctx context.Context, v *Value) (*Value, error)
}

// Instructed is implemented by operations that carry a user instruction.
// The correction loop includes it in the diagnostic payload so the engine
// sees what the operation was originally asked to do.
type Instructed interface {
	Instruction() string
}

// Constrained is implemented by operations that declare constraints. The
// correction loop restates them when asking for a fix.
type Constrained interface {
	Constraints() []Constraint
}

// OpFunc adapts a function to the Operation interface.
type OpFunc func(ctx context.Context, v *Value) (*Value, error)

func (f OpFunc) Apply(ctx context.Context, v *Value) (*Value, error) { return f(ctx, v) }

// op is the standard Operation carrier: a function plus the instruction
// and constraints the repair loops read back out.
type op struct {
	instruction string
	constraints []Constraint
	fn          OpFunc
}

func (o *op) Apply(ctx context.Context, v *Value) (*Value, error) { return o.fn(ctx, v) }
func (o *op) Instruction() string                                 { return o.instruction }
func (o *op) Constraints() []Constraint                           { return o.constraints }

// NewOperation bundles a function with its instruction and declared
// constraints so the repair loops can build meaningful remedies.
func NewOperation(instruction string, fn OpFunc, constraints ...Constraint) Operation {
	return &op{instruction: instruction, constraints: constraints, fn: fn}
}

// Try runs an operation with bounded self-correction. On failure it asks
// the engine what went wrong, asks for a corrected input given that
// analysis, and retries with the corrected value. After retries
// corrective rounds the first failure is returned unchanged, so callers
// always see the true error rather than a repair artifact.
//
// retries of 0 means a single attempt with no correction.
func Try(ctx context.Context, operation Operation, input *Value, retries int) (*Value, error) {
	var firstErr error
	candidate := input
	lastOutput := input.String()

	for attempt := 0; ; attempt++ {
		out, err := operation.Apply(ctx, candidate)
		if err == nil {
			return out, nil
		}
		if out != nil {
			lastOutput = out.String()
		}
		if firstErr == nil {
			firstErr = err
		}
		if attempt >= retries {
			return nil, firstErr
		}

		capitan.Info(ctx, CorrectionAttempt,
			AttemptKey.Field(attempt+1),
			RetriesKey.Field(retries),
			ErrorKey.Field(err.Error()),
			ErrorTypeKey.Field(fmt.Sprintf("%T", err)),
		)

		analysis, aerr := candidate.Analyze(ctx, err, "What is the issue in the given expression?")
		if aerr != nil {
			return nil, aerr
		}

		payload := correctionPayload(operation, input, lastOutput, analysis.String())
		corrected, cerr := candidate.Correct(ctx,
			"Correct the original data so the described issue no longer occurs. Return only the corrected result.",
			payload)
		if cerr != nil {
			return nil, cerr
		}
		candidate = corrected
	}
}

// correctionPayload assembles the diagnostic context handed to the engine
// on a corrective round: the operation's instruction if it exposes one,
// the original input, the last output produced before the failure, the
// failure analysis, and any declared constraints.
func correctionPayload(operation Operation, input *Value, lastOutput, analysis string) string {
	var sb strings.Builder
	if in, ok := operation.(Instructed); ok && in.Instruction() != "" {
		sb.WriteString("[ORIGINAL_USER_PROMPT]\n")
		sb.WriteString(in.Instruction())
		sb.WriteString("\n\n")
	}
	sb.WriteString("[ORIGINAL_USER_DATA]\n")
	sb.WriteString(input.String())
	sb.WriteString("\n\n[ORIGINAL_GENERATED_OUTPUT]\n")
	sb.WriteString(lastOutput)
	sb.WriteString("\n\n[ANALYSIS]\n")
	sb.WriteString(analysis)
	if con, ok := operation.(Constrained); ok && len(con.Constraints()) > 0 {
		sb.WriteString("\n\n[CONSTRAINTS]\n")
		for _, c := range con.Constraints() {
			sb.WriteString("- ")
			sb.WriteString(c.Describe())
			sb.WriteString("\n")
		}
	}
	return sb.String()
}
