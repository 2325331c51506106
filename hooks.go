package sema

import "github.com/zoobzio/capitan"

// Signals for hook events.
var (
	DispatchStarted   = capitan.NewSignal("sema.dispatch.started", "Dispatch started")
	DispatchNative    = capitan.NewSignal("sema.dispatch.native", "Dispatch resolved natively")
	DispatchSemantic  = capitan.NewSignal("sema.dispatch.semantic", "Dispatch resolved semantically")
	DispatchFailed    = capitan.NewSignal("sema.dispatch.failed", "Dispatch failed")
	EngineCallStarted = capitan.NewSignal("sema.engine.call.started", "Engine call started")
	EngineCallDone    = capitan.NewSignal("sema.engine.call.completed", "Engine call completed")
	EngineCallFailed  = capitan.NewSignal("sema.engine.call.failed", "Engine call failed")
	CorrectionAttempt = capitan.NewSignal("sema.correction.attempt", "Correction attempt")
	ValidationAttempt = capitan.NewSignal("sema.validation.attempt", "Validation attempt")
	ValidationFailed  = capitan.NewSignal("sema.validation.failed", "Validation failed")
	ConstraintAttempt = capitan.NewSignal("sema.constraint.attempt", "Constraint attempt")
	ConstraintFailed  = capitan.NewSignal("sema.constraint.failed", "Constraint failed")
	StreamChunk       = capitan.NewSignal("sema.stream.chunk", "Stream chunk received")
)

// Keys for hook event fields.
var (
	// Request identification.
	RequestIDKey  = capitan.NewStringKey("sema.request.id")
	CapabilityKey = capitan.NewStringKey("sema.capability")
	OperationKey  = capitan.NewStringKey("sema.operation")

	// Input/Output data.
	InputKey    = capitan.NewStringKey("sema.input")
	OutputKey   = capitan.NewStringKey("sema.output")
	ResponseKey = capitan.NewStringKey("sema.response")

	// Retry-loop state.
	AttemptKey    = capitan.NewIntKey("sema.attempt")
	RetriesKey    = capitan.NewIntKey("sema.retries")
	SeedKey       = capitan.NewIntKey("sema.seed")
	ViolationsKey = capitan.NewStringKey("sema.violations")

	// Error information.
	ErrorKey     = capitan.NewStringKey("sema.error")
	ErrorTypeKey = capitan.NewStringKey("sema.error.type")

	// Engine information.
	EngineKey = capitan.NewStringKey("sema.engine")
	ModelKey  = capitan.NewStringKey("sema.model")

	// Engine metrics.
	PromptTokensKey     = capitan.NewIntKey("sema.tokens.prompt")
	CompletionTokensKey = capitan.NewIntKey("sema.tokens.completion")
	TotalTokensKey      = capitan.NewIntKey("sema.tokens.total")

	// Stream state.
	ChunkIndexKey = capitan.NewIntKey("sema.chunk.index")
	ChunkCountKey = capitan.NewIntKey("sema.chunk.count")
)
