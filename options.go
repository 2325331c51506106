package sema

import (
	"time"

	"github.com/zoobzio/pipz"
)

// Option modifies an engine's call pipeline for reliability features.
// Options are applied at Registry.Register time, innermost first.
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// WithRetry adds retry logic to the pipeline.
// Failed requests are retried up to maxAttempts times.
func WithRetry(maxAttempts int) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRetry(pipz.NewIdentity("retry", ""), pipeline, maxAttempts)
	}
}

// WithBackoff adds retry logic with exponential backoff to the pipeline.
// The delay starts at baseDelay and doubles after each failure.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewBackoff(pipz.NewIdentity("backoff", ""), pipeline, maxAttempts, baseDelay)
	}
}

// WithTimeout adds timeout protection to the pipeline.
// Engine calls exceeding this duration are canceled.
func WithTimeout(duration time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout(pipz.NewIdentity("timeout", ""), pipeline, duration)
	}
}

// WithCircuitBreaker adds circuit breaker protection to the pipeline.
// After 'failures' consecutive failures, the circuit opens for 'recovery'.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker(pipz.NewIdentity("circuit-breaker", ""), pipeline, failures, recovery)
	}
}

// WithRateLimit adds rate limiting to the pipeline.
// rps = requests per second, burst = burst capacity.
func WithRateLimit(rps float64, burst int) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRateLimiter[*Request](pipz.NewIdentity("rate-limit", ""), rps, burst, pipeline)
	}
}

// WithErrorHandler adds error handling to the pipeline.
// The handler receives error context and can log or alert as needed.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Request]]) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewHandle(pipz.NewIdentity("error-handler", ""), pipeline, handler)
	}
}

// WithFallback adds a fallback engine for resilience.
// If the primary engine fails, the fallback is tried with the same request.
func WithFallback(fallback Engine) Option {
	return func(pipeline pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewFallback(pipz.NewIdentity("with-fallback", ""), pipeline, newTerminal(fallback))
	}
}
