package llm

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// FailureKind classifies a provider call failure. Each kind maps to a
// different remediation: timeouts point at the model's timeout class,
// api_error/rate_limited at backoff, language/thinking/parse kinds at the
// model's prompt variant or response handler, and the resilience kinds
// short-circuit before the provider is ever called.
type FailureKind string

const (
	FailureTimeout        FailureKind = "timeout"
	FailureAPIError       FailureKind = "api_error"
	FailureRateLimited    FailureKind = "rate_limited"
	FailureEmptyResponse  FailureKind = "empty_response"
	FailureLanguage       FailureKind = "language_mismatch"
	FailureThinkingLeak   FailureKind = "thinking_tag_leak"
	FailureParse          FailureKind = "parse_failure"
	FailureBudgetExceeded FailureKind = "budget_exceeded"
	FailureCircuitOpen    FailureKind = "circuit_open"
)

// CallError is the typed failure surfaced to the fallback orchestrator.
// Provider internals never leak bare errors across this boundary.
type CallError struct {
	Kind  FailureKind
	Model string
	Err   error
}

func (e *CallError) Error() string {
	if e == nil {
		return ""
	}
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Kind, e.Model, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Kind, e.Model)
}

func (e *CallError) Unwrap() error { return e.Err }

func NewCallError(kind FailureKind, model string, err error) *CallError {
	return &CallError{Kind: kind, Model: model, Err: err}
}

// KindOf extracts the failure kind from an error chain, defaulting to
// api_error for anything untyped.
func KindOf(err error) FailureKind {
	var ce *CallError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return FailureAPIError
}

// ClassifyTransport maps transport-level errors into the taxonomy.
func ClassifyTransport(model string, err error) *CallError {
	if err == nil {
		return nil
	}
	var ce *CallError
	if errors.As(err, &ce) {
		return ce
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewCallError(FailureTimeout, model, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewCallError(FailureTimeout, model, err)
	}
	return NewCallError(FailureAPIError, model, err)
}

// ClassifyStatus maps an upstream HTTP status into the taxonomy.
func ClassifyStatus(model string, status int, err error) *CallError {
	switch {
	case status == 429:
		return NewCallError(FailureRateLimited, model, err)
	default:
		return NewCallError(FailureAPIError, model, err)
	}
}

// Retryable reports whether the fallback orchestrator should try a mapped
// substitute for this failure. Budget and circuit denials are intentionally
// retryable: the substitute model has its own budget and circuit.
func Retryable(kind FailureKind) bool {
	switch kind {
	case FailureTimeout, FailureAPIError, FailureRateLimited, FailureEmptyResponse,
		FailureLanguage, FailureThinkingLeak, FailureParse,
		FailureBudgetExceeded, FailureCircuitOpen:
		return true
	default:
		return false
	}
}
