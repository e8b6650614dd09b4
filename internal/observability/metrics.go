package observability

import (
	"context"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline's OpenTelemetry instruments. Constructed once
// at startup; call sites go through the package-level Observe helpers, which
// are no-ops until Init has run (and in tests).
type Metrics struct {
	llmRequests        metric.Int64Counter
	llmLatency         metric.Float64Histogram
	llmTokensIn        metric.Int64Counter
	llmTokensOut       metric.Int64Counter
	circuitTransitions metric.Int64Counter
	budgetRejections   metric.Int64Counter
	jobsCompleted      metric.Int64Counter
}

var current atomic.Pointer[Metrics]

func Current() *Metrics { return current.Load() }

func newMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error
	if m.llmRequests, err = meter.Int64Counter("llm.requests",
		metric.WithDescription("LLM provider calls by model and outcome")); err != nil {
		return nil, err
	}
	if m.llmLatency, err = meter.Float64Histogram("llm.request.duration",
		metric.WithDescription("LLM provider call latency"),
		metric.WithUnit("s")); err != nil {
		return nil, err
	}
	if m.llmTokensIn, err = meter.Int64Counter("llm.tokens.input"); err != nil {
		return nil, err
	}
	if m.llmTokensOut, err = meter.Int64Counter("llm.tokens.output"); err != nil {
		return nil, err
	}
	if m.circuitTransitions, err = meter.Int64Counter("circuit.transitions",
		metric.WithDescription("Circuit breaker state transitions")); err != nil {
		return nil, err
	}
	if m.budgetRejections, err = meter.Int64Counter("budget.rejections",
		metric.WithDescription("Provider calls rejected by the daily budget")); err != nil {
		return nil, err
	}
	if m.jobsCompleted, err = meter.Int64Counter("jobs.completed",
		metric.WithDescription("Job runs finished by type and status")); err != nil {
		return nil, err
	}
	return m, nil
}

func ObserveLLMRequest(ctx context.Context, model, backend string, dur time.Duration, tokensIn, tokensOut int, success bool) {
	m := Current()
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("backend", backend),
		attribute.Bool("success", success),
	)
	m.llmRequests.Add(ctx, 1, attrs)
	m.llmLatency.Record(ctx, dur.Seconds(), attrs)
	if tokensIn > 0 {
		m.llmTokensIn.Add(ctx, int64(tokensIn), attrs)
	}
	if tokensOut > 0 {
		m.llmTokensOut.Add(ctx, int64(tokensOut), attrs)
	}
}

func ObserveCircuitTransition(ctx context.Context, service, state string) {
	m := Current()
	if m == nil {
		return
	}
	m.circuitTransitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("state", state),
	))
}

func ObserveBudgetRejection(ctx context.Context, provider string) {
	m := Current()
	if m == nil {
		return
	}
	m.budgetRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
	))
}

func ObserveJobCompleted(ctx context.Context, jobType, status string) {
	m := Current()
	if m == nil {
		return
	}
	m.jobsCompleted.Add(ctx, 1, metric.WithAttributes(
		attribute.String("job_type", jobType),
		attribute.String("status", status),
	))
}
