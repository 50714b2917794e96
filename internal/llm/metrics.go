package llm

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/genglossary/genglossary/internal/telemetry"
)

// llmMetrics holds lazily-initialized OTel instruments for LLM calls.
// No-op unless telemetry is enabled at startup.
var llmMetrics struct {
	calls    metric.Int64Counter
	failures metric.Int64Counter
	duration metric.Float64Histogram
}

var llmMetricsOnce sync.Once

func initLLMMetrics() {
	m := telemetry.Meter("github.com/genglossary/genglossary/llm")
	llmMetrics.calls, _ = m.Int64Counter("gg.llm.calls",
		metric.WithDescription("LLM requests issued"),
		metric.WithUnit("{call}"),
	)
	llmMetrics.failures, _ = m.Int64Counter("gg.llm.failures",
		metric.WithDescription("LLM requests that failed after retries"),
		metric.WithUnit("{call}"),
	)
	llmMetrics.duration, _ = m.Float64Histogram("gg.llm.request.duration",
		metric.WithDescription("LLM request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
}

// recordCall reports one completed LLM round trip.
func recordCall(ctx context.Context, provider, model string, start time.Time, err error) {
	llmMetricsOnce.Do(initLLMMetrics)
	attrs := metric.WithAttributes(
		attribute.String("gg.llm.provider", provider),
		attribute.String("gg.llm.model", model),
	)
	if llmMetrics.calls != nil {
		llmMetrics.calls.Add(ctx, 1, attrs)
		if err != nil {
			llmMetrics.failures.Add(ctx, 1, attrs)
		}
		llmMetrics.duration.Record(ctx, float64(time.Since(start).Milliseconds()), attrs)
	}
}
