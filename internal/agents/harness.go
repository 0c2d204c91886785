// Package agents holds the per-source retrieval agents and the harness they
// share: throttling, trace IDs, metrics emission and outcome assembly.
package agents

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

// Harness is embedded by every retrieval agent. One agent call is a single
// cooperative sequence: one in-flight request at a time, a minimum delay
// between entities so the upstream service's rate limit is respected.
// Distinct agents may still run concurrently relative to each other.
type Harness struct {
	name    string
	source  models.Source
	limiter *rate.Limiter
	sink    core.MetricsSink
	Log     *zap.Logger
}

func NewHarness(name string, source models.Source, minDelay time.Duration, sink core.MetricsSink, log *zap.Logger) Harness {
	if minDelay <= 0 {
		minDelay = 500 * time.Millisecond
	}
	return Harness{
		name:    name,
		source:  source,
		limiter: rate.NewLimiter(rate.Every(minDelay), 1),
		sink:    sink,
		Log:     log.With(zap.String("agent", name)),
	}
}

func (h *Harness) Name() string          { return h.name }
func (h *Harness) Source() models.Source { return h.source }

// Throttle blocks until the next upstream request is allowed.
func (h *Harness) Throttle(ctx context.Context) error {
	return h.limiter.Wait(ctx)
}

// NewTrace mints the trace ID tying one search call's metrics together.
func (h *Harness) NewTrace() string {
	return uuid.NewString()
}

// Emit sends one retrieval-metrics record to the sink. Best effort; the
// sink never fails the search.
func (h *Harness) Emit(ctx context.Context, traceID, query string, resultCount int, latency time.Duration, extra map[string]any) {
	if h.sink == nil {
		return
	}
	h.sink.Record(ctx, models.RetrievalMetrics{
		TraceID:     traceID,
		AgentName:   h.name,
		Query:       query,
		ResultCount: resultCount,
		LatencyMS:   latency.Milliseconds(),
		Extra:       extra,
	})
}

// Failure builds the uniform failed outcome.
func Failure(err string) models.AgentOutcome {
	return models.AgentOutcome{Success: false, Results: nil, Error: err}
}
