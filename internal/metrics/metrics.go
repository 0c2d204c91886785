// Package metrics emits per-search retrieval records.
package metrics

import (
	"context"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

// LogSink records retrieval metrics as structured log lines. It is the
// default sink; a tracing backend can replace it behind the same interface.
type LogSink struct {
	log *zap.Logger
}

var _ core.MetricsSink = (*LogSink)(nil)

func NewLogSink(log *zap.Logger) *LogSink {
	return &LogSink{log: log}
}

func (s *LogSink) Record(_ context.Context, m models.RetrievalMetrics) {
	fields := []zap.Field{
		zap.String("trace_id", m.TraceID),
		zap.String("agent", m.AgentName),
		zap.String("query", m.Query),
		zap.Int("result_count", m.ResultCount),
		zap.Int64("latency_ms", m.LatencyMS),
	}
	for k, v := range m.Extra {
		fields = append(fields, zap.Any(k, v))
	}
	s.log.Info("retrieval metrics", fields...)
}
