// Package guidelines retrieves regional treatment-guideline evidence by
// vector search over the ingested chunk collection.
package guidelines

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/agents"
	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

type Agent struct {
	agents.Harness
	store         core.ChunkStore
	embedder      core.Embedder
	minSimilarity float64
}

var _ core.RetrievalAgent = (*Agent)(nil)

type Options struct {
	MinSimilarity float64
	Delay         time.Duration
}

func New(store core.ChunkStore, embedder core.Embedder, opts Options, sink core.MetricsSink, log *zap.Logger) *Agent {
	minSim := opts.MinSimilarity
	if minSim <= 0 {
		minSim = 0.75
	}
	return &Agent{
		Harness:       agents.NewHarness("guidelines_retriever", models.SourceGuideline, opts.Delay, sink, log),
		store:         store,
		embedder:      embedder,
		minSimilarity: minSim,
	}
}

// Search embeds each query variant and collects the most similar chunks,
// deduplicated across variants. Variant failures are skipped.
func (a *Agent) Search(ctx context.Context, entities []string, maxPerEntity int) models.AgentOutcome {
	if len(entities) == 0 {
		return agents.Failure("no entities provided")
	}
	if maxPerEntity <= 0 {
		maxPerEntity = 20
	}

	traceID := a.NewTrace()
	start := time.Now()

	seen := make(map[string]bool)
	var results []models.SourceDocumentResult
	for _, variant := range entities {
		if err := a.Throttle(ctx); err != nil {
			break
		}
		vec, err := a.embedder.EmbedQuery(ctx, variant)
		if err != nil {
			a.Log.Warn("query embedding failed, skipping variant",
				zap.String("variant", variant), zap.Error(err))
			continue
		}
		chunks, err := a.store.SearchChunks(ctx, vec, a.minSimilarity, maxPerEntity)
		if err != nil {
			a.Log.Warn("vector search failed, skipping variant",
				zap.String("variant", variant), zap.Error(err))
			continue
		}
		for _, ch := range chunks {
			if seen[ch.ID] {
				continue
			}
			seen[ch.ID] = true
			results = append(results, toResult(ch))
		}
	}

	latency := time.Since(start)
	a.Emit(ctx, traceID, joinVariants(entities), len(results), latency, map[string]any{
		"variants_searched": len(entities),
	})

	return models.AgentOutcome{
		Success:   true,
		Results:   results,
		LatencyMS: latency.Milliseconds(),
		Metadata: map[string]any{
			"variants_searched": len(entities),
			"chunks_found":      len(results),
		},
	}
}

func toResult(ch models.ScoredChunk) models.SourceDocumentResult {
	return models.SourceDocumentResult{
		Source:        models.SourceGuideline,
		ID:            ch.ID,
		Title:         ch.Title,
		PublishedDate: ch.Year,
		SearchText:    ch.SearchText,
		Metadata: map[string]any{
			"organization": ch.Organization,
			"source_url":   ch.SourceURL,
			"similarity":   ch.Similarity,
		},
	}
}

func joinVariants(entities []string) string {
	out := ""
	for i, e := range entities {
		if i > 0 {
			out += " | "
		}
		out += e
	}
	return out
}
