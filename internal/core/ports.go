package core

import (
	"context"

	"github.com/careatlas/evidence/internal/models"
)

// ChunkStore defines all persistence operations on the evidence-chunk
// collection. It abstracts Postgres/pgvector so higher layers never depend
// on a specific store.
type ChunkStore interface {
	// UpsertChunks writes a batch of chunks, overwriting rows whose chunk ID
	// already exists (re-ingestion must be idempotent).
	UpsertChunks(ctx context.Context, chunks []models.EvidenceChunk) error

	// SearchChunks returns the chunks most similar to the query embedding,
	// filtered to a minimum similarity and capped at limit.
	SearchChunks(ctx context.Context, queryVec []float32, minSimilarity float64, limit int) ([]models.ScoredChunk, error)

	// DeleteByURL removes every chunk ingested from the given source URL,
	// iterating in bounded pages.
	DeleteByURL(ctx context.Context, sourceURL string) (int, error)

	Close() error
}

// ObjectStore defines interactions with the raw-document bucket. Abstract so
// S3 can be replaced with MinIO, GCS, or a test fake.
type ObjectStore interface {
	List(ctx context.Context, prefix string) ([]models.RawDocument, error)
	Get(ctx context.Context, path string) ([]byte, error)
}

// Embedder converts text into a fixed-dimension vector. TaskType follows the
// embedding service's document/query distinction.
type Embedder interface {
	EmbedDocument(ctx context.Context, text string) ([]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// MetricsSink receives one retrieval-metrics record per agent search call.
// Implementations must never fail the caller.
type MetricsSink interface {
	Record(ctx context.Context, m models.RetrievalMetrics)
}

// RetrievalAgent is implemented once per external evidence source. Search
// must return an outcome rather than an error: per-entity failures are
// absorbed, and only precondition violations surface as Success=false.
type RetrievalAgent interface {
	Name() string
	Source() models.Source
	Search(ctx context.Context, entities []string, maxPerEntity int) models.AgentOutcome
}
