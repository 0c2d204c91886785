package models

import (
	"time"
)

// Source identifies which external evidence source produced a record.
type Source string

const (
	SourceGuideline  Source = "guideline"
	SourceLiterature Source = "literature"
	SourceDrugLabel  Source = "drug_label"
	SourceWeb        Source = "web"
)

// EvidenceChunk is one embedded slice of a source document, the atomic unit
// of retrieval. Chunk IDs are deterministic for a (document path, position)
// pair so re-ingestion overwrites instead of duplicating.
type EvidenceChunk struct {
	ID           string    `db:"id" json:"chunk_id"`
	Content      string    `db:"content" json:"content"`
	SearchText   string    `db:"search_text" json:"search_text"` // title-prefixed content used for retrieval
	Embedding    []float32 `db:"embedding" json:"embedding"`     // pgvector column, fixed dimension
	Title        string    `db:"title" json:"title"`
	Organization string    `db:"organization" json:"organization"`
	Year         string    `db:"year" json:"year"` // "Unknown" when not derivable
	SourceURL    string    `db:"source_url" json:"source_url"`
	Position     int       `db:"position" json:"position"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// ScoredChunk pairs a stored chunk with its similarity to a query embedding.
type ScoredChunk struct {
	EvidenceChunk
	Similarity float64 `json:"similarity"`
}

// SourceDocumentResult is the uniform record every retrieval agent produces,
// regardless of the shape of the upstream API it talks to. Produced fresh
// per query; never persisted.
type SourceDocumentResult struct {
	Source        Source            `json:"source"`
	ID            string            `json:"id"`
	Title         string            `json:"title"`
	PublishedDate string            `json:"published_date,omitempty"`
	Sections      map[string]string `json:"sections,omitempty"`
	SearchText    string            `json:"search_text"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
}

// AgentOutcome is the contract every retrieval agent returns so callers can
// treat all sources uniformly.
type AgentOutcome struct {
	Success   bool                   `json:"success"`
	Results   []SourceDocumentResult `json:"results"`
	Error     string                 `json:"error,omitempty"`
	LatencyMS int64                  `json:"latency_ms"`
	Metadata  map[string]any         `json:"metadata,omitempty"`
}

// RawDocument is one object enumerated from the raw-document bucket.
type RawDocument struct {
	Path string
	Size int64
}

// DocumentMeta is derived from a raw document's path and content before
// chunking.
type DocumentMeta struct {
	Title        string
	Organization string
	Year         string
	SourceURL    string
}

// RetrievalMetrics is the record agents emit to the metrics sink after every
// search call.
type RetrievalMetrics struct {
	TraceID     string
	AgentName   string
	Query       string
	ResultCount int
	LatencyMS   int64
	Extra       map[string]any
}
