// Package ingest turns raw guideline documents from the object store into
// embedded, searchable chunks in the chunk store.
package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
	"github.com/careatlas/evidence/internal/textchunk"
)

// Config tunes one ingestion run.
//
// ChunkSize/ChunkOverlap: character window for the text chunker.
// BatchSize:              chunks staged per store write.
// BatchPause:             pause between batch flushes, respecting the
//
//	store's write-rate limits.
type Config struct {
	Prefix          string
	TargetCondition string
	ChunkSize       int
	ChunkOverlap    int
	BatchSize       int
	BatchPause      time.Duration
}

// Report is the end-of-run tally. Batch operations always finish with a
// tally instead of aborting on the first item failure.
type Report struct {
	DocsProcessed int
	DocsSkipped   int
	ChunksWritten int
	ChunksFailed  int
}

func (r Report) String() string {
	return fmt.Sprintf("%d documents processed (%d skipped), %d chunks written (%d failed)",
		r.DocsProcessed, r.DocsSkipped, r.ChunksWritten, r.ChunksFailed)
}

// URLFunc maps an object path to its public source URL.
type URLFunc func(path string) string

// Pipeline wires the object store, chunker, embedder and chunk store into
// the offline batch ingestion flow. Single-writer: concurrent runs against
// the same documents are the caller's responsibility.
type Pipeline struct {
	objects  core.ObjectStore
	store    core.ChunkStore
	embedder core.Embedder
	urlFor   URLFunc
	cfg      Config
	log      *zap.Logger

	staged []models.EvidenceChunk
}

func New(objects core.ObjectStore, store core.ChunkStore, embedder core.Embedder, urlFor URLFunc, cfg Config, log *zap.Logger) *Pipeline {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 {
		cfg.ChunkOverlap = 0
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	return &Pipeline{
		objects:  objects,
		store:    store,
		embedder: embedder,
		urlFor:   urlFor,
		cfg:      cfg,
		log:      log,
	}
}

// Run enumerates the bucket, processes documents in priority order, and
// returns the final tally. Individual document and chunk failures are
// logged, counted and skipped; only enumeration failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (Report, error) {
	var report Report

	docs, err := p.objects.List(ctx, p.cfg.Prefix)
	if err != nil {
		return report, fmt.Errorf("ingest: list documents: %w", err)
	}
	if len(docs) == 0 {
		p.log.Warn("no documents found under prefix", zap.String("prefix", p.cfg.Prefix))
		return report, nil
	}

	ordered := prioritize(docs, p.cfg.TargetCondition)
	p.log.Info("starting ingestion",
		zap.Int("documents", len(ordered)),
		zap.String("target_condition", p.cfg.TargetCondition))

	for _, doc := range ordered {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if err := p.processOne(ctx, doc, &report); err != nil {
			p.log.Warn("document skipped", zap.String("path", doc.Path), zap.Error(err))
			report.DocsSkipped++
			continue
		}
		report.DocsProcessed++
	}

	// Final partial batch.
	if err := p.flush(ctx, &report); err != nil {
		return report, err
	}

	p.log.Info("ingestion finished", zap.String("tally", report.String()))
	return report, nil
}

// processOne extracts a document's text, chunks it, embeds each chunk and
// stages the writes. A chunk whose embedding permanently fails is dropped
// and counted; it never blocks the rest of the document.
func (p *Pipeline) processOne(ctx context.Context, doc models.RawDocument, report *Report) error {
	raw, err := p.objects.Get(ctx, doc.Path)
	if err != nil {
		return fmt.Errorf("download: %w", err)
	}

	text, err := extractText(doc.Path, raw)
	if err != nil {
		return err
	}

	meta := extractMeta(doc.Path, p.urlFor(doc.Path))
	chunks, err := textchunk.Split(text, p.cfg.ChunkSize, p.cfg.ChunkOverlap)
	if err != nil {
		return fmt.Errorf("chunk: %w", err)
	}
	p.log.Info("document chunked",
		zap.String("path", doc.Path),
		zap.String("organization", meta.Organization),
		zap.Int("chunks", len(chunks)))

	for i, content := range chunks {
		embedding, err := p.embedder.EmbedDocument(ctx, content)
		if err != nil {
			p.log.Warn("embedding failed, dropping chunk",
				zap.String("path", doc.Path), zap.Int("position", i), zap.Error(err))
			report.ChunksFailed++
			continue
		}

		p.staged = append(p.staged, models.EvidenceChunk{
			ID:           chunkID(doc.Path, i),
			Content:      content,
			SearchText:   fmt.Sprintf("Title: %s\nContent: %s", meta.Title, content),
			Embedding:    embedding,
			Title:        meta.Title,
			Organization: meta.Organization,
			Year:         meta.Year,
			SourceURL:    meta.SourceURL,
			Position:     i,
		})

		if len(p.staged) >= p.cfg.BatchSize {
			if err := p.flush(ctx, report); err != nil {
				return err
			}
			// Deliberate pause between batch commits: trades throughput
			// for the chunk store's write-rate limit.
			if p.cfg.BatchPause > 0 {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(p.cfg.BatchPause):
				}
			}
		}
	}

	return nil
}

func (p *Pipeline) flush(ctx context.Context, report *Report) error {
	if len(p.staged) == 0 {
		return nil
	}
	if err := p.store.UpsertChunks(ctx, p.staged); err != nil {
		return fmt.Errorf("ingest: write batch of %d: %w", len(p.staged), err)
	}
	report.ChunksWritten += len(p.staged)
	p.staged = p.staged[:0]
	return nil
}

// extractText pulls the full text out of a raw document. JSON objects carry
// a top-level "text" field (document-AI output); other formats fall back to
// docconv extraction.
func extractText(path string, raw []byte) (string, error) {
	if strings.HasSuffix(strings.ToLower(path), ".json") {
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &payload); err != nil {
			return "", fmt.Errorf("parse json: %w", err)
		}
		if payload.Text == "" {
			return "", fmt.Errorf("no text field in document")
		}
		return payload.Text, nil
	}

	mime := docconv.MimeTypeByExtension(path)
	res, err := docconv.Convert(bytes.NewReader(raw), mime, true)
	if err != nil {
		return "", fmt.Errorf("docconv extract: %w", err)
	}
	if strings.TrimSpace(res.Body) == "" {
		return "", fmt.Errorf("no extractable text")
	}
	return res.Body, nil
}
