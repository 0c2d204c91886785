package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/models"
)

type fakeObjects struct {
	docs     []models.RawDocument
	contents map[string][]byte
	getOrder []string
	listErr  error
}

func (f *fakeObjects) List(_ context.Context, _ string) ([]models.RawDocument, error) {
	return f.docs, f.listErr
}

func (f *fakeObjects) Get(_ context.Context, path string) ([]byte, error) {
	f.getOrder = append(f.getOrder, path)
	raw, ok := f.contents[path]
	if !ok {
		return nil, errors.New("object not found")
	}
	return raw, nil
}

type fakeEmbedder struct {
	calls    int
	failCall int // 1-based call number to fail, 0 never fails
}

func (f *fakeEmbedder) EmbedDocument(_ context.Context, _ string) ([]float32, error) {
	f.calls++
	if f.failCall != 0 && f.calls == f.failCall {
		return nil, errors.New("embedding quota exceeded")
	}
	return []float32{0.5, 0.5}, nil
}

func (f *fakeEmbedder) EmbedQuery(_ context.Context, _ string) ([]float32, error) {
	return nil, errors.New("not used")
}

type fakeStore struct {
	batches [][]models.EvidenceChunk
	failAll bool
}

func (f *fakeStore) UpsertChunks(_ context.Context, chunks []models.EvidenceChunk) error {
	if f.failAll {
		return errors.New("store unavailable")
	}
	batch := make([]models.EvidenceChunk, len(chunks))
	copy(batch, chunks)
	f.batches = append(f.batches, batch)
	return nil
}

func (f *fakeStore) SearchChunks(_ context.Context, _ []float32, _ float64, _ int) ([]models.ScoredChunk, error) {
	return nil, errors.New("not used")
}
func (f *fakeStore) DeleteByURL(_ context.Context, _ string) (int, error) { return 0, nil }
func (f *fakeStore) Close() error                                         { return nil }

func (f *fakeStore) all() []models.EvidenceChunk {
	var out []models.EvidenceChunk
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

func jsonDoc(text string) []byte {
	return []byte(fmt.Sprintf(`{"text":%q}`, text))
}

func urlFor(path string) string { return "https://bucket.example.com/" + path }

func newPipeline(objects *fakeObjects, store *fakeStore, emb *fakeEmbedder, cfg Config) *Pipeline {
	return New(objects, store, emb, urlFor, cfg, zap.NewNop())
}

// fiveChunkText yields exactly five uniform windows with size 200, overlap 40.
func fiveChunkText() string {
	return strings.Repeat("x", 840)
}

func TestRunWritesChunksWithMetadata(t *testing.T) {
	objects := &fakeObjects{
		docs: []models.RawDocument{{Path: "guidelines/ICMR_Diabetes_2018.json"}},
		contents: map[string][]byte{
			"guidelines/ICMR_Diabetes_2018.json": jsonDoc(strings.Repeat("Blood glucose targets should be individualized. ", 10)),
		},
	}
	store := &fakeStore{}

	p := newPipeline(objects, store, &fakeEmbedder{}, Config{ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 100})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocsProcessed)
	assert.Zero(t, report.DocsSkipped)
	assert.Zero(t, report.ChunksFailed)

	chunks := store.all()
	require.NotEmpty(t, chunks)
	assert.Equal(t, report.ChunksWritten, len(chunks))

	first := chunks[0]
	assert.Equal(t, chunkID("guidelines/ICMR_Diabetes_2018.json", 0), first.ID)
	assert.Equal(t, "ICMR", first.Organization)
	assert.Equal(t, "2018", first.Year)
	assert.Equal(t, "ICMR_Diabetes_2018", first.Title)
	assert.Equal(t, "https://bucket.example.com/guidelines/ICMR_Diabetes_2018.json", first.SourceURL)
	assert.Equal(t, 0, first.Position)
	assert.True(t, strings.HasPrefix(first.SearchText, "Title: ICMR_Diabetes_2018\nContent: "))
	assert.Equal(t, []float32{0.5, 0.5}, first.Embedding)
}

func TestRunDropsChunkOnEmbeddingFailure(t *testing.T) {
	objects := &fakeObjects{
		docs:     []models.RawDocument{{Path: "guidelines/doc.json"}},
		contents: map[string][]byte{"guidelines/doc.json": jsonDoc(fiveChunkText())},
	}
	store := &fakeStore{}
	emb := &fakeEmbedder{failCall: 3}

	p := newPipeline(objects, store, emb, Config{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 100})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	// One chunk of five fails to embed; the document still completes.
	assert.Equal(t, 1, report.DocsProcessed)
	assert.Equal(t, 4, report.ChunksWritten)
	assert.Equal(t, 1, report.ChunksFailed)

	positions := make([]int, 0, 4)
	for _, c := range store.all() {
		positions = append(positions, c.Position)
	}
	assert.Equal(t, []int{0, 1, 3, 4}, positions)
}

func TestRunFlushesInBatches(t *testing.T) {
	objects := &fakeObjects{
		docs:     []models.RawDocument{{Path: "guidelines/doc.json"}},
		contents: map[string][]byte{"guidelines/doc.json": jsonDoc(fiveChunkText())},
	}
	store := &fakeStore{}

	p := newPipeline(objects, store, &fakeEmbedder{}, Config{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 2})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.ChunksWritten)
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[0], 2)
	assert.Len(t, store.batches[1], 2)
	assert.Len(t, store.batches[2], 1)
}

func TestRunProcessesInPriorityOrder(t *testing.T) {
	text := jsonDoc(strings.Repeat("Relevant clinical guidance for practitioners. ", 5))
	objects := &fakeObjects{
		docs: []models.RawDocument{
			{Path: "misc/random.json"},
			{Path: "guidelines/ICMR_guide.json"},
			{Path: "guidelines/diabetes_protocol.json"},
		},
		contents: map[string][]byte{
			"misc/random.json":                  text,
			"guidelines/ICMR_guide.json":        text,
			"guidelines/diabetes_protocol.json": text,
		},
	}
	store := &fakeStore{}

	p := newPipeline(objects, store, &fakeEmbedder{}, Config{TargetCondition: "diabetes", ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 100})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{
		"guidelines/diabetes_protocol.json",
		"guidelines/ICMR_guide.json",
		"misc/random.json",
	}, objects.getOrder)
}

func TestRunSkipsDocumentWithoutText(t *testing.T) {
	objects := &fakeObjects{
		docs: []models.RawDocument{
			{Path: "guidelines/empty.json"},
			{Path: "guidelines/good.json"},
		},
		contents: map[string][]byte{
			"guidelines/empty.json": []byte(`{"pages": 12}`),
			"guidelines/good.json":  jsonDoc(strings.Repeat("Usable guideline content for the index. ", 5)),
		},
	}
	store := &fakeStore{}

	p := newPipeline(objects, store, &fakeEmbedder{}, Config{ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 100})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, report.DocsProcessed)
	assert.Equal(t, 1, report.DocsSkipped)
	assert.NotEmpty(t, store.all())
}

func TestRunSkipsMalformedJSON(t *testing.T) {
	objects := &fakeObjects{
		docs:     []models.RawDocument{{Path: "guidelines/broken.json"}},
		contents: map[string][]byte{"guidelines/broken.json": []byte(`{"text": `)},
	}
	store := &fakeStore{}

	p := newPipeline(objects, store, &fakeEmbedder{}, Config{ChunkSize: 1000, ChunkOverlap: 100, BatchSize: 100})
	report, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Zero(t, report.DocsProcessed)
	assert.Equal(t, 1, report.DocsSkipped)
}

func TestRunEmptyBucket(t *testing.T) {
	p := newPipeline(&fakeObjects{}, &fakeStore{}, &fakeEmbedder{}, Config{})
	report, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.DocsProcessed)
	assert.Zero(t, report.ChunksWritten)
}

func TestRunAbortsOnListFailure(t *testing.T) {
	objects := &fakeObjects{listErr: errors.New("bucket unreachable")}
	p := newPipeline(objects, &fakeStore{}, &fakeEmbedder{}, Config{})
	_, err := p.Run(context.Background())
	require.Error(t, err)
}

func TestRunStableChunkIDsAcrossRuns(t *testing.T) {
	newObjects := func() *fakeObjects {
		return &fakeObjects{
			docs:     []models.RawDocument{{Path: "guidelines/doc.json"}},
			contents: map[string][]byte{"guidelines/doc.json": jsonDoc(fiveChunkText())},
		}
	}

	first := &fakeStore{}
	p := newPipeline(newObjects(), first, &fakeEmbedder{}, Config{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 100})
	_, err := p.Run(context.Background())
	require.NoError(t, err)

	second := &fakeStore{}
	p = newPipeline(newObjects(), second, &fakeEmbedder{}, Config{ChunkSize: 200, ChunkOverlap: 40, BatchSize: 100})
	_, err = p.Run(context.Background())
	require.NoError(t, err)

	require.Equal(t, len(first.all()), len(second.all()))
	for i := range first.all() {
		assert.Equal(t, first.all()[i].ID, second.all()[i].ID)
	}
}

func TestReportString(t *testing.T) {
	r := Report{DocsProcessed: 3, DocsSkipped: 1, ChunksWritten: 40, ChunksFailed: 2}
	assert.Equal(t, "3 documents processed (1 skipped), 40 chunks written (2 failed)", r.String())
}
