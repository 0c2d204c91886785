// Package pubmed retrieves literature records through the NCBI E-utilities:
// an esearch step to resolve PMIDs per query entity, then one esummary
// fetch for the batch.
package pubmed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/agents"
	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

// minDate restricts esearch to recent publications.
const minDate = "2020"

type Agent struct {
	agents.Harness
	baseURL string
	apiKey  string
	client  *http.Client
}

var _ core.RetrievalAgent = (*Agent)(nil)

type Options struct {
	BaseURL string
	APIKey  string // optional; raises NCBI's rate limit from 3 to 10 req/s
	Delay   time.Duration
	Client  *http.Client
}

func New(opts Options, sink core.MetricsSink, log *zap.Logger) *Agent {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Agent{
		Harness: agents.NewHarness("pubmed_retriever", models.SourceLiterature, opts.Delay, sink, log),
		baseURL: opts.BaseURL,
		apiKey:  opts.APIKey,
		client:  client,
	}
}

type esearchResponse struct {
	Result struct {
		IDList []string `json:"idlist"`
	} `json:"esearchresult"`
}

type summaryRecord struct {
	Title           string `json:"title"`
	PubDate         string `json:"pubdate"`
	FullJournalName string `json:"fulljournalname"`
	Authors         []struct {
		Name string `json:"name"`
	} `json:"authors"`
}

// Search resolves PMIDs for each entity and fetches their summaries. Failed
// entities are skipped; only an empty entity list fails the whole call.
func (a *Agent) Search(ctx context.Context, entities []string, maxPerEntity int) models.AgentOutcome {
	if len(entities) == 0 {
		return agents.Failure("no entities provided")
	}
	if maxPerEntity <= 0 {
		maxPerEntity = 5
	}

	traceID := a.NewTrace()
	start := time.Now()

	var results []models.SourceDocumentResult
	for _, term := range entities {
		if err := a.Throttle(ctx); err != nil {
			break
		}
		found, err := a.searchOne(ctx, term, maxPerEntity)
		if err != nil {
			a.Log.Warn("term search failed, skipping", zap.String("term", term), zap.Error(err))
			continue
		}
		results = append(results, found...)
	}

	latency := time.Since(start)
	a.Emit(ctx, traceID, strings.Join(entities, " | "), len(results), latency, map[string]any{
		"terms_searched": len(entities),
	})

	return models.AgentOutcome{
		Success:   true,
		Results:   results,
		LatencyMS: latency.Milliseconds(),
		Metadata: map[string]any{
			"terms_searched": len(entities),
			"records_found":  len(results),
		},
	}
}

func (a *Agent) searchOne(ctx context.Context, term string, maxResults int) ([]models.SourceDocumentResult, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("term", term)
	q.Set("retmode", "json")
	q.Set("retmax", strconv.Itoa(maxResults))
	q.Set("datetype", "pdat")
	q.Set("mindate", minDate)
	if a.apiKey != "" {
		q.Set("api_key", a.apiKey)
	}

	body, err := a.get(ctx, a.baseURL+"/esearch.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var search esearchResponse
	if err := json.Unmarshal(body, &search); err != nil {
		return nil, fmt.Errorf("decode esearch response: %w", err)
	}
	if len(search.Result.IDList) == 0 {
		return nil, nil
	}

	return a.fetchSummaries(ctx, term, search.Result.IDList)
}

func (a *Agent) fetchSummaries(ctx context.Context, term string, pmids []string) ([]models.SourceDocumentResult, error) {
	q := url.Values{}
	q.Set("db", "pubmed")
	q.Set("id", strings.Join(pmids, ","))
	q.Set("retmode", "json")
	if a.apiKey != "" {
		q.Set("api_key", a.apiKey)
	}

	body, err := a.get(ctx, a.baseURL+"/esummary.fcgi?"+q.Encode())
	if err != nil {
		return nil, err
	}

	// The summary result maps each PMID to its record alongside a "uids"
	// index, so decode into raw messages and pick records per PMID.
	var envelope struct {
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode esummary response: %w", err)
	}

	var out []models.SourceDocumentResult
	for _, pmid := range pmids {
		raw, ok := envelope.Result[pmid]
		if !ok {
			continue
		}
		var rec summaryRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			a.Log.Warn("summary decode failed, skipping", zap.String("pmid", pmid), zap.Error(err))
			continue
		}
		out = append(out, models.SourceDocumentResult{
			Source:        models.SourceLiterature,
			ID:            pmid,
			Title:         rec.Title,
			PublishedDate: rec.PubDate,
			SearchText:    searchText(rec),
			Metadata: map[string]any{
				"term":    term,
				"journal": rec.FullJournalName,
			},
		})
	}
	return out, nil
}

func searchText(rec summaryRecord) string {
	parts := []string{rec.Title}
	if rec.FullJournalName != "" {
		parts = append(parts, rec.FullJournalName)
	}
	if rec.PubDate != "" {
		parts = append(parts, rec.PubDate)
	}
	var authors []string
	for _, au := range rec.Authors {
		authors = append(authors, au.Name)
	}
	if len(authors) > 0 {
		parts = append(parts, strings.Join(authors, ", "))
	}
	return strings.Join(parts, "\n")
}

func (a *Agent) get(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d from %s", resp.StatusCode, rawURL)
	}
	return io.ReadAll(resp.Body)
}
