// Package dailymed retrieves FDA drug labels (SPL documents) from the
// DailyMed registry: a two-step search then detail-fetch per drug entity.
package dailymed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/agents"
	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
	"github.com/careatlas/evidence/internal/spl"
)

// publishedAfter filters the search to recent labels only.
const publishedAfter = "2020-01-01"

type Agent struct {
	agents.Harness
	baseURL string
	client  *http.Client
}

var _ core.RetrievalAgent = (*Agent)(nil)

// Options configure the agent; Delay is the minimum spacing between
// per-entity request sequences (DailyMed tolerates ~2 req/s).
type Options struct {
	BaseURL string
	Delay   time.Duration
	Client  *http.Client
}

func New(opts Options, sink core.MetricsSink, log *zap.Logger) *Agent {
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return &Agent{
		Harness: agents.NewHarness("dailymed_retriever", models.SourceDrugLabel, opts.Delay, sink, log),
		baseURL: opts.BaseURL,
		client:  client,
	}
}

// splSummary is the slice of the search response we care about.
type splSummary struct {
	SetID     string `json:"setid"`
	Title     string `json:"title"`
	Published string `json:"published"`
	Version   string `json:"version"`
}

type searchResponse struct {
	Data []splSummary `json:"data"`
}

// Search looks up drug labels for each entity in order. A failure on one
// entity or one label is logged and skipped; the remaining work continues.
// Overall failure is returned only for an empty entity list.
func (a *Agent) Search(ctx context.Context, entities []string, maxPerEntity int) models.AgentOutcome {
	if len(entities) == 0 {
		return agents.Failure("no entities provided")
	}
	if maxPerEntity <= 0 {
		maxPerEntity = 2
	}

	traceID := a.NewTrace()
	start := time.Now()

	var results []models.SourceDocumentResult
	for _, drug := range entities {
		if err := a.Throttle(ctx); err != nil {
			break // context cancelled; report what we have
		}
		found, err := a.searchOne(ctx, drug, maxPerEntity)
		if err != nil {
			a.Log.Warn("drug search failed, skipping", zap.String("drug", drug), zap.Error(err))
			continue
		}
		results = append(results, found...)
	}

	latency := time.Since(start)
	query := joinQuery(entities)
	a.Emit(ctx, traceID, query, len(results), latency, map[string]any{
		"drugs_searched": len(entities),
		"avg_per_drug":   float64(len(results)) / float64(len(entities)),
	})

	return models.AgentOutcome{
		Success:   true,
		Results:   results,
		LatencyMS: latency.Milliseconds(),
		Metadata: map[string]any{
			"drugs_searched": len(entities),
			"labels_found":   len(results),
		},
	}
}

// searchOne runs the search step for a single drug and fetches each
// summary's full label. Per-label failures are skipped.
func (a *Agent) searchOne(ctx context.Context, drug string, maxResults int) ([]models.SourceDocumentResult, error) {
	q := url.Values{}
	q.Set("drug_name", drug)
	q.Set("published_after", publishedAfter)
	q.Set("limit", strconv.Itoa(maxResults))

	body, err := a.get(ctx, a.baseURL+"/spls.json?"+q.Encode())
	if err != nil {
		return nil, err
	}

	var resp searchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	if len(resp.Data) == 0 {
		a.Log.Info("no labels found", zap.String("drug", drug))
		return nil, nil
	}

	summaries := resp.Data
	if len(summaries) > maxResults {
		summaries = summaries[:maxResults]
	}

	var out []models.SourceDocumentResult
	for _, summary := range summaries {
		res, err := a.fetchLabel(ctx, summary, drug)
		if err != nil {
			a.Log.Warn("label fetch failed, skipping",
				zap.String("setid", summary.SetID), zap.Error(err))
			continue
		}
		out = append(out, res)
	}
	return out, nil
}

// fetchLabel downloads one label's XML and parses its sections.
func (a *Agent) fetchLabel(ctx context.Context, summary splSummary, drug string) (models.SourceDocumentResult, error) {
	if summary.SetID == "" {
		return models.SourceDocumentResult{}, fmt.Errorf("summary without setid")
	}

	body, err := a.get(ctx, fmt.Sprintf("%s/spls/%s.xml", a.baseURL, summary.SetID))
	if err != nil {
		return models.SourceDocumentResult{}, err
	}

	sections, err := spl.Parse(body, spl.SectionCodes)
	if err != nil {
		// Malformed markup is not fatal; index the label as sectionless.
		a.Log.Warn("label parse failed", zap.String("setid", summary.SetID), zap.Error(err))
		sections = map[string]string{}
	}

	return models.SourceDocumentResult{
		Source:        models.SourceDrugLabel,
		ID:            summary.SetID,
		Title:         summary.Title,
		PublishedDate: summary.Published,
		Sections:      sections,
		SearchText:    spl.SearchText(sections),
		Metadata: map[string]any{
			"drug_name":   drug,
			"spl_version": summary.Version,
		},
	}, nil
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

func joinQuery(entities []string) string {
	out := ""
	for i, e := range entities {
		if i > 0 {
			out += " | "
		}
		out += e
	}
	return out
}
