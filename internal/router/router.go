// Package router holds the static ranking of evidence sources and merges
// multi-agent outcomes in priority order.
package router

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/careatlas/evidence/internal/core"
	"github.com/careatlas/evidence/internal/models"
)

// PrimarySource is the source that must hold rank 1: regional guidelines
// outrank every other evidence class.
const PrimarySource = "guidelines"

// PriorityConfig is the ordered, injective source → rank mapping plus the
// per-source result caps. Immutable after validated construction.
type PriorityConfig struct {
	ranks map[string]int
	caps  map[string]int
}

// NewPriorityConfig validates the invariants: ranks unique, primary source
// present with rank 1. Violations are startup-fatal for callers.
func NewPriorityConfig(ranks, caps map[string]int) (*PriorityConfig, error) {
	if len(ranks) == 0 {
		return nil, fmt.Errorf("router: no source priorities configured")
	}
	byRank := make(map[int]string, len(ranks))
	for source, rank := range ranks {
		if other, dup := byRank[rank]; dup {
			return nil, fmt.Errorf("router: duplicate priority rank %d for %q and %q", rank, other, source)
		}
		byRank[rank] = source
	}
	primary, ok := ranks[PrimarySource]
	if !ok {
		return nil, fmt.Errorf("router: primary source %q has no priority rank", PrimarySource)
	}
	if primary != 1 {
		return nil, fmt.Errorf("router: primary source %q must have rank 1, got %d", PrimarySource, primary)
	}

	rc := make(map[string]int, len(ranks))
	for k, v := range ranks {
		rc[k] = v
	}
	cc := make(map[string]int, len(caps))
	for k, v := range caps {
		cc[k] = v
	}
	return &PriorityConfig{ranks: rc, caps: cc}, nil
}

// Rank returns a source's priority rank; unknown sources sort last.
func (p *PriorityConfig) Rank(source string) int {
	if r, ok := p.ranks[source]; ok {
		return r
	}
	return len(p.ranks) + 1
}

// Cap returns a source's result cap; 0 means uncapped.
func (p *PriorityConfig) Cap(source string) int {
	return p.caps[source]
}

// SourceOutcome pairs one agent's outcome with its source name and rank.
type SourceOutcome struct {
	SourceName string              `json:"source"`
	Rank       int                 `json:"rank"`
	Outcome    models.AgentOutcome `json:"outcome"`
}

// Router fans a query out across the registered agents and merges their
// outcomes by source priority.
type Router struct {
	cfg    *PriorityConfig
	agents map[string]core.RetrievalAgent
	log    *zap.Logger
}

func New(cfg *PriorityConfig, log *zap.Logger) *Router {
	return &Router{cfg: cfg, agents: make(map[string]core.RetrievalAgent), log: log}
}

// Register binds an agent to a source name. The name must carry a
// configured priority rank.
func (r *Router) Register(sourceName string, agent core.RetrievalAgent) error {
	if _, ok := r.cfg.ranks[sourceName]; !ok {
		return fmt.Errorf("router: source %q has no priority rank", sourceName)
	}
	r.agents[sourceName] = agent
	return nil
}

// Run queries every registered agent concurrently (each agent is itself a
// single throttled sequence) and returns the outcomes ordered by rank with
// per-source caps applied. One agent's failure never hides the others.
func (r *Router) Run(ctx context.Context, entities []string) []SourceOutcome {
	var (
		mu       sync.Mutex
		outcomes []SourceOutcome
	)

	g, gctx := errgroup.WithContext(ctx)
	for name, agent := range r.agents {
		g.Go(func() error {
			outcome := agent.Search(gctx, entities, r.cfg.Cap(name))
			if !outcome.Success {
				r.log.Warn("agent returned failure",
					zap.String("source", name), zap.String("error", outcome.Error))
			}
			mu.Lock()
			outcomes = append(outcomes, SourceOutcome{
				SourceName: name,
				Rank:       r.cfg.Rank(name),
				Outcome:    outcome,
			})
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait() // agents report failure via outcomes, never via error

	return r.Merge(outcomes)
}

// Merge orders outcomes by rank and truncates each source's results to its
// cap. Exposed separately so callers holding pre-computed outcomes can
// reuse the ordering rules.
func (r *Router) Merge(outcomes []SourceOutcome) []SourceOutcome {
	sort.SliceStable(outcomes, func(i, j int) bool {
		return outcomes[i].Rank < outcomes[j].Rank
	})
	for i := range outcomes {
		limit := r.cfg.Cap(outcomes[i].SourceName)
		if limit > 0 && len(outcomes[i].Outcome.Results) > limit {
			outcomes[i].Outcome.Results = outcomes[i].Outcome.Results[:limit]
		}
	}
	return outcomes
}
