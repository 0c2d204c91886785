package app

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/agents/dailymed"
	"github.com/careatlas/evidence/internal/agents/guidelines"
	"github.com/careatlas/evidence/internal/agents/pubmed"
	"github.com/careatlas/evidence/internal/config"
	"github.com/careatlas/evidence/internal/core/chunkstore"
	"github.com/careatlas/evidence/internal/core/llm"
	"github.com/careatlas/evidence/internal/core/objectstore"
	"github.com/careatlas/evidence/internal/metrics"
	"github.com/careatlas/evidence/internal/router"
)

// App owns every client the process needs, constructed once at startup and
// passed by reference. No package-level singletons.
type App struct {
	Store    *chunkstore.Store
	Objects  *objectstore.S3Store
	Embedder *llm.GeminiEmbedder
	Selector *llm.Selector
	Router   *router.Router
	Server   *Server
	Log      *zap.Logger
}

// New validates the full configuration and builds all clients. Any
// invariant violation (disallowed model, duplicate priority rank, wrong
// primary rank, unreachable store) is fatal here, before any work starts.
func New(ctx context.Context, cfg *config.Config, log *zap.Logger) (*App, error) {
	selector, err := llm.NewSelector(llm.SelectorConfig{
		TaskModels:          cfg.TaskModels,
		ProModel:            cfg.ProModel,
		FallbackModel:       cfg.FallbackModel,
		ProForSynthesis:     cfg.ProForSynthesis,
		ProForComplex:       cfg.ProForComplex,
		ProForContradiction: cfg.ProForContradiction,
	})
	if err != nil {
		return nil, err
	}
	if !llm.AllowedModels[cfg.EmbedModel] {
		return nil, fmt.Errorf("embedding model %q is not in the allow-list", cfg.EmbedModel)
	}

	priorities, err := router.NewPriorityConfig(cfg.SourcePriorities, cfg.SourceCaps)
	if err != nil {
		return nil, err
	}

	store, err := chunkstore.New(ctx, chunkstore.Options{
		DatabaseURL: cfg.DatabaseURL,
		SslCertPath: cfg.SslCertPath,
		Table:       cfg.ChunkTable,
	})
	if err != nil {
		return nil, err
	}
	log.Info("chunk store ready")

	objects, err := objectstore.NewS3Store(ctx, objectstore.Options{
		AccessKey: cfg.AwsAccessKey,
		SecretKey: cfg.AwsSecretKey,
		Region:    cfg.AwsRegion,
		Bucket:    cfg.BucketName,
	})
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	log.Info("object store ready", zap.String("bucket", cfg.BucketName))

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim, llm.DefaultRetryPolicy)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("init embedder: %w", err)
	}

	sink := metrics.NewLogSink(log)

	rt := router.New(priorities, log)
	registrations := map[string]func() error{
		"guidelines": func() error {
			return rt.Register("guidelines", guidelines.New(store, embedder, guidelines.Options{
				MinSimilarity: cfg.MinSimilarity,
				Delay:         cfg.AgentDelay,
			}, sink, log))
		},
		"dailymed": func() error {
			return rt.Register("dailymed", dailymed.New(dailymed.Options{
				BaseURL: cfg.DailyMedBaseURL,
				Delay:   cfg.AgentDelay,
			}, sink, log))
		},
		"pubmed": func() error {
			return rt.Register("pubmed", pubmed.New(pubmed.Options{
				BaseURL: cfg.PubMedBaseURL,
				APIKey:  cfg.NCBIAPIKey,
				Delay:   cfg.AgentDelay,
			}, sink, log))
		},
	}
	for name, register := range registrations {
		if err := register(); err != nil {
			_ = embedder.Close()
			_ = store.Close()
			return nil, fmt.Errorf("register %s agent: %w", name, err)
		}
	}

	a := &App{
		Store:    store,
		Objects:  objects,
		Embedder: embedder,
		Selector: selector,
		Router:   rt,
		Log:      log,
	}
	a.Server = NewServer(cfg, a)
	return a, nil
}

func (a *App) Close() {
	if a.Embedder != nil {
		_ = a.Embedder.Close()
	}
	if a.Store != nil {
		_ = a.Store.Close()
	}
}
