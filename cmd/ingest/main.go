// Command ingest runs the offline batch pipeline: it enumerates raw
// guideline documents in the object store, chunks and embeds them, and
// upserts the results into the chunk store. Re-running is idempotent.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"github.com/careatlas/evidence/internal/config"
	"github.com/careatlas/evidence/internal/core/chunkstore"
	"github.com/careatlas/evidence/internal/core/llm"
	"github.com/careatlas/evidence/internal/core/objectstore"
	"github.com/careatlas/evidence/internal/ingest"
	"github.com/careatlas/evidence/internal/logging"
)

func main() {
	seedDir := flag.String("seed", "", "upload local files from this directory to the bucket before ingesting")
	flag.Parse()

	logger, err := logging.New(os.Getenv("LOG_LEVEL"))
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		logger.Sugar().Fatalf("configuration invalid: %v", err)
	}

	// The embedding model must pass the same allow-list the API enforces.
	if !llm.AllowedModels[cfg.EmbedModel] {
		logger.Sugar().Fatalf("embedding model %q is not in the allow-list", cfg.EmbedModel)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c
		cancel()
	}()

	store, err := chunkstore.New(ctx, chunkstore.Options{
		DatabaseURL: cfg.DatabaseURL,
		SslCertPath: cfg.SslCertPath,
		Table:       cfg.ChunkTable,
	})
	if err != nil {
		logger.Sugar().Fatalf("chunk store init failed: %v", err)
	}
	defer store.Close()

	objects, err := objectstore.NewS3Store(ctx, objectstore.Options{
		AccessKey: cfg.AwsAccessKey,
		SecretKey: cfg.AwsSecretKey,
		Region:    cfg.AwsRegion,
		Bucket:    cfg.BucketName,
	})
	if err != nil {
		logger.Sugar().Fatalf("object store init failed: %v", err)
	}

	embedder, err := llm.NewGeminiEmbedder(ctx, cfg.AIAPIKey, cfg.EmbedModel, cfg.EmbedDim, llm.DefaultRetryPolicy)
	if err != nil {
		logger.Sugar().Fatalf("embedder init failed: %v", err)
	}
	defer embedder.Close()

	if *seedDir != "" {
		if err := seedBucket(ctx, objects, cfg.GuidelinePrefix, *seedDir, logger); err != nil {
			logger.Sugar().Fatalf("seeding failed: %v", err)
		}
	}

	pipeline := ingest.New(objects, store, embedder, objects.URL, ingest.Config{
		Prefix:          cfg.GuidelinePrefix,
		TargetCondition: cfg.TargetCondition,
		ChunkSize:       cfg.ChunkSize,
		ChunkOverlap:    cfg.ChunkOverlap,
		BatchSize:       cfg.WriteBatchSize,
		BatchPause:      cfg.BatchPause,
	}, logger)

	report, err := pipeline.Run(ctx)
	if err != nil {
		logger.Sugar().Fatalf("ingestion aborted after %s: %v", report, err)
	}
	logger.Info("done", zap.String("report", report.String()))
}

// seedBucket uploads every regular file under dir to the bucket prefix.
func seedBucket(ctx context.Context, objects *objectstore.S3Store, prefix, dir string, logger *zap.Logger) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return err
		}
		contentType := "application/json"
		if filepath.Ext(entry.Name()) == ".pdf" {
			contentType = "application/pdf"
		}
		url, err := objects.Put(ctx, prefix+entry.Name(), data, contentType)
		if err != nil {
			return err
		}
		logger.Info("seeded", zap.String("url", url))
	}
	return nil
}
