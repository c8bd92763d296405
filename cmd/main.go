package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	_ "github.com/joho/godotenv/autoload"
	gommon "github.com/labstack/gommon/log"

	"taleweaver/pkg/config"
	"taleweaver/pkg/images"
	"taleweaver/pkg/inference"
	"taleweaver/pkg/metrics"
	"taleweaver/pkg/narrative"
	"taleweaver/pkg/queue"
	"taleweaver/pkg/server"
	"taleweaver/pkg/store"
)

func main() {
	ctx, done := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer done()

	logger := log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: true, Prefix: "taleweaver"})

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("failed to load config", "error", err)
	}
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	} else {
		logger.Warn("unknown log level, using info", "level", cfg.LogLevel)
	}
	log.SetDefault(logger)

	m := metrics.New()

	st, closeStore := openStore(ctx, cfg, logger)
	defer closeStore()

	var vocab *narrative.Vocabulary
	if cfg.VocabularyPath != "" {
		if vocab, err = narrative.LoadVocabulary(cfg.VocabularyPath); err != nil {
			logger.Fatal("failed to load vocabulary", "path", cfg.VocabularyPath, "error", err)
		}
		logger.Info("loaded vocabulary", "path", cfg.VocabularyPath)
	}
	builder, err := narrative.NewBuilder(vocab)
	if err != nil {
		logger.Fatal("failed to compile vocabulary", "error", err)
	}

	chain := buildChain(ctx, cfg, logger)
	chain.OnResult(m.ProviderResult)

	q := buildQueue(ctx, cfg, st, logger)
	if q != nil {
		q.Observe(m.ImageTask)
		q.Start()
	}

	opts := server.Options{
		Logger:       logger,
		Metrics:      m,
		Store:        st,
		Chain:        chain,
		Queue:        q,
		Builder:      builder,
		LineageLimit: cfg.LineageLimit,
		LineageTTL:   cfg.LineageCache,
		CountTokens:  cfg.CountTokens,

		StructuredOutputs: cfg.StructuredOutputs,
	}
	if !cfg.HasS3() && cfg.ImageDir != "" {
		opts.ImageDir, opts.ImageBaseURL = cfg.ImageDir, cfg.ImageBaseURL
	}
	srv, err := server.NewServer(opts)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	if logger.GetLevel() <= log.DebugLevel {
		srv.Echo.Logger.SetLevel(gommon.DEBUG)
	} else {
		srv.Echo.Logger.SetLevel(gommon.INFO)
	}

	finishedShutDown := make(chan struct{})
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown failed", "error", err)
		}
		if q != nil {
			q.Stop()
			if err := q.Wait(shutdownCtx); err != nil {
				logger.Warn("image tasks still running at shutdown", "error", err)
			}
		}
		close(finishedShutDown)
	}()

	if err := srv.Start(cfg.Addr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("server stopped", "error", err)
		done()
	}
	<-finishedShutDown
}

func openStore(ctx context.Context, cfg *config.Config, logger *log.Logger) (store.Store, func()) {
	if cfg.DatabaseURL == "" {
		logger.Warn("DATABASE_URL not set, stories are kept in memory")
		return store.NewMemory(), func() {}
	}
	pg, err := store.Connect(ctx, cfg.DatabaseURL, cfg.DBMaxConns, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", "error", err)
	}
	logger.Info("connected to database")
	return pg, pg.Close
}

// buildChain orders the configured text providers. An empty chain serves
// the mock story.
func buildChain(ctx context.Context, cfg *config.Config, logger *log.Logger) *inference.Chain {
	var providers []inference.Inferencer
	if cfg.OVHKey != "" {
		ovh := inference.NewOVHInferencer(cfg.OVHKey, cfg.OVHModel)
		if cfg.OVHBaseURL != "" {
			ovh.ChangeBaseURL(cfg.OVHBaseURL)
		}
		providers = append(providers, ovh)
	}
	if cfg.OpenAIKey != "" {
		providers = append(providers, inference.NewOpenAIInferencer(cfg.OpenAIKey, cfg.OpenAIModel))
	}
	if cfg.GeminiKey != "" {
		gemini, err := inference.NewGeminiInferencer(ctx, cfg.GeminiKey, cfg.GeminiModel)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
		} else {
			providers = append(providers, gemini)
		}
	}

	chain := inference.NewChain(logger, providers...)
	if chain.Len() == 0 {
		logger.Warn("no text provider configured, serving the mock story")
	} else {
		names := make([]string, 0, chain.Len())
		for _, p := range providers {
			names = append(names, p.Name())
		}
		logger.Info("text providers", "order", names)
	}
	return chain
}

// buildQueue wires the image pipeline. Without a provider or storage the
// server skips images.
func buildQueue(ctx context.Context, cfg *config.Config, st store.Store, logger *log.Logger) *queue.Queue {
	if !cfg.HasImageProvider() || !cfg.HasImageStorage() {
		logger.Warn("image generation disabled", "provider", cfg.HasImageProvider(), "storage", cfg.HasImageStorage())
		return nil
	}

	var storage images.Storage
	if cfg.HasS3() {
		s3, err := images.NewS3Storage(ctx, images.S3Config{
			Endpoint:  cfg.S3Endpoint,
			Region:    cfg.S3Region,
			Bucket:    cfg.S3Bucket,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
			PathStyle: cfg.S3PathStyle,
		})
		if err != nil {
			logger.Error("failed to create s3 storage, images disabled", "error", err)
			return nil
		}
		storage = s3
	} else {
		storage = images.NewDirStorage(cfg.ImageDir, cfg.ImageBaseURL)
	}

	renderer := images.NewHTTPProvider(cfg.ImageEndpoint, cfg.ImageToken, cfg.ImageDeadline, logger)
	pipeline := images.NewPipeline(renderer, storage, logger)
	return queue.New(pipeline, st, logger, queue.Options{
		Workers:        cfg.ImageWorkers,
		Capacity:       cfg.ImageQueueSize,
		Timeout:        cfg.ImageTimeout,
		RenderDeadline: cfg.ImageDeadline,
		Placeholder:    cfg.ImagePlaceholder,
	})
}
