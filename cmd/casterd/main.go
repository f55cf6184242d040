package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hypecast/caster/internal/archive"
	"github.com/hypecast/caster/internal/classify"
	"github.com/hypecast/caster/internal/dedup"
	"github.com/hypecast/caster/internal/deliver"
	"github.com/hypecast/caster/internal/dispatch"
	"github.com/hypecast/caster/internal/domain"
	"github.com/hypecast/caster/internal/infra"
	"github.com/hypecast/caster/internal/listener"
	"github.com/hypecast/caster/internal/pipeline"
	"github.com/hypecast/caster/internal/provider"
	"github.com/hypecast/caster/internal/queue"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := run(logger); err != nil {
		logger.Error("casterd failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := infra.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	// Transcript archive (optional)
	var store *archive.Store
	if cfg.ArchiveEnabled {
		pool, err := infra.NewPostgresPool(ctx, cfg)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		defer pool.Close()
		if err := infra.RunMigrations(cfg.DSN(), logger); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
		store = archive.NewStore(pool, logger)
		logger.Info("transcript archive enabled")
	}

	// Output stage
	hub := deliver.NewHub(logger)
	defer hub.Shutdown(context.Background())

	var kafkaPub *deliver.KafkaPublisher
	lineWriter := infra.NewLineWriter(cfg.KafkaBrokers, cfg.KafkaLinesTopic, cfg.KafkaEnabled, logger)
	defer lineWriter.Close()
	if cfg.KafkaEnabled {
		kafkaPub = deliver.NewKafkaPublisher(lineWriter, logger)
	}

	history := pipeline.NewHistory(0)
	filter := dedup.New(dedup.Config{
		WindowSize: cfg.DedupWindow,
		Threshold:  cfg.SimilarityThreshold,
	}, logger)
	sink := pipeline.NewLineSink("match:live", filter, hub, kafkaPub, store, history, logger)

	// Generation providers
	primary := provider.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, logger)
	secondary := provider.NewOllamaClient(cfg.OllamaBaseURL, cfg.OllamaModel, logger)

	limiter := dispatch.New(dispatch.Config{
		ConcurrencyCap:   cfg.ConcurrencyCap,
		PerMinuteCap:     cfg.PerMinuteCap,
		RateWindow:       time.Minute,
		AdmitWait:        cfg.AdmitWait,
		RequestDeadline:  cfg.RequestDeadline,
		CooldownDuration: cfg.ProviderCooldown,
	}, primary, secondary, sink, history.Prompt, logger)
	sink.SetRecords(limiter)
	limiter.Start(ctx)

	// Ingestion pipeline
	classifier := classify.New(classify.Config{
		ClusterWindow:   cfg.ClusterWindow,
		ClusterMin:      cfg.ClusterMin,
		EconomySwing:    cfg.EconomySwing,
		ObjectiveStates: cfg.ObjectiveStates,
	}, logger)
	q := queue.New(queue.Config{
		DebounceWindow: cfg.DebounceWindow,
		TierDepth:      cfg.TierDepth,
	}, logger)
	p := pipeline.New(classifier, q, limiter, logger)

	snapshots := make(chan domain.Snapshot, 64)
	pipeErr := make(chan error, 1)
	go func() {
		pipeErr <- p.Run(ctx, snapshots)
	}()

	// Kafka snapshot source (optional)
	reader := infra.NewSnapshotReader(cfg.KafkaBrokers, cfg.KafkaIngestTopic, cfg.KafkaGroupID, cfg.KafkaEnabled, logger)
	defer reader.Close()
	readErr := make(chan error, 1)
	go func() {
		readErr <- listener.ReadLoop(ctx, reader, snapshots, logger)
	}()

	// HTTP ingest
	addr := fmt.Sprintf(":%d", cfg.IngestPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      listener.NewRouter(cfg.IngestToken, snapshots, hub, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		logger.Info("casterd starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			srvErr <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("casterd shutdown signal received")
	case err := <-srvErr:
		return fmt.Errorf("ingest server error: %w", err)
	case err := <-readErr:
		if err != nil {
			return fmt.Errorf("kafka read loop error: %w", err)
		}
	case err := <-pipeErr:
		if err != nil {
			return fmt.Errorf("pipeline error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("ingest server shutdown failed: %w", err)
	}

	logger.Info("casterd stopped gracefully")
	return nil
}
