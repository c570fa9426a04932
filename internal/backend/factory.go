// Package backend assembles an advisor.Service from configuration.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-insights/internal/advisor"
	"github.com/dvloznov/finance-insights/internal/archive"
	"github.com/dvloznov/finance-insights/internal/config"
	"github.com/dvloznov/finance-insights/internal/events"
	"github.com/dvloznov/finance-insights/internal/guard"
	infraBQ "github.com/dvloznov/finance-insights/internal/infra/bigquery"
	"github.com/dvloznov/finance-insights/internal/infra/sqlite"
	"github.com/dvloznov/finance-insights/internal/model"
	"github.com/dvloznov/finance-insights/internal/sanitizer"
)

// Result holds the assembled service and the resources behind it.
type Result struct {
	Service *advisor.Service
	// SQLite is set when the sqlite backend is selected.
	SQLite *sqlite.Store
	// Cleanup closes every opened client. It is safe to call once.
	Cleanup func() error
}

// Build wires storage, the model client, the optional archive and the
// optional event publisher into a Service.
func Build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Result, error) {
	var closers []func() error
	cleanup := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	gen, err := NewGenerator(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("Build: %w", err)
	}

	result := &Result{Cleanup: cleanup}
	svcCfg := advisor.Config{
		Sanitizer:     NewSanitizer(cfg, log),
		Guard:         NewGuard(log),
		Generator:     gen,
		ModelTimeout:  cfg.ModelTimeout,
		MaxAttempts:   cfg.ModelMaxAttempts,
		MinConfidence: cfg.MinConfidence,
		Logger:        &log,
	}

	switch cfg.DataBackend {
	case config.BackendBigQuery:
		repo, err := infraBQ.NewRepository(ctx, cfg.GCPProjectID, cfg.BigQueryDataset)
		if err != nil {
			return nil, fmt.Errorf("Build: bigquery: %w", err)
		}
		closers = append(closers, repo.Close)
		svcCfg.Repository = repo
		svcCfg.Source = repo
		log.Info().Str("project", cfg.GCPProjectID).Str("dataset", cfg.BigQueryDataset).Msg("Initialized BigQuery backend")
	case config.BackendSQLite:
		store, err := sqlite.Open(cfg.SQLiteDBPath, log)
		if err != nil {
			return nil, fmt.Errorf("Build: sqlite: %w", err)
		}
		closers = append(closers, store.Close)
		svcCfg.Repository = store
		svcCfg.Source = store
		result.SQLite = store
		log.Info().Str("db_path", cfg.SQLiteDBPath).Msg("Initialized SQLite backend")
	default:
		return nil, fmt.Errorf("Build: unsupported data backend %q", cfg.DataBackend)
	}

	if cfg.ArchiveBucket != "" {
		archiver, err := archive.NewGCSArchiver(ctx, cfg.ArchiveBucket)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("Build: archive: %w", err)
		}
		closers = append(closers, archiver.Close)
		svcCfg.Archiver = archiver
		log.Info().Str("bucket", cfg.ArchiveBucket).Msg("Archiving analyses to GCS")
	}

	if cfg.AMQPURL != "" {
		publisher, err := events.NewPublisher(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPRoutingKey, log)
		if err != nil {
			// Events are best-effort; the service runs without them.
			log.Warn().Err(err).Msg("Failed to initialize AMQP publisher, continuing without events")
		} else {
			closers = append(closers, publisher.Close)
			svcCfg.Publisher = publisher
			log.Info().Str("exchange", cfg.AMQPExchange).Str("routing_key", cfg.AMQPRoutingKey).Msg("Publishing insight events")
		}
	}

	svc, err := advisor.NewService(svcCfg)
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("Build: %w", err)
	}
	result.Service = svc
	return result, nil
}

// NewGenerator returns the model client selected by cfg.ModelProvider.
func NewGenerator(ctx context.Context, cfg *config.Config) (model.Generator, error) {
	switch cfg.ModelProvider {
	case config.ProviderGemini:
		gen, err := model.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			return nil, fmt.Errorf("NewGenerator: %w", err)
		}
		return gen, nil
	case config.ProviderOpenAI:
		return model.NewOpenAIGenerator(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	default:
		return nil, fmt.Errorf("NewGenerator: unsupported model provider %q", cfg.ModelProvider)
	}
}

// NewSanitizer builds the sanitizer with the configured salt.
func NewSanitizer(cfg *config.Config, log zerolog.Logger) *sanitizer.Sanitizer {
	return sanitizer.New(sanitizer.Config{Salt: cfg.AnonymizationSalt, Logger: &log})
}

// NewGuard builds a guard with default limits.
func NewGuard(log zerolog.Logger) *guard.Guard {
	return guard.New(guard.Config{Logger: &log})
}
