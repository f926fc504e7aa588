package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jessevdk/go-flags"

	"github.com/micproject/newsetl/internal/annotate"
	"github.com/micproject/newsetl/internal/config"
	"github.com/micproject/newsetl/internal/database"
)

type options struct {
	ConfigPath string `long:"config" env:"NEWSETL_CONFIG" default:"config.yml" description:"Path to the pipeline configuration file"`
	DBPath     string `long:"db" env:"NEWSETL_DB" description:"Override the database path from the configuration file"`
	BatchSize  int    `long:"batch-size" description:"Override the number of articles per model call"`
	Debug      bool   `long:"debug" env:"NEWSETL_DEBUG" description:"Enable debug logging"`
}

func main() {
	opts := &options{}
	if _, err := flags.NewParser(opts, flags.Default).Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	if err := run(opts, logger); err != nil {
		logger.Error("Annotation failed", "error", err)
		os.Exit(1)
	}
}

func run(opts *options, logger *slog.Logger) error {
	appConfig, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}
	if opts.DBPath != "" {
		appConfig.Database.Path = opts.DBPath
	}

	ann := appConfig.Annotation
	apiKey := os.Getenv(ann.APIKeyEnv)
	if apiKey == "" {
		return fmt.Errorf("API key environment variable %s is not set", ann.APIKeyEnv)
	}
	batchSize := ann.BatchSize
	if opts.BatchSize > 0 {
		batchSize = opts.BatchSize
	}

	db, err := database.Connect(appConfig.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	clientOpts := []annotate.Option{}
	if ann.Endpoint != "" {
		clientOpts = append(clientOpts, annotate.WithEndpoint(ann.Endpoint))
	}
	if ann.Model != "" {
		clientOpts = append(clientOpts, annotate.WithModel(ann.Model))
	}
	if ann.Temperature > 0 {
		clientOpts = append(clientOpts, annotate.WithTemperature(ann.Temperature))
	}
	client := annotate.NewClient(apiKey, clientOpts...)

	articles := database.NewArticleRepository(db)
	events := database.NewEventRepository(db)
	annotator := annotate.NewAnnotator(articles, events, client,
		ann.TargetTable, batchSize, ann.MaxRetries, logger)

	if ann.ResultsFile != "" {
		if err := os.MkdirAll(filepath.Dir(ann.ResultsFile), 0755); err != nil {
			return fmt.Errorf("failed to create results directory: %w", err)
		}
		annotator.WriteResultsTo(ann.ResultsFile)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stats, err := annotator.Run(ctx)
	if err != nil {
		return err
	}
	logger.Info("Annotation complete",
		"articles", stats.ArticlesProcessed,
		"events", stats.EventsStored,
		"failed_batches", stats.FailedBatches)
	if stats.FailedBatches > 0 {
		return fmt.Errorf("%d batches failed after retries", stats.FailedBatches)
	}
	return nil
}
