package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/micproject/newsetl/internal/cfg"
	"github.com/micproject/newsetl/internal/config"
	"github.com/micproject/newsetl/internal/database"
	"github.com/micproject/newsetl/internal/parse"
	"github.com/micproject/newsetl/internal/pipeline"
)

var version = "dev"

func main() {
	c, err := cfg.Load(version)
	if err != nil {
		slog.Error("Failed to parse arguments", "error", err)
		os.Exit(1)
	}
	if c == nil {
		return
	}

	level := slog.LevelInfo
	if c.Debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if err := run(c, logger); err != nil {
		logger.Error("Pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(c *cfg.Cfg, logger *slog.Logger) error {
	appConfig, err := config.Load(c.ConfigPath)
	if err != nil {
		return err
	}
	if c.DBPath != "" {
		appConfig.Database.Path = c.DBPath
	}
	if c.WorkerCount > 0 {
		appConfig.System.ParallelWorkers = c.WorkerCount
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Connecting to database", "path", appConfig.Database.Path)
	db, err := database.Connect(appConfig.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	schema := database.NewSchemaManager(db, logger)
	if c.Force {
		logger.Warn("Force flag set, dropping managed tables")
		if err := schema.Reset(); err != nil {
			return err
		}
	}
	if c.SkipCreate {
		logger.Info("Skipping schema creation")
	} else {
		if err := schema.Ensure(appConfig.Data.FilterConfig); err != nil {
			return err
		}
	}

	jobs, err := buildJobs(db, appConfig)
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		logger.Warn("No formats enabled, nothing to do")
		return nil
	}

	// Artifacts live in a per-run directory that is removed no matter how
	// the run ends; the loader already deletes what it consumed.
	if err := os.MkdirAll(appConfig.Data.ArtifactDir, 0755); err != nil {
		return fmt.Errorf("failed to create artifact directory: %w", err)
	}
	runDir, err := os.MkdirTemp(appConfig.Data.ArtifactDir, "load_")
	if err != nil {
		return fmt.Errorf("failed to create run directory: %w", err)
	}
	defer os.RemoveAll(runDir)

	stats := &pipeline.Stats{}
	dispatcher := pipeline.NewDispatcher(appConfig.System.ParallelWorkers, runDir, stats, logger)
	results, err := dispatcher.Run(ctx, jobs)
	if err != nil {
		return err
	}

	snap := stats.Snapshot()
	logger.Info("Parsing finished",
		"files_processed", snap.FilesProcessed,
		"files_skipped", snap.FilesSkipped,
		"files_failed", snap.FilesFailed,
		"records", snap.RecordsParsed,
		"bad_keys", snap.BadKeysFound)

	if c.SkipLoad {
		logger.Info("Skipping database load")
		return nil
	}

	loads := make([]database.FormatLoad, 0, len(results))
	for _, r := range results {
		loads = append(loads, database.FormatLoad{
			Format:        r.Format,
			Table:         r.Table,
			ArtifactPaths: r.ArtifactPaths,
		})
	}

	loader := database.NewBulkLoader(db, logger)
	loadStats := loader.Load(loads, appConfig.Loading.NYT.BadKeysTable)
	for format, rows := range loadStats.RowsInserted {
		logger.Info("Load result", "format", format, "rows", rows)
	}
	if loadStats.BadKeysStored > 0 {
		logger.Info("Bad keys recorded", "count", loadStats.BadKeysStored)
	}

	if !loadStats.Success {
		return fmt.Errorf("one or more formats failed to load")
	}
	if err := loader.PopulateLocations(appConfig.Loading.ProQuest.TargetTable); err != nil {
		logger.Error("Failed to populate locations lookup", "error", err)
	}
	logger.Info("Pipeline complete")
	return nil
}

func buildJobs(db *database.DB, appConfig *config.Config) ([]pipeline.Job, error) {
	var jobs []pipeline.Job

	if pq := appConfig.Loading.ProQuest; pq.Enabled {
		columns, err := db.DataColumns(pq.TargetTable)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, pipeline.Job{
			Format:          "proquest",
			Table:           pq.TargetTable,
			Parser:          parse.NewProQuestParser(pq.Separator, pq.HeaderFragments, pq.FooterFragments),
			Columns:         columns,
			SourceDir:       filepath.Join(appConfig.Data.SourceDir, pq.SourceSubdir),
			FilenamePrefix:  pq.FilenamePrefix,
			Recursive:       pq.Recursive,
			ExcludedSubdirs: pq.ExcludedSubdirs,
		})
	}

	if nyt := appConfig.Loading.NYT; nyt.Enabled {
		columns, err := db.DataColumns(nyt.TargetTable)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, pipeline.Job{
			Format:          "nyt",
			Table:           nyt.TargetTable,
			Parser:          parse.NewNYTParser(nyt.ArticleSeparator, nyt.TextStartMarker, nyt.TextEndMarker),
			Columns:         columns,
			SourceDir:       filepath.Join(appConfig.Data.SourceDir, nyt.SourceSubdir),
			FilenamePrefix:  nyt.FilenamePrefix,
			Recursive:       nyt.Recursive,
			ExcludedSubdirs: nyt.ExcludedSubdirs,
		})
	}

	return jobs, nil
}
