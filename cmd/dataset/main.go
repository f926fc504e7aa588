package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/jessevdk/go-flags"

	"github.com/micproject/newsetl/internal/config"
	"github.com/micproject/newsetl/internal/database"
	"github.com/micproject/newsetl/internal/dataset"
)

type options struct {
	ConfigPath  string `long:"config" env:"NEWSETL_CONFIG" default:"config.yml" description:"Path to the pipeline configuration file"`
	DBPath      string `long:"db" env:"NEWSETL_DB" description:"Override the database path from the configuration file"`
	ResultsPath string `long:"results" description:"Override the annotation results file to read"`
	Debug       bool   `long:"debug" env:"NEWSETL_DEBUG" description:"Enable debug logging"`
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
		logger.Error("Dataset build failed", "error", err)
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
	resultsPath := appConfig.Annotation.ResultsFile
	if opts.ResultsPath != "" {
		resultsPath = opts.ResultsPath
	}

	db, err := database.Connect(appConfig.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()

	maker := dataset.NewMaker(database.NewArticleRepository(db), logger)
	stats, err := maker.Build(resultsPath, dataset.Options{
		OutputDir:    appConfig.Dataset.OutputDir,
		TrainFile:    appConfig.Dataset.TrainFile,
		EvalFile:     appConfig.Dataset.EvalFile,
		EvalFraction: appConfig.Dataset.EvalFraction,
		Seed:         appConfig.Dataset.Seed,
	})
	if err != nil {
		return err
	}
	logger.Info("Dataset build complete",
		"train", stats.TrainEntries, "eval", stats.EvalEntries, "skipped", stats.Skipped)
	return nil
}
