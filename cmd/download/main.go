package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"

	"github.com/micproject/newsetl/internal/config"
	"github.com/micproject/newsetl/internal/download"
)

type options struct {
	ConfigPath string `long:"config" env:"NEWSETL_CONFIG" default:"config.yml" description:"Path to the pipeline configuration file"`
	URL        string `long:"url" description:"Override the corpus archive URL from the configuration file"`
	NoUnpack   bool   `long:"no-unpack" description:"Download the archive without extracting it"`
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
		logger.Error("Download failed", "error", err)
		os.Exit(1)
	}
}

func run(opts *options, logger *slog.Logger) error {
	appConfig, err := config.Load(opts.ConfigPath)
	if err != nil {
		return err
	}

	url := appConfig.Download.BaseURL
	if opts.URL != "" {
		url = opts.URL
	}
	if url == "" {
		return fmt.Errorf("no corpus URL configured, set download.base_url or pass --url")
	}
	targetDir := appConfig.Download.TargetDir
	if targetDir == "" {
		targetDir = appConfig.Data.SourceDir
	}
	unpack := appConfig.Download.Unpack && !opts.NoUnpack

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	d := download.NewDownloader(time.Duration(appConfig.Download.Timeout)*time.Second, logger)
	return d.Run(ctx, url, targetDir, unpack)
}
