package cfg

import (
	"errors"
	"fmt"

	"github.com/jessevdk/go-flags"
)

type rawCfg struct {
	ConfigPath  string `long:"config" env:"NEWSETL_CONFIG" default:"config.yml" description:"Path to the pipeline configuration file"`
	DBPath      string `long:"db" env:"NEWSETL_DB" description:"Override the database path from the configuration file"`
	WorkerCount int    `long:"workers" env:"NEWSETL_WORKERS" description:"Override the number of parallel parse workers"`
	Force       bool   `long:"force" description:"Drop and recreate managed tables before loading"`
	SkipCreate  bool   `long:"skip-create" description:"Skip schema creation and migration"`
	SkipLoad    bool   `long:"skip-load" description:"Parse sources but do not load results into the database"`
	Debug       bool   `long:"debug" env:"NEWSETL_DEBUG" description:"Enable debug logging"`
	Version     bool   `long:"version" short:"v" description:"Show version information"`
}

// Load parses command line arguments and environment variables into a Cfg.
// A nil Cfg with a nil error means help output was requested and printed.
func Load(version string) (*Cfg, error) {
	raw := &rawCfg{}

	parser := flags.NewParser(raw, flags.Default)

	_, err := parser.Parse()
	if err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("parse arguments: %w", err)
	}

	if raw.Version {
		fmt.Printf("newsetl version %s\n", version)
		return nil, nil
	}

	if raw.WorkerCount < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", raw.WorkerCount)
	}

	return &Cfg{
		ConfigPath:  raw.ConfigPath,
		DBPath:      raw.DBPath,
		WorkerCount: raw.WorkerCount,
		Force:       raw.Force,
		SkipCreate:  raw.SkipCreate,
		SkipLoad:    raw.SkipLoad,
		Debug:       raw.Debug,
		Version:     version,
	}, nil
}
