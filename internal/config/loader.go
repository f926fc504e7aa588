package config

import (
	"fmt"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads the pipeline configuration from a YAML file, applies defaults
// and validates it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	setDefaults(&config)

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return &config, nil
}

// setDefaults applies default values to configuration
func setDefaults(config *Config) {
	if config.Database.Path == "" {
		config.Database.Path = "data/articles.db"
	}
	if config.Data.SourceDir == "" {
		config.Data.SourceDir = "data/source"
	}
	if config.Data.ArtifactDir == "" {
		config.Data.ArtifactDir = "data/artifacts"
	}
	if config.Data.StagingDir == "" {
		config.Data.StagingDir = "data/staging"
	}
	if config.System.ParallelWorkers == 0 {
		config.System.ParallelWorkers = defaultWorkers()
	}

	pq := &config.Loading.ProQuest
	if pq.SourceSubdir == "" {
		pq.SourceSubdir = "proquest"
	}
	if pq.FilenamePrefix == "" {
		pq.FilenamePrefix = "ProQuestDocuments"
	}
	if pq.TargetTable == "" {
		pq.TargetTable = "raw_articles"
	}
	if pq.Separator == "" {
		pq.Separator = "\nDocument "
	}
	if pq.HeaderFragments == 0 {
		pq.HeaderFragments = 2
	}
	if pq.FooterFragments == 0 {
		pq.FooterFragments = 1
	}

	nyt := &config.Loading.NYT
	if nyt.SourceSubdir == "" {
		nyt.SourceSubdir = "nyt"
	}
	if nyt.FilenamePrefix == "" {
		nyt.FilenamePrefix = "sorted"
	}
	if nyt.TargetTable == "" {
		nyt.TargetTable = "raw_parsed_articles"
	}
	if nyt.BadKeysTable == "" {
		nyt.BadKeysTable = "staging_bad_keys"
	}
	if nyt.ArticleSeparator == "" {
		nyt.ArticleSeparator = strings.Repeat("-", 63)
	}
	if nyt.TextStartMarker == "" {
		nyt.TextStartMarker = ">>>>>>>>>>>>>>>>>>>>>>"
	}
	if nyt.TextEndMarker == "" {
		nyt.TextEndMarker = "<<<<<<<<<<<<<<<<<<<<<<"
	}

	if config.Download.Timeout == 0 {
		config.Download.Timeout = 300 // seconds
	}

	ann := &config.Annotation
	if ann.APIKeyEnv == "" {
		ann.APIKeyEnv = "GEMINI_API_KEY"
	}
	if ann.BatchSize == 0 {
		ann.BatchSize = 20
	}
	if ann.MaxRetries == 0 {
		ann.MaxRetries = 3
	}
	if ann.TargetTable == "" {
		ann.TargetTable = "analytics_mic_events"
	}
	if ann.ResultsFile == "" {
		ann.ResultsFile = "data/staging/annotation_results.jsonl"
	}

	ds := &config.Dataset
	if ds.OutputDir == "" {
		ds.OutputDir = "data/dataset"
	}
	if ds.TrainFile == "" {
		ds.TrainFile = "train.jsonl"
	}
	if ds.EvalFile == "" {
		ds.EvalFile = "eval.jsonl"
	}
	if ds.EvalFraction == 0 {
		ds.EvalFraction = 0.1
	}
}

func defaultWorkers() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// validate validates the configuration
func validate(config *Config) error {
	if config.System.ParallelWorkers < 1 {
		return fmt.Errorf("parallel workers must be positive")
	}

	pq := &config.Loading.ProQuest
	if pq.HeaderFragments < 0 {
		return fmt.Errorf("proquest header fragments must be non-negative")
	}
	if pq.FooterFragments < 0 {
		return fmt.Errorf("proquest footer fragments must be non-negative")
	}
	if pq.Enabled && pq.Separator == "" {
		return fmt.Errorf("proquest separator is required")
	}

	nyt := &config.Loading.NYT
	if nyt.Enabled {
		if nyt.ArticleSeparator == "" {
			return fmt.Errorf("nyt article separator is required")
		}
		if nyt.TextStartMarker == "" || nyt.TextEndMarker == "" {
			return fmt.Errorf("nyt text markers are required")
		}
	}

	if f := config.Dataset.EvalFraction; f < 0 || f >= 1 {
		return fmt.Errorf("dataset eval fraction must be in [0, 1), got %g", f)
	}

	return nil
}
