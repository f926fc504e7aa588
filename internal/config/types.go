package config

// Config is the full pipeline configuration loaded from a YAML file.
type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Data       DataConfig       `yaml:"data"`
	System     SystemConfig     `yaml:"system"`
	Loading    LoadingConfig    `yaml:"loading"`
	Download   DownloadConfig   `yaml:"download"`
	Annotation AnnotationConfig `yaml:"annotation"`
	Dataset    DatasetConfig    `yaml:"dataset"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type DataConfig struct {
	SourceDir   string `yaml:"source_dir"`
	ArtifactDir string `yaml:"artifact_dir"`
	StagingDir  string `yaml:"staging_dir"`
	// FilterConfig points at the optional category filtering YAML. Empty
	// means no filters and the default filtered articles view.
	FilterConfig string `yaml:"filter_config"`
}

type SystemConfig struct {
	// ParallelWorkers of 0 means one worker per CPU minus one, with a
	// floor of one.
	ParallelWorkers int `yaml:"parallel_workers"`
}

type LoadingConfig struct {
	ProQuest ProQuestConfig `yaml:"proquest"`
	NYT      NYTConfig      `yaml:"nyt"`
}

// ProQuestConfig describes where ProQuest dump files live and how their
// concatenated documents are split apart.
type ProQuestConfig struct {
	Enabled         bool     `yaml:"enabled"`
	SourceSubdir    string   `yaml:"source_subdir"`
	FilenamePrefix  string   `yaml:"filename_prefix"`
	Recursive       bool     `yaml:"recursive"`
	ExcludedSubdirs []string `yaml:"excluded_subdirs"`
	TargetTable     string   `yaml:"target_table"`
	Separator       string   `yaml:"separator"`
	HeaderFragments int      `yaml:"header_fragments"`
	FooterFragments int      `yaml:"footer_fragments"`
}

// NYTConfig describes the pre-structured text dumps with explicit article
// separator lines and body markers.
type NYTConfig struct {
	Enabled          bool     `yaml:"enabled"`
	SourceSubdir     string   `yaml:"source_subdir"`
	FilenamePrefix   string   `yaml:"filename_prefix"`
	Recursive        bool     `yaml:"recursive"`
	ExcludedSubdirs  []string `yaml:"excluded_subdirs"`
	TargetTable      string   `yaml:"target_table"`
	BadKeysTable     string   `yaml:"bad_keys_table"`
	ArticleSeparator string   `yaml:"article_separator"`
	TextStartMarker  string   `yaml:"text_start_marker"`
	TextEndMarker    string   `yaml:"text_end_marker"`
}

type DownloadConfig struct {
	BaseURL   string `yaml:"base_url"`
	TargetDir string `yaml:"target_dir"`
	Timeout   int    `yaml:"timeout"` // seconds
	Unpack    bool   `yaml:"unpack"`
}

type AnnotationConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	APIKeyEnv   string  `yaml:"api_key_env"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	BatchSize   int     `yaml:"batch_size"`
	MaxRetries  int     `yaml:"max_retries"`
	TargetTable string  `yaml:"target_table"`
	ResultsFile string  `yaml:"results_file"`
}

type DatasetConfig struct {
	OutputDir    string  `yaml:"output_dir"`
	TrainFile    string  `yaml:"train_file"`
	EvalFile     string  `yaml:"eval_file"`
	EvalFraction float64 `yaml:"eval_fraction"`
	Seed         int64   `yaml:"seed"`
}
