package cfg

// Cfg holds the process-level options for the pipeline binary. Everything
// that describes the ingestion itself (formats, directories, separators,
// table names) lives in the YAML configuration; these are only the knobs a
// single run is allowed to override.
type Cfg struct {
	ConfigPath  string
	DBPath      string
	WorkerCount int
	Force       bool
	SkipCreate  bool
	SkipLoad    bool
	Debug       bool
	Version     string
}
