package pipeline

import (
	"fmt"
	"log/slog"

	"github.com/micproject/newsetl/internal/artifact"
	"github.com/micproject/newsetl/internal/parse"
	"github.com/micproject/newsetl/internal/textenc"
)

// FileResult describes one source file's completed processing.
type FileResult struct {
	Path         string
	ArtifactPath string
	Records      int
	BadKeys      int
}

// FileWorker turns one source file into one artifact: decode the bytes,
// parse the text, project records onto the destination's columns, write
// the batch. Workers share nothing mutable except the stats counters, so
// any number may run concurrently.
type FileWorker struct {
	parser      parse.Parser
	columns     []artifact.ColumnSpec
	artifactDir string
	stats       *Stats
	logger      *slog.Logger
}

func NewFileWorker(parser parse.Parser, columns []artifact.ColumnSpec, artifactDir string,
	stats *Stats, logger *slog.Logger) *FileWorker {
	return &FileWorker{
		parser:      parser,
		columns:     columns,
		artifactDir: artifactDir,
		stats:       stats,
		logger:      logger,
	}
}

// Process handles a single file. Failures are logged and counted, never
// propagated: one bad file must not take down the batch, so the caller
// gets a nil result and moves on. A recover guard holds the same line
// against panics escaping the parsing internals.
func (w *FileWorker) Process(path string) (result *FileResult) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("file processing panicked", "path", path, "panic", fmt.Sprintf("%v", r))
			w.stats.FilesFailed.Add(1)
			result = nil
		}
	}()

	decoded, err := textenc.DecodeFile(path)
	if err != nil {
		w.logger.Error("failed to read source file", "path", path, "error", err)
		w.stats.FilesFailed.Add(1)
		return nil
	}
	if decoded.Lossy {
		w.logger.Warn("source file decoded lossily",
			"path", path, "encoding", decoded.Encoding, "bad_sequences", len(decoded.Diagnostics))
		for _, diag := range decoded.Diagnostics {
			w.logger.Debug("decode error", "path", path, "detail", diag.Context)
		}
	}

	parsed, err := w.parser.Parse(decoded.Text, path)
	if err != nil {
		w.logger.Error("failed to parse source file", "path", path, "format", w.parser.Format(), "error", err)
		w.stats.FilesFailed.Add(1)
		return nil
	}
	for _, warning := range parsed.Warnings {
		w.logger.Warn("parse warning", "path", path, "detail", warning)
	}

	if len(parsed.Records) == 0 && len(parsed.BadKeys) == 0 {
		w.logger.Info("source file yielded no records", "path", path)
		w.stats.FilesSkipped.Add(1)
		return nil
	}

	batch, err := artifact.Build(w.parser.Format(), w.columns, parsed.Records, parsed.BadKeys)
	if err != nil {
		w.logger.Error("failed to build artifact", "path", path, "error", err)
		w.stats.FilesFailed.Add(1)
		return nil
	}
	artifactPath, err := artifact.Write(batch, w.artifactDir)
	if err != nil {
		w.logger.Error("failed to write artifact", "path", path, "error", err)
		w.stats.FilesFailed.Add(1)
		return nil
	}

	w.stats.FilesProcessed.Add(1)
	w.stats.RecordsParsed.Add(int64(len(parsed.Records)))
	w.stats.BadKeysFound.Add(int64(len(parsed.BadKeys)))

	return &FileResult{
		Path:         path,
		ArtifactPath: artifactPath,
		Records:      len(parsed.Records),
		BadKeys:      len(parsed.BadKeys),
	}
}
