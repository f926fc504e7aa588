package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/micproject/newsetl/internal/artifact"
	"github.com/micproject/newsetl/internal/parse"
)

// lineParser treats every non-blank line as one record with a title
// column. Lines reading "BAD" become bad keys, "PANIC" panics.
type lineParser struct{}

func (p *lineParser) Format() string { return "lines" }

func (p *lineParser) Parse(text, path string) (*parse.Result, error) {
	result := &parse.Result{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "":
		case line == "PANIC":
			panic("boom")
		case line == "ERROR":
			return nil, fmt.Errorf("unparseable file %s", path)
		case line == "BAD":
			result.BadKeys = append(result.BadKeys, parse.BadKey{Key: "", Filepath: path, Reason: parse.ReasonEmptyKey})
		default:
			result.Records = append(result.Records, parse.Record{"title": line})
		}
	}
	return result, nil
}

var lineColumns = []artifact.ColumnSpec{{Name: "title", Kind: artifact.KindText}}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeSource(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestFileWorkerProcess(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "articles_1.txt", "first\nsecond\nBAD\n")

	stats := &Stats{}
	worker := NewFileWorker(&lineParser{}, lineColumns, t.TempDir(), stats, discardLogger())

	result := worker.Process(path)
	if result == nil {
		t.Fatal("Process() returned nil for a valid file")
	}
	if result.Records != 2 {
		t.Errorf("records = %d, want 2", result.Records)
	}
	if result.BadKeys != 1 {
		t.Errorf("bad keys = %d, want 1", result.BadKeys)
	}

	batch, err := artifact.Read(result.ArtifactPath)
	if err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if batch.Format != "lines" {
		t.Errorf("artifact format = %q, want lines", batch.Format)
	}
	if batch.Rows() != 2 {
		t.Errorf("artifact rows = %d, want 2", batch.Rows())
	}
	if len(batch.BadKeys) != 1 {
		t.Errorf("artifact bad keys = %d, want 1", len(batch.BadKeys))
	}

	snap := stats.Snapshot()
	if snap.FilesProcessed != 1 || snap.RecordsParsed != 2 || snap.BadKeysFound != 1 {
		t.Errorf("stats = %+v, want 1 file, 2 records, 1 bad key", snap)
	}
}

func TestFileWorkerFailuresAreContained(t *testing.T) {
	dir := t.TempDir()
	stats := &Stats{}
	worker := NewFileWorker(&lineParser{}, lineColumns, t.TempDir(), stats, discardLogger())

	cases := []struct {
		name string
		path string
	}{
		{"missing file", filepath.Join(dir, "no_such_file.txt")},
		{"parser error", writeSource(t, dir, "err.txt", "ERROR\n")},
		{"parser panic", writeSource(t, dir, "panic.txt", "PANIC\n")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if result := worker.Process(tc.path); result != nil {
				t.Errorf("Process() = %+v, want nil", result)
			}
		})
	}

	if got := stats.Snapshot().FilesFailed; got != 3 {
		t.Errorf("failed files = %d, want 3", got)
	}
}

func TestFileWorkerSkipsEmptyYield(t *testing.T) {
	dir := t.TempDir()
	path := writeSource(t, dir, "blank.txt", "\n\n\n")

	stats := &Stats{}
	worker := NewFileWorker(&lineParser{}, lineColumns, t.TempDir(), stats, discardLogger())

	if result := worker.Process(path); result != nil {
		t.Errorf("Process() = %+v, want nil for empty yield", result)
	}
	snap := stats.Snapshot()
	if snap.FilesSkipped != 1 || snap.FilesFailed != 0 {
		t.Errorf("stats = %+v, want 1 skipped, 0 failed", snap)
	}
}

func TestDispatcherEnumerate(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "articles_1.txt", "a\n")
	writeSource(t, src, "notes.txt", "ignored\n")
	writeSource(t, src, "articles_5.log", "not a text file\n")
	writeSource(t, src, filepath.Join("2012", "articles_2.txt"), "b\n")
	writeSource(t, src, filepath.Join("skipme", "articles_3.txt"), "c\n")
	writeSource(t, src, filepath.Join("2012", "skipme", "articles_4.txt"), "d\n")

	d := NewDispatcher(1, t.TempDir(), &Stats{}, discardLogger())

	t.Run("recursive with exclusions", func(t *testing.T) {
		files, err := d.enumerate(Job{
			SourceDir:       src,
			FilenamePrefix:  "articles_",
			Recursive:       true,
			ExcludedSubdirs: []string{"skipme", filepath.Join("2012", "skipme")},
		})
		if err != nil {
			t.Fatalf("enumerate() error = %v", err)
		}
		if len(files) != 2 {
			t.Fatalf("files = %v, want 2 entries", files)
		}
		if filepath.Base(files[0]) != "articles_2.txt" || filepath.Base(files[1]) != "articles_1.txt" {
			t.Errorf("files = %v, want articles_2.txt then articles_1.txt", files)
		}
	})

	t.Run("exclusion matches subpaths, not base names", func(t *testing.T) {
		// Excluding "skipme" leaves the unrelated 2012/skipme tree alone.
		files, err := d.enumerate(Job{
			SourceDir:       src,
			FilenamePrefix:  "articles_",
			Recursive:       true,
			ExcludedSubdirs: []string{"skipme"},
		})
		if err != nil {
			t.Fatalf("enumerate() error = %v", err)
		}
		if len(files) != 3 {
			t.Fatalf("files = %v, want 3 entries", files)
		}
		if filepath.Base(files[1]) != "articles_4.txt" {
			t.Errorf("files = %v, want 2012/skipme/articles_4.txt kept", files)
		}
	})

	t.Run("non-recursive", func(t *testing.T) {
		files, err := d.enumerate(Job{
			SourceDir:      src,
			FilenamePrefix: "articles_",
		})
		if err != nil {
			t.Fatalf("enumerate() error = %v", err)
		}
		if len(files) != 1 || filepath.Base(files[0]) != "articles_1.txt" {
			t.Errorf("files = %v, want only articles_1.txt", files)
		}
	})

	t.Run("missing directory yields no files", func(t *testing.T) {
		files, err := d.enumerate(Job{SourceDir: filepath.Join(src, "absent")})
		if err != nil {
			t.Fatalf("enumerate() error = %v, want missing directory tolerated", err)
		}
		if len(files) != 0 {
			t.Errorf("files = %v, want none", files)
		}
	})
}

func TestDispatcherRun(t *testing.T) {
	src := t.TempDir()
	for i := 0; i < 5; i++ {
		writeSource(t, src, fmt.Sprintf("articles_%d.txt", i), fmt.Sprintf("record %d\nBAD\n", i))
	}
	writeSource(t, src, "broken.txt", "ERROR\n")

	stats := &Stats{}
	d := NewDispatcher(3, t.TempDir(), stats, discardLogger())

	results, err := d.Run(context.Background(), []Job{{
		Format:         "lines",
		Table:          "raw_articles",
		Parser:         &lineParser{},
		Columns:        lineColumns,
		SourceDir:      src,
		FilenamePrefix: "",
		Recursive:      false,
	}})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results = %d, want 1", len(results))
	}
	if results[0].Format != "lines" || results[0].Table != "raw_articles" {
		t.Errorf("result routing = (%s, %s), want (lines, raw_articles)", results[0].Format, results[0].Table)
	}
	if len(results[0].ArtifactPaths) != 5 {
		t.Errorf("artifacts = %d, want 5", len(results[0].ArtifactPaths))
	}

	snap := stats.Snapshot()
	if snap.FilesProcessed != 5 {
		t.Errorf("processed = %d, want 5", snap.FilesProcessed)
	}
	if snap.FilesFailed != 1 {
		t.Errorf("failed = %d, want 1", snap.FilesFailed)
	}
	if snap.RecordsParsed != 5 {
		t.Errorf("records = %d, want 5", snap.RecordsParsed)
	}
	if snap.BadKeysFound != 5 {
		t.Errorf("bad keys = %d, want 5", snap.BadKeysFound)
	}

	total := 0
	for _, path := range results[0].ArtifactPaths {
		batch, err := artifact.Read(path)
		if err != nil {
			t.Fatalf("reading artifact %s: %v", path, err)
		}
		total += batch.Rows()
	}
	if total != 5 {
		t.Errorf("total artifact rows = %d, want 5", total)
	}
}

func TestDispatcherRunCancelled(t *testing.T) {
	src := t.TempDir()
	writeSource(t, src, "articles_1.txt", "a\n")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDispatcher(2, t.TempDir(), &Stats{}, discardLogger())
	_, err := d.Run(ctx, []Job{{
		Format:    "lines",
		Table:     "raw_articles",
		Parser:    &lineParser{},
		Columns:   lineColumns,
		SourceDir: src,
	}})
	if err == nil {
		t.Error("Run() with cancelled context returned no error")
	}
}
