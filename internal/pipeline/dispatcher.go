package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/micproject/newsetl/internal/artifact"
	"github.com/micproject/newsetl/internal/parse"
)

// Job describes one format's source files and how to process them.
type Job struct {
	Format          string
	Table           string
	Parser          parse.Parser
	Columns         []artifact.ColumnSpec
	SourceDir       string
	FilenamePrefix  string
	Recursive       bool
	ExcludedSubdirs []string
}

// Result groups the artifacts a job produced, ready for the bulk loader.
type Result struct {
	Format        string
	Table         string
	ArtifactPaths []string
}

// Dispatcher fans source files out over a fixed pool of workers. Files
// are independent, so completion order is irrelevant and results are
// collected as workers finish.
type Dispatcher struct {
	workerCount int
	artifactDir string
	stats       *Stats
	logger      *slog.Logger
}

func NewDispatcher(workerCount int, artifactDir string, stats *Stats, logger *slog.Logger) *Dispatcher {
	if workerCount < 1 {
		workerCount = 1
	}
	return &Dispatcher{
		workerCount: workerCount,
		artifactDir: artifactDir,
		stats:       stats,
		logger:      logger,
	}
}

// Run enumerates and processes every job's files, one jobs pass at a
// time, and returns the produced artifacts grouped per format. A
// cancelled context stops dispatching; files already in flight finish.
func (d *Dispatcher) Run(ctx context.Context, jobs []Job) ([]Result, error) {
	if err := os.MkdirAll(d.artifactDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create artifact directory: %w", err)
	}

	var results []Result
	for _, job := range jobs {
		files, err := d.enumerate(job)
		if err != nil {
			return nil, fmt.Errorf("failed to enumerate %s files: %w", job.Format, err)
		}
		d.logger.Info("dispatching source files", "format", job.Format, "files", len(files), "workers", d.workerCount)

		paths := d.process(ctx, job, files)
		results = append(results, Result{Format: job.Format, Table: job.Table, ArtifactPaths: paths})

		if err := ctx.Err(); err != nil {
			return results, err
		}
	}
	return results, nil
}

// enumerate lists the job's source files: .txt files under SourceDir
// whose base name carries the filename prefix, honoring the recursion
// flag and skipping the excluded subpaths, which resolve relative to
// SourceDir and match by containment. A missing source directory means
// the format simply has no files. The list is sorted so runs over the
// same tree are reproducible.
func (d *Dispatcher) enumerate(job Job) ([]string, error) {
	root := filepath.Clean(job.SourceDir)
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		d.logger.Warn("source directory does not exist, skipping format", "format", job.Format, "dir", root)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source path %s is not a directory", root)
	}

	excluded := make([]string, 0, len(job.ExcludedSubdirs))
	for _, sub := range job.ExcludedSubdirs {
		excluded = append(excluded, filepath.Join(root, sub))
	}

	var files []string
	err = filepath.WalkDir(root, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			if path == root {
				return nil
			}
			for _, ex := range excluded {
				if path == ex || strings.HasPrefix(path, ex+string(os.PathSeparator)) {
					return filepath.SkipDir
				}
			}
			if !job.Recursive {
				return filepath.SkipDir
			}
			return nil
		}
		name := entry.Name()
		if !strings.HasSuffix(name, ".txt") {
			return nil
		}
		if job.FilenamePrefix != "" && !strings.HasPrefix(name, job.FilenamePrefix) {
			return nil
		}
		files = append(files, path)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func (d *Dispatcher) process(ctx context.Context, job Job, files []string) []string {
	fileCh := make(chan string)
	resultCh := make(chan *FileResult)

	var wg sync.WaitGroup
	for i := 0; i < d.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			worker := NewFileWorker(job.Parser, job.Columns, d.artifactDir, d.stats, d.logger)
			for path := range fileCh {
				resultCh <- worker.Process(path)
			}
		}()
	}

	go func() {
		defer close(fileCh)
		for _, path := range files {
			select {
			case fileCh <- path:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	var paths []string
	done := 0
	for result := range resultCh {
		done++
		if result != nil {
			paths = append(paths, result.ArtifactPath)
		}
		if done%100 == 0 {
			d.logger.Info("processing progress", "format", job.Format, "done", done, "total", len(files))
		}
	}
	return paths
}
