// Package download fetches the news article corpus archive and unpacks
// it into the raw source directory the parsing pipeline reads from.
package download

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const archiveName = "news_articles.zip"

type Downloader struct {
	client *http.Client
	logger *slog.Logger
}

func NewDownloader(timeout time.Duration, logger *slog.Logger) *Downloader {
	return &Downloader{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Run downloads the corpus archive from url into targetDir and, when
// unpack is set, extracts it there. An archive that already exists on
// disk is reused, so an interrupted extraction can be retried without
// refetching.
func (d *Downloader) Run(ctx context.Context, url, targetDir string, unpack bool) error {
	archivePath := filepath.Join(targetDir, archiveName)

	if _, err := os.Stat(archivePath); err == nil {
		d.logger.Info("archive already present, skipping download", "path", archivePath)
	} else {
		if err := d.fetch(ctx, url, archivePath); err != nil {
			return fmt.Errorf("failed to download corpus: %w", err)
		}
	}

	if !unpack {
		return nil
	}
	if err := extractZip(archivePath, targetDir); err != nil {
		return fmt.Errorf("failed to extract corpus: %w", err)
	}
	d.logger.Info("corpus extracted", "dir", targetDir)
	return nil
}

// fetch streams the response body into a temporary file and renames it
// into place, so a partial download never masquerades as the archive.
func (d *Downloader) fetch(ctx context.Context, url, destination string) error {
	if err := os.MkdirAll(filepath.Dir(destination), 0755); err != nil {
		return fmt.Errorf("failed to create target directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	d.logger.Info("downloading corpus archive", "url", url, "destination", destination)
	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected HTTP status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(filepath.Dir(destination), archiveName+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	written, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), destination); err != nil {
		return fmt.Errorf("failed to move archive into place: %w", err)
	}

	d.logger.Info("download complete", "bytes", written, "path", destination)
	return nil
}

func extractZip(archivePath, targetDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer r.Close()

	for _, file := range r.File {
		if err := extractEntry(file, targetDir); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(file *zip.File, targetDir string) error {
	// Reject entries that would land outside the target directory.
	path := filepath.Join(targetDir, filepath.FromSlash(file.Name))
	if !strings.HasPrefix(path, filepath.Clean(targetDir)+string(os.PathSeparator)) {
		return fmt.Errorf("archive entry %q escapes target directory", file.Name)
	}

	if file.FileInfo().IsDir() {
		return os.MkdirAll(path, 0755)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", file.Name, err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return dst.Close()
}
