package download

import (
	"archive/zip"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func zipBytes(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("zip create: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("zip write: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}
	return buf.Bytes()
}

func TestRunDownloadsAndExtracts(t *testing.T) {
	payload := zipBytes(t, map[string]string{
		"sorted/articles_1.txt":               "Key: abc\n",
		"ProQuestDocuments/ProQuestPart1.txt": "Title: Hello\n",
	})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	target := t.TempDir()
	d := NewDownloader(5*time.Second, discardLogger())
	if err := d.Run(context.Background(), server.URL, target, true); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if _, err := os.Stat(filepath.Join(target, archiveName)); err != nil {
		t.Errorf("archive not saved: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(target, "sorted", "articles_1.txt"))
	if err != nil {
		t.Fatalf("extracted file missing: %v", err)
	}
	if string(data) != "Key: abc\n" {
		t.Errorf("extracted content = %q, want %q", data, "Key: abc\n")
	}
}

func TestRunSkipsExistingArchive(t *testing.T) {
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
	}))
	defer server.Close()

	target := t.TempDir()
	payload := zipBytes(t, map[string]string{"a.txt": "cached\n"})
	if err := os.WriteFile(filepath.Join(target, archiveName), payload, 0644); err != nil {
		t.Fatalf("seed archive: %v", err)
	}

	d := NewDownloader(5*time.Second, discardLogger())
	if err := d.Run(context.Background(), server.URL, target, true); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if requests != 0 {
		t.Errorf("server received %d requests, want 0", requests)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); err != nil {
		t.Errorf("cached archive not extracted: %v", err)
	}
}

func TestRunWithoutUnpack(t *testing.T) {
	payload := zipBytes(t, map[string]string{"a.txt": "data\n"})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer server.Close()

	target := t.TempDir()
	d := NewDownloader(5*time.Second, discardLogger())
	if err := d.Run(context.Background(), server.URL, target, false); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if _, err := os.Stat(filepath.Join(target, "a.txt")); !os.IsNotExist(err) {
		t.Error("archive was extracted despite unpack being disabled")
	}
}

func TestRunHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	d := NewDownloader(5*time.Second, discardLogger())
	if err := d.Run(context.Background(), server.URL, t.TempDir(), false); err == nil {
		t.Error("Run() returned no error for HTTP 404")
	}
}

func TestExtractRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create("../outside.txt")
	if err != nil {
		t.Fatalf("zip create: %v", err)
	}
	if _, err := w.Write([]byte("escape")); err != nil {
		t.Fatalf("zip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("zip close: %v", err)
	}

	target := t.TempDir()
	archivePath := filepath.Join(target, archiveName)
	if err := os.WriteFile(archivePath, buf.Bytes(), 0644); err != nil {
		t.Fatalf("write archive: %v", err)
	}
	if err := extractZip(archivePath, target); err == nil {
		t.Error("extractZip() accepted a path traversal entry")
	}
}
