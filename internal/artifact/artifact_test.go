package artifact

import (
	"strings"
	"testing"

	"github.com/micproject/newsetl/internal/parse"
)

var testSpecs = []ColumnSpec{
	{Name: "title", Kind: KindText},
	{Name: "raw_text_length", Kind: KindInteger},
	{Name: "publication_date", Kind: KindDate},
}

func TestBuildProjectsOntoSpecs(t *testing.T) {
	records := []parse.Record{
		{"title": "First", "raw_text_length": int64(10), "publication_date": "2012-01-01", "unmapped": "dropped"},
		{"title": "Second"},
	}

	b, err := Build("proquest", testSpecs, records, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	if b.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", b.Rows())
	}
	if b.Column("unmapped") != nil {
		t.Error("unmapped column present, want dropped")
	}

	if got := b.Column("title").Value(0); got != "First" {
		t.Errorf("title[0] = %v, want First", got)
	}
	if got := b.Column("raw_text_length").Value(0); got != int64(10) {
		t.Errorf("raw_text_length[0] = %v, want 10", got)
	}
	if got := b.Column("raw_text_length").Value(1); got != nil {
		t.Errorf("raw_text_length[1] = %v, want nil", got)
	}
	if got := b.Column("publication_date").Value(1); got != nil {
		t.Errorf("publication_date[1] = %v, want nil", got)
	}
}

func TestBuildRejectsWrongType(t *testing.T) {
	records := []parse.Record{{"raw_text_length": "not a number"}}
	_, err := Build("proquest", testSpecs, records, nil)
	if err == nil {
		t.Fatal("Build() error = nil, want type mismatch error")
	}
	if !strings.Contains(err.Error(), "raw_text_length") {
		t.Errorf("error = %v, want column name in message", err)
	}
}

func TestWriteReadRoundTrip(t *testing.T) {
	records := []parse.Record{
		{"title": "Round Trip", "raw_text_length": int64(42)},
	}
	badKeys := []parse.BadKey{{Key: "x", Filepath: "f.txt", Reason: parse.ReasonInvalidUUID}}

	b, err := Build("nyt", testSpecs, records, badKeys)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	dir := t.TempDir()
	path, err := Write(b, dir)
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if !strings.HasPrefix(path, dir) || !strings.Contains(path, "nyt_") || !strings.HasSuffix(path, ".batch.gz") {
		t.Errorf("path = %q, want nyt-prefixed .batch.gz under %q", path, dir)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Format != "nyt" {
		t.Errorf("Format = %q, want nyt", got.Format)
	}
	if got.Rows() != 1 {
		t.Fatalf("Rows() = %d, want 1", got.Rows())
	}
	if v := got.Column("title").Value(0); v != "Round Trip" {
		t.Errorf("title = %v", v)
	}
	if v := got.Column("raw_text_length").Value(0); v != int64(42) {
		t.Errorf("raw_text_length = %v", v)
	}
	if len(got.BadKeys) != 1 || got.BadKeys[0].Reason != parse.ReasonInvalidUUID {
		t.Errorf("BadKeys = %+v", got.BadKeys)
	}
}

func TestWriteReadRoundTripWithNulls(t *testing.T) {
	// Projection fills absent fields with nulls, so nearly every real
	// batch carries null cells. They must survive serialization.
	records := []parse.Record{
		{"title": "Only Title"},
		{"raw_text_length": int64(7)},
	}

	b, err := Build("proquest", testSpecs, records, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	path, err := Write(b, t.TempDir())
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	got, err := Read(path)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", got.Rows())
	}
	if v := got.Column("title").Value(0); v != "Only Title" {
		t.Errorf("title[0] = %v", v)
	}
	if v := got.Column("title").Value(1); v != nil {
		t.Errorf("title[1] = %v, want nil", v)
	}
	if v := got.Column("raw_text_length").Value(0); v != nil {
		t.Errorf("raw_text_length[0] = %v, want nil", v)
	}
	if v := got.Column("raw_text_length").Value(1); v != int64(7) {
		t.Errorf("raw_text_length[1] = %v, want 7", v)
	}
	if v := got.Column("publication_date").Value(0); v != nil {
		t.Errorf("publication_date[0] = %v, want nil", v)
	}
}

func TestReadMissingFile(t *testing.T) {
	if _, err := Read(t.TempDir() + "/nope.batch.gz"); err == nil {
		t.Fatal("Read() error = nil, want error")
	}
}

func TestMergeUnionByName(t *testing.T) {
	a, err := Build("proquest", []ColumnSpec{{Name: "title", Kind: KindText}}, []parse.Record{
		{"title": "A"},
	}, nil)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	b, err := Build("proquest", testSpecs, []parse.Record{
		{"title": "B", "raw_text_length": int64(5)},
	}, []parse.BadKey{{Key: "k", Filepath: "f", Reason: parse.ReasonEmptyKey}})
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	merged := Merge([]*Batch{a, b})

	if merged.Rows() != 2 {
		t.Fatalf("Rows() = %d, want 2", merged.Rows())
	}
	if got := merged.Column("title").Value(0); got != "A" {
		t.Errorf("title[0] = %v", got)
	}
	if got := merged.Column("title").Value(1); got != "B" {
		t.Errorf("title[1] = %v", got)
	}
	// Column absent from the first batch is null for its rows.
	if got := merged.Column("raw_text_length").Value(0); got != nil {
		t.Errorf("raw_text_length[0] = %v, want nil", got)
	}
	if got := merged.Column("raw_text_length").Value(1); got != int64(5) {
		t.Errorf("raw_text_length[1] = %v, want 5", got)
	}
	if len(merged.BadKeys) != 1 {
		t.Errorf("BadKeys = %+v, want carried through merge", merged.BadKeys)
	}
}

func TestMergeEmpty(t *testing.T) {
	merged := Merge(nil)
	if merged.Rows() != 0 {
		t.Errorf("Rows() = %d, want 0", merged.Rows())
	}
}
