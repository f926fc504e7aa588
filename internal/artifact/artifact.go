// Package artifact implements the intermediate columnar batch files that
// parse workers write and the bulk loader consumes. One artifact holds the
// records of one source file, homogeneous per format.
package artifact

import (
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/micproject/newsetl/internal/parse"
)

// Kind is a column's logical type.
type Kind int

const (
	KindText Kind = iota
	KindInteger
	KindDate
)

// ColumnSpec names a destination column and its kind. The spec list comes
// from the destination table's catalog, which keeps artifacts aligned with
// schema changes without hardcoded column sets.
type ColumnSpec struct {
	Name string
	Kind Kind
}

// Column is one typed column with per-row nullability. One of the value
// slices is populated, matching Kind, and Null marks the rows whose value
// slot is a placeholder. Gob refuses nil elements inside slices, so nulls
// are carried as a validity mask instead of pointers.
type Column struct {
	Name string
	Kind Kind
	Text []string
	Ints []int64
	Null []bool
}

// Value returns the column's value at row as string, int64 or nil.
func (c *Column) Value(row int) any {
	if c.Null[row] {
		return nil
	}
	if c.Kind == KindInteger {
		return c.Ints[row]
	}
	return c.Text[row]
}

func (c *Column) rows() int {
	return len(c.Null)
}

func (c *Column) appendNull() {
	if c.Kind == KindInteger {
		c.Ints = append(c.Ints, 0)
	} else {
		c.Text = append(c.Text, "")
	}
	c.Null = append(c.Null, true)
}

func (c *Column) appendText(s string) {
	c.Text = append(c.Text, s)
	c.Null = append(c.Null, false)
}

func (c *Column) appendInt(n int64) {
	c.Ints = append(c.Ints, n)
	c.Null = append(c.Null, false)
}

// Batch is a columnar set of parsed records plus the bad keys found while
// parsing them.
type Batch struct {
	Format  string
	Columns []Column
	BadKeys []parse.BadKey
}

// Rows returns the number of records in the batch.
func (b *Batch) Rows() int {
	if len(b.Columns) == 0 {
		return 0
	}
	return b.Columns[0].rows()
}

// Column returns the named column or nil.
func (b *Batch) Column(name string) *Column {
	for i := range b.Columns {
		if b.Columns[i].Name == name {
			return &b.Columns[i]
		}
	}
	return nil
}

// Build projects records onto the given column specs. Fields absent from a
// record become nulls; fields not named in specs are dropped. A value of
// the wrong type for its column is an error, since it means the parser and
// the destination schema disagree.
func Build(format string, specs []ColumnSpec, records []parse.Record, badKeys []parse.BadKey) (*Batch, error) {
	b := &Batch{Format: format, BadKeys: badKeys}
	for _, spec := range specs {
		b.Columns = append(b.Columns, Column{Name: spec.Name, Kind: spec.Kind})
	}

	for _, record := range records {
		for i := range b.Columns {
			col := &b.Columns[i]
			value, ok := record[col.Name]
			if !ok || value == nil {
				col.appendNull()
				continue
			}
			switch col.Kind {
			case KindInteger:
				n, ok := value.(int64)
				if !ok {
					return nil, fmt.Errorf("column %s: expected int64, got %T", col.Name, value)
				}
				col.appendInt(n)
			default:
				s, ok := value.(string)
				if !ok {
					return nil, fmt.Errorf("column %s: expected string, got %T", col.Name, value)
				}
				col.appendText(s)
			}
		}
	}
	return b, nil
}

// Write persists the batch to a uniquely named compressed file in dir and
// returns the file's path.
func Write(b *Batch, dir string) (string, error) {
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.batch.gz", b.Format, uuid.New().String()))

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create artifact: %w", err)
	}
	defer f.Close()

	zw := gzip.NewWriter(f)
	if err := gob.NewEncoder(zw).Encode(b); err != nil {
		zw.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to encode artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to finish artifact: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to close artifact: %w", err)
	}
	return path, nil
}

// Read loads a batch previously produced by Write.
func Read(path string) (*Batch, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open artifact: %w", err)
	}
	defer f.Close()

	zr, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	defer zr.Close()

	var b Batch
	if err := gob.NewDecoder(zr).Decode(&b); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	return &b, nil
}

// Merge consolidates same-format batches by column name. A column missing
// from one batch contributes nulls for that batch's rows, so artifacts
// written against slightly different column sets still consolidate.
func Merge(batches []*Batch) *Batch {
	if len(batches) == 0 {
		return &Batch{}
	}

	merged := &Batch{Format: batches[0].Format}
	seen := map[string]bool{}
	for _, b := range batches {
		for _, col := range b.Columns {
			if !seen[col.Name] {
				seen[col.Name] = true
				merged.Columns = append(merged.Columns, Column{Name: col.Name, Kind: col.Kind})
			}
		}
	}

	for _, b := range batches {
		rows := b.Rows()
		for i := range merged.Columns {
			dst := &merged.Columns[i]
			src := b.Column(dst.Name)
			if src == nil || src.Kind != dst.Kind {
				for r := 0; r < rows; r++ {
					dst.appendNull()
				}
				continue
			}
			if dst.Kind == KindInteger {
				dst.Ints = append(dst.Ints, src.Ints...)
			} else {
				dst.Text = append(dst.Text, src.Text...)
			}
			dst.Null = append(dst.Null, src.Null...)
		}
		merged.BadKeys = append(merged.BadKeys, b.BadKeys...)
	}
	return merged
}
