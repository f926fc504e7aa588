package database

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/micproject/newsetl/internal/artifact"
	"github.com/micproject/newsetl/internal/parse"
)

// FormatLoad names one format's artifacts and destination table.
type FormatLoad struct {
	Format        string
	Table         string
	ArtifactPaths []string
}

// LoadStats summarizes a bulk load run.
type LoadStats struct {
	RowsInserted  map[string]int
	BadKeysStored int
	Success       bool
}

// BulkLoader merges intermediate artifacts into the destination tables.
// Each format loads under its own transaction so one format's failure
// never rolls back the other; bad keys persist in a third, non-critical
// transaction. The ID assignment reads the table's current maximum, so
// exactly one loader may run against a table at a time.
type BulkLoader struct {
	db     *DB
	logger *slog.Logger
}

func NewBulkLoader(db *DB, logger *slog.Logger) *BulkLoader {
	return &BulkLoader{db: db, logger: logger}
}

// Load consolidates and inserts every format group, then stores collected
// bad keys. The returned stats carry overall success; per-format errors
// are logged and folded into it rather than returned.
func (l *BulkLoader) Load(loads []FormatLoad, badKeysTable string) *LoadStats {
	stats := &LoadStats{RowsInserted: map[string]int{}, Success: true}
	var badKeys []parse.BadKey

	for _, fl := range loads {
		if len(fl.ArtifactPaths) == 0 {
			l.logger.Info("no artifacts to load", "format", fl.Format)
			continue
		}

		batches := make([]*artifact.Batch, 0, len(fl.ArtifactPaths))
		readOK := true
		for _, path := range fl.ArtifactPaths {
			b, err := artifact.Read(path)
			if err != nil {
				l.logger.Error("failed to read artifact", "format", fl.Format, "path", path, "error", err)
				stats.Success = false
				readOK = false
				break
			}
			batches = append(batches, b)
		}
		if !readOK {
			continue
		}

		merged := artifact.Merge(batches)
		badKeys = append(badKeys, merged.BadKeys...)
		if merged.Rows() == 0 {
			l.logger.Info("artifacts contained no rows", "format", fl.Format)
			continue
		}

		inserted, err := l.loadFormat(fl.Table, merged)
		if err != nil {
			l.logger.Error("format load failed and was rolled back",
				"format", fl.Format, "table", fl.Table, "error", err)
			stats.Success = false
			continue
		}
		stats.RowsInserted[fl.Format] = inserted
		l.logger.Info("format load committed", "format", fl.Format, "table", fl.Table, "rows", inserted)

		// Consumed artifacts are deleted right away; a failed format keeps
		// its files for the run-level cleanup.
		for _, path := range fl.ArtifactPaths {
			if err := os.Remove(path); err != nil {
				l.logger.Warn("failed to remove consumed artifact", "path", path, "error", err)
			}
		}
	}

	if len(badKeys) > 0 {
		stored, err := l.storeBadKeys(badKeysTable, badKeys)
		if err != nil {
			// Bad key tracking is diagnostic; its failure never flips the
			// overall result.
			l.logger.Error("failed to store bad keys", "table", badKeysTable, "error", err)
		} else {
			stats.BadKeysStored = stored
			l.logger.Info("stored bad key references", "table", badKeysTable, "count", stored)
		}
	}

	return stats
}

// loadFormat inserts a consolidated batch under one transaction, assigning
// IDs monotonically above the table's current maximum.
func (l *BulkLoader) loadFormat(table string, batch *artifact.Batch) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var maxID int64
	query := fmt.Sprintf("SELECT COALESCE(MAX(id), 0) FROM %s", quoteIdent(table))
	if err := tx.QueryRow(query).Scan(&maxID); err != nil {
		return 0, fmt.Errorf("failed to read max id from %s: %w", table, err)
	}

	columns := make([]string, 0, len(batch.Columns)+1)
	columns = append(columns, quoteIdent("id"))
	for _, col := range batch.Columns {
		columns = append(columns, quoteIdent(col.Name))
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(columns, ", "), placeholders))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare insert into %s: %w", table, err)
	}
	defer stmt.Close()

	rows := batch.Rows()
	args := make([]any, len(columns))
	for r := 0; r < rows; r++ {
		args[0] = maxID + int64(r) + 1
		for c := range batch.Columns {
			args[c+1] = batch.Columns[c].Value(r)
		}
		if _, err := stmt.Exec(args...); err != nil {
			return 0, fmt.Errorf("failed to insert row %d into %s: %w", r+1, table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit load into %s: %w", table, err)
	}
	return rows, nil
}

// storeBadKeys persists bad key references idempotently: the unique
// constraint absorbs repeats across runs.
func (l *BulkLoader) storeBadKeys(table string, badKeys []parse.BadKey) (int, error) {
	tx, err := l.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(
		`INSERT OR IGNORE INTO %s ("key", filepath, reason) VALUES (?, ?, ?)`, quoteIdent(table)))
	if err != nil {
		return 0, fmt.Errorf("failed to prepare bad key insert: %w", err)
	}
	defer stmt.Close()

	for _, bk := range badKeys {
		if _, err := stmt.Exec(bk.Key, bk.Filepath, bk.Reason); err != nil {
			return 0, fmt.Errorf("failed to insert bad key %q: %w", bk.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bad keys: %w", err)
	}
	return len(badKeys), nil
}

// PopulateLocations rebuilds the normalized locations lookup from the
// loaded articles' semicolon separated location field. It runs only when
// the source table has rows, so an empty lookup is never derived before
// the first load.
func (l *BulkLoader) PopulateLocations(sourceTable string) error {
	var hasRows int
	query := fmt.Sprintf("SELECT EXISTS(SELECT 1 FROM %s LIMIT 1)", quoteIdent(sourceTable))
	if err := l.db.QueryRow(query).Scan(&hasRows); err != nil {
		return fmt.Errorf("failed to check %s for rows: %w", sourceTable, err)
	}
	if hasRows == 0 {
		l.logger.Info("no articles loaded yet, leaving locations table unchanged", "source", sourceTable)
		return nil
	}

	locations, err := l.distinctLocations(sourceTable)
	if err != nil {
		return err
	}

	tx, err := l.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM staging_locations"); err != nil {
		return fmt.Errorf("failed to clear staging_locations: %w", err)
	}
	stmt, err := tx.Prepare("INSERT OR IGNORE INTO staging_locations (location_name) VALUES (?)")
	if err != nil {
		return fmt.Errorf("failed to prepare location insert: %w", err)
	}
	defer stmt.Close()
	for _, loc := range locations {
		if _, err := stmt.Exec(loc); err != nil {
			return fmt.Errorf("failed to insert location %q: %w", loc, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit locations: %w", err)
	}
	l.logger.Info("populated locations lookup", "count", len(locations))
	return nil
}

// distinctLocations is split out so its result set is fully consumed and
// closed before the write transaction starts; the pool holds a single
// connection.
func (l *BulkLoader) distinctLocations(sourceTable string) ([]string, error) {
	rows, err := l.db.Query(fmt.Sprintf(
		"SELECT location FROM %s WHERE location IS NOT NULL AND trim(location) != ''", quoteIdent(sourceTable)))
	if err != nil {
		return nil, fmt.Errorf("failed to read locations from %s: %w", sourceTable, err)
	}
	defer rows.Close()

	seen := map[string]bool{}
	var locations []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		for _, part := range strings.Split(raw, ";") {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			locations = append(locations, part)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read locations from %s: %w", sourceTable, err)
	}
	return locations, nil
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
