package database

import (
	"database/sql"
	"database/sql/driver"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	sqlite3 "modernc.org/sqlite"
)

// DB wraps the embedded SQLite handle.
type DB struct {
	*sql.DB
	Path string
}

var registerOnce sync.Once

// Connect opens (creating if needed) the database file at path. The
// connection pool is pinned to a single connection; the loader's ID
// assignment assumes a sole writer.
func Connect(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	registerOnce.Do(registerFunctions)

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set journal mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db, Path: path}, nil
}

// registerFunctions installs bracket_category, the title normalization
// function the filtered articles view depends on.
func registerFunctions() {
	sqlite3.MustRegisterDeterministicScalarFunction("bracket_category", 1,
		func(ctx *sqlite3.FunctionContext, args []driver.Value) (driver.Value, error) {
			switch v := args[0].(type) {
			case string:
				return bracketCategory(v), nil
			case []byte:
				return bracketCategory(string(v)), nil
			default:
				return nil, nil
			}
		})
}

var (
	categoryBracket = regexp.MustCompile(`\[(.*?)\]`)
	categoryNumeric = regexp.MustCompile(`^\s*\d+\s*$`)
	nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)
)

// bracketCategory derives a normalized category token from an article
// title. Paid notices categorize by the text after the first colon; other
// titles by their last bracketed label, skipping a trailing numeric page
// marker. Returns nil (SQL NULL) when no category applies.
func bracketCategory(title string) driver.Value {
	if strings.Contains(title, "Paid Notice:") {
		parts := strings.Split(title, ":")
		if len(parts) < 2 {
			return nil
		}
		return normalizeCategory(parts[1])
	}

	groups := categoryBracket.FindAllStringSubmatch(title, -1)
	if len(groups) == 0 {
		return nil
	}
	if len(groups) == 1 {
		if categoryNumeric.MatchString(groups[0][1]) {
			return nil
		}
		return normalizeCategory(groups[0][1])
	}

	last := groups[len(groups)-1][1]
	if categoryNumeric.MatchString(last) {
		return normalizeCategory(groups[len(groups)-2][1])
	}
	return normalizeCategory(last)
}

func normalizeCategory(s string) string {
	return strings.ToLower(nonAlphanumeric.ReplaceAllString(strings.TrimSpace(s), ""))
}
