package database

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ensureSchema(t *testing.T, db *DB, filterConfigPath string) *SchemaManager {
	t.Helper()
	m := NewSchemaManager(db, testLogger())
	if err := m.Ensure(filterConfigPath); err != nil {
		t.Fatalf("Ensure() error = %v", err)
	}
	return m
}

func tableNames(t *testing.T, db *DB) map[string]bool {
	t.Helper()
	rows, err := db.Query("SELECT name FROM sqlite_master WHERE type IN ('table', 'view') ORDER BY name")
	if err != nil {
		t.Fatalf("failed to list objects: %v", err)
	}
	defer rows.Close()

	names := map[string]bool{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("scan: %v", err)
		}
		names[name] = true
	}
	return names
}

func TestEnsureCreatesAllObjects(t *testing.T) {
	db := testConnect(t)
	ensureSchema(t, db, "")

	names := tableNames(t, db)
	for _, want := range []string{
		"raw_articles",
		"raw_parsed_articles",
		"staging_bad_keys",
		"staging_states",
		"staging_excluded_categories",
		"staging_relevant_subjects",
		"staging_excludable_subjects",
		"staging_domestic_locations",
		"staging_locations",
		"staging_filtered_articles",
		"analytics_mic_events",
	} {
		if !names[want] {
			t.Errorf("object %s missing after Ensure()", want)
		}
	}
}

func TestEnsureIsIdempotent(t *testing.T) {
	db := testConnect(t)
	ensureSchema(t, db, "")
	before := tableNames(t, db)

	// A second run must neither fail nor change the object set.
	ensureSchema(t, db, "")
	after := tableNames(t, db)

	if len(before) != len(after) {
		t.Fatalf("object count changed: %d -> %d", len(before), len(after))
	}
	for name := range before {
		if !after[name] {
			t.Errorf("object %s lost on second Ensure()", name)
		}
	}
}

func TestEnsurePopulatesFilterTables(t *testing.T) {
	db := testConnect(t)

	configPath := filepath.Join(t.TempDir(), "category_filtering.yml")
	content := `
excluded_categories:
  - obituaries
  - sports
relevant_subjects:
  - armed conflict
domestic_locations:
  - united states
`
	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	ensureSchema(t, db, configPath)

	var categories int
	if err := db.QueryRow("SELECT COUNT(*) FROM staging_excluded_categories").Scan(&categories); err != nil {
		t.Fatalf("count categories: %v", err)
	}
	if categories != 2 {
		t.Errorf("excluded categories = %d, want 2", categories)
	}

	var subjects int
	if err := db.QueryRow("SELECT COUNT(*) FROM staging_relevant_subjects").Scan(&subjects); err != nil {
		t.Fatalf("count subjects: %v", err)
	}
	if subjects != 1 {
		t.Errorf("relevant subjects = %d, want 1", subjects)
	}

	// Repopulation replaces, never accumulates.
	ensureSchema(t, db, configPath)
	if err := db.QueryRow("SELECT COUNT(*) FROM staging_excluded_categories").Scan(&categories); err != nil {
		t.Fatalf("count categories: %v", err)
	}
	if categories != 2 {
		t.Errorf("excluded categories after repopulation = %d, want 2", categories)
	}
}

func TestFilteredViewExcludesDeniedCategories(t *testing.T) {
	db := testConnect(t)

	configPath := filepath.Join(t.TempDir(), "filters.yml")
	if err := os.WriteFile(configPath, []byte("excluded_categories:\n  - obituaries\n"), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	ensureSchema(t, db, configPath)

	insert := `INSERT INTO raw_articles (id, title, subject) VALUES (?, ?, ?)`
	if _, err := db.Exec(insert, 1, "Soldiers Clash [World]", "Conflict"); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := db.Exec(insert, 2, "Remembered Fondly [Obituaries]", "Obituary"); err != nil {
		t.Fatalf("insert: %v", err)
	}

	rows, err := db.Query("SELECT id FROM staging_filtered_articles ORDER BY id")
	if err != nil {
		t.Fatalf("query view: %v", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			t.Fatalf("scan: %v", err)
		}
		ids = append(ids, id)
	}
	if len(ids) != 1 || ids[0] != 1 {
		t.Errorf("filtered ids = %v, want [1]", ids)
	}
}

func TestResetDropsManagedObjects(t *testing.T) {
	db := testConnect(t)
	m := ensureSchema(t, db, "")

	if err := m.Reset(); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}

	names := tableNames(t, db)
	if names["raw_articles"] || names["staging_bad_keys"] {
		t.Errorf("managed tables still present after Reset(): %v", names)
	}

	// A reset database can be ensured again.
	ensureSchema(t, db, "")
	if !tableNames(t, db)["raw_articles"] {
		t.Error("raw_articles missing after re-Ensure()")
	}
}
