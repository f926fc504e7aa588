package database

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// FilterConfig is the optional category filtering document. It seeds the
// staging allow/deny tables and may supply the filtered articles view's
// defining query.
type FilterConfig struct {
	ExcludedCategories []string `yaml:"excluded_categories"`
	RelevantSubjects   []string `yaml:"relevant_subjects"`
	ExcludableSubjects []string `yaml:"excludable_subjects"`
	DomesticLocations  []string `yaml:"domestic_locations"`
	FilteredArticles   string   `yaml:"filtered_articles"`
}

// defaultFilteredArticlesView excludes articles whose bracket-derived
// category is denied, and when a relevant subject list exists, keeps only
// articles matching one of its entries.
const defaultFilteredArticlesView = `
SELECT a.*
FROM raw_articles a
WHERE NOT EXISTS (
    SELECT 1 FROM staging_excluded_categories ec
    WHERE ec.category_name = bracket_category(a.title)
)
AND (
    NOT EXISTS (SELECT 1 FROM staging_relevant_subjects)
    OR EXISTS (
        SELECT 1 FROM staging_relevant_subjects rs
        WHERE lower(a.subject) LIKE '%' || lower(rs.subject_name) || '%'
    )
)`

// SchemaManager owns the destination's structural objects: migrated
// tables, category filter contents and the filtered articles view. Every
// operation is idempotent, so repeated runs are safe.
type SchemaManager struct {
	db     *DB
	logger *slog.Logger
}

func NewSchemaManager(db *DB, logger *slog.Logger) *SchemaManager {
	return &SchemaManager{db: db, logger: logger}
}

// Ensure migrates the schema and refreshes filter tables and the view
// from the config at filterConfigPath (empty or missing path means empty
// filters and the default view). Verification problems are logged, never
// returned.
func (m *SchemaManager) Ensure(filterConfigPath string) error {
	version, dirty, err := RunMigrations(m.db)
	if err != nil {
		return fmt.Errorf("schema migration failed: %w", err)
	}
	m.logger.Info("schema migrated", "version", version, "dirty", dirty)

	cfg := m.loadFilterConfig(filterConfigPath)
	if err := m.populateFilters(cfg); err != nil {
		return fmt.Errorf("failed to populate filter tables: %w", err)
	}

	m.verify()
	return nil
}

func (m *SchemaManager) loadFilterConfig(path string) *FilterConfig {
	cfg := &FilterConfig{}
	if path == "" {
		return cfg
	}

	data, err := os.ReadFile(path)
	if err != nil {
		m.logger.Warn("category filter config not readable, filter tables will be empty",
			"path", path, "error", err)
		return cfg
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		m.logger.Warn("category filter config is invalid YAML, filter tables will be empty",
			"path", path, "error", err)
		return &FilterConfig{}
	}
	m.logger.Info("loaded category filter config", "path", path)
	return cfg
}

// populateFilters rewrites the filter tables and the filtered articles
// view inside one transaction.
func (m *SchemaManager) populateFilters(cfg *FilterConfig) error {
	tx, err := m.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	inserts := []struct {
		table  string
		column string
		values []string
	}{
		{"staging_excluded_categories", "category_name", cfg.ExcludedCategories},
		{"staging_relevant_subjects", "subject_name", cfg.RelevantSubjects},
		{"staging_excludable_subjects", "subject_name", cfg.ExcludableSubjects},
		{"staging_domestic_locations", "location_name", cfg.DomesticLocations},
	}

	for _, ins := range inserts {
		if _, err := tx.Exec("DELETE FROM " + ins.table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", ins.table, err)
		}
		stmt, err := tx.Prepare(fmt.Sprintf("INSERT OR IGNORE INTO %s (%s) VALUES (?)", ins.table, ins.column))
		if err != nil {
			return fmt.Errorf("failed to prepare insert for %s: %w", ins.table, err)
		}
		count := 0
		for _, value := range dedupe(ins.values) {
			if _, err := stmt.Exec(value); err != nil {
				stmt.Close()
				return fmt.Errorf("failed to insert into %s: %w", ins.table, err)
			}
			count++
		}
		stmt.Close()
		if count > 0 {
			m.logger.Info("populated filter table", "table", ins.table, "rows", count)
		}
	}

	viewSQL := cfg.FilteredArticles
	if viewSQL == "" {
		viewSQL = defaultFilteredArticlesView
	}
	if _, err := tx.Exec("DROP VIEW IF EXISTS staging_filtered_articles"); err != nil {
		return fmt.Errorf("failed to drop filtered articles view: %w", err)
	}
	if _, err := tx.Exec("CREATE VIEW staging_filtered_articles AS " + viewSQL); err != nil {
		return fmt.Errorf("failed to create filtered articles view: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit filter tables: %w", err)
	}
	return nil
}

// verify smoke-tests the structural objects. Failures here are warnings:
// the schema was already committed and a verification quirk must not fail
// the run.
func (m *SchemaManager) verify() {
	expected := []string{
		"raw_articles", "raw_parsed_articles", "staging_bad_keys",
		"staging_locations", "staging_excluded_categories",
		"staging_relevant_subjects", "staging_excludable_subjects",
		"staging_domestic_locations", "analytics_mic_events",
	}
	for _, table := range expected {
		var name string
		err := m.db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?", table).Scan(&name)
		if err != nil {
			m.logger.Warn("expected table not found during verification", "table", table, "error", err)
		}
	}

	var category sql.NullString
	if err := m.db.QueryRow("SELECT bracket_category('Test [Category]')").Scan(&category); err != nil {
		m.logger.Warn("bracket_category smoke test failed", "error", err)
	} else if category.String != "category" {
		m.logger.Warn("bracket_category smoke test returned unexpected value", "got", category.String)
	}

	var count int
	if err := m.db.QueryRow("SELECT COUNT(*) FROM staging_filtered_articles").Scan(&count); err != nil {
		m.logger.Warn("filtered articles view cannot be queried", "error", err)
	}
}

// Reset drops every managed object so a forced run starts from scratch.
func (m *SchemaManager) Reset() error {
	statements := []string{
		"DROP VIEW IF EXISTS staging_filtered_articles",
		"DROP TABLE IF EXISTS analytics_mic_events",
		"DROP TABLE IF EXISTS staging_locations",
		"DROP TABLE IF EXISTS staging_domestic_locations",
		"DROP TABLE IF EXISTS staging_excludable_subjects",
		"DROP TABLE IF EXISTS staging_relevant_subjects",
		"DROP TABLE IF EXISTS staging_excluded_categories",
		"DROP TABLE IF EXISTS staging_states",
		"DROP TABLE IF EXISTS staging_bad_keys",
		"DROP TABLE IF EXISTS raw_parsed_articles",
		"DROP TABLE IF EXISTS raw_articles",
		"DROP TABLE IF EXISTS schema_migrations",
	}
	for _, stmt := range statements {
		if _, err := m.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to reset schema: %w", err)
		}
	}
	m.logger.Info("dropped managed tables and views")
	return nil
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	var out []string
	for _, v := range values {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
