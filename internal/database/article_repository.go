package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// Article is the projection of a loaded article that the annotation and
// dataset stages consume.
type Article struct {
	ID              int64
	PublicationDate sql.NullString
	FullText        sql.NullString
	Location        sql.NullString
	Subject         sql.NullString
	People          sql.NullString
}

// ArticleRepository handles read access to loaded articles
type ArticleRepository struct {
	db *DB
}

// NewArticleRepository creates a new article repository
func NewArticleRepository(db *DB) *ArticleRepository {
	return &ArticleRepository{db: db}
}

const articleColumns = "id, publication_date, full_text, location, subject, people"

// GetFilteredArticles returns a page of articles from the filtered view in
// id order.
func (r *ArticleRepository) GetFilteredArticles(limit, offset int) ([]Article, error) {
	rows, err := r.db.Query(fmt.Sprintf(`
		SELECT %s FROM staging_filtered_articles
		ORDER BY id
		LIMIT ? OFFSET ?
	`, articleColumns), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query filtered articles: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// GetArticlesByIDs fetches specific articles from the raw table.
func (r *ArticleRepository) GetArticlesByIDs(ids []int64) ([]Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := r.db.Query(fmt.Sprintf(`
		SELECT %s FROM raw_articles WHERE id IN (%s) ORDER BY id
	`, articleColumns, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles by id: %w", err)
	}
	defer rows.Close()

	return scanArticles(rows)
}

// CountFilteredArticles returns the filtered view's row count.
func (r *ArticleRepository) CountFilteredArticles() (int, error) {
	var count int
	err := r.db.QueryRow("SELECT COUNT(*) FROM staging_filtered_articles").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count filtered articles: %w", err)
	}
	return count, nil
}

func scanArticles(rows *sql.Rows) ([]Article, error) {
	var articles []Article
	for rows.Next() {
		var a Article
		if err := rows.Scan(&a.ID, &a.PublicationDate, &a.FullText, &a.Location, &a.Subject, &a.People); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read articles: %w", err)
	}
	return articles, nil
}
