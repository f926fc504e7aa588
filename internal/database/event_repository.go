package database

import (
	"encoding/json"
	"fmt"
)

// Event is one validated militarized-incident annotation derived from one
// or more source articles.
type Event struct {
	EventID         string
	EventDate       *string
	Country1        string
	Country2        string
	FatalitiesMin   *int64
	FatalitiesMax   *int64
	FatalitiesExact *int64
	Confidence      *float64
	SourceArticles  []int64
	Notes           string
}

// EventRepository handles persistence of validated annotations
type EventRepository struct {
	db *DB
}

// NewEventRepository creates a new event repository
func NewEventRepository(db *DB) *EventRepository {
	return &EventRepository{db: db}
}

// StoreEvents upserts validated events in one transaction. Source article
// IDs are stored as a JSON array.
func (r *EventRepository) StoreEvents(table string, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(fmt.Sprintf(`
		INSERT OR REPLACE INTO %s (
			event_id, event_date, country1, country2,
			fatalities_min, fatalities_max, fatalities_exact,
			confidence, source_articles, notes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, quoteIdent(table)))
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range events {
		sources, err := json.Marshal(e.SourceArticles)
		if err != nil {
			return fmt.Errorf("failed to marshal source articles for %s: %w", e.EventID, err)
		}
		_, err = stmt.Exec(e.EventID, e.EventDate, e.Country1, e.Country2,
			e.FatalitiesMin, e.FatalitiesMax, e.FatalitiesExact,
			e.Confidence, string(sources), e.Notes)
		if err != nil {
			return fmt.Errorf("failed to insert event %s: %w", e.EventID, err)
		}
	}

	return tx.Commit()
}

// CountEvents returns the number of stored events.
func (r *EventRepository) CountEvents(table string) (int, error) {
	var count int
	err := r.db.QueryRow(fmt.Sprintf("SELECT COUNT(*) FROM %s", quoteIdent(table))).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return count, nil
}
