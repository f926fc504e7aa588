package annotate

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/micproject/newsetl/internal/database"
)

// Generator produces a raw model response for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// RunStats summarizes one annotation run.
type RunStats struct {
	ArticlesProcessed int
	EventsStored      int
	FailedBatches     int
}

// Annotator pages through filtered articles, prompts the model in
// batches, validates the responses and stores the resulting events.
type Annotator struct {
	source      database.ArticleSource
	sink        database.EventSink
	generator   Generator
	table       string
	batchSize   int
	maxRetries  int
	retryDelay  time.Duration
	resultsPath string
	logger      *slog.Logger
}

func NewAnnotator(source database.ArticleSource, sink database.EventSink, generator Generator,
	table string, batchSize, maxRetries int, logger *slog.Logger) *Annotator {
	if batchSize < 1 {
		batchSize = 1
	}
	return &Annotator{
		source:     source,
		sink:       sink,
		generator:  generator,
		table:      table,
		batchSize:  batchSize,
		maxRetries: maxRetries,
		retryDelay: 10 * time.Second,
		logger:     logger,
	}
}

// WriteResultsTo makes the annotator append every validated annotation,
// explanations included, to a JSON lines file at path. The dataset maker
// consumes this file.
func (a *Annotator) WriteResultsTo(path string) {
	a.resultsPath = path
}

// Run annotates every filtered article. A batch that keeps failing after
// retries is skipped and counted; it never aborts the run.
func (a *Annotator) Run(ctx context.Context) (*RunStats, error) {
	total, err := a.source.CountFilteredArticles()
	if err != nil {
		return nil, fmt.Errorf("failed to count filtered articles: %w", err)
	}
	a.logger.Info("starting annotation run", "articles", total, "batch_size", a.batchSize)

	stats := &RunStats{}
	for offset := 0; offset < total; offset += a.batchSize {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		articles, err := a.source.GetFilteredArticles(a.batchSize, offset)
		if err != nil {
			return stats, fmt.Errorf("failed to fetch articles at offset %d: %w", offset, err)
		}
		if len(articles) == 0 {
			break
		}

		annotations, err := a.annotateBatch(ctx, articles)
		if err != nil {
			a.logger.Error("batch failed after retries, skipping", "offset", offset, "error", err)
			stats.FailedBatches++
			continue
		}

		if a.resultsPath != "" {
			if err := appendResults(a.resultsPath, annotations); err != nil {
				a.logger.Error("failed to append annotation results", "path", a.resultsPath, "error", err)
			}
		}

		events := eventsFromAnnotations(annotations)
		if len(events) > 0 {
			if err := a.sink.StoreEvents(a.table, events); err != nil {
				return stats, fmt.Errorf("failed to store events: %w", err)
			}
		}
		stats.ArticlesProcessed += len(articles)
		stats.EventsStored += len(events)
		a.logger.Info("batch annotated", "offset", offset, "articles", len(articles), "events", len(events))
	}

	a.logger.Info("annotation run finished",
		"articles", stats.ArticlesProcessed, "events", stats.EventsStored, "failed_batches", stats.FailedBatches)
	return stats, nil
}

func (a *Annotator) annotateBatch(ctx context.Context, articles []database.Article) ([][]Annotation, error) {
	ids := make([]int64, len(articles))
	for i, article := range articles {
		ids[i] = article.ID
	}
	prompt := BuildPrompt(articles)

	var lastErr error
	for attempt := 0; attempt <= a.maxRetries; attempt++ {
		if attempt > 0 {
			a.logger.Warn("retrying batch", "attempt", attempt, "error", lastErr)
			select {
			case <-time.After(a.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		raw, err := a.generator.Generate(ctx, prompt)
		if err != nil {
			lastErr = err
			continue
		}
		annotations, err := DecodeBatch(raw, ids)
		if err != nil {
			lastErr = err
			continue
		}
		return annotations, nil
	}
	return nil, lastErr
}

// eventsFromAnnotations converts relevant, non-failed annotations into
// storable events. Event IDs are deterministic per article and event
// index, so reruns replace rather than duplicate.
func eventsFromAnnotations(annotations [][]Annotation) []database.Event {
	var events []database.Event
	for _, perArticle := range annotations {
		eventIndex := 0
		for _, a := range perArticle {
			if !a.IsRelevant || a.ValidationStatus == StatusFailed {
				continue
			}
			eventIndex++

			event := database.Event{
				EventID:        fmt.Sprintf("article-%d-event-%d", a.ArticleID, eventIndex),
				EventDate:      eventDate(a.StartYear, a.StartMonth, a.StartDay),
				FatalitiesMin:  a.FatalitiesMin,
				FatalitiesMax:  a.FatalitiesMax,
				SourceArticles: []int64{a.ArticleID},
				Notes:          a.Explanation,
			}
			if len(a.CountriesSufferingLosses) > 0 {
				event.Country1 = a.CountriesSufferingLosses[0]
			}
			if len(a.CountriesCausingLosses) > 0 {
				event.Country2 = a.CountriesCausingLosses[0]
			}
			if a.FatalitiesMin != nil && a.FatalitiesMax != nil && *a.FatalitiesMin == *a.FatalitiesMax {
				exact := *a.FatalitiesMin
				event.FatalitiesExact = &exact
			}
			events = append(events, event)
		}
	}
	return events
}

func appendResults(path string, annotations [][]Annotation) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open results file: %w", err)
	}
	enc := json.NewEncoder(f)
	for _, perArticle := range annotations {
		for _, a := range perArticle {
			if err := enc.Encode(a); err != nil {
				f.Close()
				return fmt.Errorf("failed to encode annotation: %w", err)
			}
		}
	}
	return f.Close()
}

func eventDate(year, month, day *int64) *string {
	if year == nil || month == nil || day == nil {
		return nil
	}
	if *year == unknownComponent || *month == unknownComponent || *day == unknownComponent {
		return nil
	}
	date := fmt.Sprintf("%04d-%02d-%02d", *year, *month, *day)
	return &date
}
