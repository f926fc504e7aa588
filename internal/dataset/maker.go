// Package dataset turns stored annotation results and their source
// articles into ShareGPT-format fine-tuning data, split into train and
// eval files.
package dataset

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/micproject/newsetl/internal/database"
)

// excludedFields are bookkeeping keys stripped from each annotation
// before it becomes an assistant turn.
var excludedFields = []string{"validation_status", "validation_issues", "record_type"}

const maxPromptTextChars = 18000

const systemPrompt = `You are an AI expert specializing in identifying Militarized Interstate Confrontation (MIC) events involving fatalities from text, based on strict definitions. Respond only with a valid JSON array containing objects as specified below.

MIC Definition (strict): a relevant MIC event occurs when the military forces of one internationally recognized state directly cause the death of one or more military personnel belonging to another internationally recognized state.

Rules:
- Focus only on deaths of military personnel; ignore civilian deaths.
- Exclude incidents whose fatalities are identified only as police, border guards or other non-military state personnel.
- The event must be interstate: directly between the official armed forces of two or more recognized states.
- Use the standard full country names exactly as given in the eligible country list.
- Generate a distinct JSON object for each incident that meets the definition, including events mentioned as background or historical context.

Output format: if relevant events are found, return a JSON array with one object per event carrying article_id, is_relevant (true), start_year, start_month, start_day, end_year, end_month, end_day (integers, -9 when unknown), fatalities_min, fatalities_max (integers), countries_suffering_losses, countries_causing_losses (string arrays) and explanation. If no relevant events are found, return a JSON array with exactly one object where is_relevant is false, every date and fatality field is null, both country arrays are empty, and explanation says why.

Respond only with a single, valid JSON array.`

// Options configures a dataset build.
type Options struct {
	OutputDir    string
	TrainFile    string
	EvalFile     string
	EvalFraction float64
	Seed         int64
}

// BuildStats summarizes a dataset build.
type BuildStats struct {
	Entries      int
	TrainEntries int
	EvalEntries  int
	Skipped      int
}

type conversation struct {
	Conversations []turn `json:"conversations"`
}

type turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Maker assembles conversations from annotation results and article
// rows.
type Maker struct {
	source database.ArticleSource
	logger *slog.Logger
}

func NewMaker(source database.ArticleSource, logger *slog.Logger) *Maker {
	return &Maker{source: source, logger: logger}
}

// Build reads the annotation results JSONL at resultsPath, joins each
// article's annotations with its stored row, and writes shuffled train
// and eval conversation files.
func (m *Maker) Build(resultsPath string, opts Options) (*BuildStats, error) {
	responses, err := m.readResults(resultsPath)
	if err != nil {
		return nil, err
	}
	if len(responses) == 0 {
		return nil, fmt.Errorf("no usable annotation results in %s", resultsPath)
	}

	ids := make([]int64, 0, len(responses))
	for id := range responses {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	articles, err := m.source.GetArticlesByIDs(ids)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch articles: %w", err)
	}
	articleByID := make(map[int64]database.Article, len(articles))
	for _, article := range articles {
		articleByID[article.ID] = article
	}

	stats := &BuildStats{}
	var entries []conversation
	for _, id := range ids {
		article, ok := articleByID[id]
		if !ok {
			m.logger.Warn("annotated article missing from database, skipping", "article_id", id)
			stats.Skipped++
			continue
		}
		entry, err := buildEntry(article, responses[id])
		if err != nil {
			m.logger.Warn("failed to build conversation, skipping", "article_id", id, "error", err)
			stats.Skipped++
			continue
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("no conversations could be built")
	}
	stats.Entries = len(entries)

	rng := rand.New(rand.NewSource(opts.Seed))
	rng.Shuffle(len(entries), func(i, j int) {
		entries[i], entries[j] = entries[j], entries[i]
	})

	evalCount := int(float64(len(entries)) * opts.EvalFraction)
	stats.EvalEntries = evalCount
	stats.TrainEntries = len(entries) - evalCount

	if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := writeJSONL(filepath.Join(opts.OutputDir, opts.EvalFile), entries[:evalCount]); err != nil {
		return nil, err
	}
	if err := writeJSONL(filepath.Join(opts.OutputDir, opts.TrainFile), entries[evalCount:]); err != nil {
		return nil, err
	}

	m.logger.Info("dataset written",
		"train", stats.TrainEntries, "eval", stats.EvalEntries, "skipped", stats.Skipped)
	return stats, nil
}

// readResults parses the results JSONL into per-article response lists,
// dropping bookkeeping fields. Malformed lines are skipped, not fatal.
func (m *Maker) readResults(path string) (map[int64][]map[string]any, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open results file: %w", err)
	}
	defer f.Close()

	responses := map[int64][]map[string]any{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var obj map[string]any
		if err := json.Unmarshal([]byte(line), &obj); err != nil {
			m.logger.Warn("skipping malformed results line", "line", lineNo, "error", err)
			continue
		}
		id, ok := obj["article_id"].(float64)
		if !ok {
			m.logger.Warn("skipping results line without article_id", "line", lineNo)
			continue
		}
		for _, field := range excludedFields {
			delete(obj, field)
		}
		responses[int64(id)] = append(responses[int64(id)], obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read results file: %w", err)
	}
	return responses, nil
}

func buildEntry(article database.Article, responses []map[string]any) (conversation, error) {
	assistant, err := json.Marshal(responses)
	if err != nil {
		return conversation{}, fmt.Errorf("failed to encode responses: %w", err)
	}
	return conversation{Conversations: []turn{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent(article)},
		{Role: "assistant", Content: string(assistant)},
	}}, nil
}

func userContent(article database.Article) string {
	text := article.FullText.String
	if len(text) > maxPromptTextChars {
		text = text[:maxPromptTextChars] + " [TEXT TRUNCATED]"
	}

	return fmt.Sprintf(`Analyze the following news article using the MIC definitions and formatting rules provided in the system prompt.

**Input Article Context:**
*   Article ID: %d
*   Publication Date: %s
*   %s
*   %s
*   %s

**Full Article Text:**
--- START TEXT ---
%s
--- END TEXT ---
`,
		article.ID,
		formatDate(article.PublicationDate.String),
		contextLine("Location Context", article.Location.String),
		contextLine("Subject Context", article.Subject.String),
		contextLine("People Context", article.People.String),
		text)
}

func formatDate(raw string) string {
	if raw == "" {
		return "N/A"
	}
	for _, layout := range []string{"Jan 2, 2006", "2006-01-02"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("Monday, January 2, 2006")
		}
	}
	return raw
}

func contextLine(label, value string) string {
	if value == "" {
		return label + ": Not Available"
	}
	return label + ": " + value
}

func writeJSONL(path string, entries []conversation) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, entry := range entries {
		if err := enc.Encode(entry); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	return f.Close()
}
