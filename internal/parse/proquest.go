package parse

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Label patterns shared between field specs. Exports are inconsistent
// about spacing around the colon, so every label tolerates it.
const (
	labelSubject  = `Subject\s*:`
	labelLocation = `Location\s*:`
	labelPeople   = `People\s*:`
	labelCompany  = `Company\s*/\s*Org\s*:`
	labelKeyword  = `Identifier\s*/\s*keyword\s*:`
	labelDocID    = `ProQuest document ID\s*:`
	labelDocURL   = `Document URL\s*:`
	labelCopy     = `Copyright\s*:`
	labelFullText = `Full text\s*:`
	labelAbstract = `Abstract\s*:`
	labelPubTitle = `Publication title\s*:|Publicationtitle\s*:`
	labelPubDate  = `Publication date\s*:`
	labelAuthor   = `Author\s*:`
)

// Title matching is stricter than the other fields: the label and its
// terminators are case sensitive and spelled exactly as exported.
var pqTitleField = fieldSpec{
	column:     "title",
	start:      regexp.MustCompile(`(?m)^Title:`),
	terminator: regexp.MustCompile(`\n(?:Author:|Publication title:|Publicationtitle:|Abstract:|Full text:|\n)`),
}

var pqBlockFields = []fieldSpec{
	blockField("author", labelAuthor, labelPubTitle, labelAbstract, labelFullText),
	blockField("abstract", labelAbstract, `Links\s*:`, labelFullText, labelSubject),
	blockField("full_text", labelFullText,
		labelSubject, labelLocation, labelPeople, labelCompany, labelKeyword, labelDocID, labelDocURL, labelCopy),
	blockField("publication_title", labelPubTitle,
		`Pages\s*:`, `Publication year\s*:`, labelPubDate, `Section\s*:`),
	blockField("location", labelLocation, labelSubject, labelPeople),
	blockField("subject", labelSubject, labelLocation, labelPeople, labelCompany, labelKeyword),
	blockField("people", labelPeople, labelCompany, labelKeyword),
	blockField("keywords", labelKeyword, labelDocID),
	blockField("copyright", labelCopy, labelDocID),
}

var pqLineFields = []fieldSpec{
	lineField("section_code", `Section\s*:`),
	lineField("url", `(?:Document URL|URL)\s*:`),
	lineField("page", `Pages\s*:`),
	lineField("publication_date_raw", labelPubDate),
	lineField("document_id", labelDocID),
	lineField("place_of_publication", `Place of publication\s*:`),
	lineField("country_of_publication", `Country of publication\s*:`),
	lineField("document_type", `Document type\s*:`),
	lineField("publisher", `Publisher\s*:`),
	lineField("last_updated", `Last updated\s*:`),
	lineField("issn", `ISSN\s*:`),
	lineField("source_type", `Source type\s*:`),
	lineField("language", `Language(?: of publication)?\s*:`),
	lineField("database", `Database\s*:`),
}

var (
	pqYearField = lineField("publication_year", `Publication year\s*:`)

	// Header fields whose end offset bounds the body in the fallback
	// full text path. Only the label's own line counts.
	pqHeaderLines = []*regexp.Regexp{
		regexp.MustCompile(`(?m)^Title:.*`),
		regexp.MustCompile(`(?mi)^Author\s*:.*`),
		regexp.MustCompile(`(?mi)^Publication title\s*:.*`),
		regexp.MustCompile(`(?mi)^Publication date\s*:.*`),
		regexp.MustCompile(`(?mi)^Abstract\s*:.*`),
	}

	pqTrailingMeta = regexp.MustCompile(`(?i)\n(?:` + strings.Join([]string{
		labelSubject, labelLocation, labelPeople, labelCompany,
		labelKeyword, labelDocID, labelDocURL, labelCopy,
	}, "|") + `)`)

	bracketGroup  = regexp.MustCompile(`\[(.*?)\]`)
	numericOnly   = regexp.MustCompile(`^\s*\d+\s*$`)
	titleJunk     = regexp.MustCompile(`[^a-zA-Z0-9\s.,;:!?()-]+\s*$`)
	fourDigitYear = regexp.MustCompile(`\b(\d{4})\b`)
)

// enlargeNoise is image-widget boilerplate the export embeds mid-prose.
const enlargeNoise = "Enlarge this image."

// ProQuestParser extracts articles from concatenated ProQuest export
// files. The export wraps real articles with a cover header and a footer,
// so fragment trimming is part of the format, not a cleanup step.
type ProQuestParser struct {
	Separator       string
	HeaderFragments int
	FooterFragments int
}

func NewProQuestParser(separator string, headerFragments, footerFragments int) *ProQuestParser {
	return &ProQuestParser{
		Separator:       separator,
		HeaderFragments: headerFragments,
		FooterFragments: footerFragments,
	}
}

func (p *ProQuestParser) Format() string { return "proquest" }

// Parse splits text on the inter-article separator and extracts one record
// per chunk. A chunk that yields nothing is skipped; extraction problems
// surface as warnings, never as an error for the whole file.
func (p *ProQuestParser) Parse(text, filepath string) (*Result, error) {
	fragments := strings.Split(text, p.Separator)

	var chunks []string
	if len(fragments) > p.HeaderFragments+p.FooterFragments {
		chunks = fragments[p.HeaderFragments : len(fragments)-p.FooterFragments]
	} else {
		for _, f := range fragments {
			if strings.TrimSpace(f) != "" {
				chunks = append(chunks, f)
			}
		}
	}

	result := &Result{}
	for i, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		record, warnings := p.parseChunk(chunk)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, chunkWarning(i+1, w))
		}
		if record == nil {
			continue
		}
		record["file_path"] = filepath
		result.Records = append(result.Records, record)
	}
	return result, nil
}

// parseChunk extracts the field schema from one article chunk. A record
// lacking both full text and abstract is still returned, flagged by a
// warning, so the caller decides its fate.
func (p *ProQuestParser) parseChunk(text string) (Record, []string) {
	if text == "" {
		return nil, nil
	}

	record := Record{}
	var warnings []string

	record["raw_text_length"] = int64(utf8.RuneCountInString(strings.Join(strings.Fields(text), "")))

	title, titleFound := extractField(text, pqTitleField)
	if !titleFound {
		// No Title: label, fall back to the chunk's first non-blank line.
		for _, line := range strings.Split(text, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				title = s
				titleFound = true
				break
			}
		}
	}

	var section string
	if titleFound {
		record["title"] = title
		cleanTitle, bracketSection := splitTitleSection(title)
		record["clean_title"] = cleanTitle
		section = bracketSection
	} else {
		warnings = append(warnings, "no title found")
	}

	for _, f := range pqLineFields {
		if v, ok := extractField(text, f); ok && v != "" {
			record[f.column] = v
		}
	}
	for _, f := range pqBlockFields {
		if v, ok := extractField(text, f); ok && v != "" {
			record[f.column] = v
		}
	}

	// Bracket section from the title wins; the standalone Section field
	// is the fallback.
	if section == "" {
		if code, ok := record["section_code"].(string); ok {
			section = code
		}
	}
	if section != "" {
		record["section"] = section
	}

	if _, ok := record["full_text"]; !ok {
		if body := fallbackFullText(text); body != "" {
			record["full_text"] = body
		}
	}

	for _, column := range []string{"abstract", "full_text"} {
		if v, ok := record[column].(string); ok {
			cleaned := strings.TrimSpace(strings.ReplaceAll(v, enlargeNoise, ""))
			if cleaned == "" {
				delete(record, column)
			} else {
				record[column] = cleaned
			}
		}
	}

	if raw, ok := record["publication_date_raw"].(string); ok {
		record["publication_date"] = raw
		if _, haveYear := record["publication_year"]; !haveYear {
			if m := fourDigitYear.FindStringSubmatch(raw); m != nil {
				record["publication_year"] = m[1]
			}
		}
	}
	if year, ok := extractField(text, pqYearField); ok && year != "" {
		record["publication_year"] = year
	}

	if pub, ok := record["publication_title"].(string); ok {
		record["source"] = pub
	}

	_, hasText := record["full_text"]
	_, hasAbstract := record["abstract"]
	if !hasText && !hasAbstract {
		warnings = append(warnings, "no full text or abstract extracted")
	}

	return record, warnings
}

// splitTitleSection separates a trailing bracketed section label from the
// title. A numeric-only trailing bracket is a page marker, not a section;
// it is stripped and the preceding bracket, if any, supplies the section.
func splitTitleSection(title string) (cleanTitle, section string) {
	cutoff := len(title)

	matches := bracketGroup.FindAllStringSubmatchIndex(title, -1)
	if len(matches) > 0 {
		last := matches[len(matches)-1]
		if strings.TrimSpace(title[last[1]:]) == "" {
			candidate := title[last[2]:last[3]]
			cutoff = last[0]
			if numericOnly.MatchString(candidate) {
				if len(matches) > 1 {
					prev := matches[len(matches)-2]
					section = strings.TrimSpace(title[prev[2]:prev[3]])
					if strings.TrimSpace(title[prev[1]:last[0]]) == "" {
						cutoff = prev[0]
					}
				}
			} else {
				section = strings.TrimSpace(candidate)
			}
		}
	}

	rest := strings.TrimSpace(title[:cutoff])
	rest = strings.TrimSuffix(rest, ":")
	cleanTitle = strings.TrimSpace(titleJunk.ReplaceAllString(strings.TrimSpace(rest), ""))
	return cleanTitle, section
}

// fallbackFullText recovers a body from chunks whose Full text label is
// missing or mangled: everything after the last recognized header line,
// truncated at the first trailing metadata label.
func fallbackFullText(text string) string {
	lastHeaderEnd := 0
	for _, re := range pqHeaderLines {
		if loc := re.FindStringIndex(text); loc != nil && loc[1] > lastHeaderEnd {
			lastHeaderEnd = loc[1]
		}
	}
	body := strings.TrimSpace(text[lastHeaderEnd:])
	if body == "" {
		return ""
	}
	if loc := pqTrailingMeta.FindStringIndex(body); loc != nil {
		body = strings.TrimSpace(body[:loc[0]])
	}
	return body
}

func chunkWarning(n int, msg string) string {
	return fmt.Sprintf("[chunk %d] %s", n, msg)
}
