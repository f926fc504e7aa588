package parse

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

var eightDigitDate = regexp.MustCompile(`^\d{8}$`)

// NYTParser extracts articles from the pre-structured text dumps: blocks
// divided by a separator line, labeled metadata lines, and a marker pair
// delimiting the body.
type NYTParser struct {
	ArticleSeparator string
	TextStartMarker  string
	TextEndMarker    string
	FormatType       string
}

func NewNYTParser(articleSeparator, textStartMarker, textEndMarker string) *NYTParser {
	return &NYTParser{
		ArticleSeparator: articleSeparator,
		TextStartMarker:  textStartMarker,
		TextEndMarker:    textEndMarker,
		FormatType:       "NYT_2011_2014",
	}
}

func (p *NYTParser) Format() string { return "nyt" }

// Parse splits text into blocks and parses each independently. Blocks
// without a Key line yield no record; a present but invalid key yields
// both a record and a BadKey so the load proceeds while the anomaly is
// audited.
func (p *NYTParser) Parse(text, filepath string) (*Result, error) {
	result := &Result{}
	for i, block := range strings.Split(text, p.ArticleSeparator) {
		block = strings.TrimSpace(block)
		if block == "" {
			continue
		}
		record, badKey, warnings := p.parseBlock(block, filepath)
		for _, w := range warnings {
			result.Warnings = append(result.Warnings, fmt.Sprintf("[block %d] %s", i+1, w))
		}
		if record == nil {
			continue
		}
		result.Records = append(result.Records, record)
		if badKey != nil {
			result.BadKeys = append(result.BadKeys, *badKey)
		}
	}
	return result, nil
}

func (p *NYTParser) parseBlock(block, filepath string) (Record, *BadKey, []string) {
	record := Record{
		"source_filepath": filepath,
		"format_type":     p.FormatType,
	}
	var badKey *BadKey
	var warnings []string

	var textLines []string
	inText := false
	foundStart := false
	foundEnd := false
	keyLineSeen := false

	for _, line := range strings.Split(block, "\n") {
		stripped := strings.TrimSpace(line)
		if stripped == "" {
			continue
		}

		switch {
		case strings.HasPrefix(stripped, "Key:"):
			keyLineSeen = true
			key := strings.TrimSpace(strings.SplitN(stripped, ":", 2)[1])
			record["nyt_internal_id"] = key
			if key == "" {
				warnings = append(warnings, fmt.Sprintf("empty key value in line %q", line))
				badKey = &BadKey{Key: key, Filepath: filepath, Reason: ReasonEmptyKey}
			} else if _, err := uuid.Parse(key); err != nil {
				warnings = append(warnings, fmt.Sprintf("key failed UUID validation: %q", key))
				badKey = &BadKey{Key: key, Filepath: filepath, Reason: ReasonInvalidUUID}
			}

		case stripped == "Key":
			// Label present but the colon is gone; keep the record with
			// an empty key and audit the mangled line.
			keyLineSeen = true
			record["nyt_internal_id"] = ""
			warnings = append(warnings, fmt.Sprintf("could not parse value for key line %q", line))
			badKey = &BadKey{Key: "", Filepath: filepath, Reason: ReasonMalformedKeyLine}

		case strings.HasPrefix(stripped, "Headline:"):
			record["headline"] = strings.TrimSpace(strings.SplitN(stripped, ":", 2)[1])

		case strings.HasPrefix(stripped, "Date:"):
			dateStr := strings.TrimSpace(strings.SplitN(stripped, ":", 2)[1])
			switch {
			case eightDigitDate.MatchString(dateStr):
				record["publication_date"] = fmt.Sprintf("%s-%s-%s", dateStr[:4], dateStr[4:6], dateStr[6:])
			case dateStr == "":
				warnings = append(warnings, "empty date field, storing as null")
			default:
				warnings = append(warnings, fmt.Sprintf("non-standard date format %q, storing as null", dateStr))
			}

		case strings.HasPrefix(stripped, "Countries:"):
			record["nyt_country_codes"] = strings.TrimSpace(strings.SplitN(stripped, ":", 2)[1])

		case strings.HasPrefix(stripped, p.TextStartMarker):
			inText = true
			foundStart = true
			continue

		case strings.HasPrefix(stripped, p.TextEndMarker):
			inText = false
			foundEnd = true
		}

		if inText {
			textLines = append(textLines, line)
		}
	}

	keyLabel := "N/A"
	if k, ok := record["nyt_internal_id"].(string); ok {
		keyLabel = k
	}

	if len(textLines) > 0 {
		record["body"] = strings.TrimSpace(strings.Join(textLines, "\n"))
		if foundStart && !foundEnd {
			warnings = append(warnings,
				fmt.Sprintf("partial body captured for key %q, start marker has no end marker", keyLabel))
		}
	} else {
		switch {
		case foundStart && foundEnd:
			record["body"] = ""
			warnings = append(warnings, fmt.Sprintf("body markers present but empty for key %q", keyLabel))
		case foundStart && !foundEnd:
			warnings = append(warnings, fmt.Sprintf("start marker without end marker for key %q", keyLabel))
		case !foundStart && foundEnd:
			warnings = append(warnings, fmt.Sprintf("end marker without start marker for key %q", keyLabel))
		}
	}

	if !keyLineSeen {
		warnings = append(warnings, "no Key line found in block")
		return nil, nil, warnings
	}

	return record, badKey, warnings
}
