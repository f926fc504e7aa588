package parse

import (
	"regexp"
	"strings"
)

// fieldSpec describes one labeled field: where its value starts and which
// patterns end it. A nil terminator means the value runs to end of line.
// Terminators stand in for the lookahead assertions the format demands:
// the value is everything between its label and the next recognized label
// (or blank line, or end of text).
type fieldSpec struct {
	column     string
	start      *regexp.Regexp
	terminator *regexp.Regexp
}

// extractField pulls a field's trimmed value out of text. The second
// return is false when the field's label is absent.
func extractField(text string, f fieldSpec) (string, bool) {
	loc := f.start.FindStringIndex(text)
	if loc == nil {
		return "", false
	}
	rest := text[loc[1]:]

	end := len(rest)
	if f.terminator == nil {
		if i := strings.IndexByte(rest, '\n'); i >= 0 {
			end = i
		}
	} else if tl := f.terminator.FindStringIndex(rest); tl != nil {
		end = tl[0]
	}

	return strings.TrimSpace(rest[:end]), true
}

// lineField builds a spec for a field whose value ends at the next newline.
func lineField(column, labelPattern string) fieldSpec {
	return fieldSpec{
		column: column,
		start:  regexp.MustCompile(`(?mi)^` + labelPattern),
	}
}

// blockField builds a spec for a multi-line field terminated by any of the
// given label patterns or a blank line.
func blockField(column, labelPattern string, terminators ...string) fieldSpec {
	return fieldSpec{
		column:     column,
		start:      regexp.MustCompile(`(?mi)^` + labelPattern),
		terminator: regexp.MustCompile(`(?i)\n(?:` + strings.Join(append(terminators, `\n`), "|") + `)`),
	}
}
