package annotate

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// ExtractJSON strips markdown code fences the model sometimes wraps its
// JSON payload in.
func ExtractJSON(raw string) string {
	cleaned := strings.TrimSpace(raw)

	if start := strings.Index(cleaned, "```json"); start != -1 {
		if end := strings.LastIndex(cleaned, "```"); end > start {
			return strings.TrimSpace(cleaned[start+len("```json") : end])
		}
	}
	if start := strings.Index(cleaned, "```"); start != -1 {
		if end := strings.LastIndex(cleaned, "```"); end > start {
			return strings.TrimSpace(cleaned[start+len("```") : end])
		}
	}
	return cleaned
}

// DecodeBatch parses and repairs a batch response. The outer array is
// trimmed or padded to match articleIDs, and every inner object is
// normalized through validation. Only a response that is not a JSON array
// at all is an error.
func DecodeBatch(raw string, articleIDs []int64) ([][]Annotation, error) {
	var outer []json.RawMessage
	if err := json.Unmarshal([]byte(ExtractJSON(raw)), &outer); err != nil {
		return nil, fmt.Errorf("response is not a JSON array: %w", err)
	}

	if len(outer) > len(articleIDs) {
		outer = outer[:len(articleIDs)]
	}

	results := make([][]Annotation, len(articleIDs))
	for i, id := range articleIDs {
		if i >= len(outer) {
			results[i] = []Annotation{paddedExplanation(id)}
			continue
		}

		var objects []map[string]any
		if err := json.Unmarshal(outer[i], &objects); err != nil {
			// Some responses flatten the inner array to a bare object.
			var single map[string]any
			if err := json.Unmarshal(outer[i], &single); err != nil {
				results[i] = []Annotation{paddedExplanation(id)}
				continue
			}
			objects = []map[string]any{single}
		}
		if len(objects) == 0 {
			results[i] = []Annotation{paddedExplanation(id)}
			continue
		}

		for _, obj := range objects {
			results[i] = append(results[i], validateObject(obj, id))
		}
	}
	return results, nil
}

func paddedExplanation(articleID int64) Annotation {
	return Annotation{
		ArticleID:                articleID,
		IsRelevant:               false,
		CountriesSufferingLosses: []string{},
		CountriesCausingLosses:   []string{},
		Explanation:              fmt.Sprintf("No analysis was provided for article ID %d in the API response (padded).", articleID),
		ValidationStatus:         StatusWithWarnings,
		ValidationIssues:         []string{"padded missing result"},
	}
}

// validateObject normalizes one response object into an Annotation,
// repairing recoverable deviations and recording every repair as an
// issue. Unrecoverable deviations mark the annotation failed.
func validateObject(obj map[string]any, expectedID int64) Annotation {
	a := Annotation{ArticleID: expectedID}
	var issues []string
	failed := false

	if id, ok := asInt(obj["article_id"]); !ok {
		issues = append(issues, "missing or invalid article_id")
	} else if id != expectedID {
		issues = append(issues, fmt.Sprintf("mismatched article_id (expected %d, got %d)", expectedID, id))
	}

	relevant, ok := asBool(obj["is_relevant"])
	if !ok {
		issues = append(issues, "missing or invalid is_relevant")
		failed = true
	}
	a.IsRelevant = relevant

	if !failed && relevant {
		a.StartYear, issues = dateComponent(obj, "start_year", yearValid, issues)
		a.StartMonth, issues = dateComponent(obj, "start_month", monthValid, issues)
		a.StartDay, issues = dateComponent(obj, "start_day", dayValid, issues)
		a.EndYear, issues = dateComponent(obj, "end_year", yearValid, issues)
		a.EndMonth, issues = dateComponent(obj, "end_month", monthValid, issues)
		a.EndDay, issues = dateComponent(obj, "end_day", dayValid, issues)

		fmin, okMin := asInt(obj["fatalities_min"])
		if !okMin || fmin < 0 {
			issues = append(issues, "invalid fatalities_min, set to 0")
			fmin = 0
		}
		fmax, okMax := asInt(obj["fatalities_max"])
		if !okMax || fmax < 0 {
			issues = append(issues, "invalid fatalities_max, set to fatalities_min")
			fmax = fmin
		}
		if fmax < fmin {
			issues = append(issues, "fatalities_max was below fatalities_min, raised")
			fmax = fmin
		}
		a.FatalitiesMin = &fmin
		a.FatalitiesMax = &fmax

		a.CountriesSufferingLosses, issues = countryList(obj, "countries_suffering_losses", issues)
		a.CountriesCausingLosses, issues = countryList(obj, "countries_causing_losses", issues)
	} else {
		// Explanation objects carry nulls and empty arrays regardless of
		// what the model produced.
		if hasNonNull(obj, "start_year", "start_month", "start_day",
			"end_year", "end_month", "end_day", "fatalities_min", "fatalities_max") {
			issues = append(issues, "cleared date and fatality fields for explanation object")
		}
		a.CountriesSufferingLosses = []string{}
		a.CountriesCausingLosses = []string{}
	}

	if s, ok := obj["explanation"].(string); ok && strings.TrimSpace(s) != "" {
		a.Explanation = s
	} else {
		issues = append(issues, "missing or empty explanation")
		a.Explanation = "[Explanation missing or invalid]"
	}

	switch {
	case failed:
		a.ValidationStatus = StatusFailed
	case len(issues) > 0:
		a.ValidationStatus = StatusWithWarnings
	default:
		a.ValidationStatus = StatusPassed
	}
	a.ValidationIssues = issues
	return a
}

func dateComponent(obj map[string]any, field string, valid func(int64) bool, issues []string) (*int64, []string) {
	v, ok := asInt(obj[field])
	if !ok {
		issues = append(issues, fmt.Sprintf("set %s to -9 (missing or invalid)", field))
		v = unknownComponent
	} else if !valid(v) {
		issues = append(issues, fmt.Sprintf("set %s to -9 (out of range: %d)", field, v))
		v = unknownComponent
	}
	return &v, issues
}

func yearValid(v int64) bool  { return v == unknownComponent || (v >= 1900 && v <= 2100) }
func monthValid(v int64) bool { return v == unknownComponent || (v >= 1 && v <= 12) }
func dayValid(v int64) bool   { return v == unknownComponent || (v >= 1 && v <= 31) }

func countryList(obj map[string]any, field string, issues []string) ([]string, []string) {
	raw, ok := obj[field].([]any)
	if !ok {
		issues = append(issues, fmt.Sprintf("invalid %s, set to empty list", field))
		return []string{}, issues
	}
	countries := make([]string, 0, len(raw))
	for _, item := range raw {
		if s, ok := item.(string); ok {
			countries = append(countries, s)
		} else {
			countries = append(countries, fmt.Sprintf("%v", item))
			issues = append(issues, fmt.Sprintf("coerced non-string element in %s", field))
		}
	}
	return countries, issues
}

func hasNonNull(obj map[string]any, fields ...string) bool {
	for _, field := range fields {
		if v, ok := obj[field]; ok && v != nil {
			return true
		}
	}
	return false
}

func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func asBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true":
			return true, true
		case "false":
			return false, true
		}
	}
	return false, false
}
