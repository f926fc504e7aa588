// Package annotate drives LLM-based extraction of militarized incident
// events from filtered articles: prompt construction, response repair and
// validation, and persistence of the validated events.
package annotate

// Annotation is one validated object from the model's response: either a
// militarized incident event (IsRelevant true) or an explanation of why
// an article yielded none.
type Annotation struct {
	ArticleID                int64    `json:"article_id"`
	IsRelevant               bool     `json:"is_relevant"`
	StartYear                *int64   `json:"start_year"`
	StartMonth               *int64   `json:"start_month"`
	StartDay                 *int64   `json:"start_day"`
	EndYear                  *int64   `json:"end_year"`
	EndMonth                 *int64   `json:"end_month"`
	EndDay                   *int64   `json:"end_day"`
	FatalitiesMin            *int64   `json:"fatalities_min"`
	FatalitiesMax            *int64   `json:"fatalities_max"`
	CountriesSufferingLosses []string `json:"countries_suffering_losses"`
	CountriesCausingLosses   []string `json:"countries_causing_losses"`
	Explanation              string   `json:"explanation"`
	ValidationStatus         string   `json:"validation_status"`
	ValidationIssues         []string `json:"validation_issues,omitempty"`
}

const (
	// unknownComponent marks a date component the model could not
	// determine.
	unknownComponent int64 = -9

	StatusPassed       = "passed"
	StatusWithWarnings = "passed_with_warnings"
	StatusFailed       = "failed"
)
