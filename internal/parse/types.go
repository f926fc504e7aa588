package parse

// Record holds one parsed article's fields keyed by destination column
// name. Values are strings or int64; a missing key means null.
type Record map[string]any

// BadKey describes a natural key anomaly found during parsing. The owning
// record is still returned; bad keys are an audit trail, not a rejection.
type BadKey struct {
	Key      string
	Filepath string
	Reason   string
}

// Bad key reason codes.
const (
	ReasonEmptyKey         = "Empty Key"
	ReasonInvalidUUID      = "Invalid UUID"
	ReasonMalformedKeyLine = "Malformed Key Line"
)

// Result is the outcome of parsing one file's decoded text.
type Result struct {
	Records  []Record
	BadKeys  []BadKey
	Warnings []string
}

// Parser splits a file's text into article chunks and extracts a fixed
// field schema from each. Implementations are stateless across files.
type Parser interface {
	Format() string
	Parse(text, filepath string) (*Result, error)
}
