package textenc

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/gogs/chardet"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
)

// sampleSize is how much of a file the charset detector sees. Detection
// accuracy plateaus well below this for prose.
const sampleSize = 8 * 1024

// minConfidence is the detector confidence (0-100) below which the detected
// charset is not trusted as a decode candidate.
const minConfidence = 90

// maxDiagnostics caps how many decode errors are described per file.
const maxDiagnostics = 100

// diagnosticContext is how many bytes either side of a bad sequence the
// diagnostic shows.
const diagnosticContext = 8

// Diagnostic describes one invalid byte sequence in a lossily decoded
// file: its offset and a hex dump of the surrounding bytes.
type Diagnostic struct {
	Offset  int
	Context string
}

// Result is the outcome of decoding one file to UTF-8.
type Result struct {
	Text     string
	Encoding string
	// Lossy is true when no candidate decoded cleanly and invalid bytes
	// were replaced with U+FFFD.
	Lossy bool
	// Diagnostics describe the first invalid sequences of a lossy decode,
	// at most maxDiagnostics of them.
	Diagnostics []Diagnostic
}

// DecodeFile reads path and decodes its contents to UTF-8.
func DecodeFile(path string) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return Decode(data), nil
}

// Decode converts raw bytes to UTF-8 text. It tries UTF-8 first, then the
// detected charset when the detector is confident, then Windows-1252 and
// ISO-8859-1. If none decode cleanly the UTF-8 interpretation is kept with
// invalid sequences replaced.
func Decode(data []byte) *Result {
	if utf8.Valid(data) {
		return &Result{Text: string(data), Encoding: "UTF-8"}
	}

	for _, name := range candidates(data) {
		enc := encodingByName(name)
		if enc == nil {
			continue
		}
		text, ok := decodeStrict(data, enc)
		if ok {
			return &Result{Text: text, Encoding: name}
		}
	}

	replaced := strings.ToValidUTF8(string(data), string(utf8.RuneError))
	return &Result{Text: replaced, Encoding: "UTF-8", Lossy: true, Diagnostics: diagnose(data)}
}

// diagnose walks data and describes where the UTF-8 interpretation broke,
// capped at maxDiagnostics entries.
func diagnose(data []byte) []Diagnostic {
	var diags []Diagnostic
	for i := 0; i < len(data) && len(diags) < maxDiagnostics; {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size == 1 {
			start := i - diagnosticContext
			if start < 0 {
				start = 0
			}
			end := i + 1 + diagnosticContext
			if end > len(data) {
				end = len(data)
			}
			diags = append(diags, Diagnostic{
				Offset:  i,
				Context: fmt.Sprintf("byte 0x%02x at offset %d, context % x", data[i], i, data[start:end]),
			})
		}
		i += size
	}
	return diags
}

// candidates returns the charset names to attempt, detected first.
func candidates(data []byte) []string {
	sample := data
	if len(sample) > sampleSize {
		sample = sample[:sampleSize]
	}

	names := []string{}
	result, err := chardet.NewTextDetector().DetectBest(sample)
	if err == nil && result.Confidence >= minConfidence {
		names = append(names, result.Charset)
	}
	names = append(names, "windows-1252", "ISO-8859-1")
	return names
}

func encodingByName(name string) encoding.Encoding {
	switch strings.ToLower(name) {
	case "windows-1252":
		return charmap.Windows1252
	case "windows-1251":
		return charmap.Windows1251
	case "iso-8859-1":
		return charmap.ISO8859_1
	case "iso-8859-2":
		return charmap.ISO8859_2
	case "iso-8859-15":
		return charmap.ISO8859_15
	case "koi8-r":
		return charmap.KOI8R
	case "utf-16le":
		return unicode.UTF16(unicode.LittleEndian, unicode.UseBOM)
	case "utf-16be":
		return unicode.UTF16(unicode.BigEndian, unicode.UseBOM)
	default:
		return nil
	}
}

// decodeStrict decodes data with enc and reports whether the result is free
// of replacement characters. Single byte charmaps never error outright, so
// U+FFFD in the output is the failure signal.
func decodeStrict(data []byte, enc encoding.Encoding) (string, bool) {
	decoded, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", false
	}
	text := string(decoded)
	if strings.ContainsRune(text, utf8.RuneError) {
		return "", false
	}
	return text, true
}
