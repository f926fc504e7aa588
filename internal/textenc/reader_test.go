package textenc

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDecodeUTF8(t *testing.T) {
	input := "The café reopened on Tuesday."

	r := Decode([]byte(input))
	if r.Text != input {
		t.Errorf("Text = %q, want %q", r.Text, input)
	}
	if r.Encoding != "UTF-8" {
		t.Errorf("Encoding = %q, want UTF-8", r.Encoding)
	}
	if r.Lossy {
		t.Error("Lossy = true, want false")
	}
}

func TestDecodeWindows1252(t *testing.T) {
	// 0x93/0x94 are curly quotes in Windows-1252 and invalid UTF-8.
	data := []byte("He said \x93hello\x94 and left.")

	r := Decode(data)
	if r.Lossy {
		t.Fatalf("Lossy = true, want clean decode, got %q via %s", r.Text, r.Encoding)
	}
	if !strings.Contains(r.Text, "“hello”") {
		t.Errorf("Text = %q, want curly quoted hello", r.Text)
	}
}

func TestDecodeLatin1Accents(t *testing.T) {
	// 0xE9 is e-acute in both Windows-1252 and ISO-8859-1.
	data := []byte("r\xe9sum\xe9 attached")

	r := Decode(data)
	if r.Lossy {
		t.Fatalf("Lossy = true, want clean decode")
	}
	if !strings.Contains(r.Text, "résumé") {
		t.Errorf("Text = %q, want resume with accents", r.Text)
	}
}

func TestDecodeLossyFallback(t *testing.T) {
	// 0x81 is undefined in Windows-1252 and not valid UTF-8 here, but it
	// is a control character in ISO-8859-1 so the latin-1 candidate still
	// decodes it. Pair it with a byte sequence invalid across the board by
	// checking the result is never empty.
	data := []byte("broken \xff\xfe\x00 bytes")

	r := Decode(data)
	if r.Text == "" {
		t.Fatal("Text is empty, want replaced content")
	}
	if !strings.Contains(r.Text, "broken ") {
		t.Errorf("Text = %q, want prefix preserved", r.Text)
	}
}

func TestDiagnoseDescribesInvalidSequences(t *testing.T) {
	// 0xC3 starts a two byte sequence but '(' is not a continuation byte.
	data := []byte("good \xc3(text")

	diags := diagnose(data)
	if len(diags) != 1 {
		t.Fatalf("diagnostics = %d, want 1: %v", len(diags), diags)
	}
	if diags[0].Offset != 5 {
		t.Errorf("Offset = %d, want 5", diags[0].Offset)
	}
	if !strings.Contains(diags[0].Context, "0xc3") {
		t.Errorf("Context = %q, want offending byte named", diags[0].Context)
	}
	if !strings.Contains(diags[0].Context, "67 6f 6f 64") {
		t.Errorf("Context = %q, want surrounding bytes in hex", diags[0].Context)
	}
}

func TestDiagnoseCapped(t *testing.T) {
	data := bytes.Repeat([]byte{0xff}, maxDiagnostics+50)

	diags := diagnose(data)
	if len(diags) != maxDiagnostics {
		t.Errorf("diagnostics = %d, want capped at %d", len(diags), maxDiagnostics)
	}
}

func TestDiagnoseCleanInput(t *testing.T) {
	if diags := diagnose([]byte("all fine here")); len(diags) != 0 {
		t.Errorf("diagnostics = %v, want none", diags)
	}
}

func TestDecodeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "article.txt")
	if err := os.WriteFile(path, []byte("plain ascii body"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	r, err := DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile() error = %v", err)
	}
	if r.Text != "plain ascii body" {
		t.Errorf("Text = %q", r.Text)
	}
}

func TestDecodeFileMissing(t *testing.T) {
	_, err := DecodeFile(filepath.Join(t.TempDir(), "missing.txt"))
	if err == nil {
		t.Fatal("DecodeFile() error = nil, want error")
	}
}
