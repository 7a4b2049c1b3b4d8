package cli

import (
	"errors"
	"testing"
)

func TestStem(t *testing.T) {
	tests := map[string]string{
		"data.json":          "data",
		"/tmp/notes.yaml":    "notes",
		"archive.tar":        "archive",
		"noext":              "noext",
		".hidden":            ".hidden",
		"dir/sub/file.toml":  "file",
		"trailing.":          "trailing",
	}
	for in, want := range tests {
		if got := Stem(in); got != want {
			t.Fatalf("Stem(%q)=%q, want %q", in, got, want)
		}
	}
}

func TestParseOctal(t *testing.T) {
	if mode, err := ParseOctal("644"); err != nil || mode != 0o644 {
		t.Fatalf("644 parsed to %o err %v", mode, err)
	}
	if mode, err := ParseOctal("0755"); err != nil || mode != 0o755 {
		t.Fatalf("0755 parsed to %o err %v", mode, err)
	}
	_, err := ParseOctal("999")
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("999 should be a usage error, got %v", err)
	}
}

func TestParseDecimal(t *testing.T) {
	if n, err := ParseDecimal("1000"); err != nil || n != 1000 {
		t.Fatalf("1000 parsed to %d err %v", n, err)
	}
	if _, err := ParseDecimal("-1"); err == nil {
		t.Fatalf("negative uid should fail")
	}
}

func TestUsagefWrapping(t *testing.T) {
	err := Usagef("bad flag %q", "x")
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("expected usage error")
	}
	if err.Error() != `bad flag "x"` {
		t.Fatalf("message %q", err.Error())
	}
}
