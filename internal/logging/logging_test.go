package logging

import (
	"bytes"
	"strings"
	"testing"
	"unicode/utf8"
)

func TestNewWithWriterHonoursLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := NewWithWriter(&buf, "warn")
	logger.Info("hidden")
	logger.Warn("shown", "component", "feed")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info record leaked at warn level: %s", out)
	}
	if !strings.Contains(out, "component=feed") {
		t.Fatalf("expected component attribute, got: %s", out)
	}
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	if got := Truncate("short", 10); got != "short" {
		t.Fatalf("unexpected %q", got)
	}
	if got := Truncate("abcdefghij", 4); got != "abcd…" {
		t.Fatalf("unexpected %q", got)
	}

	got := Truncate("Überschwemmung in Köln", 3)
	if got != "Übe…" || !utf8.ValidString(got) {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if got := Truncate("日本語の記事", 6); got != "日本語の記事" {
		t.Fatalf("string of exactly limit runes must not be cut, got %q", got)
	}
}
