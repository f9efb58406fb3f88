package splitter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestTrim(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(20, 0)

	tests := []struct {
		name   string
		text   string
		budget int
		want   string
	}{
		{"fits", "short text", 100, "short text"},
		{"zero budget", "anything", 0, ""},
		{"single long word", strings.Repeat("x", 50), 10, strings.Repeat("x", 10)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ts.Trim(tt.text, tt.budget)
			if err != nil {
				t.Fatalf("Trim() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Trim() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestTrimRespectsBudget(t *testing.T) {
	ts := NewRecursiveCharacterTextSplitter(30, 0)
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 40)

	got, err := ts.Trim(text, 100)
	if err != nil {
		t.Fatalf("Trim() error = %v", err)
	}
	if n := utf8.RuneCountInString(got); n == 0 || n > 100 {
		t.Errorf("Trim() returned %d runes, want 1..100", n)
	}
	if !strings.HasPrefix(got, "The quick") {
		t.Errorf("Trim() = %q, want prefix of the input", got)
	}
}
