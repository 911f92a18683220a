package task

import (
	"strings"
	"testing"
)

func TestTailBuffer_KeepsMostRecent(t *testing.T) {
	t.Parallel()

	b := newTailBuffer(3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.append(s)
	}
	if got := b.String(); got != "c\nd\ne" {
		t.Fatalf("tail=%q", got)
	}
}

func TestDrain_SplitsAndTruncates(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("x", maxLineBytes*2)
	in := "first\n" + long + "\nlast-no-newline"
	b := newTailBuffer(10)
	drain(strings.NewReader(in), b)

	lines := b.Lines()
	if len(lines) != 3 {
		t.Fatalf("lines=%d want 3", len(lines))
	}
	if lines[0] != "first" || lines[2] != "last-no-newline" {
		t.Fatalf("lines=%q", []string{lines[0], lines[2]})
	}
	if len(lines[1]) != maxLineBytes {
		t.Fatalf("long line len=%d want %d", len(lines[1]), maxLineBytes)
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	for in, want := range map[string]Status{
		"success":               StatusSuccess,
		"FAILURE":               StatusFailure,
		"retry":                 StatusRetrying,
		"success_with_warnings": StatusSuccessWithWarnings,
		"none":                  StatusNone,
	} {
		got, err := ParseStatus(in)
		if err != nil || got != want {
			t.Fatalf("ParseStatus(%q)=(%v,%v) want %v", in, got, err, want)
		}
	}
	if _, err := ParseStatus("sometimes"); err == nil {
		t.Fatalf("ParseStatus accepted an unknown value")
	}
}
