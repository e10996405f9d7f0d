package media

import (
	"strings"
	"testing"
)

func TestEscapeDrawtext(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"plain text", "plain text"},
		{"it's 100%", `it\'s 100\%`},
		{"a:b", `a\:b`},
		{`back\slash`, `back\\slash`},
	}
	for _, tc := range tests {
		if got := escapeDrawtext(tc.in); got != tc.want {
			t.Errorf("escapeDrawtext(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestDrawtextFilter(t *testing.T) {
	card := Card{Caption: "Olá", Height: 720, FontFile: "/fonts/arial.ttf"}
	filter := drawtextFilter(card)
	for _, want := range []string{
		"drawtext=",
		"text='Olá'",
		"fontsize=30",
		"boxcolor=black@0.6",
		"fontfile=/fonts/arial.ttf",
	} {
		if !strings.Contains(filter, want) {
			t.Errorf("filter %q missing %q", filter, want)
		}
	}

	noFont := drawtextFilter(Card{Caption: "x", Height: 1280})
	if strings.Contains(noFont, "fontfile") {
		t.Errorf("fontfile present without configuration: %q", noFont)
	}
}

func TestTail(t *testing.T) {
	if got := tail("short", 10); got != "short" {
		t.Errorf("tail = %q", got)
	}
	long := strings.Repeat("a", 50) + "ERROR"
	got := tail(long, 10)
	if !strings.HasPrefix(got, "...") || !strings.HasSuffix(got, "ERROR") {
		t.Errorf("tail = %q, want trailing part preserved", got)
	}
}
