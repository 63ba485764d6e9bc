package adapter

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()
	got := splitTelegramText("hello", 10, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()
	s := strings.Repeat("a", 6) + "\n" + strings.Repeat("b", 6)
	got := splitTelegramText(s, 10, "")
	if len(got) != 2 || got[0] != "aaaaaa" || got[1] != "bbbbbb" {
		t.Fatalf("got %q", got)
	}
}

func TestSplitTelegramTextKeepsTagsWhole(t *testing.T) {
	t.Parallel()
	s := "abcdefg<b>bold</b>"
	got := splitTelegramText(s, 9, "HTML")
	if got[0] != "abcdefg" {
		t.Fatalf("first chunk cut inside a tag: %q", got)
	}
	for _, c := range got {
		if utf8.RuneCountInString(c) > 9 {
			t.Fatalf("chunk too long: %q", c)
		}
	}
	if strings.Join(got, "") != s {
		t.Fatalf("lost text: %q", got)
	}
}
