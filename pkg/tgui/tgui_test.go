package tgui

import (
	"strings"
	"testing"
)

func TestBuilderEscapesHTML(t *testing.T) {
	t.Parallel()
	msg := New().Title("🎁", "Prize <AK>").KV("Winners", "2").Line("a & b").Build()
	want := "🎁 <b>Prize &lt;AK&gt;</b>\n• <b>Winners</b>: 2\na &amp; b"
	if msg.Text != want {
		t.Fatalf("text = %q, want %q", msg.Text, want)
	}
	if msg.Opt.ParseMode != "HTML" || !msg.Opt.DisablePreview {
		t.Fatalf("unexpected options: %+v", msg.Opt)
	}
}

func TestBuilderInlineMarkup(t *testing.T) {
	t.Parallel()
	kb := NewInline().Row(Btn("Join", Data("giveaway", "join", "ab12cd34")))
	msg := New().Line("x").Inline(kb).Build()
	if msg.Opt.ReplyMarkupAdapter == nil {
		t.Fatal("markup missing")
	}
	if got := kb.Markup().InlineKeyboard[0][0].Data; got != "giveaway:join:ab12cd34" {
		t.Fatalf("data = %q", got)
	}
}

func TestCheckData(t *testing.T) {
	t.Parallel()
	if err := CheckData(Data("giveaway", "luck", "ab12cd34")); err != nil {
		t.Fatal(err)
	}
	if err := CheckData(strings.Repeat("x", MaxCallbackDataLen+1)); err != ErrCallbackDataTooLong {
		t.Fatalf("err = %v", err)
	}
}

func TestTruncRunes(t *testing.T) {
	t.Parallel()
	if got := TruncRunes("Сталкер", 4); got != "Стал…" {
		t.Fatalf("got %q", got)
	}
	if got := TruncRunes("abc", 3); got != "abc" {
		t.Fatalf("got %q", got)
	}
}

func TestMention(t *testing.T) {
	t.Parallel()
	if got := Mention("<Strelok>", 42); got != `<a href="tg://user?id=42">&lt;Strelok&gt;</a>` {
		t.Fatalf("got %q", got)
	}
}
