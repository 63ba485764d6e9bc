package tgui

import (
	"context"
	"strings"

	kit "giveawaybot/internal/transport"

	tele "gopkg.in/telebot.v4"
)

// Message is a rendered chat message ready to send or to replace an
// existing one.
type Message struct {
	Text string
	Opt  *kit.SendOptions
}

func (m Message) Send(ctx context.Context, s kit.Sender, to kit.ChatTarget) (kit.MessageRef, error) {
	return s.SendText(ctx, to, m.Text, m.Opt)
}

// Edit rewrites ref in place, markup included.
func (m Message) Edit(ctx context.Context, s kit.Sender, ref kit.MessageRef) error {
	return s.EditText(ctx, ref, m.Text, m.Opt)
}

// Builder assembles a message line by line. Text passed as a plain string
// is escaped unless the parse mode is cleared with ParseMode("").
type Builder struct {
	html   bool
	lines  []string
	markup *tele.ReplyMarkup
}

// New starts an HTML message with link previews off.
func New() *Builder { return &Builder{html: true} }

// ParseMode switches between "HTML" and plain text.
func (b *Builder) ParseMode(mode string) *Builder {
	b.html = strings.EqualFold(strings.TrimSpace(mode), "HTML")
	return b
}

func (b *Builder) Inline(kb *Inline) *Builder {
	b.markup = nil
	if kb != nil {
		b.markup = kb.Markup()
	}
	return b
}

func (b *Builder) text(s string) string {
	if b.html {
		return Esc(s).String()
	}
	return s
}

func (b *Builder) bold(s string) string {
	if b.html {
		return B(s).String()
	}
	return s
}

// Title adds a bold heading, optionally led by an emoji.
func (b *Builder) Title(emoji, title string) *Builder {
	title = strings.TrimSpace(title)
	if title == "" {
		return b
	}
	line := b.bold(title)
	if e := strings.TrimSpace(emoji); e != "" {
		line = b.text(e) + " " + line
	}
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Line(s string) *Builder {
	b.lines = append(b.lines, b.text(s))
	return b
}

func (b *Builder) Blank() *Builder { return b.RawLine("") }

// RawLine appends s as is.
func (b *Builder) RawLine(s string) *Builder {
	b.lines = append(b.lines, s)
	return b
}

func (b *Builder) HTML(h H) *Builder { return b.RawLine(h.String()) }

// KV adds a "• key: value" row. Rows with an empty key are skipped.
func (b *Builder) KV(key, value string) *Builder {
	key, value = strings.TrimSpace(key), strings.TrimSpace(value)
	if key == "" {
		return b
	}
	line := "• " + b.bold(key)
	if value != "" {
		line += ": " + b.text(value)
	}
	b.lines = append(b.lines, line)
	return b
}

func (b *Builder) Build() Message {
	opt := &kit.SendOptions{DisablePreview: true}
	if b.html {
		opt.ParseMode = "HTML"
	}
	if b.markup != nil {
		opt.ReplyMarkupAdapter = b.markup
	}
	return Message{Text: strings.Trim(strings.Join(b.lines, "\n"), "\n"), Opt: opt}
}
