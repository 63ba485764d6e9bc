package tgui

import tele "gopkg.in/telebot.v4"

// Inline builds an inline keyboard row by row.
type Inline struct {
	rm *tele.ReplyMarkup
}

func NewInline() *Inline { return &Inline{rm: &tele.ReplyMarkup{}} }

func (i *Inline) Row(btn ...tele.Btn) *Inline {
	i.rm.InlineKeyboard = append(i.rm.InlineKeyboard, inlineRow(btn))
	return i
}

func (i *Inline) Markup() *tele.ReplyMarkup { return i.rm }

func inlineRow(btns []tele.Btn) []tele.InlineButton {
	row := make([]tele.InlineButton, 0, len(btns))
	for _, b := range btns {
		if ib := b.Inline(); ib != nil {
			row = append(row, *ib)
		}
	}
	return row
}

// Btn is a callback button; build data with Data.
func Btn(text, data string) tele.Btn { return tele.Btn{Text: text, Data: data} }
