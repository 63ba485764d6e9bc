package notifier

import (
	"fmt"
	"time"

	"giveawaybot/internal/giveaway"
	"giveawaybot/pkg/tgui"
)

// Callback prefix and actions of the giveaway message buttons.
const (
	CallbackPrefix = "giveaway"
	ActionJoin     = "join"
	ActionList     = "list"
	ActionLuck     = "luck"
)

const endLayout = "2006-01-02 15:04 MST"

func keyboard(rec *giveaway.Record) *tgui.Inline {
	kb := tgui.NewInline()
	if !rec.Ended {
		kb.Row(tgui.Btn("🎉 Join / Leave", tgui.Data(CallbackPrefix, ActionJoin, rec.ID)))
		return kb.Row(
			tgui.Btn("👥 Participants", tgui.Data(CallbackPrefix, ActionList, rec.ID)),
			tgui.Btn("🍀 My chances", tgui.Data(CallbackPrefix, ActionLuck, rec.ID)),
		)
	}
	return kb.Row(tgui.Btn("👥 Participants", tgui.Data(CallbackPrefix, ActionList, rec.ID)))
}

// giveawayMessage renders the posted giveaway in its current state.
func giveawayMessage(rec *giveaway.Record, names *Names, loc *time.Location, now time.Time) tgui.Message {
	b := tgui.New()
	if rec.Ended {
		b.Title("🏁", "Giveaway ended")
	} else {
		b.Title("🎁", "Giveaway")
	}
	b.HTML(tgui.B(rec.Prize))
	if rec.Flavor != "" {
		b.HTML(tgui.I(rec.Flavor))
	}
	b.Blank()
	b.KV("Winners", fmt.Sprint(rec.WinnerCount))
	b.KV("Participants", fmt.Sprint(len(rec.Participants)))
	if rec.Ended {
		b.KV("Ended", rec.End().In(loc).Format(endLayout))
		if len(rec.Winners) == 0 {
			b.KV("Result", "no participants")
		} else {
			b.HTML("🏆 " + names.Mentions(rec.Winners))
		}
	} else {
		left := giveaway.FormatRemaining(rec.End().Sub(now))
		b.KV("Ends", rec.End().In(loc).Format(endLayout)+" ("+left+")")
	}
	if rec.HostID != 0 {
		host := rec.HostName
		if host == "" {
			host = names.Name(rec.HostID)
		}
		b.HTML("Hosted by " + tgui.Mention(host, rec.HostID))
	}
	b.HTML("ID: " + tgui.Code(rec.ID))
	return b.Inline(keyboard(rec)).Build()
}

// winnersMessage announces a draw. reroll marks a re-draw of an ended giveaway.
func winnersMessage(rec *giveaway.Record, winners []int64, names *Names, reroll bool) tgui.Message {
	b := tgui.New()
	if reroll {
		b.Title("🔁", "Re-roll")
	}
	if len(winners) == 0 {
		b.HTML("No participants in " + tgui.B(rec.Prize) + ", nobody wins this time.")
		return b.Build()
	}
	b.HTML(tgui.Raw(giveaway.WinnerLine(names.Mentions(winners).String())))
	b.HTML("Prize: " + tgui.B(rec.Prize))
	return b.Build()
}
