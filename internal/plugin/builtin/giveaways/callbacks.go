package giveaways

import (
	"context"
	"fmt"
	"strings"

	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/transport/telegram/router"
	"giveawaybot/pkg/tgui"
)

// Telegram rejects callback answers longer than this.
const maxAnswerRunes = 200

func (p *Plugin) cbJoin(ctx context.Context, req *router.Request) error {
	joined, err := p.engine.ToggleParticipation(ctx, req.Payload, req.FromID)
	if err != nil {
		return err
	}
	if joined {
		return req.Answer(ctx, "🎉 you're in, good luck!", false)
	}
	return req.Answer(ctx, "you left the giveaway", false)
}

func (p *Plugin) cbList(ctx context.Context, req *router.Request) error {
	rec, err := p.engine.Get(req.Payload)
	if err != nil {
		return err
	}
	return req.Answer(ctx, tgui.TruncRunes(p.participantsText(rec), maxAnswerRunes), true)
}

// participantsText lists the first participants by name, then "and N more".
func (p *Plugin) participantsText(rec *giveaway.Record) string {
	n := len(rec.Participants)
	if n == 0 {
		return "no participants yet"
	}
	shown := rec.Participants[:min(n, participantsShown)]
	names := make([]string, 0, len(shown))
	for _, id := range shown {
		names = append(names, p.names.Name(id))
	}
	out := fmt.Sprintf("👥 %d participant(s):\n%s", n, strings.Join(names, ", "))
	if n > len(shown) {
		out += fmt.Sprintf("\n… and %d more", n-len(shown))
	}
	return out
}

func (p *Plugin) cbLuck(ctx context.Context, req *router.Request) error {
	st, err := p.engine.Stats(req.Payload, req.FromID)
	if err != nil {
		return err
	}
	return req.Answer(ctx, luckText(st), true)
}

func luckText(st giveaway.Stats) string {
	joined := "no"
	if st.Joined {
		joined = "yes"
	}
	left := "ended"
	if !st.Ended {
		left = giveaway.FormatRemaining(st.Remaining)
	}
	return fmt.Sprintf("🍀 chance: %.1f%%\njoined: %s\nparticipants: %d\nwinners: %d\ntime left: %s",
		st.Chance*100, joined, st.Participants, st.WinnerCount, left)
}
