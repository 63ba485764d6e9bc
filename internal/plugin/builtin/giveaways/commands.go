package giveaways

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/plugin"
	"giveawaybot/internal/transport/telegram/router"
	"giveawaybot/pkg/tgui"
)

const createUsage = "/giveaway <duration|at <time>> <winners> <prize>"

type createArgs struct {
	// Exactly one of d and end is set.
	d       time.Duration
	end     time.Time
	winners int
	prize   string
}

// parseCreate reads "<token> <winners> <prize...>" or
// "at <time...> <winners> <prize...>". For the second form the winners
// count is the first integer token after which the preceding words parse
// as a time.
func parseCreate(args []string, now time.Time) (createArgs, error) {
	if len(args) < 3 {
		return createArgs{}, plugin.UsageError(createUsage)
	}
	if !strings.EqualFold(args[0], "at") {
		secs, err := giveaway.ParseDuration(args[0])
		if err != nil {
			return createArgs{}, err
		}
		d, err := giveaway.Seconds(secs)
		if err != nil {
			return createArgs{}, err
		}
		n, err := strconv.Atoi(args[1])
		if err != nil {
			return createArgs{}, giveaway.ErrInvalidWinnerCount
		}
		return createArgs{d: d, winners: n, prize: strings.Join(args[2:], " ")}, nil
	}

	var lastErr error = plugin.UsageError(createUsage)
	for i := 2; i < len(args)-1; i++ {
		n, err := strconv.Atoi(args[i])
		if err != nil {
			continue
		}
		end, err := giveaway.ParseDeadline(strings.Join(args[1:i], " "), now)
		if err != nil {
			lastErr = err
			continue
		}
		return createArgs{end: end, winners: n, prize: strings.Join(args[i+1:], " ")}, nil
	}
	return createArgs{}, lastErr
}

func (p *Plugin) cmdCreate(ctx context.Context, req *router.Request) error {
	a, err := parseCreate(req.Args, p.now())
	if err != nil {
		return err
	}
	host := giveaway.Host{UserID: req.FromID, Name: req.FromName, ChatID: req.Chat.ChatID, ThreadID: req.Chat.ThreadID}

	var rec *giveaway.Record
	if a.end.IsZero() {
		rec, err = p.engine.Create(ctx, a.prize, a.winners, a.d, host)
	} else {
		rec, err = p.engine.CreateUntil(ctx, a.prize, a.winners, a.end, host)
	}
	if err != nil {
		return err
	}
	req.Logger.Info("giveaway started via command")
	left := giveaway.FormatRemaining(rec.End().Sub(p.now()))
	_, err = req.ReplyHTML(ctx, "✅ giveaway "+tgui.Code(rec.ID).String()+" started, ends in "+tgui.Esc(left).String(), nil)
	return err
}

func idArg(req *router.Request, usage string) (string, error) {
	if len(req.Args) != 1 || strings.TrimSpace(req.Args[0]) == "" {
		return "", plugin.UsageError(usage)
	}
	return strings.TrimSpace(req.Args[0]), nil
}

func (p *Plugin) cmdEnd(ctx context.Context, req *router.Request) error {
	id, err := idArg(req, "/gend <id>")
	if err != nil {
		return err
	}
	winners, err := p.engine.Finalize(ctx, id)
	if err != nil {
		return err
	}
	return req.Reply(ctx, fmt.Sprintf("🏁 giveaway %s ended with %d winner(s)", id, len(winners)))
}

func (p *Plugin) cmdDelete(ctx context.Context, req *router.Request) error {
	id, err := idArg(req, "/gdelete <id>")
	if err != nil {
		return err
	}
	if err := p.engine.Delete(ctx, id); err != nil {
		return err
	}
	return req.Reply(ctx, "🗑 giveaway "+id+" deleted")
}

func (p *Plugin) cmdReroll(ctx context.Context, req *router.Request) error {
	id, err := idArg(req, "/greroll <id>")
	if err != nil {
		return err
	}
	// The notifier announces the new winners.
	_, err = p.engine.Reroll(ctx, id)
	return err
}

func (p *Plugin) cmdList(ctx context.Context, req *router.Request) error {
	cfg := p.cfgSnapshot()
	recs := p.engine.List(true)
	if len(recs) == 0 {
		return req.Reply(ctx, "no giveaways running")
	}
	now := p.now()
	b := tgui.New().Title("🎁", fmt.Sprintf("Running giveaways (%d)", len(recs)))
	for i, rec := range recs {
		if i == cfg.ListLimit {
			b.Line(fmt.Sprintf("… and %d more", len(recs)-i))
			break
		}
		b.HTML(tgui.Code(rec.ID) + " " + tgui.B(tgui.TruncRunes(rec.Prize, 60)) +
			tgui.Esc(fmt.Sprintf(" · %d joined · %s left", len(rec.Participants), giveaway.FormatRemaining(rec.End().Sub(now)))))
	}
	_, err := b.Build().Send(ctx, req.Adapter, req.Chat)
	return err
}
