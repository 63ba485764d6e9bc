// Package plugin groups chat commands and inline-button routes into feature
// plugins and flattens them into one router registry.
package plugin

import (
	"context"
	"errors"
	"fmt"

	"giveawaybot/internal/giveaway"
	"giveawaybot/internal/points"
	"giveawaybot/internal/transport/telegram/router"
)

type Plugin interface {
	Name() string
	Commands() []router.Command
	Callbacks() []router.CallbackRoute
}

// NameBook records display names seen on requests.
type NameBook interface {
	Remember(id int64, name string)
}

// Registry flattens plugins in order. Every handler first records the
// caller's display name in names (when non-nil).
func Registry(names NameBook, ps ...Plugin) ([]router.Command, []router.CallbackRoute) {
	var (
		cmds []router.Command
		cbs  []router.CallbackRoute
	)
	for _, p := range ps {
		for _, c := range p.Commands() {
			c.Handle = remember(names, c.Handle)
			cmds = append(cmds, c)
		}
		for _, r := range p.Callbacks() {
			r.Handle = remember(names, r.Handle)
			cbs = append(cbs, r)
		}
	}
	return cmds, cbs
}

func remember(names NameBook, h router.HandlerFunc) router.HandlerFunc {
	if names == nil || h == nil {
		return h
	}
	return func(ctx context.Context, req *router.Request) error {
		names.Remember(req.FromID, req.FromName)
		return h(ctx, req)
	}
}

// ErrUsage marks a malformed command invocation.
var ErrUsage = errors.New("usage")

func UsageError(usage string) error { return fmt.Errorf("%w: %s", ErrUsage, usage) }

// ErrorText maps handler errors to the reply shown in chat.
func ErrorText(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUsage):
		return "⚠️ " + err.Error()
	case errors.Is(err, giveaway.ErrNotReady):
		return "⏳ giveaways are still loading, try again in a moment"
	case errors.Is(err, giveaway.ErrNotFound):
		return "❓ giveaway not found"
	case errors.Is(err, giveaway.ErrValidation),
		errors.Is(err, giveaway.ErrInvalidState):
		return "⚠️ " + rootMessage(err)
	case errors.Is(err, points.ErrInvalidAmount),
		errors.Is(err, points.ErrInvalidThreshold),
		errors.Is(err, points.ErrInvalidRole),
		errors.Is(err, points.ErrUnknownRole):
		return "⚠️ " + rootMessage(err)
	case errors.Is(err, giveaway.ErrStore), errors.Is(err, points.ErrStore):
		return "💾 storage is unavailable, try again later"
	case errors.Is(err, context.DeadlineExceeded):
		return "⌛ timed out"
	default:
		return "❌ something went wrong"
	}
}

// rootMessage returns the message of the innermost kinded error, dropping
// wrapping context such as quoted input.
func rootMessage(err error) string {
	for _, kind := range []error{
		giveaway.ErrInvalidPrize, giveaway.ErrInvalidWinnerCount, giveaway.ErrInvalidDuration,
		giveaway.ErrInvalidFormat, giveaway.ErrUnknownUnit, giveaway.ErrAlreadyEnded, giveaway.ErrNotYetEnded,
	} {
		if errors.Is(err, kind) {
			return kind.Error()
		}
	}
	return err.Error()
}
