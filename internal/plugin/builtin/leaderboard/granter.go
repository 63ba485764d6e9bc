package leaderboard

import (
	"context"
	"fmt"
	"sync"

	kit "giveawaybot/internal/transport"
	"giveawaybot/pkg/tgui"
)

// ChatGranter awards a role by announcing it in a chat. Telegram has no
// server roles; the announcement is the grant. Without an announce chat the
// grant is recorded silently.
type ChatGranter struct {
	sender kit.Sender
	names  Directory

	mu sync.RWMutex
	to kit.ChatTarget
}

func NewChatGranter(sender kit.Sender, names Directory, chatID int64) *ChatGranter {
	g := &ChatGranter{sender: sender, names: names}
	g.SetChat(chatID)
	return g
}

func (g *ChatGranter) SetChat(chatID int64) {
	g.mu.Lock()
	g.to = kit.ChatTarget{ChatID: chatID}
	g.mu.Unlock()
}

func (g *ChatGranter) Grant(ctx context.Context, user int64, role string, score int64) error {
	g.mu.RLock()
	to := g.to
	g.mu.RUnlock()
	if to.ChatID == 0 {
		return nil
	}
	msg := tgui.New().
		HTML("🏅 " + tgui.Mention(g.names.Name(user), user) + tgui.Esc(fmt.Sprintf(" reached %d points and earned ", score)) + tgui.B(role)).
		Build()
	_, err := msg.Send(ctx, g.sender, to)
	return err
}
