// Package router dispatches chat updates to registered commands and
// inline-button callbacks on a bounded worker pool.
package router

import (
	"context"
	"runtime"
	"runtime/debug"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "giveawaybot/internal/runtime/supervisor"
	kit "giveawaybot/internal/transport"
	logx "giveawaybot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessOwnerOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration
	Handle      HandlerFunc
}

// CallbackRoute handles callback data of the form "<Prefix>:<Action>:<payload>".
type CallbackRoute struct {
	Prefix  string
	Action  string
	Access  Access
	Timeout time.Duration
	Handle  HandlerFunc
}

type Request struct {
	Update   kit.Update
	Chat     kit.ChatTarget
	FromID   int64
	FromName string
	Command  string
	Args     []string
	// Text is everything after the command word, unsplit.
	Text    string
	Payload string
	ReqID   string
	IsOwner bool

	Adapter kit.Adapter
	Logger  logx.Logger

	answered bool
}

// Reply sends plain text to the chat the request came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.Update.Kind == kit.UpdateCallback && !r.answered {
		return r.Answer(ctx, text, true)
	}
	_, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true})
	return err
}

// ReplyHTML sends HTML text with optional markup.
func (r *Request) ReplyHTML(ctx context.Context, text string, markup any) (kit.MessageRef, error) {
	return r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true, ReplyMarkupAdapter: markup})
}

// Answer responds to the callback that triggered the request. Only the first
// answer reaches the user.
func (r *Request) Answer(ctx context.Context, text string, alert bool) error {
	if r.Update.Callback == nil || r.answered {
		return nil
	}
	r.answered = true
	return r.Adapter.AnswerCallback(ctx, r.Update.Callback.ID, text, alert)
}

type CommandManager struct {
	mu       sync.RWMutex
	commands map[string]Command
	alias    map[string]string
	order    []string

	cbMu      sync.RWMutex
	callbacks map[string]CallbackRoute // prefix:action

	owners []int64

	log     logx.Logger
	adapter kit.Adapter
	errText func(error) string

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, owners []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &CommandManager{
		commands:  map[string]Command{},
		alias:     map[string]string{},
		callbacks: map[string]CallbackRoute{},
		owners:    slices.Clone(owners),
		log:       log,
		adapter:   adapter,
		jobs:      make(chan func(), 256),
	}
}

// SetErrorRenderer installs the mapping from handler errors to chat replies.
func (m *CommandManager) SetErrorRenderer(fn func(error) string) { m.errText = fn }

// SetOwners updates the owner list; safe during hot reload.
func (m *CommandManager) SetOwners(owners []int64) {
	m.mu.Lock()
	m.owners = slices.Clone(owners)
	m.mu.Unlock()
}

func (m *CommandManager) isOwner(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Contains(m.owners, id)
}

// SetRegistry replaces all commands and callbacks. /help is always added.
func (m *CommandManager) SetRegistry(ctx context.Context, cmds []Command, cbs []CallbackRoute) {
	cmds = append(cmds, Command{
		Name:        "help",
		Aliases:     []string{"start"},
		Description: "show this help",
		Usage:       "/help [command]",
		Handle: func(ctx context.Context, req *Request) error {
			_, err := req.ReplyHTML(ctx, m.helpText(req.Args, req.IsOwner), nil)
			return err
		},
	})

	commands := map[string]Command{}
	alias := map[string]string{}
	order := make([]string, 0, len(cmds))
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		c.Name = name
		commands[name] = c
		order = append(order, name)
		for _, a := range c.Aliases {
			if a = sanitizeTelegramCommand(a); a != "" && a != name {
				alias[a] = name
			}
		}
	}
	cb := map[string]CallbackRoute{}
	for _, r := range cbs {
		if r.Prefix == "" || r.Action == "" || r.Handle == nil {
			continue
		}
		cb[r.Prefix+":"+r.Action] = r
	}

	m.mu.Lock()
	m.commands, m.alias, m.order = commands, alias, order
	m.mu.Unlock()
	m.cbMu.Lock()
	m.callbacks = cb
	m.cbMu.Unlock()

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := buildTelegramMenuCommands(m.listCommands(false))
		go func() {
			cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
		}()
	}
}

func (m *CommandManager) lookup(word string) (Command, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if target, ok := m.alias[word]; ok {
		word = target
	}
	c, ok := m.commands[word]
	return c, ok
}

// listCommands returns commands in registration order; owner-only ones are
// included when withOwner is set.
func (m *CommandManager) listCommands(withOwner bool) []Command {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Command, 0, len(m.order))
	for _, name := range m.order {
		c := m.commands[name]
		if c.Access == AccessOwnerOnly && !withOwner {
			continue
		}
		out = append(out, c)
	}
	return out
}

// DispatchLoop consumes updates until ctx ends or updates is closed.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := max(runtime.NumCPU(), 2)
	sup := rtsup.New(ctx, rtsup.WithLogger(m.log.With(logx.String("comp", "telegram.router"))))
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	for i := range workers {
		sup.GoRestart("command.worker."+strconv.Itoa(i), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-m.jobs:
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		}, rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second))
	}
	defer func() {
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Stop(wctx)
		cancel()
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.Route(ctx, up)
		}
	}
}

// Route handles one update. Handlers run on the worker pool.
func (m *CommandManager) Route(ctx context.Context, up kit.Update) {
	switch up.Kind {
	case kit.UpdateMessage:
		m.routeMessage(ctx, up)
	case kit.UpdateCallback:
		m.routeCallback(ctx, up)
	}
}

func (m *CommandManager) routeMessage(ctx context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	word, rest, ok := splitCommand(msg.Text)
	if !ok {
		return
	}
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}
	cmd, ok := m.lookup(word)
	if !ok {
		_, _ = m.adapter.SendText(ctx, chat, "unknown command, try /help", nil)
		return
	}
	owner := m.isOwner(msg.FromID)
	if cmd.Access == AccessOwnerOnly && !owner {
		_, _ = m.adapter.SendText(ctx, chat, "this command is for bot admins only", nil)
		return
	}
	req := &Request{
		Update:   up,
		Chat:     chat,
		FromID:   msg.FromID,
		FromName: msg.FromName,
		Command:  cmd.Name,
		Args:     tokenizeCommandLine(rest),
		Text:     rest,
		IsOwner:  owner,
	}
	m.dispatch(ctx, req, cmd.Handle, cmd.Timeout, func() {
		_, _ = m.adapter.SendText(ctx, chat, "busy, try again", nil)
	})
}

func (m *CommandManager) routeCallback(ctx context.Context, up kit.Update) {
	cb := up.Callback
	if cb == nil {
		return
	}
	parts := strings.SplitN(strings.TrimSpace(cb.Data), ":", 3)
	if len(parts) < 2 {
		return
	}
	m.cbMu.RLock()
	route, ok := m.callbacks[parts[0]+":"+parts[1]]
	m.cbMu.RUnlock()
	if !ok {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "", false)
		return
	}
	owner := m.isOwner(cb.FromID)
	if route.Access == AccessOwnerOnly && !owner {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "forbidden", true)
		return
	}
	req := &Request{
		Update:   up,
		Chat:     kit.ChatTarget{ChatID: cb.ChatID, ThreadID: cb.ThreadID},
		FromID:   cb.FromID,
		FromName: cb.FromName,
		Command:  "cb:" + parts[0] + ":" + parts[1],
		IsOwner:  owner,
	}
	if len(parts) == 3 {
		req.Payload = parts[2]
	}
	m.dispatch(ctx, req, route.Handle, route.Timeout, func() {
		_ = m.adapter.AnswerCallback(ctx, cb.ID, "busy", false)
	})
}

func (m *CommandManager) dispatch(ctx context.Context, req *Request, h HandlerFunc, timeout time.Duration, busy func()) {
	req.ReqID = newReqID()
	req.Adapter = m.adapter
	req.Logger = m.log.With(
		logx.String("rid", req.ReqID),
		logx.Int64("chat_id", req.Chat.ChatID),
		logx.Int64("from_id", req.FromID),
		logx.String("cmd", req.Command),
	)
	final := Chain(h, MWRequestLog(), MWReplyError(m.errText), MWPanicRecover(), MWTimeout(timeout))
	job := func() {
		_ = final(ctx, req)
		// stop the client spinner when the handler did not answer
		_ = req.Answer(ctx, "", false)
	}
	select {
	case m.jobs <- job:
	default:
		busy()
	}
}
