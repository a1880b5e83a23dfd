package router

import (
	"context"
	"html"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	rtsup "deadlinebot/internal/runtime/supervisor"
	kit "deadlinebot/internal/transport"
	logx "deadlinebot/pkg/logx"
)

const defaultCommandTimeout = 15 * time.Second

type Command struct {
	Name        string   // telegram command name, [a-z0-9_]
	Aliases     []string // extra names, not shown in the menu
	Description string
	Usage       string
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

// Observer receives per-command outcomes.
type Observer interface {
	ObserveCommand(name string, err error)
}

type Request struct {
	Update  kit.Update
	Chat    kit.ChatTarget
	FromID  int64
	Command string

	// Args are positionals after flag parsing; RawArgs are the tokens as typed.
	Args      []string
	RawArgs   []string
	Flags     map[string]string
	BoolFlags map[string]bool
	ReqID     string

	Logger logx.Logger
	sender kit.TextSender
}

// Reply sends HTML text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) error {
	if r.sender == nil {
		return nil
	}
	_, err := r.sender.SendText(ctx, r.Chat, text, &kit.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

type Router struct {
	mu    sync.RWMutex
	cmds  map[string]*Command
	alias map[string]*Command

	log     logx.Logger
	sender  kit.TextSender
	obs     Observer
	workers int

	jobs chan func()
}

func New(log logx.Logger, sender kit.TextSender, obs Observer, workers int) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	if workers <= 0 {
		workers = 2
	}
	r := &Router{
		cmds:    map[string]*Command{},
		alias:   map[string]*Command{},
		log:     log.With(logx.String("comp", "telegram.router")),
		sender:  sender,
		obs:     obs,
		workers: workers,
		jobs:    make(chan func(), 256),
	}
	return r
}

// Register replaces the command set. /help is always added.
func (r *Router) Register(cmds ...Command) {
	helper := Command{
		Name:        "help",
		Aliases:     []string{"start", "h"},
		Description: "show available commands",
		Usage:       "/help",
		Handle: func(ctx context.Context, req *Request) error {
			return req.Reply(ctx, r.helpText())
		},
	}
	cmds = append(cmds, helper)

	byName := map[string]*Command{}
	alias := map[string]*Command{}
	for _, c := range cmds {
		name := sanitizeTelegramCommand(c.Name)
		if name == "" || c.Handle == nil {
			continue
		}
		cc := c
		cc.Name = name
		byName[name] = &cc
	}
	for _, c := range byName {
		for _, a := range c.Aliases {
			a = strings.ToLower(strings.TrimSpace(a))
			if a == "" || strings.Contains(a, " ") {
				continue
			}
			if _, taken := byName[a]; taken {
				continue
			}
			alias[a] = c
		}
	}

	r.mu.Lock()
	r.cmds = byName
	r.alias = alias
	r.mu.Unlock()
}

func (r *Router) lookup(word string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.cmds[word]; ok {
		return c, true
	}
	c, ok := r.alias[word]
	return c, ok
}

// Commands returns registered commands sorted by name.
func (r *Router) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, *c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// MenuCommands builds the Telegram /menu entries.
func (r *Router) MenuCommands() []kit.BotCommand {
	cmds := r.Commands()
	out := make([]kit.BotCommand, 0, len(cmds))
	for _, c := range cmds {
		d := strings.TrimSpace(c.Description)
		if d == "" {
			d = c.Name
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: d})
	}
	return out
}

func (r *Router) helpText() string {
	lines := []string{"📚 <b>Commands</b>", ""}
	for _, c := range r.Commands() {
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		line := "<code>" + html.EscapeString(usage) + "</code>"
		if c.Description != "" {
			line += " - " + html.EscapeString(c.Description)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// DispatchLoop routes updates to a bounded worker pool until ctx is done or
// updates is closed.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	sup := rtsup.New(ctx,
		rtsup.WithLogger(r.log),
		rtsup.WithCancelOnError(false),
	)
	r.log.Info("command dispatcher started", logx.Int("workers", r.workers), logx.Int("job_queue_cap", cap(r.jobs)))

	for i := 0; i < r.workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job := <-r.jobs:
					if job == nil {
						continue
					}
					func() {
						defer func() {
							if p := recover(); p != nil {
								r.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", p), logx.String("stack", string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
		)
	}

	defer func() {
		sup.Cancel()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		r.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			req, h := r.prepare(ctx, up)
			if h == nil {
				continue
			}
			select {
			case r.jobs <- func() { _ = h(ctx, req) }:
			default:
				_ = req.Reply(ctx, "busy, try again")
			}
		}
	}
}

// Dispatch handles one update synchronously.
func (r *Router) Dispatch(ctx context.Context, up kit.Update) error {
	req, h := r.prepare(ctx, up)
	if h == nil {
		return nil
	}
	return h(ctx, req)
}

// prepare resolves the command and wraps its handler. A nil handler means
// the update needs no further work.
func (r *Router) prepare(ctx context.Context, up kit.Update) (*Request, HandlerFunc) {
	if up.Kind != kit.UpdateMessage || up.Message == nil {
		return nil, nil
	}
	msg := up.Message
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return nil, nil
	}
	parts := tokenizeCommandLine(text)
	if len(parts) == 0 {
		return nil, nil
	}
	word := commandWord(parts[0])
	raw := parts[1:]
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	cmd, ok := r.lookup(word)
	if !ok {
		if r.sender != nil {
			_, _ = r.sender.SendText(ctx, chat, "unknown command, try /help", nil)
		}
		return nil, nil
	}

	rid := newReqID()
	pos, flags, bools := parseFlags(raw)
	req := &Request{
		Update:    up,
		Chat:      chat,
		FromID:    msg.FromID,
		Command:   cmd.Name,
		Args:      pos,
		RawArgs:   raw,
		Flags:     flags,
		BoolFlags: bools,
		ReqID:     rid,
		Logger: r.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
		sender: r.sender,
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = defaultCommandTimeout
	}
	return req, Chain(
		cmd.Handle,
		MWPanicRecover(r.log),
		MWObserve(r.obs),
		MWRequestLog(r.log),
		MWTimeout(timeout),
	)
}

// sanitizeTelegramCommand lowercases s and drops characters Telegram rejects.
// Telegram command names are restricted to [a-z0-9_]{1,32}.
func sanitizeTelegramCommand(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		case r == '-' || r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if len(out) > 32 {
		out = out[:32]
	}
	return out
}
