package router

import (
	"context"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	kit "deadlinebot/internal/transport"
	logx "deadlinebot/pkg/logx"
)

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	ch   chan string
}

func (f *fakeSender) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	f.mu.Lock()
	f.sent = append(f.sent, text)
	ch := f.ch
	f.mu.Unlock()
	if ch != nil {
		ch <- text
	}
	return kit.MessageRef{}, nil
}

func (f *fakeSender) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1]
}

func msg(text string) kit.Update {
	return kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 10, FromID: 42, Text: text}}
}

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	cases := []struct {
		in   string
		want []string
	}{
		{`/task_add Math "Homework 3" 2025-12-20 23:59`, []string{"/task_add", "Math", "Homework 3", "2025-12-20", "23:59"}},
		{`/x 'a b' c\ d`, []string{"/x", "a b", "c d"}},
		{`/x ""`, []string{"/x", ""}},
		{"   ", nil},
	}
	for _, tc := range cases {
		if got := tokenizeCommandLine(tc.in); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("tokenize(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseFlags([]string{"a", "--owner=7", "--all", "-n", "3", "b"})
	if !reflect.DeepEqual(pos, []string{"a", "b"}) {
		t.Fatalf("pos = %v", pos)
	}
	if flags["owner"] != "7" || flags["n"] != "3" || !bools["all"] {
		t.Fatalf("flags = %v bools = %v", flags, bools)
	}
}

func TestDispatchRoutesWithArgs(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	r := New(logx.Nop(), snd, nil, 1)
	var got *Request
	r.Register(Command{Name: "task_add", Handle: func(ctx context.Context, req *Request) error {
		got = req
		return req.Reply(ctx, "ok")
	}})

	if err := r.Dispatch(context.Background(), msg(`/task_add@DeadlineBot Math "HW 3" 2025-12-20 23:59`)); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if got == nil {
		t.Fatal("handler not called")
	}
	if got.FromID != 42 || got.Chat.ChatID != 10 || got.Command != "task_add" || got.ReqID == "" {
		t.Fatalf("request = %+v", got)
	}
	if !reflect.DeepEqual(got.RawArgs, []string{"Math", "HW 3", "2025-12-20", "23:59"}) {
		t.Fatalf("raw args = %#v", got.RawArgs)
	}
	if snd.last() != "ok" {
		t.Fatalf("reply = %q", snd.last())
	}
}

func TestDispatchUnknownAndPlainText(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	r := New(logx.Nop(), snd, nil, 1)
	r.Register()

	_ = r.Dispatch(context.Background(), msg("hello there"))
	if snd.last() != "" {
		t.Fatal("plain text must be ignored")
	}
	_ = r.Dispatch(context.Background(), msg("/nope"))
	if !strings.Contains(snd.last(), "unknown command") {
		t.Fatalf("reply = %q", snd.last())
	}
}

type obsCounter struct {
	mu   sync.Mutex
	errs map[string]int
}

func (o *obsCounter) ObserveCommand(name string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.errs == nil {
		o.errs = map[string]int{}
	}
	if err != nil {
		o.errs[name]++
	}
}

func TestDispatchRecoversPanic(t *testing.T) {
	t.Parallel()
	obs := &obsCounter{}
	r := New(logx.Nop(), &fakeSender{}, obs, 1)
	r.Register(Command{Name: "boom", Handle: func(context.Context, *Request) error { panic("kaboom") }})
	err := r.Dispatch(context.Background(), msg("/boom"))
	if err == nil || !strings.Contains(err.Error(), "kaboom") {
		t.Fatalf("err = %v", err)
	}
	if obs.errs["boom"] != 1 {
		t.Fatalf("observer = %v", obs.errs)
	}
}

func TestHelpAndMenu(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{}
	r := New(logx.Nop(), snd, nil, 1)
	noop := func(context.Context, *Request) error { return nil }
	r.Register(
		Command{Name: "task_list", Description: "list open tasks", Handle: noop},
		Command{Name: "task_done", Aliases: []string{"done"}, Description: "mark a task done", Usage: "/task_done <id>", Handle: noop},
	)

	menu := r.MenuCommands()
	var names []string
	for _, c := range menu {
		names = append(names, c.Command)
	}
	if !reflect.DeepEqual(names, []string{"help", "task_done", "task_list"}) {
		t.Fatalf("menu = %v", names)
	}

	_ = r.Dispatch(context.Background(), msg("/start"))
	help := snd.last()
	if !strings.Contains(help, "/task_done &lt;id&gt;") || !strings.Contains(help, "list open tasks") {
		t.Fatalf("help = %q", help)
	}
	if _, ok := r.lookup("done"); !ok {
		t.Fatal("alias not registered")
	}
}

func TestDispatchLoop(t *testing.T) {
	t.Parallel()
	snd := &fakeSender{ch: make(chan string, 1)}
	r := New(logx.Nop(), snd, nil, 2)
	r.Register(Command{Name: "ping", Handle: func(ctx context.Context, req *Request) error {
		return req.Reply(ctx, "pong")
	}})

	ctx, cancel := context.WithCancel(context.Background())
	updates := make(chan kit.Update, 1)
	done := make(chan error, 1)
	go func() { done <- r.DispatchLoop(ctx, updates) }()

	updates <- msg("/ping")
	select {
	case got := <-snd.ch:
		if got != "pong" {
			t.Fatalf("reply = %q", got)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reply")
	}
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("DispatchLoop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
}

func TestSanitizeTelegramCommand(t *testing.T) {
	t.Parallel()
	if got := sanitizeTelegramCommand(" Task-Add "); got != "task_add" {
		t.Fatalf("got %q", got)
	}
	if got := sanitizeTelegramCommand("@@"); got != "" {
		t.Fatalf("got %q", got)
	}
}
