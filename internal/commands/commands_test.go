package commands

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"deadlinebot/internal/storage"
	"deadlinebot/internal/tasks"
	kit "deadlinebot/internal/transport"
	"deadlinebot/internal/transport/telegram/router"
	logx "deadlinebot/pkg/logx"
)

type chatRecorder struct {
	mu   sync.Mutex
	msgs []string
}

func (c *chatRecorder) SendText(_ context.Context, _ kit.ChatTarget, text string, _ *kit.SendOptions) (kit.MessageRef, error) {
	c.mu.Lock()
	c.msgs = append(c.msgs, text)
	c.mu.Unlock()
	return kit.MessageRef{}, nil
}

func (c *chatRecorder) last() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.msgs) == 0 {
		return ""
	}
	return c.msgs[len(c.msgs)-1]
}

type channelSender struct {
	err  error
	sent []string
}

func (s *channelSender) Send(_ context.Context, _ int64, text string) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, text)
	return nil
}

type fixture struct {
	store *storage.Memory
	chat  *chatRecorder
	ch    *channelSender
	r     *router.Router
}

func newFixture(channelID int64) *fixture {
	f := &fixture{store: storage.NewMemory(), chat: &chatRecorder{}, ch: &channelSender{}}
	f.r = router.New(logx.Nop(), f.chat, nil, 1)
	f.r.Register(All(Deps{
		Tasks:     tasks.NewService(f.store, logx.Nop()),
		Sender:    f.ch,
		ChannelID: channelID,
		Log:       logx.Nop(),
	})...)
	return f
}

func (f *fixture) run(t *testing.T, from int64, text string) string {
	t.Helper()
	up := kit.Update{Kind: kit.UpdateMessage, Message: &kit.Message{ChatID: 1, FromID: from, Text: text}}
	_ = f.r.Dispatch(context.Background(), up)
	return f.chat.last()
}

func TestTaskAddListDone(t *testing.T) {
	t.Parallel()
	f := newFixture(100)

	reply := f.run(t, 42, `/task_add Math "Homework 3" 2025-12-20 23:59`)
	if !strings.Contains(reply, "#1") || !strings.Contains(reply, "Homework 3") || !strings.Contains(reply, "2025-12-20 23:59") {
		t.Fatalf("add reply = %q", reply)
	}

	reply = f.run(t, 42, "/task_list")
	if !strings.Contains(reply, "#1") || !strings.Contains(reply, "Math: Homework 3") {
		t.Fatalf("list reply = %q", reply)
	}
	if reply := f.run(t, 7, "/task_list"); !strings.Contains(reply, "No open tasks") {
		t.Fatalf("other owner sees tasks: %q", reply)
	}

	if reply := f.run(t, 7, "/task_done 1"); !strings.Contains(reply, "not found") {
		t.Fatalf("foreign done reply = %q", reply)
	}
	if reply := f.run(t, 42, "/task_done #1"); !strings.Contains(reply, "submitted") {
		t.Fatalf("done reply = %q", reply)
	}
	if reply := f.run(t, 42, "/task_done 1"); !strings.Contains(reply, "not found") {
		t.Fatalf("second done reply = %q", reply)
	}
}

func TestTaskAddRejectsBadDeadline(t *testing.T) {
	t.Parallel()
	f := newFixture(100)
	reply := f.run(t, 42, "/task_add Math HW3 next friday")
	if !strings.Contains(reply, "deadline") {
		t.Fatalf("reply = %q", reply)
	}
	owners, _ := f.store.ListDistinctOwners(context.Background())
	if len(owners) != 0 {
		t.Fatal("invalid task must not be stored")
	}
}

func TestTaskAddUsage(t *testing.T) {
	t.Parallel()
	f := newFixture(100)
	if reply := f.run(t, 42, "/task_add Math"); !strings.Contains(reply, "usage") {
		t.Fatalf("reply = %q", reply)
	}
	if reply := f.run(t, 42, "/task_done abc"); !strings.Contains(reply, "positive number") {
		t.Fatalf("reply = %q", reply)
	}
}

func TestNotifyTest(t *testing.T) {
	t.Parallel()
	f := newFixture(100)
	if reply := f.run(t, 42, "/notify_test"); !strings.Contains(reply, "sent") {
		t.Fatalf("reply = %q", reply)
	}
	if len(f.ch.sent) != 1 {
		t.Fatalf("channel messages = %d", len(f.ch.sent))
	}

	f.ch.err = errors.New("chat not found")
	if reply := f.run(t, 42, "/notify_test"); !strings.Contains(reply, "chat not found") {
		t.Fatalf("reply = %q", reply)
	}

	unconfigured := newFixture(0)
	if reply := unconfigured.run(t, 42, "/notify_test"); !strings.Contains(reply, "not configured") {
		t.Fatalf("reply = %q", reply)
	}
}
