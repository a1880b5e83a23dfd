package reminder

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"deadlinebot/internal/storage"
	logx "deadlinebot/pkg/logx"
)

type sentMsg struct {
	channel int64
	text    string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []sentMsg
	fail func(text string) error
}

func (f *fakeSender) Send(_ context.Context, channelID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(text); err != nil {
			return err
		}
	}
	f.msgs = append(f.msgs, sentMsg{channel: channelID, text: text})
	return nil
}

func (f *fakeSender) sent() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMsg(nil), f.msgs...)
}

type countRecorder struct {
	mu sync.Mutex
	n  map[string]int
}

func (r *countRecorder) Notification(kind Kind, result string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.n == nil {
		r.n = make(map[string]int)
	}
	r.n[string(kind)+"/"+result]++
}

func (r *countRecorder) get(k string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.n[k]
}

func local(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.Local)
	if err != nil {
		panic(err)
	}
	return t
}

func addTask(t *testing.T, st *storage.Memory, owner int64, subject, title, deadline string) int64 {
	t.Helper()
	id, err := st.CreateTask(context.Background(), storage.NewTask{OwnerID: owner, Subject: subject, Title: title, Deadline: local(deadline)})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	return id
}

func newDeps(st *storage.Memory, s *fakeSender) Deps {
	return Deps{Tasks: st, Ledger: st, Sender: s, Log: logx.Nop()}
}

func TestDeadlineSingleTaskFiresOnce(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	snd := &fakeSender{}
	addTask(t, st, 42, "Math", "HW3", "2025-12-20 23:59:00")
	n := NewDeadlineNotifier(newDeps(st, snd), Options{ChannelID: 100})
	ctx := context.Background()

	if rep, err := n.Tick(ctx, local("2025-12-20 22:58:00")); err != nil || rep.Sent != 0 {
		t.Fatalf("early tick = %+v, %v", rep, err)
	}
	rep, err := n.Tick(ctx, local("2025-12-20 22:59:10"))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Sent != 1 || rep.Owners != 1 {
		t.Fatalf("report = %+v", rep)
	}
	msgs := snd.sent()
	if len(msgs) != 1 || msgs[0].channel != 100 {
		t.Fatalf("msgs = %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "23:59") || !strings.Contains(msgs[0].text, "HW3") || !strings.Contains(msgs[0].text, "tg://user?id=42") {
		t.Fatalf("text = %q", msgs[0].text)
	}
	want := "deadline:2025-12-20T22:59:00:2025-12-20T23:59:00"
	if ok, _ := st.WasSent(ctx, 42, want); !ok {
		t.Fatalf("ledger missing %q", want)
	}

	for _, now := range []string{"2025-12-20 22:59:20", "2025-12-20 22:59:30", "2025-12-20 23:05:00"} {
		if _, err := n.Tick(ctx, local(now)); err != nil {
			t.Fatalf("tick %s: %v", now, err)
		}
	}
	if got := len(snd.sent()); got != 1 {
		t.Fatalf("sent %d messages, want 1", got)
	}
}

func TestDeadlineSharedMinuteDoublesLeadTime(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	snd := &fakeSender{}
	addTask(t, st, 7, "Bio", "essay", "2025-01-01 09:00:00")
	addTask(t, st, 7, "Chem", "lab report", "2025-01-01 09:00:45")
	n := NewDeadlineNotifier(newDeps(st, snd), Options{})
	ctx := context.Background()

	if rep, _ := n.Tick(ctx, local("2025-01-01 08:00:00")); rep.Sent != 0 {
		t.Fatalf("one-hour lead must not fire for a two-task group: %+v", rep)
	}
	if _, err := n.Tick(ctx, local("2025-01-01 07:00:00")); err != nil {
		t.Fatalf("tick: %v", err)
	}
	msgs := snd.sent()
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d, want 1", len(msgs))
	}
	if !strings.Contains(msgs[0].text, "essay") || !strings.Contains(msgs[0].text, "lab report") {
		t.Fatalf("both tasks must be listed: %q", msgs[0].text)
	}
	if ok, _ := st.WasSent(ctx, 7, "deadline:2025-01-01T07:00:00:2025-01-01T09:00:00"); !ok {
		t.Fatal("ledger key missing")
	}
}

func TestDeadlineWindowBoundary(t *testing.T) {
	t.Parallel()
	cases := []struct {
		now  string
		want int
	}{
		{"2025-12-20 22:58:30", 1},
		{"2025-12-20 22:59:30", 1},
		{"2025-12-20 22:58:29", 0},
		{"2025-12-20 22:59:31", 0},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.now, func(t *testing.T) {
			t.Parallel()
			st := storage.NewMemory()
			snd := &fakeSender{}
			addTask(t, st, 42, "Math", "HW3", "2025-12-20 23:59:00")
			n := NewDeadlineNotifier(newDeps(st, snd), Options{})
			if _, err := n.Tick(context.Background(), local(tc.now)); err != nil {
				t.Fatalf("tick: %v", err)
			}
			if got := len(snd.sent()); got != tc.want {
				t.Fatalf("sent = %d, want %d", got, tc.want)
			}
		})
	}
}

func TestDeadlineSubmittedTaskIgnored(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	snd := &fakeSender{}
	id := addTask(t, st, 42, "Math", "HW3", "2025-12-20 23:59:00")
	if ok, _ := st.MarkSubmitted(context.Background(), 42, id); !ok {
		t.Fatal("submit failed")
	}
	n := NewDeadlineNotifier(newDeps(st, snd), Options{})
	if _, err := n.Tick(context.Background(), local("2025-12-20 22:59:00")); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(snd.sent()) != 0 {
		t.Fatal("submitted tasks must not be reminded")
	}
}

func TestDeadlineFailureLeavesLedgerAndRetries(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	failing := true
	snd := &fakeSender{fail: func(string) error {
		if failing {
			return errors.New("telegram down")
		}
		return nil
	}}
	rec := &countRecorder{}
	addTask(t, st, 42, "Math", "HW3", "2025-12-20 23:59:00")
	d := newDeps(st, snd)
	d.Recorder = rec
	n := NewDeadlineNotifier(d, Options{})
	ctx := context.Background()

	rep, err := n.Tick(ctx, local("2025-12-20 22:58:40"))
	if err != nil {
		t.Fatalf("delivery failure must not fail the tick: %v", err)
	}
	if rep.Failed != 1 || rep.Sent != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if st.SentCount() != 0 {
		t.Fatal("failed delivery must not be recorded")
	}

	snd.mu.Lock()
	failing = false
	snd.mu.Unlock()
	if _, err := n.Tick(ctx, local("2025-12-20 22:59:10")); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if len(snd.sent()) != 1 || st.SentCount() != 1 {
		t.Fatalf("retry within window must deliver once: msgs=%d ledger=%d", len(snd.sent()), st.SentCount())
	}
	if rec.get("deadline/failed") != 1 || rec.get("deadline/sent") != 1 {
		t.Fatalf("recorder = %v", rec.n)
	}
}

func TestDeadlineOwnerFailureIsolated(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	snd := &fakeSender{fail: func(text string) error {
		if strings.Contains(text, "tg://user?id=1\"") {
			return errors.New("blocked")
		}
		return nil
	}}
	for _, owner := range []int64{1, 2, 3} {
		addTask(t, st, owner, "S", "T", "2025-06-01 12:00:00")
	}
	n := NewDeadlineNotifier(newDeps(st, snd), Options{Workers: 2})
	rep, err := n.Tick(context.Background(), local("2025-06-01 11:00:00"))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Owners != 3 || rep.Sent != 2 || rep.Failed != 1 {
		t.Fatalf("report = %+v", rep)
	}
	if ok, _ := st.WasSent(context.Background(), 1, "deadline:2025-06-01T11:00:00:2025-06-01T12:00:00"); ok {
		t.Fatal("failed owner must not be recorded")
	}
}

type brokenStore struct{ *storage.Memory }

func (brokenStore) ListDistinctOwners(context.Context) ([]int64, error) {
	return nil, errors.New("database is locked")
}

func TestStoreUnavailableAbortsTick(t *testing.T) {
	t.Parallel()
	st := brokenStore{storage.NewMemory()}
	snd := &fakeSender{}
	d := Deps{Tasks: st, Ledger: st, Sender: snd, Log: logx.Nop()}
	if _, err := NewDeadlineNotifier(d, Options{}).Tick(context.Background(), time.Now()); err == nil {
		t.Fatal("expected error from deadline tick")
	}
	daily := NewDailySummaryNotifier(d, Options{}, Clock{Hour: 8})
	if _, err := daily.Tick(context.Background(), local("2025-06-01 08:00:00")); err == nil {
		t.Fatal("expected error from daily tick")
	}
}

func TestDailyDigestOncePerDay(t *testing.T) {
	t.Parallel()
	st := storage.NewMemory()
	snd := &fakeSender{}
	addTask(t, st, 42, "Math", "late", "2025-12-20 23:59:00")
	addTask(t, st, 42, "Bio", "early", "2025-12-20 09:30:00")
	addTask(t, st, 42, "Chem", "tomorrow", "2025-12-21 09:30:00")
	addTask(t, st, 7, "Art", "next week", "2025-12-27 10:00:00")
	n := NewDailySummaryNotifier(newDeps(st, snd), Options{ChannelID: 5}, Clock{Hour: 8, Minute: 0})
	ctx := context.Background()

	if rep, _ := n.Tick(ctx, local("2025-12-20 07:59:59")); !rep.Skipped {
		t.Fatalf("tick outside minute must be skipped: %+v", rep)
	}
	rep, err := n.Tick(ctx, local("2025-12-20 08:00:05"))
	if err != nil {
		t.Fatalf("tick: %v", err)
	}
	if rep.Owners != 2 || rep.Sent != 1 {
		t.Fatalf("report = %+v", rep)
	}
	msgs := snd.sent()
	if len(msgs) != 1 {
		t.Fatalf("msgs = %d", len(msgs))
	}
	text := msgs[0].text
	if strings.Contains(text, "tomorrow") {
		t.Fatalf("only today's tasks: %q", text)
	}
	if i, j := strings.Index(text, "early"), strings.Index(text, "late"); i < 0 || j < 0 || i > j {
		t.Fatalf("tasks must be in deadline order: %q", text)
	}
	for _, owner := range []int64{42, 7} {
		if ok, _ := st.WasSent(ctx, owner, "daily:2025-12-20"); !ok {
			t.Fatalf("owner %d daily key missing", owner)
		}
	}

	for i := 0; i < 3; i++ {
		if _, err := n.Tick(ctx, local("2025-12-20 08:00:30")); err != nil {
			t.Fatalf("re-entry: %v", err)
		}
	}
	if len(snd.sent()) != 1 {
		t.Fatalf("forced re-entry must be a no-op, sent %d", len(snd.sent()))
	}

	if _, err := n.Tick(ctx, local("2025-12-21 08:00:00")); err != nil {
		t.Fatalf("next day: %v", err)
	}
	if len(snd.sent()) != 2 || !strings.Contains(snd.sent()[1].text, "tomorrow") {
		t.Fatalf("next day digest missing: %+v", snd.sent())
	}
}

func TestEventKeys(t *testing.T) {
	t.Parallel()
	ev := DeadlineEvent{NotifyAt: local("2025-12-20 22:59:00"), Deadline: local("2025-12-20 23:59:00")}
	if got := ev.Key(); got != "deadline:2025-12-20T22:59:00:2025-12-20T23:59:00" {
		t.Fatalf("deadline key = %q", got)
	}
	day := DayOf(local("2025-03-04 23:59:59"))
	if got := day.Key(); got != "daily:2025-03-04" {
		t.Fatalf("daily key = %q", got)
	}
	if !day.Contains(local("2025-03-04 00:00:00")) || day.Contains(local("2025-03-05 00:00:00")) {
		t.Fatal("Contains mismatch")
	}
	var _ Event = ev
	var _ Event = day
}

func TestGroupByMinute(t *testing.T) {
	t.Parallel()
	tasks := []storage.Task{
		{ID: 1, Deadline: local("2025-01-01 09:00:00")},
		{ID: 2, Deadline: local("2025-01-01 09:00:59")},
		{ID: 3, Deadline: local("2025-01-01 09:01:00")},
	}
	groups := GroupByMinute(tasks)
	if len(groups) != 2 {
		t.Fatalf("groups = %d", len(groups))
	}
	if len(groups[0].Items) != 2 || LeadTime(groups[0]) != 2*time.Hour {
		t.Fatalf("first group = %+v", groups[0])
	}
	if !NotifyAt(groups[1]).Equal(local("2025-01-01 08:01:00")) {
		t.Fatalf("notify at = %v", NotifyAt(groups[1]))
	}
}

func TestRenderEscapesHTML(t *testing.T) {
	t.Parallel()
	g := Group{Deadline: local("2025-01-01 09:00:00"), Items: []Item{{ID: 3, Subject: "<b>", Title: "a&b"}}}
	text := RenderDeadline(9, g)
	if strings.Contains(text, "<b>:") || !strings.Contains(text, "&lt;b&gt;") || !strings.Contains(text, "a&amp;b") {
		t.Fatalf("text = %q", text)
	}
}
