package reminder

import (
	"context"
	"fmt"
	"sort"
	"time"

	"deadlinebot/internal/storage"
	logx "deadlinebot/pkg/logx"
)

// Clock is a local time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

// Matches compares hour and minute of t's local time.
func (c Clock) Matches(t time.Time) bool {
	t = t.In(time.Local)
	return t.Hour() == c.Hour && t.Minute() == c.Minute
}

// DailySummaryNotifier sends one digest per owner per day.
type DailySummaryNotifier struct {
	deps Deps
	opts Options
	at   Clock
	log  logx.Logger
}

func NewDailySummaryNotifier(d Deps, opts Options, at Clock) *DailySummaryNotifier {
	return &DailySummaryNotifier{
		deps: d,
		opts: opts.withDefaults(),
		at:   at,
		log:  d.Log.With(logx.String("comp", "reminder"), logx.String("kind", string(KindDaily))),
	}
}

func (n *DailySummaryNotifier) Name() string { return string(KindDaily) }

// Tick is a no-op unless now's local hour and minute equal the configured time.
func (n *DailySummaryNotifier) Tick(ctx context.Context, now time.Time) (Report, error) {
	if !n.at.Matches(now) {
		return Report{Skipped: true}, nil
	}
	if err := checkDeps(n.deps); err != nil {
		return Report{}, err
	}
	day := DayOf(now)
	var c counters
	owners, err := forEachOwner(ctx, n.deps, n.opts.Workers, n.log, func(ctx context.Context, owner int64) error {
		return n.evalOwner(ctx, owner, day, &c)
	})
	return c.report(owners), err
}

func (n *DailySummaryNotifier) evalOwner(ctx context.Context, owner int64, day DailyEvent, c *counters) error {
	sent, err := n.deps.Ledger.WasSent(ctx, owner, day.Key())
	if err != nil {
		return err
	}
	if sent {
		record(n.deps.Recorder, KindDaily, "duplicate")
		return nil
	}
	list, err := n.deps.Tasks.ListUnsubmitted(ctx, owner)
	if err != nil {
		return err
	}
	due := DueOn(list, day)
	text := ""
	if len(due) > 0 {
		text = RenderDaily(owner, day, due)
	}
	return deliver(ctx, n.deps, n.opts.ChannelID, owner, day, text, c)
}

// DueOn selects tasks whose local deadline date is day, sorted by deadline then id.
func DueOn(tasks []storage.Task, day DailyEvent) []storage.Task {
	var out []storage.Task
	for _, t := range tasks {
		if day.Contains(t.Deadline) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	return out
}
