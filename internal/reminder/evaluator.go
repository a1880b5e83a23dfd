package reminder

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"deadlinebot/internal/storage"
	logx "deadlinebot/pkg/logx"

	"golang.org/x/sync/errgroup"
)

const (
	DefaultMatchWindow = 30 * time.Second
	DefaultWorkers     = 4
)

var ErrNoSender = errors.New("reminder: sender is nil")

// Sender is the message-delivery surface.
type Sender interface {
	Send(ctx context.Context, channelID int64, text string) error
}

// Recorder observes per-event outcomes. Results: sent, failed, duplicate, empty.
type Recorder interface {
	Notification(kind Kind, result string)
}

// Deps are the collaborators shared by both evaluators.
type Deps struct {
	Tasks    storage.TaskStore
	Ledger   storage.Ledger
	Sender   Sender
	Recorder Recorder
	Log      logx.Logger
}

// Options are fixed at process start.
type Options struct {
	ChannelID   int64
	MatchWindow time.Duration
	Workers     int
}

func (o Options) withDefaults() Options {
	if o.MatchWindow <= 0 {
		o.MatchWindow = DefaultMatchWindow
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	return o
}

// Report summarizes one evaluator tick.
type Report struct {
	Owners  int
	Matched int
	Sent    int
	Failed  int
	Skipped bool // daily evaluator outside its minute
}

type counters struct {
	matched atomic.Int64
	sent    atomic.Int64
	failed  atomic.Int64
}

func (c *counters) report(owners int) Report {
	return Report{
		Owners:  owners,
		Matched: int(c.matched.Load()),
		Sent:    int(c.sent.Load()),
		Failed:  int(c.failed.Load()),
	}
}

// forEachOwner runs fn for every owner with bounded parallelism.
// An owner's error is logged and never cancels the others; only the
// owner listing itself aborts the tick.
func forEachOwner(ctx context.Context, d Deps, workers int, log logx.Logger, fn func(ctx context.Context, owner int64) error) (int, error) {
	owners, err := d.Tasks.ListDistinctOwners(ctx)
	if err != nil {
		return 0, err
	}
	var g errgroup.Group
	g.SetLimit(workers)
	for _, owner := range owners {
		owner := owner
		g.Go(func() error {
			if ctx.Err() != nil {
				return nil
			}
			if err := fn(ctx, owner); err != nil {
				log.Warn("owner evaluation failed", logx.Int64("owner", owner), logx.Err(err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return len(owners), ctx.Err()
}

// deliver sends text for ev unless the ledger already has it, then records it.
// A failed send leaves the ledger untouched.
func deliver(ctx context.Context, d Deps, channelID int64, owner int64, ev Event, text string, c *counters) error {
	key := ev.Key()
	sent, err := d.Ledger.WasSent(ctx, owner, key)
	if err != nil {
		return err
	}
	if sent {
		record(d.Recorder, ev.Kind(), "duplicate")
		return nil
	}
	c.matched.Add(1)
	if text != "" {
		if err := d.Sender.Send(ctx, channelID, text); err != nil {
			c.failed.Add(1)
			record(d.Recorder, ev.Kind(), "failed")
			return err
		}
		c.sent.Add(1)
		record(d.Recorder, ev.Kind(), "sent")
	} else {
		record(d.Recorder, ev.Kind(), "empty")
	}
	if err := d.Ledger.MarkSent(ctx, owner, key); err != nil {
		return err
	}
	d.Log.Debug("notification recorded", logx.Int64("owner", owner), logx.String("key", key))
	return nil
}

func record(r Recorder, kind Kind, result string) {
	if r != nil {
		r.Notification(kind, result)
	}
}

func checkDeps(d Deps) error {
	if d.Tasks == nil || d.Ledger == nil {
		return errors.New("reminder: store is nil")
	}
	if d.Sender == nil {
		return ErrNoSender
	}
	return nil
}
