package reminder

import (
	"context"
	"errors"
	"time"

	logx "deadlinebot/pkg/logx"
)

// DeadlineNotifier fires a proximity reminder per deadline group.
type DeadlineNotifier struct {
	deps Deps
	opts Options
	log  logx.Logger
}

func NewDeadlineNotifier(d Deps, opts Options) *DeadlineNotifier {
	return &DeadlineNotifier{
		deps: d,
		opts: opts.withDefaults(),
		log:  d.Log.With(logx.String("comp", "reminder"), logx.String("kind", string(KindDeadline))),
	}
}

func (n *DeadlineNotifier) Name() string { return string(KindDeadline) }

// Tick evaluates every owner at now.
func (n *DeadlineNotifier) Tick(ctx context.Context, now time.Time) (Report, error) {
	if err := checkDeps(n.deps); err != nil {
		return Report{}, err
	}
	var c counters
	owners, err := forEachOwner(ctx, n.deps, n.opts.Workers, n.log, func(ctx context.Context, owner int64) error {
		return n.evalOwner(ctx, owner, now, &c)
	})
	return c.report(owners), err
}

func (n *DeadlineNotifier) evalOwner(ctx context.Context, owner int64, now time.Time, c *counters) error {
	list, err := n.deps.Tasks.ListUnsubmitted(ctx, owner)
	if err != nil {
		return err
	}
	var errs []error
	for _, g := range GroupByMinute(list) {
		at := NotifyAt(g)
		if !Matches(now, at, n.opts.MatchWindow) {
			continue
		}
		ev := DeadlineEvent{NotifyAt: at, Deadline: g.Deadline}
		if err := deliver(ctx, n.deps, n.opts.ChannelID, owner, ev, RenderDeadline(owner, g), c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
