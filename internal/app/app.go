// Package app wires the deadline bot together and owns its lifecycle.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"deadlinebot/internal/commands"
	"deadlinebot/internal/config"
	"deadlinebot/internal/eventbus"
	"deadlinebot/internal/metrics"
	"deadlinebot/internal/notifier"
	"deadlinebot/internal/observability"
	"deadlinebot/internal/reminder"
	rtsup "deadlinebot/internal/runtime/supervisor"
	"deadlinebot/internal/scheduler"
	"deadlinebot/internal/storage"
	"deadlinebot/internal/tasks"
	kit "deadlinebot/internal/transport"
	telegram "deadlinebot/internal/transport/telegram/adapter"
	"deadlinebot/internal/transport/telegram/router"
	logx "deadlinebot/pkg/logx"
	"deadlinebot/pkg/systemd"
)

// Transport is the chat platform: updates in, text out, plus a log sink.
type Transport interface {
	kit.Adapter
	ChatSink(ctx context.Context, chatID int64, text string) error
}

// TransportFactory builds the Transport once logging exists.
type TransportFactory func(cfg telegram.Config, log logx.Logger) (Transport, error)

type Option func(*options)

type options struct {
	transport TransportFactory
	sd        *systemd.Notifier
}

// WithTransport replaces the Telegram adapter (tests use an in-memory fake).
func WithTransport(f TransportFactory) Option { return func(o *options) { o.transport = f } }

func telegramTransport(cfg telegram.Config, log logx.Logger) (Transport, error) {
	return telegram.New(cfg, log)
}

type transportBox struct{ t Transport }

type App struct {
	cfgm *config.Manager
	cfg  *config.Config
	sup  *rtsup.Supervisor

	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store  storage.Store
	ledger storage.LedgerHandle

	transport Transport
	notif     *notifier.Service
	sched     *scheduler.Service
	router    *router.Router
	metrics   *metrics.Metrics
	http      *observability.Service
	sd        *systemd.Notifier

	updates chan kit.Update
	ready   atomic.Bool
}

// New builds every component from the manager's config. Nothing is started.
func New(cfgm *config.Manager, opts ...Option) (a *App, err error) {
	o := options{transport: telegramTransport}
	for _, fn := range opts {
		fn(&o)
	}

	cfg := cfgm.Get()
	if cfg == nil {
		if cfg, err = cfgm.Load(); err != nil {
			return nil, err
		}
	}
	if err := CheckConfig(cfg); err != nil {
		return nil, err
	}

	// The chat sink resolves the transport lazily; it does not exist yet.
	var relay atomic.Value
	chat := func(ctx context.Context, chatID int64, text string) error {
		b, _ := relay.Load().(transportBox)
		if b.t == nil {
			return errors.New("transport not ready")
		}
		return b.t.ChatSink(ctx, chatID, text)
	}
	logs, root := logx.New(mapLogConfig(cfg), chat)

	var closers []func() error
	defer func() {
		if err == nil {
			return
		}
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i]()
		}
		_ = logs.Close()
	}()

	tcfg, err := mapTelegramConfig(cfg)
	if err != nil {
		return nil, err
	}
	tr, err := o.transport(tcfg, root)
	if err != nil {
		return nil, fmt.Errorf("transport: %w", err)
	}
	relay.Store(transportBox{t: tr})

	sc, err := MapStorageConfig(cfg)
	if err != nil {
		return nil, err
	}
	store, err := storage.Open(sc, root)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	closers = append(closers, store.Close)

	lc, err := mapLedgerConfig(cfg)
	if err != nil {
		return nil, err
	}
	ledger, err := storage.OpenLedger(lc, store, root)
	if err != nil {
		return nil, err
	}
	closers = append(closers, ledger.Close)

	ncfg, err := mapNotifierConfig(cfg)
	if err != nil {
		return nil, err
	}
	rs, err := mapReminderConfig(cfg)
	if err != nil {
		return nil, err
	}

	a = &App{
		cfgm:      cfgm,
		cfg:       cfg,
		log:       root.With(logx.String("comp", "app")),
		logs:      logs,
		bus:       eventbus.New(),
		store:     store,
		ledger:    ledger,
		transport: tr,
		metrics:   metrics.New(),
		sd:        o.sd,
		updates:   make(chan kit.Update, 256),
	}
	a.notif = notifier.New(ncfg, tr, root, a.bus)

	deps := reminder.Deps{Tasks: store, Ledger: ledger, Sender: a.notif, Recorder: a.metrics, Log: root}
	evals := []scheduler.Evaluator{reminder.NewDeadlineNotifier(deps, rs.opts)}
	if rs.dailyOn {
		evals = append(evals, reminder.NewDailySummaryNotifier(deps, rs.opts, rs.daily))
	}
	if a.sched, err = scheduler.New(rs.sched, root, a.bus, a.metrics, evals...); err != nil {
		return nil, err
	}

	a.router = router.New(root, tr, a.metrics, cfg.Telegram.CommandWorkers)
	a.router.Register(commands.All(commands.Deps{
		Tasks:     tasks.NewService(store, root),
		Sender:    a.notif,
		ChannelID: rs.opts.ChannelID,
		Log:       root,
	})...)

	if cfg.Observability.Enabled {
		oc, err := mapObservabilityConfig(cfg)
		if err != nil {
			return nil, err
		}
		a.http = observability.New(oc, observability.Probes{
			Gatherer: a.metrics.Registry(),
			Health:   a.Health,
			Status:   func() any { return a.Status() },
		}, root)
	}
	if a.sd == nil && cfg.Systemd.Notify {
		a.sd = systemd.New()
	}

	a.log.Info("app built",
		logx.String("storage", sc.Driver),
		logx.String("schedule", rs.sched.Schedule),
		logx.Bool("daily", rs.dailyOn),
		logx.Int("evaluators", len(evals)),
	)
	return a, nil
}

// Done is closed when the app supervisor context is canceled (fatal error or Stop()).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error observed by the supervisor (if any).
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Logger() logx.Logger         { return a.log }
func (a *App) Router() *router.Router      { return a.router }
func (a *App) Notifier() *notifier.Service { return a.notif }

// RunTick evaluates one tick synchronously, outside the cron schedule.
func (a *App) RunTick(ctx context.Context, now time.Time) scheduler.TickResult {
	return a.sched.RunTick(ctx, now)
}

// Health fails when the store or the ledger is unreachable.
func (a *App) Health(ctx context.Context) error {
	if err := a.store.Ping(ctx); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if p, ok := a.ledger.(interface{ Ping(context.Context) error }); ok {
		if err := p.Ping(ctx); err != nil {
			return fmt.Errorf("ledger: %w", err)
		}
	}
	return nil
}

// Status is the /status document.
type Status struct {
	Ready         bool                   `json:"ready"`
	LastTick      *TickStatus            `json:"last_tick,omitempty"`
	NextTick      time.Time              `json:"next_tick"`
	Supervisor    rtsup.Counters         `json:"supervisor"`
	EventsDropped uint64                 `json:"events_dropped"`
	Recent        []notifier.HistoryItem `json:"recent_deliveries,omitempty"`
}

type TickStatus struct {
	RunID string        `json:"run_id"`
	At    time.Time     `json:"at"`
	Took  time.Duration `json:"took"`
	Error string        `json:"error,omitempty"`
}

func (a *App) Status() Status {
	st := Status{
		Ready:         a.ready.Load(),
		NextTick:      a.sched.Next(time.Now()),
		Supervisor:    a.sup.Counters(),
		EventsDropped: eventbus.Dropped(a.bus),
		Recent:        a.notif.History(),
	}
	if lt := a.sched.LastTick(); lt.RunID != "" {
		ts := &TickStatus{RunID: lt.RunID, At: lt.Now, Took: lt.Took}
		if err := lt.Err(); err != nil {
			ts.Error = err.Error()
		}
		st.LastTick = ts
	}
	return st
}
