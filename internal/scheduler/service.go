package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"deadlinebot/internal/eventbus"
	"deadlinebot/internal/reminder"
	logx "deadlinebot/pkg/logx"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

const (
	DefaultSchedule    = "* * * * *"
	DefaultTickTimeout = 50 * time.Second
)

// Evaluator is one independent per-tick job.
type Evaluator interface {
	Name() string
	Tick(ctx context.Context, now time.Time) (reminder.Report, error)
}

// Observer receives per-evaluator tick outcomes.
type Observer interface {
	ObserveTick(evaluator string, took time.Duration, err error)
}

type Config struct {
	Schedule    string
	TickTimeout time.Duration
	// MatchWindow is the evaluators' tolerance around a reminder instant.
	// Ticks may be at most 2*MatchWindow (and one minute) apart.
	MatchWindow time.Duration
}

// ErrTickTooSparse reports a schedule whose ticks can step over a
// reminder window or a whole daily_at minute.
var ErrTickTooSparse = errors.New("tick schedule too sparse")

// cadenceSamples bounds how many consecutive triggers CheckCadence inspects
// (one day at one tick per second).
const cadenceSamples = 24 * 60 * 60

// CheckCadence rejects schedules whose largest gap between consecutive
// triggers over the next day exceeds min(2*window, 1m).
func CheckCadence(schedule string, window time.Duration) error {
	if window <= 0 {
		window = reminder.DefaultMatchWindow
	}
	limit := 2 * window
	if limit > time.Minute {
		limit = time.Minute
	}
	spec, err := ParseSchedule(schedule)
	if err != nil {
		return err
	}
	sched, err := cronParser().Parse(spec.CronSpec())
	if err != nil {
		return fmt.Errorf("schedule %q: %w", schedule, err)
	}
	start := time.Now().Truncate(time.Minute)
	end := start.Add(24 * time.Hour)
	prev := start
	for i := 0; i < cadenceSamples && prev.Before(end); i++ {
		next := sched.Next(prev)
		if next.IsZero() {
			return fmt.Errorf("%w: %q has no upcoming ticks", ErrTickTooSparse, schedule)
		}
		if gap := next.Sub(prev); gap > limit {
			return fmt.Errorf("%w: %q leaves %s between ticks, max %s", ErrTickTooSparse, schedule, gap, limit)
		}
		prev = next
	}
	return nil
}

// cronParser accepts 5-field and 6-field (with seconds) specs plus descriptors.
func cronParser() cron.Parser {
	return cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
}

// EvalResult is one evaluator's outcome within a tick.
type EvalResult struct {
	Name   string
	Report reminder.Report
	Took   time.Duration
	Err    error
}

// TickResult is published on the event bus after each tick.
type TickResult struct {
	RunID   string
	Now     time.Time
	Took    time.Duration
	Results []EvalResult
}

// Err joins the evaluator errors.
func (r TickResult) Err() error {
	var errs []error
	for _, e := range r.Results {
		if e.Err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", e.Name, e.Err))
		}
	}
	return errors.Join(errs...)
}

type Service struct {
	mu sync.Mutex

	log   logx.Logger
	cfg   Config
	spec  ParsedSpec
	bus   eventbus.Bus
	obs   Observer
	evals []Evaluator
	now   func() time.Time

	parser  cron.Parser
	c       *cron.Cron
	baseCtx context.Context
	cancel  context.CancelFunc

	lastMu   sync.Mutex
	lastTick TickResult
}

func New(cfg Config, log logx.Logger, bus eventbus.Bus, obs Observer, evals ...Evaluator) (*Service, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if cfg.TickTimeout <= 0 {
		cfg.TickTimeout = DefaultTickTimeout
	}
	spec, err := ParseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	parser := cronParser()
	if _, err := parser.Parse(spec.CronSpec()); err != nil {
		return nil, fmt.Errorf("schedule %q: %w", cfg.Schedule, err)
	}
	if err := CheckCadence(cfg.Schedule, cfg.MatchWindow); err != nil {
		return nil, err
	}
	return &Service{
		log:    log.With(logx.String("comp", "scheduler")),
		cfg:    cfg,
		spec:   spec,
		bus:    bus,
		obs:    obs,
		evals:  evals,
		now:    time.Now,
		parser: parser,
	}, nil
}

// Start begins triggering ticks. It is idempotent.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.c != nil {
		return nil
	}
	s.baseCtx, s.cancel = context.WithCancel(ctx)

	cl := cronLogger{log: s.log}
	c := cron.New(
		cron.WithParser(s.parser),
		cron.WithLocation(time.Local),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	if _, err := c.AddFunc(s.spec.CronSpec(), s.fire); err != nil {
		s.cancel()
		return err
	}
	s.c = c
	c.Start()
	s.log.Info("service started",
		logx.String("schedule", s.cfg.Schedule),
		logx.String("source", s.spec.Source),
		logx.Duration("tick_timeout", s.cfg.TickTimeout),
		logx.Int("evaluators", len(s.evals)),
	)
	return nil
}

// Stop stops triggering and waits for an in-flight tick until ctx is done,
// then cancels it.
func (s *Service) Stop(ctx context.Context) {
	start := time.Now()
	s.mu.Lock()
	c := s.c
	cancel := s.cancel
	s.c = nil
	s.mu.Unlock()

	if c != nil {
		select {
		case <-c.Stop().Done():
		case <-ctx.Done():
		}
	}
	if cancel != nil {
		cancel()
	}
	s.log.Info("service stopped", logx.Duration("took", time.Since(start)))
}

func (s *Service) fire() {
	s.mu.Lock()
	ctx := s.baseCtx
	s.mu.Unlock()
	if ctx == nil || ctx.Err() != nil {
		return
	}
	res := s.RunTick(ctx, s.now())
	if err := res.Err(); err != nil {
		s.log.Warn("tick failed", logx.String("run_id", res.RunID), logx.Err(err))
	}
}

// RunTick evaluates every evaluator once at now. Evaluators run concurrently
// and a failure or panic in one never affects the others.
func (s *Service) RunTick(ctx context.Context, now time.Time) TickResult {
	runID := uuid.NewString()
	log := s.log.With(logx.String("run_id", runID))
	ctx, cancel := context.WithTimeout(ctx, s.cfg.TickTimeout)
	defer cancel()

	start := time.Now()
	results := make([]EvalResult, len(s.evals))
	var wg sync.WaitGroup
	for i, ev := range s.evals {
		wg.Add(1)
		go func(i int, ev Evaluator) {
			defer wg.Done()
			results[i] = runEval(ctx, ev, now)
			if s.obs != nil {
				s.obs.ObserveTick(results[i].Name, results[i].Took, results[i].Err)
			}
		}(i, ev)
	}
	wg.Wait()

	res := TickResult{RunID: runID, Now: now, Took: time.Since(start), Results: results}
	for _, r := range results {
		if r.Report.Skipped {
			continue
		}
		log.Debug("evaluator done",
			logx.String("evaluator", r.Name),
			logx.Int("owners", r.Report.Owners),
			logx.Int("matched", r.Report.Matched),
			logx.Int("sent", r.Report.Sent),
			logx.Int("failed", r.Report.Failed),
			logx.Duration("took", r.Took),
			logx.Err(r.Err),
		)
	}
	s.lastMu.Lock()
	s.lastTick = res
	s.lastMu.Unlock()
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: eventbus.TypeTickDone, Time: now, Data: res})
	}
	return res
}

func runEval(ctx context.Context, ev Evaluator, now time.Time) (r EvalResult) {
	r.Name = ev.Name()
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			r.Err = fmt.Errorf("panic: %v\n%s", p, debug.Stack())
		}
		r.Took = time.Since(start)
	}()
	r.Report, r.Err = ev.Tick(ctx, now)
	return r
}

// LastTick returns the most recent tick result (zero before the first tick).
func (s *Service) LastTick() TickResult {
	s.lastMu.Lock()
	defer s.lastMu.Unlock()
	return s.lastTick
}

// Next returns the next trigger time after t.
func (s *Service) Next(t time.Time) time.Time {
	sched, err := s.parser.Parse(s.spec.CronSpec())
	if err != nil {
		return time.Time{}
	}
	return sched.Next(t)
}

// cronLogger routes robfig/cron's internal logging into logx.
type cronLogger struct{ log logx.Logger }

func (l cronLogger) Info(msg string, kv ...interface{}) {
	l.log.Debug("cron: "+msg, kvFields(kv)...)
}

func (l cronLogger) Error(err error, msg string, kv ...interface{}) {
	l.log.Error("cron: "+msg, append(kvFields(kv), logx.Err(err))...)
}

func kvFields(kv []interface{}) []logx.Field {
	out := make([]logx.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		k, ok := kv[i].(string)
		if !ok {
			k = fmt.Sprint(kv[i])
		}
		out = append(out, logx.Any(k, kv[i+1]))
	}
	return out
}
