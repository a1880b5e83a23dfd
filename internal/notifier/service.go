package notifier

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"deadlinebot/internal/eventbus"
	kit "deadlinebot/internal/transport"
	logx "deadlinebot/pkg/logx"

	"golang.org/x/time/rate"
)

var (
	ErrNoChannel = errors.New("notifier: channel id is not configured")
	ErrNoAdapter = errors.New("notifier: no transport adapter")
	ErrEmptyText = errors.New("notifier: empty text")
)

// Service sends text through a transport adapter under a shared rate limit.
// It is safe for concurrent use.
type Service struct {
	mu      sync.Mutex
	log     logx.Logger
	adapter kit.TextSender
	bus     eventbus.Bus
	cfg     Config
	limiter *rate.Limiter

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, adapter kit.TextSender, log logx.Logger, bus eventbus.Bus) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		adapter: adapter,
		log:     log.With(logx.String("comp", "notifier")),
		bus:     bus,
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if strings.TrimSpace(cfg.ParseMode) == "" {
		cfg.ParseMode = "HTML"
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 3
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}
	s.cfg = cfg
	// Token bucket: burst = rate per sec, so short spikes don't block too hard.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Send delivers text to channelID. A nil error means the transport accepted it.
func (s *Service) Send(ctx context.Context, channelID int64, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if channelID == 0 {
		return ErrNoChannel
	}
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	ad := s.adapter
	s.mu.Unlock()

	if ad == nil {
		return ErrNoAdapter
	}
	if err := lim.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	defer cancel()
	start := time.Now()
	_, err := ad.SendText(callCtx, kit.ChatTarget{ChatID: channelID}, text, &kit.SendOptions{
		ParseMode:      cfg.ParseMode,
		DisablePreview: cfg.DisablePreview,
	})
	took := time.Since(start)

	ev := DeliveryEvent{ChatID: channelID, Bytes: len(text), Took: took, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
		s.publish(eventbus.TypeDeliveryFailed, ev)
		s.log.Debug("send failed", logx.Int64("chat_id", channelID), logx.Duration("took", took), logx.Err(err))
		return err
	}
	s.appendHistory(channelID, text, cfg.HistorySize)
	s.publish(eventbus.TypeDeliverySent, ev)
	s.log.Debug("sent", logx.Int64("chat_id", channelID), logx.Duration("took", took))
	return nil
}

func (s *Service) publish(typ string, ev DeliveryEvent) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
	}
}

func (s *Service) appendHistory(chatID int64, text string, max int) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChatID: chatID, Text: text})
	if over := len(s.history) - max; over > 0 {
		s.history = append([]HistoryItem(nil), s.history[over:]...)
	}
}

// History returns recent deliveries, oldest first.
func (s *Service) History() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}
