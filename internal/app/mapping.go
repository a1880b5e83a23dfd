package app

import (
	"strings"
	"time"

	"deadlinebot/internal/config"
	"deadlinebot/internal/notifier"
	"deadlinebot/internal/observability"
	"deadlinebot/internal/reminder"
	"deadlinebot/internal/scheduler"
	"deadlinebot/internal/storage"
	telegram "deadlinebot/internal/transport/telegram/adapter"
	logx "deadlinebot/pkg/logx"
)

func mapLogConfig(cfg *config.Config) logx.Config {
	lc := cfg.Logging
	return logx.Config{
		Level:   lc.Level,
		Console: lc.Console,
		File:    logx.FileConfig{Enabled: lc.File.Enabled, Path: lc.File.Path},
		Chat: logx.ChatConfig{
			Enabled:    lc.Telegram.Enabled,
			ChatID:     lc.Telegram.ChatID,
			MinLevel:   lc.Telegram.MinLevel,
			RatePerSec: lc.Telegram.RatePerSec,
		},
	}
}

func mapTelegramConfig(cfg *config.Config) (telegram.Config, error) {
	poll, err := config.ParseDurationOrDefault("telegram.poll_timeout", cfg.Telegram.PollTimeout, 10*time.Second)
	if err != nil {
		return telegram.Config{}, err
	}
	return telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: poll,
		APIURL:      strings.TrimSpace(cfg.Telegram.APIURL),
	}, nil
}

// MapStorageConfig resolves the storage section, defaulting the driver to sqlite.
func MapStorageConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Storage
	busy, err := config.ParseDurationOrDefault("storage.busy_timeout", sc.BusyTimeout, 5*time.Second)
	if err != nil {
		return storage.Config{}, err
	}
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "sqlite"
	}
	return storage.Config{
		Driver:      driver,
		Path:        strings.TrimSpace(sc.Path),
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: busy,
		MaxConns:    sc.MaxConns,
	}, nil
}

func mapLedgerConfig(cfg *config.Config) (storage.LedgerConfig, error) {
	if cfg.Ledger == nil {
		return storage.LedgerConfig{}, nil
	}
	l := cfg.Ledger
	ttl, err := config.ParseDurationField("ledger.ttl", l.TTL)
	if err != nil {
		return storage.LedgerConfig{}, err
	}
	return storage.LedgerConfig{
		Driver:   strings.ToLower(strings.TrimSpace(l.Driver)),
		Addr:     strings.TrimSpace(l.Addr),
		Password: l.Password,
		DB:       l.DB,
		Prefix:   strings.TrimSpace(l.Prefix),
		TTL:      ttl,
	}, nil
}

func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{DisablePreview: true}, nil
	}
	n := cfg.Notifier
	timeout, err := config.ParseDurationField("notifier.send_timeout", n.SendTimeout)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		RatePerSec:     n.RatePerSec,
		SendTimeout:    timeout,
		HistorySize:    n.HistorySize,
		DisablePreview: n.DisablePreview,
	}, nil
}

// reminderSetup is everything the evaluators and the tick need from config.
type reminderSetup struct {
	sched   scheduler.Config
	opts    reminder.Options
	daily   reminder.Clock
	dailyOn bool
}

func mapReminderConfig(cfg *config.Config) (reminderSetup, error) {
	sc := cfg.Scheduler
	window, err := config.ParseDurationOrDefault("scheduler.match_window", sc.MatchWindow, reminder.DefaultMatchWindow)
	if err != nil {
		return reminderSetup{}, err
	}
	tickTimeout, err := config.ParseDurationOrDefault("scheduler.tick_timeout", sc.TickTimeout, scheduler.DefaultTickTimeout)
	if err != nil {
		return reminderSetup{}, err
	}
	h, m, on, err := config.ParseClockField("scheduler.daily_at", sc.DailyAt)
	if err != nil {
		return reminderSetup{}, err
	}
	schedule := strings.TrimSpace(sc.Schedule)
	if schedule == "" {
		schedule = scheduler.DefaultSchedule
	}
	if err := scheduler.CheckCadence(schedule, window); err != nil {
		return reminderSetup{}, err
	}
	return reminderSetup{
		sched: scheduler.Config{Schedule: schedule, TickTimeout: tickTimeout, MatchWindow: window},
		opts: reminder.Options{
			ChannelID:   sc.ChannelID,
			MatchWindow: window,
			Workers:     sc.Workers,
		},
		daily:   reminder.Clock{Hour: h, Minute: m},
		dailyOn: on,
	}, nil
}

func mapObservabilityConfig(cfg *config.Config) (observability.Config, error) {
	o := cfg.Observability
	read, err := config.ParseDurationOrDefault("observability.read_timeout", o.ReadTimeout, 10*time.Second)
	if err != nil {
		return observability.Config{}, err
	}
	write, err := config.ParseDurationField("observability.write_timeout", o.WriteTimeout)
	if err != nil {
		return observability.Config{}, err
	}
	idle, err := config.ParseDurationOrDefault("observability.idle_timeout", o.IdleTimeout, 60*time.Second)
	if err != nil {
		return observability.Config{}, err
	}
	return observability.Config{
		Addr:          strings.TrimSpace(o.Addr),
		Token:         strings.TrimSpace(o.Token),
		AllowInsecure: o.AllowInsecure,
		Pprof:         o.Pprof,
		ReadTimeout:   read,
		WriteTimeout:  write,
		IdleTimeout:   idle,
	}, nil
}

// CheckConfig runs every mapping so `config check` catches what Validate cannot.
func CheckConfig(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapTelegramConfig(cfg); err != nil {
		return err
	}
	if _, err := MapStorageConfig(cfg); err != nil {
		return err
	}
	if _, err := mapLedgerConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapReminderConfig(cfg); err != nil {
		return err
	}
	_, err := mapObservabilityConfig(cfg)
	return err
}
