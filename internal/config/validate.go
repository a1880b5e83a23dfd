package config

import (
	"errors"
	"fmt"
	"net"
	"strings"
)

// Validate performs semantic checks that strict decoding cannot express.
// All problems are reported together.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	dur := func(path, raw string) {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if strings.TrimSpace(cfg.Telegram.Token) == "" {
		add(errors.New("telegram.token: required (or set DEADLINEBOT_TELEGRAM_TOKEN)"))
	}
	dur("telegram.poll_timeout", cfg.Telegram.PollTimeout)
	if cfg.Telegram.CommandWorkers < 0 {
		add(errors.New("telegram.command_workers: must be >= 0"))
	}

	if !validLevel(cfg.Logging.Level) {
		add(fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.File.Enabled && strings.TrimSpace(cfg.Logging.File.Path) == "" {
		add(errors.New("logging.file.path: required when file logging is enabled"))
	}
	if lt := cfg.Logging.Telegram; lt.Enabled {
		if lt.ChatID == 0 {
			add(errors.New("logging.telegram.chat_id: required when telegram logging is enabled"))
		}
		if !validLevel(lt.MinLevel) {
			add(fmt.Errorf("logging.telegram.min_level: unknown level %q", lt.MinLevel))
		}
	}

	switch d := strings.ToLower(strings.TrimSpace(cfg.Storage.Driver)); d {
	case "", "sqlite", "sqlite3":
		if strings.TrimSpace(cfg.Storage.Path) == "" {
			add(errors.New("storage.path: required for sqlite"))
		}
	case "postgres", "postgresql", "pgx":
		if strings.TrimSpace(cfg.Storage.DSN) == "" {
			add(errors.New("storage.dsn: required for postgres (or set DEADLINEBOT_STORAGE_DSN)"))
		}
	case "memory", "mem":
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", cfg.Storage.Driver))
	}
	dur("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if cfg.Storage.MaxConns < 0 {
		add(errors.New("storage.max_conns: must be >= 0"))
	}

	if l := cfg.Ledger; l != nil {
		switch strings.ToLower(strings.TrimSpace(l.Driver)) {
		case "", "store":
		case "redis":
			if strings.TrimSpace(l.Addr) == "" {
				add(errors.New("ledger.addr: required for redis"))
			}
		default:
			add(fmt.Errorf("ledger.driver: unknown driver %q", l.Driver))
		}
		dur("ledger.ttl", l.TTL)
	}

	sc := cfg.Scheduler
	if sc.ChannelID == 0 {
		add(errors.New("scheduler.channel_id: required"))
	}
	if _, _, _, err := ParseClockField("scheduler.daily_at", sc.DailyAt); err != nil {
		add(err)
	}
	dur("scheduler.match_window", sc.MatchWindow)
	dur("scheduler.tick_timeout", sc.TickTimeout)
	if sc.Workers < 0 {
		add(errors.New("scheduler.workers: must be >= 0"))
	}

	if n := cfg.Notifier; n != nil {
		if n.RatePerSec < 0 {
			add(errors.New("notifier.rate_per_sec: must be >= 0"))
		}
		dur("notifier.send_timeout", n.SendTimeout)
	}

	if o := cfg.Observability; o.Enabled {
		addr := strings.TrimSpace(o.Addr)
		if addr != "" {
			if _, _, err := net.SplitHostPort(addr); err != nil {
				add(fmt.Errorf("observability.addr: %w", err))
			}
		}
		dur("observability.read_timeout", o.ReadTimeout)
		dur("observability.write_timeout", o.WriteTimeout)
		dur("observability.idle_timeout", o.IdleTimeout)
	}

	return errors.Join(errs...)
}

func validLevel(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "debug", "info", "warn", "warning", "error":
		return true
	}
	return false
}
