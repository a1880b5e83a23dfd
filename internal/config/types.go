package config

type Config struct {
	Telegram  TelegramConfig  `json:"telegram"`
	Logging   LoggingConfig   `json:"logging"`
	Storage   StorageConfig   `json:"storage"`
	Scheduler SchedulerConfig `json:"scheduler"`

	// Ledger is optional; omitted means the sent-notification ledger lives in Storage.
	Ledger        *LedgerConfig       `json:"ledger,omitempty"`
	Notifier      *NotifierConfig     `json:"notifier,omitempty"`
	Observability ObservabilityConfig `json:"observability,omitempty"`
	Systemd       SystemdConfig       `json:"systemd,omitempty"`
}

type TelegramConfig struct {
	Token string `json:"token"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout    string `json:"poll_timeout"`
	APIURL         string `json:"api_url,omitempty"`
	CommandWorkers int    `json:"command_workers,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// LoggingTelegram forwards log lines at or above MinLevel to ChatID.
type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ChatID     int64  `json:"chat_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig selects the task store.
//
// Example:
//
//	"storage": { "driver": "sqlite", "path": "./data/deadlinebot.db" }
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`         // sqlite
	DSN         string `json:"dsn,omitempty"`          // postgres (do not log)
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string (sqlite)
	MaxConns    int32  `json:"max_conns,omitempty"`    // postgres pool size
}

// LedgerConfig moves the sent-notification ledger to redis.
type LedgerConfig struct {
	Driver   string `json:"driver"` // "store" (default) or "redis"
	Addr     string `json:"addr,omitempty"`
	Password string `json:"password,omitempty"`
	DB       int    `json:"db,omitempty"`
	Prefix   string `json:"prefix,omitempty"`
	// TTL is a Go duration string; "0s" keeps keys forever.
	TTL string `json:"ttl,omitempty"`
}

// SchedulerConfig controls the reminder tick.
//
// Defaults (when fields are omitted/zero):
//   - schedule: "* * * * *"
//   - daily_at: "" (daily digest disabled)
//   - match_window: "30s"
//   - tick_timeout: "50s"
//   - workers: 4
type SchedulerConfig struct {
	Schedule string `json:"schedule,omitempty"`
	// DailyAt is the local "HH:MM" of the daily digest.
	DailyAt     string `json:"daily_at,omitempty"`
	ChannelID   int64  `json:"channel_id"`
	MatchWindow string `json:"match_window,omitempty"`
	TickTimeout string `json:"tick_timeout,omitempty"`
	Workers     int    `json:"workers,omitempty"`
}

// NotifierConfig controls outbound delivery to the reminder channel.
type NotifierConfig struct {
	RatePerSec     int    `json:"rate_per_sec,omitempty"`
	SendTimeout    string `json:"send_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
	DisablePreview bool   `json:"disable_preview,omitempty"`
}

// ObservabilityConfig controls the optional HTTP server for /metrics, /healthz and pprof.
//
// Security note:
//   - Prefer binding to localhost (e.g. "127.0.0.1:9090").
//   - If you bind to a non-loopback address, set a token or explicitly allow_insecure.
type ObservabilityConfig struct {
	Enabled       bool   `json:"enabled"`
	Addr          string `json:"addr,omitempty"`  // default: "127.0.0.1:9090"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"`

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

// SystemdConfig enables sd_notify readiness and watchdog pings.
type SystemdConfig struct {
	Notify bool `json:"notify"`
}
