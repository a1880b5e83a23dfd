package config

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	logx "deadlinebot/pkg/logx"

	"github.com/rs/zerolog"
)

const validJSON = `{
  "telegram": {"token": "123:abc", "poll_timeout": "10s"},
  "logging": {"level": "info", "console": true},
  "storage": {"driver": "sqlite", "path": "./data/bot.db"},
  "scheduler": {"channel_id": -1001, "daily_at": "07:30", "match_window": "30s"}
}`

const validYAML = `
telegram:
  token: "123:abc"
logging:
  level: debug
storage:
  driver: memory
scheduler:
  channel_id: -1001
  schedule: "@every 30s"
`

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return p
}

func TestLoadJSONAndYAML(t *testing.T) {
	m := NewManager(writeFile(t, "config.json", validJSON))
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("load json: %v", err)
	}
	if cfg.Scheduler.ChannelID != -1001 || cfg.Scheduler.DailyAt != "07:30" {
		t.Fatalf("scheduler = %+v", cfg.Scheduler)
	}
	if m.Get() != cfg {
		t.Fatal("Load must commit the config")
	}

	ym := NewManager(writeFile(t, "config.yaml", validYAML))
	ycfg, err := ym.Load()
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	if ycfg.Storage.Driver != "memory" || ycfg.Scheduler.Schedule != "@every 30s" || ycfg.Logging.Level != "debug" {
		t.Fatalf("yaml cfg = %+v", ycfg)
	}
}

func TestDecodeRejectsUnknownAndTrailing(t *testing.T) {
	t.Parallel()
	if _, err := Decode("c.json", []byte(`{"telegram":{"token":"x","owner_user_ids":[1]}}`)); err == nil {
		t.Fatal("unknown field must be rejected")
	}
	if _, err := Decode("c.json", []byte(`{} {}`)); err == nil {
		t.Fatal("trailing data must be rejected")
	}
	if _, err := Decode("c.yml", []byte("scheduler:\n  bogus: 1\n")); err == nil {
		t.Fatal("unknown yaml field must be rejected")
	}
}

func TestEnvOverridesToken(t *testing.T) {
	t.Setenv("DEADLINEBOT_TELEGRAM_TOKEN", "from-env")
	cfg, err := Decode("c.json", []byte(`{"telegram":{"token":"from-file"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()
	base := func() *Config {
		cfg, err := Decode("c.json", []byte(validJSON))
		if err != nil {
			t.Fatalf("decode: %v", err)
		}
		return cfg
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no channel", func(c *Config) { c.Scheduler.ChannelID = 0 }, "scheduler.channel_id"},
		{"bad daily_at", func(c *Config) { c.Scheduler.DailyAt = "25:00" }, "scheduler.daily_at"},
		{"bad window", func(c *Config) { c.Scheduler.MatchWindow = "soon" }, "scheduler.match_window"},
		{"negative window", func(c *Config) { c.Scheduler.MatchWindow = "-5s" }, "scheduler.match_window"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"redis without addr", func(c *Config) { c.Ledger = &LedgerConfig{Driver: "redis"} }, "ledger.addr"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"chat log without chat", func(c *Config) { c.Logging.Telegram.Enabled = true }, "logging.telegram.chat_id"},
		{"bad addr", func(c *Config) {
			c.Observability = ObservabilityConfig{Enabled: true, Addr: "nope"}
		}, "observability.addr"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate = %v, want mention of %s", err, tc.want)
			}
		})
	}

	cfg := base()
	cfg.Scheduler.ChannelID = 0
	cfg.Storage.Driver = "mongo"
	err := Validate(cfg)
	if err == nil || !strings.Contains(err.Error(), "channel_id") || !strings.Contains(err.Error(), "storage.driver") {
		t.Fatalf("Validate must report every problem: %v", err)
	}
}

func TestParseFields(t *testing.T) {
	t.Parallel()
	d, err := ParseDurationOrDefault("x", "", 30*time.Second)
	if err != nil || d != 30*time.Second {
		t.Fatalf("default = %v, %v", d, err)
	}
	d, err = ParseDurationOrDefault("x", "45s", 30*time.Second)
	if err != nil || d != 45*time.Second {
		t.Fatalf("explicit = %v, %v", d, err)
	}
	h, m, ok, err := ParseClockField("x", " 07:05 ")
	if err != nil || !ok || h != 7 || m != 5 {
		t.Fatalf("clock = %d:%d %v %v", h, m, ok, err)
	}
	if _, _, ok, err := ParseClockField("x", ""); ok || err != nil {
		t.Fatal("empty clock must be unset")
	}
	if _, _, _, err := ParseClockField("x", "7pm"); err == nil {
		t.Fatal("expected clock error")
	}
}

func TestReloadPublishesValidatedChanges(t *testing.T) {
	path := writeFile(t, "config.json", validJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	defer m.Unsubscribe(ch)

	changed, err := m.Reload(context.Background())
	if err != nil || changed {
		t.Fatalf("unchanged reload = %v, %v", changed, err)
	}

	updated := strings.Replace(validJSON, `"level": "info"`, `"level": "debug"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	changed, err = m.Reload(context.Background())
	if err != nil || !changed {
		t.Fatalf("reload = %v, %v", changed, err)
	}
	select {
	case cfg := <-ch:
		if cfg.Logging.Level != "debug" {
			t.Fatalf("published level = %q", cfg.Logging.Level)
		}
	default:
		t.Fatal("expected a published config")
	}

	m.SetValidator(func(context.Context, *Config) error { return errors.New("nope") })
	if err := os.WriteFile(path, []byte(validJSON), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Reload(context.Background()); err == nil {
		t.Fatal("validator rejection must surface")
	}
	if m.Get().Logging.Level != "debug" {
		t.Fatal("rejected config must not be committed")
	}
}

func TestWatchPicksUpWrites(t *testing.T) {
	path := writeFile(t, "config.json", validJSON)
	m := NewManager(path)
	if _, err := m.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	ch := m.Subscribe(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Watch(ctx) }()
	defer func() {
		cancel()
		<-done
	}()

	time.Sleep(100 * time.Millisecond)
	updated := strings.Replace(validJSON, `"daily_at": "07:30"`, `"daily_at": "08:00"`, 1)
	if err := os.WriteFile(path, []byte(updated), 0o600); err != nil {
		t.Fatal(err)
	}
	select {
	case cfg := <-ch:
		if cfg.Scheduler.DailyAt != "08:00" {
			t.Fatalf("daily_at = %q", cfg.Scheduler.DailyAt)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("watch did not publish")
	}
}

func TestSummarizeConfigChange(t *testing.T) {
	t.Parallel()
	oldCfg, _ := Decode("c.json", []byte(validJSON))
	newCfg, _ := Decode("c.json", []byte(validJSON))
	newCfg.Logging.Level = "debug"
	newCfg.Scheduler.DailyAt = "09:00"
	newCfg.Storage.DSN = "postgres://secret"

	changed, attrs := SummarizeConfigChange(oldCfg, newCfg)
	if !slices.Equal(changed, []string{"logging", "scheduler", "storage"}) {
		t.Fatalf("changed = %v", changed)
	}
	var buf bytes.Buffer
	logx.FromZerolog(zerolog.New(&buf)).Info("config changed", attrs...)
	if strings.Contains(buf.String(), "secret") {
		t.Fatalf("secret leaked: %s", buf.String())
	}
	if !strings.Contains(buf.String(), `"storage.dsn_changed":true`) {
		t.Fatalf("attrs = %s", buf.String())
	}
	if got := RestartRequired(changed); !slices.Equal(got, []string{"scheduler", "storage"}) {
		t.Fatalf("restart required = %v", got)
	}
}
