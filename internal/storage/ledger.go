package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	logx "deadlinebot/pkg/logx"

	"github.com/redis/go-redis/v9"
)

// LedgerConfig selects where sent notifications are recorded.
//
// Driver values:
//   - "" or "store": the task store's own table
//   - "redis": SETNX keys in Redis
type LedgerConfig struct {
	Driver   string
	Addr     string
	Password string
	DB       int
	Prefix   string
	TTL      time.Duration // 0 keeps records forever
}

// LedgerHandle is a Ledger that may own a connection.
type LedgerHandle interface {
	Ledger
	Close() error
}

// OpenLedger returns the configured ledger. With the default driver the
// store itself is returned and closing the handle is a no-op.
func OpenLedger(cfg LedgerConfig, st Store, log logx.Logger) (LedgerHandle, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "store":
		if st == nil {
			return nil, errors.New("ledger: store is nil")
		}
		return storeLedger{st}, nil
	case "redis":
		if strings.TrimSpace(cfg.Addr) == "" {
			return nil, errors.New("ledger: redis addr is required")
		}
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			_ = rdb.Close()
			return nil, fmt.Errorf("ledger: redis ping: %w", err)
		}
		log.Info("redis ledger opened", logx.String("addr", cfg.Addr), logx.Int("db", cfg.DB))
		return NewRedisLedger(rdb, cfg.Prefix, cfg.TTL), nil
	default:
		return nil, errors.New("unknown ledger driver: " + cfg.Driver)
	}
}

type storeLedger struct{ Store }

func (storeLedger) Close() error { return nil }

// RedisLedger records each (owner, key) pair as one Redis key.
type RedisLedger struct {
	rdb    *redis.Client
	prefix string
	ttl    time.Duration
}

func NewRedisLedger(rdb *redis.Client, prefix string, ttl time.Duration) *RedisLedger {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "deadlinebot"
	}
	return &RedisLedger{rdb: rdb, prefix: prefix, ttl: ttl}
}

func (l *RedisLedger) key(ownerID int64, key string) string {
	return l.prefix + ":sent:" + strconv.FormatInt(ownerID, 10) + ":" + key
}

func (l *RedisLedger) WasSent(ctx context.Context, ownerID int64, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, l.key(ownerID, key)).Result()
	if err != nil {
		return false, fmt.Errorf("redis exists: %w", err)
	}
	return n > 0, nil
}

func (l *RedisLedger) MarkSent(ctx context.Context, ownerID int64, key string) error {
	// SETNX keeps the first sent_at; a duplicate insert is a no-op.
	if _, err := l.rdb.SetNX(ctx, l.key(ownerID, key), time.Now().Unix(), l.ttl).Result(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}

func (l *RedisLedger) Ping(ctx context.Context) error { return l.rdb.Ping(ctx).Err() }

func (l *RedisLedger) Close() error { return l.rdb.Close() }
