package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	logx "deadlinebot/pkg/logx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type pgStore struct {
	pool *pgxpool.Pool
	log  logx.Logger
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("postgres dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 1
	poolCfg.MaxConnIdleTime = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	st := &pgStore{pool: pool, log: log}
	if err := st.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres migrate: %w", err)
	}
	log.Info("postgres store opened", logx.String("host", poolCfg.ConnConfig.Host), logx.String("db", poolCfg.ConnConfig.Database))
	return st, nil
}

func (s *pgStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations_postgres.sql")
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, string(b))
	return err
}

func (s *pgStore) Ping(ctx context.Context) error {
	if s == nil || s.pool == nil {
		return ErrClosed
	}
	return s.pool.Ping(ctx)
}

func (s *pgStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *pgStore) CreateTask(ctx context.Context, t NewTask) (int64, error) {
	if s == nil || s.pool == nil {
		return 0, ErrClosed
	}
	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO tasks (owner_id, subject, title, deadline)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		t.OwnerID, t.Subject, t.Title, t.Deadline,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return id, nil
}

func (s *pgStore) ListUnsubmitted(ctx context.Context, ownerID int64) ([]Task, error) {
	if s == nil || s.pool == nil {
		return nil, ErrClosed
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, owner_id, subject, title, deadline, submitted, created_at, updated_at
		 FROM tasks
		 WHERE owner_id = $1 AND NOT submitted
		 ORDER BY deadline ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var t Task
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Subject, &t.Title, &t.Deadline, &t.Submitted, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		t.Deadline = t.Deadline.Local()
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *pgStore) MarkSubmitted(ctx context.Context, ownerID, id int64) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrClosed
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE tasks SET submitted = TRUE, updated_at = NOW()
		 WHERE id = $1 AND owner_id = $2 AND NOT submitted`,
		id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (s *pgStore) ListDistinctOwners(ctx context.Context) ([]int64, error) {
	if s == nil || s.pool == nil {
		return nil, ErrClosed
	}
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT owner_id FROM tasks ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}

func (s *pgStore) WasSent(ctx context.Context, ownerID int64, key string) (bool, error) {
	if s == nil || s.pool == nil {
		return false, ErrClosed
	}
	var one int
	err := s.pool.QueryRow(ctx,
		`SELECT 1 FROM sent_notifications WHERE owner_id = $1 AND notify_key = $2`,
		ownerID, key,
	).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

func (s *pgStore) MarkSent(ctx context.Context, ownerID int64, key string) error {
	if s == nil || s.pool == nil {
		return ErrClosed
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sent_notifications (owner_id, notify_key)
		 VALUES ($1, $2)
		 ON CONFLICT (owner_id, notify_key) DO NOTHING`,
		ownerID, key,
	)
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}
