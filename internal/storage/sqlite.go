package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	logx "deadlinebot/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql migrations_postgres.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path is required")
	}
	path := cfg.Path
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection serializes writers; MarkSubmitted and MarkSent rely on
	// single-statement atomicity only.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	st := &sqliteStore{db: db, log: log, now: time.Now}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Ping(ctx context.Context) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return s.db.PingContext(ctx)
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) CreateTask(ctx context.Context, t NewTask) (int64, error) {
	if s == nil || s.db == nil {
		return 0, ErrClosed
	}
	now := s.now().UnixNano()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(owner_id, subject, title, deadline, deadline_ns, submitted, created_at, updated_at)
		 VALUES(?,?,?,?,?,0,?,?)`,
		t.OwnerID, t.Subject, t.Title, t.Deadline.Unix(), t.Deadline.Nanosecond(), now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("insert task: %w", err)
	}
	return res.LastInsertId()
}

func (s *sqliteStore) ListUnsubmitted(ctx context.Context, ownerID int64) ([]Task, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, subject, title, deadline, deadline_ns, submitted, created_at, updated_at
		 FROM tasks
		 WHERE owner_id = ? AND submitted = 0
		 ORDER BY deadline ASC, deadline_ns ASC, id ASC`,
		ownerID,
	)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		var (
			t                                                 Task
			deadline, deadlineNs, submitted, created, updated int64
		)
		if err := rows.Scan(&t.ID, &t.OwnerID, &t.Subject, &t.Title, &deadline, &deadlineNs, &submitted, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		// deadline is unix seconds; UnixNano overflows past 2262
		t.Deadline = time.Unix(deadline, deadlineNs)
		t.Submitted = submitted != 0
		t.CreatedAt = time.Unix(0, created)
		t.UpdatedAt = time.Unix(0, updated)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) MarkSubmitted(ctx context.Context, ownerID, id int64) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET submitted = 1, updated_at = ?
		 WHERE id = ? AND owner_id = ? AND submitted = 0`,
		s.now().UnixNano(), id, ownerID,
	)
	if err != nil {
		return false, fmt.Errorf("mark submitted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (s *sqliteStore) ListDistinctOwners(ctx context.Context) ([]int64, error) {
	if s == nil || s.db == nil {
		return nil, ErrClosed
	}
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM tasks ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("query owners: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *sqliteStore) WasSent(ctx context.Context, ownerID int64, key string) (bool, error) {
	if s == nil || s.db == nil {
		return false, ErrClosed
	}
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM sent_notifications WHERE owner_id = ? AND notify_key = ?`,
		ownerID, key,
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query ledger: %w", err)
	}
	return true, nil
}

func (s *sqliteStore) MarkSent(ctx context.Context, ownerID int64, key string) error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sent_notifications(owner_id, notify_key, sent_at) VALUES(?,?,?)
		 ON CONFLICT(owner_id, notify_key) DO NOTHING`,
		ownerID, key, s.now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert ledger: %w", err)
	}
	return nil
}
