package storage

import (
	"context"
	"errors"
	"time"
)

var (
	ErrClosed   = errors.New("storage closed")
	ErrNoDriver = errors.New("storage driver is required")
)

// Config configures the task store.
//
// Driver values:
//   - "sqlite": SQLite database file at Path
//   - "postgres": PostgreSQL reachable via DSN
//   - "memory": in-process maps
type Config struct {
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration // sqlite only; 0 means default
	MaxConns    int32         // postgres only; 0 means default
}

// Task is a deadline-bound work item owned by one user.
type Task struct {
	ID        int64
	OwnerID   int64
	Subject   string
	Title     string
	Deadline  time.Time
	Submitted bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewTask carries the caller-supplied fields of a task.
type NewTask struct {
	OwnerID  int64
	Subject  string
	Title    string
	Deadline time.Time
}

// TaskStore holds tasks. Tasks are never deleted; submission is one-way.
type TaskStore interface {
	CreateTask(ctx context.Context, t NewTask) (int64, error)
	// ListUnsubmitted returns the owner's open tasks ordered by deadline, then id.
	ListUnsubmitted(ctx context.Context, ownerID int64) ([]Task, error)
	// MarkSubmitted reports false for unknown id, foreign owner or already submitted.
	MarkSubmitted(ctx context.Context, ownerID, id int64) (bool, error)
	// ListDistinctOwners returns every owner that ever created a task, ascending.
	ListDistinctOwners(ctx context.Context) ([]int64, error)
}

// Ledger remembers which (owner, key) notifications were delivered.
type Ledger interface {
	WasSent(ctx context.Context, ownerID int64, key string) (bool, error)
	// MarkSent is idempotent: recording an existing pair is a silent no-op.
	MarkSent(ctx context.Context, ownerID int64, key string) error
}

// Store is what a driver provides: tasks, a ledger and lifecycle.
type Store interface {
	TaskStore
	Ledger
	Ping(ctx context.Context) error
	Close() error
}
