package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is a non-durable Store backed by maps.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	tasks  map[int64]*Task
	sent   map[ledgerKey]time.Time
	closed bool
	now    func() time.Time
}

type ledgerKey struct {
	owner int64
	key   string
}

func NewMemory() *Memory {
	return &Memory{
		tasks: make(map[int64]*Task),
		sent:  make(map[ledgerKey]time.Time),
		now:   time.Now,
	}
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) CreateTask(_ context.Context, t NewTask) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return 0, ErrClosed
	}
	m.nextID++
	now := m.now()
	m.tasks[m.nextID] = &Task{
		ID:        m.nextID,
		OwnerID:   t.OwnerID,
		Subject:   t.Subject,
		Title:     t.Title,
		Deadline:  t.Deadline,
		CreatedAt: now,
		UpdatedAt: now,
	}
	return m.nextID, nil
}

func (m *Memory) ListUnsubmitted(_ context.Context, ownerID int64) ([]Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	var out []Task
	for _, t := range m.tasks {
		if t.OwnerID == ownerID && !t.Submitted {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Deadline.Equal(out[j].Deadline) {
			return out[i].Deadline.Before(out[j].Deadline)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) MarkSubmitted(_ context.Context, ownerID, id int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	t, ok := m.tasks[id]
	if !ok || t.OwnerID != ownerID || t.Submitted {
		return false, nil
	}
	t.Submitted = true
	t.UpdatedAt = m.now()
	return true, nil
}

func (m *Memory) ListDistinctOwners(context.Context) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	seen := make(map[int64]struct{})
	var out []int64
	for _, t := range m.tasks {
		if _, ok := seen[t.OwnerID]; ok {
			continue
		}
		seen[t.OwnerID] = struct{}{}
		out = append(out, t.OwnerID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

func (m *Memory) WasSent(_ context.Context, ownerID int64, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	_, ok := m.sent[ledgerKey{ownerID, key}]
	return ok, nil
}

func (m *Memory) MarkSent(_ context.Context, ownerID int64, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	k := ledgerKey{ownerID, key}
	if _, ok := m.sent[k]; !ok {
		m.sent[k] = m.now()
	}
	return nil
}

// SentCount reports how many ledger records exist.
func (m *Memory) SentCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}
