package tasks

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"deadlinebot/internal/storage"
	logx "deadlinebot/pkg/logx"
)

const (
	maxSubjectLen = 100
	maxTitleLen   = 200
)

var ErrNilStore = errors.New("tasks: store is nil")

// Service validates user input in front of a storage.TaskStore.
type Service struct {
	store storage.TaskStore
	log   logx.Logger
}

func NewService(store storage.TaskStore, log logx.Logger) *Service {
	return &Service{store: store, log: log.With(logx.String("comp", "tasks"))}
}

// Create validates and stores a task, returning its id.
// A *ValidationError means nothing was stored.
func (s *Service) Create(ctx context.Context, ownerID int64, subject, title, deadline string) (int64, error) {
	if s == nil || s.store == nil {
		return 0, ErrNilStore
	}
	subject = strings.TrimSpace(subject)
	title = strings.TrimSpace(title)
	if err := checkText("subject", subject, maxSubjectLen); err != nil {
		s.log.Debug("task rejected", logx.Int64("owner", ownerID), logx.Err(err))
		return 0, err
	}
	if err := checkText("title", title, maxTitleLen); err != nil {
		s.log.Debug("task rejected", logx.Int64("owner", ownerID), logx.Err(err))
		return 0, err
	}
	dl, err := ParseDeadline(deadline)
	if err != nil {
		s.log.Debug("task rejected", logx.Int64("owner", ownerID), logx.Err(err))
		return 0, err
	}
	id, err := s.store.CreateTask(ctx, storage.NewTask{OwnerID: ownerID, Subject: subject, Title: title, Deadline: dl})
	if err != nil {
		return 0, err
	}
	s.log.Info("task created", logx.Int64("owner", ownerID), logx.Int64("id", id), logx.Time("deadline", dl))
	return id, nil
}

func (s *Service) ListOpen(ctx context.Context, ownerID int64) ([]storage.Task, error) {
	if s == nil || s.store == nil {
		return nil, ErrNilStore
	}
	return s.store.ListUnsubmitted(ctx, ownerID)
}

// Submit marks the task done. false means not found, not yours, or already done.
func (s *Service) Submit(ctx context.Context, ownerID, id int64) (bool, error) {
	if s == nil || s.store == nil {
		return false, ErrNilStore
	}
	ok, err := s.store.MarkSubmitted(ctx, ownerID, id)
	if err != nil {
		return false, err
	}
	if ok {
		s.log.Info("task submitted", logx.Int64("owner", ownerID), logx.Int64("id", id))
	}
	return ok, nil
}

func checkText(field, v string, maxLen int) error {
	if v == "" {
		return &ValidationError{Field: field, Msg: "is required"}
	}
	if utf8.RuneCountInString(v) > maxLen {
		return &ValidationError{Field: field, Msg: "is too long"}
	}
	return nil
}
