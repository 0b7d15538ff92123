package storage

import (
	"context"
	"errors"
	"strings"
	"time"

	"reminderd/internal/reminder"
)

var ErrInvalidTask = errors.New("invalid task")

type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Store is the reminder TaskStore plus the operations the CLI and the
// external edit flow need.
type Store interface {
	reminder.TaskStore
	reminder.FailureCounter

	CreateTask(ctx context.Context, t reminder.Task) (reminder.Task, error)
	GetTask(ctx context.Context, id int64) (reminder.Task, error)
	ListTasks(ctx context.Context) ([]reminder.Task, error)
	// UpdateDueAt moves the deadline and re-arms the reminder flag.
	UpdateDueAt(ctx context.Context, id int64, due time.Time) error
	SetStatus(ctx context.Context, id int64, status reminder.Status) error
	// ListNotifications returns newest first. taskID 0 means all tasks;
	// limit <= 0 means no limit.
	ListNotifications(ctx context.Context, taskID int64, limit int) ([]reminder.NotificationRecord, error)
	Close() error
}

// prepareTask validates required fields and fills defaults.
func prepareTask(t reminder.Task, now time.Time) (reminder.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	t.Destination = strings.TrimSpace(t.Destination)
	switch {
	case t.Title == "":
		return t, errors.Join(ErrInvalidTask, errors.New("title is required"))
	case t.Destination == "":
		return t, errors.Join(ErrInvalidTask, errors.New("destination is required"))
	case t.DueAt.IsZero():
		return t, errors.Join(ErrInvalidTask, errors.New("due time is required"))
	}
	p, err := reminder.ParsePriority(string(t.Priority))
	if err != nil {
		return t, errors.Join(ErrInvalidTask, err)
	}
	st, err := reminder.ParseStatus(string(t.Status))
	if err != nil {
		return t, errors.Join(ErrInvalidTask, err)
	}
	t.Priority, t.Status = p, st
	t.DueAt = msTime(t.DueAt)
	t.CreatedAt = msTime(now)
	t.UpdatedAt = t.CreatedAt
	t.ReminderSent = false
	return t, nil
}

// msTime truncates to the stored precision.
func msTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return time.UnixMilli(t.UnixMilli()).UTC()
}
