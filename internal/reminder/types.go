package reminder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrInvalidDestination = errors.New("invalid destination format")
	ErrTaskNotFound       = errors.New("task not found")
	ErrInternalDispatch   = errors.New("internal dispatch error")
	ErrRetryCeiling       = errors.New("retry ceiling reached")
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
)

func ParsePriority(s string) (Priority, error) {
	switch p := Priority(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return PriorityMedium, nil
	case PriorityLow, PriorityMedium, PriorityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("invalid priority %q", s)
	}
}

type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(s))); st {
	case "":
		return StatusPending, nil
	case StatusPending, StatusInProgress, StatusCompleted:
		return st, nil
	default:
		return "", fmt.Errorf("invalid status %q", s)
	}
}

// Task is a store-owned task. The core only ever writes ReminderSent.
type Task struct {
	ID           int64     `json:"id"`
	Title        string    `json:"title"`
	Description  string    `json:"description,omitempty"`
	DueAt        time.Time `json:"due_at"`
	Priority     Priority  `json:"priority"`
	Status       Status    `json:"status"`
	Destination  string    `json:"destination"`
	ReminderSent bool      `json:"reminder_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Outcome string

const (
	OutcomeSent   Outcome = "sent"
	OutcomeFailed Outcome = "failed"
)

// NotificationRecord is one append-only audit entry per dispatch attempt.
type NotificationRecord struct {
	ID          int64      `json:"id"`
	TaskID      int64      `json:"task_id"`
	Destination string     `json:"destination"`
	Message     string     `json:"message"`
	Outcome     Outcome    `json:"outcome"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	ErrorDetail string     `json:"error_detail,omitempty"`
	DeliveryID  string     `json:"delivery_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// Delivery is what a channel reports for an accepted message.
type Delivery struct {
	ID string
}

type TaskStore interface {
	// ListDueTasks returns tasks with DueAt <= horizon that are not completed
	// and have no reminder sent, ordered by DueAt then ID.
	ListDueTasks(ctx context.Context, horizon time.Time) ([]Task, error)
	// MarkReminderSent returns ErrTaskNotFound if the task no longer exists.
	MarkReminderSent(ctx context.Context, id int64) error
	AppendNotification(ctx context.Context, rec NotificationRecord) error
}

// FailureCounter is optionally implemented by a TaskStore to support the
// retry ceiling.
type FailureCounter interface {
	CountFailures(ctx context.Context, taskID int64, since time.Time) (int, error)
}

type Channel interface {
	Send(ctx context.Context, destination, message string) (Delivery, error)
}

// ChannelFunc adapts a function to Channel.
type ChannelFunc func(ctx context.Context, destination, message string) (Delivery, error)

func (f ChannelFunc) Send(ctx context.Context, destination, message string) (Delivery, error) {
	return f(ctx, destination, message)
}
