package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"reminderd/internal/reminder"
)

// Memory is a process-local Store. State is lost on exit.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	tasks   map[int64]reminder.Task
	records []reminder.NotificationRecord
	nextID  int64
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, tasks: map[int64]reminder.Task{}}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) ListDueTasks(_ context.Context, horizon time.Time) ([]reminder.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := msTime(horizon)
	var out []reminder.Task
	for _, t := range m.tasks {
		if !t.DueAt.After(h) && t.Status != reminder.StatusCompleted && !t.ReminderSent {
			out = append(out, t)
		}
	}
	sortByDue(out)
	return out, nil
}

func (m *Memory) MarkReminderSent(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, reminder.ErrTaskNotFound)
	}
	t.ReminderSent = true
	m.tasks[id] = t
	return nil
}

func (m *Memory) AppendNotification(_ context.Context, rec reminder.NotificationRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = m.now()
	}
	rec.CreatedAt = msTime(rec.CreatedAt)
	if rec.SentAt != nil {
		ts := msTime(*rec.SentAt)
		rec.SentAt = &ts
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, rec)
	return nil
}

func (m *Memory) CountFailures(_ context.Context, taskID int64, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	since = msTime(since)
	n := 0
	for _, r := range m.records {
		if r.TaskID == taskID && r.Outcome == reminder.OutcomeFailed && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateTask(_ context.Context, t reminder.Task) (reminder.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, err := prepareTask(t, m.now())
	if err != nil {
		return t, err
	}
	m.nextID++
	t.ID = m.nextID
	m.tasks[t.ID] = t
	return t, nil
}

func (m *Memory) GetTask(_ context.Context, id int64) (reminder.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return t, fmt.Errorf("task %d: %w", id, reminder.ErrTaskNotFound)
	}
	return t, nil
}

func (m *Memory) ListTasks(context.Context) ([]reminder.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]reminder.Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, t)
	}
	sortByDue(out)
	return out, nil
}

func (m *Memory) UpdateDueAt(_ context.Context, id int64, due time.Time) error {
	return m.update(id, func(t *reminder.Task) error {
		t.DueAt = msTime(due)
		t.ReminderSent = false
		return nil
	})
}

func (m *Memory) SetStatus(_ context.Context, id int64, status reminder.Status) error {
	st, err := reminder.ParseStatus(string(status))
	if err != nil {
		return errors.Join(ErrInvalidTask, err)
	}
	return m.update(id, func(t *reminder.Task) error {
		t.Status = st
		return nil
	})
}

func (m *Memory) update(id int64, fn func(t *reminder.Task) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[id]
	if !ok {
		return fmt.Errorf("task %d: %w", id, reminder.ErrTaskNotFound)
	}
	if err := fn(&t); err != nil {
		return err
	}
	t.UpdatedAt = msTime(m.now())
	m.tasks[id] = t
	return nil
}

func (m *Memory) ListNotifications(_ context.Context, taskID int64, limit int) ([]reminder.NotificationRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []reminder.NotificationRecord
	for i := len(m.records) - 1; i >= 0; i-- {
		r := m.records[i]
		if taskID != 0 && r.TaskID != taskID {
			continue
		}
		out = append(out, r)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func sortByDue(ts []reminder.Task) {
	slices.SortStableFunc(ts, func(a, b reminder.Task) int {
		if c := a.DueAt.Compare(b.DueAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
