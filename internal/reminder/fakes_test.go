package reminder

import (
	"context"
	"sort"
	"sync"
	"time"
)

type fakeStore struct {
	mu      sync.Mutex
	tasks   map[int64]*Task
	records []NotificationRecord

	listErr   error
	markErr   error
	appendErr error
	// appendPanic makes AppendNotification panic for records with this outcome.
	appendPanic Outcome
}

func newFakeStore(tasks ...Task) *fakeStore {
	s := &fakeStore{tasks: map[int64]*Task{}}
	for i := range tasks {
		t := tasks[i]
		s.tasks[t.ID] = &t
	}
	return s
}

func (s *fakeStore) ListDueTasks(_ context.Context, horizon time.Time) ([]Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	var out []Task
	for _, t := range s.tasks {
		if !t.DueAt.After(horizon) && t.Status != StatusCompleted && !t.ReminderSent {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].DueAt.Equal(out[j].DueAt) {
			return out[i].DueAt.Before(out[j].DueAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *fakeStore) MarkReminderSent(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	t, ok := s.tasks[id]
	if !ok {
		return ErrTaskNotFound
	}
	t.ReminderSent = true
	return nil
}

func (s *fakeStore) AppendNotification(_ context.Context, rec NotificationRecord) error {
	if s.appendPanic != "" && rec.Outcome == s.appendPanic {
		panic("append " + string(rec.Outcome))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return s.appendErr
	}
	rec.ID = int64(len(s.records) + 1)
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeStore) CountFailures(_ context.Context, id int64, since time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.records {
		if r.TaskID == id && r.Outcome == OutcomeFailed && !r.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *fakeStore) task(id int64) Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.tasks[id]
}

func (s *fakeStore) recordsFor(id int64) []NotificationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []NotificationRecord
	for _, r := range s.records {
		if r.TaskID == id {
			out = append(out, r)
		}
	}
	return out
}

type sendCall struct {
	dest, msg  string
	start, end time.Time
}

// fakeChannel records every send. fail decides per destination whether to
// reject; panicWith makes Send panic.
type fakeChannel struct {
	mu        sync.Mutex
	calls     []sendCall
	fail      func(dest string) error
	panicWith any
	onSend    func()
}

func (c *fakeChannel) Send(_ context.Context, dest, msg string) (Delivery, error) {
	start := time.Now()
	if c.onSend != nil {
		c.onSend()
	}
	if c.panicWith != nil {
		panic(c.panicWith)
	}
	var err error
	if c.fail != nil {
		err = c.fail(dest)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, sendCall{dest: dest, msg: msg, start: start, end: time.Now()})
	if err != nil {
		return Delivery{}, err
	}
	return Delivery{ID: "d-" + dest}, nil
}

func (c *fakeChannel) sent() []sendCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sendCall(nil), c.calls...)
}
