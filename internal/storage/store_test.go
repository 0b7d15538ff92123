package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

// forEachDriver runs fn against every driver with a fresh store.
func forEachDriver(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Helper()
	drivers := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			st, err := Open(Config{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "nested", "tasks.db")}, logx.Nop())
			require.NoError(t, err)
			return st
		},
	}
	for name, open := range drivers {
		t.Run(name, func(t *testing.T) {
			st := open(t)
			t.Cleanup(func() { _ = st.Close() })
			fn(t, st)
		})
	}
}

var base = time.UnixMilli(1741608000000).UTC() // 2025-03-10T12:00:00Z

func mustCreate(t *testing.T, st Store, title string, due time.Time) reminder.Task {
	t.Helper()
	task, err := st.CreateTask(context.Background(), reminder.Task{Title: title, DueAt: due, Destination: "+15551234567"})
	require.NoError(t, err)
	return task
}

func ids(ts []reminder.Task) []int64 {
	out := make([]int64, 0, len(ts))
	for _, t := range ts {
		out = append(out, t.ID)
	}
	return out
}

func TestDueSetFilter(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		horizon := base.Add(time.Hour)

		overdue := mustCreate(t, st, "overdue", base.Add(-time.Hour))
		edge := mustCreate(t, st, "edge", horizon)
		_ = mustCreate(t, st, "later", horizon.Add(time.Millisecond))
		done := mustCreate(t, st, "done", base)
		sent := mustCreate(t, st, "sent", base)
		busy := mustCreate(t, st, "busy", base.Add(30*time.Minute))

		require.NoError(t, st.SetStatus(ctx, done.ID, reminder.StatusCompleted))
		require.NoError(t, st.MarkReminderSent(ctx, sent.ID))
		require.NoError(t, st.SetStatus(ctx, busy.ID, reminder.StatusInProgress))

		due, err := st.ListDueTasks(ctx, horizon)
		require.NoError(t, err)
		assert.Equal(t, []int64{overdue.ID, busy.ID, edge.ID}, ids(due))
	})
}

func TestDueSetOrderingIsStable(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		later := mustCreate(t, st, "T2", base.Add(5*time.Minute))
		tie1 := mustCreate(t, st, "T1a", base)
		tie2 := mustCreate(t, st, "T1b", base)

		due, err := st.ListDueTasks(context.Background(), base.Add(time.Hour))
		require.NoError(t, err)
		assert.Equal(t, []int64{tie1.ID, tie2.ID, later.ID}, ids(due))
	})
}

func TestMarkReminderSentIsIdempotentAndDetectsMissing(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		task := mustCreate(t, st, "a", base)

		require.NoError(t, st.MarkReminderSent(ctx, task.ID))
		require.NoError(t, st.MarkReminderSent(ctx, task.ID))
		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.True(t, got.ReminderSent)
		assert.Equal(t, task.UpdatedAt, got.UpdatedAt, "marking must not look like an upstream edit")

		due, err := st.ListDueTasks(ctx, base.Add(time.Hour))
		require.NoError(t, err)
		assert.Empty(t, due)

		assert.ErrorIs(t, st.MarkReminderSent(ctx, 9999), reminder.ErrTaskNotFound)
		_, err = st.GetTask(ctx, 9999)
		assert.ErrorIs(t, err, reminder.ErrTaskNotFound)
	})
}

func TestUpdateDueAtRearmsReminder(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		task := mustCreate(t, st, "a", base)
		require.NoError(t, st.MarkReminderSent(ctx, task.ID))

		require.NoError(t, st.UpdateDueAt(ctx, task.ID, base.Add(10*time.Minute)))
		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.False(t, got.ReminderSent)
		assert.Equal(t, base.Add(10*time.Minute), got.DueAt)
		assert.False(t, got.UpdatedAt.Before(task.UpdatedAt))

		assert.ErrorIs(t, st.UpdateDueAt(ctx, 9999, base), reminder.ErrTaskNotFound)
	})
}

func TestNotificationsAndFailureCount(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		task := mustCreate(t, st, "a", base)
		sentAt := base.Add(time.Minute)

		require.NoError(t, st.AppendNotification(ctx, reminder.NotificationRecord{
			TaskID: task.ID, Destination: "123", Outcome: reminder.OutcomeFailed,
			ErrorDetail: "invalid destination format", CreatedAt: base.Add(-time.Hour),
		}))
		require.NoError(t, st.AppendNotification(ctx, reminder.NotificationRecord{
			TaskID: task.ID, Destination: "+15551234567", Message: "m", Outcome: reminder.OutcomeFailed,
			ErrorDetail: "timeout", CreatedAt: base,
		}))
		require.NoError(t, st.AppendNotification(ctx, reminder.NotificationRecord{
			TaskID: task.ID, Destination: "+15551234567", Message: "m", Outcome: reminder.OutcomeSent,
			SentAt: &sentAt, DeliveryID: "SM1", CreatedAt: sentAt,
		}))
		require.NoError(t, st.AppendNotification(ctx, reminder.NotificationRecord{
			TaskID: task.ID + 1, Destination: "x", Outcome: reminder.OutcomeFailed, CreatedAt: base,
		}))

		n, err := st.CountFailures(ctx, task.ID, time.Time{})
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		n, err = st.CountFailures(ctx, task.ID, base)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		recs, err := st.ListNotifications(ctx, task.ID, 0)
		require.NoError(t, err)
		require.Len(t, recs, 3)
		assert.Equal(t, reminder.OutcomeSent, recs[0].Outcome, "newest first")
		require.NotNil(t, recs[0].SentAt)
		assert.Equal(t, sentAt, *recs[0].SentAt)
		assert.Equal(t, "SM1", recs[0].DeliveryID)
		assert.Nil(t, recs[1].SentAt)
		assert.Equal(t, "timeout", recs[1].ErrorDetail)

		all, err := st.ListNotifications(ctx, 0, 2)
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

func TestCreateTaskValidation(t *testing.T) {
	forEachDriver(t, func(t *testing.T, st Store) {
		ctx := context.Background()
		_, err := st.CreateTask(ctx, reminder.Task{DueAt: base, Destination: "+1"})
		assert.ErrorIs(t, err, ErrInvalidTask)
		_, err = st.CreateTask(ctx, reminder.Task{Title: "x", DueAt: base})
		assert.ErrorIs(t, err, ErrInvalidTask)
		_, err = st.CreateTask(ctx, reminder.Task{Title: "x", Destination: "+1"})
		assert.ErrorIs(t, err, ErrInvalidTask)
		_, err = st.CreateTask(ctx, reminder.Task{Title: "x", DueAt: base, Destination: "+1", Priority: "urgent"})
		assert.ErrorIs(t, err, ErrInvalidTask)

		task, err := st.CreateTask(ctx, reminder.Task{Title: " x ", Description: "d", DueAt: base, Destination: "+1"})
		require.NoError(t, err)
		assert.Equal(t, "x", task.Title)
		assert.Equal(t, reminder.PriorityMedium, task.Priority)
		assert.Equal(t, reminder.StatusPending, task.Status)

		got, err := st.GetTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, task, got)

		all, err := st.ListTasks(ctx)
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

func TestOpenUnknownDriver(t *testing.T) {
	_, err := Open(Config{Driver: "postgres"}, logx.Nop())
	require.Error(t, err)
	_, err = Open(Config{Driver: "sqlite"}, logx.Nop())
	require.Error(t, err, "sqlite needs a path")
}

func TestSQLiteReopenKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasks.db")
	st, err := Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	task := mustCreate(t, st, "persist", base)
	require.NoError(t, st.MarkReminderSent(context.Background(), task.ID))
	require.NoError(t, st.Close())

	st, err = Open(Config{Path: path}, logx.Nop())
	require.NoError(t, err)
	defer st.Close()
	got, err := st.GetTask(context.Background(), task.ID)
	require.NoError(t, err)
	assert.True(t, got.ReminderSent)
}
