package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"reminderd/internal/reminder"
	logx "reminderd/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
	now func() time.Time
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer; this also serializes the dispatch path.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()))
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log, now: time.Now}
	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	log.Debug("sqlite store opened", logx.String("path", path))
	return st, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const taskCols = `id, title, description, due_at, priority, status, destination, reminder_sent, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(r rowScanner) (reminder.Task, error) {
	var (
		t                     reminder.Task
		desc                  sql.NullString
		due, created, updated int64
		sent                  int
		priority, status      string
	)
	if err := r.Scan(&t.ID, &t.Title, &desc, &due, &priority, &status, &t.Destination, &sent, &created, &updated); err != nil {
		return t, err
	}
	t.Description = desc.String
	t.DueAt = time.UnixMilli(due).UTC()
	t.Priority = reminder.Priority(priority)
	t.Status = reminder.Status(status)
	t.ReminderSent = sent != 0
	t.CreatedAt = time.UnixMilli(created).UTC()
	t.UpdatedAt = time.UnixMilli(updated).UTC()
	return t, nil
}

func (s *sqliteStore) queryTasks(ctx context.Context, q string, args ...any) ([]reminder.Task, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *sqliteStore) ListDueTasks(ctx context.Context, horizon time.Time) ([]reminder.Task, error) {
	return s.queryTasks(ctx,
		`SELECT `+taskCols+` FROM tasks
		 WHERE due_at <= ? AND status != 'completed' AND reminder_sent = 0
		 ORDER BY due_at ASC, id ASC`,
		horizon.UnixMilli(),
	)
}

func (s *sqliteStore) MarkReminderSent(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tasks SET reminder_sent = 1 WHERE id = ?`, id)
	return affectedOne(res, err, id)
}

func (s *sqliteStore) AppendNotification(ctx context.Context, rec reminder.NotificationRecord) error {
	created := rec.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	var sentAt any
	if rec.SentAt != nil {
		sentAt = rec.SentAt.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO notification_log(task_id, destination, message, outcome, sent_at, error_detail, delivery_id, created_at)
		 VALUES(?,?,?,?,?,?,?,?)`,
		rec.TaskID, rec.Destination, rec.Message, string(rec.Outcome), sentAt,
		nullStr(rec.ErrorDetail), nullStr(rec.DeliveryID), created.UnixMilli(),
	)
	return err
}

func (s *sqliteStore) CountFailures(ctx context.Context, taskID int64, since time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notification_log WHERE task_id = ? AND outcome = 'failed' AND created_at >= ?`,
		taskID, since.UnixMilli(),
	).Scan(&n)
	return n, err
}

func (s *sqliteStore) CreateTask(ctx context.Context, t reminder.Task) (reminder.Task, error) {
	t, err := prepareTask(t, s.now())
	if err != nil {
		return t, err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks(title, description, due_at, priority, status, destination, reminder_sent, created_at, updated_at)
		 VALUES(?,?,?,?,?,?,0,?,?)`,
		t.Title, nullStr(t.Description), t.DueAt.UnixMilli(), string(t.Priority), string(t.Status),
		t.Destination, t.CreatedAt.UnixMilli(), t.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return t, err
	}
	if t.ID, err = res.LastInsertId(); err != nil {
		return t, err
	}
	return t, nil
}

func (s *sqliteStore) GetTask(ctx context.Context, id int64) (reminder.Task, error) {
	t, err := scanTask(s.db.QueryRowContext(ctx, `SELECT `+taskCols+` FROM tasks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return t, fmt.Errorf("task %d: %w", id, reminder.ErrTaskNotFound)
	}
	return t, err
}

func (s *sqliteStore) ListTasks(ctx context.Context) ([]reminder.Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskCols+` FROM tasks ORDER BY due_at ASC, id ASC`)
}

func (s *sqliteStore) UpdateDueAt(ctx context.Context, id int64, due time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET due_at = ?, reminder_sent = 0, updated_at = ? WHERE id = ?`,
		due.UnixMilli(), s.now().UnixMilli(), id,
	)
	return affectedOne(res, err, id)
}

func (s *sqliteStore) SetStatus(ctx context.Context, id int64, status reminder.Status) error {
	st, err := reminder.ParseStatus(string(status))
	if err != nil {
		return errors.Join(ErrInvalidTask, err)
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?`,
		string(st), s.now().UnixMilli(), id,
	)
	return affectedOne(res, err, id)
}

func (s *sqliteStore) ListNotifications(ctx context.Context, taskID int64, limit int) ([]reminder.NotificationRecord, error) {
	q := `SELECT id, task_id, destination, message, outcome, sent_at, error_detail, delivery_id, created_at FROM notification_log`
	var args []any
	if taskID != 0 {
		q += ` WHERE task_id = ?`
		args = append(args, taskID)
	}
	q += ` ORDER BY id DESC`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []reminder.NotificationRecord
	for rows.Next() {
		var (
			r             reminder.NotificationRecord
			outcome       string
			sentAt        sql.NullInt64
			detail, delID sql.NullString
			created       int64
		)
		if err := rows.Scan(&r.ID, &r.TaskID, &r.Destination, &r.Message, &outcome, &sentAt, &detail, &delID, &created); err != nil {
			return nil, err
		}
		r.Outcome = reminder.Outcome(outcome)
		if sentAt.Valid {
			ts := time.UnixMilli(sentAt.Int64).UTC()
			r.SentAt = &ts
		}
		r.ErrorDetail = detail.String
		r.DeliveryID = delID.String
		r.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

func affectedOne(res sql.Result, err error, id int64) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("task %d: %w", id, reminder.ErrTaskNotFound)
	}
	return nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}
