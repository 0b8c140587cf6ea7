package tasks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/gigaclaw/gigaclaw/internal/storage"
)

// SQLiteStore implements Store on the shared sqlite handle.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates the task table if needed.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	schema := `
	CREATE TABLE IF NOT EXISTS scheduled_tasks (
		id           TEXT PRIMARY KEY,
		group_folder TEXT NOT NULL,
		name         TEXT NOT NULL DEFAULT '',
		schedule     TEXT NOT NULL,
		prompt       TEXT NOT NULL,
		status       TEXT NOT NULL,
		next_run_at  INTEGER NOT NULL,
		last_run_at  INTEGER,
		created_at   INTEGER NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_tasks_due ON scheduled_tasks(status, next_run_at);`
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("create task schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Create validates the schedule, fills defaults and inserts the task.
func (s *SQLiteStore) Create(ctx context.Context, task *ScheduledTask) error {
	if err := ValidateSchedule(task.Schedule); err != nil {
		return err
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.Status == "" {
		task.Status = TaskStatusActive
	}
	now := time.Now()
	if task.CreatedAt.IsZero() {
		task.CreatedAt = now
	}
	task.UpdatedAt = now
	if task.NextRunAt.IsZero() {
		next, err := NextRun(task.Schedule, now)
		if err != nil {
			return err
		}
		task.NextRunAt = next
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_tasks
		 (id, group_folder, name, schedule, prompt, status, next_run_at, last_run_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.ID, task.GroupFolder, task.Name, task.Schedule, task.Prompt, string(task.Status),
		task.NextRunAt.UnixNano(), nullTime(task.LastRunAt),
		task.CreatedAt.UnixNano(), task.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("create task: %w", err)
	}
	return nil
}

// Get returns a task by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*ScheduledTask, error) {
	row := s.db.QueryRowContext(ctx, selectTask+` WHERE id = ?`, id)
	return scanTask(row)
}

// List returns all tasks ordered by creation time.
func (s *SQLiteStore) List(ctx context.Context) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx, selectTask+` ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListDue returns active tasks due at or before now, soonest first.
func (s *SQLiteStore) ListDue(ctx context.Context, now time.Time) ([]*ScheduledTask, error) {
	rows, err := s.db.QueryContext(ctx,
		selectTask+` WHERE status = ? AND next_run_at <= ? ORDER BY next_run_at`,
		string(TaskStatusActive), now.UnixNano(),
	)
	if err != nil {
		return nil, fmt.Errorf("list due tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// Update rewrites the mutable fields of a task.
func (s *SQLiteStore) Update(ctx context.Context, task *ScheduledTask) error {
	task.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE scheduled_tasks
		 SET name = ?, schedule = ?, prompt = ?, status = ?, next_run_at = ?, last_run_at = ?, updated_at = ?
		 WHERE id = ?`,
		task.Name, task.Schedule, task.Prompt, string(task.Status),
		task.NextRunAt.UnixNano(), nullTime(task.LastRunAt), task.UpdatedAt.UnixNano(),
		task.ID,
	)
	if err != nil {
		return fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// Delete removes a task.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scheduled_tasks WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const selectTask = `SELECT id, group_folder, name, schedule, prompt, status, next_run_at, last_run_at, created_at, updated_at
	FROM scheduled_tasks`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*ScheduledTask, error) {
	var t ScheduledTask
	var status string
	var nextRun, createdAt, updatedAt int64
	var lastRun sql.NullInt64

	err := row.Scan(&t.ID, &t.GroupFolder, &t.Name, &t.Schedule, &t.Prompt, &status,
		&nextRun, &lastRun, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}

	t.Status = TaskStatus(status)
	t.NextRunAt = time.Unix(0, nextRun)
	t.CreatedAt = time.Unix(0, createdAt)
	t.UpdatedAt = time.Unix(0, updatedAt)
	if lastRun.Valid {
		lr := time.Unix(0, lastRun.Int64)
		t.LastRunAt = &lr
	}
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]*ScheduledTask, error) {
	var tasks []*ScheduledTask
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}
