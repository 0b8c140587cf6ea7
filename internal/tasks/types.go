// Package tasks implements cron-scheduled agent turns. A scheduled task binds
// a cron expression to a prompt for one group; when due, the scheduler hands
// it to the router as a scheduled turn.
package tasks

import (
	"time"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// TaskStatus represents the current state of a scheduled task.
type TaskStatus string

const (
	// TaskStatusActive indicates the task is active and will be scheduled.
	TaskStatusActive TaskStatus = "active"

	// TaskStatusPaused indicates the task is paused and will not run.
	TaskStatusPaused TaskStatus = "paused"
)

// ScheduledTask defines a prompt that runs on a schedule for one group.
type ScheduledTask struct {
	// ID is the unique identifier for the task.
	ID string `json:"id"`

	// GroupFolder identifies the owning group. Visibility filtering in the
	// IPC snapshot keys off this field.
	GroupFolder string `json:"group_folder"`

	// Name is a human-readable name for the task.
	Name string `json:"name,omitempty"`

	// Schedule is the cron expression. Standard 5-field, extended 6-field
	// with seconds, and @every descriptors are accepted.
	Schedule string `json:"schedule"`

	// Prompt is the text sent to the agent when the task fires.
	Prompt string `json:"prompt"`

	// Status is the current status of the task.
	Status TaskStatus `json:"status"`

	// NextRunAt is the next scheduled execution time.
	NextRunAt time.Time `json:"next_run_at"`

	// LastRunAt is the last execution time.
	LastRunAt *time.Time `json:"last_run_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Snapshot projects the task into the shape written to IPC directories.
func (t *ScheduledTask) Snapshot() models.TaskSnapshot {
	return models.TaskSnapshot{
		ID:          t.ID,
		GroupFolder: t.GroupFolder,
		Schedule:    t.Schedule,
		Prompt:      t.Prompt,
		Status:      string(t.Status),
		NextRunAt:   t.NextRunAt,
	}
}
