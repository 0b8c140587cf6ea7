package tasks

import (
	"context"
	"time"
)

// Store persists scheduled tasks.
type Store interface {
	Create(ctx context.Context, task *ScheduledTask) error
	Get(ctx context.Context, id string) (*ScheduledTask, error)

	// List returns every task, active or not, ordered by creation time.
	List(ctx context.Context) ([]*ScheduledTask, error)

	// ListDue returns active tasks whose NextRunAt is at or before now.
	ListDue(ctx context.Context, now time.Time) ([]*ScheduledTask, error)

	Update(ctx context.Context, task *ScheduledTask) error
	Delete(ctx context.Context, id string) error
}
