package models

import (
	"time"
)

// TaskSnapshot is the visibility-filtered projection of a scheduled task
// written to a group's IPC directory before each turn.
type TaskSnapshot struct {
	ID          string    `json:"id"`
	GroupFolder string    `json:"group_folder"`
	Schedule    string    `json:"schedule"`
	Prompt      string    `json:"prompt"`
	Status      string    `json:"status"`
	NextRunAt   time.Time `json:"next_run_at"`
}

// ChatSnapshot is one entry of the available-chat list. Only the main group
// ever observes a non-empty list.
type ChatSnapshot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	LastActivityTime time.Time `json:"lastActivityTime"`
}

// GroupsFile is the on-disk shape of available_groups.json.
type GroupsFile struct {
	Groups   []ChatSnapshot `json:"groups"`
	LastSync time.Time      `json:"lastSync"`
}
