// Package ipc writes the per-group filesystem snapshots the container reads:
// the visibility-filtered scheduled-task list and available-chat list.
package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gigaclaw/gigaclaw/internal/config"
	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

const (
	tasksFileName  = "current_tasks.json"
	groupsFileName = "available_groups.json"
)

// Writer serializes snapshots into a group's IPC directory before each turn.
// Files are fully overwritten every time so the container always observes a
// consistent, current-as-of-turn-start view.
type Writer struct {
	cfg     *config.Container
	logger  *observability.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// NewWriter creates a snapshot writer.
func NewWriter(cfg *config.Container, logger *observability.Logger, metrics *observability.Metrics) *Writer {
	return &Writer{cfg: cfg, logger: logger, metrics: metrics, now: time.Now}
}

// WriteTasks writes the task snapshot. The main group receives the full list
// in order; every other group receives only tasks whose group folder matches
// its own. Non-main groups must never discover other groups' tasks through
// the filesystem channel.
func (w *Writer) WriteTasks(groupFolder string, isMain bool, tasks []models.TaskSnapshot) error {
	visible := tasks
	if !isMain {
		visible = make([]models.TaskSnapshot, 0, len(tasks))
		for _, t := range tasks {
			if t.GroupFolder == groupFolder {
				visible = append(visible, t)
			}
		}
	}
	if visible == nil {
		visible = []models.TaskSnapshot{}
	}
	return w.write(groupFolder, tasksFileName, "tasks", visible)
}

// WriteGroups writes the available-chat snapshot. Only the main group sees
// the chat directory; all other groups receive an empty list regardless of
// input.
func (w *Writer) WriteGroups(groupFolder string, isMain bool, chats []models.ChatSnapshot) error {
	visible := chats
	if !isMain || visible == nil {
		visible = []models.ChatSnapshot{}
	}
	file := models.GroupsFile{Groups: visible, LastSync: w.now().UTC()}
	return w.write(groupFolder, groupsFileName, "groups", file)
}

// write marshals the payload and overwrites the snapshot file in a single
// operation, so a concurrent reader never observes a partial update.
func (w *Writer) write(groupFolder, name, kind string, payload any) error {
	dir := w.cfg.IPCDir(groupFolder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create ipc dir: %w", err)
	}

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s snapshot: %w", kind, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		return fmt.Errorf("write %s snapshot: %w", kind, err)
	}

	w.logger.Debug(context.Background(), "snapshot written", "group", groupFolder, "kind", kind)
	if w.metrics != nil {
		w.metrics.SnapshotWrites.WithLabelValues(kind).Inc()
	}
	return nil
}
