// Package router decides when an inbound message becomes an agent turn,
// assembles the prompt from unconsumed history, invokes the container runner
// and maintains session handles and per-chat watermarks.
package router

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/gigaclaw/gigaclaw/internal/channels"
	"github.com/gigaclaw/gigaclaw/internal/observability"
	"github.com/gigaclaw/gigaclaw/internal/storage"
	"github.com/gigaclaw/gigaclaw/internal/tasks"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// ContainerRunner executes one turn. The container package implements it.
type ContainerRunner interface {
	Run(ctx context.Context, group *models.Group, input *models.ContainerInput) *models.ContainerOutput
}

// SnapshotWriter refreshes a group's IPC snapshots before a turn.
type SnapshotWriter interface {
	WriteTasks(groupFolder string, isMain bool, tasks []models.TaskSnapshot) error
	WriteGroups(groupFolder string, isMain bool, chats []models.ChatSnapshot) error
}

// Config holds router policy.
type Config struct {
	// TriggerPrefix must start a message for non-main groups to trigger a
	// turn, matched case-insensitively at a word boundary.
	TriggerPrefix string

	// ResponsePrefix labels forwarded agent results.
	ResponsePrefix string

	// AssistantName is excluded as a sender when assembling the prompt
	// window, so the agent never re-reads its own replies.
	AssistantName string
}

// Router routes inbound messages and scheduled tasks into container turns.
type Router struct {
	groups    storage.GroupStore
	messages  storage.MessageStore
	sessions  storage.SessionStore
	taskStore tasks.Store
	runner    ContainerRunner
	snapshots SnapshotWriter
	sender    channels.Sender
	cfg       Config
	logger    *observability.Logger
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	trigger   *regexp.Regexp

	// Turns for the same group are serialized here so a scheduled task
	// firing mid-turn cannot race the session file or mount directories.
	mu         sync.Mutex
	groupLocks map[string]*sync.Mutex
}

// New creates a router.
func New(
	stores storage.StoreSet,
	taskStore tasks.Store,
	runner ContainerRunner,
	snapshots SnapshotWriter,
	sender channels.Sender,
	cfg Config,
	logger *observability.Logger,
	metrics *observability.Metrics,
	tracer *observability.Tracer,
) (*Router, error) {
	trigger, err := regexp.Compile(`(?i)^\s*` + regexp.QuoteMeta(cfg.TriggerPrefix) + `\b`)
	if err != nil {
		return nil, fmt.Errorf("compile trigger pattern: %w", err)
	}
	return &Router{
		groups:     stores.Groups,
		messages:   stores.Messages,
		sessions:   stores.Sessions,
		taskStore:  taskStore,
		runner:     runner,
		snapshots:  snapshots,
		sender:     sender,
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		tracer:     tracer,
		trigger:    trigger,
		groupLocks: make(map[string]*sync.Mutex),
	}, nil
}

// HandleMessage stores an inbound message and, when the trigger policy
// matches, runs an agent turn over the chat's unconsumed window.
func (r *Router) HandleMessage(ctx context.Context, msg *models.Message) error {
	if err := r.messages.Append(ctx, msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}

	group, err := r.groups.GetByChat(ctx, msg.ChatID)
	if errors.Is(err, storage.ErrNotFound) {
		r.logger.Debug(ctx, "message for unregistered chat", "chat_id", msg.ChatID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("look up group: %w", err)
	}

	// Main always triggers; other groups need the prefix.
	if !group.IsMain && !r.trigger.MatchString(msg.Content) {
		return nil
	}

	return r.runMessageTurn(ctx, group, msg)
}

func (r *Router) runMessageTurn(ctx context.Context, group *models.Group, trigger *models.Message) error {
	lock := r.lockFor(group.Folder)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := r.tracer.Start(ctx, "router.turn",
		attribute.String("group", group.Folder),
		attribute.String("trigger", "message"),
	)
	defer span.End()

	watermark, err := r.sessions.GetWatermark(ctx, group.ChatID)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("get watermark: %w", err)
	}

	window, err := r.messages.GetMessagesSince(ctx, group.ChatID, watermark, r.cfg.AssistantName)
	if err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("get message window: %w", err)
	}
	if len(window) == 0 {
		return nil
	}

	out := r.executeTurn(ctx, group, &models.ContainerInput{
		Prompt:      formatWindow(window),
		GroupFolder: group.Folder,
		ChatID:      group.ChatID,
		IsMain:      group.IsMain,
	}, "message")

	if out.Status != models.StatusSuccess || out.Result == nil {
		// Watermark untouched: the same window is retried on the next
		// qualifying message.
		r.logger.Warn(ctx, "turn failed, keeping watermark",
			"group", group.Folder, "error", out.Error)
		return nil
	}

	if err := r.sessions.SetWatermark(ctx, group.ChatID, trigger.CreatedAt); err != nil {
		observability.RecordError(span, err)
		return fmt.Errorf("advance watermark: %w", err)
	}
	return r.deliver(ctx, group.ChatID, *out.Result)
}

// RunScheduledTurn runs a turn for a scheduled task. The watermark is not
// touched: scheduled turns consume no chat messages.
func (r *Router) RunScheduledTurn(ctx context.Context, task *tasks.ScheduledTask) error {
	group, err := r.groups.Get(ctx, task.GroupFolder)
	if err != nil {
		return fmt.Errorf("look up group %s: %w", task.GroupFolder, err)
	}

	lock := r.lockFor(group.Folder)
	lock.Lock()
	defer lock.Unlock()

	ctx, span := r.tracer.Start(ctx, "router.turn",
		attribute.String("group", group.Folder),
		attribute.String("trigger", "scheduled"),
	)
	defer span.End()

	out := r.executeTurn(ctx, group, &models.ContainerInput{
		Prompt:          task.Prompt,
		GroupFolder:     group.Folder,
		ChatID:          group.ChatID,
		IsMain:          group.IsMain,
		IsScheduledTask: true,
	}, "scheduled")

	if out.Status != models.StatusSuccess || out.Result == nil {
		return fmt.Errorf("scheduled turn failed: %s", out.Error)
	}
	return r.deliver(ctx, group.ChatID, *out.Result)
}

// executeTurn refreshes snapshots, resolves the session handle, runs the
// container and persists any new session handle. It never returns an error
// shape other than the runner's own.
func (r *Router) executeTurn(ctx context.Context, group *models.Group, input *models.ContainerInput, trigger string) *models.ContainerOutput {
	r.refreshSnapshots(ctx, group)

	// A turn must carry the latest stored handle. Running without it would
	// start a fresh conversation and, on success, overwrite the stored handle,
	// so a read failure resolves the turn as an error instead.
	session, err := r.sessions.GetSession(ctx, group.Folder)
	if err != nil {
		r.logger.Error(ctx, "failed to load session handle", "group", group.Folder, "error", err)
		return models.ErrorOutput("failed to load session handle")
	}
	input.SessionID = session

	start := time.Now()
	out := r.runner.Run(ctx, group, input)
	elapsed := time.Since(start)

	if r.metrics != nil {
		r.metrics.TurnCounter.WithLabelValues(group.Folder, trigger, string(out.Status)).Inc()
		r.metrics.TurnDuration.WithLabelValues(group.Folder).Observe(elapsed.Seconds())
	}

	// A handle is only replaced on a successful turn, never cleared. Error
	// turns leave all session state untouched.
	if out.Status == models.StatusSuccess && out.NewSessionID != "" && out.NewSessionID != session {
		if err := r.sessions.SetSession(ctx, group.Folder, out.NewSessionID); err != nil {
			r.logger.Error(ctx, "failed to persist session handle", "group", group.Folder, "error", err)
		}
	}
	return out
}

// refreshSnapshots fully rewrites the group's IPC snapshots. Failures are
// logged and do not block the turn: the container sees the previous
// consistent snapshot instead.
func (r *Router) refreshSnapshots(ctx context.Context, group *models.Group) {
	taskList, err := r.taskStore.List(ctx)
	if err != nil {
		r.logger.Error(ctx, "failed to list tasks for snapshot", "error", err)
	} else {
		snaps := make([]models.TaskSnapshot, 0, len(taskList))
		for _, t := range taskList {
			snaps = append(snaps, t.Snapshot())
		}
		if err := r.snapshots.WriteTasks(group.Folder, group.IsMain, snaps); err != nil {
			r.logger.Error(ctx, "failed to write task snapshot", "group", group.Folder, "error", err)
		}
	}

	chats, err := r.messages.GetAllChats(ctx)
	if err != nil {
		r.logger.Error(ctx, "failed to list chats for snapshot", "error", err)
		return
	}
	snaps := make([]models.ChatSnapshot, 0, len(chats))
	for _, c := range chats {
		snaps = append(snaps, models.ChatSnapshot{
			ID:               c.ID,
			Name:             c.Name,
			LastActivityTime: c.LastActivityAt,
		})
	}
	if err := r.snapshots.WriteGroups(group.Folder, group.IsMain, snaps); err != nil {
		r.logger.Error(ctx, "failed to write group snapshot", "group", group.Folder, "error", err)
	}
}

func (r *Router) deliver(ctx context.Context, chatID, result string) error {
	text := result
	if r.cfg.ResponsePrefix != "" {
		text = r.cfg.ResponsePrefix + " " + result
	}
	if err := r.sender.Send(ctx, chatID, text); err != nil {
		return fmt.Errorf("forward result: %w", err)
	}
	return nil
}

func (r *Router) lockFor(folder string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.groupLocks[folder]
	if !ok {
		lock = &sync.Mutex{}
		r.groupLocks[folder] = lock
	}
	return lock
}

var windowEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// formatWindow concatenates the unconsumed window into one prompt, one tagged
// envelope per message so the agent can attribute and order them.
func formatWindow(window []*models.Message) string {
	var sb strings.Builder
	for i, msg := range window {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "<message sender=%q time=%q>%s</message>",
			msg.Sender,
			msg.CreatedAt.UTC().Format(time.RFC3339),
			windowEscaper.Replace(msg.Content),
		)
	}
	return sb.String()
}
