// Package storage persists groups, message history, session handles and
// per-chat watermarks.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")
)

// GroupStore persists registered groups.
type GroupStore interface {
	Register(ctx context.Context, group *models.Group) error
	Get(ctx context.Context, folder string) (*models.Group, error)
	GetByChat(ctx context.Context, chatID string) (*models.Group, error)
	List(ctx context.Context) ([]*models.Group, error)
}

// MessageStore persists chat history and the chat directory.
type MessageStore interface {
	Append(ctx context.Context, msg *models.Message) error

	// GetMessagesSince returns messages for a chat strictly after the given
	// time, excluding those authored by excludedSender, in chronological
	// order.
	GetMessagesSince(ctx context.Context, chatID string, since time.Time, excludedSender string) ([]*models.Message, error)

	UpsertChat(ctx context.Context, chat *models.Chat) error
	GetAllChats(ctx context.Context) ([]*models.Chat, error)
}

// SessionStore persists per-group session handles and per-chat watermarks.
// Once a session handle exists for a group, every future turn must pass the
// latest known value; the core never deletes one.
type SessionStore interface {
	GetSession(ctx context.Context, groupFolder string) (string, error)
	SetSession(ctx context.Context, groupFolder, handle string) error

	// GetWatermark returns the zero time when no watermark is stored yet.
	GetWatermark(ctx context.Context, chatID string) (time.Time, error)
	SetWatermark(ctx context.Context, chatID string, ts time.Time) error
}

// StoreSet groups the storage dependencies handed to the router.
type StoreSet struct {
	Groups   GroupStore
	Messages MessageStore
	Sessions SessionStore

	closer func() error
}

// Close closes any underlying resources.
func (s StoreSet) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer()
}
