package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // pure-Go sqlite driver

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// SQLiteStore implements GroupStore, MessageStore and SessionStore on a
// single sqlite database. Timestamps are stored as unix nanoseconds so range
// queries and ordering are exact.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the sqlite database at path and returns a
// StoreSet backed by it, plus the raw handle for collaborators that keep
// their own tables.
func Open(path string) (StoreSet, *sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return StoreSet{}, nil, fmt.Errorf("open database: %w", err)
	}
	// sqlite allows one writer; a single connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.init(); err != nil {
		db.Close()
		return StoreSet{}, nil, err
	}

	set := StoreSet{
		Groups:   s,
		Messages: s,
		Sessions: s,
		closer:   db.Close,
	}
	return set, db, nil
}

func (s *SQLiteStore) init() error {
	schema := `
	CREATE TABLE IF NOT EXISTS groups (
		folder         TEXT PRIMARY KEY,
		name           TEXT NOT NULL,
		chat_id        TEXT NOT NULL UNIQUE,
		is_main        INTEGER NOT NULL DEFAULT 0,
		container_json TEXT,
		registered_at  INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS messages (
		id         TEXT PRIMARY KEY,
		chat_id    TEXT NOT NULL,
		sender     TEXT NOT NULL,
		role       TEXT NOT NULL,
		content    TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_chat_time ON messages(chat_id, created_at);
	CREATE TABLE IF NOT EXISTS chats (
		id               TEXT PRIMARY KEY,
		name             TEXT NOT NULL,
		last_activity_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS sessions (
		group_folder TEXT PRIMARY KEY,
		handle       TEXT NOT NULL,
		updated_at   INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS watermarks (
		chat_id       TEXT PRIMARY KEY,
		last_agent_at INTEGER NOT NULL
	);`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Register inserts a new group. Registering an existing folder returns
// ErrAlreadyExists.
func (s *SQLiteStore) Register(ctx context.Context, group *models.Group) error {
	var containerJSON []byte
	if group.Container != nil {
		var err error
		containerJSON, err = json.Marshal(group.Container)
		if err != nil {
			return fmt.Errorf("encode container overrides: %w", err)
		}
	}
	if group.RegisteredAt.IsZero() {
		group.RegisteredAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO groups (folder, name, chat_id, is_main, container_json, registered_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		group.Folder, group.Name, group.ChatID, boolInt(group.IsMain),
		nullString(containerJSON), group.RegisteredAt.UnixNano(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("register group: %w", err)
	}
	return nil
}

// Get returns a group by folder.
func (s *SQLiteStore) Get(ctx context.Context, folder string) (*models.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT folder, name, chat_id, is_main, container_json, registered_at
		 FROM groups WHERE folder = ?`, folder))
}

// GetByChat returns the group bound to a transport chat.
func (s *SQLiteStore) GetByChat(ctx context.Context, chatID string) (*models.Group, error) {
	return s.scanGroup(s.db.QueryRowContext(ctx,
		`SELECT folder, name, chat_id, is_main, container_json, registered_at
		 FROM groups WHERE chat_id = ?`, chatID))
}

// List returns all registered groups ordered by registration time.
func (s *SQLiteStore) List(ctx context.Context) ([]*models.Group, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT folder, name, chat_id, is_main, container_json, registered_at
		 FROM groups ORDER BY registered_at`)
	if err != nil {
		return nil, fmt.Errorf("list groups: %w", err)
	}
	defer rows.Close()

	var groups []*models.Group
	for rows.Next() {
		g, err := s.scanGroup(rows)
		if err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	return groups, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *SQLiteStore) scanGroup(row rowScanner) (*models.Group, error) {
	var g models.Group
	var isMain int
	var containerJSON sql.NullString
	var registeredAt int64

	err := row.Scan(&g.Folder, &g.Name, &g.ChatID, &isMain, &containerJSON, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan group: %w", err)
	}

	g.IsMain = isMain != 0
	g.RegisteredAt = time.Unix(0, registeredAt)
	if containerJSON.Valid && containerJSON.String != "" {
		var overrides models.ContainerOverrides
		if err := json.Unmarshal([]byte(containerJSON.String), &overrides); err != nil {
			return nil, fmt.Errorf("decode container overrides: %w", err)
		}
		g.Container = &overrides
	}
	return &g, nil
}

// Append stores one message and refreshes the chat's activity time.
func (s *SQLiteStore) Append(ctx context.Context, msg *models.Message) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, chat_id, sender, role, content, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ChatID, msg.Sender, string(msg.Role), msg.Content, msg.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append message: %w", err)
	}
	if msg.ChatName != "" {
		return s.UpsertChat(ctx, &models.Chat{
			ID:             msg.ChatID,
			Name:           msg.ChatName,
			LastActivityAt: msg.CreatedAt,
		})
	}
	return nil
}

// GetMessagesSince returns the unconsumed window: messages strictly after
// since, excluding the given sender, oldest first.
func (s *SQLiteStore) GetMessagesSince(ctx context.Context, chatID string, since time.Time, excludedSender string) ([]*models.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, role, content, created_at FROM messages
		 WHERE chat_id = ? AND created_at > ? AND sender != ?
		 ORDER BY created_at`,
		chatID, since.UnixNano(), excludedSender,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []*models.Message
	for rows.Next() {
		var m models.Message
		var createdAt int64
		var role string
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &role, &m.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Role = models.Role(role)
		m.CreatedAt = time.Unix(0, createdAt)
		msgs = append(msgs, &m)
	}
	return msgs, rows.Err()
}

// UpsertChat records or refreshes a chat directory entry.
func (s *SQLiteStore) UpsertChat(ctx context.Context, chat *models.Chat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (id, name, last_activity_at) VALUES (?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name = excluded.name, last_activity_at = excluded.last_activity_at`,
		chat.ID, chat.Name, chat.LastActivityAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert chat: %w", err)
	}
	return nil
}

// GetAllChats returns the chat directory ordered by most recent activity.
func (s *SQLiteStore) GetAllChats(ctx context.Context) ([]*models.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, last_activity_at FROM chats ORDER BY last_activity_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query chats: %w", err)
	}
	defer rows.Close()

	var chats []*models.Chat
	for rows.Next() {
		var c models.Chat
		var lastActivity int64
		if err := rows.Scan(&c.ID, &c.Name, &lastActivity); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		c.LastActivityAt = time.Unix(0, lastActivity)
		chats = append(chats, &c)
	}
	return chats, rows.Err()
}

// GetSession returns the stored session handle for a group, or "" if none.
func (s *SQLiteStore) GetSession(ctx context.Context, groupFolder string) (string, error) {
	var handle string
	err := s.db.QueryRowContext(ctx,
		`SELECT handle FROM sessions WHERE group_folder = ?`, groupFolder).Scan(&handle)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get session: %w", err)
	}
	return handle, nil
}

// SetSession stores or overwrites the group's session handle.
func (s *SQLiteStore) SetSession(ctx context.Context, groupFolder, handle string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (group_folder, handle, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(group_folder) DO UPDATE SET handle = excluded.handle, updated_at = excluded.updated_at`,
		groupFolder, handle, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set session: %w", err)
	}
	return nil
}

// GetWatermark returns the last-processed timestamp for a chat, or the zero
// time if no turn has completed yet.
func (s *SQLiteStore) GetWatermark(ctx context.Context, chatID string) (time.Time, error) {
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT last_agent_at FROM watermarks WHERE chat_id = ?`, chatID).Scan(&ts)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("get watermark: %w", err)
	}
	return time.Unix(0, ts), nil
}

// SetWatermark stores the chat's last-processed timestamp.
func (s *SQLiteStore) SetWatermark(ctx context.Context, chatID string, ts time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO watermarks (chat_id, last_agent_at) VALUES (?, ?)
		 ON CONFLICT(chat_id) DO UPDATE SET last_agent_at = excluded.last_agent_at`,
		chatID, ts.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("set watermark: %w", err)
	}
	return nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func isUniqueViolation(err error) bool {
	// modernc.org/sqlite surfaces constraint failures in the error text.
	return err != nil && strings.Contains(err.Error(), "constraint failed")
}
