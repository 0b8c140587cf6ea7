// Package telegram implements the transport adapter over the Telegram Bot
// API using long polling.
package telegram

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"github.com/google/uuid"

	"github.com/gigaclaw/gigaclaw/internal/channels"
	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// maxMessageLen is Telegram's per-message text limit; longer results are
// chunked across multiple sends.
const maxMessageLen = 4096

// Config holds configuration for the Telegram adapter.
type Config struct {
	// Token is the bot token from @BotFather (required).
	Token string

	// Logger is an optional slog.Logger instance.
	Logger *slog.Logger
}

// Validate checks if the configuration is valid and applies defaults.
func (c *Config) Validate() error {
	if c.Token == "" {
		return channels.ErrConfig("token is required", nil)
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return nil
}

// Adapter implements channels.Adapter for Telegram.
type Adapter struct {
	config   Config
	bot      *bot.Bot
	messages chan *models.Message
	logger   *slog.Logger
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// NewAdapter creates a Telegram adapter with the given configuration.
func NewAdapter(config Config) (*Adapter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Adapter{
		config:   config,
		messages: make(chan *models.Message, 100),
		logger:   config.Logger.With("adapter", "telegram"),
	}, nil
}

// Start connects the bot and blocks in the long-polling loop until the
// context is cancelled.
func (a *Adapter) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	b, err := bot.New(a.config.Token, bot.WithDefaultHandler(a.handleUpdate))
	if err != nil {
		return channels.ErrConnection("failed to create bot", err)
	}
	a.bot = b

	a.logger.Info("telegram adapter started")

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer close(a.messages)
		b.Start(ctx)
	}()

	<-ctx.Done()
	return nil
}

// Stop cancels polling and waits for the message loop to drain.
func (a *Adapter) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		a.logger.Info("telegram adapter stopped")
		return nil
	case <-ctx.Done():
		return channels.ErrConnection("stop timed out", ctx.Err())
	}
}

// Messages returns the inbound message stream.
func (a *Adapter) Messages() <-chan *models.Message {
	return a.messages
}

// handleUpdate converts a Telegram update into the unified message format.
func (a *Adapter) handleUpdate(ctx context.Context, b *bot.Bot, update *tgmodels.Update) {
	if update.Message == nil || update.Message.Text == "" {
		return
	}
	tm := update.Message

	msg := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    strconv.FormatInt(tm.Chat.ID, 10),
		ChatName:  chatName(&tm.Chat),
		Sender:    senderName(tm.From),
		Role:      models.RoleUser,
		Content:   tm.Text,
		CreatedAt: time.Unix(int64(tm.Date), 0),
	}

	select {
	case a.messages <- msg:
	case <-ctx.Done():
	default:
		a.logger.Warn("messages channel full, dropping message", "chat_id", msg.ChatID)
	}
}

// Send delivers text to a chat, chunking past Telegram's message limit.
func (a *Adapter) Send(ctx context.Context, chatID string, text string) error {
	if a.bot == nil {
		return channels.ErrSend("bot not initialized", nil)
	}
	id, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return channels.ErrSend("invalid chat id", err)
	}

	for _, chunk := range chunkText(text, maxMessageLen) {
		if _, err := a.bot.SendMessage(ctx, &bot.SendMessageParams{
			ChatID: id,
			Text:   chunk,
		}); err != nil {
			return channels.ErrSend("send message", err)
		}
	}
	return nil
}

func chatName(chat *tgmodels.Chat) string {
	if chat.Title != "" {
		return chat.Title
	}
	if chat.Username != "" {
		return chat.Username
	}
	return chat.FirstName
}

func senderName(from *tgmodels.User) string {
	if from == nil {
		return "unknown"
	}
	if from.Username != "" {
		return from.Username
	}
	return from.FirstName
}

// chunkText splits text into pieces at most limit runes long, preferring
// newline boundaries.
func chunkText(text string, limit int) []string {
	if len(text) <= limit {
		return []string{text}
	}
	var chunks []string
	runes := []rune(text)
	for len(runes) > 0 {
		if len(runes) <= limit {
			chunks = append(chunks, string(runes))
			break
		}
		cut := limit
		for i := limit - 1; i > limit/2; i-- {
			if runes[i] == '\n' {
				cut = i
				break
			}
		}
		chunks = append(chunks, string(runes[:cut]))
		runes = runes[cut:]
	}
	return chunks
}
