// Package channels defines the transport boundary the core depends on. The
// router only ever sees these interfaces; platform adapters live in
// subpackages.
package channels

import (
	"context"

	"github.com/gigaclaw/gigaclaw/pkg/models"
)

// Sender delivers outbound text to a chat.
type Sender interface {
	Send(ctx context.Context, chatID string, text string) error
}

// Adapter is a full transport adapter: an inbound message stream plus the
// outbound sender.
type Adapter interface {
	Sender

	// Start begins listening for messages. It blocks until the context is
	// cancelled or a fatal transport error occurs.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the adapter and closes Messages.
	Stop(ctx context.Context) error

	// Messages returns the inbound message stream.
	Messages() <-chan *models.Message
}
