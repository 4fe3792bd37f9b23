package repository

import (
	"context"
	"time"

	"chatsync/internal/domain/entity"
)

// MessageCursor marks the oldest item of a fetched page; the next page is
// strictly older than it.
type MessageCursor struct {
	Timestamp time.Time `json:"timestamp"`
	ID        string    `json:"id"`
}

// MessagePage is one page of the message log, oldest-first for display.
type MessagePage struct {
	Messages []*entity.Message `json:"messages"`
	Cursor   *MessageCursor    `json:"cursor,omitempty"`
	HasMore  bool              `json:"has_more"`
}

// Subscription is a live feed of raw message entries for one chat. Batches
// delivery is at-least-once; duplicates and reordering are expected and
// resolved downstream. Stop releases the feed; no batches are delivered
// after it returns.
type Subscription interface {
	Batches() <-chan []map[string]interface{}
	Stop()
}

type ChatRepository interface {
	// EnsureMetadata lazily creates the (userID, chatID) metadata record via
	// a merge upsert. Safe to run concurrently from both sides of a chat;
	// never overwrites an existing counter.
	EnsureMetadata(ctx context.Context, userID, chatID string, participants []string, otherUser *entity.UserRef) error

	// AppendMessage commits the message and both participants' metadata
	// updates as one atomic transaction. The message id must be set by the
	// caller before the call so retries cannot duplicate the message.
	AppendMessage(ctx context.Context, message *entity.Message, recipientID string) error

	// MarkChatRead zeroes the caller's unread counter, stamps lastRead and
	// flips pending messages from the other party to read. Idempotent.
	MarkChatRead(ctx context.Context, userID, chatID string) error

	GetMessagesPage(ctx context.Context, chatID string, cursor *MessageCursor, pageSize int) (*MessagePage, error)

	GetMetadata(ctx context.Context, userID, chatID string) (*entity.ChatMetadata, error)
	ListChatMetadata(ctx context.Context, userID string) ([]*entity.ChatMetadata, error)

	SubscribeMessages(ctx context.Context, chatID string) (Subscription, error)
}
