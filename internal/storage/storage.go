// Package storage persists chats and messages and relays gateway emissions
// between processes.
package storage

import (
	"context"
	"errors"
	"protalent/backend/internal/models"
	"strings"
	"time"
)

var (
	ErrChatNotFound        = errors.New("chat not found")
	ErrMessageNotFound     = errors.New("message not found")
	ErrNotParticipant      = errors.New("user is not a chat participant")
	ErrNotSender           = errors.New("user is not the message sender")
	ErrInvalidParticipants = errors.New("a chat needs two distinct participants")
)

// Storage is the message store shared by the gateway and the query API.
// Chats are keyed by the unordered pair of their participants; at most one
// chat exists per pair.
type Storage interface {
	// FindChatByParticipants returns ErrChatNotFound when the pair has no chat.
	FindChatByParticipants(ctx context.Context, a, b string) (*models.Chat, error)
	// CreateChat returns the existing chat of the pair or creates one with last as snapshot.
	CreateChat(ctx context.Context, a, b string, last *models.LastMessage) (*models.Chat, error)
	// UpsertChatSnapshot creates the chat of the pair if needed and sets its snapshot and updatedAt.
	UpsertChatSnapshot(ctx context.Context, a, b string, last models.LastMessage) (*models.Chat, error)
	UpdateChatSnapshot(ctx context.Context, chatID string, last models.LastMessage) error
	GetChat(ctx context.Context, chatID string) (*models.Chat, error)
	// ListChats returns the chats of userID, most recently updated first.
	ListChats(ctx context.Context, userID string) ([]models.Chat, error)
	// SearchChats returns the chats of userID that also include participant.
	SearchChats(ctx context.Context, userID, participant string) ([]models.Chat, error)
	// DeleteChat removes a chat and all of its messages. Only participants may delete.
	DeleteChat(ctx context.Context, chatID, caller string) error

	// InsertMessage stores an unread message.
	InsertMessage(ctx context.Context, chatID, sender, receiver, text string) (*models.Message, error)
	// ListMessages returns a page of the chat history, oldest first.
	ListMessages(ctx context.Context, chatID string, limit, skip int64) ([]models.Message, error)
	// MarkRead flips every unread message addressed to receiver in the chat. It returns the count.
	MarkRead(ctx context.Context, chatID, receiver string) (int64, error)
	// DeleteMessage removes one message. Only its sender may delete it.
	DeleteMessage(ctx context.Context, chatID, messageID, caller string) error
	CountUnreadByChat(ctx context.Context, receiver string) ([]models.UnreadCount, error)

	EnsureIndexes(ctx context.Context) error
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Option alters the defaults of a store under construction.
type Option interface {
	apply(*options)
}

type optionFunc func(o *options)

func (f optionFunc) apply(o *options) { f(o) }

type options struct {
	timeout time.Duration
}

func defaultOptions() options {
	return options{timeout: 5 * time.Second}
}

// Timeout bounds every single store call. Zero disables the deadline.
func Timeout(d time.Duration) Option {
	return optionFunc(func(o *options) {
		o.timeout = d
	})
}

func (o options) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.timeout)
}

func validatePair(a, b string) error {
	if strings.TrimSpace(a) == "" || strings.TrimSpace(b) == "" || a == b {
		return ErrInvalidParticipants
	}
	return nil
}
