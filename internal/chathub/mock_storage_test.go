package chathub_test

import (
	"context"
	"protalent/backend/internal/models"

	"github.com/stretchr/testify/mock"
)

// MockStorage is a testify mock of storage.Storage. Unexpected calls panic,
// which is how tests assert that ephemeral events never reach the store.
type MockStorage struct {
	mock.Mock
}

func (m *MockStorage) FindChatByParticipants(ctx context.Context, a, b string) (*models.Chat, error) {
	args := m.Called(ctx, a, b)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) CreateChat(ctx context.Context, a, b string, last *models.LastMessage) (*models.Chat, error) {
	args := m.Called(ctx, a, b, last)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) UpsertChatSnapshot(ctx context.Context, a, b string, last models.LastMessage) (*models.Chat, error) {
	args := m.Called(ctx, a, b, last)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) UpdateChatSnapshot(ctx context.Context, chatID string, last models.LastMessage) error {
	args := m.Called(ctx, chatID, last)
	return args.Error(0)
}

func (m *MockStorage) GetChat(ctx context.Context, chatID string) (*models.Chat, error) {
	args := m.Called(ctx, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Chat), args.Error(1)
}

func (m *MockStorage) ListChats(ctx context.Context, userID string) ([]models.Chat, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockStorage) SearchChats(ctx context.Context, userID, participant string) ([]models.Chat, error) {
	args := m.Called(ctx, userID, participant)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Chat), args.Error(1)
}

func (m *MockStorage) DeleteChat(ctx context.Context, chatID, caller string) error {
	args := m.Called(ctx, chatID, caller)
	return args.Error(0)
}

func (m *MockStorage) InsertMessage(ctx context.Context, chatID, sender, receiver, text string) (*models.Message, error) {
	args := m.Called(ctx, chatID, sender, receiver, text)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Message), args.Error(1)
}

func (m *MockStorage) ListMessages(ctx context.Context, chatID string, limit, skip int64) ([]models.Message, error) {
	args := m.Called(ctx, chatID, limit, skip)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Message), args.Error(1)
}

func (m *MockStorage) MarkRead(ctx context.Context, chatID, receiver string) (int64, error) {
	args := m.Called(ctx, chatID, receiver)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockStorage) DeleteMessage(ctx context.Context, chatID, messageID, caller string) error {
	args := m.Called(ctx, chatID, messageID, caller)
	return args.Error(0)
}

func (m *MockStorage) CountUnreadByChat(ctx context.Context, receiver string) ([]models.UnreadCount, error) {
	args := m.Called(ctx, receiver)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.UnreadCount), args.Error(1)
}

func (m *MockStorage) EnsureIndexes(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockStorage) Close(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}
