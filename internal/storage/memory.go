package storage

import (
	"context"
	"protalent/backend/internal/models"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore keeps chats and messages in process memory. It backs tests and
// single-node development setups.
type MemoryStore struct {
	mu       sync.RWMutex
	chats    map[string]*models.Chat
	byKey    map[string]string
	messages map[string][]*models.Message
	now      func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		chats:    make(map[string]*models.Chat),
		byKey:    make(map[string]string),
		messages: make(map[string][]*models.Message),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) FindChatByParticipants(_ context.Context, a, b string) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byKey[models.ParticipantsKey(a, b)]
	if !ok {
		return nil, ErrChatNotFound
	}
	return copyChat(s.chats[id]), nil
}

func (s *MemoryStore) CreateChat(_ context.Context, a, b string, last *models.LastMessage) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, _ := s.getOrCreateLocked(a, b, last)
	return copyChat(chat), nil
}

func (s *MemoryStore) UpsertChatSnapshot(_ context.Context, a, b string, last models.LastMessage) (*models.Chat, error) {
	if err := validatePair(a, b); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	chat, created := s.getOrCreateLocked(a, b, &last)
	if !created {
		lm := last
		chat.LastMessage = &lm
		chat.UpdatedAt = s.now()
	}
	return copyChat(chat), nil
}

func (s *MemoryStore) getOrCreateLocked(a, b string, last *models.LastMessage) (*models.Chat, bool) {
	key := models.ParticipantsKey(a, b)
	if id, ok := s.byKey[key]; ok {
		return s.chats[id], false
	}

	now := s.now()
	chat := &models.Chat{
		ID:        uuid.NewString(),
		Users:     []string{a, b},
		Key:       key,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if last != nil {
		lm := *last
		chat.LastMessage = &lm
	}
	s.chats[chat.ID] = chat
	s.byKey[key] = chat.ID
	return chat, true
}

func (s *MemoryStore) UpdateChatSnapshot(_ context.Context, chatID string, last models.LastMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	chat.LastMessage = &last
	chat.UpdatedAt = s.now()
	return nil
}

func (s *MemoryStore) GetChat(_ context.Context, chatID string) (*models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return nil, ErrChatNotFound
	}
	return copyChat(chat), nil
}

func (s *MemoryStore) ListChats(_ context.Context, userID string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]models.Chat, 0)
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) {
			chats = append(chats, *copyChat(chat))
		}
	}
	sortByRecency(chats)
	return chats, nil
}

func (s *MemoryStore) SearchChats(_ context.Context, userID, participant string) ([]models.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	chats := make([]models.Chat, 0)
	for _, chat := range s.chats {
		if chat.HasParticipant(userID) && chat.HasParticipant(participant) {
			chats = append(chats, *copyChat(chat))
		}
	}
	sortByRecency(chats)
	return chats, nil
}

func (s *MemoryStore) DeleteChat(_ context.Context, chatID, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	chat, ok := s.chats[chatID]
	if !ok {
		return ErrChatNotFound
	}
	if !chat.HasParticipant(caller) {
		return ErrNotParticipant
	}

	delete(s.messages, chatID)
	delete(s.byKey, chat.Key)
	delete(s.chats, chatID)
	return nil
}

func (s *MemoryStore) InsertMessage(_ context.Context, chatID, sender, receiver, text string) (*models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.chats[chatID]; !ok {
		return nil, ErrChatNotFound
	}

	ts := s.now()
	history := s.messages[chatID]
	if n := len(history); n > 0 && ts.Before(history[n-1].Timestamp) {
		ts = history[n-1].Timestamp
	}

	msg := &models.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: ts,
	}
	s.messages[chatID] = append(history, msg)

	out := *msg
	return &out, nil
}

func (s *MemoryStore) ListMessages(_ context.Context, chatID string, limit, skip int64) ([]models.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	history := s.messages[chatID]
	page := make([]models.Message, 0)
	if skip < 0 {
		skip = 0
	}
	for i := skip; i < int64(len(history)); i++ {
		if limit > 0 && int64(len(page)) >= limit {
			break
		}
		page = append(page, *history[i])
	}
	return page, nil
}

func (s *MemoryStore) MarkRead(_ context.Context, chatID, receiver string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for _, msg := range s.messages[chatID] {
		if msg.Receiver == receiver && !msg.Read {
			msg.Read = true
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteMessage(_ context.Context, chatID, messageID, caller string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	history := s.messages[chatID]
	for i, msg := range history {
		if msg.ID != messageID {
			continue
		}
		if msg.Sender != caller {
			return ErrNotSender
		}
		s.messages[chatID] = append(history[:i:i], history[i+1:]...)
		return nil
	}
	return ErrMessageNotFound
}

func (s *MemoryStore) CountUnreadByChat(_ context.Context, receiver string) ([]models.UnreadCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make([]models.UnreadCount, 0)
	for chatID, history := range s.messages {
		var n int64
		for _, msg := range history {
			if msg.Receiver == receiver && !msg.Read {
				n++
			}
		}
		if n > 0 {
			counts = append(counts, models.UnreadCount{ChatID: chatID, Unread: n})
		}
	}
	sort.Slice(counts, func(i, j int) bool { return counts[i].ChatID < counts[j].ChatID })
	return counts, nil
}

func (s *MemoryStore) EnsureIndexes(context.Context) error { return nil }

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close(context.Context) error { return nil }

func copyChat(c *models.Chat) *models.Chat {
	out := *c
	out.Users = append([]string(nil), c.Users...)
	if c.LastMessage != nil {
		lm := *c.LastMessage
		out.LastMessage = &lm
	}
	return &out
}

func sortByRecency(chats []models.Chat) {
	sort.SliceStable(chats, func(i, j int) bool {
		if chats[i].UpdatedAt.Equal(chats[j].UpdatedAt) {
			return chats[i].ID < chats[j].ID
		}
		return chats[i].UpdatedAt.After(chats[j].UpdatedAt)
	})
}
