package storage_test

import (
	"context"
	"os"
	"protalent/backend/internal/models"
	"protalent/backend/internal/storage"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// users returns n identities unique to the running test so suites can share a database.
func users(n int) []string {
	prefix := uuid.NewString()[:8]
	out := make([]string, n)
	for i := range out {
		out[i] = prefix + "-" + string(rune('a'+i))
	}
	return out
}

func TestMemoryStore(t *testing.T) {
	runConformance(t, storage.NewMemoryStore())
}

func TestMongoStore(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}
	dbName := os.Getenv("MONGO_TEST_DB")
	if dbName == "" {
		dbName = "protalent_test"
	}

	s, err := storage.NewMongoStore(context.Background(), zap.NewNop().Sugar(), uri, dbName)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	require.NoError(t, s.EnsureIndexes(context.Background()))

	runConformance(t, s)
}

func TestSQLStore(t *testing.T) {
	dsn := os.Getenv("POSTGRES_TEST_DSN")
	if dsn == "" {
		t.Skip("POSTGRES_TEST_DSN not set")
	}

	s, err := storage.NewSQLStore(zap.NewNop().Sugar(), dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(context.Background()) })
	require.NoError(t, s.EnsureIndexes(context.Background()))

	runConformance(t, s)
}

func runConformance(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	t.Run("chat lookup is order independent", func(t *testing.T) {
		u := users(2)

		_, err := s.FindChatByParticipants(ctx, u[0], u[1])
		require.ErrorIs(t, err, storage.ErrChatNotFound)

		created, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		assert.Nil(t, created.LastMessage)
		assert.ElementsMatch(t, u, created.Users)

		again, err := s.CreateChat(ctx, u[1], u[0], nil)
		require.NoError(t, err)
		assert.Equal(t, created.ID, again.ID)

		found, err := s.FindChatByParticipants(ctx, u[1], u[0])
		require.NoError(t, err)
		assert.Equal(t, created.ID, found.ID)
	})

	t.Run("invalid participants", func(t *testing.T) {
		u := users(1)

		_, err := s.CreateChat(ctx, u[0], u[0], nil)
		assert.ErrorIs(t, err, storage.ErrInvalidParticipants)
		_, err = s.UpsertChatSnapshot(ctx, u[0], "", models.LastMessage{Text: "x"})
		assert.ErrorIs(t, err, storage.ErrInvalidParticipants)
	})

	t.Run("concurrent upserts create one chat", func(t *testing.T) {
		u := users(2)
		const workers = 16

		ids := make([]string, workers)
		errs := make([]error, workers)
		var wg sync.WaitGroup
		for i := 0; i < workers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				a, b := u[0], u[1]
				if i%2 == 1 {
					a, b = b, a
				}
				chat, err := s.UpsertChatSnapshot(ctx, a, b, models.LastMessage{Text: "hi", Sender: a, Timestamp: time.Now().UTC()})
				errs[i] = err
				if err == nil {
					ids[i] = chat.ID
				}
			}(i)
		}
		wg.Wait()

		for i := 0; i < workers; i++ {
			require.NoError(t, errs[i])
			assert.Equal(t, ids[0], ids[i])
		}

		chats, err := s.ListChats(ctx, u[0])
		require.NoError(t, err)
		assert.Len(t, chats, 1)
	})

	t.Run("snapshot upsert overwrites the last message", func(t *testing.T) {
		u := users(2)

		first, err := s.UpsertChatSnapshot(ctx, u[0], u[1], models.LastMessage{Text: "one", Sender: u[0], Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		require.NotNil(t, first.LastMessage)
		assert.Equal(t, "one", first.LastMessage.Text)

		second, err := s.UpsertChatSnapshot(ctx, u[1], u[0], models.LastMessage{Text: "two", Sender: u[1], Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		require.NotNil(t, second.LastMessage)
		assert.Equal(t, "two", second.LastMessage.Text)
		assert.Equal(t, u[1], second.LastMessage.Sender)
		assert.False(t, second.UpdatedAt.Before(first.UpdatedAt))

		require.NoError(t, s.UpdateChatSnapshot(ctx, first.ID, models.LastMessage{Text: "three", Sender: u[0]}))
		got, err := s.GetChat(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, "three", got.LastMessage.Text)
	})

	t.Run("history is ordered and paginated", func(t *testing.T) {
		u := users(2)
		chat, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)

		texts := []string{"m0", "m1", "m2", "m3", "m4"}
		for _, text := range texts {
			_, err := s.InsertMessage(ctx, chat.ID, u[0], u[1], text)
			require.NoError(t, err)
		}

		all, err := s.ListMessages(ctx, chat.ID, 50, 0)
		require.NoError(t, err)
		require.Len(t, all, len(texts))
		for i, msg := range all {
			assert.Equal(t, texts[i], msg.Text)
			assert.Equal(t, chat.ID, msg.ChatID)
			assert.False(t, msg.Read)
			if i > 0 {
				assert.False(t, msg.Timestamp.Before(all[i-1].Timestamp))
			}
		}

		page, err := s.ListMessages(ctx, chat.ID, 2, 1)
		require.NoError(t, err)
		require.Len(t, page, 2)
		assert.Equal(t, "m1", page[0].Text)
		assert.Equal(t, "m2", page[1].Text)

		tail, err := s.ListMessages(ctx, chat.ID, 50, 4)
		require.NoError(t, err)
		require.Len(t, tail, 1)
		assert.Equal(t, "m4", tail[0].Text)

		empty, err := s.ListMessages(ctx, chat.ID, 50, 10)
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("hyphenated ids never share a chat", func(t *testing.T) {
		p := uuid.NewString()[:8]
		l, m, r := "0"+p, "1"+p, "2"+p
		require.Equal(t, models.PairKey(l+"-"+m, r), models.PairKey(l, m+"-"+r))

		first, err := s.UpsertChatSnapshot(ctx, l+"-"+m, r, models.LastMessage{Text: "one", Sender: r, Timestamp: time.Now().UTC()})
		require.NoError(t, err)
		second, err := s.UpsertChatSnapshot(ctx, l, m+"-"+r, models.LastMessage{Text: "two", Sender: l, Timestamp: time.Now().UTC()})
		require.NoError(t, err)

		assert.NotEqual(t, first.ID, second.ID)
		assert.ElementsMatch(t, []string{l + "-" + m, r}, first.Users)
		assert.ElementsMatch(t, []string{l, m + "-" + r}, second.Users)
		assert.Equal(t, "one", first.LastMessage.Text)

		found, err := s.FindChatByParticipants(ctx, m+"-"+r, l)
		require.NoError(t, err)
		assert.Equal(t, second.ID, found.ID)

		_, err = s.InsertMessage(ctx, second.ID, l, m+"-"+r, "privado")
		require.NoError(t, err)
		other, err := s.ListMessages(ctx, first.ID, 50, 0)
		require.NoError(t, err)
		assert.Empty(t, other)
	})

	t.Run("messages never outlive their chat", func(t *testing.T) {
		u := users(2)
		for round := 0; round < 8; round++ {
			chat, err := s.CreateChat(ctx, u[0], u[1], nil)
			require.NoError(t, err)

			var wg sync.WaitGroup
			var deleteErr error
			wg.Add(2)
			go func() {
				defer wg.Done()
				for i := 0; i < 5; i++ {
					_, _ = s.InsertMessage(ctx, chat.ID, u[0], u[1], "late")
				}
			}()
			go func() {
				defer wg.Done()
				deleteErr = s.DeleteChat(ctx, chat.ID, u[0])
			}()
			wg.Wait()
			require.NoError(t, deleteErr)

			left, err := s.ListMessages(ctx, chat.ID, 50, 0)
			if err != nil {
				assert.ErrorIs(t, err, storage.ErrChatNotFound)
				continue
			}
			assert.Empty(t, left, "round %d", round)
		}
	})

	t.Run("insert into missing chat", func(t *testing.T) {
		u := users(2)
		chat, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		require.NoError(t, s.DeleteChat(ctx, chat.ID, u[0]))

		_, err = s.InsertMessage(ctx, chat.ID, u[0], u[1], "late")
		assert.ErrorIs(t, err, storage.ErrChatNotFound)
	})

	t.Run("mark read only touches the receiver", func(t *testing.T) {
		u := users(2)
		chat, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)

		for _, text := range []string{"a", "b"} {
			_, err := s.InsertMessage(ctx, chat.ID, u[0], u[1], text)
			require.NoError(t, err)
		}
		_, err = s.InsertMessage(ctx, chat.ID, u[1], u[0], "reply")
		require.NoError(t, err)

		counts, err := s.CountUnreadByChat(ctx, u[1])
		require.NoError(t, err)
		assert.Equal(t, []models.UnreadCount{{ChatID: chat.ID, Unread: 2}}, counts)

		n, err := s.MarkRead(ctx, chat.ID, u[1])
		require.NoError(t, err)
		assert.EqualValues(t, 2, n)

		n, err = s.MarkRead(ctx, chat.ID, u[1])
		require.NoError(t, err)
		assert.Zero(t, n)

		counts, err = s.CountUnreadByChat(ctx, u[1])
		require.NoError(t, err)
		assert.Empty(t, counts)

		counts, err = s.CountUnreadByChat(ctx, u[0])
		require.NoError(t, err)
		assert.Equal(t, []models.UnreadCount{{ChatID: chat.ID, Unread: 1}}, counts)

		msgs, err := s.ListMessages(ctx, chat.ID, 50, 0)
		require.NoError(t, err)
		for _, msg := range msgs {
			assert.Equal(t, msg.Receiver == u[1], msg.Read, msg.Text)
		}
	})

	t.Run("chats are listed by recency", func(t *testing.T) {
		u := users(3)
		older, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
		newer, err := s.CreateChat(ctx, u[0], u[2], nil)
		require.NoError(t, err)

		chats, err := s.ListChats(ctx, u[0])
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, newer.ID, chats[0].ID)

		time.Sleep(10 * time.Millisecond)
		_, err = s.UpsertChatSnapshot(ctx, u[1], u[0], models.LastMessage{Text: "bump", Sender: u[1], Timestamp: time.Now().UTC()})
		require.NoError(t, err)

		chats, err = s.ListChats(ctx, u[0])
		require.NoError(t, err)
		require.Len(t, chats, 2)
		assert.Equal(t, older.ID, chats[0].ID)

		found, err := s.SearchChats(ctx, u[0], u[2])
		require.NoError(t, err)
		require.Len(t, found, 1)
		assert.Equal(t, newer.ID, found[0].ID)

		none, err := s.SearchChats(ctx, u[1], u[2])
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("delete chat cascades", func(t *testing.T) {
		u := users(3)
		chat, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		_, err = s.InsertMessage(ctx, chat.ID, u[0], u[1], "bye")
		require.NoError(t, err)

		err = s.DeleteChat(ctx, chat.ID, u[2])
		require.ErrorIs(t, err, storage.ErrNotParticipant)

		require.NoError(t, s.DeleteChat(ctx, chat.ID, u[1]))

		_, err = s.GetChat(ctx, chat.ID)
		assert.ErrorIs(t, err, storage.ErrChatNotFound)
		msgs, err := s.ListMessages(ctx, chat.ID, 50, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
		counts, err := s.CountUnreadByChat(ctx, u[1])
		require.NoError(t, err)
		assert.Empty(t, counts)

		err = s.DeleteChat(ctx, chat.ID, u[1])
		assert.ErrorIs(t, err, storage.ErrChatNotFound)

		again, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		assert.NotEqual(t, chat.ID, again.ID)
	})

	t.Run("only the sender deletes a message", func(t *testing.T) {
		u := users(2)
		chat, err := s.CreateChat(ctx, u[0], u[1], nil)
		require.NoError(t, err)
		msg, err := s.InsertMessage(ctx, chat.ID, u[0], u[1], "oops")
		require.NoError(t, err)

		err = s.DeleteMessage(ctx, chat.ID, msg.ID, u[1])
		require.ErrorIs(t, err, storage.ErrNotSender)

		require.NoError(t, s.DeleteMessage(ctx, chat.ID, msg.ID, u[0]))

		err = s.DeleteMessage(ctx, chat.ID, msg.ID, u[0])
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)

		msgs, err := s.ListMessages(ctx, chat.ID, 50, 0)
		require.NoError(t, err)
		assert.Empty(t, msgs)
	})

	t.Run("unknown ids", func(t *testing.T) {
		_, err := s.GetChat(ctx, "does-not-exist")
		assert.ErrorIs(t, err, storage.ErrChatNotFound)
		err = s.UpdateChatSnapshot(ctx, "does-not-exist", models.LastMessage{Text: "x"})
		assert.ErrorIs(t, err, storage.ErrChatNotFound)
		err = s.DeleteMessage(ctx, "does-not-exist", "nope", "someone")
		assert.ErrorIs(t, err, storage.ErrMessageNotFound)
	})
}
