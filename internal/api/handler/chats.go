package handler

import (
	"errors"
	"net/http"
	"protalent/backend/internal/config"
	"protalent/backend/internal/events"
	"protalent/backend/internal/models"
	"protalent/backend/internal/storage"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// ListChats returns the caller's chats, most recently active first.
func (h *Handler) ListChats(c *gin.Context) {
	chats, err := h.Storage.ListChats(c.Request.Context(), currentUser(c))
	if err != nil {
		h.storeFailure(c, "chats_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// ListMessages returns one page of a chat's history in chronological order.
func (h *Handler) ListMessages(c *gin.Context) {
	limit, skip, ok := pagination(c)
	if !ok {
		h.fail(c, http.StatusBadRequest, "invalid_pagination", nil)
		return
	}

	chatID := c.Param("chatId")
	if !h.authorizeChat(c, chatID, "messages_list_failed") {
		return
	}

	msgs, err := h.Storage.ListMessages(c.Request.Context(), chatID, limit, skip)
	if err != nil {
		h.storeFailure(c, "messages_list_failed", err)
		return
	}
	c.JSON(http.StatusOK, msgs)
}

// MarkRead flags every message of the chat addressed to the caller as read.
func (h *Handler) MarkRead(c *gin.Context) {
	chatID := c.Param("chatId")
	if !h.authorizeChat(c, chatID, "mark_read_failed") {
		return
	}

	user := currentUser(c)
	updated, err := h.Storage.MarkRead(c.Request.Context(), chatID, user)
	if err != nil {
		h.storeFailure(c, "mark_read_failed", err)
		return
	}

	if updated > 0 {
		events.Emit(c.Request.Context(), h.Events, h.logger, events.Event{
			Type:     events.TypeMessagesRead,
			ChatID:   chatID,
			Actor:    user,
			Receiver: user,
			Count:    updated,
			At:       time.Now().UTC(),
		})
	}
	c.JSON(http.StatusOK, messageResponse{Mensaje: h.message(c, "mark_read_ok"), Updated: &updated})
}

type startChatRequest struct {
	OtherUserID interface{} `json:"otherUserId"`
}

// StartChat returns the caller's chat with otherUserId, creating it when the
// pair has none yet.
func (h *Handler) StartChat(c *gin.Context) {
	var req startChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, "invalid_body", nil)
		return
	}

	other := identifier(req.OtherUserID)
	if other == "" {
		h.fail(c, http.StatusBadRequest, "other_user_missing", nil)
		return
	}
	user := currentUser(c)
	if other == user {
		h.fail(c, http.StatusBadRequest, "invalid_participants", nil)
		return
	}

	chat, err := h.Storage.CreateChat(c.Request.Context(), user, other, nil)
	if err != nil {
		h.storeFailure(c, "start_chat_failed", err)
		return
	}
	c.JSON(http.StatusOK, chat)
}

// SearchChats lists the caller's chats that also include the userId query parameter.
func (h *Handler) SearchChats(c *gin.Context) {
	participant := strings.TrimSpace(c.Query("userId"))
	if participant == "" {
		h.fail(c, http.StatusBadRequest, "user_id_missing", nil)
		return
	}

	chats, err := h.Storage.SearchChats(c.Request.Context(), currentUser(c), participant)
	if err != nil {
		h.storeFailure(c, "search_failed", err)
		return
	}
	c.JSON(http.StatusOK, chats)
}

// DeleteChat removes a chat and its whole history. Only participants may do it.
func (h *Handler) DeleteChat(c *gin.Context) {
	chatID := c.Param("chatId")
	user := currentUser(c)

	err := h.Storage.DeleteChat(c.Request.Context(), chatID, user)
	if errors.Is(err, storage.ErrNotParticipant) {
		h.fail(c, http.StatusForbidden, "chat_delete_forbidden", nil)
		return
	}
	if err != nil {
		h.storeFailure(c, "chat_delete_failed", err)
		return
	}

	events.Emit(c.Request.Context(), h.Events, h.logger, events.Event{
		Type:   events.TypeChatDeleted,
		ChatID: chatID,
		Actor:  user,
		At:     time.Now().UTC(),
	})
	c.JSON(http.StatusOK, messageResponse{Mensaje: h.message(c, "chat_deleted")})
}

// DeleteMessage removes one message. Only its sender may do it.
func (h *Handler) DeleteMessage(c *gin.Context) {
	chatID, messageID := c.Param("chatId"), c.Param("messageId")
	user := currentUser(c)

	err := h.Storage.DeleteMessage(c.Request.Context(), chatID, messageID, user)
	if errors.Is(err, storage.ErrNotSender) {
		h.fail(c, http.StatusForbidden, "message_delete_forbidden", nil)
		return
	}
	if err != nil {
		h.storeFailure(c, "message_delete_failed", err)
		return
	}

	events.Emit(c.Request.Context(), h.Events, h.logger, events.Event{
		Type:      events.TypeMessageDeleted,
		ChatID:    chatID,
		MessageID: messageID,
		Actor:     user,
		At:        time.Now().UTC(),
	})
	c.JSON(http.StatusOK, messageResponse{Mensaje: h.message(c, "message_deleted")})
}

// UnreadCount returns the caller's unread messages grouped by chat.
func (h *Handler) UnreadCount(c *gin.Context) {
	counts, err := h.Storage.CountUnreadByChat(c.Request.Context(), currentUser(c))
	if err != nil {
		h.storeFailure(c, "unread_failed", err)
		return
	}
	c.JSON(http.StatusOK, counts)
}

// Health reports whether the store answers.
func (h *Handler) Health(c *gin.Context) {
	if err := h.Storage.Ping(c.Request.Context()); err != nil {
		h.logger.Warnw("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// authorizeChat loads chatID and aborts the request unless the caller takes part in it.
func (h *Handler) authorizeChat(c *gin.Context, chatID, failureKey string) bool {
	chat, err := h.Storage.GetChat(c.Request.Context(), chatID)
	if err != nil {
		h.storeFailure(c, failureKey, err)
		return false
	}
	if !chat.HasParticipant(currentUser(c)) {
		h.fail(c, http.StatusForbidden, "chat_forbidden", nil)
		return false
	}
	return true
}

// pagination reads limit and skip. A missing or zero limit means the default
// page, and limits above the maximum are capped.
func pagination(c *gin.Context) (limit, skip int64, ok bool) {
	limit = config.DefaultPageSize
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		if n > 0 {
			limit = n
		}
	}
	if limit > config.MaxPageSize {
		limit = config.MaxPageSize
	}

	if raw := c.Query("skip"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			return 0, 0, false
		}
		skip = n
	}
	return limit, skip, true
}

// identifier accepts ids sent either as JSON strings or numbers.
func identifier(v interface{}) string {
	switch id := v.(type) {
	case string:
		return strings.TrimSpace(id)
	case float64:
		return models.NumericID(id)
	default:
		return ""
	}
}
