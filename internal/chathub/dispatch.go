package chathub

import (
	"context"
	"errors"
	"protalent/backend/internal/events"
	"protalent/backend/internal/metrics"
	"protalent/backend/internal/models"
	"strings"
	"time"
)

var (
	ErrSenderMismatch = errors.New("sender does not match the authenticated user")
	ErrSelfMessage    = errors.New("sender and target must differ")
	ErrNotStored      = errors.New("message could not be stored")
	ErrRateLimited    = errors.New("rate limited")
)

// Dispatch decodes one frame from c and handles it. Frames of a connection are
// dispatched one at a time, in arrival order.
func (h *Hub) Dispatch(ctx context.Context, c Client, frame []byte) {
	in, err := h.decoder.Decode(frame)
	if err != nil {
		metrics.InboundEvents.WithLabelValues(eventLabel(in.Event), "invalid").Inc()
		h.logger.Debugw("invalid frame", "conn", c.ID(), "event", in.Event, "error", err)
		h.reject(c, in.Event, err)
		return
	}

	switch p := in.Payload.(type) {
	case models.JoinChat:
		h.handleJoin(ctx, c, p)
	case models.LeaveChat:
		h.leave(ctx, c, p.RoomID)
	case models.ChatMessage:
		err = h.handleSendMessage(ctx, c, p)
	case models.Typing:
		err = h.handleTyping(ctx, c, in.Event, p)
	case models.LegacySend:
		err = h.handleLegacySend(ctx, c, p)
	}

	if err != nil {
		metrics.InboundEvents.WithLabelValues(in.Event, "rejected").Inc()
		h.reject(c, in.Event, err)
		return
	}
	metrics.InboundEvents.WithLabelValues(in.Event, "ok").Inc()
}

// reject sends an error event back to the offending connection only.
func (h *Hub) reject(c Client, event string, err error) {
	h.deliver(c, models.Envelope{
		Event: models.EventError,
		Data:  models.ErrorNotice{Event: event, Error: err.Error()},
	})
}

// handleJoin adds the connection to any room it names. Rooms are not
// authorized; a room that does not carry the caller's id is only logged.
func (h *Hub) handleJoin(ctx context.Context, c Client, p models.JoinChat) {
	if !roomNames(p.RoomID, c.UserID()) {
		h.logger.Warnw("joining a room that does not name the caller",
			"conn", c.ID(), "userId", c.UserID(), "room", p.RoomID)
	}
	h.join(ctx, c, p.RoomID)
}

func roomNames(room, userID string) bool {
	return room == userID ||
		strings.HasPrefix(room, userID+"-") ||
		strings.HasSuffix(room, "-"+userID)
}

// handleSendMessage relays an ephemeral message to the pair's room and, when
// the target has no connection in that room, notifies the target's personal
// room. Nothing is persisted.
func (h *Hub) handleSendMessage(ctx context.Context, c Client, msg models.ChatMessage) error {
	if msg.SenderID != c.UserID() {
		return ErrSenderMismatch
	}
	if msg.TargetID == msg.SenderID {
		return ErrSelfMessage
	}

	room := models.PairKey(msg.SenderID, msg.TargetID)
	h.emitToRoom(ctx, room, c.ID(), models.Envelope{Event: models.EventReceive, Data: msg})

	if !h.isPresent(ctx, room, msg.TargetID) {
		metrics.Notifications.Inc()
		h.emitToRoom(ctx, msg.TargetID, "", models.Envelope{
			Event: models.EventNotification,
			Data:  models.ChatNotification{ChatMessage: msg, Type: "message"},
		})
	}
	return nil
}

func (h *Hub) handleTyping(ctx context.Context, c Client, event string, p models.Typing) error {
	if p.UserID != "" && p.UserID != c.UserID() {
		return ErrSenderMismatch
	}

	out := models.EventUserTyping
	if event == models.EventStopTyping {
		out = models.EventUserStopped
	}
	h.emitToRoom(ctx, p.RoomID, c.ID(), models.Envelope{
		Event: out,
		Data:  models.TypingNotice{UserID: c.UserID()},
	})
	return nil
}

// handleLegacySend persists a message addressed by user id: the pair's chat is
// created or its snapshot refreshed, the message is stored unread, and both
// sides are told.
func (h *Hub) handleLegacySend(ctx context.Context, c Client, p models.LegacySend) error {
	from := c.UserID()
	if p.To == from {
		return ErrSelfMessage
	}

	chat, err := h.Storage.UpsertChatSnapshot(ctx, from, p.To, models.LastMessage{
		Text:      p.Text,
		Sender:    from,
		Timestamp: time.Now().UTC(),
	})
	if err != nil {
		h.logger.Errorw("upsert chat failed", "from", from, "to", p.To, "error", err)
		return ErrNotStored
	}

	msg, err := h.Storage.InsertMessage(ctx, chat.ID, from, p.To, p.Text)
	if err != nil {
		h.logger.Errorw("insert message failed", "chatId", chat.ID, "from", from, "error", err)
		return ErrNotStored
	}

	h.emitToRoom(ctx, p.To, "", models.Envelope{Event: models.EventLegacyReceive, Data: msg})
	h.deliver(c, models.Envelope{Event: models.EventLegacySent, Data: msg})

	events.Emit(ctx, h.Events, h.logger, events.Event{
		Type:      events.TypeMessageCreated,
		ChatID:    chat.ID,
		MessageID: msg.ID,
		Actor:     from,
		Receiver:  p.To,
		Text:      msg.Text,
		At:        msg.Timestamp,
	})
	return nil
}

func eventLabel(event string) string {
	if knownEvent(event) {
		return event
	}
	return "unknown"
}
