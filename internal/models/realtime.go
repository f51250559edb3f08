package models

// Inbound socket events.
const (
	EventJoinChat      = "join-chat"
	EventLeaveChat     = "leave-chat"
	EventSendMessage   = "send-message"
	EventTyping        = "typing"
	EventStopTyping    = "stop-typing"
	EventLegacySend    = "send_message"
	EventReceive       = "receive-message"
	EventNotification  = "chat-notification"
	EventUserTyping    = "user-typing"
	EventUserStopped   = "user-stopped-typing"
	EventLegacyReceive = "receive_message"
	EventLegacySent    = "message_sent"
	EventError         = "error"
)

// Envelope is the wire frame for both directions: {"event": "...", "data": {...}}.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// JoinChat asks the gateway to add the connection to a conversation room.
type JoinChat struct {
	RoomID       string `json:"roomId"`
	UserID       string `json:"userId,omitempty"`
	TargetUserID string `json:"targetUserId,omitempty"`
}

// LeaveChat removes the connection from a conversation room.
type LeaveChat struct {
	RoomID string `json:"roomId"`
}

// ChatMessage is the transient payload of send-message. It is echoed verbatim
// as receive-message.
type ChatMessage struct {
	Content    string `json:"content"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName,omitempty"`
	TargetID   string `json:"targetId"`
}

// ChatNotification is delivered to the target personal room when the target
// is not looking at the conversation.
type ChatNotification struct {
	ChatMessage
	Type string `json:"type"`
}

// Typing carries typing and stop-typing signals.
type Typing struct {
	RoomID string `json:"roomId"`
	UserID string `json:"userId,omitempty"`
}

// TypingNotice is what the other room members receive.
type TypingNotice struct {
	UserID string `json:"userId"`
}

// LegacySend is the persisted send_message payload; the sender is the
// authenticated identity of the connection.
type LegacySend struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// ErrorNotice reports a rejected or failed inbound event back to its connection.
type ErrorNotice struct {
	Event string `json:"event,omitempty"`
	Error string `json:"error"`
}
