package models

import "time"

// Message is one persisted chat line. Read only ever moves from false to true.
type Message struct {
	ID        string    `json:"_id"`
	ChatID    string    `json:"chatId"`
	Sender    string    `json:"sender"`
	Receiver  string    `json:"receiver"`
	Text      string    `json:"text"`
	Read      bool      `json:"read"`
	Timestamp time.Time `json:"timestamp"`
}

// UnreadCount is the number of unread messages a receiver has in one chat.
type UnreadCount struct {
	ChatID string `json:"chatId"`
	Unread int64  `json:"unread"`
}
