package models

import (
	"sort"
	"strconv"
	"strings"
	"time"
)

// LastMessage is the denormalized snapshot of the newest message of a chat.
type LastMessage struct {
	Text      string    `json:"text"`
	Sender    string    `json:"sender"`
	Timestamp time.Time `json:"timestamp"`
}

// Chat is a conversation between exactly two participants.
// Key is unique across the store, which keeps at most one chat per pair.
type Chat struct {
	ID          string       `json:"_id"`
	Users       []string     `json:"users"`
	Key         string       `json:"-"`
	LastMessage *LastMessage `json:"lastMessage"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

// HasParticipant reports whether userID is one of the chat users.
func (c *Chat) HasParticipant(userID string) bool {
	for _, u := range c.Users {
		if u == userID {
			return true
		}
	}
	return false
}

// Other returns the participant that is not userID.
func (c *Chat) Other(userID string) string {
	for _, u := range c.Users {
		if u != userID {
			return u
		}
	}
	return ""
}

// PairKey names the conversation room of an unordered pair: both ids sorted
// and joined with "-". Ids containing "-" can make two pairs share a room
// name, so it must not be used to identify stored chats; see ParticipantsKey.
func PairKey(a, b string) string {
	pair := []string{a, b}
	sort.Strings(pair)
	return strings.Join(pair, "-")
}

// SortedPair returns both identities in PairKey order.
func SortedPair(a, b string) []string {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair
}

// ParticipantsKey is the store uniqueness key of an unordered pair. The first
// sorted id is length-prefixed, so distinct pairs never produce the same key.
func ParticipantsKey(a, b string) string {
	pair := SortedPair(a, b)
	return strconv.Itoa(len(pair[0])) + ":" + pair[0] + ":" + pair[1]
}

// NumericID renders an id received as a JSON number in its shortest decimal
// form, so 7, 7.0 and 7e0 all name the same identity.
func NumericID(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
