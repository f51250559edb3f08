package chathub

import (
	"errors"
	"fmt"
	"protalent/backend/internal/models"

	"github.com/valyala/fastjson"
)

var (
	ErrInvalidFrame = errors.New("invalid frame")
	ErrUnknownEvent = errors.New("unknown event")
)

// Inbound is a decoded client frame. Payload holds one of models.JoinChat,
// models.LeaveChat, models.ChatMessage, models.Typing or models.LegacySend.
type Inbound struct {
	Event   string
	Payload interface{}
}

// Decoder validates client frames of the form {"event": ..., "data": {...}}.
// It is safe for concurrent use.
type Decoder struct {
	parsers fastjson.ParserPool
}

func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode returns the typed payload of frame. The event name is filled in
// whenever it could be read, even when err is not nil.
func (d *Decoder) Decode(frame []byte) (Inbound, error) {
	p := d.parsers.Get()
	defer d.parsers.Put(p)

	v, err := p.ParseBytes(frame)
	if err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrInvalidFrame, err)
	}
	if v.Type() != fastjson.TypeObject {
		return Inbound{}, fmt.Errorf("%w: frame must be an object", ErrInvalidFrame)
	}

	in := Inbound{Event: string(v.GetStringBytes("event"))}
	if in.Event == "" {
		return in, fmt.Errorf("%w: missing event", ErrInvalidFrame)
	}

	data := v.Get("data")
	if data == nil || data.Type() != fastjson.TypeObject {
		if !knownEvent(in.Event) {
			return in, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
		}
		return in, fmt.Errorf("%w: data must be an object", ErrInvalidFrame)
	}

	switch in.Event {
	case models.EventJoinChat:
		var p models.JoinChat
		if p.RoomID, err = identifier(data, "roomId", true); err != nil {
			return in, err
		}
		if p.UserID, err = identifier(data, "userId", false); err != nil {
			return in, err
		}
		if p.TargetUserID, err = identifier(data, "targetUserId", false); err != nil {
			return in, err
		}
		in.Payload = p

	case models.EventLeaveChat:
		var p models.LeaveChat
		if p.RoomID, err = identifier(data, "roomId", true); err != nil {
			return in, err
		}
		in.Payload = p

	case models.EventSendMessage:
		var p models.ChatMessage
		if p.Content, err = text(data, "content"); err != nil {
			return in, err
		}
		if p.SenderID, err = identifier(data, "senderId", true); err != nil {
			return in, err
		}
		if p.TargetID, err = identifier(data, "targetId", true); err != nil {
			return in, err
		}
		if p.SenderName, err = optionalText(data, "senderName"); err != nil {
			return in, err
		}
		in.Payload = p

	case models.EventTyping, models.EventStopTyping:
		var p models.Typing
		if p.RoomID, err = identifier(data, "roomId", true); err != nil {
			return in, err
		}
		if p.UserID, err = identifier(data, "userId", false); err != nil {
			return in, err
		}
		in.Payload = p

	case models.EventLegacySend:
		var p models.LegacySend
		if p.To, err = identifier(data, "to", true); err != nil {
			return in, err
		}
		if p.Text, err = text(data, "text"); err != nil {
			return in, err
		}
		in.Payload = p

	default:
		return in, fmt.Errorf("%w: %q", ErrUnknownEvent, in.Event)
	}
	return in, nil
}

func knownEvent(event string) bool {
	switch event {
	case models.EventJoinChat, models.EventLeaveChat, models.EventSendMessage,
		models.EventTyping, models.EventStopTyping, models.EventLegacySend:
		return true
	}
	return false
}

// identifier reads a user or room id. Clients send numeric ids as JSON
// numbers, so both strings and numbers are accepted.
func identifier(data *fastjson.Value, field string, required bool) (string, error) {
	f := data.Get(field)
	if f == nil || f.Type() == fastjson.TypeNull {
		if required {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidFrame, field)
		}
		return "", nil
	}

	switch f.Type() {
	case fastjson.TypeString:
		s := string(f.GetStringBytes())
		if s == "" && required {
			return "", fmt.Errorf("%w: missing %s", ErrInvalidFrame, field)
		}
		return s, nil
	case fastjson.TypeNumber:
		v, err := f.Float64()
		if err != nil {
			return "", fmt.Errorf("%w: %s: %v", ErrInvalidFrame, field, err)
		}
		return models.NumericID(v), nil
	default:
		return "", fmt.Errorf("%w: %s must be a string or number", ErrInvalidFrame, field)
	}
}

func text(data *fastjson.Value, field string) (string, error) {
	s, err := optionalText(data, field)
	if err != nil {
		return "", err
	}
	if s == "" {
		return "", fmt.Errorf("%w: missing %s", ErrInvalidFrame, field)
	}
	return s, nil
}

func optionalText(data *fastjson.Value, field string) (string, error) {
	f := data.Get(field)
	if f == nil || f.Type() == fastjson.TypeNull {
		return "", nil
	}
	if f.Type() != fastjson.TypeString {
		return "", fmt.Errorf("%w: %s must be a string", ErrInvalidFrame, field)
	}
	return string(f.GetStringBytes()), nil
}
