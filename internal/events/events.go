// Package events publishes chat lifecycle events for downstream consumers.
package events

import (
	"context"
	"encoding/json"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const (
	TypeMessageCreated = "message.created"
	TypeMessageDeleted = "message.deleted"
	TypeMessagesRead   = "messages.read"
	TypeChatDeleted    = "chat.deleted"
)

// Event is the payload written to the topic. Records are keyed by ChatID so
// the events of one chat stay ordered within a partition.
type Event struct {
	Type      string    `json:"type"`
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId,omitempty"`
	Actor     string    `json:"actor"`
	Receiver  string    `json:"receiver,omitempty"`
	Text      string    `json:"text,omitempty"`
	Count     int64     `json:"count,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (Nop) Close() error { return nil }

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// KafkaPublisher writes events as JSON records to one topic.
type KafkaPublisher struct {
	writer messageWriter
	logger *zap.SugaredLogger
}

// NewKafkaPublisher creates a synchronous writer acknowledged by all replicas.
func NewKafkaPublisher(logger *zap.SugaredLogger, brokers []string, topic string) *KafkaPublisher {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	logger.Infow("kafka publisher ready", "brokers", brokers, "topic", topic)
	return &KafkaPublisher{writer: w, logger: logger}
}

func (p *KafkaPublisher) Publish(ctx context.Context, e Event) error {
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return p.writer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte(e.ChatID),
		Value: b,
		Time:  e.At,
		Headers: []kafkago.Header{
			{Key: "type", Value: []byte(e.Type)},
		},
	})
}

func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Emit publishes e and logs a failure instead of returning it. Event delivery
// never fails the user operation that produced it.
func Emit(ctx context.Context, p Publisher, logger *zap.SugaredLogger, e Event) {
	if err := p.Publish(ctx, e); err != nil {
		logger.Warnw("publish event failed", "type", e.Type, "chatId", e.ChatID, "error", err)
	}
}
