// Package chathub is the realtime chat gateway: it tracks connections and
// rooms and routes client events between them.
package chathub

import (
	"context"
	"encoding/json"
	"protalent/backend/internal/events"
	"protalent/backend/internal/metrics"
	"protalent/backend/internal/models"
	"protalent/backend/internal/storage"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Broker relays room emissions and room membership between gateway processes.
// Memberships are held per node and stop counting once the node misses its
// heartbeats. *storage.RedisBroker implements it.
type Broker interface {
	Publish(ctx context.Context, e storage.Emission) error
	Subscribe(ctx context.Context) (<-chan storage.Emission, error)
	JoinRoom(ctx context.Context, room, node, connID, userID string) error
	Heartbeat(ctx context.Context, node string) error
	Retire(ctx context.Context, node string) error
	LeaveRoom(ctx context.Context, room, connID string) error
	RoomHasUser(ctx context.Context, room, userID string) (bool, error)
}

// Hub owns the connection registry and handles every inbound event.
type Hub struct {
	Registry *Registry
	Storage  storage.Storage
	Events   events.Publisher

	broker  Broker
	decoder *Decoder
	logger  *zap.SugaredLogger
	node    string

	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
}

type Option func(h *Hub)

// WithBroker enables cross-process delivery.
func WithBroker(b Broker) Option {
	return func(h *Hub) { h.broker = b }
}

// WithEvents sets the downstream event publisher.
func WithEvents(p events.Publisher) Option {
	return func(h *Hub) { h.Events = p }
}

func NewHub(s storage.Storage, logger *zap.SugaredLogger, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	h := &Hub{
		Registry: NewRegistry(),
		Storage:  s,
		Events:   events.Nop{},
		decoder:  NewDecoder(),
		logger:   logger,
		node:     uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Node identifies this process on the broker.
func (h *Hub) Node() string { return h.node }

// Context is cancelled when the hub shuts down.
func (h *Hub) Context() context.Context { return h.ctx }

// Register adds an authenticated connection and joins it to the personal
// room named after its user.
func (h *Hub) Register(c Client) {
	h.Registry.Add(c)
	h.join(h.ctx, c, c.UserID())
	metrics.Connections.Inc()

	h.logger.Debugw("client registered", "conn", c.ID(), "userId", c.UserID())
}

// Unregister removes a connection from every room and closes it. Calling it
// more than once is harmless.
func (h *Hub) Unregister(c Client) {
	rooms, ok := h.Registry.Remove(c.ID())
	if !ok {
		return
	}
	c.Close()
	metrics.Connections.Dec()

	if h.broker != nil {
		for _, room := range rooms {
			if err := h.broker.LeaveRoom(h.ctx, room, c.ID()); err != nil {
				h.logger.Warnw("broker leave failed", "room", room, "conn", c.ID(), "error", err)
			}
		}
	}
	h.logger.Debugw("client unregistered", "conn", c.ID(), "userId", c.UserID(), "rooms", len(rooms))
}

// Run relays broker emissions to local connections and keeps this node alive
// on the broker until Shutdown. Without a broker it only waits.
func (h *Hub) Run() {
	h.running.Add(1)
	defer h.running.Done()

	if h.broker == nil {
		<-h.ctx.Done()
		return
	}

	h.running.Add(1)
	go func() {
		defer h.running.Done()
		h.heartbeat()
	}()
	h.relay()
}

// Shutdown stops Run and closes every connection.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.cancel()

	done := make(chan struct{})
	go func() {
		h.running.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	for _, c := range h.Registry.Clients() {
		h.Unregister(c)
	}
	return nil
}

func (h *Hub) join(ctx context.Context, c Client, room string) {
	if !h.Registry.Join(c.ID(), room) {
		return
	}
	if h.broker != nil {
		if err := h.broker.JoinRoom(ctx, room, h.node, c.ID(), c.UserID()); err != nil {
			h.logger.Warnw("broker join failed", "room", room, "conn", c.ID(), "error", err)
		}
	}
}

func (h *Hub) leave(ctx context.Context, c Client, room string) {
	h.Registry.Leave(c.ID(), room)
	if h.broker != nil {
		if err := h.broker.LeaveRoom(ctx, room, c.ID()); err != nil {
			h.logger.Warnw("broker leave failed", "room", room, "conn", c.ID(), "error", err)
		}
	}
}

// isPresent checks this process first and falls back to the broker's view of
// the room when one is configured.
func (h *Hub) isPresent(ctx context.Context, room, userID string) bool {
	if h.Registry.IsPresent(room, userID) {
		return true
	}
	if h.broker == nil {
		return false
	}
	present, err := h.broker.RoomHasUser(ctx, room, userID)
	if err != nil {
		h.logger.Warnw("broker presence lookup failed", "room", room, "error", err)
		return false
	}
	return present
}

// emitToRoom delivers an event to every connection in room except the one
// with id exclude, on this process and, through the broker, on the others.
func (h *Hub) emitToRoom(ctx context.Context, room, exclude string, env models.Envelope) {
	h.deliverLocal(room, exclude, env)

	if h.broker == nil {
		return
	}
	data, err := json.Marshal(env.Data)
	if err != nil {
		h.logger.Errorw("encode emission", "event", env.Event, "error", err)
		return
	}
	err = h.broker.Publish(ctx, storage.Emission{
		Node:    h.node,
		Room:    room,
		Exclude: exclude,
		Event:   env.Event,
		Data:    data,
	})
	if err != nil {
		h.logger.Warnw("broker publish failed", "room", room, "event", env.Event, "error", err)
	}
}

func (h *Hub) deliverLocal(room, exclude string, env models.Envelope) {
	for _, c := range h.Registry.MembersOf(room) {
		if c.ID() == exclude {
			continue
		}
		h.deliver(c, env)
	}
}

// deliver hands env to one connection. A connection that cannot keep up is dropped.
func (h *Hub) deliver(c Client, env models.Envelope) {
	if c.Deliver(env) {
		return
	}
	metrics.DroppedFrames.Inc()
	h.logger.Warnw("dropping slow client", "conn", c.ID(), "userId", c.UserID(), "event", env.Event)
	h.Unregister(c)
}
