package chathub_test

import (
	"context"
	"protalent/backend/internal/events"
	"protalent/backend/internal/storage"
	"sync"

	"github.com/stretchr/testify/mock"
)

// MockBroker is a testify mock of chathub.Broker.
type MockBroker struct {
	mock.Mock
}

func (b *MockBroker) Publish(ctx context.Context, e storage.Emission) error {
	return b.Called(ctx, e).Error(0)
}

func (b *MockBroker) Subscribe(ctx context.Context) (<-chan storage.Emission, error) {
	args := b.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan storage.Emission), args.Error(1)
}

func (b *MockBroker) JoinRoom(ctx context.Context, room, node, connID, userID string) error {
	return b.Called(ctx, room, node, connID, userID).Error(0)
}

func (b *MockBroker) Heartbeat(ctx context.Context, node string) error {
	return b.Called(ctx, node).Error(0)
}

func (b *MockBroker) Retire(ctx context.Context, node string) error {
	return b.Called(ctx, node).Error(0)
}

func (b *MockBroker) LeaveRoom(ctx context.Context, room, connID string) error {
	return b.Called(ctx, room, connID).Error(0)
}

func (b *MockBroker) RoomHasUser(ctx context.Context, room, userID string) (bool, error) {
	args := b.Called(ctx, room, userID)
	return args.Bool(0), args.Error(1)
}

// recordingPublisher keeps every published event.
type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Event(nil), p.events...)
}
