package chathub_test

import (
	"protalent/backend/internal/models"
	"sync"
)

// MockClient records delivered envelopes in a buffered channel.
type MockClient struct {
	id     string
	userID string
	send   chan models.Envelope

	mu     sync.Mutex
	closed bool
}

func newMockClient(id, userID string) *MockClient {
	return &MockClient{
		id:     id,
		userID: userID,
		send:   make(chan models.Envelope, 32),
	}
}

// newSlowClient returns a client whose buffer is always full.
func newSlowClient(id, userID string) *MockClient {
	return &MockClient{
		id:     id,
		userID: userID,
		send:   make(chan models.Envelope),
	}
}

func (c *MockClient) ID() string     { return c.id }
func (c *MockClient) UserID() string { return c.userID }

func (c *MockClient) Deliver(env models.Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- env:
		return true
	default:
		return false
	}
}

func (c *MockClient) Run() {}

func (c *MockClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *MockClient) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Drain returns every envelope delivered so far.
func (c *MockClient) Drain() []models.Envelope {
	var out []models.Envelope
	for {
		select {
		case env := <-c.send:
			out = append(out, env)
		default:
			return out
		}
	}
}

func eventsOf(envs []models.Envelope) []string {
	out := make([]string, 0, len(envs))
	for _, env := range envs {
		out = append(out, env.Event)
	}
	return out
}
