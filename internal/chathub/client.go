package chathub

import "protalent/backend/internal/models"

// Client is one live gateway connection. A user may hold several at once
// (tabs, devices); each has its own id and room memberships.
type Client interface {
	// ID returns the connection identifier, unique per process.
	ID() string
	// UserID returns the identity established when the connection was authenticated.
	UserID() string

	// Deliver queues env for the connection without blocking. It reports false
	// when the connection is closed or its send buffer is full.
	Deliver(env models.Envelope) bool

	// Run starts the read and write pumps.
	Run()
	// Close stops the write pump, which closes the underlying connection.
	Close()
}
