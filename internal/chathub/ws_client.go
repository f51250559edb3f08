package chathub

import (
	"protalent/backend/internal/models"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 256
)

// ClientConfig bounds what one connection may send.
type ClientConfig struct {
	RatePerSecond  float64
	Burst          int
	MaxMessageSize int64
}

// WebSocketClient implements Client over a gorilla websocket connection.
type WebSocketClient struct {
	id     string
	userID string
	conn   *websocket.Conn
	hub    *Hub
	logger *zap.SugaredLogger

	send           chan models.Envelope
	limiter        *rate.Limiter
	maxMessageSize int64

	mu     sync.Mutex
	closed bool
}

func NewWebSocketClient(conn *websocket.Conn, hub *Hub, userID string, cfg ClientConfig) *WebSocketClient {
	id := uuid.NewString()
	return &WebSocketClient{
		id:             id,
		userID:         userID,
		conn:           conn,
		hub:            hub,
		logger:         hub.logger.With("conn", id, "userId", userID),
		send:           make(chan models.Envelope, sendBuffer),
		limiter:        rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		maxMessageSize: cfg.MaxMessageSize,
	}
}

func (c *WebSocketClient) ID() string     { return c.id }
func (c *WebSocketClient) UserID() string { return c.userID }

func (c *WebSocketClient) Deliver(env models.Envelope) bool {
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

// Run starts the pumps.
func (c *WebSocketClient) Run() {
	go c.writePump()
	go c.readPump()
}

// Close closes the send channel, which stops writePump.
func (c *WebSocketClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}
