package chathub

import (
	"encoding/json"
	"protalent/backend/internal/models"
	"time"

	"github.com/gorilla/websocket"
)

// readPump reads frames from the connection and dispatches them in order.
func (c *WebSocketClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	if c.maxMessageSize > 0 {
		c.conn.SetReadLimit(c.maxMessageSize)
	}
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, frame, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Infow("connection closed unexpectedly", "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.hub.reject(c, "", ErrRateLimited)
			continue
		}

		c.hub.Dispatch(c.hub.Context(), c, frame)
	}
}

// writePump writes queued envelopes, one frame each, and keeps the connection
// alive with pings.
func (c *WebSocketClient) writePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case env, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(env); err != nil {
				c.logger.Debugw("write failed", "event", env.Event, "error", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WebSocketClient) write(env models.Envelope) error {
	b, err := json.Marshal(env)
	if err != nil {
		c.logger.Errorw("encode envelope", "event", env.Event, "error", err)
		return nil
	}
	return c.conn.WriteMessage(websocket.TextMessage, b)
}
