package handler

import (
	"net/http"
	"protalent/backend/internal/auth"
	"protalent/backend/internal/chathub"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	Subprotocols:    []string{"bearer"},
	// Browsers from any origin may connect; the token is the only gate.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// ServeWebSocket authenticates the handshake and upgrades it to a chat connection.
// Credentials are checked before the upgrade so a rejected client gets a plain HTTP error.
func (h *Handler) ServeWebSocket(c *gin.Context) {
	userID, err := h.Verifier.Verify(auth.FromRequest(c.Request))
	if err != nil {
		h.rejectCredential(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered the client.
		h.logger.Warnw("websocket upgrade failed", "userId", userID, "error", err)
		return
	}

	client := chathub.NewWebSocketClient(conn, h.Hub, userID, h.Client)
	h.Hub.Register(client)
	client.Run()
}
