package handler

import (
	"context"
	"errors"
	"net/http"
	"protalent/backend/internal/storage"

	"github.com/gin-gonic/gin"
)

// errorResponse is the body of every failed request. Detalle carries the
// underlying cause and is only set for server-side failures.
type errorResponse struct {
	Error   string `json:"error"`
	Detalle string `json:"detalle,omitempty"`
}

type messageResponse struct {
	Mensaje string `json:"mensaje"`
	Updated *int64 `json:"updated,omitempty"`
}

func (h *Handler) lang(c *gin.Context) string {
	return h.Localizer.Language(c.GetHeader("Accept-Language"))
}

func (h *Handler) message(c *gin.Context, key string) string {
	return h.Localizer.GetString(h.lang(c), key)
}

func (h *Handler) fail(c *gin.Context, status int, key string, cause error) {
	body := errorResponse{Error: h.message(c, key)}
	if status >= http.StatusInternalServerError && cause != nil {
		body.Detalle = cause.Error()
		h.logger.Errorw("request failed",
			"requestId", c.GetString(requestIDKey),
			"path", c.FullPath(),
			"error", cause,
		)
	}
	c.AbortWithStatusJSON(status, body)
}

// storeFailure maps store errors shared by every route; key names the
// message used for anything unexpected.
func (h *Handler) storeFailure(c *gin.Context, key string, err error) {
	switch {
	case errors.Is(err, storage.ErrChatNotFound):
		h.fail(c, http.StatusNotFound, "chat_not_found", nil)
	case errors.Is(err, storage.ErrMessageNotFound):
		h.fail(c, http.StatusNotFound, "message_not_found", nil)
	case errors.Is(err, storage.ErrInvalidParticipants):
		h.fail(c, http.StatusBadRequest, "invalid_participants", nil)
	case errors.Is(err, context.DeadlineExceeded):
		h.fail(c, http.StatusServiceUnavailable, "service_unavailable", err)
	default:
		h.fail(c, http.StatusInternalServerError, key, err)
	}
}
