package handler

import (
	"errors"
	"net/http"
	"protalent/backend/internal/auth"

	"github.com/gin-gonic/gin"
)

const userIDKey = "userID"

// RequireAuth verifies the bearer token of the request and stores the caller
// identity in the gin context. A missing token is 401, a bad one 403.
func (h *Handler) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := h.Verifier.Verify(auth.BearerToken(c.GetHeader("Authorization")))
		if err != nil {
			h.rejectCredential(c, err)
			return
		}

		c.Set(userIDKey, userID)
		c.Next()
	}
}

func (h *Handler) rejectCredential(c *gin.Context, err error) {
	if errors.Is(err, auth.ErrMissingToken) {
		h.fail(c, http.StatusUnauthorized, "token_missing", nil)
		return
	}
	h.logger.Debugw("credential rejected", "error", err, "ip", c.ClientIP())
	h.fail(c, http.StatusForbidden, "token_invalid", nil)
}

func currentUser(c *gin.Context) string {
	return c.GetString(userIDKey)
}
