// Package handler exposes the chat gateway and the chat query API over HTTP.
package handler

import (
	"protalent/backend/internal/auth"
	"protalent/backend/internal/chathub"
	"protalent/backend/internal/events"
	"protalent/backend/internal/localization"
	"protalent/backend/internal/storage"

	"go.uber.org/zap"
)

// Handler holds the dependencies shared by every route.
type Handler struct {
	Hub       *chathub.Hub
	Storage   storage.Storage
	Events    events.Publisher
	Verifier  *auth.Verifier
	Localizer *localization.Localizer
	Client    chathub.ClientConfig

	logger *zap.SugaredLogger
}

// NewHandler reuses the store and event publisher of hub.
func NewHandler(hub *chathub.Hub, verifier *auth.Verifier, loc *localization.Localizer, client chathub.ClientConfig, logger *zap.SugaredLogger) *Handler {
	return &Handler{
		Hub:       hub,
		Storage:   hub.Storage,
		Events:    hub.Events,
		Verifier:  verifier,
		Localizer: loc,
		Client:    client,
		logger:    logger,
	}
}
