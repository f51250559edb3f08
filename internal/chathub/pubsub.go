package chathub

import (
	"context"
	"encoding/json"
	"protalent/backend/internal/models"
	"protalent/backend/internal/storage"
	"time"
)

const resubscribeDelay = 2 * time.Second

// relay listens on the broker and delivers emissions published by other
// processes to the matching local rooms. A dropped subscription is retried
// until the hub shuts down.
func (h *Hub) relay() {
	for {
		ch, err := h.broker.Subscribe(h.ctx)
		if err != nil {
			h.logger.Errorw("broker subscribe failed", "error", err)
		} else {
			h.logger.Infow("relaying broker emissions", "node", h.node)
			if h.consume(ch) {
				return
			}
			h.logger.Warn("broker subscription ended")
		}

		select {
		case <-h.ctx.Done():
			return
		case <-time.After(resubscribeDelay):
		}
	}
}

// consume reports true when it returned because the hub is shutting down.
func (h *Hub) consume(ch <-chan storage.Emission) bool {
	for {
		select {
		case <-h.ctx.Done():
			return true
		case e, ok := <-ch:
			if !ok {
				return false
			}
			if e.Node == h.node {
				continue
			}
			h.deliverLocal(e.Room, e.Exclude, models.Envelope{
				Event: e.Event,
				Data:  json.RawMessage(e.Data),
			})
		}
	}
}

const retireTimeout = 2 * time.Second

// heartbeat keeps this node's room members alive on the broker and retires
// them when the hub shuts down.
func (h *Hub) heartbeat() {
	ticker := time.NewTicker(storage.NodeTTL / 3)
	defer ticker.Stop()

	for {
		if err := h.broker.Heartbeat(h.ctx, h.node); err != nil && h.ctx.Err() == nil {
			h.logger.Warnw("broker heartbeat failed", "node", h.node, "error", err)
		}
		select {
		case <-h.ctx.Done():
			ctx, cancel := context.WithTimeout(context.Background(), retireTimeout)
			defer cancel()
			if err := h.broker.Retire(ctx, h.node); err != nil {
				h.logger.Warnw("broker retire failed", "node", h.node, "error", err)
			}
			return
		case <-ticker.C:
		}
	}
}
