package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/infosage/backend/internal/events"
	"github.com/infosage/backend/pkg/logger"
)

const pingInterval = 30 * time.Second

type Subscriber interface {
	Subscribe(claimID string) (<-chan events.Event, func())
}

// EventsHandler streams completion events for one claim over a websocket.
type EventsHandler struct {
	broker Subscriber
}

func NewEventsHandler(broker Subscriber) *EventsHandler {
	return &EventsHandler{broker: broker}
}

// Upgrade rejects plain HTTP requests to the websocket route.
func (h *EventsHandler) Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

func (h *EventsHandler) HandleConnection(c *websocket.Conn) {
	claimID := c.Params("id")
	logger.Info("WebSocket connection established", zap.String("claim_id", claimID))

	ch, cancel := h.broker.Subscribe(claimID)
	defer func() {
		cancel()
		c.Close()
		logger.Info("WebSocket connection closed", zap.String("claim_id", claimID))
	}()

	// Clients only listen; reading detects when they go away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case e, ok := <-ch:
			if !ok {
				return
			}
			if err := c.WriteJSON(e); err != nil {
				logger.Debug("Failed to write WebSocket event", zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
