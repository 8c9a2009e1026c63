package handlers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/staffhub/notifications/internal/domain"
)

// EventPublisher accepts domain events for background processing
type EventPublisher interface {
	Publish(event domain.DomainEvent) domain.DomainEvent
}

// EventHandler is the HTTP publish hook for business modules that run in
// another process
type EventHandler struct {
	publisher EventPublisher
}

// NewEventHandler creates a new event handler
func NewEventHandler(publisher EventPublisher) *EventHandler {
	return &EventHandler{publisher: publisher}
}

// PublishResponse acknowledges an accepted event
type PublishResponse struct {
	ID uuid.UUID `json:"id"`
}

// Publish handles POST /api/v1/events
func (h *EventHandler) Publish(w http.ResponseWriter, r *http.Request) {
	var event domain.DomainEvent
	if err := decodeJSON(w, r, &event); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	accepted := h.publisher.Publish(event)

	respondJSON(w, http.StatusAccepted, PublishResponse{ID: accepted.ID})
}
