package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/promiseland/internal/domain"
)

// EventReader pages through the event log.
type EventReader interface {
	Events(ctx context.Context, after uint64, limit int) ([]domain.Event, error)
}

// EventHandler serves the event log.
type EventHandler struct {
	events EventReader
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler.
func NewEventHandler(events EventReader, logger *slog.Logger) *EventHandler {
	return &EventHandler{events: events, logger: logger}
}

type eventsResponse struct {
	Events    []domain.Event `json:"events"`
	NextAfter uint64         `json:"nextAfter"`
}

// ListEvents returns events with seq greater than after.
// GET /api/events?after=0&limit=100
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	after, err := uintQuery(r, "after", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := uintQuery(r, "limit", 0)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	events, err := h.events.Events(r.Context(), after, int(limit))
	if err != nil {
		writeCallError(w, r, h.logger, "list events", err)
		return
	}
	resp := eventsResponse{Events: events, NextAfter: after}
	if resp.Events == nil {
		resp.Events = []domain.Event{}
	}
	if n := len(events); n > 0 {
		resp.NextAfter = events[n-1].Seq
	}
	writeJSON(w, http.StatusOK, resp)
}
