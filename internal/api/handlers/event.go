package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/confsentinel/sentinel/internal/registry"
)

// EventService handles raw-change-event queries
type EventService struct {
	Reg *registry.Registry
}

// NewEventService creates a new event service
func NewEventService(reg *registry.Registry) *EventService {
	return &EventService{Reg: reg}
}

// GetEventsHandler returns the raw change event audit trail
func GetEventsHandler(svc *EventService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		events, err := svc.Reg.RawEvents()
		if err != nil {
			http.Error(w, "Failed to retrieve events", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(events)
	}
}
