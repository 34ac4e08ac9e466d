package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/confsentinel/sentinel/internal/registry"
)

// IncidentService handles incident-trail queries
type IncidentService struct {
	Reg *registry.Registry
}

// NewIncidentService creates a new incident service
func NewIncidentService(reg *registry.Registry) *IncidentService {
	return &IncidentService{Reg: reg}
}

// GetIncidentsHandler returns all incidents, newest first
func GetIncidentsHandler(svc *IncidentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		incidents, err := svc.Reg.Incidents(0)
		if err != nil {
			http.Error(w, "Failed to retrieve incidents", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(incidents)
	}
}

// GetIncidentHandler returns a specific incident by ID
func GetIncidentHandler(svc *IncidentService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, err := strconv.Atoi(vars["id"])
		if err != nil {
			http.Error(w, "Invalid incident ID", http.StatusBadRequest)
			return
		}

		incident, err := svc.Reg.IncidentByID(uint(id))
		if err != nil {
			http.Error(w, "Incident not found", http.StatusNotFound)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(incident)
	}
}
