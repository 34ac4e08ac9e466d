package api

import (
	"github.com/gorilla/mux"
	"golang.org/x/time/rate"

	"github.com/confsentinel/sentinel/internal/api/handlers"
	"github.com/confsentinel/sentinel/internal/api/utils"
	"github.com/confsentinel/sentinel/internal/auth"
	"github.com/confsentinel/sentinel/internal/registry"
)

// Router sets up the main API router with all routes
func Router(reg *registry.Registry, scanner handlers.Scanner, authSvc *auth.Service) *mux.Router {
	router := mux.NewRouter()

	// Security and rate limiting middleware
	router.Use(utils.SecurityHeadersMiddleware)
	router.Use(utils.RateLimitMiddleware(rate.Limit(10), 20))

	// Initialize services
	fileService := handlers.NewFileService(reg)
	incidentService := handlers.NewIncidentService(reg)
	eventService := handlers.NewEventService(reg)

	// Public routes (no authentication required)
	public := router.PathPrefix("/api").Subrouter()
	public.HandleFunc("/health", handlers.HealthHandler).Methods("GET")
	public.HandleFunc("/login", handlers.LoginHandler(authSvc)).Methods("POST")

	// Protected routes (authentication required)
	protected := router.PathPrefix("/api").Subrouter()
	protected.Use(authSvc.AuthMiddleware)

	protected.HandleFunc("/files", handlers.GetFilesHandler(fileService)).Methods("GET")
	protected.HandleFunc("/files/{id}", handlers.GetFileHandler(fileService)).Methods("GET")
	protected.HandleFunc("/files/{id}/incidents", handlers.GetFileIncidentsHandler(fileService)).Methods("GET")

	protected.HandleFunc("/incidents", handlers.GetIncidentsHandler(incidentService)).Methods("GET")
	protected.HandleFunc("/incidents/{id}", handlers.GetIncidentHandler(incidentService)).Methods("GET")

	protected.HandleFunc("/events", handlers.GetEventsHandler(eventService)).Methods("GET")

	protected.HandleFunc("/scan", handlers.RunScanHandler(scanner)).Methods("POST")

	return router
}
