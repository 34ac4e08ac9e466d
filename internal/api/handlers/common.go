package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/confsentinel/sentinel/internal/auth"
)

// HealthHandler is a simple health check endpoint
func HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status":  "ok",
		"time":    time.Now().Format(time.RFC3339),
		"service": "sentinel",
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// LoginRequest is the operator login payload
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginHandler issues a JWT for a valid operator password
func LoginHandler(authSvc *auth.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		token, err := authSvc.Login(req.Password)
		if err != nil {
			http.Error(w, "Invalid credentials", http.StatusUnauthorized)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"token": token})
	}
}
