package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/confsentinel/sentinel/internal/registry"
)

// FileService handles tracked-file queries
type FileService struct {
	Reg *registry.Registry
}

// NewFileService creates a new file service
func NewFileService(reg *registry.Registry) *FileService {
	return &FileService{Reg: reg}
}

// GetFilesHandler returns all tracked files with their health flags
func GetFilesHandler(svc *FileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		files, err := svc.Reg.TrackedFiles()
		if err != nil {
			http.Error(w, "Failed to retrieve tracked files", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(files)
	}
}

// GetFileHandler returns a specific tracked file by ID
func GetFileHandler(svc *FileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, err := strconv.Atoi(vars["id"])
		if err != nil {
			http.Error(w, "Invalid file ID", http.StatusBadRequest)
			return
		}

		file, err := svc.Reg.TrackedFileByID(uint(id))
		if err != nil {
			if errors.Is(err, registry.ErrNotTracked) {
				http.Error(w, "File not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to retrieve file", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(file)
	}
}

// GetFileIncidentsHandler returns the incident trail of one tracked file
func GetFileIncidentsHandler(svc *FileService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		id, err := strconv.Atoi(vars["id"])
		if err != nil {
			http.Error(w, "Invalid file ID", http.StatusBadRequest)
			return
		}

		if _, err := svc.Reg.TrackedFileByID(uint(id)); err != nil {
			if errors.Is(err, registry.ErrNotTracked) {
				http.Error(w, "File not found", http.StatusNotFound)
				return
			}
			http.Error(w, "Failed to retrieve file", http.StatusInternalServerError)
			return
		}

		incidents, err := svc.Reg.Incidents(uint(id))
		if err != nil {
			http.Error(w, "Failed to retrieve incidents", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(incidents)
	}
}
