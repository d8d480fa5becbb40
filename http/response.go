package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/beisanytime/shiurhub"
)

// ErrorResponse is the JSON error envelope all endpoints share.
type ErrorResponse struct {
	Error string `json:"error"`
}

// WriteError writes a JSON error response.
func WriteError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(ErrorResponse{Error: message}); err != nil {
		slog.Error("failed to encode error response", "error", err)
	}
}

// HandleError maps service errors onto HTTP statuses.
func HandleError(w http.ResponseWriter, err error) {
	slog.Error("request error", "error", err)

	switch {
	case errors.Is(err, shiurhub.ErrNotFound):
		WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, shiurhub.ErrInvalidInput):
		WriteError(w, http.StatusBadRequest, "Invalid request")
	case errors.Is(err, shiurhub.ErrUnauthorized):
		WriteError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, shiurhub.ErrForbidden):
		WriteError(w, http.StatusForbidden, "Forbidden")
	case errors.Is(err, shiurhub.ErrCorrupted):
		WriteError(w, http.StatusInternalServerError, "Record is corrupted")
	default:
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// WriteJSON writes a JSON response.
func WriteJSON(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}
