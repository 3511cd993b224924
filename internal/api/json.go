package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hverdal/quire/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// errorStatus maps service errors to HTTP statuses.
func errorStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrExists):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidPath):
		return http.StatusBadRequest
	case errors.Is(err, apperr.ErrValidation):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers a failed service call. Expected errors carry their
// message to the client; anything else is logged and answered as a 500.
func writeError(w http.ResponseWriter, err error, action string) {
	status := errorStatus(err)
	if status == http.StatusInternalServerError {
		slog.Error(action+" failed", slog.String("error", err.Error()))
		writeJSON(w, status, errorBody("internal error"))
		return
	}
	writeJSON(w, status, errorBody(err.Error()))
}
