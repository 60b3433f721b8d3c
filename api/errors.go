package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/xraph/workq"
)

// statusFor maps workq sentinel errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, workq.ErrJobNotFound):
		return http.StatusNotFound
	case errors.Is(err, workq.ErrJobAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, workq.ErrInvalidState):
		return http.StatusBadRequest
	case errors.Is(err, workq.ErrStoreUnavailable), errors.Is(err, workq.ErrStoreClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// safeMessage keeps store internals out of response bodies.
func safeMessage(status int) string {
	switch status {
	case http.StatusNotFound:
		return "job not found"
	case http.StatusConflict:
		return "job already exists"
	case http.StatusBadRequest:
		return "invalid request"
	case http.StatusServiceUnavailable:
		return "job store unavailable"
	default:
		return "internal error"
	}
}

func respondJSON(w http.ResponseWriter, _ *http.Request, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

func respondError(w http.ResponseWriter, r *http.Request, status int, message string) {
	respondJSON(w, r, status, ErrorResponse{Error: message, Code: status})
}

// handleError logs err in full and writes a sanitized response.
func (a *API) handleError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := statusFor(err)
	level := slog.LevelWarn
	if status >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	a.logger.Log(r.Context(), level, "admin api request failed",
		slog.String("op", op),
		slog.String("path", r.URL.Path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	respondError(w, r, status, safeMessage(status))
}

// pagination reads limit and offset query parameters.
func pagination(r *http.Request) (limit, offset int, err error) {
	limit = defaultLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if s := r.URL.Query().Get("offset"); s != "" {
		if offset, err = strconv.Atoi(s); err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}

const (
	defaultLimit = 50
	maxLimit     = 500
)
