package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dgallion1/mdguard/internal/errs"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// statusFor maps kernel errors onto HTTP status codes.
func statusFor(err error) int {
	var (
		sizeErr *errs.SizeError
		secErr  *errs.SecurityError
		valErr  *errs.ValidationError
		maxErr  *http.MaxBytesError
	)
	switch {
	case errors.As(err, &sizeErr), errors.As(err, &maxErr):
		return http.StatusRequestEntityTooLarge
	case errors.As(err, &secErr):
		return http.StatusUnprocessableEntity
	case errors.As(err, &valErr):
		return http.StatusBadRequest
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// errorBody carries the structured fields of typed errors.
type errorBody struct {
	Error     string `json:"error"`
	Dimension string `json:"dimension,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Actual    int    `json:"actual,omitempty"`
	Pattern   string `json:"pattern,omitempty"`
	Profile   string `json:"profile,omitempty"`
}

func bodyFor(err error) errorBody {
	b := errorBody{Error: err.Error()}
	var sizeErr *errs.SizeError
	var secErr *errs.SecurityError
	if errors.As(err, &sizeErr) {
		b.Dimension, b.Limit, b.Actual, b.Profile = sizeErr.Dimension, sizeErr.Limit, sizeErr.Actual, sizeErr.Profile
	}
	if errors.As(err, &secErr) {
		b.Pattern, b.Profile = secErr.Pattern, secErr.Profile
	}
	return b
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), bodyFor(err))
}
