package handler

// RESPONSE HELPERS:
// Every handler answers through writeJSON and writeError so the API has one
// success shape and one error shape:
//
//	{"error": "validation_error", "message": "Please select a quantity", "field": "quantity"}
//
// The frontend can always read .error and .message, and .field when the
// message belongs next to a form input.

import (
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"

	"github.com/sakif/poketrade/internal/apperror"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ErrorResponse is the standard error format returned by all API endpoints.
type ErrorResponse struct {
	Error   string `json:"error"`           // Machine-readable error type (e.g., "not_found")
	Message string `json:"message"`         // Human-readable description
	Field   string `json:"field,omitempty"` // Input the message refers to, if any
}

// writeJSON sends a JSON response with the given status code.
//
// Headers and status go out before the body: once Encode writes, later header
// changes are ignored.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log it.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusFor maps a domain error to its HTTP status and machine-readable type.
//
// errors.Is walks the whole chain, so a service error wrapped as
// fmt.Errorf("service/trade: ...: %w", apperror.ValidationFailed(...)) still
// maps to 400.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthenticated):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, apperror.ErrUpstream):
		return http.StatusBadGateway, "upstream_error"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to the appropriate HTTP status code and sends it.
//
// The service layer never knows about status codes; this is the one place
// they are chosen.
func writeError(w http.ResponseWriter, err error) {
	status, errorType := statusFor(err)

	if status != http.StatusInternalServerError {
		resp := ErrorResponse{Error: errorType, Message: http.StatusText(status)}
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			resp.Message = appErr.Message
			resp.Field = appErr.Field
		}
		writeJSON(w, status, resp)
		return
	}

	// NEVER expose internal error details to the client. The raw message might
	// contain SQL, file paths or upstream URLs.
	writeJSON(w, http.StatusInternalServerError, ErrorResponse{
		Error:   "internal_error",
		Message: "An internal error occurred",
	})
}

// fail logs unexpected errors and then answers with writeError. Expected
// outcomes (validation, not found, conflicts) are already logged by the
// request logger through their status code.
func fail(w http.ResponseWriter, r *http.Request, logger *slog.Logger, op string, err error) {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		logger.Error(op+" failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
	}
	writeError(w, err)
}
