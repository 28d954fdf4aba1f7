package httputil

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/platinummonkey/homestead/pkg/autherr"
)

// ErrorResponse is the body of every error response
type ErrorResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason,omitempty"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(data)
}

// WriteErrorMessage writes a JSON error response with a custom message
func WriteErrorMessage(w http.ResponseWriter, status int, message string) {
	WriteReason(w, status, "", message)
}

// WriteReason writes a JSON error response carrying a machine-readable reason code
func WriteReason(w http.ResponseWriter, status int, reason, message string) {
	_ = WriteJSON(w, status, ErrorResponse{Error: message, Reason: reason})
}

// WriteBadRequest writes a 400 Bad Request error response
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteReason(w, http.StatusBadRequest, "invalid_input", message)
}

// WriteNoContent writes a successful response with no content (204 No Content)
func WriteNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// StatusFor maps an error kind to its HTTP status code
func StatusFor(kind autherr.Kind) int {
	switch kind {
	case autherr.KindInvalidInput:
		return http.StatusBadRequest
	case autherr.KindUnauthenticated:
		return http.StatusUnauthorized
	case autherr.KindUnauthorized:
		return http.StatusForbidden
	case autherr.KindNotFound:
		return http.StatusNotFound
	case autherr.KindConflict, autherr.KindInvalidState:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// WriteAuthError writes the response for an error returned by the core
// services. Unclassified errors become an opaque 500.
func WriteAuthError(w http.ResponseWriter, err error) {
	var e *autherr.Error
	if !errors.As(err, &e) || e.Kind == autherr.KindInternal {
		WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
		return
	}
	message := e.Message
	if message == "" {
		message = e.Kind.String()
	}
	WriteReason(w, StatusFor(e.Kind), e.Reason, message)
}
