// Package response provides utilities for writing JSON API responses.
package response

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// ValidationError represents a field validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ErrorBody is the body of every non-2xx response.
type ErrorBody struct {
	Error            string            `json:"error"`
	ValidationErrors []ValidationError `json:"validationErrors,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write JSON response")
	}
}

// Error writes the generic body for status, e.g. {"error":"Internal Server Error"}.
func Error(w http.ResponseWriter, status int) {
	JSON(w, status, ErrorBody{Error: http.StatusText(status)})
}

// BadRequest writes a 400 response listing the offending fields.
func BadRequest(w http.ResponseWriter, fields []ValidationError) {
	JSON(w, http.StatusBadRequest, ErrorBody{
		Error:            http.StatusText(http.StatusBadRequest),
		ValidationErrors: fields,
	})
}

// InternalError writes the generic 500 response. The cause is never exposed.
func InternalError(w http.ResponseWriter) {
	Error(w, http.StatusInternalServerError)
}
