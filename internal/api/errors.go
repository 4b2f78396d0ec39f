package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/ledger-scanner/internal/errors"
	"github.com/ledger-scanner/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// Common error codes
const (
	ErrCodeInvalidInput       = "INVALID_INPUT"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// respondServiceError maps a pipeline error to its HTTP shape. Categorized
// errors carry their own status code; anything else is an internal error.
func respondServiceError(w http.ResponseWriter, err error) {
	var ce *errors.CategorizedError
	if stderrors.As(err, &ce) {
		se := ce.ToServiceError()
		respondError(w, ce.StatusCode, se.Code, se.Message, se.Details)
		return
	}
	respondError(w, http.StatusInternalServerError, ErrCodeInternalError, "An internal error occurred", nil)
}
