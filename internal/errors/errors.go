// Package errors defines the error taxonomy of the ledger pipeline.
//
// Absence (a price miss, a missing receipt, a network with zero transfers)
// is not represented here at all: it travels as nil values. Errors cover
// only upstream transport failures, configuration mistakes, and rate-limit
// conditions.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/ledger-scanner/internal/types"
)

// ErrorCategory represents the category of an error
type ErrorCategory string

const (
	// CategoryUserInput represents caller input errors (4xx)
	CategoryUserInput ErrorCategory = "user_input"
	// CategoryUpstream represents upstream transport failures
	CategoryUpstream ErrorCategory = "upstream"
	// CategoryConfig represents configuration errors (fail fast)
	CategoryConfig ErrorCategory = "config"
	// CategoryRateLimit represents upstream throttling conditions
	CategoryRateLimit ErrorCategory = "rate_limit"
	// CategorySystem represents everything else (5xx)
	CategorySystem ErrorCategory = "system"
)

// CategorizedError represents an error with category, HTTP status code and
// upstream context.
type CategorizedError struct {
	Category   ErrorCategory
	StatusCode int
	Code       string
	Message    string
	Network    types.ChainID
	Op         string
	Cause      error
}

// Error implements the error interface
func (e *CategorizedError) Error() string {
	msg := e.Message
	if e.Network != "" {
		msg = fmt.Sprintf("[%s] %s", e.Network, msg)
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause
func (e *CategorizedError) Unwrap() error {
	return e.Cause
}

// ToServiceError converts to the wire-level ServiceError shape.
func (e *CategorizedError) ToServiceError() *types.ServiceError {
	details := map[string]interface{}{}
	if e.Network != "" {
		details["network"] = string(e.Network)
	}
	if e.Op != "" {
		details["op"] = e.Op
	}
	return &types.ServiceError{Code: e.Code, Message: e.Message, Details: details}
}

// NewInvalidParameterError creates a caller input error.
func NewInvalidParameterError(param, reason string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUserInput,
		StatusCode: http.StatusBadRequest,
		Code:       "INVALID_PARAMETER",
		Message:    fmt.Sprintf("invalid parameter %q: %s", param, reason),
	}
}

// NewUpstreamError wraps a failed transfer-feed, RPC or price-source call.
// It aborts processing for one network only; sibling networks proceed.
func NewUpstreamError(network types.ChainID, op string, cause error) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryUpstream,
		StatusCode: http.StatusBadGateway,
		Code:       "UPSTREAM_UNAVAILABLE",
		Message:    fmt.Sprintf("upstream call %s failed", op),
		Network:    network,
		Op:         op,
		Cause:      cause,
	}
}

// NewConfigError reports a missing or invalid configuration value. These
// are fatal: the process should refuse to serve rather than degrade.
func NewConfigError(message string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfig,
		StatusCode: http.StatusInternalServerError,
		Code:       "CONFIGURATION_ERROR",
		Message:    message,
	}
}

// NewMissingRPCEndpointError reports that a network has neither a dedicated
// nor a fallback RPC endpoint configured.
func NewMissingRPCEndpointError(network types.ChainID) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryConfig,
		StatusCode: http.StatusInternalServerError,
		Code:       "MISSING_RPC_ENDPOINT",
		Message:    fmt.Sprintf("no RPC endpoint configured for network %s and no default endpoint set", network),
		Network:    network,
	}
}

// NewRateLimitedError reports upstream throttling. Surfaced to callers as
// an advisory, not a blocking failure.
func NewRateLimitedError(op string) *CategorizedError {
	return &CategorizedError{
		Category:   CategoryRateLimit,
		StatusCode: http.StatusTooManyRequests,
		Code:       "UPSTREAM_RATE_LIMITED",
		Message:    fmt.Sprintf("upstream throttled call %s", op),
		Op:         op,
	}
}

// IsCategory reports whether err (or anything it wraps) carries the given
// category.
func IsCategory(err error, category ErrorCategory) bool {
	var ce *CategorizedError
	if errors.As(err, &ce) {
		return ce.Category == category
	}
	return false
}

// IsConfig reports whether err is a configuration error.
func IsConfig(err error) bool { return IsCategory(err, CategoryConfig) }

// IsUpstream reports whether err is an upstream transport failure.
func IsUpstream(err error) bool { return IsCategory(err, CategoryUpstream) }

// IsRateLimited reports whether err is an upstream throttling condition.
func IsRateLimited(err error) bool { return IsCategory(err, CategoryRateLimit) }
