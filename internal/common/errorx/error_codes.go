package errorx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// ErrorCategory represents different categories of errors
type ErrorCategory string

const (
	CategoryValidation     ErrorCategory = "validation"
	CategoryAuthentication ErrorCategory = "authentication"
	CategoryAuthorization  ErrorCategory = "authorization"
	CategoryNotFound       ErrorCategory = "not_found"
	CategoryConflict       ErrorCategory = "conflict"
	CategoryInvariant      ErrorCategory = "invariant"
	CategoryInternal       ErrorCategory = "internal"
	CategoryConfiguration  ErrorCategory = "configuration"
)

// Severity represents the severity level of an error
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// APIError represents a structured API error with comprehensive information
type APIError struct {
	Code        string         `json:"code"`
	Message     string         `json:"message"`
	Category    ErrorCategory  `json:"category"`
	Severity    Severity       `json:"severity"`
	HTTPStatus  int            `json:"-"`
	Details     map[string]any `json:"details,omitempty"`
	Suggestions []string       `json:"suggestions,omitempty"`
	TraceID     string         `json:"trace_id,omitempty"`
	Timestamp   string         `json:"timestamp,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Category, e.Message)
}

// JSON returns the error as a JSON string
func (e *APIError) JSON() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// WithDetail adds a detail to the error
func (e *APIError) WithDetail(key string, value any) *APIError {
	out := e.clone()
	if out.Details == nil {
		out.Details = make(map[string]any)
	}
	out.Details[key] = value
	return out
}

// WithSuggestion adds a suggestion to the error
func (e *APIError) WithSuggestion(suggestion string) *APIError {
	out := e.clone()
	out.Suggestions = append(out.Suggestions, suggestion)
	return out
}

// WithTraceID adds a trace ID to the error
func (e *APIError) WithTraceID(traceID string) *APIError {
	out := e.clone()
	out.TraceID = traceID
	return out
}

// clone returns a copy so the shared sentinel values stay immutable.
func (e *APIError) clone() *APIError {
	out := *e
	if e.Details != nil {
		out.Details = make(map[string]any, len(e.Details))
		for k, v := range e.Details {
			out.Details[k] = v
		}
	}
	out.Suggestions = append([]string(nil), e.Suggestions...)
	return &out
}

// Common error codes and messages
var (
	// Validation Errors (E1000-E1999)
	ErrInvalidInput = &APIError{
		Code:       "E1001",
		Message:    "Invalid input provided",
		Category:   CategoryValidation,
		Severity:   SeverityError,
		HTTPStatus: http.StatusBadRequest,
		Suggestions: []string{
			"Check the request format and try again",
			"Ensure all required fields are provided",
		},
	}

	ErrMissingField = &APIError{
		Code:       "E1002",
		Message:    "Required field is missing",
		Category:   CategoryValidation,
		Severity:   SeverityError,
		HTTPStatus: http.StatusBadRequest,
		Suggestions: []string{
			"Check the API documentation for required fields",
		},
	}

	// Authentication Errors (E2000-E2999)
	ErrUnauthorized = &APIError{
		Code:       "E2001",
		Message:    "Authentication required",
		Category:   CategoryAuthentication,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnauthorized,
		Suggestions: []string{
			"Please login and try again",
			"Check if your authentication token is valid",
		},
	}

	ErrInvalidCredentials = &APIError{
		Code:       "E2002",
		Message:    "Invalid credentials provided",
		Category:   CategoryAuthentication,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnauthorized,
		Suggestions: []string{
			"Check your username and password",
		},
	}

	ErrTokenExpired = &APIError{
		Code:       "E2003",
		Message:    "Authentication token has expired",
		Category:   CategoryAuthentication,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusUnauthorized,
		Suggestions: []string{
			"Please login again to get a new token",
		},
	}

	// Authorization Errors (E3000-E3999)
	ErrForbidden = &APIError{
		Code:       "E3001",
		Message:    "Access denied",
		Category:   CategoryAuthorization,
		Severity:   SeverityError,
		HTTPStatus: http.StatusForbidden,
		Suggestions: []string{
			"Contact your administrator for permission",
		},
	}

	ErrScopeDenied = &APIError{
		Code:       "E3002",
		Message:    "Tenant is outside your administrative scope",
		Category:   CategoryAuthorization,
		Severity:   SeverityError,
		HTTPStatus: http.StatusForbidden,
		Suggestions: []string{
			"You can only manage tenants within your own subtree",
		},
	}

	// Not Found Errors (E4000-E4999)
	ErrResourceNotFound = &APIError{
		Code:       "E4001",
		Message:    "Requested resource not found",
		Category:   CategoryNotFound,
		Severity:   SeverityError,
		HTTPStatus: http.StatusNotFound,
		Suggestions: []string{
			"Check if the resource ID is correct",
			"The resource might have been deleted",
		},
	}

	// Conflict Errors (E4090-E4099)
	ErrResourceExists = &APIError{
		Code:       "E4091",
		Message:    "Resource already exists",
		Category:   CategoryConflict,
		Severity:   SeverityError,
		HTTPStatus: http.StatusConflict,
		Suggestions: []string{
			"Use a different name or ID",
			"Update the existing resource instead",
		},
	}

	// Hierarchy Invariant Errors (E4100-E4199)
	ErrInvariantViolation = &APIError{
		Code:       "E4101",
		Message:    "Operation would violate a hierarchy invariant",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrCycleDetected = &APIError{
		Code:       "E4102",
		Message:    "Cannot move a tenant under its own descendant",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrDepthExceeded = &APIError{
		Code:       "E4103",
		Message:    "Operation would exceed the maximum hierarchy depth",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrMasterProtected = &APIError{
		Code:       "E4104",
		Message:    "The root tenant cannot be moved, deleted, or deactivated",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	ErrTenantHasChildren = &APIError{
		Code:       "E4105",
		Message:    "Tenant still has active sub-tenants",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
		Suggestions: []string{
			"Move or delete the sub-tenants first",
		},
	}

	ErrInvalidTransition = &APIError{
		Code:       "E4106",
		Message:    "Invalid partnership state transition",
		Category:   CategoryInvariant,
		Severity:   SeverityError,
		HTTPStatus: http.StatusUnprocessableEntity,
	}

	// Partial Batch Failures (E4200-E4299)
	ErrPartialBatchFailure = &APIError{
		Code:       "E4201",
		Message:    "Some items in the batch could not be processed",
		Category:   CategoryConflict,
		Severity:   SeverityWarning,
		HTTPStatus: http.StatusMultiStatus,
	}

	// Internal Server Errors (E5000-E5999)
	ErrInternalServer = &APIError{
		Code:       "E5001",
		Message:    "Internal server error occurred",
		Category:   CategoryInternal,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusInternalServerError,
		Suggestions: []string{
			"Please try again later",
			"Contact support if the issue persists",
		},
	}

	ErrDatabaseError = &APIError{
		Code:       "E5002",
		Message:    "Database operation failed",
		Category:   CategoryInternal,
		Severity:   SeverityError,
		HTTPStatus: http.StatusInternalServerError,
		Suggestions: []string{
			"Please try again later",
		},
	}

	ErrAuditWriteFailed = &APIError{
		Code:       "E5003",
		Message:    "Audit record could not be persisted; the change was rolled back",
		Category:   CategoryInternal,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusInternalServerError,
		Suggestions: []string{
			"Retry the operation once audit storage is healthy",
		},
	}
)
