package errorx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrorHandler provides unified error handling capabilities
type ErrorHandler struct {
	logger *zap.Logger
}

// NewErrorHandler creates a new error handler
func NewErrorHandler(logger *zap.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// HandleError converts any error to APIError and returns appropriate HTTP response
func (h *ErrorHandler) HandleError(c *gin.Context, err error) {
	if err == nil {
		return
	}

	apiErr := h.ConvertToAPIError(err).WithTraceID(uuid.New().String())
	apiErr.Timestamp = time.Now().UTC().Format(time.RFC3339)

	h.logError(c, apiErr, err)

	c.JSON(apiErr.HTTPStatus, gin.H{
		"error": apiErr,
	})
}

// ConvertToAPIError converts any error to APIError
func (h *ErrorHandler) ConvertToAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}

	return &APIError{
		Code:       "E5001",
		Message:    "Internal server error occurred",
		Category:   CategoryInternal,
		Severity:   SeverityCritical,
		HTTPStatus: http.StatusInternalServerError,
		Details: map[string]any{
			"original_error": err.Error(),
		},
		Suggestions: []string{
			"Please try again later",
			"Contact support if the issue persists",
		},
	}
}

// logError logs the error with appropriate context and stack trace
func (h *ErrorHandler) logError(c *gin.Context, apiErr *APIError, originalErr error) {
	var stackTrace string
	if apiErr.Severity == SeverityCritical {
		buf := make([]byte, 1024*4)
		n := runtime.Stack(buf, false)
		stackTrace = string(buf[:n])
	}

	fields := []zap.Field{
		zap.String("trace_id", apiErr.TraceID),
		zap.String("error_code", apiErr.Code),
		zap.String("category", string(apiErr.Category)),
		zap.String("severity", string(apiErr.Severity)),
		zap.Int("http_status", apiErr.HTTPStatus),
		zap.String("path", c.Request.URL.Path),
		zap.String("method", c.Request.Method),
		zap.String("client_ip", c.ClientIP()),
	}

	if originalErr != nil && originalErr.Error() != apiErr.Message {
		fields = append(fields, zap.Error(originalErr))
	}

	if len(apiErr.Details) > 0 {
		detailsJSON, _ := json.Marshal(apiErr.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}

	if stackTrace != "" {
		fields = append(fields, zap.String("stack_trace", stackTrace))
	}

	switch apiErr.Severity {
	case SeverityInfo:
		h.logger.Info(apiErr.Message, fields...)
	case SeverityWarning:
		h.logger.Warn(apiErr.Message, fields...)
	default:
		h.logger.Error(apiErr.Message, fields...)
	}
}

// ErrorMiddleware returns a gin middleware for error handling
func (h *ErrorHandler) ErrorMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) > 0 {
			lastErr := c.Errors.Last()
			h.HandleError(c, lastErr.Err)
		}
	}
}

// RecoveryMiddleware returns a gin middleware for panic recovery
func (h *ErrorHandler) RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(nil, func(c *gin.Context, err interface{}) {
		panicErr := &APIError{
			Code:       "E5000",
			Message:    "Server panic occurred",
			Category:   CategoryInternal,
			Severity:   SeverityCritical,
			HTTPStatus: http.StatusInternalServerError,
			Details: map[string]any{
				"panic": fmt.Sprintf("%v", err),
			},
		}

		h.HandleError(c, panicErr)
	})
}

// Helper functions for creating specific errors

// ValidationError creates a validation error with details
func ValidationError(field string, value interface{}, reason string) *APIError {
	return ErrInvalidInput.
		WithDetail("field", field).
		WithDetail("value", value).
		WithDetail("reason", reason)
}

// NotFoundError creates a not found error for a specific resource
func NotFoundError(resourceType string, identifier any) *APIError {
	return ErrResourceNotFound.
		WithDetail("resource_type", resourceType).
		WithDetail("identifier", identifier)
}

// ConflictError creates a conflict error for a specific resource
func ConflictError(resourceType string, field string, value interface{}) *APIError {
	return ErrResourceExists.
		WithDetail("resource_type", resourceType).
		WithDetail("field", field).
		WithDetail("value", value)
}

// ScopeDeniedError creates an authorization error carrying the denial reason.
func ScopeDeniedError(operation string, reason string) *APIError {
	return ErrScopeDenied.
		WithDetail("operation", operation).
		WithDetail("reason", reason)
}

// InvariantError creates an invariant violation error with a human-readable reason.
func InvariantError(reason string) *APIError {
	return ErrInvariantViolation.WithDetail("reason", reason)
}

// AuditFailure wraps a failed audit write. The surrounding transaction must
// already have been rolled back by the caller.
func AuditFailure(action string, err error) *APIError {
	return ErrAuditWriteFailed.
		WithDetail("action", action).
		WithDetail("original_error", err.Error())
}
