package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// APIError represents a simple standardized error response.
// Used by the HTTP surfaces for failures that happen before a bridge reply exists.
type APIError struct {
	Error   string                 `json:"error"`
	Code    string                 `json:"code,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
}

// NewAPIError creates a new APIError with the given message and optional details.
func NewAPIError(message string, details map[string]interface{}) *APIError {
	return &APIError{
		Error:   message,
		Details: details,
	}
}

// WithCode returns a copy of e carrying a machine-readable code.
func (e *APIError) WithCode(code string) *APIError {
	out := *e
	out.Code = code
	return &out
}

// AbortWithBadRequest sends a 400 Bad Request response and aborts the request.
func AbortWithBadRequest(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusBadRequest, NewAPIError(message, details))
}

// AbortWithConflict sends a 409 Conflict response and aborts the request.
func AbortWithConflict(c *gin.Context, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusConflict, NewAPIError(message, details).WithCode(code))
}

// AbortWithUnavailable sends a 503 Service Unavailable response and aborts the request.
// Used when a capability (background engine, scanner) is absent on this host.
func AbortWithUnavailable(c *gin.Context, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, NewAPIError(message, details).WithCode(code))
}

// AbortWithUnprocessable sends a 422 response for domain failures such as a failed scan.
func AbortWithUnprocessable(c *gin.Context, code, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusUnprocessableEntity, NewAPIError(message, details).WithCode(code))
}

// AbortWithInternal sends a 500 Internal Server Error response and aborts the request.
func AbortWithInternal(c *gin.Context, message string, details map[string]interface{}) {
	c.AbortWithStatusJSON(http.StatusInternalServerError, NewAPIError(message, details))
}
