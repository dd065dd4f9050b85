// internal/utils/response.go
package utils

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"eload-service/internal/protocol"
	"eload-service/pkg/kel"
)

// APIResponse represents standard API response structure
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	Error     *APIError   `json:"error,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	RequestID string      `json:"request_id,omitempty"`
}

// APIError represents error information
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response
func SuccessResponse(c *gin.Context, statusCode int, message string, data interface{}) {
	response := APIResponse{
		Success:   true,
		Message:   message,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// ErrorResponse sends an error response
func ErrorResponse(c *gin.Context, statusCode int, message string, err error) {
	apiError := &APIError{
		Code:    getErrorCode(statusCode),
		Message: message,
	}

	if err != nil {
		apiError.Details = err.Error()
	}

	response := APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(statusCode, response)
}

// ValidationErrorResponse sends validation error response
func ValidationErrorResponse(c *gin.Context, errors map[string]string) {
	apiError := &APIError{
		Code:    "VALIDATION_ERROR",
		Message: "Request validation failed",
	}

	response := APIResponse{
		Success:   false,
		Message:   "Validation failed",
		Error:     apiError,
		Data:      gin.H{"validation_errors": errors},
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	}

	c.JSON(http.StatusBadRequest, response)
}

// DeviceErrorResponse sends an error returned by the load facade with the
// status matching its kind
func DeviceErrorResponse(c *gin.Context, message string, err error) {
	statusCode, code := ClassifyError(err)

	apiError := &APIError{
		Code:    code,
		Message: message,
		Details: err.Error(),
	}

	var validationErr *kel.ValidationError
	if errors.As(err, &validationErr) {
		apiError.Details = string(validationErr.Rule) + ": " + validationErr.Message
	}

	c.JSON(statusCode, APIResponse{
		Success:   false,
		Message:   message,
		Error:     apiError,
		Timestamp: time.Now(),
		RequestID: getRequestID(c),
	})
}

// ClassifyError maps an error to its HTTP status and error code
func ClassifyError(err error) (int, string) {
	var (
		validationErr *kel.ValidationError
		limitErr      *kel.LimitExceededError
		modeErr       *kel.ModeError
		decodeErr     *kel.DecodeError
	)

	switch {
	case errors.As(err, &validationErr):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR"
	case errors.As(err, &limitErr):
		return http.StatusUnprocessableEntity, "LIMIT_EXCEEDED"
	case errors.As(err, &modeErr):
		return http.StatusConflict, "MODE_ERROR"
	case errors.As(err, &decodeErr):
		return http.StatusBadGateway, "DECODE_ERROR"
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, protocol.ErrReadTimeout):
		return http.StatusInternalServerError, "DEVICE_TIMEOUT"
	case errors.Is(err, protocol.ErrNotOpen):
		return http.StatusInternalServerError, "DEVICE_OFFLINE"
	default:
		return http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"
	}
}

// RequestContext returns the request context carrying the request ID
func RequestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), getRequestID(c))
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if requestID, exists := c.Get("request_id"); exists {
		if id, ok := requestID.(string); ok {
			return id
		}
	}
	return ""
}

// getErrorCode returns error code based on HTTP status
func getErrorCode(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case http.StatusBadGateway:
		return "BAD_GATEWAY"
	case http.StatusTooManyRequests:
		return "RATE_LIMIT_EXCEEDED"
	case http.StatusInternalServerError:
		return "INTERNAL_SERVER_ERROR"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	default:
		return "UNKNOWN_ERROR"
	}
}
