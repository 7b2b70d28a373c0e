package utils

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Response defines the standard API response envelope.
type Response struct {
	Success bool        `json:"success"`
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
	Meta    Meta        `json:"meta"`
}

// ErrorInfo provides details for error responses.
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable"`
}

// Meta contains request-scoped metadata.
type Meta struct {
	RequestID string `json:"requestId"`
	Timestamp string `json:"timestamp"`
}

// Success writes a success response with the standard envelope.
func Success(c *gin.Context, code int, message string, data interface{}) {
	c.JSON(code, Response{
		Success: true,
		Code:    code,
		Message: message,
		Data:    data,
		Meta:    newMeta(c),
	})
}

// Error writes an error response with provided API error code and message.
func Error(c *gin.Context, code int, errCode, message string) {
	c.JSON(code, Response{
		Success: false,
		Code:    code,
		Message: message,
		Error: &ErrorInfo{
			Code:    errCode,
			Message: message,
		},
		Meta: newMeta(c),
	})
}

// ErrorFrom writes the error response matching the kind of err. Quota
// exhaustion reads as payment required, generation failures as retryable.
func ErrorFrom(c *gin.Context, err error) {
	status, message := statusFor(err)
	c.JSON(status, Response{
		Success: false,
		Code:    status,
		Message: message,
		Error: &ErrorInfo{
			Code:      ErrorCode(err),
			Message:   message,
			Retryable: IsRetryable(err),
		},
		Meta: newMeta(c),
	})
}

func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrQuotaExhausted):
		return http.StatusPaymentRequired, "Credit quota exhausted, purchase more credits to continue"
	case errors.Is(err, ErrGenerationFailed):
		return http.StatusBadGateway, "Schema generation failed, please try again"
	case errors.Is(err, ErrProcessingBusy):
		return http.StatusConflict, "Product is already being processed, retry later"
	case errors.Is(err, ErrTenantNotOnboarded):
		return http.StatusConflict, "Store has not completed onboarding"
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest, "Invalid request"
	case errors.Is(err, ErrInvalidAmount):
		return http.StatusBadRequest, "Amount must be greater than zero"
	case errors.Is(err, ErrInvalidSignature):
		return http.StatusUnauthorized, "Invalid webhook signature"
	case errors.Is(err, ErrInvalidToken):
		return http.StatusUnauthorized, "Invalid or expired token"
	case errors.Is(err, ErrProductNotFound):
		return http.StatusNotFound, "Product not found"
	case errors.Is(err, ErrTenantNotFound):
		return http.StatusNotFound, "Store not found"
	case errors.Is(err, ErrLedgerIntegrity):
		return http.StatusInternalServerError, "Credit ledger fault"
	case errors.Is(err, ErrPersistenceFailed):
		return http.StatusInternalServerError, "Generated schema could not be stored"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

func newMeta(c *gin.Context) Meta {
	return Meta{
		RequestID: getRequestID(c),
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}

func getRequestID(c *gin.Context) string {
	if id := c.GetString("request_id"); id != "" {
		return id
	}
	return uuid.New().String()[:8]
}
