package response

import (
	"errors"
	"net/http"
	"time"

	"wallet-gateway/pkg/apperror"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ReplayHeader marks a response served from a previously completed operation.
const ReplayHeader = "Idempotent-Replayed"

// ErrorResponse is the failure envelope shared by every endpoint.
type ErrorResponse struct {
	Success     bool        `json:"success"`
	Error       string      `json:"error"`
	Message     string      `json:"message"`
	PinRequired bool        `json:"pin_required,omitempty"`
	Details     interface{} `json:"details,omitempty"`
	RequestID   string      `json:"request_id"`
	Timestamp   string      `json:"timestamp"`
}

// OK sends a 200 response with the operation body as-is.
func OK(c *gin.Context, body interface{}) {
	c.JSON(http.StatusOK, body)
}

// Replay sends the body of a previously completed operation and flags it as a replay.
func Replay(c *gin.Context, body interface{}) {
	c.Header(ReplayHeader, "true")
	c.JSON(http.StatusOK, body)
}

// Error sends an error response. Anything that is not an *apperror.AppError is
// logged with full detail and hidden behind INTERNAL_ERROR.
func Error(c *gin.Context, err error) {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		appErr = apperror.InternalError(err)
	}

	if appErr.HTTPStatus >= http.StatusInternalServerError {
		zerolog.Ctx(c.Request.Context()).Error().
			Err(err).
			Str("error_code", appErr.Code).
			Str("request_id", getRequestID(c)).
			Msg("request failed")
	}

	resp := ErrorResponse{
		Success:     false,
		Error:       appErr.Code,
		Message:     appErr.Message,
		PinRequired: appErr.Code == apperror.CodePinRequired,
		Details:     appErr.Details,
		RequestID:   getRequestID(c),
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	}
	c.AbortWithStatusJSON(appErr.HTTPStatus, resp)
}

// getRequestID retrieves request ID from context, or generates one.
func getRequestID(c *gin.Context) string {
	if id, exists := c.Get("request_id"); exists {
		if s, ok := id.(string); ok {
			return s
		}
	}
	return uuid.New().String()
}
