package respond

import (
	"github.com/gin-gonic/gin"

	"resumes-api/internal/shared/telemetry"
)

// Error kinds are stable identifiers clients can branch on.
const (
	KindRouteNotFound       = "RouteNotFound"
	KindInvalidPayload      = "InvalidPayload"
	KindNotFound            = "NotFound"
	KindConflict            = "Conflict"
	KindIdentifierExhausted = "IdentifierExhausted"
	KindStoreUnavailable    = "StoreUnavailable"
	KindInternal            = "Internal"
)

// ErrorResponse is the standardized error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// Error sends a standardized error response and aborts the handler chain.
func Error(c *gin.Context, status int, kind, message string) {
	fields := map[string]any{
		"status":     status,
		"kind":       kind,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	}
	if resumeID := c.GetString("resumeId"); resumeID != "" {
		fields["resume_id"] = resumeID
	}
	if status >= 500 {
		telemetry.Error("http.error", fields)
	} else {
		telemetry.Info("http.error", fields)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   kind,
		Message: message,
	})
}
