// internal/pkg/response/response.go
package response

import (
	"net/http"

	xerrors "isp-billing-service/internal/pkg/errors"

	"github.com/gin-gonic/gin"
)

// Response defines the standard API response format.
type Response struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Field   string      `json:"field,omitempty"`
}

// Success sends a successful response with a message and optional data.
func Success(c *gin.Context, status int, message string, data interface{}) {
	if status == 0 {
		status = http.StatusOK
	}

	c.JSON(status, Response{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// Error sends a standardized error response.
func Error(c *gin.Context, code int, message string, err error, data ...interface{}) {
	// CRITICAL: Abort FIRST before writing response
	c.Abort()

	response := Response{
		Success: false,
		Message: message,
	}

	if err != nil {
		response.Error = err.Error()
	}

	if len(data) > 0 {
		response.Data = data[0]
	}

	c.JSON(code, response)
}

// FromError maps the service error taxonomy onto an HTTP status. Business rejections carry
// their field and reason; persistence and unknown failures are reported generically.
func FromError(c *gin.Context, message string, err error) {
	c.Abort()

	resp := Response{Success: false, Message: message}
	status := StatusFor(err)

	var ve *xerrors.ValidationError
	var ce *xerrors.ConflictError
	switch {
	case xerrors.As(err, &ve):
		resp.Field = ve.Field
		resp.Error = ve.Reason
	case xerrors.As(err, &ce):
		resp.Field = ce.Field
		resp.Error = ce.Reason
	case xerrors.IsBusiness(err):
		resp.Error = err.Error()
	case xerrors.Is(err, xerrors.ErrExhaustedRetries):
		resp.Error = "temporarily unable to complete the request, please retry"
	default:
		resp.Error = "request could not be completed"
	}

	c.JSON(status, resp)
}

// StatusFor returns the HTTP status for an error.
func StatusFor(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case xerrors.Is(err, xerrors.ErrInvalidInput), xerrors.Is(err, xerrors.ErrBadRequest):
		return http.StatusBadRequest
	case xerrors.Is(err, xerrors.ErrNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, xerrors.ErrConflict), xerrors.Is(err, xerrors.ErrDuplicateEntry):
		return http.StatusConflict
	case xerrors.Is(err, xerrors.ErrUnauthorized):
		return http.StatusUnauthorized
	case xerrors.Is(err, xerrors.ErrForbidden):
		return http.StatusForbidden
	case xerrors.Is(err, xerrors.ErrExhaustedRetries):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError sends a 400 Bad Request response for invalid input.
func ValidationError(c *gin.Context, message string, err error) {
	Error(c, http.StatusBadRequest, message, err)
}

// Unauthorized sends a 401 Unauthorized response.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, message, nil)
}

// Forbidden sends a 403 Forbidden response.
func Forbidden(c *gin.Context, message string) {
	Error(c, http.StatusForbidden, message, nil)
}

// NotFound sends a 404 Not Found response.
func NotFound(c *gin.Context, message string) {
	Error(c, http.StatusNotFound, message, nil)
}
