package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"stockwise/internal/core/apperror"
	"stockwise/pkg/logger"
)

// HeaderRetryAfter is set on responses the caller may retry.
const HeaderRetryAfter = "Retry-After"

// ErrorBody renders err as the JSON envelope returned to clients.
// Foreign errors collapse into INTERNAL_ERROR without details.
func ErrorBody(c *gin.Context, err error) (int, gin.H) {
	if appErr, ok := apperror.AsAppError(err); ok {
		return appErr.HTTPStatus, gin.H{
			"code":    appErr.Code,
			"message": appErr.Message,
			"details": appErr.Details,
		}
	}
	return http.StatusInternalServerError, gin.H{
		"code":    apperror.CodeInternal,
		"message": "Internal server error",
		"details": map[string]any{"request_id": c.GetString(ContextRequestID)},
	}
}

// ErrorHandler turns the last error attached to the gin context into a
// consistent JSON response. Internal causes are logged, never returned.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		ctx := c.Request.Context()

		appErr, ok := apperror.AsAppError(err)
		switch {
		case !ok:
			logger.Error(ctx, "unhandled error", "error", err)
		case appErr.HTTPStatus >= http.StatusInternalServerError:
			logger.Error(ctx, "request failed", "code", appErr.Code, "cause", appErr.Err)
		case appErr.Err != nil:
			logger.Warn(ctx, "request rejected", "code", appErr.Code, "cause", appErr.Err)
		}

		if apperror.IsRetryable(err) {
			c.Header(HeaderRetryAfter, "1")
		}
		status, body := ErrorBody(c, err)
		c.JSON(status, body)
	}
}
