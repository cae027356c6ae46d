package middleware

import (
	"math"
	"net/http"
	"strconv"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// AbortWithError renders err and stops the handler chain. Errors without a
// kind are logged and reported as a generic internal error.
func AbortWithError(c *gin.Context, err error) {
	appErr, ok := apperror.As(err)
	if !ok {
		logger.FromContext(c.Request.Context()).Error("request failed",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"error", err,
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   apperror.KindInternal,
			"message": "Something went wrong, please try again later",
		})
		return
	}

	body := gin.H{
		"success": false,
		"error":   appErr.Kind,
		"message": appErr.Message,
	}
	if appErr.Reason != apperror.ReasonNone {
		body["reason"] = appErr.Reason
	}
	if appErr.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(appErr.RetryAfter.Seconds()))))
	}
	c.AbortWithStatusJSON(apperror.HTTPStatus(appErr.Kind), body)
}
