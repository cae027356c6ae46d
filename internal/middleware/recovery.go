package middleware

import (
	"net/http"
	"runtime/debug"

	"taskify/backend/internal/apperror"
	"taskify/backend/internal/logger"

	"github.com/gin-gonic/gin"
)

func RecoveryWithLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.FromContext(c.Request.Context()).Error("panic recovered",
					"panic", rec,
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"stack", string(debug.Stack()),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"success": false,
					"error":   apperror.KindInternal,
					"message": "internal server error",
				})
			}
		}()
		c.Next()
	}
}
