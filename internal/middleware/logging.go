package middleware

import (
	"time"

	"taskify/backend/internal/logger"

	"github.com/gin-gonic/gin"
	"github.com/gofrs/uuid"
)

const RequestIDHeader = "X-Request-ID"

// RequestLogger attaches a request-scoped logger carrying request_id to the
// request context and logs one line per request.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		requestID := c.GetHeader(RequestIDHeader)
		if requestID == "" {
			if id, err := uuid.NewV4(); err == nil {
				requestID = id.String()
			}
		}
		c.Header(RequestIDHeader, requestID)

		ctx := c.Request.Context()
		log := logger.FromContext(ctx).With("request_id", requestID)
		c.Request = c.Request.WithContext(logger.WithContext(ctx, log))

		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("request completed", attrs...)
		case status >= 400:
			log.Warn("request completed", attrs...)
		default:
			log.Info("request completed", attrs...)
		}
	}
}
