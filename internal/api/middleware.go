package api

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"payment-service/internal/logcontext"
)

const requestIDHeader = "X-Request-Id"

// requestContext tags the request context with a request id, echoed back in
// the response headers.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(requestIDHeader, id)

		ctx := logcontext.AppendCtx(c.Request.Context(), slog.String("requestId", id))
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"durationMs", time.Since(start).Milliseconds(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.Last().Error())
		}

		ctx := c.Request.Context()
		switch {
		case c.Writer.Status() >= 500:
			logger.ErrorContext(ctx, "Request failed", attrs...)
		case c.Writer.Status() >= 400:
			logger.WarnContext(ctx, "Request rejected", attrs...)
		default:
			logger.InfoContext(ctx, "Request served", attrs...)
		}
	}
}
