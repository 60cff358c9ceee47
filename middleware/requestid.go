package middleware

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	RequestIDKey    = "requestId"
	loggerKey       = "logger"
)

// RequestIDMiddleware ensures that each request has a stable X-Request-ID.
// A client supplied value is propagated, otherwise a UUIDv4 is generated.
// The id is echoed in the response and a logger tagged with it is stored
// in the gin context for handlers (see Logger).
func RequestIDMiddleware(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(RequestIDHeader)
		if reqID == "" || len(reqID) > 128 {
			reqID = uuid.NewString()
		}
		c.Writer.Header().Set(RequestIDHeader, reqID)
		c.Set(RequestIDKey, reqID)
		c.Set(loggerKey, log.With(slog.String("request_id", reqID)))
		c.Next()
	}
}

// Logger returns the request scoped logger, or slog.Default outside of
// RequestIDMiddleware.
func Logger(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if l, ok := v.(*slog.Logger); ok {
			return l
		}
	}
	return slog.Default()
}
