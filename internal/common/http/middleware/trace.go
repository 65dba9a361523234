package middleware

import (
	"context"
	"strings"

	"ucode/pkg/utils/contextkey"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	traceIDHeader   = "X-Trace-Id"
	requestIDHeader = "X-Request-Id"

	traceIDContextKey   = "trace_id"
	requestIDContextKey = "request_id"
)

// TraceContextMiddleware ensures trace and request ids are in context and response headers.
// Identity headers are left to the handlers, which pass the acting user explicitly.
func TraceContextMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		ctx = propagate(c, ctx, traceIDHeader, traceIDContextKey, contextkey.TraceID)
		ctx = propagate(c, ctx, requestIDHeader, requestIDContextKey, contextkey.RequestID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func propagate(c *gin.Context, ctx context.Context, header, ginKey string, key any) context.Context {
	id := strings.TrimSpace(c.GetHeader(header))
	if id == "" {
		id = uuid.NewString()
	}
	c.Set(ginKey, id)
	c.Writer.Header().Set(header, id)
	return context.WithValue(ctx, key, id)
}
