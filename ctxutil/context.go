// Package ctxutil carries request-scoped identity (trace, session, user) through context.Context.
package ctxutil

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type ctxKey string

const (
	ginContextKey ctxKey = "gin_context"
	sessionIDKey  ctxKey = "session_id"
	userIDKey     ctxKey = "user_id"
	// TraceIDKey is the log field and context key of the trace id.
	TraceIDKey = "trace_id"
)

// WithGinContext returns a context.Context that embeds the *gin.Context.
func WithGinContext(ctx context.Context, c *gin.Context) context.Context {
	return context.WithValue(ctx, ginContextKey, c)
}

// GetGinContext extracts *gin.Context from context.Context if it exists.
func GetGinContext(ctx context.Context) (*gin.Context, bool) {
	if c, ok := ctx.Value(ginContextKey).(*gin.Context); ok {
		return c, ok
	}
	return nil, false
}

// GetValue retrieves a value from the context, preferring the gin context store.
func GetValue(ctx context.Context, key string) any {
	if c, ok := GetGinContext(ctx); ok {
		if val, exists := c.Get(key); exists {
			return val
		}
	}
	return ctx.Value(ctxKey(key))
}

// SetValue sets a value to the context and to the gin context if available.
func SetValue(ctx context.Context, key string, val any) context.Context {
	if c, ok := GetGinContext(ctx); ok {
		c.Set(key, val)
	}
	return context.WithValue(ctx, ctxKey(key), val)
}

// SetSessionID sets the caller session id.
func SetSessionID(ctx context.Context, sid string) context.Context {
	return SetValue(ctx, string(sessionIDKey), sid)
}

// GetSessionID gets the caller session id.
func GetSessionID(ctx context.Context) string {
	if sid, ok := GetValue(ctx, string(sessionIDKey)).(string); ok {
		return sid
	}
	return ""
}

// SetUserID sets the caller user id.
func SetUserID(ctx context.Context, uid string) context.Context {
	return SetValue(ctx, string(userIDKey), uid)
}

// GetUserID gets the caller user id.
func GetUserID(ctx context.Context) string {
	if uid, ok := GetValue(ctx, string(userIDKey)).(string); ok {
		return uid
	}
	return ""
}

// GetTraceID gets trace id from context.Context or gin.Context.
func GetTraceID(ctx context.Context) string {
	if traceID, ok := GetValue(ctx, TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// SetTraceID sets trace id to context.Context and gin.Context if available.
func SetTraceID(ctx context.Context, traceID string) context.Context {
	return SetValue(ctx, TraceIDKey, traceID)
}

// EnsureTraceID ensures that a trace ID exists in the context.
func EnsureTraceID(ctx context.Context) (context.Context, string) {
	if traceID := GetTraceID(ctx); traceID != "" {
		return ctx, traceID
	}
	traceID := uuid.NewString()
	return SetTraceID(ctx, traceID), traceID
}
