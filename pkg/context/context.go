package context

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type key string

const (
	RequestIDKey   key = "request_id"
	SessionIDKey   key = "session_id"
	AccessTokenKey key = "access_token"
)

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

func GetRequestID(ctx context.Context) string {
	requestID, ok := ctx.Value(RequestIDKey).(string)
	if !ok || requestID == "" {
		return "unknown"
	}
	return requestID
}

func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, SessionIDKey, sessionID)
}

func GetSessionID(ctx context.Context) string {
	sessionID, _ := ctx.Value(SessionIDKey).(string)
	return sessionID
}

// WithAccessToken carries the caller's bearer token to outbound card API calls.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, AccessTokenKey, token)
}

func GetAccessToken(ctx context.Context) string {
	token, _ := ctx.Value(AccessTokenKey).(string)
	return token
}

// FromFiberCtx returns the request's user context, with the request id
// filled in from Locals or the header when the middleware did not run.
func FromFiberCtx(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if _, ok := ctx.Value(RequestIDKey).(string); ok {
		return ctx
	}

	requestID, ok := c.Locals("X-Request-ID").(string)
	if !ok || requestID == "" {
		requestID = c.Get("X-Request-ID")

		if requestID == "" {
			requestID = "unknown"
		}
	}

	return WithRequestID(ctx, requestID)
}
