package middleware

import (
	"time"

	contextPkg "cardscan/pkg/context"
	"cardscan/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

const (
	RequestIDKey = "X-Request-ID"

	maxRequestIDLength = 64
)

// NewRequestIDMiddleware keeps a caller supplied X-Request-ID or mints a ULID.
// The id is echoed on the response and carried on the user context so the
// card API client forwards it.
func NewRequestIDMiddleware() fiber.Handler {
	ids := utils.New()

	return func(c *fiber.Ctx) error {
		requestID := c.Get(RequestIDKey)
		if requestID == "" || len(requestID) > maxRequestIDLength {
			requestID, _ = ids.NewULIDFromTimestamp(time.Now())
		}

		c.Locals(RequestIDKey, requestID)
		c.Set(RequestIDKey, requestID)
		c.SetUserContext(contextPkg.WithRequestID(c.UserContext(), requestID))

		return c.Next()
	}
}
