package middleware

import (
	"cardscan/pkg/handlerUtil"
	jwtPkg "cardscan/pkg/jwt"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

const (
	AccessTokenSecret = "JWT_ACCESS_TOKEN_SECRET"
	UserKey           = "user"
)

type tokenMiddleware struct {
	secretEnvKey string
}

func newTokenMiddleware(secretEnvKey string) *tokenMiddleware {
	return &tokenMiddleware{secretEnvKey: secretEnvKey}
}

func (m *middleware) unauthorized(ctx *fiber.Ctx) error {
	return handlerUtil.New(m.log).HandleUnauthorized(ctx, m.GetRequestID(ctx),
		"Unauthorized, access token invalid or expired")
}

// NewTokenMiddleware verifies the access token from the Authorization header
// or the token query parameter and stores the caller in Locals("user").
func (m *middleware) NewTokenMiddleware(ctx *fiber.Ctx) error {
	log := m.log.WithFields(logrus.Fields{
		"request_id": m.GetRequestID(ctx),
		"path":       ctx.Path(),
		"method":     ctx.Method(),
		"client_ip":  ctx.IP(),
	})

	userToken, accessToken, err := jwtPkg.VerifyTokenHeader(ctx, m.token.secretEnvKey)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Token verification failed")
		return m.unauthorized(ctx)
	}

	claims, ok := userToken.Claims.(jwt.MapClaims)
	if !ok {
		log.WithField("error", "Invalid token claims").Warn("Token claims check")
		return m.unauthorized(ctx)
	}

	user, err := jwtPkg.UserFromClaims(claims, accessToken)
	if err != nil {
		log.WithField("error", err.Error()).Warn("Token claims check")
		return m.unauthorized(ctx)
	}
	ctx.Locals(UserKey, user)

	log.WithField("user_id", user.ID).Debug("Authentication successful")
	return ctx.Next()
}
