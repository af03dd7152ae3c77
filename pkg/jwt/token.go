package jwtPkg

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"cardscan/internal/entity"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// TokenQueryParam carries the token for browser websocket upgrades, which
// cannot set an Authorization header.
const TokenQueryParam = "token"

var (
	ErrMissingToken   = errors.New("missing access token")
	ErrInvalidFormat  = errors.New("invalid Authorization format")
	ErrSecretNotSet   = errors.New("JWT secret not configured")
	ErrInvalidClaims  = errors.New("token claims are missing required fields")
	ErrUnexpectedAlgo = errors.New("unexpected signing method")
)

func Sign(Data map[string]interface{}, ExpiredAt time.Duration) (string, int64, error) {
	expiredAt := time.Now().Add(ExpiredAt).Unix()

	JWTSecretKey := os.Getenv("JWT_ACCESS_TOKEN_SECRET")
	if JWTSecretKey == "" {
		return "", 0, fmt.Errorf("JWT_ACCESS_TOKEN_SECRET not set")
	}

	claims := jwt.MapClaims{}
	claims["exp"] = expiredAt
	claims["authorization"] = true

	for i, v := range Data {
		claims[i] = v
	}

	to := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	accessToken, err := to.SignedString([]byte(JWTSecretKey))
	if err != nil {
		logrus.WithError(err).Error("Failed to sign token")
		return "", 0, err
	}

	return accessToken, expiredAt, nil
}

// ExtractToken reads the bearer token from the Authorization header, falling
// back to the token query parameter.
func ExtractToken(c *fiber.Ctx) (string, error) {
	header := c.Get("Authorization")
	if header == "" {
		if token := strings.TrimSpace(c.Query(TokenQueryParam)); token != "" {
			return token, nil
		}
		return "", ErrMissingToken
	}

	if !strings.HasPrefix(header, "Bearer ") {
		return "", ErrInvalidFormat
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}

func VerifyToken(accessToken string, secretEnvKey string) (*jwt.Token, error) {
	JWTSecretKey := os.Getenv(secretEnvKey)
	if JWTSecretKey == "" {
		return nil, ErrSecretNotSet
	}

	token, err := jwt.Parse(accessToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: %v", ErrUnexpectedAlgo, token.Header["alg"])
		}
		return []byte(JWTSecretKey), nil
	})
	if err != nil {
		return nil, err
	}

	return token, nil
}

func VerifyTokenHeader(c *fiber.Ctx, secretEnvKey string) (*jwt.Token, string, error) {
	log := logrus.WithField("func", "VerifyTokenHeader")

	accessToken, err := ExtractToken(c)
	if err != nil {
		log.WithError(err).Debug("No usable access token")
		return nil, "", err
	}

	token, err := VerifyToken(accessToken, secretEnvKey)
	if err != nil {
		log.WithError(err).Warn("Failed to parse JWT token")
		return nil, "", err
	}

	return token, accessToken, nil
}

// UserFromClaims builds the login data stored on the request.
func UserFromClaims(claims jwt.MapClaims, accessToken string) (entity.UserLoginData, error) {
	id, _ := claims["id"].(string)
	email, _ := claims["email"].(string)
	username, _ := claims["username"].(string)
	if id == "" || email == "" || username == "" {
		return entity.UserLoginData{}, ErrInvalidClaims
	}

	return entity.UserLoginData{
		ID:          id,
		Email:       email,
		Username:    username,
		AccessToken: accessToken,
	}, nil
}

func GetUserLoginData(c *fiber.Ctx) (entity.UserLoginData, error) {
	userData := c.Locals("user")

	user, ok := userData.(entity.UserLoginData)
	if !ok {
		return entity.UserLoginData{}, fiber.ErrUnauthorized
	}

	return user, nil
}
