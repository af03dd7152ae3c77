package scannerHandler

import (
	"time"

	scannerService "cardscan/internal/api/scanner/service"
	"cardscan/internal/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/sirupsen/logrus"
)

type ScannerHandler struct {
	log            *logrus.Logger
	validator      *validator.Validate
	middleware     middleware.Middleware
	scannerService scannerService.IScannerService

	readTimeout  time.Duration
	pingInterval time.Duration
}

type Option func(*ScannerHandler)

// WithKeepAlive sets how long the socket may stay silent and how often the
// server pings it. A pong counts as activity, so interval must be shorter
// than readTimeout.
func WithKeepAlive(readTimeout, interval time.Duration) Option {
	return func(h *ScannerHandler) {
		h.readTimeout = readTimeout
		h.pingInterval = interval
	}
}

func New(
	log *logrus.Logger,
	validator *validator.Validate,
	middleware middleware.Middleware,
	ss scannerService.IScannerService,
	opts ...Option,
) *ScannerHandler {
	h := &ScannerHandler{
		scannerService: ss,
		log:            log,
		validator:      validator,
		middleware:     middleware,
		readTimeout:    maxReadTimeout,
		pingInterval:   pingInterval,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *ScannerHandler) Start(srv fiber.Router) {
	scanner := srv.Group("/scanner")

	scanner.Get("/sessions", h.middleware.NewTokenMiddleware, h.ListSessions)

	scanner.Use("/ws", h.middleware.NewRateLimiter, h.middleware.NewTokenMiddleware, h.PrepareSession)
	scanner.Get("/ws", websocket.New(h.handleScannerWebSocket, websocket.Config{
		ReadBufferSize:  64 * 1024,
		WriteBufferSize: 16 * 1024,
	}))
}
