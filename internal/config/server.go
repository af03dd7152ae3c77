package config

import (
	"fmt"
	"time"

	scannerHandler "cardscan/internal/api/scanner/handler"
	scannerService "cardscan/internal/api/scanner/service"
	"cardscan/internal/middleware"
	"cardscan/pkg/cardapi"
	"cardscan/pkg/redis"
	"cardscan/pkg/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ServerOption func(*Server) error

type Server struct {
	engine         *fiber.App
	env            Env
	log            *logrus.Logger
	middleware     middleware.Middleware
	validator      *validator.Validate
	utils          utils.IUtils
	cardAPI        cardapi.IClient
	notifier       redis.INotifier
	scannerService scannerService.IScannerService
	handlers       []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.validator == nil {
		server.validator = NewValidator()
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.utils == nil {
		server.utils = utils.New()
	}
	if server.notifier == nil {
		server.notifier = redis.New()
	}
	if server.cardAPI == nil {
		return nil, fmt.Errorf("card API client is required")
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithEnv(env Env) ServerOption {
	return func(s *Server) error {
		s.env = env
		return nil
	}
}

func WithMiddleware(opts ...middleware.Option) ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		s.middleware = middleware.New(s.log, opts...)
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New()
		return nil
	}
}

// WithCardAPI builds the upload client from the environment. WithEnv and
// WithLogger must come first.
func WithCardAPI() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before the card API client")
		}
		if s.env.CardAPIURL == "" {
			return fmt.Errorf("CARD_API_URL is required")
		}
		s.cardAPI = cardapi.New(s.env.CardAPIURL, s.env.CardAPITimeout, s.log)
		return nil
	}
}

func WithCardAPIClient(client cardapi.IClient) ServerOption {
	return func(s *Server) error {
		s.cardAPI = client
		return nil
	}
}

func WithNotifier(notifier redis.INotifier) ServerOption {
	return func(s *Server) error {
		s.notifier = notifier
		return nil
	}
}

func (s *Server) RegisterHandler() {
	// Scanner Domain
	s.scannerService = scannerService.New(s.log, s.cardAPI, s.notifier, s.utils, s.env.ScannerConfig())
	scannerHandlers := scannerHandler.New(s.log, s.validator, s.middleware, s.scannerService)

	s.setupHealthCheck()
	s.handlers = append(s.handlers, scannerHandlers)
}

func (s *Server) Run() error {
	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware())
	router := s.engine.Group("/api/v1")

	for _, h := range s.handlers {
		h.Start(router)
	}

	port := s.env.AppPort
	if port == "" {
		port = "3000"
	}

	return s.engine.Listen(fmt.Sprintf(":%s", port))
}

// Shutdown closes every open scan session before stopping the listener.
func (s *Server) Shutdown(timeout time.Duration) error {
	if s.scannerService != nil {
		s.scannerService.Shutdown()
	}
	if err := s.notifier.Close(); err != nil {
		s.log.Warnf("Failed to close notifier: %v", err)
	}
	return s.engine.ShutdownWithTimeout(timeout)
}

func (s *Server) setupHealthCheck() {
	s.engine.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.JSON(fiber.Map{
			"message":         "Server is Healthy!",
			"active_sessions": s.scannerService.ActiveSessions(),
		})
	})
}
