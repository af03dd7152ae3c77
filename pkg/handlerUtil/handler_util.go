package handlerUtil

import (
	"errors"

	"cardscan/internal/api/scanner"
	"cardscan/internal/capture"
	"cardscan/pkg/log"
	"cardscan/pkg/response"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

type ErrorHandler struct {
	logger *logrus.Logger
}

func New(logger *logrus.Logger) *ErrorHandler {
	return &ErrorHandler{
		logger: logger,
	}
}

// Translate maps capture workflow errors onto the scanner's response errors.
// Errors it does not know are returned unchanged.
func Translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, capture.ErrInvalidTransition):
		return scanner.ErrInvalidTransition
	case errors.Is(err, capture.ErrInvalidMode):
		return scanner.ErrInvalidMessage
	case errors.Is(err, capture.ErrSessionClosed):
		return scanner.ErrSessionClosed
	case errors.Is(err, capture.ErrCameraNotFailed):
		return scanner.ErrInvalidTransition
	case errors.Is(err, capture.ErrCameraUnavailable):
		return scanner.ErrCameraUnavailable
	}
	return err
}

// Message is the client facing text for err.
func Message(err error) string {
	var respErr *response.Error
	if errors.As(Translate(err), &respErr) {
		return respErr.Error()
	}
	return "An unexpected error occurred"
}

func (h *ErrorHandler) Handle(c *fiber.Ctx, requestID string, err error, path string, operation string) error {
	fields := log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
		"operation":  operation,
	}

	var respErr *response.Error
	if errors.As(Translate(err), &respErr) {
		fields["code"] = respErr.Code
		h.logger.WithFields(fields).Warn("Operation failed with error response")
		return c.Status(respErr.Code).JSON(ErrorResponse{Error: respErr.Error()})
	}

	traceID := log.ErrorWithTraceID(fields, "Unexpected error")

	return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{
		Error:   "An unexpected error occurred",
		Code:    "INTERNAL_ERROR",
		Details: "trace_id: " + traceID,
	})
}

func (h *ErrorHandler) HandleValidationError(c *fiber.Ctx, requestID string, err error, path string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"error":      err.Error(),
		"path":       path,
	}).Warn("Validation failed")

	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{
		Error: "Validation failed: " + err.Error(),
		Code:  "VALIDATION_ERROR",
	})
}

func (h *ErrorHandler) HandleUnauthorized(c *fiber.Ctx, requestID string, message string) error {
	h.logger.WithFields(log.Fields{
		"request_id": requestID,
		"path":       c.Path(),
		"message":    message,
	}).Warn("Unauthorized access")

	return c.Status(fiber.StatusUnauthorized).JSON(ErrorResponse{
		Error: message,
		Code:  "UNAUTHORIZED",
	})
}

func (h *ErrorHandler) HandleSuccess(c *fiber.Ctx, statusCode int, data interface{}) error {
	if data == nil {
		return c.SendStatus(statusCode)
	}
	return c.Status(statusCode).JSON(data)
}
