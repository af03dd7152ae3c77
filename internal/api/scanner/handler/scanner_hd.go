package scannerHandler

import (
	"errors"
	"sync"
	"time"

	"cardscan/internal/api/scanner"
	scannerService "cardscan/internal/api/scanner/service"
	"cardscan/internal/entity"
	"cardscan/internal/middleware"
	contextPkg "cardscan/pkg/context"
	"cardscan/pkg/handlerUtil"
	"cardscan/pkg/log"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/context"
)

const (
	openRequestKey = "scan_request"
	maxReadTimeout = 60 * time.Second
	pingInterval   = 25 * time.Second
	writeTimeout   = 10 * time.Second
)

// PrepareSession validates the upgrade request before the socket is opened,
// so bad parameters get an ordinary HTTP error.
func (h *ScannerHandler) PrepareSession(ctx *fiber.Ctx) error {
	requestID := h.middleware.GetRequestID(ctx)
	errHandler := handlerUtil.New(h.log)

	if !websocket.IsWebSocketUpgrade(ctx) {
		return fiber.ErrUpgradeRequired
	}

	var req scanner.OpenSessionRequest
	if err := ctx.QueryParser(&req); err != nil {
		return errHandler.Handle(ctx, requestID, scanner.ErrInvalidMessage, ctx.Path(), "parse_query")
	}
	if err := h.validator.Struct(req); err != nil {
		log.WithRequestID(contextPkg.FromFiberCtx(ctx)).
			WithField("game_id", req.GameID).Debug("Rejected scanner upgrade")
		return errHandler.HandleValidationError(ctx, requestID, err, ctx.Path())
	}

	ctx.Locals(openRequestKey, req)
	return ctx.Next()
}

func (h *ScannerHandler) ListSessions(ctx *fiber.Ctx) error {
	errHandler := handlerUtil.New(h.log)
	return errHandler.HandleSuccess(ctx, fiber.StatusOK, scanner.SessionsResponse{
		Active: h.scannerService.ActiveSessions(),
	})
}

// connSender serialises writes to one websocket.
type connSender struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *connSender) Send(msg scanner.OutboundMessage) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(msg)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return err
	}
	return s.conn.SetWriteDeadline(time.Time{})
}

func (s *connSender) sendError(err error) error {
	return s.Send(scanner.OutboundMessage{Type: scanner.MessageError, Message: handlerUtil.Message(err)})
}

func (h *ScannerHandler) handleScannerWebSocket(c *websocket.Conn) {
	req, _ := c.Locals(openRequestKey).(scanner.OpenSessionRequest)
	user, _ := c.Locals(middleware.UserKey).(entity.UserLoginData)
	requestID, _ := c.Locals(middleware.RequestIDKey).(string)

	logger := h.log.WithFields(log.Fields{
		"request_id": requestID,
		"game_id":    req.GameID,
		"user_id":    user.ID,
	})

	sender := &connSender{conn: c}
	ss, err := h.scannerService.OpenSession(context.Background(), scannerService.OpenSessionParams{
		GameID:     req.GameID,
		CategoryID: req.CategoryID,
		User:       user,
		RequestID:  requestID,
	}, sender)
	if err != nil {
		logger.WithField("error", err.Error()).Error("Failed to open scan session")
		sender.sendError(err)
		return
	}
	defer ss.Close()

	logger = logger.WithField("session_id", ss.ID())
	logger.Info("Scanner WebSocket client connected")
	defer logger.Info("Scanner WebSocket client disconnected")

	c.SetPingHandler(func(data string) error {
		if err := c.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(5*time.Second)); err != nil {
			logger.Debugf("Error sending pong: %v", err)
		}
		return c.SetReadDeadline(time.Now().Add(h.readTimeout))
	})
	// A pong counts as activity; browser hosts never ping on their own.
	c.SetPongHandler(func(string) error {
		return c.SetReadDeadline(time.Now().Add(h.readTimeout))
	})

	stopPing := make(chan struct{})
	defer close(stopPing)
	go h.keepAlive(c, stopPing, logger)

	for {
		if err := c.SetReadDeadline(time.Now().Add(h.readTimeout)); err != nil {
			logger.Errorf("Error setting read deadline: %v", err)
			break
		}

		messageType, message, err := c.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logger.Warnf("Scanner WebSocket error: %v", err)
			}
			break
		}

		switch messageType {
		case websocket.BinaryMessage:
			if err := ss.HandleFrame(message); err != nil {
				if errors.Is(err, scanner.ErrTooManyFrames) {
					continue
				}
				logger.WithField("error", err.Error()).Debug("Dropping frame")
				if err := sender.sendError(err); err != nil {
					return
				}
			}

		case websocket.TextMessage:
			if err := h.handleControl(ss, message); err != nil {
				logger.WithField("error", err.Error()).Warn("Control message rejected")
				if err := sender.sendError(err); err != nil {
					return
				}
			}

		default:
			logger.Warnf("Received unexpected message type: %d", messageType)
		}

		select {
		case <-ss.Done():
			c.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "scan finished"),
				time.Now().Add(writeTimeout))
			return
		default:
		}
	}
}

func (h *ScannerHandler) keepAlive(c *websocket.Conn, done <-chan struct{}, logger *logrus.Entry) {
	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				logger.Debugf("Error sending ping: %v", err)
				return
			}
		}
	}
}

func (h *ScannerHandler) handleControl(ss *scannerService.ScanSession, data []byte) error {
	msg, err := scanner.ParseControlMessage(data)
	if err != nil {
		return scanner.ErrInvalidMessage
	}
	if err := h.validator.Struct(msg); err != nil {
		return scanner.ErrInvalidMessage
	}
	return ss.HandleControl(msg)
}

