package websocketPkg

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"cardscan/internal/api/scanner"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
)

var ErrNotConnected = errors.New("not connected to scanner")

// IScannerClient drives a scanner session from the camera side: it sends
// frames and control messages and receives the server's messages.
type IScannerClient interface {
	Connect(url, token string) error
	SendFrame(frame []byte) error
	SendControl(msg scanner.ControlMessage) error
	Messages() <-chan scanner.OutboundMessage
	IsConnected() bool
	Close()
}

type scannerClient struct {
	conn         *websocket.Conn
	mu           sync.Mutex
	messages     chan scanner.OutboundMessage
	done         chan struct{}
	pingInterval time.Duration
	writeTimeout time.Duration
	log          *logrus.Logger
}

func NewScannerClient(log *logrus.Logger) IScannerClient {
	return &scannerClient{
		pingInterval: 30 * time.Second,
		writeTimeout: 5 * time.Second,
		log:          log,
	}
}

func (c *scannerClient) Connect(url, token string) error {
	c.Close()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.log.Infof("Connecting to scanner at %s", url)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}

	conn, resp, err := dialer.Dial(url, header)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("failed to connect to %s (%d): %w", url, resp.StatusCode, err)
		}
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}

	conn.SetPingHandler(func(appData string) error {
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Error sending pong: %v", err)
		}
		return nil
	})

	c.conn = conn
	c.messages = make(chan scanner.OutboundMessage, 32)
	c.done = make(chan struct{})

	go c.readLoop(conn, c.messages, c.done)
	go c.keepAlive(conn, c.done)

	return nil
}

func (c *scannerClient) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

// Messages is closed when the connection ends.
func (c *scannerClient) Messages() <-chan scanner.OutboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.messages
}

func (c *scannerClient) SendFrame(frame []byte) error {
	return c.write(websocket.BinaryMessage, frame)
}

func (c *scannerClient) SendControl(msg scanner.ControlMessage) error {
	payload, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(msg)
	if err != nil {
		return fmt.Errorf("error encoding %s message: %w", msg.Type, err)
	}
	return c.write(websocket.TextMessage, payload)
}

func (c *scannerClient) write(messageType int, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return ErrNotConnected
	}

	c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	if err := c.conn.WriteMessage(messageType, data); err != nil {
		c.conn.Close()
		c.conn = nil
		return fmt.Errorf("error sending message: %w", err)
	}
	c.conn.SetWriteDeadline(time.Time{})

	return nil
}

func (c *scannerClient) readLoop(conn *websocket.Conn, out chan<- scanner.OutboundMessage, done <-chan struct{}) {
	defer close(out)

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Warnf("Scanner connection error: %v", err)
			}
			c.mu.Lock()
			if c.conn == conn {
				c.conn = nil
			}
			c.mu.Unlock()
			return
		}

		var msg scanner.OutboundMessage
		if err := jsoniter.Unmarshal(message, &msg); err != nil {
			c.log.Warnf("Error decoding scanner message: %v", err)
			continue
		}

		select {
		case out <- msg:
		case <-done:
			return
		}
	}
}

func (c *scannerClient) keepAlive(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		if c.conn != conn {
			c.mu.Unlock()
			return
		}
		err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(c.writeTimeout))
		if err != nil {
			c.log.Warnf("Ping failed, marking connection as dead: %v", err)
			c.conn = nil
			conn.Close()
			c.mu.Unlock()
			return
		}
		c.mu.Unlock()
	}
}

func (c *scannerClient) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.done != nil {
		close(c.done)
		c.done = nil
	}
	if c.conn != nil {
		c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(c.writeTimeout))
		c.conn.Close()
		c.conn = nil
	}
}
