package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	nanoid "github.com/matoous/go-nanoid/v2"
	"github.com/ncobase/placesearch/logging/logger"
	"github.com/sirupsen/logrus"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// ClientMessageType is an inbound message type.
type ClientMessageType string

const (
	ClientSubscribe   ClientMessageType = "subscribe"
	ClientUnsubscribe ClientMessageType = "unsubscribe"
	ClientPing        ClientMessageType = "ping"
)

// ClientMessage is a message sent by the browser.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	RequestID string            `json:"requestId,omitempty"`
}

// Client is a websocket connection.
type Client struct {
	id        string
	sessionID string
	manager   *Manager
	conn      *websocket.Conn
	send      chan []byte
	logger    *logger.Logger

	mu     sync.RWMutex
	closed bool
}

// NewClient creates a client for an upgraded connection.
func NewClient(manager *Manager, conn *websocket.Conn, sessionID string, buffer int, log *logger.Logger) *Client {
	id, err := nanoid.New()
	if err != nil {
		id = time.Now().Format("20060102150405.000000000")
	}
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		id:        "ws_" + id,
		sessionID: sessionID,
		manager:   manager,
		conn:      conn,
		send:      make(chan []byte, buffer),
		logger:    log,
	}
}

// ID implements Conn.
func (c *Client) ID() string { return c.id }

// Send implements Conn without blocking.
func (c *Client) Send(ev *Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// ReadPump reads client messages until the connection ends.
func (c *Client) ReadPump(ctx context.Context) {
	defer func() {
		c.manager.Disconnect(c.id)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.WithFields(ctx, logrus.Fields{"connection_id": c.id, "error": err}).Warn("websocket read error")
			}
			return
		}

		var msg ClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.WithFields(ctx, logrus.Fields{"connection_id": c.id, "error": err}).Debug("invalid message format")
			continue
		}
		c.handleMessage(ctx, &msg)
	}
}

// WritePump writes queued events and keepalive pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) handleMessage(ctx context.Context, msg *ClientMessage) {
	switch msg.Type {
	case ClientSubscribe:
		if err := c.manager.Subscribe(ctx, c, msg.RequestID, c.sessionID); err != nil {
			_ = c.Send(Build(KindSubscribeError, msg.RequestID, "", ErrorPayload{Code: subscribeErrorCode(err), Message: err.Error()}))
			return
		}
		_ = c.Send(Build(KindSubscribed, msg.RequestID, c.sessionID, nil))

	case ClientUnsubscribe:
		c.manager.Unsubscribe(c.id, msg.RequestID)

	case ClientPing:
		_ = c.Send(Build(KindPong, "", "", nil))
	}
}

func subscribeErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrOwnershipMismatch):
		return "FORBIDDEN"
	case errors.Is(err, ErrMissingRequestID), errors.Is(err, ErrMissingSession):
		return "INVALID_REQUEST"
	default:
		return "INTERNAL"
	}
}
