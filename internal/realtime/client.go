package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"alfredoptarigan/interview-engine/internal/models"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	sendBuffer = 32
	// frame overhead on top of the base64 audio payload
	frameOverhead = 64 << 10
)

// Client is one websocket connection. Frames are handled one at a time in
// the read loop; writes go through the send channel.
type Client struct {
	conn     *websocket.Conn
	send     chan []byte
	identity models.Identity
	limiter  *rate.Limiter
	log      *zap.Logger

	readLimit int64
	pongWait  time.Duration

	mu           sync.Mutex
	sessionID    *uuid.UUID
	audioEnabled bool
	closed       bool
}

func newClient(conn *websocket.Conn, identity models.Identity, limiter *rate.Limiter, readLimit int64, log *zap.Logger) *Client {
	return &Client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		identity:  identity,
		limiter:   limiter,
		log:       log,
		readLimit: readLimit,
		pongWait:  pongWait,
	}
}

// Send queues a frame. A client that cannot keep up is disconnected.
func (c *Client) Send(frame OutboundFrame) {
	payload, err := json.Marshal(frame)
	if err != nil {
		c.log.Error("failed to encode frame", zap.String("event", frame.Event), zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	select {
	case c.send <- payload:
	default:
		c.log.Warn("send buffer full, closing connection")
		c.closed = true
		close(c.send)
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

func (c *Client) Session() (uuid.UUID, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionID == nil {
		return uuid.Nil, false
	}
	return *c.sessionID, true
}

func (c *Client) setSession(id uuid.UUID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionID = &id
}

// AudioEnabled reports whether the client asked for spoken questions.
func (c *Client) AudioEnabled() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.audioEnabled
}

func (c *Client) setAudioEnabled(enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.audioEnabled = enabled
}

// readPump delivers inbound frames to handle until the connection fails.
// Pongs are only processed while reading, so the deadline is renewed after
// every handled frame as well.
func (c *Client) readPump(handle func(*Client, InboundFrame)) {
	c.conn.SetReadLimit(c.readLimit)
	c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("websocket closed unexpectedly", zap.Error(err))
			}
			return
		}

		if !c.limiter.Allow() {
			c.Send(errorFrame("rate_limited", "too many messages"))
			continue
		}

		var frame InboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.Send(errorFrame("bad_request", "malformed frame"))
			continue
		}
		handle(c, frame)
		c.conn.SetReadDeadline(time.Now().Add(c.pongWait))
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.pongWait * 9 / 10)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func errorFrame(code, message string) OutboundFrame {
	return OutboundFrame{Event: EventError, Data: ErrorPayload{Code: code, Message: message}}
}
