// Package ws adapts gorilla/websocket connections to the hub channel
// abstraction using JSON event frames.
package ws

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/peerprep/matching-server-go/internal/config"
)

const EventAck = "ack"

var (
	ErrClosed     = errors.New("connection closed")
	ErrBufferFull = errors.New("send buffer full")
)

// Frame is an inbound message. Ack is set when the sender expects a reply.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
	Ack   *int64          `json:"ack,omitempty"`
}

type outbound struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
	Ack   *int64 `json:"ack,omitempty"`
}

// FrameHandler is called on the read goroutine for every decoded frame.
type FrameHandler func(c *Conn, f Frame)

// Conn is one websocket client. Writes go through a bounded queue drained by
// a single writer goroutine.
type Conn struct {
	id     string
	ws     *websocket.Conn
	send   chan []byte
	done   chan struct{}
	once   sync.Once
	mu     sync.Mutex
	closed bool
	userID string
}

func NewConn(wsConn *websocket.Conn) *Conn {
	return &Conn{
		id:   uuid.NewString(),
		ws:   wsConn,
		send: make(chan []byte, config.SocketSendBuffer),
		done: make(chan struct{}),
	}
}

func (c *Conn) ID() string { return c.id }

// Bind associates the connection with a user id.
func (c *Conn) Bind(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
}

func (c *Conn) UserID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.userID
}

func (c *Conn) Emit(event string, data any) error {
	return c.write(outbound{Event: event, Data: data})
}

// Reply answers the frame carrying ack id.
func (c *Conn) Reply(ack int64, data any) error {
	return c.write(outbound{Event: EventAck, Data: data, Ack: &ack})
}

func (c *Conn) write(msg outbound) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	select {
	case c.send <- payload:
		return nil
	default:
		log.Warn().
			Str("channelId", c.id).
			Str("event", msg.Event).
			Msg("send buffer full, dropping frame")
		return ErrBufferFull
	}
}

// Close stops the writer, which sends a close frame and shuts the socket.
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	})
	return nil
}

// Run serves the connection until the peer goes away or Close is called.
// It blocks on the read loop; onClose runs once the socket is gone.
func (c *Conn) Run(handle FrameHandler, onClose func(c *Conn)) {
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		c.writePump()
	}()

	c.readPump(handle)

	c.Close()
	<-writerDone
	if onClose != nil {
		onClose(c)
	}
}

func (c *Conn) readPump(handle FrameHandler) {
	c.ws.SetReadLimit(config.SocketMaxMessageSize)
	if err := c.ws.SetReadDeadline(time.Now().Add(config.SocketPongTimeout)); err != nil {
		return
	}
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(config.SocketPongTimeout))
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				log.Info().Str("channelId", c.id).Msg("socket read deadline exceeded")
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Warn().Err(err).Str("channelId", c.id).Msg("socket closed unexpectedly")
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(msg, &frame); err != nil || frame.Event == "" {
			log.Warn().Str("channelId", c.id).Msg("ignoring malformed frame")
			continue
		}
		handle(c, frame)
	}
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(config.SocketPingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.drain()
			_ = c.ws.WriteControl(
				websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(config.SocketWriteTimeout),
			)
			return
		case msg := <-c.send:
			if err := c.writeFrame(msg); err != nil {
				log.Debug().Err(err).Str("channelId", c.id).Msg("socket write failed")
				c.Close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(config.SocketWriteTimeout)); err != nil {
				log.Debug().Err(err).Str("channelId", c.id).Msg("socket ping failed")
				c.Close()
				return
			}
		}
	}
}

// drain flushes frames queued before Close so that a final notification
// still reaches the client.
func (c *Conn) drain() {
	for {
		select {
		case msg := <-c.send:
			if err := c.writeFrame(msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (c *Conn) writeFrame(msg []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(config.SocketWriteTimeout)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}
