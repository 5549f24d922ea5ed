/*
Package hub is the push side of the reference backend: one Room per room code fans
invocation frames out to every connected Client.

This file defines Client, one websocket connection. ReadPump handles the invocations
a participant may send (JoinRoom, LeaveRoom, ResetVoting); WritePump is the only
writer on the connection.
*/
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"planpoker/internal/app/realtime"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/randx"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192

	sendQueueSize = 256
)

// Invocation targets accepted from participants.
const (
	MethodJoinRoom    = "JoinRoom"
	MethodLeaveRoom   = "LeaveRoom"
	MethodResetVoting = "ResetVoting"
)

// Identity is the participant a connection was authorized for.
type Identity struct {
	RoomID   string
	RoomCode string
	UserID   string
}

// Client is one participant connection.
type Client struct {
	room     *Room
	conn     *websocket.Conn
	identity Identity

	// joined is only touched by the ReadPump goroutine.
	joined bool

	mu     sync.Mutex
	send   chan []byte
	closed bool

	logger zerolog.Logger
}

// NewClient wraps conn for identity in room.
func NewClient(room *Room, conn *websocket.Conn, identity Identity) *Client {
	return &Client{
		room:     room,
		conn:     conn,
		identity: identity,
		send:     make(chan []byte, sendQueueSize),
		logger: logx.Logger().With().
			Str("component", "hub.client").
			Str("client_id", identity.UserID).
			Str("room_code", identity.RoomCode).
			Logger(),
	}
}

// enqueue queues data without blocking. It reports false when the queue is
// full or closed.
func (c *Client) enqueue(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		return false
	}
}

// closeSend ends WritePump after the queued frames are written.
func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendEvent(target string, args ...any) {
	data, err := encode(target, args...)
	if err != nil {
		c.logger.Error().Err(err).Str("target", target).Msg("Failed to encode event")
		return
	}
	if !c.enqueue(data) {
		c.logger.Warn().Str("target", target).Msg("Client send queue full, dropping event")
	}
}

// Kick sends a close frame carrying reason and ends the connection.
func (c *Client) Kick(reason string) {
	c.logger.Warn().Str("reason", reason).Msg("Closing hub connection")

	if data, err := json.Marshal(realtime.Frame{Type: realtime.FrameClose, Error: reason}); err == nil {
		c.enqueue(data)
	}
	c.closeSend()
}

// ReadPump reads frames until the connection fails, then unregisters the client.
func (c *Client) ReadPump() {
	defer c.cleanupOnDisconnect()

	c.conn.SetReadLimit(maxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set read deadline")
		return
	}

	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Info().Err(err).Msg("Connection closed unexpectedly")
			}
			return
		}

		c.processInbound(data)
	}
}

func (c *Client) cleanupOnDisconnect() {
	if c.joined {
		c.room.UnregisterClient(c)
	}
	c.closeSend()

	if err := c.conn.Close(); err != nil {
		c.logger.Debug().Err(err).Msg("Connection close error")
	}
}

func (c *Client) processInbound(data []byte) {
	var f realtime.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		c.logger.Warn().Err(err).Msg("Client sent invalid JSON")
		return
	}

	switch f.Type {
	case realtime.FramePing:
		return
	case realtime.FrameClose:
		c.closeSend()
		return
	case realtime.FrameInvocation:
	default:
		c.logger.Warn().Int("frame_type", int(f.Type)).Msg("Client sent unsupported frame type")
		return
	}

	switch f.Target {
	case MethodJoinRoom:
		c.handleJoin(f)
	case MethodLeaveRoom:
		c.handleLeave(f)
	case MethodResetVoting:
		c.handleReset(f)
	default:
		c.logger.Warn().Str("target", f.Target).Msg("Client invoked unknown method")
	}
}

// matches reports whether the (roomCode, roomId, userId) arguments of f name
// this connection's identity.
func (c *Client) matches(f realtime.Frame) bool {
	var code, roomID, userID string
	if f.Arg(0, &code) != nil || f.Arg(1, &roomID) != nil || f.Arg(2, &userID) != nil {
		return false
	}
	return randx.NormalizeRoomCode(code) == c.identity.RoomCode &&
		roomID == c.identity.RoomID &&
		userID == c.identity.UserID
}

func (c *Client) handleJoin(f realtime.Frame) {
	if !c.matches(f) {
		c.Kick("join does not match the access token")
		return
	}
	if c.joined {
		return
	}

	if !c.room.RegisterClient(c) {
		c.Kick("room closed")
		return
	}
	c.joined = true
}

func (c *Client) handleLeave(f realtime.Frame) {
	if !c.matches(f) {
		c.Kick("leave does not match the access token")
		return
	}

	if err := c.room.backend.Leave(c.identity.RoomID, c.identity.UserID); err != nil {
		c.logger.Debug().Err(err).Msg("Leave for unknown participant")
	}
	if c.joined {
		c.room.UnregisterClient(c)
		c.joined = false
	}
	c.closeSend()
}

func (c *Client) handleReset(f realtime.Frame) {
	if !c.matches(f) {
		c.Kick("reset does not match the access token")
		return
	}

	if err := c.room.backend.ResetVoting(c.identity.RoomID, c.identity.UserID); err != nil {
		c.logger.Warn().Err(err).Msg("Reset voting rejected")
	}
}

// WritePump writes queued frames and keepalive pings until the queue closes.
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		if err := c.conn.Close(); err != nil {
			c.logger.Debug().Err(err).Msg("Connection close error in WritePump")
		}
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.write(message, ok) {
				return
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}

// write sends one queued message, or the close message once the queue is
// closed. It reports whether WritePump should continue.
func (c *Client) write(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		c.logger.Error().Err(err).Msg("Failed to set write deadline")
		return false
	}

	if !ok {
		closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if err := c.conn.WriteMessage(websocket.CloseMessage, closeMsg); err != nil {
			c.logger.Debug().Err(err).Msg("Error writing close message")
		}
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		c.logger.Debug().Err(err).Msg("Error writing message")
		return false
	}

	return true
}
