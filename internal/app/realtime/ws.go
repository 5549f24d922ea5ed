package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

const (
	// timeout duration for writing to the WebSocket connection.
	writeWait = 10 * time.Second

	// maximum time allowed to wait for a Pong message from the hub.
	pongWait = 60 * time.Second

	// frequency at which the client sends a Ping message.
	pingPeriod = (pongWait * 9) / 10

	// maximum allowed size (in bytes) of a frame sent by the hub.
	maxFrameSize = 1 << 20
)

// WSDialer dials the hub over gorilla/websocket.
type WSDialer struct {
	hubURL string
	dialer *websocket.Dialer
}

func NewWSDialer(hubURL string) *WSDialer {
	return &WSDialer{
		hubURL: hubURL,
		dialer: &websocket.Dialer{
			HandshakeTimeout: HandshakeTimeout,
		},
	}
}

// HubURL builds the connection URL carrying the access token and room code.
func HubURL(hubURL string, jc JoinContext) (string, error) {
	u, err := url.Parse(hubURL)
	if err != nil {
		return "", fmt.Errorf("invalid hub url: %w", err)
	}

	q := u.Query()
	if jc.AccessToken != "" {
		q.Set("access_token", jc.AccessToken)
	}
	q.Set("roomCode", jc.RoomCode)
	u.RawQuery = q.Encode()

	return u.String(), nil
}

func (d *WSDialer) Dial(ctx context.Context, jc JoinContext) (Conn, error) {
	target, err := HubURL(d.hubURL, jc)
	if err != nil {
		return nil, err
	}

	ws, resp, err := d.dialer.DialContext(ctx, target, nil)
	if err != nil {
		if resp != nil {
			return nil, errs.HTTPStatus(resp.StatusCode, "hub handshake rejected", nil)
		}
		return nil, errs.Network(err)
	}

	return newWSConn(ws, jc), nil
}

type wsConn struct {
	ws     *websocket.Conn
	frames chan Frame
	done   chan struct{}
	log    zerolog.Logger

	writeMu   sync.Mutex
	closeOnce sync.Once

	errMu sync.Mutex
	err   error
}

func newWSConn(ws *websocket.Conn, jc JoinContext) *wsConn {
	c := &wsConn{
		ws:     ws,
		frames: make(chan Frame, 64),
		done:   make(chan struct{}),
		log: logx.Component("realtime.ws").With().
			Str("room_code", jc.RoomCode).
			Str("user_id", jc.UserID).
			Logger(),
	}

	go c.readPump()
	go c.pingPump()

	return c
}

func (c *wsConn) Frames() <-chan Frame { return c.frames }

func (c *wsConn) Err() error {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	return c.err
}

func (c *wsConn) setErr(err error) {
	c.errMu.Lock()
	defer c.errMu.Unlock()
	if c.err == nil {
		c.err = err
	}
}

func (c *wsConn) Send(ctx context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("failed to encode frame: %w", err)
	}

	deadline := time.Now().Add(writeWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return errs.Network(err)
	}
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return errs.Network(err)
	}
	return nil
}

func (c *wsConn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)

		c.writeMu.Lock()
		c.ws.SetWriteDeadline(time.Now().Add(writeWait))
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		if werr := c.ws.WriteMessage(websocket.CloseMessage, msg); werr != nil {
			c.log.Debug().Err(werr).Msg("Error writing close message")
		}
		c.writeMu.Unlock()

		err = c.ws.Close()
	})
	return err
}

// readPump forwards inbound invocation frames until the connection ends.
func (c *wsConn) readPump() {
	defer close(c.frames)

	c.ws.SetReadLimit(maxFrameSize)

	if err := c.ws.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.setErr(err)
		return
	}

	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Info().Err(err).Msg("Hub connection closed unexpectedly")
			}
			c.setErr(errs.Network(err))
			return
		}

		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			c.log.Warn().Err(err).Bytes("frame", data).Msg("Hub sent invalid JSON")
			continue
		}

		switch f.Type {
		case FramePing:
			continue
		case FrameClose:
			reason := f.Error
			if reason == "" {
				reason = "hub closed the connection"
			}
			c.setErr(errors.New(reason))
			c.ws.Close()
			return
		}

		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

// pingPump keeps the connection alive with WebSocket pings.
func (c *wsConn) pingPump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.writeMu.Lock()
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			err := c.ws.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				c.log.Debug().Err(err).Msg("Error writing ping")
				return
			}
		}
	}
}
