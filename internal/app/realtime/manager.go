package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"planpoker/internal/pkg/logx"
)

const (
	ReconnectBase     = time.Second
	ReconnectCap      = 30 * time.Second
	ReconnectAttempts = 8

	// HandshakeTimeout bounds the join and leave invocations.
	HandshakeTimeout = 5 * time.Second

	MethodJoinRoom    = "JoinRoom"
	MethodLeaveRoom   = "LeaveRoom"
	MethodResetVoting = "ResetVoting"
)

// ErrNotConnected is returned by Invoke while no connection is live.
var ErrNotConnected = errors.New("realtime: not connected")

// State is the connection lifecycle state.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Reconnecting
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Reconnecting:
		return "reconnecting"
	default:
		return "disconnected"
	}
}

// JoinContext is everything needed to join a room's broadcast group.
type JoinContext struct {
	RoomCode    string
	RoomID      string
	UserID      string
	AccessToken string
}

// Complete reports whether a connection may be attempted.
func (j JoinContext) Complete() bool {
	return j.RoomCode != "" && j.RoomID != "" && j.UserID != ""
}

// Conn is one live hub connection.
type Conn interface {
	Send(ctx context.Context, f Frame) error
	// Frames yields inbound frames and is closed when the connection ends.
	Frames() <-chan Frame
	// Err returns why the connection ended, once Frames is closed.
	Err() error
	Close() error
}

// Dialer opens hub connections.
type Dialer interface {
	Dial(ctx context.Context, jc JoinContext) (Conn, error)
}

type attachment struct {
	conn Conn
	join JoinContext
}

// Manager drives the connection state machine:
// Disconnected → Connecting → Connected → Reconnecting → (Connected | Disconnected).
type Manager struct {
	dialer Dialer
	router *Router
	clock  clockwork.Clock
	log    zerolog.Logger

	mu        sync.Mutex
	state     State
	join      JoinContext
	attempted JoinContext
	conn      Conn
	lastErr   error
	gen       uint64
	cancel    context.CancelFunc

	notifyMu      sync.Mutex
	onState       []func(State)
	onReconnected []func()
}

func NewManager(dialer Dialer, router *Router, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if router == nil {
		router = NewRouter()
	}

	return &Manager{
		dialer: dialer,
		router: router,
		clock:  clock,
		log:    logx.Component("realtime.manager"),
	}
}

func (m *Manager) Router() *Router { return m.router }

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsLive reports whether the connection is established.
func (m *Manager) IsLive() bool {
	return m.State() == Connected
}

// LastError returns the last connection error, nil after a successful connect.
func (m *Manager) LastError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastErr
}

// Conn returns the live connection, or nil.
func (m *Manager) Conn() Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// OnStateChange registers fn to be called after every state transition.
func (m *Manager) OnStateChange(fn func(State)) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.onState = append(m.onState, fn)
}

// OnReconnected registers fn to be called after an automatic recovery has
// re-joined the room.
func (m *Manager) OnReconnected(fn func()) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()
	m.onReconnected = append(m.onReconnected, fn)
}

// Reconcile moves the manager towards jc. An incomplete context disconnects;
// a new complete context (re)connects; an unchanged one is a no-op. A failed
// dial is retried with backoff; once the attempts run out the context is not
// dialed again until Retry is called.
func (m *Manager) Reconcile(jc JoinContext) {
	m.mu.Lock()

	if !jc.Complete() {
		if m.conn == nil && m.state == Disconnected && !m.join.Complete() {
			m.mu.Unlock()
			return
		}

		old := m.detachLocked()
		m.join = JoinContext{}
		m.attempted = JoinContext{}
		changed := m.state != Disconnected
		m.state = Disconnected
		gen := m.gen
		m.mu.Unlock()

		go func() {
			if old.conn != nil {
				m.leave(context.Background(), old)
			}
			if changed {
				m.announce(gen, Disconnected)
			}
		}()
		return
	}

	if jc == m.join && m.state != Disconnected {
		m.mu.Unlock()
		return
	}
	if jc == m.attempted && m.state == Disconnected && m.lastErr != nil {
		m.mu.Unlock()
		return
	}

	old := m.detachLocked()
	m.join = jc
	m.attempted = jc
	m.lastErr = nil
	m.state = Connecting
	gen := m.gen
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.mu.Unlock()

	go func() {
		m.announce(gen, Connecting)
		if old.conn != nil {
			m.leave(context.Background(), old)
		}
		m.connect(ctx, gen, jc)
	}()
}

// Retry forgets the last failed attempt and reconnects to the last context.
func (m *Manager) Retry() {
	m.mu.Lock()
	jc := m.attempted
	m.attempted = JoinContext{}
	m.mu.Unlock()

	m.Reconcile(jc)
}

// Disconnect leaves the room if a connection is live, then releases it.
// Pending connects and reconnects are abandoned.
func (m *Manager) Disconnect(ctx context.Context) {
	m.mu.Lock()
	old := m.detachLocked()
	m.join = JoinContext{}
	m.attempted = JoinContext{}
	gen := m.gen
	m.mu.Unlock()

	if old.conn != nil {
		m.leave(ctx, old)
	}
	m.setState(gen, Disconnected)
}

// Invoke sends a hub method invocation on the live connection.
func (m *Manager) Invoke(ctx context.Context, target string, args ...any) error {
	m.mu.Lock()
	conn, state := m.conn, m.state
	m.mu.Unlock()

	if conn == nil || state != Connected {
		return ErrNotConnected
	}

	f, err := NewInvocation(target, args...)
	if err != nil {
		return err
	}
	return conn.Send(ctx, f)
}

// detachLocked invalidates every goroutine of the current generation and
// returns the connection to release.
func (m *Manager) detachLocked() attachment {
	m.gen++
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}

	old := attachment{conn: m.conn, join: m.join}
	m.conn = nil
	return old
}

func (m *Manager) connect(ctx context.Context, gen uint64, jc JoinContext) {
	conn, err := m.dialer.Dial(ctx, jc)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		m.log.Warn().Err(err).Str("room_code", jc.RoomCode).Msg("Hub connection failed")
		m.fail(gen, err)
		m.reconnect(ctx, gen, jc)
		return
	}

	if !m.install(gen, conn) {
		conn.Close()
		return
	}

	m.log.Info().Str("room_code", jc.RoomCode).Str("user_id", jc.UserID).Msg("Hub connected")
	m.handshake(ctx, gen, conn, jc)
	go m.readLoop(ctx, gen, jc, conn)
}

func (m *Manager) install(gen uint64, conn Conn) bool {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return false
	}
	m.conn = conn
	m.lastErr = nil
	m.mu.Unlock()

	m.setState(gen, Connected)
	return true
}

func (m *Manager) fail(gen uint64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen == m.gen {
		m.lastErr = err
	}
}

func (m *Manager) handshake(ctx context.Context, gen uint64, conn Conn, jc JoinContext) {
	hctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
	defer cancel()

	f, err := NewInvocation(MethodJoinRoom, jc.RoomCode, jc.RoomID, jc.UserID)
	if err == nil {
		err = conn.Send(hctx, f)
	}
	if err != nil {
		m.log.Warn().Err(err).Str("room_code", jc.RoomCode).Msg("JoinRoom handshake failed")
		m.fail(gen, err)
	}
}

func (m *Manager) leave(ctx context.Context, old attachment) {
	if old.join.Complete() {
		lctx, cancel := context.WithTimeout(ctx, HandshakeTimeout)
		f, err := NewInvocation(MethodLeaveRoom, old.join.RoomCode, old.join.RoomID, old.join.UserID)
		if err == nil {
			err = old.conn.Send(lctx, f)
		}
		cancel()
		if err != nil {
			m.log.Warn().Err(err).Str("room_code", old.join.RoomCode).Msg("LeaveRoom handshake failed")
		}
	}

	if err := old.conn.Close(); err != nil {
		m.log.Debug().Err(err).Msg("Hub connection close error")
	}
	m.log.Info().Str("room_code", old.join.RoomCode).Msg("Hub disconnected")
}

func (m *Manager) readLoop(ctx context.Context, gen uint64, jc JoinContext, conn Conn) {
	for f := range conn.Frames() {
		m.router.Dispatch(f)
	}

	m.mu.Lock()
	if gen != m.gen || m.conn != conn {
		m.mu.Unlock()
		return
	}
	m.conn = nil
	m.lastErr = conn.Err()
	m.mu.Unlock()

	m.log.Warn().Err(conn.Err()).Str("room_code", jc.RoomCode).Msg("Hub connection lost")
	m.reconnect(ctx, gen, jc)
}

func (m *Manager) reconnect(ctx context.Context, gen uint64, jc JoinContext) {
	m.setState(gen, Reconnecting)

	backoff := retry.WithMaxRetries(ReconnectAttempts,
		retry.WithCappedDuration(ReconnectCap, retry.NewExponential(ReconnectBase)))

	for attempt := 1; ; attempt++ {
		delay, stop := backoff.Next()
		if stop {
			m.mu.Lock()
			if gen == m.gen {
				cause := m.lastErr
				if cause == nil {
					cause = ErrNotConnected
				}
				m.lastErr = fmt.Errorf("realtime: gave up after %d reconnect attempts: %w", ReconnectAttempts, cause)
			}
			m.mu.Unlock()
			m.log.Error().Str("room_code", jc.RoomCode).Msg("Hub reconnect abandoned")
			m.setState(gen, Disconnected)
			return
		}

		timer := m.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}

		m.mu.Lock()
		abandoned := gen != m.gen || m.join.RoomCode == ""
		m.mu.Unlock()
		if abandoned {
			return
		}

		conn, err := m.dialer.Dial(ctx, jc)
		if err != nil {
			m.log.Debug().Err(err).Int("attempt", attempt).Dur("delay", delay).Msg("Hub reconnect failed")
			m.fail(gen, err)
			continue
		}

		if !m.install(gen, conn) {
			conn.Close()
			return
		}

		m.log.Info().Str("room_code", jc.RoomCode).Int("attempt", attempt).Msg("Hub reconnected")
		m.handshake(ctx, gen, conn, jc)
		go m.readLoop(ctx, gen, jc, conn)
		m.reconnected(gen)
		return
	}
}

func (m *Manager) setState(gen uint64, s State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	if gen != m.gen || m.state == s {
		m.mu.Unlock()
		return
	}
	prev := m.state
	m.state = s
	m.mu.Unlock()

	m.log.Debug().Stringer("from", prev).Stringer("to", s).Msg("Connection state changed")

	for _, fn := range m.onState {
		fn(s)
	}
}

// announce notifies listeners of a state already set under the lock.
func (m *Manager) announce(gen uint64, s State) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	current := gen == m.gen && m.state == s
	m.mu.Unlock()
	if !current {
		return
	}

	m.log.Debug().Stringer("to", s).Msg("Connection state changed")
	for _, fn := range m.onState {
		fn(s)
	}
}

func (m *Manager) reconnected(gen uint64) {
	m.notifyMu.Lock()
	defer m.notifyMu.Unlock()

	m.mu.Lock()
	current := gen == m.gen
	m.mu.Unlock()
	if !current {
		return
	}

	for _, fn := range m.onReconnected {
		fn()
	}
}

// stopAndDrainTimer stops a timer and drains its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
