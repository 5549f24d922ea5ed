package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testJoin = JoinContext{RoomCode: "ABC234", RoomID: "room-1", UserID: "user-1", AccessToken: "tok"}

type fakeConn struct {
	mu         sync.Mutex
	sent       []Frame
	closed     bool
	sentAtDrop int
	err        error
	frames     chan Frame
	dropOnce   sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{frames: make(chan Frame, 8), sentAtDrop: -1}
}

func (c *fakeConn) Send(_ context.Context, f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrNotConnected
	}
	c.sent = append(c.sent, f)
	return nil
}

func (c *fakeConn) Frames() <-chan Frame { return c.frames }

func (c *fakeConn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.drop(nil)
	return nil
}

func (c *fakeConn) drop(err error) {
	c.dropOnce.Do(func() {
		c.mu.Lock()
		c.err = err
		c.sentAtDrop = len(c.sent)
		c.mu.Unlock()
		close(c.frames)
	})
}

func (c *fakeConn) targets() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, f := range c.sent {
		out = append(out, f.Target)
	}
	return out
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out results in order; the last one repeats.
type fakeDialer struct {
	mu      sync.Mutex
	results []func() (Conn, error)
	calls   int
}

func (d *fakeDialer) Dial(context.Context, JoinContext) (Conn, error) {
	d.mu.Lock()
	i := d.calls
	d.calls++
	if i >= len(d.results) {
		i = len(d.results) - 1
	}
	next := d.results[i]
	d.mu.Unlock()
	return next()
}

func (d *fakeDialer) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func dialConn(c *fakeConn) func() (Conn, error) {
	return func() (Conn, error) { return c, nil }
}

func dialErr(err error) func() (Conn, error) {
	return func() (Conn, error) { return nil, err }
}

type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) record(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) snapshot() []State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]State(nil), r.states...)
}

func waitForState(t *testing.T, m *Manager, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return m.State() == want }, time.Second, 5*time.Millisecond,
		"state never became %s", want)
}

func blockOnTimer(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestManager_IncompleteContextNeverDials(t *testing.T) {
	d := &fakeDialer{results: []func() (Conn, error){dialConn(newFakeConn())}}
	m := NewManager(d, nil, clockwork.NewFakeClock())

	m.Reconcile(JoinContext{RoomCode: "ABC234", RoomID: "room-1"})
	m.Reconcile(JoinContext{})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, d.count())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_ConnectJoinsRoom(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(conn)}}
	m := NewManager(d, nil, clockwork.NewFakeClock())
	rec := &stateRecorder{}
	m.OnStateChange(rec.record)

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)
	require.Eventually(t, func() bool { return len(conn.targets()) == 1 }, time.Second, 5*time.Millisecond)

	var args []string
	for i := 0; i < 3; i++ {
		var s string
		require.NoError(t, conn.sent[0].Arg(i, &s))
		args = append(args, s)
	}
	assert.Equal(t, []string{"ABC234", "room-1", "user-1"}, args)
	assert.True(t, m.IsLive())
	assert.NoError(t, m.LastError())
	assert.Equal(t, []State{Connecting, Connected}, rec.snapshot())

	// unchanged context is a no-op
	m.Reconcile(testJoin)
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, d.count())
}

func TestManager_DispatchesInboundFrames(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(conn)}}
	router := NewRouter()
	got := make(chan string, 1)
	router.On("StoryAdded", func(_ string, payload json.RawMessage) { got <- string(payload) })

	m := NewManager(d, router, clockwork.NewFakeClock())
	m.Reconcile(testJoin)
	waitForState(t, m, Connected)

	f, err := NewInvocation("StoryAdded", map[string]string{"id": "s1"})
	require.NoError(t, err)
	conn.frames <- f

	select {
	case p := <-got:
		assert.JSONEq(t, `{"id":"s1"}`, p)
	case <-time.After(time.Second):
		t.Fatal("frame not dispatched")
	}
}

func TestManager_ReconnectsAndRejoins(t *testing.T) {
	clock := clockwork.NewFakeClock()
	first, second := newFakeConn(), newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(first), dialConn(second)}}
	m := NewManager(d, nil, clock)

	reconnected := make(chan struct{}, 1)
	m.OnReconnected(func() { reconnected <- struct{}{} })

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)

	first.drop(errors.New("connection reset"))
	waitForState(t, m, Reconnecting)
	assert.EqualError(t, m.LastError(), "connection reset")

	blockOnTimer(t, clock)
	clock.Advance(ReconnectBase)

	select {
	case <-reconnected:
	case <-time.After(time.Second):
		t.Fatal("not reconnected")
	}
	assert.Equal(t, Connected, m.State())
	assert.Equal(t, []string{MethodJoinRoom}, second.targets())
	assert.Same(t, second, m.Conn())
	assert.Equal(t, 2, d.count())
}

func TestManager_DisconnectLeavesBeforeClose(t *testing.T) {
	conn := newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(conn)}}
	m := NewManager(d, nil, clockwork.NewFakeClock())

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)
	require.Eventually(t, func() bool { return len(conn.targets()) == 1 }, time.Second, 5*time.Millisecond)

	m.Disconnect(context.Background())

	assert.Equal(t, []string{MethodJoinRoom, MethodLeaveRoom}, conn.targets())
	assert.True(t, conn.isClosed())
	assert.Equal(t, 2, conn.sentAtDrop)
	assert.Equal(t, Disconnected, m.State())
	assert.Nil(t, m.Conn())
	assert.ErrorIs(t, m.Invoke(context.Background(), MethodResetVoting, "ABC234"), ErrNotConnected)
}

func TestManager_FailedDialRetriesWithBackoff(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conn := newFakeConn()
	boom := errors.New("hub down")
	d := &fakeDialer{results: []func() (Conn, error){dialErr(boom), dialConn(conn)}}
	m := NewManager(d, nil, clock)

	m.Reconcile(testJoin)
	waitForState(t, m, Reconnecting)
	assert.ErrorIs(t, m.LastError(), boom)

	blockOnTimer(t, clock)
	clock.Advance(ReconnectBase)

	waitForState(t, m, Connected)
	require.Eventually(t, func() bool { return len(conn.targets()) == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{MethodJoinRoom}, conn.targets())
	assert.NoError(t, m.LastError())
	assert.Equal(t, 2, d.count())
}

func TestManager_ExhaustedDialWaitsForRetry(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conn := newFakeConn()
	var results []func() (Conn, error)
	for _i := 0; _i < ReconnectAttempts+1; _i++ {
		results = append(results, dialErr(errors.New("hub down")))
	}
	d := &fakeDialer{results: append(results, dialConn(conn))}
	m := NewManager(d, nil, clock)

	m.Reconcile(testJoin)
	for _i := 0; _i < ReconnectAttempts; _i++ {
		blockOnTimer(t, clock)
		clock.Advance(ReconnectCap)
	}
	waitForState(t, m, Disconnected)
	assert.Equal(t, 1+ReconnectAttempts, d.count())
	require.Error(t, m.LastError())

	// the same context is not dialed again on its own
	m.Reconcile(testJoin)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1+ReconnectAttempts, d.count())

	m.Retry()
	waitForState(t, m, Connected)
	assert.Equal(t, 2+ReconnectAttempts, d.count())
}

func TestManager_LeaveThenJoinAnotherRoom(t *testing.T) {
	first, second := newFakeConn(), newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(first), dialConn(second)}}
	m := NewManager(d, nil, clockwork.NewFakeClock())

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)
	require.Eventually(t, func() bool { return len(first.targets()) == 1 }, time.Second, 5*time.Millisecond)

	next := JoinContext{RoomCode: "XYZ789", RoomID: "room-2", UserID: "user-1", AccessToken: "tok2"}
	m.Reconcile(JoinContext{})
	m.Reconcile(next)

	waitForState(t, m, Connected)
	require.Eventually(t, func() bool { return len(second.targets()) == 1 }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return first.isClosed() }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, Connected, m.State())
	assert.Same(t, second, m.Conn())
	assert.False(t, second.isClosed())
	assert.Equal(t, []string{MethodJoinRoom, MethodLeaveRoom}, first.targets())
	assert.Equal(t, 2, d.count())
}

func TestManager_ClearingContextAbandonsReconnect(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conn := newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(conn), dialConn(newFakeConn())}}
	m := NewManager(d, nil, clock)

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)

	conn.drop(errors.New("gone"))
	waitForState(t, m, Reconnecting)
	blockOnTimer(t, clock)

	m.Reconcile(JoinContext{})
	waitForState(t, m, Disconnected)

	clock.Advance(ReconnectCap)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, d.count())
	assert.Equal(t, Disconnected, m.State())
}

func TestManager_ReconnectGivesUpAfterMaxAttempts(t *testing.T) {
	clock := clockwork.NewFakeClock()
	conn := newFakeConn()
	d := &fakeDialer{results: []func() (Conn, error){dialConn(conn), dialErr(errors.New("still down"))}}
	m := NewManager(d, nil, clock)

	m.Reconcile(testJoin)
	waitForState(t, m, Connected)
	conn.drop(errors.New("gone"))

	for _i := 0; _i < ReconnectAttempts; _i++ {
		blockOnTimer(t, clock)
		clock.Advance(ReconnectCap)
	}

	waitForState(t, m, Disconnected)
	assert.Equal(t, 1+ReconnectAttempts, d.count())
	require.Error(t, m.LastError())
	assert.Contains(t, m.LastError().Error(), "still down")
}
