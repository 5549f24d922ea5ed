package poll

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"planpoker/internal/app/poker"
	"planpoker/internal/pkg/errs"
)

var (
	alice = poker.User{ID: "u1", Name: "Alice", IsProductOwner: true}
	bob   = poker.User{ID: "u2", Name: "Bob"}
)

func TestParticipantsCache_SecondFetchInsideTTLIsCached(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob}, nil)
	cache := NewParticipantsCache(src, clock)

	first, err := cache.Get(context.Background(), "r1")
	require.NoError(t, err)
	clock.Advance(ParticipantsCacheTTL - time.Second)
	second, err := cache.Get(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	src.AssertNumberOfCalls(t, "Participants", 1)

	clock.Advance(time.Second)
	_, err = cache.Get(context.Background(), "r1")
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Participants", 2)
}

func TestParticipantsCache_SpacingReturnsLastKnown(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice}, nil)
	cache := NewParticipantsCache(src, clock)

	_, err := cache.Get(context.Background(), "r1")
	require.NoError(t, err)

	cache.Invalidate("r1")
	clock.Advance(time.Second)
	users, err := cache.Get(context.Background(), "r1")

	require.NoError(t, err)
	assert.Equal(t, []poker.User{alice}, users)
	src.AssertNumberOfCalls(t, "Participants", 1)

	clock.Advance(ParticipantsMinSpacing)
	_, err = cache.Get(context.Background(), "r1")
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Participants", 2)
}

func TestParticipantsCache_RateLimitExtendsSpacing(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	src.On("Participants", mock.Anything, "r1").Return(nil, errs.HTTPStatus(429, "", nil)).Once()
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice}, nil)
	cache := NewParticipantsCache(src, clock)

	_, err := cache.Get(context.Background(), "r1")
	assert.True(t, errs.IsRateLimited(err))

	clock.Advance(10 * time.Second)
	_, err = cache.Get(context.Background(), "r1")
	require.NoError(t, err)
	src.AssertNumberOfCalls(t, "Participants", 1)

	clock.Advance(ParticipantsRateLimitPenalty)
	users, err := cache.Get(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, []poker.User{alice}, users)
	src.AssertNumberOfCalls(t, "Participants", 2)
}

func TestParticipantsCache_TriggerCoalescesBurst(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob}, nil)
	cache := NewParticipantsCache(src, clock)

	var results atomic.Int32
	cache.OnResult(func(key string, users []poker.User, err error) {
		assert.Equal(t, "r1", key)
		assert.Len(t, users, 2)
		assert.NoError(t, err)
		results.Add(1)
	})

	cache.Trigger("r1")
	cache.Trigger("r1")
	cache.Trigger("r1")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(ParticipantsDebounce)

	assert.Eventually(t, func() bool { return results.Load() == 1 }, time.Second, 5*time.Millisecond)
	src.AssertNumberOfCalls(t, "Participants", 1)
}

func TestParticipantsCache_TriggerReschedulesWhenThrottled(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice}, nil).Once()
	src.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob}, nil)
	cache := NewParticipantsCache(src, clock)

	var got atomic.Value
	cache.OnResult(func(_ string, users []poker.User, _ error) { got.Store(users) })

	_, err := cache.Get(context.Background(), "r1")
	require.NoError(t, err)

	cache.Trigger("r1")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(ParticipantsDebounce)

	// Inside the spacing window the fetch waits instead of dropping the refresh.
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	src.AssertNumberOfCalls(t, "Participants", 1)
	clock.Advance(ParticipantsMinSpacing)

	assert.Eventually(t, func() bool {
		users, _ := got.Load().([]poker.User)
		return len(users) == 2
	}, time.Second, 5*time.Millisecond)
}

func TestParticipantsCache_CancelStopsPendingTrigger(t *testing.T) {
	clock := clockwork.NewFakeClock()
	src := &MockParticipantsSource{}
	cache := NewParticipantsCache(src, clock)

	cache.Trigger("r1")
	cache.Cancel()
	clock.Advance(time.Minute)

	time.Sleep(20 * time.Millisecond)
	src.AssertNotCalled(t, "Participants", mock.Anything, mock.Anything)
}

func TestResilient_CancelDiscardsInFlight(t *testing.T) {
	started := make(chan struct{})
	r := NewResilient[string, int](func(ctx context.Context, key string) (int, error) {
		close(started)
		<-ctx.Done()
		return 0, ctx.Err()
	}, Options{Clock: clockwork.NewFakeClock()})

	done := make(chan error, 1)
	go func() {
		_, err := r.Get(context.Background(), "k")
		done <- err
	}()

	<-started
	r.Cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrCancelled)
	case <-time.After(time.Second):
		t.Fatal("Get did not return after Cancel")
	}
}

func TestResilient_ConcurrentGetsShareOneCall(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	r := NewResilient[string, int](func(ctx context.Context, key string) (int, error) {
		calls.Add(1)
		<-release
		return 42, nil
	}, Options{MinSpacing: time.Second, Clock: clockwork.NewFakeClock()})

	var wg sync.WaitGroup
	results := make([]int, 2)
	for i := range results {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], _ = r.Get(context.Background(), "k")
		}()
		time.Sleep(20 * time.Millisecond)
	}
	close(release)
	wg.Wait()

	assert.Equal(t, []int{42, 42}, results)
	assert.Equal(t, int32(1), calls.Load())
}

func TestWithCurrentUser(t *testing.T) {
	current := &poker.User{ID: "u9", Name: "Zed"}

	users := WithCurrentUser([]poker.User{alice, bob}, current)
	require.Len(t, users, 3)
	assert.Equal(t, "u9", users[2].ID)

	users = WithCurrentUser([]poker.User{alice, bob}, &poker.User{ID: "u2"})
	assert.Len(t, users, 2)

	assert.Len(t, WithCurrentUser(nil, nil), 0)
}
