/*
Package poll guards the REST API from redundant calls.

Resilient is the shared cache/spacing/debounce fetcher; it is instantiated for
participants, voting status and revealed votes. Poller drives a Resilient on a
fixed interval for one active target with rate-limit and server-error backoff.
*/
package poll

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

// ErrCancelled is returned for results discarded by Cancel.
var ErrCancelled = errors.New("poll: request cancelled")

// FetchFunc performs one network call for key.
type FetchFunc[K comparable, V any] func(ctx context.Context, key K) (V, error)

// Options configures a Resilient. Zero durations disable the matching guard.
type Options struct {
	Name string

	// CacheTTL is how long a successful result is served without a call.
	CacheTTL time.Duration

	// MinSpacing is the minimum time between two calls for the same key.
	MinSpacing time.Duration

	// RateLimitPenalty replaces MinSpacing after an HTTP 429.
	RateLimitPenalty time.Duration

	// Debounce is the quiet period Trigger waits for before fetching.
	Debounce time.Duration

	Clock clockwork.Clock
}

type entry[V any] struct {
	value     V
	has       bool
	fetchedAt time.Time

	limiter      *rate.Limiter
	penaltyUntil time.Time

	inflight int

	seq          uint64
	stopDebounce func()
}

// Resilient is a keyed fetcher with a short cache, minimum call spacing, a
// rate-limit penalty window and debounced triggers. Concurrent calls for the
// same key share one network request.
type Resilient[K comparable, V any] struct {
	fetch FetchFunc[K, V]
	opts  Options
	clock clockwork.Clock
	log   zerolog.Logger
	group singleflight.Group

	mu         sync.Mutex
	entries    map[K]*entry[V]
	gen        uint64
	base       context.Context
	cancelBase context.CancelFunc
	onResult   func(K, V, error)
}

func NewResilient[K comparable, V any](fetch FetchFunc[K, V], opts Options) *Resilient[K, V] {
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Name == "" {
		opts.Name = "resilient"
	}

	base, cancel := context.WithCancel(context.Background())

	return &Resilient[K, V]{
		fetch:      fetch,
		opts:       opts,
		clock:      opts.Clock,
		log:        logx.Component("poll." + opts.Name),
		entries:    make(map[K]*entry[V]),
		base:       base,
		cancelBase: cancel,
	}
}

// OnResult registers the receiver of debounced fetch results.
func (r *Resilient[K, V]) OnResult(fn func(key K, value V, err error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onResult = fn
}

// Get returns the cached value while fresh. Inside the spacing or penalty
// window it returns the last-known value without a call. Otherwise it fetches.
// On error the last-known value is returned alongside the error.
func (r *Resilient[K, V]) Get(ctx context.Context, key K) (V, error) {
	v, _, err := r.get(ctx, key, false)
	return v, err
}

// Peek returns the last-known value without any network activity.
func (r *Resilient[K, V]) Peek(key K) (V, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok && e.has {
		return e.value, true
	}
	var zero V
	return zero, false
}

func (r *Resilient[K, V]) get(ctx context.Context, key K, bypassCache bool) (V, time.Duration, error) {
	r.mu.Lock()
	e := r.entryLocked(key)
	now := r.clock.Now()

	if !bypassCache && e.has && r.opts.CacheTTL > 0 && now.Sub(e.fetchedAt) < r.opts.CacheTTL {
		v := e.value
		r.mu.Unlock()
		r.log.Debug().Interface("key", key).Msg("Serving cached result")
		return v, 0, nil
	}

	// A call already in flight is joined rather than throttled.
	if e.inflight == 0 {
		if wait := r.waitLocked(e, now); wait > 0 {
			v := e.value
			r.mu.Unlock()
			r.log.Debug().Interface("key", key).Dur("wait", wait).Msg("Call skipped inside spacing window")
			return v, wait, nil
		}
		if e.limiter != nil {
			e.limiter.AllowN(now, 1)
		}
	}
	e.inflight++
	gen := r.gen
	base := r.base
	r.mu.Unlock()

	res, err, shared := r.group.Do(fmt.Sprint(key), func() (any, error) {
		return r.call(ctx, base, key, gen)
	})
	if shared {
		r.log.Debug().Interface("key", key).Msg("Joined in-flight call")
	}

	r.mu.Lock()
	e.inflight--
	last := e.value
	r.mu.Unlock()

	if err != nil {
		return last, 0, err
	}
	v, _ := res.(V)
	return v, 0, nil
}

func (r *Resilient[K, V]) call(ctx, base context.Context, key K, gen uint64) (V, error) {
	var zero V

	reqCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(base, cancel)
	defer stop()

	v, err := r.fetch(reqCtx, key)

	r.mu.Lock()
	defer r.mu.Unlock()

	if gen != r.gen {
		return zero, ErrCancelled
	}

	e := r.entryLocked(key)
	now := r.clock.Now()

	if err != nil {
		if errs.IsRateLimited(err) && r.opts.RateLimitPenalty > 0 {
			e.penaltyUntil = now.Add(r.opts.RateLimitPenalty)
			r.log.Warn().Interface("key", key).Dur("penalty", r.opts.RateLimitPenalty).Msg("Rate limited, backing off")
		}
		return zero, err
	}

	e.value = v
	e.has = true
	e.fetchedAt = now
	return v, nil
}

// waitLocked returns how long until a call for e is allowed.
func (r *Resilient[K, V]) waitLocked(e *entry[V], now time.Time) time.Duration {
	if now.Before(e.penaltyUntil) {
		return e.penaltyUntil.Sub(now)
	}
	if e.limiter == nil {
		return 0
	}

	tokens := e.limiter.TokensAt(now)
	if tokens >= 1 {
		return 0
	}
	wait := time.Duration((1 - tokens) * float64(r.opts.MinSpacing))
	return max(wait, time.Millisecond)
}

func (r *Resilient[K, V]) entryLocked(key K) *entry[V] {
	e, ok := r.entries[key]
	if !ok {
		e = &entry[V]{}
		if r.opts.MinSpacing > 0 {
			e.limiter = rate.NewLimiter(rate.Every(r.opts.MinSpacing), 1)
		}
		r.entries[key] = e
	}
	return e
}

// Trigger schedules a fresh fetch of key after the debounce window. Triggers
// arriving inside the window restart it, so a burst yields one fetch. The
// fetch bypasses the cache but not spacing: a throttled fetch is rescheduled
// for when it becomes allowed. The result goes to the OnResult receiver.
func (r *Resilient[K, V]) Trigger(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.entryLocked(key)
	if e.stopDebounce != nil {
		e.stopDebounce()
	}
	e.seq++
	r.scheduleLocked(e, key, e.seq, r.opts.Debounce)
}

func (r *Resilient[K, V]) scheduleLocked(e *entry[V], key K, seq uint64, d time.Duration) {
	ctx, cancel := context.WithCancel(r.base)
	t := r.clock.NewTimer(d)

	e.stopDebounce = func() {
		cancel()
		stopAndDrainTimer(t)
	}

	go func() {
		select {
		case <-t.Chan():
			r.fire(ctx, key, seq)
		case <-ctx.Done():
		}
	}()
}

func (r *Resilient[K, V]) fire(ctx context.Context, key K, seq uint64) {
	r.mu.Lock()
	if e := r.entries[key]; e == nil || e.seq != seq || ctx.Err() != nil {
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()

	v, wait, err := r.get(ctx, key, true)

	r.mu.Lock()
	e := r.entries[key]
	if e == nil || e.seq != seq || ctx.Err() != nil || errors.Is(err, ErrCancelled) {
		r.mu.Unlock()
		return
	}
	if wait > 0 {
		r.scheduleLocked(e, key, seq, wait)
		r.mu.Unlock()
		return
	}
	e.stopDebounce = nil
	handler := r.onResult
	r.mu.Unlock()

	if handler != nil {
		handler(key, v, err)
	}
}

// Invalidate drops the cached value for key. Spacing still applies.
func (r *Resilient[K, V]) Invalidate(key K) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.entries[key]; ok {
		e.has = false
	}
}

// InvalidateAll forgets every key, including spacing and penalty windows.
func (r *Resilient[K, V]) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, e := range r.entries {
		if e.stopDebounce != nil {
			e.stopDebounce()
		}
		delete(r.entries, key)
	}
}

// Cancel stops pending debounced fetches and discards in-flight results.
func (r *Resilient[K, V]) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.gen++
	r.cancelBase()
	r.base, r.cancelBase = context.WithCancel(context.Background())

	for _, e := range r.entries {
		if e.stopDebounce != nil {
			e.stopDebounce()
			e.stopDebounce = nil
		}
		e.seq++
	}
	r.log.Debug().Msg("Pending requests cancelled")
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
