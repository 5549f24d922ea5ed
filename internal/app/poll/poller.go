package poll

import (
	"context"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"

	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

// Target identifies what a Poller polls. Inactive targets stop polling.
type Target struct {
	RoomID  string
	StoryID string
	Active  bool
}

func (t Target) valid() bool {
	return t.Active && t.RoomID != "" && t.StoryID != ""
}

// PollerConfig configures a Poller.
type PollerConfig struct {
	Name     string
	Interval time.Duration
	Cache    Options

	// RateLimitBase and RateLimitCap bound the exponential backoff after HTTP 429.
	RateLimitBase time.Duration
	RateLimitCap  time.Duration

	// ServerRetries enables linear retries on HTTP 5xx; 0 treats 5xx like any other error.
	ServerRetries   int
	ServerRetryStep time.Duration
}

// Poller polls one active target at a time on a fixed interval.
type Poller[V any] struct {
	cfg    PollerConfig
	clock  clockwork.Clock
	policy *errs.Policy
	log    zerolog.Logger
	res    *Resilient[Target, V]

	mu       sync.Mutex
	target   Target
	cancel   context.CancelFunc
	retries  int
	latest   V
	has      bool
	onChange func(Target, V)
	onClear  func(Target)
	onRetry  func(attempt int, delay time.Duration)
}

func NewPoller[V any](fetch func(ctx context.Context, t Target) (V, error), cfg PollerConfig, clock clockwork.Clock, policy *errs.Policy) *Poller[V] {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if policy == nil {
		policy = errs.NewPolicy(nil)
	}
	cfg.Cache.Name = cfg.Name
	cfg.Cache.Clock = clock

	return &Poller[V]{
		cfg:    cfg,
		clock:  clock,
		policy: policy,
		log:    logx.Component("poll." + cfg.Name),
		res:    NewResilient[Target, V](fetch, cfg.Cache),
	}
}

// OnChange registers the receiver of successful poll results.
func (p *Poller[V]) OnChange(fn func(Target, V)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = fn
}

// OnClear registers fn to be called when a failed poll discards the result for
// a target.
func (p *Poller[V]) OnClear(fn func(Target)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onClear = fn
}

// OnRetry registers an observer of backoff delays.
func (p *Poller[V]) OnRetry(fn func(attempt int, delay time.Duration)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onRetry = fn
}

// Latest returns the last published result, if any.
func (p *Poller[V]) Latest() (V, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.latest, p.has
}

// Retries returns the number of consecutive backoff retries.
func (p *Poller[V]) Retries() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.retries
}

func (p *Poller[V]) Target() Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

// SetTarget switches the poller to t. An unchanged target is a no-op; an
// invalid one stops polling, clears the result and resets the retry count.
func (p *Poller[V]) SetTarget(t Target) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !t.valid() {
		t = Target{}
	}
	if t == p.target && (p.cancel != nil || !t.valid()) {
		return
	}

	p.stopLocked()
	p.target = t
	p.retries = 0
	p.clearLocked()

	if !t.valid() {
		p.log.Debug().Msg("Polling stopped")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.log.Debug().Str("room_id", t.RoomID).Str("story_id", t.StoryID).Msg("Polling started")

	go p.loop(ctx, t)
}

// Stop ends polling and discards in-flight results.
func (p *Poller[V]) Stop() {
	p.mu.Lock()
	p.stopLocked()
	p.target = Target{}
	p.retries = 0
	p.clearLocked()
	p.mu.Unlock()

	p.res.Cancel()
	p.res.InvalidateAll()
}

func (p *Poller[V]) stopLocked() {
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
}

func (p *Poller[V]) clearLocked() {
	var zero V
	p.latest = zero
	p.has = false
}

func (p *Poller[V]) newRateLimitBackoff() retry.Backoff {
	return retry.WithCappedDuration(p.cfg.RateLimitCap, retry.NewExponential(p.cfg.RateLimitBase))
}

func (p *Poller[V]) newServerBackoff() retry.Backoff {
	step := p.cfg.ServerRetryStep
	attempt := 0
	linear := retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * step, false
	})
	return retry.WithMaxRetries(uint64(p.cfg.ServerRetries), linear)
}

func (p *Poller[V]) loop(ctx context.Context, t Target) {
	limited := p.newRateLimitBackoff()
	server := p.newServerBackoff()

	for ctx.Err() == nil {
		v, wait, err := p.res.get(ctx, t, false)
		if ctx.Err() != nil {
			return
		}

		delay := p.cfg.Interval

		switch {
		case wait > 0:
			delay = wait

		case err == nil:
			limited = p.newRateLimitBackoff()
			server = p.newServerBackoff()
			p.publish(ctx, t, v)

		case errs.IsRateLimited(err):
			next, _ := limited.Next()
			delay = next
			p.retried(ctx, delay)

		case p.cfg.ServerRetries > 0 && errs.IsServer(err):
			next, stop := server.Next()
			if stop {
				p.log.Error().Err(err).Str("story_id", t.StoryID).Msg("Giving up after server errors")
				p.policy.Report(err)
				return
			}
			delay = next
			p.retried(ctx, delay)

		default:
			p.log.Warn().Err(err).Str("story_id", t.StoryID).Msg("Poll failed")
			p.policy.Report(err)
			p.clear(ctx, t)
		}

		timer := p.clock.NewTimer(delay)
		select {
		case <-ctx.Done():
			stopAndDrainTimer(timer)
			return
		case <-timer.Chan():
		}
	}
}

func (p *Poller[V]) publish(ctx context.Context, t Target, v V) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.retries = 0
	p.latest = v
	p.has = true
	fn := p.onChange
	p.mu.Unlock()

	if fn != nil {
		fn(t, v)
	}
}

func (p *Poller[V]) clear(ctx context.Context, t Target) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.clearLocked()
	fn := p.onClear
	p.mu.Unlock()

	if fn != nil {
		fn(t)
	}
}

func (p *Poller[V]) retried(ctx context.Context, delay time.Duration) {
	p.mu.Lock()
	if ctx.Err() != nil {
		p.mu.Unlock()
		return
	}
	p.retries++
	attempt := p.retries
	fn := p.onRetry
	p.mu.Unlock()

	p.log.Debug().Int("attempt", attempt).Dur("delay", delay).Msg("Backing off")
	if fn != nil {
		fn(attempt, delay)
	}
}
