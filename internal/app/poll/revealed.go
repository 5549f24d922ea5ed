package poll

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
)

const (
	RevealedCacheTTL        = time.Second
	RevealedMinSpacing      = 1500 * time.Millisecond
	RevealedInterval        = 5 * time.Second
	RevealedServerRetries   = 3
	RevealedServerRetryStep = time.Second
)

// RevealedSource fetches the revealed votes of a story.
type RevealedSource interface {
	RevealedVotes(ctx context.Context, roomID, storyID string) ([]services.Vote, error)
}

// RevealedPoller polls final vote values once a round is revealed.
type RevealedPoller = Poller[[]services.Vote]

func NewRevealedPoller(src RevealedSource, clock clockwork.Clock, policy *errs.Policy) *RevealedPoller {
	fetch := func(ctx context.Context, t Target) ([]services.Vote, error) {
		return src.RevealedVotes(ctx, t.RoomID, t.StoryID)
	}

	return NewPoller(fetch, PollerConfig{
		Name:     "revealed-votes",
		Interval: RevealedInterval,
		Cache: Options{
			CacheTTL:   RevealedCacheTTL,
			MinSpacing: RevealedMinSpacing,
		},
		RateLimitBase:   StatusRateLimitBase,
		RateLimitCap:    StatusRateLimitCap,
		ServerRetries:   RevealedServerRetries,
		ServerRetryStep: RevealedServerRetryStep,
	}, clock, policy)
}
