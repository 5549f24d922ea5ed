package poll

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
)

const (
	StatusCacheTTL      = time.Second
	StatusMinSpacing    = 1500 * time.Millisecond
	StatusInterval      = 3 * time.Second
	StatusRateLimitBase = 2 * time.Second
	StatusRateLimitCap  = 30 * time.Second
)

// StatusSource fetches per-user vote submission state for a story.
type StatusSource interface {
	VotingStatus(ctx context.Context, roomID, storyID string) (*services.VotingStatus, error)
}

// StatusPoller polls the voting status of the current round.
type StatusPoller = Poller[*services.VotingStatus]

func NewStatusPoller(src StatusSource, clock clockwork.Clock, policy *errs.Policy) *StatusPoller {
	fetch := func(ctx context.Context, t Target) (*services.VotingStatus, error) {
		return src.VotingStatus(ctx, t.RoomID, t.StoryID)
	}

	return NewPoller(fetch, PollerConfig{
		Name:     "voting-status",
		Interval: StatusInterval,
		Cache: Options{
			CacheTTL:   StatusCacheTTL,
			MinSpacing: StatusMinSpacing,
		},
		RateLimitBase: StatusRateLimitBase,
		RateLimitCap:  StatusRateLimitCap,
	}, clock, policy)
}
