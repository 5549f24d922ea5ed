package poll

import (
	"context"
	"time"

	"github.com/jonboulle/clockwork"

	"planpoker/internal/app/poker"
)

const (
	ParticipantsCacheTTL         = 5 * time.Second
	ParticipantsMinSpacing       = 2 * time.Second
	ParticipantsDebounce         = 500 * time.Millisecond
	ParticipantsRateLimitPenalty = 30 * time.Second
)

// ParticipantsSource fetches the member list of a room.
type ParticipantsSource interface {
	Participants(ctx context.Context, roomID string) ([]poker.User, error)
}

// ParticipantsCache is the Resilient fetcher for room membership keyed by room id.
type ParticipantsCache = Resilient[string, []poker.User]

func NewParticipantsCache(src ParticipantsSource, clock clockwork.Clock) *ParticipantsCache {
	return NewResilient[string, []poker.User](src.Participants, Options{
		Name:             "participants",
		CacheTTL:         ParticipantsCacheTTL,
		MinSpacing:       ParticipantsMinSpacing,
		RateLimitPenalty: ParticipantsRateLimitPenalty,
		Debounce:         ParticipantsDebounce,
		Clock:            clock,
	})
}

// WithCurrentUser returns users with current re-inserted when the server list
// lacks it. Matching is by id.
func WithCurrentUser(users []poker.User, current *poker.User) []poker.User {
	out := make([]poker.User, len(users), len(users)+1)
	copy(out, users)

	if current == nil || current.ID == "" {
		return out
	}
	for _, u := range out {
		if u.ID == current.ID {
			return out
		}
	}
	return append(out, *current)
}
