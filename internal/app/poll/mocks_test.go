package poll

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
)

// --- ParticipantsSource ---

type MockParticipantsSource struct {
	mock.Mock
}

func (m *MockParticipantsSource) Participants(ctx context.Context, roomID string) ([]poker.User, error) {
	args := m.Called(ctx, roomID)
	users, _ := args.Get(0).([]poker.User)
	return users, args.Error(1)
}

// --- StatusSource ---

type MockStatusSource struct {
	mock.Mock
}

func (m *MockStatusSource) VotingStatus(ctx context.Context, roomID, storyID string) (*services.VotingStatus, error) {
	args := m.Called(ctx, roomID, storyID)
	status, _ := args.Get(0).(*services.VotingStatus)
	return status, args.Error(1)
}

// --- RevealedSource ---

type MockRevealedSource struct {
	mock.Mock
}

func (m *MockRevealedSource) RevealedVotes(ctx context.Context, roomID, storyID string) ([]services.Vote, error) {
	args := m.Called(ctx, roomID, storyID)
	votes, _ := args.Get(0).([]services.Vote)
	return votes, args.Error(1)
}

// --- Notifier ---

type recordingNotifier struct {
	mu  sync.Mutex
	got []errs.Notification
}

func (r *recordingNotifier) Notify(n errs.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.got)
}
