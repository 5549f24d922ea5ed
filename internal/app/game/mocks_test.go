package game

import (
	"context"
	"sync"

	"github.com/stretchr/testify/mock"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
)

type MockRoomAPI struct {
	mock.Mock
}

func (m *MockRoomAPI) CreateRoom(ctx context.Context, req services.CreateRoomRequest) (*services.Room, error) {
	args := m.Called(ctx, req)
	room, _ := args.Get(0).(*services.Room)
	return room, args.Error(1)
}

func (m *MockRoomAPI) JoinRoom(ctx context.Context, code, displayName string, role poker.Role) (*services.JoinResult, error) {
	args := m.Called(ctx, code, displayName, role)
	res, _ := args.Get(0).(*services.JoinResult)
	return res, args.Error(1)
}

func (m *MockRoomAPI) Participants(ctx context.Context, roomID string) ([]poker.User, error) {
	args := m.Called(ctx, roomID)
	users, _ := args.Get(0).([]poker.User)
	return users, args.Error(1)
}

type MockStoryAPI struct {
	mock.Mock
}

func (m *MockStoryAPI) CreateStory(ctx context.Context, roomID string, req services.CreateStoryRequest) (*poker.Story, error) {
	args := m.Called(ctx, roomID, req)
	story, _ := args.Get(0).(*poker.Story)
	return story, args.Error(1)
}

func (m *MockStoryAPI) SelectStory(ctx context.Context, roomID, storyID string) error {
	return m.Called(ctx, roomID, storyID).Error(0)
}

type MockVotingAPI struct {
	mock.Mock
}

func (m *MockVotingAPI) SubmitVote(ctx context.Context, storyID, userID string, value poker.Card) error {
	return m.Called(ctx, storyID, userID, value).Error(0)
}

func (m *MockVotingAPI) RevealVotes(ctx context.Context, storyID string) error {
	return m.Called(ctx, storyID).Error(0)
}

type MockChatAPI struct {
	mock.Mock
}

func (m *MockChatAPI) Messages(ctx context.Context, roomID string) ([]poker.ChatMessage, error) {
	args := m.Called(ctx, roomID)
	msgs, _ := args.Get(0).([]poker.ChatMessage)
	return msgs, args.Error(1)
}

func (m *MockChatAPI) Send(ctx context.Context, roomID, userID, content string) (*poker.ChatMessage, error) {
	args := m.Called(ctx, roomID, userID, content)
	msg, _ := args.Get(0).(*poker.ChatMessage)
	return msg, args.Error(1)
}

type MockHub struct {
	mock.Mock
}

func (m *MockHub) Invoke(ctx context.Context, target string, args ...any) error {
	return m.Called(append([]any{ctx, target}, args...)...).Error(0)
}

func (m *MockHub) IsLive() bool {
	return m.Called().Bool(0)
}

type recordingNotifier struct {
	mu    sync.Mutex
	notes []errs.Notification
}

func (r *recordingNotifier) Notify(n errs.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notes = append(r.notes, n)
}

func (r *recordingNotifier) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.notes)
}

type tokenRecorder struct {
	mu     sync.Mutex
	tokens []string
}

func (t *tokenRecorder) SetToken(token string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tokens = append(t.tokens, token)
}

func (t *tokenRecorder) last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.tokens) == 0 {
		return ""
	}
	return t.tokens[len(t.tokens)-1]
}
