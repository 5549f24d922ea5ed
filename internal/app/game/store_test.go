package game

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/poll"
	"planpoker/internal/app/realtime"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/randx"
)

var (
	alice = poker.User{ID: "u1", Name: "Alice", IsModerator: true, IsProductOwner: true}
	bob   = poker.User{ID: "u2", Name: "Bob"}
	carol = poker.User{ID: "u3", Name: "Carol"}
)

type fixture struct {
	store    *Store
	clock    *clockwork.FakeClock
	rooms    *MockRoomAPI
	stories  *MockStoryAPI
	voting   *MockVotingAPI
	chat     *MockChatAPI
	hub      *MockHub
	notifier *recordingNotifier
	tokens   *tokenRecorder
	router   *realtime.Router
}

func newFixture() *fixture {
	f := &fixture{
		clock:    clockwork.NewFakeClock(),
		rooms:    &MockRoomAPI{},
		stories:  &MockStoryAPI{},
		voting:   &MockVotingAPI{},
		chat:     &MockChatAPI{},
		hub:      &MockHub{},
		notifier: &recordingNotifier{},
		tokens:   &tokenRecorder{},
		router:   realtime.NewRouter(),
	}

	f.store = New(Deps{
		Rooms:        f.rooms,
		Stories:      f.stories,
		Voting:       f.voting,
		Chat:         f.chat,
		Participants: poll.NewParticipantsCache(f.rooms, f.clock),
		Policy:       errs.NewPolicy(f.notifier),
		Clock:        f.clock,
		Hub:          f.hub,
		Tokens:       f.tokens,
	})
	f.store.Bind(f.router)
	return f
}

// seedRound puts the store in room r1 voting on s1, with current as the local user.
func (f *fixture) seedRound(current poker.User, others ...poker.User) {
	f.store.update(func(poker.GameState) poker.GameState {
		st := poker.Initial(nil)
		st.RoomCode = "ABC234"
		st.RoomID = "r1"
		st.Users = append([]poker.User{current}, others...)
		me := current
		st.CurrentUser = &me
		st.Stories = []poker.Story{{ID: "s1", Title: "Login"}, {ID: "s2", Title: "Signup"}, {ID: "s3", Title: "Search"}}
		st.StartRound(st.Stories[0])
		return st
	})
}

func (f *fixture) emit(t *testing.T, target, payload string) {
	t.Helper()
	frame := realtime.Frame{Type: realtime.FrameInvocation, Target: target}
	if payload != "" {
		frame.Arguments = []json.RawMessage{json.RawMessage(payload)}
	}
	require.True(t, f.router.Dispatch(frame))
}

func (f *fixture) blockOnTimer(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
}

func userByID(st poker.GameState, id string) poker.User {
	if i := st.FindUser(id); i >= 0 {
		return st.Users[i]
	}
	return poker.User{}
}

func card(c poker.Card) *poker.Card { return &c }

func assertFreshRound(t *testing.T, st poker.GameState, storyID string) {
	t.Helper()
	require.NotNil(t, st.CurrentStory)
	assert.Equal(t, storyID, st.CurrentStory.ID)
	assert.True(t, st.VotingInProgress)
	assert.False(t, st.VotesRevealed)
	assert.Nil(t, st.RevealCountdown)
	for _, u := range st.Users {
		assert.False(t, u.HasVoted, u.ID)
		assert.Nil(t, u.Vote, u.ID)
	}
	if st.CurrentUser != nil {
		assert.False(t, st.CurrentUser.HasVoted)
		assert.Nil(t, st.CurrentUser.Vote)
	}
}

func TestCreateRoom_ResolvesCreatorAsProductOwner(t *testing.T) {
	f := newFixture()
	f.rooms.On("CreateRoom", mock.Anything, mock.MatchedBy(func(r services.CreateRoomRequest) bool {
		return r.Name == "Alice's Room" && r.CreatedBy == "Alice" && r.Scale == services.ScaleFibonacci
	})).Return(&services.Room{ID: "r1", Code: "ABC234", AccessToken: "tok"}, nil)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{{ID: "u1", Name: "Alice", IsProductOwner: true}}, nil)

	require.NoError(t, f.store.CreateRoom(context.Background(), "Alice"))

	st := f.store.State()
	assert.Equal(t, "ABC234", st.RoomCode)
	assert.Equal(t, "r1", st.RoomID)
	assert.False(t, f.store.IsCreating())
	assert.Equal(t, "tok", f.tokens.last())

	require.Eventually(t, func() bool { return f.store.State().CurrentUser != nil }, time.Second, 5*time.Millisecond)
	st = f.store.State()
	assert.Equal(t, "u1", st.CurrentUser.ID)
	assert.True(t, st.CurrentUser.IsProductOwner)
	assert.Equal(t, poker.RoleOwner, st.CurrentUser.Role())
	assert.Len(t, st.Users, 1)
}

func TestCreateRoom_SynthesizesOwnerWhenNotListedYet(t *testing.T) {
	f := newFixture()
	f.rooms.On("CreateRoom", mock.Anything, mock.Anything).Return(&services.Room{ID: "r1", Code: "ABC234"}, nil)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{}, nil)

	require.NoError(t, f.store.CreateRoom(context.Background(), "Alice"))

	require.Eventually(t, func() bool { return f.store.State().CurrentUser != nil }, time.Second, 5*time.Millisecond)
	st := f.store.State()
	assert.True(t, randx.IsLocalID(st.CurrentUser.ID))
	assert.True(t, st.CurrentUser.IsProductOwner)
	assert.Equal(t, "Alice", st.CurrentUser.Name)
	require.Len(t, st.Users, 1)
	assert.Equal(t, st.CurrentUser.ID, st.Users[0].ID)
}

func TestCreateRoom_NetworkFailureCreatesLocalRoom(t *testing.T) {
	f := newFixture()
	f.rooms.On("CreateRoom", mock.Anything, mock.Anything).Return(nil, errs.Network(errors.New("connection refused")))

	require.NoError(t, f.store.CreateRoom(context.Background(), "Alice"))

	st := f.store.State()
	assert.True(t, f.store.Offline())
	assert.True(t, randx.IsValidRoomCode(st.RoomCode))
	assert.True(t, randx.IsLocalID(st.RoomID))
	require.NotNil(t, st.CurrentUser)
	assert.True(t, st.CurrentUser.IsProductOwner)
	assert.Equal(t, 1, f.notifier.count())
	f.rooms.AssertNotCalled(t, "Participants", mock.Anything, mock.Anything)
}

func TestCreateRoom_OtherFailuresAreReturned(t *testing.T) {
	f := newFixture()
	f.rooms.On("CreateRoom", mock.Anything, mock.Anything).Return(nil, errs.HTTPStatus(http.StatusBadRequest, "Invalid request parameters.", nil))

	err := f.store.CreateRoom(context.Background(), "Alice")
	require.Error(t, err)
	assert.Equal(t, http.StatusBadRequest, errs.StatusOf(err))
	assert.False(t, f.store.State().InRoom())
	assert.False(t, f.store.Offline())
	assert.Equal(t, 1, f.notifier.count())
}

func TestCreateRoom_RequiresName(t *testing.T) {
	f := newFixture()

	err := f.store.CreateRoom(context.Background(), "   ")
	assert.True(t, errs.IsValidation(err))
	assert.Equal(t, 0, f.notifier.count())
	f.rooms.AssertNotCalled(t, "CreateRoom", mock.Anything, mock.Anything)
}

func TestJoinRoom_DerivesVoterAndFetchesParticipants(t *testing.T) {
	f := newFixture()
	f.rooms.On("JoinRoom", mock.Anything, "ABC234", "Bob", poker.RoleVoter).Return(&services.JoinResult{
		RoomID:      "r1",
		RoomCode:    "ABC234",
		Participant: services.Participant{ID: "u2", DisplayName: "Bob", Role: "Voter"},
		AccessToken: "tok-bob",
	}, nil)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob}, nil)

	require.NoError(t, f.store.JoinRoom(context.Background(), " abc234 ", "Bob"))

	st := f.store.State()
	assert.Equal(t, "ABC234", st.RoomCode)
	require.NotNil(t, st.CurrentUser)
	assert.Equal(t, "u2", st.CurrentUser.ID)
	assert.False(t, st.CurrentUser.IsProductOwner)
	assert.Len(t, st.Users, 2)
	assert.True(t, userByID(st, "u1").IsProductOwner)
	assert.Equal(t, "tok-bob", f.store.Token())
}

func TestJoinRoom_NetworkFailureJoinsLocally(t *testing.T) {
	f := newFixture()
	f.rooms.On("JoinRoom", mock.Anything, "ABC234", "Bob", poker.RoleVoter).Return(nil, errs.Network(errors.New("no such host")))

	require.NoError(t, f.store.JoinRoom(context.Background(), "ABC234", "Bob"))

	st := f.store.State()
	assert.True(t, f.store.Offline())
	assert.Equal(t, "ABC234", st.RoomCode)
	require.NotNil(t, st.CurrentUser)
	assert.False(t, st.CurrentUser.IsProductOwner)
}

func TestJoinRoom_UnknownRoomDoesNotFabricateState(t *testing.T) {
	f := newFixture()
	f.rooms.On("JoinRoom", mock.Anything, "ZZZ999", "Bob", poker.RoleVoter).Return(nil, errs.HTTPStatus(http.StatusNotFound, "Room not found.", nil))

	err := f.store.JoinRoom(context.Background(), "ZZZ999", "Bob")
	require.Error(t, err)
	assert.Equal(t, http.StatusNotFound, errs.StatusOf(err))
	assert.False(t, f.store.State().InRoom())
	assert.False(t, f.store.Offline())
	assert.Equal(t, 1, f.notifier.count())
}

func TestJoinRoom_Validation(t *testing.T) {
	f := newFixture()

	assert.True(t, errs.IsValidation(f.store.JoinRoom(context.Background(), "", "Bob")))
	assert.True(t, errs.IsValidation(f.store.JoinRoom(context.Background(), "ABC234", "")))
	assert.True(t, errs.IsValidation(f.store.JoinRoom(context.Background(), "AB-234", "Bob")))
	f.rooms.AssertNotCalled(t, "JoinRoom", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestAddStory_FallsBackToLocalStory(t *testing.T) {
	f := newFixture()
	f.seedRound(alice, bob)
	f.stories.On("CreateStory", mock.Anything, "r1", services.CreateStoryRequest{Title: "Export", Description: "CSV"}).
		Return(nil, errs.HTTPStatus(http.StatusInternalServerError, "", nil))

	story, err := f.store.AddStory(context.Background(), "Export", "CSV")
	require.NoError(t, err)
	assert.True(t, randx.IsLocalID(story.ID))

	st := f.store.State()
	assert.GreaterOrEqual(t, st.FindStory(story.ID), 0)
	assert.Equal(t, 1, f.notifier.count())
}

func TestAddStory_AppendsServerStoryOnce(t *testing.T) {
	f := newFixture()
	f.seedRound(alice, bob)
	f.stories.On("CreateStory", mock.Anything, "r1", mock.Anything).Return(&poker.Story{ID: "s9", Title: "Export"}, nil)

	// the hub event may arrive before the response
	f.emit(t, EventStoryAdded, `{"id":"s9","title":"Export"}`)
	_, err := f.store.AddStory(context.Background(), "Export", "")
	require.NoError(t, err)

	st := f.store.State()
	assert.Len(t, st.Stories, 4)
}

func TestSetCurrentStory_AlwaysStartsFreshRound(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice, carol)
	f.store.update(func(st poker.GameState) poker.GameState {
		st.SetUserVote("u2", true, card("5"))
		st.SetUserVote("u3", true, card("8"))
		return st
	})

	f.stories.On("SelectStory", mock.Anything, "r1", "s1").Return(nil)
	f.stories.On("SelectStory", mock.Anything, "r1", "s2").Return(errs.HTTPStatus(http.StatusInternalServerError, "", nil))
	f.stories.On("SelectStory", mock.Anything, "r1", "s3").Return(errs.Network(errors.New("reset")))

	for _, id := range []string{"s2", "s1", "s3", "s3", "s1"} {
		require.NoError(t, f.store.SetCurrentStory(context.Background(), id))
		assertFreshRound(t, f.store.State(), id)
	}

	assert.True(t, errs.IsValidation(f.store.SetCurrentStory(context.Background(), "missing")))
	assertFreshRound(t, f.store.State(), "s1")
}

func TestCastVote_OptimisticMerge(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.voting.On("SubmitVote", mock.Anything, "s1", "u2", poker.Card("8")).Return(nil)

	require.NoError(t, f.store.CastVote(context.Background(), poker.CardOf(8)))

	st := f.store.State()
	require.NotNil(t, st.CurrentUser.Vote)
	assert.Equal(t, poker.Card("8"), *st.CurrentUser.Vote)
	assert.True(t, st.CurrentUser.HasVoted)
	assert.True(t, userByID(st, "u2").HasVoted)
	assert.Equal(t, poker.Card("8"), *userByID(st, "u2").Vote)
	f.voting.AssertNumberOfCalls(t, "SubmitVote", 1)
}

func TestCastVote_TwiceWithinASecondSubmitsOnce(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.voting.On("SubmitVote", mock.Anything, "s1", "u2", mock.Anything).Return(nil)

	require.NoError(t, f.store.CastVote(context.Background(), "8"))
	f.clock.Advance(500 * time.Millisecond)
	assert.ErrorIs(t, f.store.CastVote(context.Background(), "5"), ErrVoteThrottled)
	f.voting.AssertNumberOfCalls(t, "SubmitVote", 1)
	assert.Equal(t, poker.Card("8"), *f.store.State().CurrentUser.Vote)

	f.clock.Advance(VoteDebounce)
	require.NoError(t, f.store.CastVote(context.Background(), "5"))
	f.voting.AssertNumberOfCalls(t, "SubmitVote", 2)
}

func TestCastVote_NoOps(t *testing.T) {
	t.Run("product owner", func(t *testing.T) {
		f := newFixture()
		f.seedRound(alice, bob)
		require.NoError(t, f.store.CastVote(context.Background(), "8"))
		assert.False(t, f.store.State().CurrentUser.HasVoted)
	})

	t.Run("no story", func(t *testing.T) {
		f := newFixture()
		f.seedRound(bob, alice)
		f.store.update(func(st poker.GameState) poker.GameState {
			st.CurrentStory = nil
			return st
		})
		require.NoError(t, f.store.CastVote(context.Background(), "8"))
	})

	t.Run("no user", func(t *testing.T) {
		f := newFixture()
		require.NoError(t, f.store.CastVote(context.Background(), "8"))
	})
}

func TestCastVote_RejectsCardOutsideDeck(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)

	assert.True(t, errs.IsValidation(f.store.CastVote(context.Background(), "4")))
	f.voting.AssertNotCalled(t, "SubmitVote", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCastVote_FailureRollsBackOptimisticVote(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.voting.On("SubmitVote", mock.Anything, "s1", "u2", poker.Card("8")).Return(errs.HTTPStatus(http.StatusForbidden, "", nil))

	require.Error(t, f.store.CastVote(context.Background(), "8"))

	st := f.store.State()
	assert.False(t, st.CurrentUser.HasVoted)
	assert.Nil(t, st.CurrentUser.Vote)
	assert.False(t, userByID(st, "u2").HasVoted)
	assert.Equal(t, 1, f.notifier.count())
}

func TestCastVote_PushDuringSubmissionWinsOverRollback(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)

	release := make(chan struct{})
	f.voting.On("SubmitVote", mock.Anything, "s1", "u2", poker.Card("8")).
		Run(func(mock.Arguments) { <-release }).
		Return(errs.HTTPStatus(http.StatusInternalServerError, "", nil))

	done := make(chan error, 1)
	go func() { done <- f.store.CastVote(context.Background(), "8") }()

	require.Eventually(t, func() bool {
		v := f.store.State().CurrentUser.Vote
		return v != nil && *v == "8"
	}, time.Second, 5*time.Millisecond)

	f.emit(t, EventVoteSubmitted, `{"userId":"u2","storyId":"s1","value":5}`)
	close(release)
	require.Error(t, <-done)

	st := f.store.State()
	assert.True(t, st.CurrentUser.HasVoted)
	assert.Equal(t, poker.Card("5"), *st.CurrentUser.Vote)
}

func TestRevealVotes_CountdownEndsRevealed(t *testing.T) {
	f := newFixture()
	f.seedRound(alice, bob)
	f.voting.On("RevealVotes", mock.Anything, "s1").Return(nil)

	require.NoError(t, f.store.RevealVotes(context.Background()))

	st := f.store.State()
	require.NotNil(t, st.RevealCountdown)
	assert.Equal(t, 3, *st.RevealCountdown)
	assert.Equal(t, poker.PhaseRevealing, st.Phase())

	f.blockOnTimer(t)
	for _, want := range []int{2, 1} {
		f.clock.Advance(RevealCountdownStep)
		require.Eventually(t, func() bool {
			c := f.store.State().RevealCountdown
			return c != nil && *c == want
		}, time.Second, 5*time.Millisecond)
	}

	f.clock.Advance(RevealCountdownStep)
	require.Eventually(t, func() bool { return f.store.State().VotesRevealed }, time.Second, 5*time.Millisecond)

	st = f.store.State()
	assert.False(t, st.VotingInProgress)
	assert.Nil(t, st.RevealCountdown)
	assert.Equal(t, poker.PhaseRevealed, st.Phase())
}

func TestRevealVotes_ConvergesWhateverTheEventTiming(t *testing.T) {
	runCountdown := func(t *testing.T, f *fixture) {
		f.blockOnTimer(t)
		for _i := 0; _i < RevealCountdownFrom; _i++ {
			before := f.store.State().RevealCountdown
			if before == nil {
				return
			}
			f.clock.Advance(RevealCountdownStep)
			require.Eventually(t, func() bool {
				c := f.store.State().RevealCountdown
				return c == nil || *c < *before
			}, time.Second, 5*time.Millisecond)
		}
	}

	scenarios := map[string]func(t *testing.T, f *fixture){
		"no event": func(t *testing.T, f *fixture) {
			require.NoError(t, f.store.RevealVotes(context.Background()))
			runCountdown(t, f)
		},
		"event before": func(t *testing.T, f *fixture) {
			f.emit(t, EventVotesRevealed, `{"storyId":"s1"}`)
			require.NoError(t, f.store.RevealVotes(context.Background()))
		},
		"event during": func(t *testing.T, f *fixture) {
			require.NoError(t, f.store.RevealVotes(context.Background()))
			f.blockOnTimer(t)
			f.clock.Advance(RevealCountdownStep)
			require.Eventually(t, func() bool {
				c := f.store.State().RevealCountdown
				return c != nil && *c == 2
			}, time.Second, 5*time.Millisecond)
			f.emit(t, EventVotesRevealed, `{"storyId":"s1"}`)
			f.clock.Advance(5 * RevealCountdownStep)
			time.Sleep(20 * time.Millisecond)
		},
		"event after": func(t *testing.T, f *fixture) {
			require.NoError(t, f.store.RevealVotes(context.Background()))
			runCountdown(t, f)
			f.emit(t, EventVotesRevealed, `{"storyId":"s1"}`)
		},
	}

	var reference *poker.GameState
	for _, name := range []string{"no event", "event before", "event during", "event after"} {
		t.Run(name, func(t *testing.T) {
			f := newFixture()
			f.seedRound(alice, bob)
			f.voting.On("RevealVotes", mock.Anything, "s1").Return(nil)

			scenarios[name](t, f)

			st := f.store.State()
			assert.True(t, st.VotesRevealed)
			assert.False(t, st.VotingInProgress)
			assert.Nil(t, st.RevealCountdown)
			if reference == nil {
				reference = &st
			} else {
				assert.Equal(t, *reference, st)
			}
		})
	}
}

func TestRevealVotes_NoStoryIsNoOp(t *testing.T) {
	f := newFixture()
	require.NoError(t, f.store.RevealVotes(context.Background()))
	assert.Nil(t, f.store.State().RevealCountdown)
	f.voting.AssertNotCalled(t, "RevealVotes", mock.Anything, mock.Anything)
}

func TestResetVoting_ClearsVotesAndBroadcastsAsOwner(t *testing.T) {
	f := newFixture()
	f.seedRound(alice, bob, carol)
	f.store.update(func(st poker.GameState) poker.GameState {
		st.SetUserVote("u2", true, card("5"))
		st.SetUserVote("u3", true, card("13"))
		st.Reveal()
		return st
	})
	f.hub.On("IsLive").Return(true)
	f.hub.On("Invoke", mock.Anything, realtime.MethodResetVoting, "ABC234", "r1", "u1").Return(nil)

	require.NoError(t, f.store.ResetVoting(context.Background()))

	assertFreshRound(t, f.store.State(), "s1")
	f.hub.AssertExpectations(t)
}

func TestResetVoting_VoterStaysLocal(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)

	require.NoError(t, f.store.ResetVoting(context.Background()))

	assertFreshRound(t, f.store.State(), "s1")
	f.hub.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
}

func TestLeaveRoom_ResetsStateAndCancelsTimers(t *testing.T) {
	f := newFixture()
	f.seedRound(alice, bob)
	f.voting.On("RevealVotes", mock.Anything, "s1").Return(nil)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob, carol}, nil)

	f.emit(t, EventUserJoined, `{"id":"u3"}`)
	require.NoError(t, f.store.RevealVotes(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.clock.BlockUntilContext(ctx, 2))

	f.store.LeaveRoom()

	initial := poker.Initial(nil)
	assert.Equal(t, initial, f.store.State())
	assert.Equal(t, "", f.tokens.last())

	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, initial, f.store.State())
	f.rooms.AssertNotCalled(t, "Participants", mock.Anything, mock.Anything)
}

func TestFetchParticipants_CachedWithinTTL(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob, carol}, nil)

	first, err := f.store.FetchParticipants(context.Background(), "r1")
	require.NoError(t, err)
	f.clock.Advance(time.Second)
	second, err := f.store.FetchParticipants(context.Background(), "r1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, first, 3)
	f.rooms.AssertNumberOfCalls(t, "Participants", 1)
}

func TestFetchParticipants_KeepsPushedVotes(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice, carol)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{alice, bob, carol}, nil)

	f.emit(t, EventVoteSubmitted, `{"userId":"u3","value":13}`)
	_, err := f.store.FetchParticipants(context.Background(), "r1")
	require.NoError(t, err)

	c := userByID(f.store.State(), "u3")
	assert.True(t, c.HasVoted)
	require.NotNil(t, c.Vote)
	assert.Equal(t, poker.Card("13"), *c.Vote)
}

func TestFetchParticipants_KeepsCurrentUser(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.rooms.On("Participants", mock.Anything, "r1").Return([]poker.User{alice}, nil)

	users, err := f.store.FetchParticipants(context.Background(), "r1")
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestSendMessage(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)
	f.chat.On("Send", mock.Anything, "r1", "u2", "hello").Return(&poker.ChatMessage{ID: "m1", Content: "hello"}, nil)

	msg, err := f.store.SendMessage(context.Background(), "  hello ")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)

	_, err = f.store.SendMessage(context.Background(), strings.Repeat("x", poker.MaxChatMessageLength+1))
	assert.True(t, errs.IsValidation(err))

	_, err = f.store.SendMessage(context.Background(), "")
	assert.True(t, errs.IsValidation(err))
	f.chat.AssertNumberOfCalls(t, "Send", 1)
}

func TestSubscribe_NotifiesInCommitOrder(t *testing.T) {
	f := newFixture()
	f.seedRound(bob, alice)

	var phases []poker.Phase
	cancel := f.store.Subscribe(func(st poker.GameState) { phases = append(phases, st.Phase()) })

	f.emit(t, EventVotesRevealed, "")
	f.emit(t, EventVotingReset, "")
	cancel()
	f.emit(t, EventVotesRevealed, "")

	assert.Equal(t, []poker.Phase{poker.PhaseRevealed, poker.PhaseVoting}, phases)
}
