/*
Package game owns the GameState snapshot and every transition applied to it.

Three writers converge on one snapshot: local operations (optimistic), pollers
and participant fetches (authoritative but possibly stale), and hub events
(authoritative). Vote fields are tracked per user per round with a source
priority so a lower source never overwrites a higher one.
*/
package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/poll"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

// VoteDebounce is the minimum spacing between two vote submissions.
const VoteDebounce = time.Second

// ErrVoteThrottled is returned by CastVote while a submission is in flight or
// the previous one is too recent.
var ErrVoteThrottled = errors.New("game: vote submitted too quickly")

type RoomAPI interface {
	CreateRoom(ctx context.Context, req services.CreateRoomRequest) (*services.Room, error)
	JoinRoom(ctx context.Context, code, displayName string, role poker.Role) (*services.JoinResult, error)
}

type StoryAPI interface {
	CreateStory(ctx context.Context, roomID string, req services.CreateStoryRequest) (*poker.Story, error)
	SelectStory(ctx context.Context, roomID, storyID string) error
}

type VotingAPI interface {
	SubmitVote(ctx context.Context, storyID, userID string, value poker.Card) error
	RevealVotes(ctx context.Context, storyID string) error
}

type ChatAPI interface {
	Messages(ctx context.Context, roomID string) ([]poker.ChatMessage, error)
	Send(ctx context.Context, roomID, userID, content string) (*poker.ChatMessage, error)
}

// Hub is the push channel as seen by store operations.
type Hub interface {
	Invoke(ctx context.Context, target string, args ...any) error
	IsLive() bool
}

// TokenSink receives the room access token; *httpx.Client is one.
type TokenSink interface {
	SetToken(token string)
}

// Deps are the collaborators of a Store. Hub and Tokens are optional.
type Deps struct {
	Rooms        RoomAPI
	Stories      StoryAPI
	Voting       VotingAPI
	Chat         ChatAPI
	Participants *poll.ParticipantsCache
	Policy       *errs.Policy
	Clock        clockwork.Clock
	Hub          Hub
	Tokens       TokenSink
	Deck         []poker.Card
}

// source ranks the writers of a user's vote fields.
type source int

const (
	sourceNone source = iota
	sourcePoll
	sourceOptimistic
	sourcePush
)

type subscriber struct {
	id int
	fn func(poker.GameState)
}

// Store holds the GameState. Every mutation replaces the snapshot with a new
// one derived from the previous; readers only ever see deep copies.
type Store struct {
	rooms        RoomAPI
	stories      StoryAPI
	voting       VotingAPI
	chat         ChatAPI
	participants *poll.ParticipantsCache
	policy       *errs.Policy
	clock        clockwork.Clock
	hub          Hub
	tokens       TokenSink
	deck         []poker.Card
	log          zerolog.Logger

	notifyMu sync.Mutex

	mu       sync.Mutex
	state    poker.GameState
	epoch    uint64
	round    uint64
	voteSrc  map[string]source
	creating bool
	offline  bool
	token    string

	voteInFlight bool
	lastVoteAt   time.Time

	countdownID     uint64
	cancelCountdown context.CancelFunc

	subs    []subscriber
	nextSub int
}

func New(d Deps) *Store {
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Policy == nil {
		d.Policy = errs.NewPolicy(nil)
	}
	if len(d.Deck) == 0 {
		d.Deck = poker.DefaultDeck
	}

	s := &Store{
		rooms:        d.Rooms,
		stories:      d.Stories,
		voting:       d.Voting,
		chat:         d.Chat,
		participants: d.Participants,
		policy:       d.Policy,
		clock:        d.Clock,
		hub:          d.Hub,
		tokens:       d.Tokens,
		deck:         append([]poker.Card(nil), d.Deck...),
		log:          logx.Component("game.store"),
		state:        poker.Initial(d.Deck),
		voteSrc:      make(map[string]source),
	}

	if s.participants != nil {
		s.participants.OnResult(s.onParticipants)
	}
	return s
}

// State returns a deep copy of the current snapshot.
func (s *Store) State() poker.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// IsCreating reports whether CreateRoom is in progress.
func (s *Store) IsCreating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creating
}

// Offline reports whether the session runs without a backend.
func (s *Store) Offline() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.offline
}

// Token returns the room access token, empty when offline or out of a room.
func (s *Store) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Subscribe registers fn to receive every committed snapshot, in commit order.
// fn must not call store operations synchronously.
func (s *Store) Subscribe(fn func(poker.GameState)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextSub++
	id := s.nextSub
	s.subs = append(s.subs, subscriber{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subs {
			if sub.id == id {
				s.subs = append(s.subs[:i:i], s.subs[i+1:]...)
				return
			}
		}
	}
}

// update commits fn(previous). fn runs with the store lock held.
func (s *Store) update(fn func(poker.GameState) poker.GameState) {
	s.commit(nil, fn)
}

// updateIn commits only while the session epoch is still epoch.
func (s *Store) updateIn(epoch uint64, fn func(poker.GameState) poker.GameState) bool {
	return s.commit(func() bool { return s.epoch == epoch }, fn)
}

func (s *Store) commit(valid func() bool, fn func(poker.GameState) poker.GameState) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if valid != nil && !valid() {
		s.mu.Unlock()
		return false
	}
	s.state = fn(s.state.Clone())
	snap := s.state.Clone()
	subs := append([]subscriber(nil), s.subs...)
	s.mu.Unlock()

	for _, sub := range subs {
		sub.fn(snap)
	}
	return true
}

func (s *Store) currentEpoch() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.epoch
}

// beginSessionLocked starts a new epoch: every pending continuation of the
// previous one becomes a no-op.
func (s *Store) beginSessionLocked() uint64 {
	s.epoch++
	s.stopCountdownLocked()
	s.resetSourcesLocked()
	s.voteInFlight = false
	s.lastVoteAt = time.Time{}
	return s.epoch
}

// resetSourcesLocked starts a new round for vote-source tracking.
func (s *Store) resetSourcesLocked() {
	s.round++
	clear(s.voteSrc)
}

// setVoteLocked writes a user's vote fields when src ranks at least as high
// as the source already holding them.
func (s *Store) setVoteLocked(st *poker.GameState, userID string, hasVoted bool, vote *poker.Card, src source) bool {
	if s.voteSrc[userID] > src {
		return false
	}
	st.SetUserVote(userID, hasVoted, vote)
	s.voteSrc[userID] = src
	return true
}

func (s *Store) setToken(token string) {
	s.mu.Lock()
	s.token = token
	s.mu.Unlock()

	if s.tokens != nil {
		s.tokens.SetToken(token)
	}
}
