/*
Package backend is the in-memory domain of the reference planning poker server:
rooms, participants, stories, votes and chat.

Every mutation takes the store lock, builds its result, releases the lock and only
then publishes the resulting hub event, so a slow publisher never holds up readers.
*/
package backend

import (
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"planpoker/internal/app/poker"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/randx"
)

// Hub event names published by the store.
const (
	EventParticipantsUpdated = "ParticipantsUpdated"
	EventStoryAdded          = "StoryAdded"
	EventCurrentStoryChanged = "CurrentStoryChanged"
	EventVoteSubmitted       = "VoteSubmitted"
	EventVotesRevealed       = "VotesRevealed"
	EventVotingReset         = "VotingReset"
)

// Publisher delivers an event to every hub connection of a room.
type Publisher interface {
	Publish(roomCode, target string, args ...any)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, string, ...any) {}

// Room is the public view of a room.
type Room struct {
	ID        string    `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	CreatedBy string    `json:"createdBy"`
	Scale     string    `json:"scale"`
	CreatedAt time.Time `json:"createdAt"`
}

type member struct {
	id       string
	name     string
	owner    bool
	joinedAt time.Time
}

type room struct {
	Room

	members []*member
	stories []poker.Story

	// current is the id of the story being estimated, "" when none.
	current  string
	votes    map[string]map[string]poker.Card
	revealed map[string]bool

	chat []poker.ChatMessage
}

func (r *room) member(userID string) *member {
	for _, m := range r.members {
		if m.id == userID {
			return m
		}
	}
	return nil
}

func (r *room) hasOwner() bool {
	for _, m := range r.members {
		if m.owner {
			return true
		}
	}
	return false
}

func (r *room) story(id string) int {
	for i, s := range r.stories {
		if s.ID == id {
			return i
		}
	}
	return -1
}

// Store holds every room in memory.
type Store struct {
	mu      sync.RWMutex
	rooms   map[string]*room
	codes   map[string]string
	stories map[string]string

	deck  []poker.Card
	clock clockwork.Clock
	pub   Publisher
	log   zerolog.Logger
}

// New returns an empty Store. A nil clock uses the real clock.
func New(clock clockwork.Clock) *Store {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Store{
		rooms:   make(map[string]*room),
		codes:   make(map[string]string),
		stories: make(map[string]string),
		deck:    poker.DefaultDeck,
		clock:   clock,
		pub:     nopPublisher{},
		log:     logx.Component("backend"),
	}
}

// SetPublisher routes events to p. It must be called before serving requests.
func (s *Store) SetPublisher(p Publisher) {
	if p == nil {
		p = nopPublisher{}
	}
	s.pub = p
}

// Deck returns the cards accepted as votes.
func (s *Store) Deck() []poker.Card {
	return append([]poker.Card(nil), s.deck...)
}

func (s *Store) roomLocked(roomID string) (*room, *errs.Error) {
	r, ok := s.rooms[roomID]
	if !ok {
		return nil, errs.NewError(errs.ErrRoomNotFound)
	}
	return r, nil
}

func (s *Store) storyRoomLocked(storyID string) (*room, *errs.Error) {
	roomID, ok := s.stories[storyID]
	if !ok {
		return nil, errs.NewError(errs.ErrStoryNotFound)
	}
	return s.roomLocked(roomID)
}

// CreateRoom opens a room and adds its creator as the Product Owner.
func (s *Store) CreateRoom(name, createdBy, scale string) (Room, poker.User, *errs.Error) {
	createdBy = strings.TrimSpace(createdBy)
	if createdBy == "" {
		return Room{}, poker.User{}, errs.NewError(errs.ErrDisplayNameRequired)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = createdBy + "'s Room"
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	code, err := s.freeCodeLocked()
	if err != nil {
		return Room{}, poker.User{}, errs.NewError(errs.ErrUnknown, err)
	}

	now := s.clock.Now()
	r := &room{
		Room: Room{
			ID:        randx.ID(),
			Code:      code,
			Name:      name,
			CreatedBy: createdBy,
			Scale:     scale,
			CreatedAt: now,
		},
		votes:    make(map[string]map[string]poker.Card),
		revealed: make(map[string]bool),
	}
	owner := &member{id: randx.ID(), name: createdBy, owner: true, joinedAt: now}
	r.members = append(r.members, owner)

	s.rooms[r.ID] = r
	s.codes[code] = r.ID

	s.log.Info().Str("room_code", code).Str("room_id", r.ID).Msg("Room created")
	return r.Room, s.userLocked(r, owner), nil
}

func (s *Store) freeCodeLocked() (string, error) {
	for {
		code, err := randx.RoomCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
}

// JoinRoom adds displayName to the room with the given code. A participant
// with the same name rejoins as themselves. The owner role is granted only
// while the room has no owner.
func (s *Store) JoinRoom(code, displayName string, role poker.Role) (Room, poker.User, *errs.Error) {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return Room{}, poker.User{}, errs.NewError(errs.ErrDisplayNameRequired)
	}

	s.mu.Lock()
	roomID, ok := s.codes[randx.NormalizeRoomCode(code)]
	if !ok {
		s.mu.Unlock()
		return Room{}, poker.User{}, errs.NewError(errs.ErrRoomNotFound)
	}
	r := s.rooms[roomID]

	var m *member
	for _, existing := range r.members {
		if strings.EqualFold(existing.name, displayName) {
			m = existing
			break
		}
	}
	if m == nil {
		m = &member{
			id:       randx.ID(),
			name:     displayName,
			owner:    role == poker.RoleOwner && !r.hasOwner(),
			joinedAt: s.clock.Now(),
		}
		r.members = append(r.members, m)
	}

	user := s.userLocked(r, m)
	users := s.usersLocked(r)
	s.mu.Unlock()

	s.log.Info().Str("room_code", r.Code).Str("user_id", user.ID).Msg("Participant joined")
	s.pub.Publish(r.Code, EventParticipantsUpdated, users)
	return r.Room, user, nil
}

// RoomByCode looks a room up by its code.
func (s *Store) RoomByCode(code string) (Room, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	roomID, ok := s.codes[randx.NormalizeRoomCode(code)]
	if !ok {
		return Room{}, errs.NewError(errs.ErrRoomNotFound)
	}
	return s.rooms[roomID].Room, nil
}

// RoomByID looks a room up by its id.
func (s *Store) RoomByID(roomID string) (Room, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return Room{}, err
	}
	return r.Room, nil
}

// Member returns the participant userID of the room.
func (s *Store) Member(roomID, userID string) (poker.User, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return poker.User{}, err
	}
	m := r.member(userID)
	if m == nil {
		return poker.User{}, errs.NewError(errs.ErrParticipantNotFound)
	}
	return s.userLocked(r, m), nil
}

// Participants lists the members of the room in join order. Vote values are
// included only once the current story is revealed.
func (s *Store) Participants(roomID string) ([]poker.User, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	return s.usersLocked(r), nil
}

func (s *Store) usersLocked(r *room) []poker.User {
	users := make([]poker.User, 0, len(r.members))
	for _, m := range r.members {
		users = append(users, s.userLocked(r, m))
	}
	return users
}

func (s *Store) userLocked(r *room, m *member) poker.User {
	u := poker.User{
		ID:             m.id,
		Name:           m.name,
		IsModerator:    m.owner,
		IsProductOwner: m.owner,
	}
	if r.current == "" {
		return u
	}
	if card, ok := r.votes[r.current][m.id]; ok {
		u.HasVoted = true
		if r.revealed[r.current] {
			c := card
			u.Vote = &c
		}
	}
	return u
}

// Leave removes the participant and their vote on the current story.
func (s *Store) Leave(roomID, userID string) *errs.Error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return err
	}

	for i, m := range r.members {
		if m.id == userID {
			r.members = append(r.members[:i], r.members[i+1:]...)
			if r.current != "" && !r.revealed[r.current] {
				delete(r.votes[r.current], userID)
			}
			s.log.Info().Str("room_code", r.Code).Str("user_id", userID).Msg("Participant left")
			return nil
		}
	}
	return errs.NewError(errs.ErrParticipantNotFound)
}
