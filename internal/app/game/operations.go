package game

import (
	"context"
	"strings"
	"unicode/utf8"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/realtime"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/randx"
)

// RoomName is the name given to rooms created by name.
func RoomName(creator string) string {
	return creator + "'s Room"
}

// CreateRoom creates a room owned by name. On success the local identity is
// resolved asynchronously from the participant list. When the backend is
// unreachable the room is created locally and nil is returned.
func (s *Store) CreateRoom(ctx context.Context, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errs.Validation("a name is required to create a room")
	}

	s.mu.Lock()
	if s.creating {
		s.mu.Unlock()
		return errs.Validation("a room is already being created")
	}
	s.creating = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.creating = false
		s.mu.Unlock()
	}()

	room, err := s.rooms.CreateRoom(ctx, services.CreateRoomRequest{
		Name:       RoomName(name),
		CreatedBy:  name,
		Scale:      services.ScaleFibonacci,
		TimeLimit:  services.DefaultTimeLimit,
		AutoReveal: false,
	})
	if err != nil {
		s.policy.Report(err)
		if !errs.IsNetwork(err) {
			return err
		}
		return s.createOffline(name)
	}

	s.setToken(room.AccessToken)

	var epoch uint64
	s.update(func(st poker.GameState) poker.GameState {
		epoch = s.beginSessionLocked()
		s.offline = false

		next := poker.Initial(s.deck)
		next.RoomCode = room.Code
		next.RoomID = room.ID
		if room.ParticipantID != "" {
			next.CurrentUser = &poker.User{ID: room.ParticipantID, Name: name, IsModerator: true, IsProductOwner: true}
		}
		return next
	})

	s.log.Info().Str("room_code", room.Code).Str("room_id", room.ID).Msg("Room created")

	go s.resolveCreator(epoch, room.ID, room.ParticipantID, name)
	return nil
}

func (s *Store) createOffline(name string) error {
	code, err := randx.RoomCode()
	if err != nil {
		return err
	}

	s.setToken("")
	me := poker.User{ID: randx.LocalID(), Name: name, IsModerator: true, IsProductOwner: true}

	s.update(func(st poker.GameState) poker.GameState {
		s.beginSessionLocked()
		s.offline = true

		next := poker.Initial(s.deck)
		next.RoomCode = code
		next.RoomID = randx.LocalID()
		next.Users = []poker.User{me}
		next.CurrentUser = &me
		return next
	})

	s.log.Warn().Str("room_code", code).Msg("Backend unreachable, room created locally")
	return nil
}

// resolveCreator finds the creator in the participant list. The list may not
// contain the creator yet; a local Product Owner stands in until it does.
func (s *Store) resolveCreator(epoch uint64, roomID, participantID, name string) {
	var users []poker.User
	if s.participants != nil {
		var err error
		users, err = s.participants.Get(context.Background(), roomID)
		if err != nil {
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("Participants unavailable after create")
		}
	}

	me, found := identify(users, participantID, name)
	if !found {
		s.log.Debug().Str("room_id", roomID).Msg("Creator not listed yet, using local identity")
	}
	me.IsProductOwner = true
	me.IsModerator = true

	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		if st.RoomID != roomID {
			return st
		}
		st.CurrentUser = &me
		st.Users = s.mergeUsersLocked(st, users)
		return st
	})
}

// identify picks the local user from a participant list: by participant id,
// then a Product Owner with the same name, then any user with the same name,
// then any Product Owner. The second result is false for a synthesized user.
func identify(users []poker.User, participantID, name string) (poker.User, bool) {
	match := func(ok func(poker.User) bool) (poker.User, bool) {
		for _, u := range users {
			if ok(u) {
				return u, true
			}
		}
		return poker.User{}, false
	}

	if participantID != "" {
		if u, ok := match(func(u poker.User) bool { return u.ID == participantID }); ok {
			return u, true
		}
	}
	if u, ok := match(func(u poker.User) bool { return u.IsProductOwner && strings.EqualFold(u.Name, name) }); ok {
		return u, true
	}
	if u, ok := match(func(u poker.User) bool { return strings.EqualFold(u.Name, name) }); ok {
		return u, true
	}
	if u, ok := match(func(u poker.User) bool { return u.IsProductOwner }); ok {
		return u, true
	}

	id := participantID
	if id == "" {
		id = randx.LocalID()
	}
	return poker.User{ID: id, Name: name, IsModerator: true, IsProductOwner: true}, false
}

// JoinRoom joins an existing room as a voter. Only a network failure falls
// back to local membership; every other failure is returned untouched.
func (s *Store) JoinRoom(ctx context.Context, code, name string) error {
	code = randx.NormalizeRoomCode(code)
	name = strings.TrimSpace(name)
	if code == "" || name == "" {
		return errs.Validation("room code and name are required")
	}
	if !randx.IsValidRoomCode(code) {
		return errs.Validation("invalid room code: %s", code)
	}

	res, err := s.rooms.JoinRoom(ctx, code, name, poker.RoleVoter)
	if err != nil {
		s.policy.Report(err)
		if !errs.IsNetwork(err) {
			return err
		}
		s.joinOffline(code, name)
		return nil
	}

	me := res.Participant.ToUser()
	if me.ID == "" {
		me.ID = randx.LocalID()
	}
	if me.Name == "" {
		me.Name = name
	}

	s.setToken(res.AccessToken)

	var epoch uint64
	s.update(func(st poker.GameState) poker.GameState {
		epoch = s.beginSessionLocked()
		s.offline = false

		next := poker.Initial(s.deck)
		next.RoomCode = res.RoomCode
		next.RoomID = res.RoomID
		next.Users = []poker.User{me}
		next.CurrentUser = &me
		return next
	})

	s.log.Info().Str("room_code", res.RoomCode).Str("user_id", me.ID).Msg("Joined room")

	if s.participants != nil {
		users, err := s.participants.Get(ctx, res.RoomID)
		if err != nil {
			s.log.Warn().Err(err).Str("room_id", res.RoomID).Msg("Participants unavailable after join")
		}
		if users != nil {
			s.applyParticipants(epoch, res.RoomID, users)
		}
	}
	return nil
}

func (s *Store) joinOffline(code, name string) {
	s.setToken("")
	me := poker.User{ID: randx.LocalID(), Name: name}

	s.update(func(st poker.GameState) poker.GameState {
		s.beginSessionLocked()
		s.offline = true

		next := poker.Initial(s.deck)
		next.RoomCode = code
		next.RoomID = randx.LocalID()
		next.Users = []poker.User{me}
		next.CurrentUser = &me
		return next
	})

	s.log.Warn().Str("room_code", code).Msg("Backend unreachable, joined locally")
}

// AddStory creates a story. A failed request still adds a local story.
func (s *Store) AddStory(ctx context.Context, title, description string) (*poker.Story, error) {
	title = strings.TrimSpace(title)
	st := s.State()
	if !st.InRoom() {
		return nil, errs.Validation("join a room before adding stories")
	}
	if title == "" {
		return nil, errs.Validation("a story title is required")
	}

	epoch := s.currentEpoch()
	var story poker.Story

	if s.Offline() {
		story = poker.Story{ID: randx.LocalID(), Title: title, Description: description}
	} else {
		created, err := s.stories.CreateStory(ctx, st.RoomID, services.CreateStoryRequest{Title: title, Description: description})
		if err != nil {
			s.policy.Report(err)
			s.log.Warn().Err(err).Str("room_id", st.RoomID).Msg("Story creation failed, keeping it locally")
			created = &poker.Story{ID: randx.LocalID(), Title: title, Description: description}
		}
		story = *created
	}

	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		upsertStory(&st, story)
		return st
	})
	return &story, nil
}

// SetCurrentStory starts a new round for storyID locally and tells the server.
// The local round starts whatever the server answers.
func (s *Store) SetCurrentStory(ctx context.Context, storyID string) error {
	st := s.State()
	i := st.FindStory(storyID)
	if i < 0 {
		return errs.Validation("story %s not found", storyID)
	}
	story := st.Stories[i]

	epoch := s.currentEpoch()
	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		s.startRoundLocked(&st, story)
		return st
	})

	if s.Offline() || randx.IsLocalID(storyID) {
		return nil
	}
	if err := s.stories.SelectStory(ctx, st.RoomID, storyID); err != nil {
		s.log.Warn().Err(err).Str("story_id", storyID).Msg("Story selection not confirmed by server")
		s.policy.Report(err)
	}
	return nil
}

// startRoundLocked makes story current and opens a fresh round for everyone.
func (s *Store) startRoundLocked(st *poker.GameState, story poker.Story) {
	s.stopCountdownLocked()
	s.resetSourcesLocked()
	st.StartRound(story)
}

// CastVote submits value for the current user. It is a no-op without a
// current user or story and for the Product Owner.
func (s *Store) CastVote(ctx context.Context, value poker.Card) error {
	s.mu.Lock()
	st := s.state
	if st.CurrentUser == nil || st.CurrentUser.IsProductOwner || st.CurrentStory == nil {
		s.mu.Unlock()
		return nil
	}
	if !poker.InDeck(st.FibonacciCards, value) {
		s.mu.Unlock()
		return errs.Validation("%s is not a card in this deck", value)
	}

	now := s.clock.Now()
	if s.voteInFlight || (!s.lastVoteAt.IsZero() && now.Sub(s.lastVoteAt) < VoteDebounce) {
		s.mu.Unlock()
		return ErrVoteThrottled
	}
	s.voteInFlight = true
	s.lastVoteAt = now

	userID := st.CurrentUser.ID
	storyID := st.CurrentStory.ID
	epoch, round := s.epoch, s.round
	offline := s.offline
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.voteInFlight = false
		s.mu.Unlock()
	}()

	var (
		prevVoted bool
		prevVote  *poker.Card
		prevSrc   source
	)
	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		if st.CurrentUser != nil {
			prevVoted = st.CurrentUser.HasVoted
			if st.CurrentUser.Vote != nil {
				v := *st.CurrentUser.Vote
				prevVote = &v
			}
		}
		prevSrc = s.voteSrc[userID]

		v := value
		st.SetUserVote(userID, true, &v)
		s.voteSrc[userID] = sourceOptimistic
		return st
	})

	if offline || randx.IsLocalID(storyID) {
		return nil
	}

	err := s.voting.SubmitVote(ctx, storyID, userID, value)
	if err == nil {
		s.log.Debug().Str("story_id", storyID).Str("value", value.String()).Msg("Vote submitted")
		return nil
	}

	s.log.Warn().Err(err).Str("story_id", storyID).Msg("Vote submission failed")
	s.policy.Report(err)

	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		if s.round != round || s.voteSrc[userID] != sourceOptimistic {
			return st
		}
		cur := st.CurrentUser
		if cur == nil || cur.ID != userID || cur.Vote == nil || *cur.Vote != value {
			return st
		}
		st.SetUserVote(userID, false, nil)
		if prevVoted {
			st.SetUserVote(userID, true, prevVote)
		}
		s.voteSrc[userID] = prevSrc
		return st
	})
	return err
}

// RevealVotes asks the server to reveal and runs the local countdown, which
// ends in the revealed state on its own.
func (s *Store) RevealVotes(ctx context.Context) error {
	st := s.State()
	if st.CurrentStory == nil {
		return nil
	}
	storyID := st.CurrentStory.ID

	epoch := s.currentEpoch()
	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		if st.CurrentStory == nil || st.CurrentStory.ID != storyID {
			return st
		}
		s.startCountdownLocked(&st)
		return st
	})

	if s.Offline() || randx.IsLocalID(storyID) {
		return nil
	}
	if err := s.voting.RevealVotes(ctx, storyID); err != nil {
		s.log.Warn().Err(err).Str("story_id", storyID).Msg("Reveal request failed")
		s.policy.Report(err)
	}
	return nil
}

// ResetVoting restarts the round locally. A live Product Owner also tells
// the other participants through the hub.
func (s *Store) ResetVoting(ctx context.Context) error {
	var (
		jc    realtime.JoinContext
		owner bool
	)

	s.update(func(st poker.GameState) poker.GameState {
		s.stopCountdownLocked()
		s.resetSourcesLocked()
		st.ResetRound()

		if st.CurrentUser != nil {
			owner = st.CurrentUser.IsProductOwner
			jc = realtime.JoinContext{RoomCode: st.RoomCode, RoomID: st.RoomID, UserID: st.CurrentUser.ID}
		}
		return st
	})

	if !owner || s.hub == nil || !s.hub.IsLive() {
		return nil
	}
	if err := s.hub.Invoke(ctx, realtime.MethodResetVoting, jc.RoomCode, jc.RoomID, jc.UserID); err != nil {
		s.log.Debug().Err(err).Str("room_code", jc.RoomCode).Msg("ResetVoting broadcast failed")
	}
	return nil
}

// LeaveRoom returns to the initial state. Pending timers and in-flight
// results of the left room are discarded.
func (s *Store) LeaveRoom() {
	if s.participants != nil {
		s.participants.Cancel()
		s.participants.InvalidateAll()
	}

	s.setToken("")
	s.update(func(st poker.GameState) poker.GameState {
		s.beginSessionLocked()
		s.offline = false
		return poker.Initial(s.deck)
	})

	s.log.Info().Msg("Left room")
}

// FetchParticipants fetches the member list now, subject to the cache and
// spacing rules, merges it into the state and returns the merged list.
func (s *Store) FetchParticipants(ctx context.Context, roomID string) ([]poker.User, error) {
	if roomID == "" {
		return nil, errs.Validation("a room id is required")
	}
	if s.Offline() || s.participants == nil {
		return s.State().Users, nil
	}

	epoch := s.currentEpoch()
	users, err := s.participants.Get(ctx, roomID)
	if users != nil {
		s.applyParticipants(epoch, roomID, users)
	}
	if err != nil {
		s.policy.Report(err)
		return s.State().Users, err
	}
	return s.State().Users, nil
}

// Messages returns the room chat history.
func (s *Store) Messages(ctx context.Context) ([]poker.ChatMessage, error) {
	st := s.State()
	if !st.InRoom() {
		return nil, errs.Validation("join a room to read chat")
	}
	if s.Offline() {
		return nil, errs.Validation("chat is unavailable offline")
	}

	msgs, err := s.chat.Messages(ctx, st.RoomID)
	if err != nil {
		s.policy.Report(err)
		return nil, err
	}
	return msgs, nil
}

// SendMessage posts content to the room chat.
func (s *Store) SendMessage(ctx context.Context, content string) (*poker.ChatMessage, error) {
	content = strings.TrimSpace(content)
	st := s.State()

	switch {
	case !st.InRoom() || st.CurrentUser == nil:
		return nil, errs.Validation("join a room to chat")
	case content == "":
		return nil, errs.Validation("message is empty")
	case utf8.RuneCountInString(content) > poker.MaxChatMessageLength:
		return nil, errs.Validation("message exceeds %d characters", poker.MaxChatMessageLength)
	case s.Offline():
		return nil, errs.Validation("chat is unavailable offline")
	}

	msg, err := s.chat.Send(ctx, st.RoomID, st.CurrentUser.ID, content)
	if err != nil {
		s.policy.Report(err)
		return nil, err
	}
	return msg, nil
}
