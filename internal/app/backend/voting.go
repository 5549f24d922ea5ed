package backend

import (
	"strings"
	"unicode/utf8"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/randx"
)

// CreateStory appends a story to the room backlog.
func (s *Store) CreateStory(roomID, title, description string) (poker.Story, *errs.Error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return poker.Story{}, errs.NewError(errs.ErrStoryTitleRequired)
	}

	s.mu.Lock()
	r, err := s.roomLocked(roomID)
	if err != nil {
		s.mu.Unlock()
		return poker.Story{}, err
	}

	story := poker.Story{ID: randx.ID(), Title: title, Description: strings.TrimSpace(description)}
	r.stories = append(r.stories, story)
	s.stories[story.ID] = r.ID
	s.mu.Unlock()

	s.pub.Publish(r.Code, EventStoryAdded, story)
	return story, nil
}

// Stories returns the room backlog in creation order.
func (s *Store) Stories(roomID string) ([]poker.Story, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	out := make([]poker.Story, len(r.stories))
	copy(out, r.stories)
	return out, nil
}

// StoryRoomID returns the id of the room owning storyID.
func (s *Store) StoryRoomID(storyID string) (string, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.storyRoomLocked(storyID)
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// CurrentStory returns the story being estimated, nil when none, and whether
// its votes are revealed.
func (s *Store) CurrentStory(roomID string) (*poker.Story, bool, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, false, err
	}
	i := r.story(r.current)
	if i < 0 {
		return nil, false, nil
	}
	story := r.stories[i]
	return &story, r.revealed[story.ID], nil
}

// SelectStory makes storyID the current story and opens a fresh round on it.
func (s *Store) SelectStory(roomID, storyID string) (poker.Story, *errs.Error) {
	s.mu.Lock()
	r, err := s.roomLocked(roomID)
	if err != nil {
		s.mu.Unlock()
		return poker.Story{}, err
	}
	i := r.story(storyID)
	if i < 0 {
		s.mu.Unlock()
		return poker.Story{}, errs.NewError(errs.ErrStoryNotFound)
	}

	r.current = storyID
	delete(r.votes, storyID)
	delete(r.revealed, storyID)
	story := r.stories[i]
	s.mu.Unlock()

	s.pub.Publish(r.Code, EventCurrentStoryChanged, story)
	return story, nil
}

// SubmitVote records userID's card for the story while its round is open.
// Voting again replaces the previous card.
func (s *Store) SubmitVote(storyID, userID string, card poker.Card) *errs.Error {
	s.mu.Lock()
	r, err := s.storyRoomLocked(storyID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	if verr := s.checkVoteLocked(r, storyID, userID, card); verr != nil {
		s.mu.Unlock()
		return verr
	}

	if r.votes[storyID] == nil {
		r.votes[storyID] = make(map[string]poker.Card)
	}
	r.votes[storyID][userID] = card
	s.mu.Unlock()

	s.pub.Publish(r.Code, EventVoteSubmitted, map[string]string{"userId": userID, "storyId": storyID})
	return nil
}

func (s *Store) checkVoteLocked(r *room, storyID, userID string, card poker.Card) *errs.Error {
	if r.current != storyID || r.revealed[storyID] {
		return errs.NewError(errs.ErrRoundClosed)
	}
	m := r.member(userID)
	if m == nil {
		return errs.NewError(errs.ErrParticipantNotFound)
	}
	if m.owner {
		return errs.NewError(errs.ErrProductOwnerCannotVote)
	}
	if !poker.InDeck(s.deck, card) {
		return errs.NewError(errs.ErrInvalidCard, card)
	}
	return nil
}

// RevealVotes reveals the current round of storyID. Revealing twice is a no-op
// that publishes the same event again.
func (s *Store) RevealVotes(storyID string) *errs.Error {
	s.mu.Lock()
	r, err := s.storyRoomLocked(storyID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if r.current != storyID {
		s.mu.Unlock()
		return errs.NewError(errs.ErrRoundClosed)
	}

	r.revealed[storyID] = true
	votes := s.votesLocked(r, storyID)
	s.mu.Unlock()

	s.log.Info().Str("room_code", r.Code).Str("story_id", storyID).Int("votes", len(votes)).Msg("Votes revealed")
	s.pub.Publish(r.Code, EventVotesRevealed, map[string]any{"storyId": storyID, "votes": votes})
	return nil
}

func (s *Store) votesLocked(r *room, storyID string) []services.Vote {
	votes := make([]services.Vote, 0, len(r.votes[storyID]))
	for _, m := range r.members {
		if card, ok := r.votes[storyID][m.id]; ok {
			votes = append(votes, services.Vote{UserID: m.id, UserName: m.name, Value: card})
		}
	}
	return votes
}

// VotingStatus reports who has voted on storyID without revealing values.
func (s *Store) VotingStatus(roomID, storyID string) (services.VotingStatus, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return services.VotingStatus{}, err
	}
	if r.story(storyID) < 0 {
		return services.VotingStatus{}, errs.NewError(errs.ErrStoryNotFound)
	}

	status := services.VotingStatus{
		StoryID:      storyID,
		IsRevealed:   r.revealed[storyID],
		Participants: make([]services.VoteStatus, 0, len(r.members)),
	}
	for _, m := range r.members {
		if m.owner {
			continue
		}
		_, voted := r.votes[storyID][m.id]
		status.Participants = append(status.Participants, services.VoteStatus{UserID: m.id, UserName: m.name, HasVoted: voted})
	}
	return status, nil
}

// RevealedVotes returns the votes on storyID once revealed.
func (s *Store) RevealedVotes(roomID, storyID string) ([]services.Vote, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	if r.story(storyID) < 0 {
		return nil, errs.NewError(errs.ErrStoryNotFound)
	}
	if !r.revealed[storyID] {
		return nil, errs.NewError(errs.ErrVotesNotRevealed)
	}
	return s.votesLocked(r, storyID), nil
}

// ResetVoting clears the current round. Only the Product Owner may reset.
func (s *Store) ResetVoting(roomID, userID string) *errs.Error {
	s.mu.Lock()
	r, err := s.roomLocked(roomID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	m := r.member(userID)
	if m == nil {
		s.mu.Unlock()
		return errs.NewError(errs.ErrParticipantNotFound)
	}
	if !m.owner {
		s.mu.Unlock()
		return errs.NewError(errs.ErrNotProductOwner)
	}

	if r.current != "" {
		delete(r.votes, r.current)
		delete(r.revealed, r.current)
	}
	s.mu.Unlock()

	s.pub.Publish(r.Code, EventVotingReset)
	return nil
}

// Messages returns the room chat in send order.
func (s *Store) Messages(roomID string) ([]poker.ChatMessage, *errs.Error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return nil, err
	}
	out := make([]poker.ChatMessage, len(r.chat))
	copy(out, r.chat)
	return out, nil
}

// SendMessage appends a chat message from userID.
func (s *Store) SendMessage(roomID, userID, content string) (poker.ChatMessage, *errs.Error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return poker.ChatMessage{}, errs.NewError(errs.ErrInvalidParams)
	}
	if utf8.RuneCountInString(content) > poker.MaxChatMessageLength {
		return poker.ChatMessage{}, errs.NewError(errs.ErrMessageContentTooLong)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r, err := s.roomLocked(roomID)
	if err != nil {
		return poker.ChatMessage{}, err
	}
	m := r.member(userID)
	if m == nil {
		return poker.ChatMessage{}, errs.NewError(errs.ErrParticipantNotFound)
	}

	msg := poker.ChatMessage{
		ID:        randx.ID(),
		UserID:    m.id,
		UserName:  m.name,
		Content:   content,
		Timestamp: s.clock.Now().UnixMilli(),
	}
	r.chat = append(r.chat, msg)
	return msg, nil
}
