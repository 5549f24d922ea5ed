package game

import (
	"bytes"
	"encoding/json"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/realtime"
)

// Hub event names.
const (
	EventUserJoined              = "UserJoined"
	EventUserLeft                = "UserLeft"
	EventParticipantCountUpdated = "ParticipantCountUpdated"
	EventParticipantsUpdated     = "ParticipantsUpdated"
	EventStoriesInitialized      = "StoriesInitialized"
	EventStoryAdded              = "StoryAdded"
	EventStoryUpdated            = "StoryUpdated"
	EventStoryDeleted            = "StoryDeleted"
	EventVoteSubmitted           = "VoteSubmitted"
	EventVotingStatusChanged     = "VotingStatusChanged"
	EventVotesRevealed           = "VotesRevealed"
	EventVotingReset             = "VotingReset"
	EventCurrentStoryChanged     = "CurrentStoryChanged"
)

// MembershipEvents all lead to one debounced participants refresh.
var MembershipEvents = []string{
	EventUserJoined,
	EventUserLeft,
	EventParticipantCountUpdated,
	EventParticipantsUpdated,
}

// StorySelectionEvents are the names a hub may use for a story selection.
// TODO: collapse to CurrentStoryChanged once every hub deployment emits it.
var StorySelectionEvents = []string{
	EventCurrentStoryChanged,
	"CurrentStorySet",
	"CurrentStoryUpdated",
	"StorySelected",
	"StoryChanged",
	"ActiveStoryChanged",
	"SelectedStoryChanged",
}

// Bind subscribes the store to hub events on r. Every handler is idempotent.
func (s *Store) Bind(r *realtime.Router) {
	r.OnAny(MembershipEvents, s.onMembership)
	r.On(EventStoriesInitialized, s.onStoriesInitialized)
	r.On(EventStoryAdded, s.onStoryUpserted)
	r.On(EventStoryUpdated, s.onStoryUpserted)
	r.On(EventStoryDeleted, s.onStoryDeleted)
	r.On(EventVoteSubmitted, s.onVoteSubmitted)
	r.On(EventVotingStatusChanged, s.onVotingStatusChanged)
	r.On(EventVotesRevealed, s.onVotesRevealed)
	r.On(EventVotingReset, s.onVotingReset)
	r.OnAny(StorySelectionEvents, s.onStorySelected)
}

type storyPayload struct {
	ID          string        `json:"id"`
	StoryID     string        `json:"storyId"`
	Title       string        `json:"title"`
	Description string        `json:"description"`
	Estimate    *poker.Card   `json:"estimate"`
	IsCompleted bool          `json:"isCompleted"`
	Story       *storyPayload `json:"story"`
}

func (p storyPayload) story() poker.Story {
	if p.Story != nil {
		return p.Story.story()
	}
	id := p.ID
	if id == "" {
		id = p.StoryID
	}
	return poker.Story{ID: id, Title: p.Title, Description: p.Description, Estimate: p.Estimate, IsCompleted: p.IsCompleted}
}

type votePayload struct {
	UserID  string      `json:"userId"`
	StoryID string      `json:"storyId"`
	Value   *poker.Card `json:"value"`
	Vote    *poker.Card `json:"vote"`
}

func (p votePayload) card() *poker.Card {
	if p.Value != nil {
		return p.Value
	}
	return p.Vote
}

type statusPayload struct {
	StoryID          string `json:"storyId"`
	VotingInProgress *bool  `json:"votingInProgress"`
	VotesRevealed    *bool  `json:"votesRevealed"`
	IsRevealed       *bool  `json:"isRevealed"`
}

type revealedPayload struct {
	StoryID string        `json:"storyId"`
	Votes   []votePayload `json:"votes"`
}

func isNull(payload json.RawMessage) bool {
	p := bytes.TrimSpace(payload)
	return len(p) == 0 || bytes.Equal(p, []byte("null"))
}

func isString(payload json.RawMessage) bool {
	p := bytes.TrimSpace(payload)
	return len(p) > 0 && p[0] == '"'
}

// decodeStory accepts a story object, {"story": {...}}, {"storyId": ...} or a
// bare id string.
func decodeStory(payload json.RawMessage) (poker.Story, bool) {
	if isString(payload) {
		var id string
		if err := json.Unmarshal(payload, &id); err != nil || id == "" {
			return poker.Story{}, false
		}
		return poker.Story{ID: id}, true
	}

	var p storyPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return poker.Story{}, false
	}
	st := p.story()
	return st, st.ID != ""
}

func decodeStories(payload json.RawMessage) ([]poker.Story, bool) {
	var list []storyPayload
	if err := json.Unmarshal(payload, &list); err != nil {
		var wrapped struct {
			Stories []storyPayload `json:"stories"`
		}
		if err := json.Unmarshal(payload, &wrapped); err != nil {
			return nil, false
		}
		list = wrapped.Stories
	}

	out := make([]poker.Story, 0, len(list))
	for _, p := range list {
		if st := p.story(); st.ID != "" {
			out = append(out, st)
		}
	}
	return out, true
}

func (s *Store) onMembership(target string, _ json.RawMessage) {
	st := s.State()
	if !st.InRoom() || s.Offline() || s.participants == nil {
		return
	}
	s.log.Debug().Str("event", target).Msg("Membership changed, refreshing participants")
	s.participants.Trigger(st.RoomID)
}

func (s *Store) onStoriesInitialized(target string, payload json.RawMessage) {
	stories, ok := decodeStories(payload)
	if !ok {
		s.log.Debug().Str("event", target).Msg("Ignoring malformed stories payload")
		return
	}

	s.update(func(st poker.GameState) poker.GameState {
		if !st.InRoom() {
			return st
		}
		st.Stories = st.Stories[:0]
		for _, story := range stories {
			upsertStory(&st, story)
		}
		return st
	})
}

func (s *Store) onStoryUpserted(target string, payload json.RawMessage) {
	story, ok := decodeStory(payload)
	if !ok || isString(payload) {
		s.log.Debug().Str("event", target).Msg("Ignoring malformed story payload")
		return
	}

	s.update(func(st poker.GameState) poker.GameState {
		if st.InRoom() {
			upsertStory(&st, story)
		}
		return st
	})
}

func (s *Store) onStoryDeleted(target string, payload json.RawMessage) {
	story, ok := decodeStory(payload)
	if !ok {
		s.log.Debug().Str("event", target).Msg("Ignoring malformed story id")
		return
	}

	s.update(func(st poker.GameState) poker.GameState {
		if i := st.FindStory(story.ID); i >= 0 {
			st.Stories = append(st.Stories[:i], st.Stories[i+1:]...)
		}
		if st.CurrentStory != nil && st.CurrentStory.ID == story.ID {
			s.stopCountdownLocked()
			st.CurrentStory = nil
			st.VotingInProgress = false
			st.RevealCountdown = nil
		}
		return st
	})
}

// onVoteSubmitted records one user's vote. A payload without a value keeps
// the value already known locally.
func (s *Store) onVoteSubmitted(target string, payload json.RawMessage) {
	var p votePayload
	if err := json.Unmarshal(payload, &p); err != nil || p.UserID == "" {
		s.log.Debug().Str("event", target).Msg("Ignoring malformed vote payload")
		return
	}

	s.update(func(st poker.GameState) poker.GameState {
		if st.CurrentStory == nil || (p.StoryID != "" && p.StoryID != st.CurrentStory.ID) {
			return st
		}
		s.setVoteLocked(&st, p.UserID, true, copyCard(p.card()), sourcePush)
		return st
	})
}

func (s *Store) onVotingStatusChanged(target string, payload json.RawMessage) {
	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		s.log.Debug().Str("event", target).Msg("Ignoring malformed voting status payload")
		return
	}

	revealed := p.VotesRevealed
	if revealed == nil {
		revealed = p.IsRevealed
	}

	s.update(func(st poker.GameState) poker.GameState {
		if st.CurrentStory == nil || (p.StoryID != "" && p.StoryID != st.CurrentStory.ID) {
			return st
		}
		if p.VotingInProgress != nil {
			st.VotingInProgress = *p.VotingInProgress
		}
		if revealed != nil {
			st.VotesRevealed = *revealed
			if *revealed {
				s.stopCountdownLocked()
				st.RevealCountdown = nil
			}
		}
		return st
	})
}

// onVotesRevealed applies the terminal revealed state, plus vote values when
// the payload carries them.
func (s *Store) onVotesRevealed(target string, payload json.RawMessage) {
	var p revealedPayload
	if !isNull(payload) {
		if err := json.Unmarshal(payload, &p); err != nil {
			var votes []votePayload
			if err := json.Unmarshal(payload, &votes); err != nil {
				s.log.Debug().Str("event", target).Msg("Ignoring malformed reveal payload")
				return
			}
			p.Votes = votes
		}
	}

	s.update(func(st poker.GameState) poker.GameState {
		if st.CurrentStory == nil || (p.StoryID != "" && p.StoryID != st.CurrentStory.ID) {
			return st
		}
		s.stopCountdownLocked()
		st.Reveal()

		for _, v := range p.Votes {
			if c := v.card(); v.UserID != "" && c != nil {
				s.setVoteLocked(&st, v.UserID, true, copyCard(c), sourcePush)
			}
		}
		return st
	})
}

func (s *Store) onVotingReset(string, json.RawMessage) {
	s.update(func(st poker.GameState) poker.GameState {
		if !st.InRoom() {
			return st
		}
		s.stopCountdownLocked()
		s.resetSourcesLocked()
		st.ResetRound()
		return st
	})
}

// onStorySelected starts a round for the selected story for everyone. A null
// payload clears the selection. Redelivery for the story already being voted
// on is ignored so votes cast since are kept.
func (s *Store) onStorySelected(target string, payload json.RawMessage) {
	clearSelection := isNull(payload)

	var ref poker.Story
	if !clearSelection {
		var ok bool
		if ref, ok = decodeStory(payload); !ok {
			s.log.Debug().Str("event", target).Msg("Ignoring payload that is not a story reference")
			return
		}
	}

	s.update(func(st poker.GameState) poker.GameState {
		if !st.InRoom() {
			return st
		}

		if clearSelection {
			s.stopCountdownLocked()
			st.CurrentStory = nil
			st.VotingInProgress = false
			st.RevealCountdown = nil
			return st
		}

		story := ref
		if i := st.FindStory(ref.ID); i >= 0 {
			story = st.Stories[i]
			if ref.Title != "" {
				story.Title = ref.Title
				story.Description = ref.Description
				st.Stories[i] = story
			}
		} else if ref.Title != "" {
			st.Stories = append(st.Stories, ref)
		}

		cur := st.CurrentStory
		if cur != nil && cur.ID == story.ID && st.VotingInProgress && !st.VotesRevealed {
			return st
		}

		s.log.Debug().Str("event", target).Str("story_id", story.ID).Msg("Story selected")
		s.startRoundLocked(&st, story)
		return st
	})
}
