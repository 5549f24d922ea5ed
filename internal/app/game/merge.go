package game

import (
	"planpoker/internal/app/poker"
	"planpoker/internal/app/poll"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
)

// onParticipants receives debounced refresh results from the participants cache.
func (s *Store) onParticipants(roomID string, users []poker.User, err error) {
	if err != nil {
		if errs.IsRateLimited(err) {
			s.log.Debug().Str("room_id", roomID).Msg("Participants refresh rate limited")
		} else {
			s.log.Warn().Err(err).Str("room_id", roomID).Msg("Participants refresh failed")
			s.policy.Report(err)
		}
	}
	if users == nil {
		return
	}
	s.applyParticipants(s.currentEpoch(), roomID, users)
}

// applyParticipants replaces the member list with users. Results for a room
// the session has left are dropped.
func (s *Store) applyParticipants(epoch uint64, roomID string, users []poker.User) {
	s.updateIn(epoch, func(st poker.GameState) poker.GameState {
		if st.RoomID != roomID {
			return st
		}
		st.Users = s.mergeUsersLocked(st, users)
		return st
	})
}

// mergeUsersLocked builds the member list from a fetched one. A fetch never
// clears a vote within a round and never overwrites vote fields written by an
// optimistic update or a hub event. The current user is always listed and
// takes its role flags from the fetched entry.
func (s *Store) mergeUsersLocked(st poker.GameState, fetched []poker.User) []poker.User {
	local := func(id string) *poker.User {
		if i := st.FindUser(id); i >= 0 {
			return &st.Users[i]
		}
		if st.CurrentUser != nil && st.CurrentUser.ID == id {
			return st.CurrentUser
		}
		return nil
	}

	out := make([]poker.User, 0, len(fetched)+1)
	for _, f := range fetched {
		u := f
		u.Vote = nil
		if f.Vote != nil {
			v := *f.Vote
			u.Vote = &v
		}

		prev := local(u.ID)
		switch {
		case prev != nil && s.voteSrc[u.ID] > sourcePoll:
			u.HasVoted = prev.HasVoted
			u.Vote = copyCard(prev.Vote)
		case prev != nil:
			u.HasVoted = u.HasVoted || prev.HasVoted
			if u.Vote == nil {
				u.Vote = copyCard(prev.Vote)
			}
			if u.HasVoted {
				s.voteSrc[u.ID] = sourcePoll
			}
		case u.HasVoted:
			s.voteSrc[u.ID] = sourcePoll
		}
		out = append(out, u)
	}

	out = poll.WithCurrentUser(out, st.CurrentUser)

	if st.CurrentUser != nil {
		for i := range out {
			u := &out[i]
			if u.ID != st.CurrentUser.ID {
				continue
			}
			u.IsProductOwner = st.CurrentUser.IsProductOwner || u.IsProductOwner
			u.IsModerator = st.CurrentUser.IsModerator || u.IsModerator
			st.CurrentUser.IsProductOwner = u.IsProductOwner
			st.CurrentUser.IsModerator = u.IsModerator
			st.CurrentUser.HasVoted = u.HasVoted
			st.CurrentUser.Vote = copyCard(u.Vote)
			break
		}
	}
	return out
}

// applyVotingStatus merges a voting-status poll. hasVoted only turns on here;
// dropPolledVotes turns poll-sourced flags off again when polling fails.
func (s *Store) applyVotingStatus(t poll.Target, status *services.VotingStatus) {
	if status == nil {
		return
	}
	s.update(func(st poker.GameState) poker.GameState {
		if !s.targets(st, t) || (status.StoryID != "" && status.StoryID != t.StoryID) {
			return st
		}

		for _, p := range status.Participants {
			if !p.HasVoted {
				continue
			}
			if i := st.FindUser(p.UserID); i >= 0 && !st.Users[i].HasVoted {
				s.setVoteLocked(&st, p.UserID, true, nil, sourcePoll)
			}
		}

		if status.IsRevealed && !st.VotesRevealed {
			s.stopCountdownLocked()
			st.Reveal()
		}
		return st
	})
}

// dropPolledVotes clears the vote flags that only a voting-status poll
// vouched for, once that poll has failed. Optimistic and pushed votes stay.
func (s *Store) dropPolledVotes(t poll.Target) {
	s.update(func(st poker.GameState) poker.GameState {
		if !s.targets(st, t) || st.VotesRevealed {
			return st
		}
		for _, u := range st.Users {
			if u.HasVoted && s.voteSrc[u.ID] == sourcePoll {
				st.SetUserVote(u.ID, false, nil)
				delete(s.voteSrc, u.ID)
			}
		}
		return st
	})
}

// applyRevealedVotes records revealed values. Values from a hub event win.
func (s *Store) applyRevealedVotes(t poll.Target, votes []services.Vote) {
	s.update(func(st poker.GameState) poker.GameState {
		if !s.targets(st, t) || !st.VotesRevealed {
			return st
		}
		for _, v := range votes {
			if v.Value == "" {
				continue
			}
			val := v.Value
			if s.voteSrc[v.UserID] == sourcePush {
				continue
			}
			st.SetUserVote(v.UserID, true, &val)
			s.voteSrc[v.UserID] = sourcePoll
		}
		return st
	})
}

func (s *Store) targets(st poker.GameState, t poll.Target) bool {
	return st.RoomID == t.RoomID && st.CurrentStory != nil && st.CurrentStory.ID == t.StoryID
}

// upsertStory replaces the story with the same id or appends it. The current
// story picks up the new fields without restarting its round.
func upsertStory(st *poker.GameState, story poker.Story) {
	if i := st.FindStory(story.ID); i >= 0 {
		st.Stories[i] = story
	} else {
		st.Stories = append(st.Stories, story)
	}

	if st.CurrentStory != nil && st.CurrentStory.ID == story.ID {
		cur := story
		cur.Estimate = copyCard(story.Estimate)
		st.CurrentStory = &cur
	}
}

func copyCard(c *poker.Card) *poker.Card {
	if c == nil {
		return nil
	}
	v := *c
	return &v
}
