package poker

// Phase is the voting round state derived from a GameState.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseVoting
	PhaseRevealing
	PhaseRevealed
)

func (p Phase) String() string {
	switch p {
	case PhaseVoting:
		return "voting"
	case PhaseRevealing:
		return "revealing"
	case PhaseRevealed:
		return "revealed"
	default:
		return "idle"
	}
}

// GameState is the single snapshot the UI renders from.
type GameState struct {
	RoomCode         string  `json:"roomCode"`
	RoomID           string  `json:"roomId"`
	Users            []User  `json:"users"`
	CurrentUser      *User   `json:"currentUser"`
	CurrentStory     *Story  `json:"currentStory"`
	Stories          []Story `json:"stories"`
	VotingInProgress bool    `json:"votingInProgress"`
	VotesRevealed    bool    `json:"votesRevealed"`
	RevealCountdown  *int    `json:"revealCountdown"`
	FibonacciCards   []Card  `json:"fibonacciCards"`
}

// Initial returns the empty snapshot carrying only the card deck.
func Initial(deck []Card) GameState {
	if len(deck) == 0 {
		deck = DefaultDeck
	}
	return GameState{
		Users:          []User{},
		Stories:        []Story{},
		FibonacciCards: append([]Card(nil), deck...),
	}
}

// Clone returns a deep copy sharing no memory with s.
func (s GameState) Clone() GameState {
	out := s

	out.Users = make([]User, len(s.Users))
	for i, u := range s.Users {
		out.Users[i] = u.clone()
	}

	out.Stories = make([]Story, len(s.Stories))
	for i, st := range s.Stories {
		out.Stories[i] = st.clone()
	}

	if s.CurrentUser != nil {
		u := s.CurrentUser.clone()
		out.CurrentUser = &u
	}
	if s.CurrentStory != nil {
		st := s.CurrentStory.clone()
		out.CurrentStory = &st
	}
	if s.RevealCountdown != nil {
		n := *s.RevealCountdown
		out.RevealCountdown = &n
	}
	out.FibonacciCards = append([]Card(nil), s.FibonacciCards...)

	return out
}

// InRoom reports whether the snapshot belongs to a room.
func (s GameState) InRoom() bool {
	return s.RoomCode != "" && s.RoomID != ""
}

// Phase derives the round state.
func (s GameState) Phase() Phase {
	switch {
	case s.VotesRevealed:
		return PhaseRevealed
	case s.RevealCountdown != nil:
		return PhaseRevealing
	case s.VotingInProgress && s.CurrentStory != nil:
		return PhaseVoting
	default:
		return PhaseIdle
	}
}

// FindStory returns the index of the story with id, or -1.
func (s GameState) FindStory(id string) int {
	for i := range s.Stories {
		if s.Stories[i].ID == id {
			return i
		}
	}
	return -1
}

// FindUser returns the index of the user with id, or -1.
func (s GameState) FindUser(id string) int {
	for i := range s.Users {
		if s.Users[i].ID == id {
			return i
		}
	}
	return -1
}

// StartRound makes story current and clears every vote.
func (s *GameState) StartRound(story Story) {
	st := story.clone()
	s.CurrentStory = &st
	s.VotingInProgress = true
	s.VotesRevealed = false
	s.RevealCountdown = nil
	s.ClearVotes()
}

// ClearVotes resets hasVoted and vote for every user, including the current user.
func (s *GameState) ClearVotes() {
	for i := range s.Users {
		s.Users[i].ClearVote()
	}
	if s.CurrentUser != nil {
		s.CurrentUser.ClearVote()
	}
}

// ResetRound restarts voting on the current story.
func (s *GameState) ResetRound() {
	s.VotingInProgress = true
	s.VotesRevealed = false
	s.RevealCountdown = nil
	s.ClearVotes()
}

// Reveal applies the revealed terminal state.
func (s *GameState) Reveal() {
	s.VotesRevealed = true
	s.VotingInProgress = false
	s.RevealCountdown = nil
}

// SetUserVote records a vote for userID in the user list and on CurrentUser.
// A nil vote marks the user as voted without a known value.
func (s *GameState) SetUserVote(userID string, hasVoted bool, vote *Card) {
	apply := func(u *User) {
		u.HasVoted = hasVoted
		if vote != nil {
			v := *vote
			u.Vote = &v
		} else if !hasVoted {
			u.Vote = nil
		}
	}

	if i := s.FindUser(userID); i >= 0 {
		apply(&s.Users[i])
	}
	if s.CurrentUser != nil && s.CurrentUser.ID == userID {
		apply(s.CurrentUser)
	}
}
