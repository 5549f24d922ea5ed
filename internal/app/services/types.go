package services

import (
	"planpoker/internal/app/poker"
)

type CreateRoomRequest struct {
	Name       string `json:"name"`
	CreatedBy  string `json:"createdBy"`
	Scale      string `json:"scale"`
	TimeLimit  int    `json:"timeLimit"`
	AutoReveal bool   `json:"autoReveal"`
}

type Room struct {
	ID            string `json:"id"`
	Code          string `json:"code"`
	Name          string `json:"name"`
	CreatedBy     string `json:"createdBy"`
	Scale         string `json:"scale"`
	ParticipantID string `json:"participantId,omitempty"`
	AccessToken   string `json:"accessToken,omitempty"`
}

type JoinRoomRequest struct {
	RoomCode    string `json:"roomCode,omitempty"`
	DisplayName string `json:"displayName"`
	Role        string `json:"role"`
}

type JoinResult struct {
	RoomID      string      `json:"roomId"`
	RoomCode    string      `json:"roomCode"`
	Participant Participant `json:"participant"`
	AccessToken string      `json:"accessToken,omitempty"`
}

// Participant is the user DTO returned by the participants endpoint.
type Participant struct {
	ID             string      `json:"id"`
	Name           string      `json:"name,omitempty"`
	DisplayName    string      `json:"displayName,omitempty"`
	Role           string      `json:"role,omitempty"`
	IsModerator    bool        `json:"isModerator"`
	IsProductOwner bool        `json:"isProductOwner"`
	HasVoted       bool        `json:"hasVoted"`
	Vote           *poker.Card `json:"vote,omitempty"`
}

// ToUser maps the DTO onto the shared model. A Product Owner role also sets
// IsModerator so both flags agree for owners.
func (p Participant) ToUser() poker.User {
	name := p.DisplayName
	if name == "" {
		name = p.Name
	}

	owner := p.IsProductOwner || poker.ParseRole(p.Role) == poker.RoleOwner

	u := poker.User{
		ID:             p.ID,
		Name:           name,
		IsModerator:    p.IsModerator || owner,
		IsProductOwner: owner,
		HasVoted:       p.HasVoted,
	}
	if p.Vote != nil {
		v := *p.Vote
		u.Vote = &v
	}
	return u
}

func ToUsers(ps []Participant) []poker.User {
	users := make([]poker.User, 0, len(ps))
	for _, p := range ps {
		users = append(users, p.ToUser())
	}
	return users
}

type CreateStoryRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

type SubmitVoteRequest struct {
	StoryID string     `json:"storyId"`
	UserID  string     `json:"userId"`
	Value   poker.Card `json:"value"`
}

// VoteStatus is one user's submission state within a round.
type VoteStatus struct {
	UserID   string `json:"userId"`
	UserName string `json:"userName,omitempty"`
	HasVoted bool   `json:"hasVoted"`
}

type VotingStatus struct {
	StoryID      string       `json:"storyId"`
	IsRevealed   bool         `json:"isRevealed"`
	Participants []VoteStatus `json:"participants"`
}

// Vote is one revealed vote.
type Vote struct {
	UserID   string     `json:"userId"`
	UserName string     `json:"userName,omitempty"`
	Value    poker.Card `json:"value"`
}

type SendMessageRequest struct {
	UserID  string `json:"userId"`
	Content string `json:"content"`
}
