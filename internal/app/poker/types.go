/*
Package poker defines the planning poker data model shared by the client core,
the domain services and the reference backend: users, stories, cards and the
GameState snapshot the UI renders from.
*/
package poker

// Role is the derived role of a participant.
type Role int

const (
	// RoleVoter participates in rounds by casting cards.
	RoleVoter Role = iota
	// RoleOwner is the Product Owner: never votes, selects stories, reveals and resets.
	RoleOwner
)

func (r Role) String() string {
	if r == RoleOwner {
		return "ProductOwner"
	}
	return "Voter"
}

// ParseRole maps the wire role name to a Role. Unknown names are voters.
func ParseRole(s string) Role {
	switch s {
	case "ProductOwner", "productOwner", "product_owner", "owner", "Owner", "Moderator", "moderator":
		return RoleOwner
	default:
		return RoleVoter
	}
}

// User is one room participant.
type User struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	IsModerator    bool   `json:"isModerator"`
	IsProductOwner bool   `json:"isProductOwner"`
	HasVoted       bool   `json:"hasVoted"`
	Vote           *Card  `json:"vote,omitempty"`
}

// Role derives the participant role from the Product Owner flag only.
// IsModerator is carried for display and never consulted for permissions.
func (u User) Role() Role {
	if u.IsProductOwner {
		return RoleOwner
	}
	return RoleVoter
}

// ClearVote resets the per-round fields.
func (u *User) ClearVote() {
	u.HasVoted = false
	u.Vote = nil
}

func (u User) clone() User {
	if u.Vote != nil {
		v := *u.Vote
		u.Vote = &v
	}
	return u
}

// Story is one backlog item to estimate.
type Story struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Estimate    *Card  `json:"estimate,omitempty"`
	IsCompleted bool   `json:"isCompleted"`
}

func (s Story) clone() Story {
	if s.Estimate != nil {
		e := *s.Estimate
		s.Estimate = &e
	}
	return s
}

// ChatMessage is one room chat entry.
type ChatMessage struct {
	ID        string `json:"id"`
	UserID    string `json:"userId"`
	UserName  string `json:"userName"`
	Content   string `json:"content"`
	Timestamp int64  `json:"timestamp"`
}

// MaxChatMessageLength bounds chat message content, in runes.
const MaxChatMessageLength = 1000
