package handler

import (
	"net/http"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/auth/jwt"
	"planpoker/internal/pkg/errs"
)

func participant(u poker.User) services.Participant {
	return services.Participant{
		ID:             u.ID,
		Name:           u.Name,
		DisplayName:    u.Name,
		Role:           u.Role().String(),
		IsModerator:    u.IsModerator,
		IsProductOwner: u.IsProductOwner,
		HasVoted:       u.HasVoted,
		Vote:           u.Vote,
	}
}

func participants(users []poker.User) []services.Participant {
	out := make([]services.Participant, 0, len(users))
	for _, u := range users {
		out = append(out, participant(u))
	}
	return out
}

// issueToken signs the room access token for user.
func issueToken(deps *AppDeps, roomID, roomCode string, user poker.User) (string, *errs.Error) {
	token, err := jwt.GenerateToken(&jwt.Payload{
		RoomID:   roomID,
		RoomCode: roomCode,
		UserID:   user.ID,
		Role:     user.Role().String(),
	}, deps.Config.JWTSecret, jwt.RoomAccessExpiration)
	if err != nil {
		return "", errs.NewError(errs.ErrUnknown, err)
	}
	return token, nil
}

// requireIdentity returns the token payload of r, or ErrUnauthorized.
func requireIdentity(r *http.Request) (*jwt.Payload, *errs.Error) {
	payload := jwt.GetPayloadFromContext(r)
	if payload == nil {
		return nil, errs.NewError(errs.ErrUnauthorized)
	}
	return payload, nil
}

// requireRoom returns the token payload of r when it authorizes roomID.
func requireRoom(r *http.Request, roomID string) (*jwt.Payload, *errs.Error) {
	payload, err := requireIdentity(r)
	if err != nil {
		return nil, err
	}
	if payload.RoomID != roomID {
		return nil, errs.NewError(errs.ErrUnauthorized)
	}
	return payload, nil
}
