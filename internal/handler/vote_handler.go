package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"planpoker/internal/app/services"
	"planpoker/internal/pkg/auth/jwt"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/req"
	"planpoker/internal/pkg/resp"
)

// requireStoryRoom checks that the token of r authorizes the room owning storyID.
func requireStoryRoom(deps *AppDeps, r *http.Request, storyID string) (*jwt.Payload, *errs.Error) {
	roomID, customErr := deps.Backend.StoryRoomID(storyID)
	if customErr != nil {
		return nil, customErr
	}
	return requireRoom(r, roomID)
}

// HandleSubmitVote records the caller's card. The body's userId must be the
// token holder.
func HandleSubmitVote(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storyID := chi.URLParam(r, "story")

		var input services.SubmitVoteRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.StoryID != "" && input.StoryID != storyID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		identity, customErr := requireStoryRoom(deps, r, storyID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.UserID != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if customErr := deps.Backend.SubmitVote(storyID, identity.UserID, input.Value); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

func HandleRevealVotes(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		storyID := chi.URLParam(r, "story")

		if _, customErr := requireStoryRoom(deps, r, storyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := deps.Backend.RevealVotes(storyID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, nil)
	}
}

func HandleVotingStatus(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status, customErr := deps.Backend.VotingStatus(chi.URLParam(r, "room"), chi.URLParam(r, "story"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, status)
	}
}

func HandleRevealedVotes(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		votes, customErr := deps.Backend.RevealedVotes(chi.URLParam(r, "room"), chi.URLParam(r, "story"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, votes)
	}
}
