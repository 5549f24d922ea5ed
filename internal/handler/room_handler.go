/*
Package handler provides HTTP handler functions for room creation, joining and membership.
*/
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/randx"
	"planpoker/internal/pkg/req"
	"planpoker/internal/pkg/resp"
)

// HandleCreateRoom opens a room and returns it with the creator's participant
// id and access token.
func HandleCreateRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input services.CreateRoomRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		scale := input.Scale
		if scale == "" {
			scale = services.ScaleFibonacci
		}

		room, owner, customErr := deps.Backend.CreateRoom(input.Name, input.CreatedBy, scale)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, customErr := issueToken(deps, room.ID, room.Code, owner)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, services.Room{
			ID:            room.ID,
			Code:          room.Code,
			Name:          room.Name,
			CreatedBy:     room.CreatedBy,
			Scale:         room.Scale,
			ParticipantID: owner.ID,
			AccessToken:   token,
		})
	}
}

// HandleJoinRoom serves both POST /rooms/join (code in the body) and
// POST /rooms/{room}/join (code in the path).
func HandleJoinRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var input services.JoinRoomRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		code := chi.URLParam(r, "room")
		if code == "" {
			code = input.RoomCode
		}
		if !randx.IsValidRoomCode(code) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		room, user, customErr := deps.Backend.JoinRoom(code, input.DisplayName, poker.ParseRole(input.Role))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		token, customErr := issueToken(deps, room.ID, room.Code, user)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		logx.Debug("Participant joined room", "room_code", room.Code, "user_id", user.ID)

		resp.RespondSuccess(w, r, services.JoinResult{
			RoomID:      room.ID,
			RoomCode:    room.Code,
			Participant: participant(user),
			AccessToken: token,
		})
	}
}

// HandleGetRoom looks a room up by code.
func HandleGetRoom(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		room, customErr := deps.Backend.RoomByCode(chi.URLParam(r, "room"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, services.Room{
			ID:        room.ID,
			Code:      room.Code,
			Name:      room.Name,
			CreatedBy: room.CreatedBy,
			Scale:     room.Scale,
		})
	}
}

// HandleParticipants lists the members of a room.
func HandleParticipants(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users, customErr := deps.Backend.Participants(chi.URLParam(r, "room"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, participants(users))
	}
}
