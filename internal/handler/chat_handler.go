package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/req"
	"planpoker/internal/pkg/resp"
)

func HandleGetMessages(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msgs, customErr := deps.Backend.Messages(chi.URLParam(r, "room"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, msgs)
	}
}

// HandleSendMessage posts a chat message as the token holder.
func HandleSendMessage(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room")
		identity, customErr := requireRoom(r, roomID)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input services.SendMessageRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.UserID != "" && input.UserID != identity.UserID {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		msg, customErr := deps.Backend.SendMessage(roomID, identity.UserID, input.Content)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, msg)
	}
}
