package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"planpoker/internal/app/services"
	"planpoker/internal/pkg/req"
	"planpoker/internal/pkg/resp"
)

func HandleCreateStory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room")
		if _, customErr := requireRoom(r, roomID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		var input services.CreateStoryRequest
		if customErr := req.BindJSON(w, r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		story, customErr := deps.Backend.CreateStory(roomID, input.Title, input.Description)
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, story)
	}
}

func HandleListStories(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stories, customErr := deps.Backend.Stories(chi.URLParam(r, "room"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, stories)
	}
}

// HandleSelectStory makes a story current and opens a round on it for
// everyone in the room.
func HandleSelectStory(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		roomID := chi.URLParam(r, "room")
		if _, customErr := requireRoom(r, roomID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		story, customErr := deps.Backend.SelectStory(roomID, chi.URLParam(r, "story"))
		if customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		resp.RespondSuccess(w, r, story)
	}
}
