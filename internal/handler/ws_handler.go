/*
Package handler provides the HTTP handler function for hub connection upgrades.

A hub connection must present a room access token (access_token query parameter or
Bearer header) whose room code matches the roomCode query parameter and whose holder
is still a participant of that room.
*/
package handler

import (
	"net/http"

	"github.com/gorilla/websocket"

	"planpoker/internal/app/hub"
	"planpoker/internal/pkg/auth/jwt"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/limiter"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/randx"
	"planpoker/internal/pkg/resp"
)

// HandleHub upgrades an authorized request to a hub connection and serves it.
func HandleHub(upgrader websocket.Upgrader, rateLimiter *limiter.IPRateLimiter, deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := limiter.ClientIP(r)
		if !rateLimiter.Allow(ip) {
			logx.Warn("Hub connection rejected: rate limit exceeded", "ip", ip)
			resp.RespondError(w, r, errs.NewError(errs.ErrRateLimitExceeded))
			return
		}

		payload, err := jwt.ParseToken(jwt.TokenFromRequest(r), deps.Config.JWTSecret)
		if err != nil {
			logx.Info("Hub connection rejected: invalid token", "error", err)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		roomCode := randx.NormalizeRoomCode(r.URL.Query().Get("roomCode"))
		if roomCode == "" {
			roomCode = randx.NormalizeRoomCode(payload.RoomCode)
		}
		if roomCode != randx.NormalizeRoomCode(payload.RoomCode) {
			logx.Info("Hub connection rejected: token issued for another room", "room_code", roomCode)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		if _, customErr := deps.Backend.Member(payload.RoomID, payload.UserID); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logx.Error(err, "Failed to upgrade hub connection")
			return
		}

		client := hub.NewClient(deps.Hub.Attach(roomCode), conn, hub.Identity{
			RoomID:   payload.RoomID,
			RoomCode: roomCode,
			UserID:   payload.UserID,
		})

		go client.WritePump()

		logx.Debug("Hub connection established", "room_code", roomCode, "user_id", payload.UserID)

		client.ReadPump()
	}
}
