package jwt

import "github.com/golang-jwt/jwt"

// Payload is the claim set of a room access token. One token authorizes one
// participant in one room, both for REST calls and for the hub connection.
type Payload struct {
	jwt.StandardClaims

	RoomID   string `json:"roomId"`
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`

	// Role is the wire role name of the participant at issue time.
	Role string `json:"role"`
}
