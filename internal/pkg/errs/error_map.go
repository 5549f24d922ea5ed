/*
Package errs provides the error type shared by the planning poker client and the
reference backend, the error kind taxonomy, and application-level error codes.

This file holds the message tables: the backend's code table and the client's
user-facing copy per HTTP status.
*/
package errs

import "net/http"

// errorMap stores the Error template for every application error code.
var errorMap = map[int]Error{
	// 1xxx: General Request Handling Errors
	ErrInvalidParams:        {Code: ErrInvalidParams, Message: "Invalid request parameters.", Status: http.StatusBadRequest},
	ErrUnsupportedMediaType: {Code: ErrUnsupportedMediaType, Message: "Unsupported request format.", Status: http.StatusUnsupportedMediaType},
	ErrInvalidJSONFormat:    {Code: ErrInvalidJSONFormat, Message: "Unsupported request format.", Status: http.StatusBadRequest},
	ErrExtraContentInBody:   {Code: ErrExtraContentInBody, Message: "Request contains unexpected data.", Status: http.StatusBadRequest},
	ErrRateLimitExceeded:    {Code: ErrRateLimitExceeded, Message: "Too many requests. Please try again later.", Status: http.StatusTooManyRequests},
	ErrUnauthorized:         {Code: ErrUnauthorized, Message: "Room access token is missing or invalid.", Status: http.StatusUnauthorized},

	// 2xxx: Room, Story and Voting Errors
	ErrRoomNotFound:           {Code: ErrRoomNotFound, Message: "Room not found.", Status: http.StatusNotFound},
	ErrDisplayNameRequired:    {Code: ErrDisplayNameRequired, Message: "A display name is required.", Status: http.StatusBadRequest},
	ErrParticipantNotFound:    {Code: ErrParticipantNotFound, Message: "You are not a participant of this room.", Status: http.StatusForbidden},
	ErrNotProductOwner:        {Code: ErrNotProductOwner, Message: "Only the Product Owner can do this.", Status: http.StatusForbidden},
	ErrStoryNotFound:          {Code: ErrStoryNotFound, Message: "Story not found.", Status: http.StatusNotFound},
	ErrStoryTitleRequired:     {Code: ErrStoryTitleRequired, Message: "A story title is required.", Status: http.StatusBadRequest},
	ErrInvalidCard:            {Code: ErrInvalidCard, Message: "Invalid card value: %v.", Status: http.StatusBadRequest},
	ErrProductOwnerCannotVote: {Code: ErrProductOwnerCannotVote, Message: "The Product Owner does not vote.", Status: http.StatusForbidden},
	ErrVotesNotRevealed:       {Code: ErrVotesNotRevealed, Message: "Votes have not been revealed yet.", Status: http.StatusConflict},
	ErrRoundClosed:            {Code: ErrRoundClosed, Message: "Voting is not open for this story.", Status: http.StatusConflict},
	ErrMessageContentTooLong:  {Code: ErrMessageContentTooLong, Message: "Message is too long.", Status: http.StatusBadRequest},

	// 5xxx: Internal System Errors
	ErrUnknown: {Code: ErrUnknown, Message: "Something went wrong. Please try again.", Status: http.StatusInternalServerError},
}

// statusCopy is the user-facing message per HTTP status.
var statusCopy = map[int]string{
	http.StatusBadRequest:          "Invalid request. Please check your input and try again.",
	http.StatusUnauthorized:        "Your session is not authorized. Please rejoin the room.",
	http.StatusForbidden:           "You don't have permission to perform this action.",
	http.StatusNotFound:            "The requested room or story could not be found.",
	http.StatusTooManyRequests:     "Too many requests. Please wait a moment and try again.",
	http.StatusInternalServerError: "The server encountered an error. Please try again later.",
}

const (
	networkCopy   = "Unable to reach the server. Please check your connection."
	parseCopy     = "The server sent an invalid response."
	unknownCopy   = "An unexpected error occurred."
	cancelledCopy = "The request was cancelled."
	serverCopy    = "The server is currently unavailable. Please try again later."
)
