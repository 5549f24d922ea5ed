/*
Package errs provides the error type shared by the planning poker client and the
reference backend, the error kind taxonomy, and application-level error codes.

Kinds describe how an error happened (transport, HTTP status, parsing, client-side
validation). Codes identify specific business failures reported by the backend.
*/
package errs

// Kind classifies an error by origin. Callers branch on kinds, never on messages.
type Kind string

const (
	// KindNetwork is a transport failure before any HTTP status was received (status 0).
	KindNetwork Kind = "NETWORK_ERROR"

	// KindHTTP is a non-2xx response that is neither throttling nor a server failure.
	KindHTTP Kind = "HTTP_ERROR"

	// KindParse is a response body that could not be decoded as JSON.
	KindParse Kind = "PARSE_ERROR"

	// KindValidation is a client-side precondition failure. It never reaches the network.
	KindValidation Kind = "VALIDATION_ERROR"

	// KindRateLimited is an HTTP 429. It is soft and retryable.
	KindRateLimited Kind = "RATE_LIMITED"

	// KindServer is an HTTP 5xx.
	KindServer Kind = "SERVER_ERROR"
)

// 1xxx: General Request Handling Errors
const (
	// ErrInvalidParams indicates that request parameter validation failed.
	ErrInvalidParams = 1001

	// ErrUnsupportedMediaType indicates that the request header Content-Type is not supported.
	ErrUnsupportedMediaType = 1002

	// ErrInvalidJSONFormat indicates that the request body JSON format is incorrect.
	ErrInvalidJSONFormat = 1003

	// ErrExtraContentInBody indicates that the request body contained extra content after valid JSON data.
	ErrExtraContentInBody = 1004

	// ErrRateLimitExceeded indicates that the request rate has exceeded the set limit.
	ErrRateLimitExceeded = 1007

	// ErrUnauthorized indicates a missing or invalid room access token.
	ErrUnauthorized = 1008
)

// 2xxx: Room, Story and Voting Errors
const (
	// ErrRoomNotFound indicates that the room code or id does not exist.
	ErrRoomNotFound = 2103

	// ErrDisplayNameRequired indicates an empty display name on create or join.
	ErrDisplayNameRequired = 2104

	// ErrParticipantNotFound indicates that the user is not a member of the room.
	ErrParticipantNotFound = 2106

	// ErrNotProductOwner indicates an owner-only action attempted by a voter.
	ErrNotProductOwner = 2107

	// ErrStoryNotFound indicates that the story does not exist in the room.
	ErrStoryNotFound = 2201

	// ErrStoryTitleRequired indicates a story created without a title.
	ErrStoryTitleRequired = 2202

	// ErrInvalidCard indicates a vote value outside the room's deck.
	ErrInvalidCard = 2301

	// ErrProductOwnerCannotVote indicates a vote submitted by the Product Owner.
	ErrProductOwnerCannotVote = 2302

	// ErrVotesNotRevealed indicates a request for vote values before reveal.
	ErrVotesNotRevealed = 2303

	// ErrRoundClosed indicates a vote for a story that is not open for voting.
	ErrRoundClosed = 2304

	// ErrMessageContentTooLong indicates a chat message above the length limit.
	ErrMessageContentTooLong = 2401
)

// 5xxx: Internal System Errors
const (
	// ErrUnknown represents an unclassified, general server internal error.
	ErrUnknown = 5000
)
