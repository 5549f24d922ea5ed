package services

const (
	// Room Endpoints
	RoomsEndpoint          = "/rooms"
	JoinRoomEndpoint       = "/rooms/join"
	JoinRoomByCodeEndpoint = "/rooms/%s/join"
	RoomByCodeEndpoint     = "/rooms/%s"
	ParticipantsEndpoint   = "/rooms/%s/participants"

	// Story Endpoints
	StoriesEndpoint     = "/rooms/%s/stories"
	SelectStoryEndpoint = "/rooms/%s/stories/%s/select"

	// Voting Endpoints
	VotesEndpoint         = "/stories/%s/votes"
	RevealEndpoint        = "/stories/%s/reveal"
	RevealedVotesEndpoint = "/rooms/%s/stories/%s/votes"
	VotingStatusEndpoint  = "/rooms/%s/stories/%s/voting-status"

	// Chat Endpoints
	ChatEndpoint = "/rooms/%s/chat"

	// Room defaults sent on creation
	ScaleFibonacci   = "fibonacci"
	DefaultTimeLimit = 0
)
