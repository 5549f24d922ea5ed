/*
Package services contains typed request builders for the planning poker REST API.

Every method issues exactly one request through httpx.Client (except JoinRoom,
which probes a second endpoint shape on 404/405) and returns *errs.Error values
wrapped with the operation name.
*/
package services

import (
	"context"
	"fmt"
	"net/url"

	"planpoker/internal/app/poker"
	"planpoker/internal/pkg/httpx"
)

// Services groups the domain services sharing one HTTP client.
type Services struct {
	Client  *httpx.Client
	Rooms   *RoomService
	Stories *StoryService
	Voting  *VotingService
	Chat    *ChatService
}

func New(client *httpx.Client) *Services {
	return &Services{
		Client:  client,
		Rooms:   &RoomService{client: client},
		Stories: &StoryService{client: client},
		Voting:  &VotingService{client: client},
		Chat:    &ChatService{client: client},
	}
}

func path(format string, args ...string) string {
	escaped := make([]any, len(args))
	for i, a := range args {
		escaped[i] = url.PathEscape(a)
	}
	return fmt.Sprintf(format, escaped...)
}

type RoomService struct {
	client *httpx.Client
}

func (s *RoomService) CreateRoom(ctx context.Context, req CreateRoomRequest) (*Room, error) {
	var room Room
	if _, err := s.client.Post(ctx, RoomsEndpoint, req, &room); err != nil {
		return nil, fmt.Errorf("failed to create room: %w", err)
	}
	return &room, nil
}

// JoinRoom posts to /rooms/join and falls back to /rooms/{code}/join when the
// server does not know the first shape.
func (s *RoomService) JoinRoom(ctx context.Context, code, displayName string, role poker.Role) (*JoinResult, error) {
	req := JoinRoomRequest{RoomCode: code, DisplayName: displayName, Role: role.String()}

	var result JoinResult
	_, err := s.client.Post(ctx, JoinRoomEndpoint, req, &result)
	if httpx.IsNotFoundOrMethod(err) {
		req.RoomCode = ""
		result = JoinResult{}
		_, err = s.client.Post(ctx, path(JoinRoomByCodeEndpoint, code), req, &result)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to join room: %w", err)
	}

	if result.RoomCode == "" {
		result.RoomCode = code
	}
	return &result, nil
}

func (s *RoomService) GetRoom(ctx context.Context, code string) (*Room, error) {
	var room Room
	if _, err := s.client.Get(ctx, path(RoomByCodeEndpoint, code), &room); err != nil {
		return nil, fmt.Errorf("failed to get room: %w", err)
	}
	return &room, nil
}

func (s *RoomService) Participants(ctx context.Context, roomID string) ([]poker.User, error) {
	var ps []Participant
	if _, err := s.client.Get(ctx, path(ParticipantsEndpoint, roomID), &ps); err != nil {
		return nil, fmt.Errorf("failed to get participants: %w", err)
	}
	return ToUsers(ps), nil
}

type StoryService struct {
	client *httpx.Client
}

func (s *StoryService) CreateStory(ctx context.Context, roomID string, req CreateStoryRequest) (*poker.Story, error) {
	var story poker.Story
	if _, err := s.client.Post(ctx, path(StoriesEndpoint, roomID), req, &story); err != nil {
		return nil, fmt.Errorf("failed to create story: %w", err)
	}
	return &story, nil
}

func (s *StoryService) Stories(ctx context.Context, roomID string) ([]poker.Story, error) {
	var stories []poker.Story
	if _, err := s.client.Get(ctx, path(StoriesEndpoint, roomID), &stories); err != nil {
		return nil, fmt.Errorf("failed to get stories: %w", err)
	}
	return stories, nil
}

func (s *StoryService) SelectStory(ctx context.Context, roomID, storyID string) error {
	if _, err := s.client.Post(ctx, path(SelectStoryEndpoint, roomID, storyID), nil, nil); err != nil {
		return fmt.Errorf("failed to select story: %w", err)
	}
	return nil
}

type VotingService struct {
	client *httpx.Client
}

func (s *VotingService) SubmitVote(ctx context.Context, storyID, userID string, value poker.Card) error {
	req := SubmitVoteRequest{StoryID: storyID, UserID: userID, Value: value}
	if _, err := s.client.Post(ctx, path(VotesEndpoint, storyID), req, nil); err != nil {
		return fmt.Errorf("failed to submit vote: %w", err)
	}
	return nil
}

func (s *VotingService) RevealVotes(ctx context.Context, storyID string) error {
	if _, err := s.client.Post(ctx, path(RevealEndpoint, storyID), nil, nil); err != nil {
		return fmt.Errorf("failed to reveal votes: %w", err)
	}
	return nil
}

func (s *VotingService) VotingStatus(ctx context.Context, roomID, storyID string) (*VotingStatus, error) {
	var status VotingStatus
	if _, err := s.client.Get(ctx, path(VotingStatusEndpoint, roomID, storyID), &status); err != nil {
		return nil, fmt.Errorf("failed to get voting status: %w", err)
	}
	return &status, nil
}

func (s *VotingService) RevealedVotes(ctx context.Context, roomID, storyID string) ([]Vote, error) {
	var votes []Vote
	if _, err := s.client.Get(ctx, path(RevealedVotesEndpoint, roomID, storyID), &votes); err != nil {
		return nil, fmt.Errorf("failed to get revealed votes: %w", err)
	}
	return votes, nil
}

type ChatService struct {
	client *httpx.Client
}

func (s *ChatService) Messages(ctx context.Context, roomID string) ([]poker.ChatMessage, error) {
	var msgs []poker.ChatMessage
	if _, err := s.client.Get(ctx, path(ChatEndpoint, roomID), &msgs); err != nil {
		return nil, fmt.Errorf("failed to get chat messages: %w", err)
	}
	return msgs, nil
}

func (s *ChatService) Send(ctx context.Context, roomID, userID, content string) (*poker.ChatMessage, error) {
	var msg poker.ChatMessage
	req := SendMessageRequest{UserID: userID, Content: content}
	if _, err := s.client.Post(ctx, path(ChatEndpoint, roomID), req, &msg); err != nil {
		return nil, fmt.Errorf("failed to send chat message: %w", err)
	}
	return &msg, nil
}
