/*
Package hub is the push side of the reference backend: one Room per room code fans
invocation frames out to every connected Client.

This file defines Room, the event loop owning the connections of one planning poker
room. It registers and unregisters clients, fans frames out and shuts itself down
after a period without connections.
*/
package hub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"planpoker/internal/app/realtime"
	"planpoker/internal/pkg/logx"
)

const broadcastChannelBuffer = 1024

// RoomInactivityTimeout is how long a Room without connections keeps running.
const RoomInactivityTimeout = 5 * time.Minute

// Hub event names emitted by a Room itself.
const (
	EventUserJoined          = "UserJoined"
	EventUserLeft            = "UserLeft"
	EventStoriesInitialized  = "StoriesInitialized"
	EventCurrentStoryChanged = "CurrentStoryChanged"
)

// Room is the event loop of one room's connections.
type Room struct {
	Code string

	backend Backend
	clock   clockwork.Clock

	// clients is owned by the Run goroutine; mu guards reads from elsewhere.
	mu      sync.RWMutex
	clients map[*Client]struct{}

	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client

	cleanupChan chan<- *Room

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	logger zerolog.Logger
}

func newRoom(code string, backend Backend, clock clockwork.Clock, cleanup chan<- *Room) *Room {
	return &Room{
		Code:        code,
		backend:     backend,
		clock:       clock,
		clients:     make(map[*Client]struct{}),
		broadcast:   make(chan []byte, broadcastChannelBuffer),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		cleanupChan: cleanup,
		stopChan:    make(chan struct{}),
		done:        make(chan struct{}),
		logger:      logx.Logger().With().Str("component", "hub.room").Str("room_code", code).Logger(),
	}
}

// Stop terminates the Run loop.
func (r *Room) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

func (r *Room) stopped() bool {
	select {
	case <-r.done:
		return true
	default:
		return false
	}
}

// Run is the Room event loop. It returns on Stop or after RoomInactivityTimeout
// without connections.
func (r *Room) Run() {
	timer := r.clock.NewTimer(RoomInactivityTimeout)

	defer func() {
		timer.Stop()

		r.mu.Lock()
		for client := range r.clients {
			client.closeSend()
		}
		r.clients = make(map[*Client]struct{})
		r.mu.Unlock()

		func() {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Warn().Msg("Manager cleanup channel already closed")
				}
			}()

			select {
			case r.cleanupChan <- r:
			default:
				r.logger.Warn().Msg("Manager cleanup channel full, skipping notification")
			}
		}()

		close(r.done)
		r.logger.Info().Msg("Room loop finished")
	}()

	for {
		select {
		case client := <-r.register:
			timer.Stop()
			r.add(client)

		case client := <-r.unregister:
			if r.remove(client) && r.count() == 0 {
				r.logger.Info().Msg("Room is empty, arming inactivity timer")
				timer.Reset(RoomInactivityTimeout)
			}

		case data := <-r.broadcast:
			for _, client := range r.snapshot() {
				if !client.enqueue(data) {
					r.logger.Warn().Str("client_id", client.identity.UserID).Msg("Client send queue full, dropping connection")
					r.remove(client)
				}
			}

		case <-timer.Chan():
			r.logger.Info().Dur("timeout", RoomInactivityTimeout).Msg("Room inactive, shutting down")
			return

		case <-r.stopChan:
			return
		}
	}
}

func (r *Room) add(client *Client) {
	r.mu.Lock()
	r.clients[client] = struct{}{}
	total := len(r.clients)
	r.mu.Unlock()

	r.logger.Info().Str("client_id", client.identity.UserID).Int("connections", total).Msg("Client joined room")

	r.sendInitialState(client)
	r.fanOut(client, EventUserJoined, map[string]string{"userId": client.identity.UserID})
}

// remove drops client and announces its departure. It reports whether the
// client was registered.
func (r *Room) remove(client *Client) bool {
	r.mu.Lock()
	_, ok := r.clients[client]
	delete(r.clients, client)
	total := len(r.clients)
	r.mu.Unlock()

	if !ok {
		return false
	}

	client.closeSend()
	r.logger.Info().Str("client_id", client.identity.UserID).Int("connections", total).Msg("Client left room")
	r.fanOut(client, EventUserLeft, map[string]string{"userId": client.identity.UserID})
	return true
}

// fanOut delivers an event to every client but exclude, from the Run goroutine.
func (r *Room) fanOut(exclude *Client, target string, args ...any) {
	data, err := encode(target, args...)
	if err != nil {
		r.logger.Error().Err(err).Str("target", target).Msg("Failed to encode event")
		return
	}
	for _, client := range r.snapshot() {
		if client != exclude {
			client.enqueue(data)
		}
	}
}

// sendInitialState gives a joining client the backlog and, while a round is
// open, the story under estimation.
func (r *Room) sendInitialState(client *Client) {
	roomID := client.identity.RoomID

	stories, err := r.backend.Stories(roomID)
	if err != nil {
		r.logger.Warn().Err(err).Msg("Failed to load stories for joining client")
		return
	}
	client.sendEvent(EventStoriesInitialized, stories)

	current, revealed, err := r.backend.CurrentStory(roomID)
	if err == nil && current != nil && !revealed {
		client.sendEvent(EventCurrentStoryChanged, current)
	}
}

func (r *Room) snapshot() []*Client {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Client, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c)
	}
	return out
}

func (r *Room) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// ClientCount returns the number of registered connections.
func (r *Room) ClientCount() int {
	return r.count()
}

// RegisterClient queues client for registration. It returns false once the
// Room has shut down.
func (r *Room) RegisterClient(client *Client) bool {
	select {
	case r.register <- client:
		return true
	case <-r.done:
		return false
	}
}

// UnregisterClient queues client for removal.
func (r *Room) UnregisterClient(client *Client) {
	select {
	case r.unregister <- client:
	case <-r.done:
	}
}

// Broadcast queues frame for every registered client.
func (r *Room) Broadcast(frame realtime.Frame) {
	data, err := json.Marshal(frame)
	if err != nil {
		r.logger.Error().Err(err).Str("target", frame.Target).Msg("Failed to encode frame")
		return
	}

	select {
	case r.broadcast <- data:
	case <-r.done:
	default:
		r.logger.Warn().Str("target", frame.Target).Msg("Broadcast channel full, dropping event")
	}
}

func encode(target string, args ...any) ([]byte, error) {
	frame, err := realtime.NewInvocation(target, args...)
	if err != nil {
		return nil, err
	}
	return json.Marshal(frame)
}
