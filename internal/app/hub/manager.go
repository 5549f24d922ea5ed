/*
Package hub is the push side of the reference backend: one Room per room code fans
invocation frames out to every connected Client.

This file defines the Manager, which creates rooms on first connection, routes
published backend events to them and removes them once they shut down.
*/
package hub

import (
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/realtime"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
	"planpoker/internal/pkg/randx"
)

// Backend is the slice of the room domain the hub needs.
type Backend interface {
	Stories(roomID string) ([]poker.Story, *errs.Error)
	CurrentStory(roomID string) (*poker.Story, bool, *errs.Error)
	Leave(roomID, userID string) *errs.Error
	ResetVoting(roomID, userID string) *errs.Error
}

// Manager tracks every live Room.
type Manager struct {
	mu    sync.RWMutex
	rooms map[string]*Room

	backend Backend
	clock   clockwork.Clock

	cleanup chan *Room
	wg      sync.WaitGroup

	logger zerolog.Logger
}

// NewManager starts a Manager. A nil clock uses the real clock.
func NewManager(backend Backend, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	m := &Manager{
		rooms:   make(map[string]*Room),
		backend: backend,
		clock:   clock,
		cleanup: make(chan *Room, 16),
		logger:  logx.Component("hub.manager"),
	}

	m.wg.Add(1)
	go m.runCleanupLoop()

	return m
}

func (m *Manager) runCleanupLoop() {
	defer m.wg.Done()

	for room := range m.cleanup {
		m.mu.Lock()
		if current, ok := m.rooms[room.Code]; ok && current == room {
			delete(m.rooms, room.Code)
			m.logger.Info().Str("room_code", room.Code).Msg("Room removed")
		}
		m.mu.Unlock()
	}
}

// Attach returns the running Room for code, starting one if needed.
func (m *Manager) Attach(code string) *Room {
	code = randx.NormalizeRoomCode(code)

	m.mu.Lock()
	defer m.mu.Unlock()

	if room, ok := m.rooms[code]; ok && !room.stopped() {
		return room
	}

	room := newRoom(code, m.backend, m.clock, m.cleanup)
	m.rooms[code] = room
	go room.Run()

	m.logger.Info().Str("room_code", code).Msg("Room started")
	return room
}

// GetRoom returns the Room for code, or nil.
func (m *Manager) GetRoom(code string) *Room {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.rooms[randx.NormalizeRoomCode(code)]
}

// Publish sends an event to every client of the room. Rooms without
// connections drop it.
func (m *Manager) Publish(code, target string, args ...any) {
	room := m.GetRoom(code)
	if room == nil {
		return
	}

	frame, err := realtime.NewInvocation(target, args...)
	if err != nil {
		m.logger.Error().Err(err).Str("target", target).Msg("Failed to encode event")
		return
	}
	room.Broadcast(frame)
}

// Shutdown stops every room and the cleanup loop.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		room.Stop()
		rooms = append(rooms, room)
	}
	m.rooms = make(map[string]*Room)
	m.mu.Unlock()

	for _, room := range rooms {
		<-room.done
	}

	close(m.cleanup)
	m.wg.Wait()

	m.logger.Info().Msg("Hub shutdown complete")
}
