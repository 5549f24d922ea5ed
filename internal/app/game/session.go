package game

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/poll"
	"planpoker/internal/app/realtime"
	"planpoker/internal/app/services"
	"planpoker/internal/pkg/errs"
	"planpoker/internal/pkg/logx"
)

// SessionConfig wires a Session.
type SessionConfig struct {
	Services *services.Services
	Dialer   realtime.Dialer
	Notifier errs.Notifier
	Clock    clockwork.Clock
	Deck     []poker.Card
}

// Session composes the store with its reactive collaborators: the hub
// connection and the pollers follow every committed snapshot.
type Session struct {
	Store        *Store
	Manager      *realtime.Manager
	Router       *realtime.Router
	Participants *poll.ParticipantsCache
	Status       *poll.StatusPoller
	Revealed     *poll.RevealedPoller

	log         zerolog.Logger
	unsubscribe func()
}

func NewSession(cfg SessionConfig) *Session {
	clock := cfg.Clock
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	policy := errs.NewPolicy(cfg.Notifier)
	svc := cfg.Services

	router := realtime.NewRouter()
	manager := realtime.NewManager(cfg.Dialer, router, clock)
	participants := poll.NewParticipantsCache(svc.Rooms, clock)

	s := &Session{
		Manager:      manager,
		Router:       router,
		Participants: participants,
		Status:       poll.NewStatusPoller(svc.Voting, clock, policy),
		Revealed:     poll.NewRevealedPoller(svc.Voting, clock, policy),
		log:          logx.Component("game.session"),
	}

	s.Store = New(Deps{
		Rooms:        svc.Rooms,
		Stories:      svc.Stories,
		Voting:       svc.Voting,
		Chat:         svc.Chat,
		Participants: participants,
		Policy:       policy,
		Clock:        clock,
		Hub:          manager,
		Tokens:       svc.Client,
		Deck:         cfg.Deck,
	})

	s.Store.Bind(router)
	s.Status.OnChange(s.Store.applyVotingStatus)
	s.Status.OnClear(s.Store.dropPolledVotes)
	s.Revealed.OnChange(s.Store.applyRevealedVotes)

	manager.OnStateChange(func(st realtime.State) {
		s.log.Debug().Stringer("state", st).Msg("Hub connection state")
	})
	manager.OnReconnected(func() {
		if st := s.Store.State(); st.InRoom() {
			participants.Trigger(st.RoomID)
		}
	})

	s.unsubscribe = s.Store.Subscribe(s.follow)
	return s
}

// follow points the hub connection and the pollers at snapshot st.
func (s *Session) follow(st poker.GameState) {
	online := st.InRoom() && !s.Store.Offline()

	jc := realtime.JoinContext{}
	if online && st.CurrentUser != nil {
		jc = realtime.JoinContext{
			RoomCode:    st.RoomCode,
			RoomID:      st.RoomID,
			UserID:      st.CurrentUser.ID,
			AccessToken: s.Store.Token(),
		}
	}
	s.Manager.Reconcile(jc)

	var storyID string
	if st.CurrentStory != nil {
		storyID = st.CurrentStory.ID
	}
	active := online && storyID != ""

	s.Status.SetTarget(poll.Target{
		RoomID:  st.RoomID,
		StoryID: storyID,
		Active:  active && st.VotingInProgress && !st.VotesRevealed,
	})
	s.Revealed.SetTarget(poll.Target{
		RoomID:  st.RoomID,
		StoryID: storyID,
		Active:  active && st.VotesRevealed,
	})
}

// Close leaves the room, waiting for the hub leave handshake, and stops
// every timer.
func (s *Session) Close(ctx context.Context) {
	s.Manager.Disconnect(ctx)
	if s.Store.State().InRoom() {
		s.Store.LeaveRoom()
	}

	s.unsubscribe()
	s.Status.Stop()
	s.Revealed.Stop()
	s.Participants.Cancel()
}
