package game

import (
	"context"
	"time"

	"planpoker/internal/app/poker"
)

const (
	RevealCountdownFrom = 3
	RevealCountdownStep = time.Second
)

// startCountdownLocked begins the reveal countdown unless votes are already
// revealed or a countdown is running. The ticker is created before returning
// so callers observe it on the clock immediately.
func (s *Store) startCountdownLocked(st *poker.GameState) bool {
	if st.VotesRevealed || st.RevealCountdown != nil || st.CurrentStory == nil {
		return false
	}

	s.stopCountdownLocked()
	s.countdownID++
	id := s.countdownID
	epoch := s.epoch

	n := RevealCountdownFrom
	st.RevealCountdown = &n

	ctx, cancel := context.WithCancel(context.Background())
	s.cancelCountdown = cancel
	ticker := s.clock.NewTicker(RevealCountdownStep)

	go func() {
		defer ticker.Stop()

		remaining := RevealCountdownFrom
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
			}

			remaining--
			done := remaining <= 0
			left := remaining

			applied := s.updateIn(epoch, func(st poker.GameState) poker.GameState {
				if s.countdownID != id {
					return st
				}
				if done {
					st.Reveal()
					s.cancelCountdown = nil
					return st
				}
				st.RevealCountdown = &left
				return st
			})
			if !applied || done {
				cancel()
				return
			}
		}
	}()

	return true
}

// stopCountdownLocked cancels a running countdown. The caller clears
// RevealCountdown on the snapshot it is building.
func (s *Store) stopCountdownLocked() {
	s.countdownID++
	if s.cancelCountdown != nil {
		s.cancelCountdown()
		s.cancelCountdown = nil
	}
}
