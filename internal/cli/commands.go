package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"planpoker/internal/app/poker"
	"planpoker/internal/pkg/errs"
)

func (a *App) createCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <name>",
		Short: "Creates a room with you as its Product Owner.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			if err := s.CreateRoom(ctx, strings.Join(args, " ")); err != nil {
				return err
			}

			st := s.State()
			fmt.Fprintf(a.out, "Room %s created. Share the code with your team.\n", st.RoomCode)
			if s.Offline() {
				fmt.Fprintln(a.out, "The server is unreachable: the room only exists on this machine.")
			}
			return nil
		},
	}
}

func (a *App) joinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <code> <name>",
		Short: "Joins an existing room as a voter.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			if err := s.JoinRoom(ctx, args[0], strings.Join(args[1:], " ")); err != nil {
				return err
			}

			st := s.State()
			fmt.Fprintf(a.out, "Joined room %s.\n", st.RoomCode)
			if s.Offline() {
				fmt.Fprintln(a.out, "The server is unreachable: you are in a local copy of the room.")
			}
			return nil
		},
	}
}

func (a *App) leaveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "leave",
		Short: "Leaves the current room.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store()
			if !s.State().InRoom() {
				return errs.Validation("you are not in a room")
			}
			s.LeaveRoom()
			fmt.Fprintln(a.out, "Left the room.")
			return nil
		},
	}
}

func (a *App) participantsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "participants",
		Aliases: []string{"who"},
		Short:   "Fetches and lists the room participants.",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			st := s.State()
			if !st.InRoom() {
				return errs.Validation("join a room first")
			}

			users, err := s.FetchParticipants(ctx, st.RoomID)
			if err != nil && users == nil {
				return err
			}
			st.Users = users
			renderUsers(a.out, st)
			return nil
		},
	}
}

func (a *App) stateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "state",
		Short: "Shows the room, the current round and everyone's vote status.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store()
			st := s.State()
			renderState(a.out, st)
			if st.InRoom() && !s.Offline() {
				hub := a.hub()
				renderHub(a.out, hub.State(), hub.LastError())
			}
			return nil
		},
	}
}

func (a *App) reconnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconnect",
		Short: "Reconnects to the room's live updates after the hub was unreachable.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := a.store()
			if !s.State().InRoom() || s.Offline() {
				return errs.Validation("join a room on the server first")
			}
			hub := a.hub()
			if hub.IsLive() {
				fmt.Fprintln(a.out, "Already connected.")
				return nil
			}
			hub.Retry()
			fmt.Fprintln(a.out, "Reconnecting to the hub.")
			return nil
		},
	}
}

func (a *App) storiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stories",
		Short: "Lists the backlog.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			renderStories(a.out, a.store().State())
			return nil
		},
	}
}

func (a *App) storyCmd() *cobra.Command {
	story := &cobra.Command{
		Use:   "story",
		Short: "Manages stories.",
	}

	story.AddCommand(&cobra.Command{
		Use:   "add <title> [description...]",
		Short: "Adds a story to the backlog.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			created, err := a.store().AddStory(ctx, args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Added story %q (%s).\n", created.Title, created.ID)
			return nil
		},
	})

	story.AddCommand(&cobra.Command{
		Use:   "select <number|id>",
		Short: "Starts a voting round on a story.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			st := s.State()
			id, err := resolveStory(st, args[0])
			if err != nil {
				return err
			}
			if err := s.SetCurrentStory(ctx, id); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Voting on %q.\n", st.Stories[st.FindStory(id)].Title)
			return nil
		},
	})

	return story
}

// resolveStory accepts a 1-based backlog position or a story id.
func resolveStory(st poker.GameState, ref string) (string, error) {
	if n, err := strconv.Atoi(ref); err == nil {
		if n < 1 || n > len(st.Stories) {
			return "", errs.Validation("no story number %d", n)
		}
		return st.Stories[n-1].ID, nil
	}
	if st.FindStory(ref) < 0 {
		return "", errs.Validation("story %s not found", ref)
	}
	return ref, nil
}

func (a *App) voteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "vote <card>",
		Short: "Plays a card in the current round.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			st := s.State()
			switch {
			case st.CurrentStory == nil:
				return errs.Validation("no story is being estimated")
			case st.CurrentUser != nil && st.CurrentUser.IsProductOwner:
				return errs.Validation("the Product Owner does not vote")
			}

			card := poker.Card(args[0])
			if err := s.CastVote(ctx, card); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "You played %s.\n", card)
			return nil
		},
	}
}

func (a *App) revealCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reveal",
		Short: "Reveals the votes of the current round.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			if s.State().CurrentStory == nil {
				return errs.Validation("no story is being estimated")
			}
			if err := s.RevealVotes(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Revealing votes. Run 'state' to see the result.")
			return nil
		},
	}
}

func (a *App) resetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Clears every vote and restarts the round.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			if err := a.store().ResetVoting(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Voting reset.")
			return nil
		},
	}
}

func (a *App) chatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message...]",
		Short: "Shows the room chat, or sends a message.",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout(cmd)
			defer cancel()

			s := a.store()
			if len(args) > 0 {
				_, err := s.SendMessage(ctx, strings.Join(args, " "))
				return err
			}

			msgs, err := s.Messages(ctx)
			if err != nil {
				return err
			}
			renderChat(a.out, msgs)
			return nil
		},
	}
}
