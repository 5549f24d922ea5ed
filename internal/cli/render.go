package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"planpoker/internal/app/poker"
	"planpoker/internal/app/realtime"
)

func renderState(w io.Writer, st poker.GameState) {
	if !st.InRoom() {
		fmt.Fprintln(w, "Not in a room. Use 'create <name>' or 'join <code> <name>'.")
		return
	}

	me := "-"
	if st.CurrentUser != nil {
		me = st.CurrentUser.Name
		if st.CurrentUser.IsProductOwner {
			me += " (Product Owner)"
		}
	}
	fmt.Fprintf(w, "Room %s  you: %s\n", st.RoomCode, me)

	phase := st.Phase()
	if st.CurrentStory == nil {
		fmt.Fprintf(w, "No story selected (%d in backlog).\n", len(st.Stories))
	} else {
		fmt.Fprintf(w, "Story: %s  [%s]\n", st.CurrentStory.Title, phase)
	}
	if st.RevealCountdown != nil {
		fmt.Fprintf(w, "Revealing in %d...\n", *st.RevealCountdown)
	}

	renderUsers(w, st)

	if phase == poker.PhaseRevealed {
		renderSummary(w, poker.Summarize(st.Users))
	}
}

// renderHub prints the live-update connection status.
func renderHub(w io.Writer, state realtime.State, lastErr error) {
	switch {
	case state == realtime.Disconnected && lastErr != nil:
		fmt.Fprintf(w, "Live updates: %s (%v). Use 'reconnect' to try again.\n", state, lastErr)
	case lastErr != nil:
		fmt.Fprintf(w, "Live updates: %s (last error: %v)\n", state, lastErr)
	default:
		fmt.Fprintf(w, "Live updates: %s\n", state)
	}
}

func renderUsers(w io.Writer, st poker.GameState) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tROLE\tVOTE")
	for _, u := range st.Users {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", u.Name, u.Role(), voteCell(u, st.VotesRevealed))
	}
	tw.Flush()
}

func voteCell(u poker.User, revealed bool) string {
	switch {
	case u.IsProductOwner:
		return ""
	case revealed && u.Vote != nil:
		return u.Vote.String()
	case u.HasVoted:
		return "voted"
	default:
		return "..."
	}
}

func renderSummary(w io.Writer, s poker.Summary) {
	if s.Votes == 0 {
		fmt.Fprintln(w, "Nobody voted.")
		return
	}

	cards := make([]string, 0, len(s.Counts))
	for c, n := range s.Counts {
		cards = append(cards, fmt.Sprintf("%s x%d", c, n))
	}
	sort.Strings(cards)
	fmt.Fprintf(w, "Votes: %s\n", strings.Join(cards, ", "))

	if s.Numeric > 0 {
		fmt.Fprintf(w, "Average %.1f  min %g  max %g\n", s.Average, s.Min, s.Max)
	}
	if s.Consensus {
		fmt.Fprintln(w, "Consensus!")
	}
}

func renderStories(w io.Writer, st poker.GameState) {
	if len(st.Stories) == 0 {
		fmt.Fprintln(w, "The backlog is empty. Use 'story add <title>'.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for i, story := range st.Stories {
		marker := " "
		if st.CurrentStory != nil && st.CurrentStory.ID == story.ID {
			marker = "*"
		}
		fmt.Fprintf(tw, "%s %d\t%s\t%s\n", marker, i+1, story.Title, story.ID)
	}
	tw.Flush()
}

func renderChat(w io.Writer, msgs []poker.ChatMessage) {
	if len(msgs) == 0 {
		fmt.Fprintln(w, "No messages yet.")
		return
	}
	for _, m := range msgs {
		at := time.UnixMilli(m.Timestamp).Format(time.Kitchen)
		fmt.Fprintf(w, "[%s] %s: %s\n", at, m.UserName, m.Content)
	}
}
