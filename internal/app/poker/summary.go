package poker

import "math"

// Summary aggregates the revealed votes of a round.
type Summary struct {
	Votes     int     `json:"votes"`
	Numeric   int     `json:"numeric"`
	Average   float64 `json:"average"`
	Min       float64 `json:"min"`
	Max       float64 `json:"max"`
	Consensus bool    `json:"consensus"`
	// Counts maps each played card to how many users played it.
	Counts map[Card]int `json:"counts"`
}

// Summarize computes the Summary of users' revealed votes. Symbolic cards are
// counted but excluded from the numeric statistics.
func Summarize(users []User) Summary {
	s := Summary{Counts: make(map[Card]int)}

	sum := 0.0
	s.Min = math.Inf(1)
	s.Max = math.Inf(-1)

	for _, u := range users {
		if u.Vote == nil {
			continue
		}
		s.Votes++
		s.Counts[*u.Vote]++

		n, ok := u.Vote.Number()
		if !ok {
			continue
		}
		s.Numeric++
		sum += n
		s.Min = math.Min(s.Min, n)
		s.Max = math.Max(s.Max, n)
	}

	if s.Numeric == 0 {
		s.Min, s.Max = 0, 0
		return s
	}

	s.Average = math.Round(sum/float64(s.Numeric)*10) / 10
	s.Consensus = s.Votes > 1 && len(s.Counts) == 1
	return s
}
