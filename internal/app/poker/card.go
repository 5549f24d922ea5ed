package poker

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Card is one estimate on the deck. Numeric cards travel as JSON numbers,
// symbolic cards ("?", "☕") as strings.
type Card string

// DefaultDeck is the Fibonacci-like deck used by every room.
var DefaultDeck = []Card{"1", "2", "3", "5", "8", "13", "21", "34", "55", "89", "?", "☕"}

// CardOf converts an int, float or string into a Card.
func CardOf(v any) Card {
	switch t := v.(type) {
	case Card:
		return t
	case string:
		return Card(t)
	case int:
		return Card(strconv.Itoa(t))
	case int64:
		return Card(strconv.FormatInt(t, 10))
	case float64:
		return Card(strconv.FormatFloat(t, 'f', -1, 64))
	default:
		return Card(fmt.Sprint(v))
	}
}

// Number returns the numeric value of the card.
func (c Card) Number() (float64, bool) {
	f, err := strconv.ParseFloat(string(c), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func (c Card) String() string { return string(c) }

func (c Card) MarshalJSON() ([]byte, error) {
	if _, ok := c.Number(); ok {
		return []byte(c), nil
	}
	return json.Marshal(string(c))
}

func (c *Card) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*c = Card(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("card must be a number or a string: %w", err)
	}
	*c = Card(n.String())
	return nil
}

// InDeck reports whether c is one of the cards in deck.
func InDeck(deck []Card, c Card) bool {
	for _, d := range deck {
		if d == c {
			return true
		}
	}
	return false
}
