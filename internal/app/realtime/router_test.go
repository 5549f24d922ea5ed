package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRouter_DispatchIsCaseInsensitive(t *testing.T) {
	r := NewRouter()

	var got []string
	r.On("VotesRevealed", func(target string, payload json.RawMessage) {
		got = append(got, target+":"+string(payload))
	})

	f, err := NewInvocation("votesrevealed", map[string]string{"storyId": "s1"})
	require.NoError(t, err)

	assert.True(t, r.Dispatch(f))
	assert.Equal(t, []string{`votesrevealed:{"storyId":"s1"}`}, got)
}

func TestRouter_OnAnySharesHandler(t *testing.T) {
	r := NewRouter()

	calls := 0
	r.OnAny([]string{"UserJoined", "UserLeft"}, func(string, json.RawMessage) { calls++ })

	joined, _ := NewInvocation("UserJoined")
	left, _ := NewInvocation("userLeft")
	r.Dispatch(joined)
	r.Dispatch(left)

	assert.Equal(t, 2, calls)
}

func TestRouter_IgnoresUnknownAndNonInvocations(t *testing.T) {
	r := NewRouter()

	called := false
	r.On("VotingReset", func(_ string, payload json.RawMessage) {
		called = true
		assert.Nil(t, payload)
	})

	assert.False(t, r.Dispatch(Frame{Type: FrameInvocation, Target: "Unknown"}))
	assert.False(t, r.Dispatch(Frame{Type: FramePing, Target: "VotingReset"}))
	assert.False(t, called)

	assert.True(t, r.Dispatch(Frame{Type: FrameInvocation, Target: "VotingReset"}))
	assert.True(t, called)
}

func TestFrame_Arg(t *testing.T) {
	f, err := NewInvocation(MethodJoinRoom, "ABC234", "room-1", "user-1")
	require.NoError(t, err)

	var code string
	require.NoError(t, f.Arg(0, &code))
	assert.Equal(t, "ABC234", code)
	assert.Error(t, f.Arg(3, &code))
}
