/*
Package realtime owns the push channel to the planning poker hub.

Manager is the connection lifecycle state machine; Router is the subscription
layer mapping inbound event names to handlers. They are composed by the caller:
the Manager hands every inbound frame to its Router and knows nothing about
the events themselves.
*/
package realtime

import (
	"encoding/json"
	"fmt"
)

// FrameType is the kind of a hub frame.
type FrameType int

const (
	FrameInvocation FrameType = 1
	FramePing       FrameType = 6
	FrameClose      FrameType = 7
)

// Frame is one JSON message on the hub connection.
type Frame struct {
	Type      FrameType         `json:"type"`
	Target    string            `json:"target,omitempty"`
	Arguments []json.RawMessage `json:"arguments,omitempty"`
	Error     string            `json:"error,omitempty"`
}

// NewInvocation encodes args into an invocation frame for target.
func NewInvocation(target string, args ...any) (Frame, error) {
	f := Frame{Type: FrameInvocation, Target: target, Arguments: make([]json.RawMessage, 0, len(args))}

	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return Frame{}, fmt.Errorf("failed to encode argument %d of %s: %w", i, target, err)
		}
		f.Arguments = append(f.Arguments, raw)
	}

	return f, nil
}

// Arg decodes the i-th argument into v. A missing argument is an error.
func (f Frame) Arg(i int, v any) error {
	if i >= len(f.Arguments) {
		return fmt.Errorf("%s: missing argument %d", f.Target, i)
	}
	return json.Unmarshal(f.Arguments[i], v)
}
