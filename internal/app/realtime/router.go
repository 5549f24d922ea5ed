package realtime

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"planpoker/internal/pkg/logx"
)

// Handler receives the arguments of one event. The first argument is the
// payload for every event the hub sends; it is nil when the event has none.
type Handler func(target string, payload json.RawMessage)

// Router maps event names, case-insensitively, to handlers.
type Router struct {
	mu       sync.RWMutex
	handlers map[string][]Handler
	log      zerolog.Logger
}

func NewRouter() *Router {
	return &Router{
		handlers: make(map[string][]Handler),
		log:      logx.Component("realtime.router"),
	}
}

// On registers h for target.
func (r *Router) On(target string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := strings.ToLower(target)
	r.handlers[key] = append(r.handlers[key], h)
}

// OnAny registers h for every name in targets.
func (r *Router) OnAny(targets []string, h Handler) {
	for _, t := range targets {
		r.On(t, h)
	}
}

// Dispatch delivers an invocation frame to its handlers and reports whether any matched.
func (r *Router) Dispatch(f Frame) bool {
	if f.Type != FrameInvocation {
		return false
	}

	r.mu.RLock()
	hs := r.handlers[strings.ToLower(f.Target)]
	r.mu.RUnlock()

	if len(hs) == 0 {
		r.log.Debug().Str("target", f.Target).Msg("No handler for event")
		return false
	}

	var payload json.RawMessage
	if len(f.Arguments) > 0 {
		payload = f.Arguments[0]
	}

	for _, h := range hs {
		h(f.Target, payload)
	}
	return true
}
