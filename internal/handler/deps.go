package handler

import (
	"github.com/jonboulle/clockwork"

	"planpoker/internal/app/backend"
	"planpoker/internal/app/hub"
	"planpoker/internal/configs"
)

// AppDeps carries everything the handlers need.
type AppDeps struct {
	Backend *backend.Store
	Hub     *hub.Manager
	Config  *configs.AppConfig

	// Clock drives the rate limiters. Nil means the real clock.
	Clock clockwork.Clock
}
