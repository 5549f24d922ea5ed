package logx

import (
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// maskAddr keeps the network part of a client address: /24 for IPv4, /64 for IPv6.
func maskAddr(remote string) string {
	addr, err := netip.ParseAddrPort(remote)
	ip := addr.Addr()
	if err != nil {
		if ip, err = netip.ParseAddr(remote); err != nil {
			return "unknown"
		}
	}
	ip = ip.Unmap()

	bits := 64
	if ip.Is4() {
		bits = 24
	}
	prefix, err := ip.Prefix(bits)
	if err != nil {
		return "unknown"
	}
	return prefix.Masked().Addr().String()
}

// RequestLogger logs one line per finished request, with the level picked from
// the status. Handlers reach the request-scoped logger through zerolog.Ctx.
func RequestLogger(clock clockwork.Clock) func(next http.Handler) http.Handler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			logger := Component("http").With().
				Str("request_id", middleware.GetReqID(r.Context())).
				Str("client", maskAddr(r.RemoteAddr)).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Logger()

			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := clock.Now()
			next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

			ev := eventFor(&logger, ww.Status())
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if room := rctx.URLParam("room"); room != "" {
					ev = ev.Str("room", room)
				}
			}
			ev.Int("status", ww.Status()).
				Int("bytes", ww.BytesWritten()).
				Dur("took", clock.Since(start).Round(time.Microsecond)).
				Msg("Request completed")
		})
	}
}

func eventFor(logger *zerolog.Logger, status int) *zerolog.Event {
	switch {
	case status >= http.StatusInternalServerError:
		return logger.Error()
	case status == http.StatusTooManyRequests:
		return logger.Info()
	case status >= http.StatusBadRequest:
		return logger.Warn()
	default:
		return logger.Debug()
	}
}
