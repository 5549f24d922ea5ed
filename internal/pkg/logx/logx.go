/*
Package logx wraps zerolog for the planning poker client and the reference backend.

The server logs JSON in production and console lines in development. The interactive
client sends console lines to its own writer so they never mix with the prompt. Both
use the same key/value helpers and per-component child loggers.
*/
package logx

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitGlobalLogger configures the process logger for the server.
// Development logs at debug level to stderr in console format; production logs
// JSON at info level to stdout. Both carry the caller.
func InitGlobalLogger(isDevelopment bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	var (
		out   io.Writer = os.Stdout
		level           = zerolog.InfoLevel
	)
	if isDevelopment {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(out).Level(level).With().Timestamp().Caller().Logger()
}

// InitWriterLogger points the global logger at w in console format.
func InitWriterLogger(w io.Writer, level zerolog.Level) {
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}).
		Level(level).
		With().Timestamp().Logger()
}

// Logger returns the global logger.
func Logger() *zerolog.Logger {
	return &log.Logger
}

// Component returns a child logger tagged with the given component name.
func Component(name string) zerolog.Logger {
	return Logger().With().Str("component", name).Logger()
}

// Debug logs msg with key/value fields.
func Debug(msg string, fields ...any) {
	write(Logger().Debug(), nil, msg, fields)
}

// Info logs msg with key/value fields.
func Info(msg string, fields ...any) {
	write(Logger().Info(), nil, msg, fields)
}

// Warn logs msg with key/value fields.
func Warn(msg string, fields ...any) {
	write(Logger().Warn(), nil, msg, fields)
}

// Error logs msg and err with key/value fields.
func Error(err error, msg string, fields ...any) {
	write(Logger().Error(), err, msg, fields)
}

// Fatal logs msg and err, then exits the process with status 1.
func Fatal(err error, msg string, fields ...any) {
	write(Logger().Fatal(), err, msg, fields)
}

// write finishes ev. An odd field list would make zerolog panic, so it is
// dropped and reported instead.
func write(ev *zerolog.Event, err error, msg string, fields []any) {
	if ev == nil {
		return
	}
	if len(fields)%2 != 0 {
		Logger().Warn().
			Int("fields_count", len(fields)).
			CallerSkipFrame(2).
			Msgf("logx: odd number of fields for %q, fields ignored", msg)
		fields = nil
	}
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Fields(fields).CallerSkipFrame(2).Msg(msg)
}
