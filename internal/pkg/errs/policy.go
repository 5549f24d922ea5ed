/*
Package errs provides the error type shared by the planning poker client and the
reference backend, the error kind taxonomy, and application-level error codes.

This file implements the notification policy: classification of any error into
user-facing copy, and the side effect of surfacing it through a Notifier.
*/
package errs

import (
	"context"
	"errors"
	"strings"

	"planpoker/internal/pkg/logx"
)

// Classified is the user-facing view of an error.
type Classified struct {
	Message string
	Code    string
	Status  int
	Details []string
}

// Notification is one transient user-visible message.
type Notification struct {
	Level   string
	Message string
	Code    string
}

// Notifier surfaces notifications to the user.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(n Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// LogNotifier writes notifications to the global logger.
type LogNotifier struct{}

func (LogNotifier) Notify(n Notification) {
	logx.Warn("Notification", "level", n.Level, "code", n.Code, "message", n.Message)
}

// Policy classifies errors and notifies about them.
type Policy struct {
	notifier Notifier
}

// NewPolicy returns a Policy. A nil notifier falls back to LogNotifier.
func NewPolicy(n Notifier) *Policy {
	if n == nil {
		n = LogNotifier{}
	}
	return &Policy{notifier: n}
}

// Report classifies err and notifies. It never panics. A nil err is not reported.
func (p *Policy) Report(err error) Classified {
	if err == nil {
		return Classified{}
	}

	c := Classify(err)

	func() {
		defer func() {
			if r := recover(); r != nil {
				logx.Warn("Notifier panicked while reporting an error", "panic", r)
			}
		}()
		p.notifier.Notify(Notification{Level: "error", Message: c.Message, Code: c.Code})
	}()

	return c
}

// Classify maps err to user-facing copy without side effects.
func Classify(err error) Classified {
	if err == nil {
		return Classified{}
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return Classified{Message: cancelledCopy, Code: "CANCELLED", Details: []string{err.Error()}}
	}

	if e, ok := As(err); ok {
		return classifyTyped(e)
	}

	return classifyBySniffing(err)
}

func classifyTyped(e *Error) Classified {
	c := Classified{Code: string(e.Kind), Status: e.Status, Details: e.Details}

	switch e.Kind {
	case KindNetwork:
		c.Message = networkCopy
	case KindParse:
		c.Message = parseCopy
	case KindValidation:
		c.Message = e.Message
	case KindRateLimited:
		c.Message = statusCopy[e.Status]
	case KindServer:
		if msg, ok := statusCopy[e.Status]; ok {
			c.Message = msg
		} else {
			c.Message = serverCopy
		}
	default:
		c.Message = httpMessage(e)
	}

	if c.Message == "" {
		c.Message = unknownCopy
	}
	return c
}

// httpMessage prefers a structured server message over the status copy for 4xx.
func httpMessage(e *Error) string {
	generic := strings.HasPrefix(e.Message, "HTTP error, status=")
	if e.Message != "" && !generic {
		return e.Message
	}
	if msg, ok := statusCopy[e.Status]; ok {
		return msg
	}
	return unknownCopy
}

func classifyBySniffing(err error) Classified {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "network"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "no such host"),
		strings.Contains(msg, "failed to fetch"):
		return Classified{Message: networkCopy, Code: string(KindNetwork), Details: []string{err.Error()}}
	case strings.Contains(msg, "json"):
		return Classified{Message: parseCopy, Code: string(KindParse), Details: []string{err.Error()}}
	default:
		return Classified{Message: unknownCopy, Details: []string{err.Error()}}
	}
}
