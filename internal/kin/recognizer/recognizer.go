// Package recognizer defines the contract kin expects from a speech
// recognition service, plus adapters that satisfy it.
//
// A Service opens at most one Session per caller. Once open, the session
// delivers Events to the registered Listener on its own goroutine. A session
// stops delivering after a final result or an error until Listen is called
// again, which is how real platform recognizers behave.
package recognizer

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrBusy is returned by Open while another session from the same service is live.
	ErrBusy = errors.New("recognizer: busy")
	// ErrClosed is returned by Listen on a closed session and by Open once the input is exhausted.
	ErrClosed = errors.New("recognizer: session closed")
)

// LanguageModel selects the recognizer's language model.
type LanguageModel string

const (
	LanguageModelFreeForm  LanguageModel = "free_form"
	LanguageModelWebSearch LanguageModel = "web_search"
)

// Config is the per-request recognizer configuration.
type Config struct {
	LanguageModel  LanguageModel
	PartialResults bool
}

// ListeningConfig is used for passive wake-phrase listening.
func ListeningConfig() Config {
	return Config{LanguageModel: LanguageModelFreeForm, PartialResults: true}
}

// CommandConfig is used for command capture after a wake phrase.
func CommandConfig() Config {
	return Config{LanguageModel: LanguageModelFreeForm}
}

// EventKind enumerates what a session can report.
type EventKind int

const (
	EventReady EventKind = iota + 1
	EventPartial
	EventFinal
	EventError
)

func (k EventKind) String() string {
	switch k {
	case EventReady:
		return "ready"
	case EventPartial:
		return "partial"
	case EventFinal:
		return "final"
	case EventError:
		return "error"
	default:
		return fmt.Sprintf("EventKind(%d)", int(k))
	}
}

// Event is one asynchronous notification from a session. Session is the id
// of the emitting session; receivers use it to discard events from a session
// they already closed.
type Event struct {
	Kind    EventKind
	Text    string
	Code    ErrorCode
	Session string
	At      time.Time
}

// Ready reports that the recognizer is ready for speech.
func Ready() Event { return Event{Kind: EventReady, At: time.Now()} }

// Partial carries an interim transcript.
func Partial(text string) Event { return Event{Kind: EventPartial, Text: text, At: time.Now()} }

// Final carries the transcript that ends a recognition request.
func Final(text string) Event { return Event{Kind: EventFinal, Text: text, At: time.Now()} }

// Failure carries a recognizer error code.
func Failure(code ErrorCode) Event { return Event{Kind: EventError, Code: code, At: time.Now()} }

// FromMatches builds a transcript event from an n-best list, keeping the top
// hypothesis. It returns false for an empty list, which carries nothing to
// report.
func FromMatches(matches []string, final bool) (Event, bool) {
	if len(matches) == 0 {
		return Event{}, false
	}
	if final {
		return Final(matches[0]), true
	}
	return Partial(matches[0]), true
}

// Listener receives session events.
type Listener interface {
	Deliver(ev Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(ev Event)

// Deliver calls f(ev).
func (f ListenerFunc) Deliver(ev Event) { f(ev) }

// Service is a speech recognition capability.
type Service interface {
	// Available reports whether recognition is supported on this host.
	Available(ctx context.Context) bool

	// Open creates a session, registers l and starts a first recognition
	// request with cfg.
	Open(ctx context.Context, cfg Config, l Listener) (Session, error)
}

// Session is one open recognizer handle.
type Session interface {
	ID() string

	// Listen issues a new recognition request on this session, replacing any
	// request still in progress.
	Listen(ctx context.Context, cfg Config) error

	// Close releases the session. Further events are not delivered.
	Close() error
}
