package session

import (
	"encoding/json"
	"fmt"
)

// Mode is the listening state. Exactly one holds at a time.
type Mode int

const (
	// Idle: no session is open.
	Idle Mode = iota
	// Listening: passive listening for the wake phrase.
	Listening
	// AwaitingCommand: the wake phrase was heard; the next final transcript is a command.
	AwaitingCommand
	// Stopped: shut down on request. Start may reopen.
	Stopped
)

func (m Mode) String() string {
	switch m {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case AwaitingCommand:
		return "awaiting_command"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// MarshalJSON renders the mode by name for the status endpoint.
func (m Mode) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}
