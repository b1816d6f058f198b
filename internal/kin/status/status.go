// Package status carries human-readable status lines from the listening
// session and the memory log to whoever is watching: a terminal, the process
// log, a Matrix room, or the health endpoint.
//
// Sinks are best-effort. Append never blocks on a slow consumer and never
// returns an error; a sink that cannot deliver logs and moves on.
package status

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
)

// Sink is an append-only, concurrency-safe destination for status lines.
type Sink interface {
	Append(line string)
}

// Func adapts a plain function to Sink.
type Func func(line string)

// Append calls f(line).
func (f Func) Append(line string) { f(line) }

// Discard drops every line.
var Discard Sink = Func(func(string) {})

// Multi fans every line out to each sink in order.
type Multi []Sink

// Append forwards line to every non-nil sink.
func (m Multi) Append(line string) {
	for _, s := range m {
		if s != nil {
			s.Append(line)
		}
	}
}

// Console writes one line per status to w and mirrors it to the logger at
// debug level.
type Console struct {
	mu     sync.Mutex
	w      io.Writer
	logger *slog.Logger
}

// NewConsole creates a Console. If logger is nil, the default slog logger is used.
func NewConsole(w io.Writer, logger *slog.Logger) *Console {
	if logger == nil {
		logger = slog.Default()
	}
	return &Console{w: w, logger: logger}
}

// Append writes line followed by a newline.
func (c *Console) Append(line string) {
	c.mu.Lock()
	_, err := fmt.Fprintln(c.w, line)
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("status: console write failed", "err", err)
	}
	c.logger.Debug("status", "line", line)
}

// Compile-time interface satisfaction checks.
var (
	_ Sink = Func(nil)
	_ Sink = Multi(nil)
	_ Sink = (*Console)(nil)
)
