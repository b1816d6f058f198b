package recognizer

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// LineService is a Service fed by a text stream, one event per line:
//
//	ready
//	partial: hey ki
//	final: hey kin turn on the light
//	error: 7
//
// A line without a recognised prefix is a final transcript. Blank lines and
// lines starting with '#' are skipped. It lets an external recognizer (or a
// person at a terminal) drive kin through stdin or a named pipe.
//
// Lines are consumed only while a session is listening, so input that arrives
// between a final result and the next Listen waits in the stream.
type LineService struct {
	logger *slog.Logger

	startOnce sync.Once
	src       io.Reader
	lines     chan pendingLine
	quit      chan struct{}
	quitOnce  sync.Once
	exhausted chan struct{}

	mu   sync.Mutex
	live *lineSession
}

// NewLineService creates a LineService reading from r. Reading starts with
// the first Open.
func NewLineService(r io.Reader, logger *slog.Logger) *LineService {
	if logger == nil {
		logger = slog.Default()
	}
	return &LineService{
		logger:    logger,
		src:       r,
		lines:     make(chan pendingLine),
		quit:      make(chan struct{}),
		exhausted: make(chan struct{}),
	}
}

// Available always reports true.
func (s *LineService) Available(context.Context) bool { return true }

// Exhausted is closed once the input stream reaches EOF or fails, and after
// the event for the last line has been delivered.
func (s *LineService) Exhausted() <-chan struct{} { return s.exhausted }

// Close stops the background reader. Blocking reads on the source (stdin)
// are abandoned, not interrupted.
func (s *LineService) Close() error {
	s.quitOnce.Do(func() { close(s.quit) })
	return nil
}

// Open starts a session that first listens with cfg.
func (s *LineService) Open(_ context.Context, cfg Config, l Listener) (Session, error) {
	if l == nil {
		return nil, fmt.Errorf("recognizer: open: nil listener")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live != nil {
		return nil, fmt.Errorf("recognizer: open: %w", ErrBusy)
	}
	select {
	case <-s.exhausted:
		return nil, fmt.Errorf("recognizer: open: input exhausted: %w", ErrClosed)
	default:
	}

	s.startOnce.Do(func() { go s.read() })

	sess := &lineSession{
		id:       uuid.NewString(),
		svc:      s,
		listener: l,
		armed:    true,
		cfg:      cfg,
		wake:     make(chan struct{}, 1),
		closing:  make(chan struct{}),
	}
	s.live = sess
	go sess.run()

	s.logger.Debug("recognizer: line session opened", "session", sess.id)
	return sess, nil
}

func (s *LineService) release(sess *lineSession) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == sess {
		s.live = nil
	}
}

// pendingLine is handed to the live session; handled is closed once the
// session is done with it.
type pendingLine struct {
	text    string
	handled chan struct{}
}

// read pumps lines from the source into s.lines until EOF or quit. Each line
// is handled before the next is read.
func (s *LineService) read() {
	defer close(s.exhausted)
	defer close(s.lines)

	scanner := bufio.NewScanner(s.src)
	for scanner.Scan() {
		item := pendingLine{text: scanner.Text(), handled: make(chan struct{})}
		select {
		case s.lines <- item:
		case <-s.quit:
			return
		}
		select {
		case <-item.handled:
		case <-s.quit:
			return
		}
	}
	if err := scanner.Err(); err != nil {
		s.logger.Warn("recognizer: line input failed", "err", err)
	}
}

// ParseLine converts one input line into an event.
func ParseLine(line string) (Event, bool, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return Event{}, false, nil
	}

	kind, rest, found := strings.Cut(line, ":")
	if !found {
		if strings.EqualFold(line, "ready") {
			return Ready(), true, nil
		}
		return Final(line), true, nil
	}
	rest = strings.TrimSpace(rest)

	kind = strings.ToLower(strings.TrimSpace(kind))
	switch kind {
	case "ready":
		return Ready(), true, nil
	case "partial", "final":
		ev, ok := FromMatches(nonEmpty(rest), kind == "final")
		return ev, ok, nil
	case "error":
		code, err := strconv.Atoi(rest)
		if err != nil {
			return Event{}, false, fmt.Errorf("recognizer: bad error code %q: %w", rest, err)
		}
		return Failure(ErrorCode(code)), true, nil
	default:
		return Final(line), true, nil
	}
}

func nonEmpty(s string) []string {
	if s == "" {
		return nil
	}
	return []string{s}
}

type lineSession struct {
	id       string
	svc      *LineService
	listener Listener

	mu     sync.Mutex
	armed  bool
	cfg    Config
	closed bool

	wake      chan struct{}
	closing   chan struct{}
	closeOnce sync.Once
}

func (s *lineSession) ID() string { return s.id }

func (s *lineSession) Listen(_ context.Context, cfg Config) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("recognizer: listen: %w", ErrClosed)
	}
	s.armed = true
	s.cfg = cfg
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

// Close stops delivery without waiting for the reader goroutine, which may be
// blocked handing an event to the listener.
func (s *lineSession) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		close(s.closing)
		s.svc.release(s)
	})
	return nil
}

// waitArmed blocks until a request is active. It reports false once the
// session is closing.
func (s *lineSession) waitArmed() bool {
	for {
		s.mu.Lock()
		armed := s.armed
		s.mu.Unlock()
		if armed {
			return true
		}
		select {
		case <-s.closing:
			return false
		case <-s.wake:
		}
	}
}

func (s *lineSession) run() {
	for {
		if !s.waitArmed() {
			return
		}

		var item pendingLine
		select {
		case <-s.closing:
			return
		case l, ok := <-s.svc.lines:
			if !ok {
				return
			}
			item = l
		}

		open := s.handle(item.text)
		close(item.handled)
		if !open {
			return
		}
	}
}

// handle delivers the event for one line. It reports false once the session
// is closed.
func (s *lineSession) handle(line string) bool {
	ev, ok, err := ParseLine(line)
	if err != nil {
		s.svc.logger.Warn("recognizer: skipping malformed line", "line", line, "err", err)
		return true
	}
	if !ok {
		return true
	}

	s.mu.Lock()
	if ev.Kind == EventPartial && !s.cfg.PartialResults {
		s.mu.Unlock()
		return true
	}
	if ev.Kind == EventFinal || ev.Kind == EventError {
		s.armed = false
	}
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false
	}

	ev.Session = s.id
	s.listener.Deliver(ev)
	return true
}

var (
	_ Service = (*LineService)(nil)
	_ Session = (*lineSession)(nil)
)
