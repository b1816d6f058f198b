// Package session keeps a speech recognition session open indefinitely,
// watches its transcripts for the wake phrase and hands off to command
// capture when it hears it.
//
// All state lives on the Manager's event loop (Run). Recognizer callbacks,
// Start, Stop and the deferred restart timer only post messages to that loop,
// so no two transitions ever interleave.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/kin/common/schedule"
	"github.com/bdobrica/kin/internal/kin/classify"
	"github.com/bdobrica/kin/internal/kin/recognizer"
	"github.com/bdobrica/kin/internal/kin/status"
)

const (
	// DefaultWakePhrase is the phrase kin listens for.
	DefaultWakePhrase = "hey kin"
	// DefaultRestartDelay spaces a restart from the event that caused it,
	// so an error that recurs immediately cannot spin the host.
	DefaultRestartDelay = 300 * time.Millisecond
	// DefaultQueueSize bounds the event loop inbox.
	DefaultQueueSize = 64
)

var (
	// ErrUnavailable is returned by Start when the host has no recognizer.
	ErrUnavailable = errors.New("session: speech recognition not available")
	// ErrAlreadyStarted is returned by Start outside the Idle and Stopped modes.
	ErrAlreadyStarted = errors.New("session: already started")
	// ErrNotRunning is returned when the event loop has exited.
	ErrNotRunning = errors.New("session: event loop not running")
)

// RecognitionError is a recognizer failure reported through an error event.
type RecognitionError struct {
	Code recognizer.ErrorCode
}

func (e *RecognitionError) Error() string {
	return fmt.Sprintf("speech recognizer error %d (%s)", int(e.Code), e.Code)
}

// CommandHandler receives the final transcript captured after a wake phrase.
// It runs on the event loop and should return quickly.
type CommandHandler func(ctx context.Context, command string)

// Config configures a Manager.
type Config struct {
	// Service is required.
	Service recognizer.Service
	// Status receives human-readable status lines. Defaults to status.Discard.
	Status status.Sink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// WakePhrase defaults to DefaultWakePhrase.
	WakePhrase string
	// RestartDelay defaults to DefaultRestartDelay.
	RestartDelay time.Duration
	// QueueSize defaults to DefaultQueueSize.
	QueueSize int
	// OnCommand is optional. Transcripts are not persisted unless it does so.
	OnCommand CommandHandler
}

// Snapshot is a point-in-time view of a Manager.
type Snapshot struct {
	Mode            Mode   `json:"mode"`
	WakePhrase      string `json:"wake_phrase"`
	SessionID       string `json:"session_id,omitempty"`
	RestartPending  bool   `json:"restart_pending"`
	Events          int    `json:"events"`
	Wakes           int    `json:"wakes"`
	Commands        int    `json:"commands"`
	Errors          int    `json:"errors"`
	Restarts        int    `json:"restarts"`
	RestartFailures int    `json:"restart_failures"`
	LastError       string `json:"last_error,omitempty"`
}

// Manager owns one recognizer session and its listening state machine.
type Manager struct {
	svc          recognizer.Service
	status       status.Sink
	logger       *slog.Logger
	restartDelay time.Duration
	onCommand    CommandHandler

	inbox   chan any
	done    chan struct{}
	runOnce sync.Once

	// Owned by the event loop.
	mode           Mode
	wakePhrase     string
	session        recognizer.Session
	restartPending bool
	restartTask    *schedule.Task
	restartGen     uint64
	commandTrace   string
	stats          Snapshot

	snapMu sync.RWMutex
	snap   Snapshot
}

type (
	startMsg struct{ reply chan error }
	stopMsg  struct{ reply chan struct{} }
	eventMsg struct{ ev recognizer.Event }
	wakeMsg  struct {
		phrase string
		reply  chan error
	}
	restartMsg struct{ gen uint64 }
	syncMsg    struct{ reply chan struct{} }
)

// New creates a Manager in Idle mode. Call Run to start its event loop.
func New(cfg Config) (*Manager, error) {
	if cfg.Service == nil {
		return nil, fmt.Errorf("session: recognition service is nil")
	}
	if cfg.Status == nil {
		cfg.Status = status.Discard
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.WakePhrase == "" {
		cfg.WakePhrase = DefaultWakePhrase
	}
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = DefaultRestartDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	m := &Manager{
		svc:          cfg.Service,
		status:       cfg.Status,
		logger:       cfg.Logger,
		restartDelay: cfg.RestartDelay,
		onCommand:    cfg.OnCommand,
		inbox:        make(chan any, cfg.QueueSize),
		done:         make(chan struct{}),
		mode:         Idle,
		wakePhrase:   classify.Normalize(strings.TrimSpace(cfg.WakePhrase)),
	}
	m.publish()
	return m, nil
}

// Run processes messages until ctx is cancelled, then stops the session and
// returns nil. A Manager runs at most once; later calls return ErrNotRunning.
func (m *Manager) Run(ctx context.Context) error {
	first := false
	m.runOnce.Do(func() { first = true })
	if !first {
		return ErrNotRunning
	}
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			m.stop(ctx)
			m.publish()
			return nil
		case msg := <-m.inbox:
			m.handle(ctx, msg)
			m.publish()
		}
	}
}

// Done is closed when Run has returned.
func (m *Manager) Done() <-chan struct{} { return m.done }

// Start opens the recognizer session and begins listening for the wake
// phrase. It is valid only in Idle or Stopped mode. An unavailable recognizer
// is reported and returns ErrUnavailable with the manager left Idle.
func (m *Manager) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := m.post(ctx, startMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop cancels any pending restart, closes the session and moves to Stopped.
// Calling it again, or after Run has returned, is a no-op.
func (m *Manager) Stop() {
	reply := make(chan struct{})
	if err := m.post(context.Background(), stopMsg{reply: reply}); err != nil {
		return
	}
	select {
	case <-reply:
	case <-m.done:
	}
}

// Deliver hands a recognizer event to the loop. Events are processed in
// arrival order and none are coalesced. It implements recognizer.Listener.
func (m *Manager) Deliver(ev recognizer.Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}
	if err := m.post(context.Background(), eventMsg{ev: ev}); err != nil {
		m.logger.Debug("session: event after shutdown", "kind", ev.Kind)
	}
}

// SetWakePhrase replaces the wake phrase for subsequent transcripts.
func (m *Manager) SetWakePhrase(ctx context.Context, phrase string) error {
	reply := make(chan error, 1)
	if err := m.post(ctx, wakeMsg{phrase: phrase, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-m.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Mode returns the current mode as of the last processed message.
func (m *Manager) Mode() Mode {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap.Mode
}

// Snapshot returns the state and counters as of the last processed message.
func (m *Manager) Snapshot() Snapshot {
	m.snapMu.RLock()
	defer m.snapMu.RUnlock()
	return m.snap
}

// sync waits until every message posted before it has been handled.
func (m *Manager) sync(ctx context.Context) error {
	reply := make(chan struct{})
	if err := m.post(ctx, syncMsg{reply: reply}); err != nil {
		return err
	}
	select {
	case <-reply:
		return nil
	case <-m.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) post(ctx context.Context, msg any) error {
	select {
	case <-m.done:
		return ErrNotRunning
	default:
	}
	select {
	case m.inbox <- msg:
		return nil
	case <-m.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) publish() {
	snap := m.stats
	snap.Mode = m.mode
	snap.WakePhrase = m.wakePhrase
	snap.RestartPending = m.restartPending
	snap.SessionID = ""
	if m.session != nil {
		snap.SessionID = m.session.ID()
	}

	m.snapMu.Lock()
	m.snap = snap
	m.snapMu.Unlock()
}

func (m *Manager) report(line string) {
	m.status.Append(line)
}

func (m *Manager) setMode(next Mode) {
	if m.mode == next {
		return
	}
	m.logger.Debug("session: mode change", "from", m.mode, "to", next)
	m.mode = next
}

func (m *Manager) handle(ctx context.Context, msg any) {
	switch msg := msg.(type) {
	case startMsg:
		msg.reply <- m.start(ctx)
	case stopMsg:
		m.stop(ctx)
		close(msg.reply)
	case eventMsg:
		m.handleEvent(ctx, msg.ev)
	case restartMsg:
		m.handleRestart(ctx, msg.gen)
	case wakeMsg:
		msg.reply <- m.setWakePhrase(msg.phrase)
	case syncMsg:
		close(msg.reply)
	default:
		m.logger.Error("session: unknown message", "type", fmt.Sprintf("%T", msg))
	}
}
