package session

import (
	"context"
	"fmt"
	"strings"

	"github.com/bdobrica/kin/common/schedule"
	"github.com/bdobrica/kin/common/trace"
	"github.com/bdobrica/kin/internal/kin/classify"
	"github.com/bdobrica/kin/internal/kin/recognizer"
)

func (m *Manager) start(ctx context.Context) error {
	if m.mode != Idle && m.mode != Stopped {
		m.logger.Debug("session: start ignored", "mode", m.mode)
		return fmt.Errorf("start in mode %s: %w", m.mode, ErrAlreadyStarted)
	}

	if !m.svc.Available(ctx) {
		m.setMode(Idle)
		m.report("speech recognition not available on device")
		m.logger.Warn("session: recognizer unavailable")
		return ErrUnavailable
	}

	// A Stopped manager has already released its handle; this only guards
	// against a service that failed to do so.
	m.closeSession()

	sess, err := m.svc.Open(ctx, recognizer.ListeningConfig(), m)
	if err != nil {
		m.setMode(Idle)
		m.report("failed to start wake listener: " + err.Error())
		m.logger.Error("session: open failed", "err", err)
		return fmt.Errorf("session: open recognizer: %w", err)
	}

	m.session = sess
	m.setMode(Listening)
	m.report(fmt.Sprintf("wake-word listener started (listening for %q)", m.wakePhrase))
	m.logger.Info("session: listening", "session", sess.ID(), "wake_phrase", m.wakePhrase)
	return nil
}

func (m *Manager) stop(context.Context) {
	if m.mode == Stopped {
		return
	}
	m.cancelRestart()
	m.closeSession()
	m.setMode(Stopped)
	m.report("wake-word listener stopped")
	m.logger.Info("session: stopped")
}

func (m *Manager) closeSession() {
	if m.session == nil {
		return
	}
	id := m.session.ID()
	if err := m.session.Close(); err != nil {
		m.report("failed to close recognizer: " + err.Error())
		m.logger.Warn("session: close failed", "session", id, "err", err)
	}
	m.session = nil
}

func (m *Manager) handleEvent(ctx context.Context, ev recognizer.Event) {
	if m.mode == Idle && ev.Kind == recognizer.EventError {
		// No session to restart, but the failure is still reported.
		m.stats.Errors++
		m.report(fmt.Sprintf("speech recognizer error: %d (%s)", int(ev.Code), ev.Code))
		return
	}
	if m.mode != Listening && m.mode != AwaitingCommand {
		m.logger.Debug("session: dropping event outside an active session",
			"mode", m.mode, "kind", ev.Kind)
		return
	}
	if ev.Session != "" && m.session != nil && ev.Session != m.session.ID() {
		m.logger.Debug("session: dropping event from a closed session",
			"event_session", ev.Session, "session", m.session.ID(), "kind", ev.Kind)
		return
	}

	m.stats.Events++

	switch ev.Kind {
	case recognizer.EventReady:
		m.report("wake-listener ready")
	case recognizer.EventPartial:
		m.handleTranscript(ctx, ev.Text, false)
	case recognizer.EventFinal:
		m.handleResult(ctx, ev.Text)
	case recognizer.EventError:
		m.handleError(ev.Code)
	default:
		m.logger.Warn("session: unknown event kind", "kind", ev.Kind)
	}
}

// handleResult processes a final transcript and then always schedules a
// restart: recognizers end their request after a final result.
func (m *Manager) handleResult(ctx context.Context, text string) {
	m.handleTranscript(ctx, text, true)
	m.scheduleRestart()
}

func (m *Manager) handleTranscript(ctx context.Context, text string, final bool) {
	res := classify.Classify(text, m.wakePhrase)
	m.report("[asr] " + res.Normalized)

	switch {
	case res.IsWake && m.mode == Listening:
		m.stats.Wakes++
		m.report("wake phrase detected: " + res.Normalized)
		m.promptForCommand(ctx)
	case final && m.mode == AwaitingCommand:
		m.captureCommand(ctx, strings.TrimSpace(text))
	}
}

// promptForCommand switches the open session to command capture.
func (m *Manager) promptForCommand(ctx context.Context) {
	m.commandTrace = trace.NewID()
	m.setMode(AwaitingCommand)
	m.report("listening for command...")
	m.logger.Info("session: wake phrase detected", "trace_id", m.commandTrace)
	if err := m.session.Listen(ctx, recognizer.CommandConfig()); err != nil {
		m.report("error prompting for command: " + err.Error())
		m.logger.Warn("session: command capture failed", "trace_id", m.commandTrace, "err", err)
		m.setMode(Listening)
	}
}

func (m *Manager) captureCommand(ctx context.Context, command string) {
	if command == "" {
		return
	}
	m.stats.Commands++
	m.report("command: " + command)
	m.logger.Info("session: command captured", "trace_id", m.commandTrace)
	if m.onCommand != nil {
		if m.commandTrace != "" {
			ctx = trace.WithTraceID(ctx, m.commandTrace)
		}
		m.onCommand(ctx, command)
	}
}

func (m *Manager) handleError(code recognizer.ErrorCode) {
	recErr := &RecognitionError{Code: code}
	m.stats.Errors++
	m.stats.LastError = recErr.Error()
	m.report(fmt.Sprintf("speech recognizer error: %d (%s)", int(code), code))
	if code.Transient() {
		m.logger.Info("session: recognizer error", "err", recErr)
	} else {
		m.logger.Warn("session: recognizer error", "err", recErr)
	}
	m.scheduleRestart()
}

// scheduleRestart arms a single deferred restart. While one is pending,
// further requests are absorbed by it.
func (m *Manager) scheduleRestart() {
	if m.restartPending {
		m.logger.Debug("session: restart already pending")
		return
	}
	m.restartPending = true
	m.restartGen++
	gen := m.restartGen
	m.restartTask = schedule.After(m.restartDelay, func() {
		_ = m.post(context.Background(), restartMsg{gen: gen})
	})
	m.logger.Debug("session: restart scheduled", "delay", m.restartDelay, "gen", gen)
}

func (m *Manager) cancelRestart() {
	if m.restartTask != nil {
		m.restartTask.Cancel()
		m.restartTask = nil
	}
	m.restartPending = false
	// Invalidates a restart message that fired but is still queued.
	m.restartGen++
}

// handleRestart re-issues a listening request on the open session. A failed
// restart is reported and not retried; the next error or result event
// schedules another.
func (m *Manager) handleRestart(ctx context.Context, gen uint64) {
	if gen != m.restartGen || !m.restartPending {
		m.logger.Debug("session: discarding stale restart", "gen", gen, "current", m.restartGen)
		return
	}
	m.restartPending = false
	m.restartTask = nil

	if m.mode == Stopped || m.mode == Idle || m.session == nil {
		return
	}

	if err := m.session.Listen(ctx, recognizer.ListeningConfig()); err != nil {
		m.stats.RestartFailures++
		m.report("failed to restart recognizer: " + err.Error())
		m.logger.Warn("session: restart failed", "err", err)
		return
	}
	m.stats.Restarts++
	m.setMode(Listening)
}

func (m *Manager) setWakePhrase(phrase string) error {
	phrase = strings.TrimSpace(phrase)
	if phrase == "" {
		return fmt.Errorf("session: wake phrase must not be empty")
	}
	phrase = classify.Normalize(phrase)
	if phrase == m.wakePhrase {
		return nil
	}
	m.wakePhrase = phrase
	m.report(fmt.Sprintf("wake phrase set to %q", phrase))
	m.logger.Info("session: wake phrase changed", "wake_phrase", phrase)
	return nil
}
