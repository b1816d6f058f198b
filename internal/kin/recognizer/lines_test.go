package recognizer_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/bdobrica/kin/internal/kin/recognizer"
)

type collector struct {
	mu     sync.Mutex
	events []recognizer.Event
	notify chan struct{}
}

func newCollector() *collector {
	return &collector{notify: make(chan struct{}, 64)}
}

func (c *collector) Deliver(ev recognizer.Event) {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	c.notify <- struct{}{}
}

func (c *collector) waitFor(t *testing.T, n int) []recognizer.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		c.mu.Lock()
		if len(c.events) >= n {
			out := append([]recognizer.Event(nil), c.events...)
			c.mu.Unlock()
			return out
		}
		c.mu.Unlock()
		select {
		case <-c.notify:
		case <-deadline:
			t.Fatalf("timed out waiting for %d events", n)
		}
	}
}

func (c *collector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.events)
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line     string
		wantOK   bool
		wantErr  bool
		wantKind recognizer.EventKind
		wantText string
		wantCode recognizer.ErrorCode
	}{
		{line: "ready", wantOK: true, wantKind: recognizer.EventReady},
		{line: "READY:", wantOK: true, wantKind: recognizer.EventReady},
		{line: "partial: hey ki", wantOK: true, wantKind: recognizer.EventPartial, wantText: "hey ki"},
		{line: "final: hey kin turn on the light", wantOK: true, wantKind: recognizer.EventFinal, wantText: "hey kin turn on the light"},
		{line: "Final:  spaced  ", wantOK: true, wantKind: recognizer.EventFinal, wantText: "spaced"},
		{line: "error: 7", wantOK: true, wantKind: recognizer.EventError, wantCode: recognizer.ErrorNoMatch},
		{line: "just words", wantOK: true, wantKind: recognizer.EventFinal, wantText: "just words"},
		{line: "note: remember this", wantOK: true, wantKind: recognizer.EventFinal, wantText: "note: remember this"},
		{line: "partial:", wantOK: false},
		{line: "", wantOK: false},
		{line: "# comment", wantOK: false},
		{line: "error: boom", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			ev, ok, err := recognizer.ParseLine(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if !ok {
				return
			}
			if ev.Kind != tt.wantKind || ev.Text != tt.wantText || ev.Code != tt.wantCode {
				t.Errorf("got %v %q %d, want %v %q %d", ev.Kind, ev.Text, ev.Code, tt.wantKind, tt.wantText, tt.wantCode)
			}
		})
	}
}

func TestLineService_StopsAfterFinalUntilListen(t *testing.T) {
	defer goleak.VerifyNone(t)

	input := strings.Join([]string{
		"ready",
		"partial: hey ki",
		"final: hey kin",
		"final: turn on the light",
	}, "\n")
	svc := recognizer.NewLineService(strings.NewReader(input), nil)
	defer svc.Close()
	c := newCollector()
	ctx := context.Background()

	sess, err := svc.Open(ctx, recognizer.ListeningConfig(), c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	events := c.waitFor(t, 3)
	if events[2].Kind != recognizer.EventFinal || events[2].Text != "hey kin" {
		t.Fatalf("unexpected third event %+v", events[2])
	}
	if events[0].Session != sess.ID() {
		t.Fatalf("event not tagged with session id: %q", events[0].Session)
	}

	time.Sleep(30 * time.Millisecond)
	if n := c.count(); n != 3 {
		t.Fatalf("session delivered %d events before Listen, want 3", n)
	}

	if err := sess.Listen(ctx, recognizer.CommandConfig()); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	events = c.waitFor(t, 4)
	if events[3].Text != "turn on the light" {
		t.Fatalf("unexpected fourth event %+v", events[3])
	}

	select {
	case <-svc.Exhausted():
	case <-time.After(2 * time.Second):
		t.Fatal("service not exhausted after EOF")
	}
	if err := sess.Listen(ctx, recognizer.ListeningConfig()); err != nil {
		t.Fatalf("Listen after EOF: %v", err)
	}
	sess.Close()
	if _, err := svc.Open(ctx, recognizer.ListeningConfig(), c); !errors.Is(err, recognizer.ErrClosed) {
		t.Fatalf("expected ErrClosed opening after EOF, got %v", err)
	}
}

func TestLineService_CommandConfigDropsPartials(t *testing.T) {
	defer goleak.VerifyNone(t)

	input := "partial: ignored\nfinal: kept\n"
	svc := recognizer.NewLineService(strings.NewReader(input), nil)
	defer svc.Close()
	c := newCollector()

	sess, err := svc.Open(context.Background(), recognizer.CommandConfig(), c)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer sess.Close()

	events := c.waitFor(t, 1)
	if events[0].Kind != recognizer.EventFinal || events[0].Text != "kept" {
		t.Fatalf("expected only the final transcript, got %+v", events)
	}
}

func TestLineService_SingleLiveSession(t *testing.T) {
	defer goleak.VerifyNone(t)

	// A pipe that never yields keeps the service from reaching EOF.
	pr, pw := io.Pipe()
	defer pw.Close()
	svc := recognizer.NewLineService(pr, nil)
	defer svc.Close()
	ctx := context.Background()

	first, err := svc.Open(ctx, recognizer.ListeningConfig(), newCollector())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := svc.Open(ctx, recognizer.ListeningConfig(), newCollector()); !errors.Is(err, recognizer.ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	first.Close()
	second, err := svc.Open(ctx, recognizer.ListeningConfig(), newCollector())
	if err != nil {
		t.Fatalf("reopen after close: %v", err)
	}
	second.Close()

	if err := first.Listen(ctx, recognizer.ListeningConfig()); !errors.Is(err, recognizer.ErrClosed) {
		t.Fatalf("expected ErrClosed on closed session, got %v", err)
	}
}

func TestErrorCode_String(t *testing.T) {
	if got := recognizer.ErrorNoMatch.String(); got != "no match" {
		t.Errorf("ErrorNoMatch.String() = %q", got)
	}
	if got := recognizer.ErrorCode(42).String(); got != "code 42" {
		t.Errorf("unknown code String() = %q", got)
	}
	if recognizer.ErrorAudio.Transient() {
		t.Error("audio errors are not transient")
	}
	if !recognizer.ErrorSpeechTimeout.Transient() {
		t.Error("speech timeout is transient")
	}
}

func TestFromMatches(t *testing.T) {
	if _, ok := recognizer.FromMatches(nil, true); ok {
		t.Fatal("empty match list must not produce an event")
	}
	ev, ok := recognizer.FromMatches([]string{"hey kin", "hay kin"}, false)
	if !ok || ev.Kind != recognizer.EventPartial || ev.Text != "hey kin" {
		t.Fatalf("unexpected event %+v", ev)
	}
}
