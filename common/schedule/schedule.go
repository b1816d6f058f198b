// Package schedule runs deferred work that can be cancelled before it fires.
package schedule

import (
	"sync"
	"time"
)

// Task is a single deferred call created by After.
type Task struct {
	mu       sync.Mutex
	timer    *time.Timer
	state    taskState
	finished chan struct{}
}

type taskState int

const (
	taskPending taskState = iota
	taskRunning
	taskCancelled
	taskFinished
)

// After arranges for fn to run on its own goroutine once d has elapsed.
// The caller is never blocked.
func After(d time.Duration, fn func()) *Task {
	t := &Task{finished: make(chan struct{})}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timer = time.AfterFunc(d, func() {
		t.mu.Lock()
		if t.state != taskPending {
			t.mu.Unlock()
			return
		}
		t.state = taskRunning
		t.mu.Unlock()

		defer func() {
			t.mu.Lock()
			t.state = taskFinished
			t.mu.Unlock()
			close(t.finished)
		}()
		fn()
	})
	return t
}

// Cancel prevents fn from running if it has not started yet and reports
// whether it did so. Cancelling a running or finished task is a no-op.
func (t *Task) Cancel() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state != taskPending {
		return false
	}
	t.state = taskCancelled
	t.timer.Stop()
	close(t.finished)
	return true
}

// Done is closed once the task is cancelled or fn has returned.
func (t *Task) Done() <-chan struct{} {
	return t.finished
}
