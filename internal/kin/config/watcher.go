package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bdobrica/kin/common/environment"
	"github.com/bdobrica/kin/common/schedule"
)

// DefaultDebounce batches the burst of events an editor produces on save.
const DefaultDebounce = 100 * time.Millisecond

// WatcherOptions configures a Watcher.
type WatcherOptions struct {
	// Env supplies the overrides re-applied on every reload.
	Env *environment.Reader
	// OnChange receives each valid configuration whose file content changed.
	OnChange func(Config)
	// OnError receives reload failures. The previous config stays live.
	OnError  func(error)
	Debounce time.Duration
	Logger   *slog.Logger
}

// Watcher reloads a YAML config file whenever it changes on disk.
type Watcher struct {
	path     string
	env      *environment.Reader
	onChange func(Config)
	onError  func(error)
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher

	mu      sync.Mutex
	pending *schedule.Task
	hash    string
}

// NewWatcher watches path. The file's directory is watched rather than the
// file itself so that atomic replace-on-save is seen.
func NewWatcher(path string, opts WatcherOptions) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config: watch: empty path")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	if opts.Env == nil {
		opts.Env = environment.New(EnvPrefix)
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: watch: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("config: watch %s: %w", filepath.Dir(abs), err)
	}

	w := &Watcher{
		path:     abs,
		env:      opts.Env,
		onChange: opts.OnChange,
		onError:  opts.OnError,
		debounce: opts.Debounce,
		logger:   opts.Logger,
		fs:       fw,
	}
	if data, err := os.ReadFile(abs); err == nil {
		w.hash = digest(data)
	}
	return w, nil
}

// Run delivers reloads until ctx is cancelled, then releases the watch.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.shutdown()

	w.logger.Info("config: watching", "path", w.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handleEvent(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config: watch error", "err", err)
		}
	}
}

func (w *Watcher) handleEvent(ev fsnotify.Event) {
	if filepath.Clean(ev.Name) != w.path {
		return
	}
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
		return
	}
	w.logger.Debug("config: file event", "op", ev.Op.String())

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending != nil {
		w.pending.Cancel()
	}
	w.pending = schedule.After(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	data, err := os.ReadFile(w.path)
	if err != nil {
		// Rename-on-save briefly removes the file; the Create that follows
		// triggers another reload.
		w.logger.Debug("config: reload skipped", "err", err)
		return
	}

	h := digest(data)
	w.mu.Lock()
	unchanged := h == w.hash
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, err := Parse(data)
	if err == nil {
		cfg.File = w.path
		cfg.ApplyEnv(w.env)
		err = cfg.Validate()
	}
	if err != nil {
		w.logger.Warn("config: reload rejected", "path", w.path, "err", err)
		if w.onError != nil {
			w.onError(fmt.Errorf("config: reload %s: %w", w.path, err))
		}
		return
	}

	w.mu.Lock()
	w.hash = h
	w.mu.Unlock()
	w.logger.Info("config: reloaded", "path", w.path, "hash", h[:12])
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

func (w *Watcher) shutdown() {
	w.mu.Lock()
	task := w.pending
	w.pending = nil
	w.mu.Unlock()
	if task != nil {
		task.Cancel()
		<-task.Done()
	}
	if err := w.fs.Close(); err != nil {
		w.logger.Warn("config: close watcher", "err", err)
	}
}

func digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
