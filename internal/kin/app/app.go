// Package app wires kin together: the memory database, the status sinks, the
// listening session and its recognizer, the config watcher and the optional
// health server.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/kin/common/trace"
	"github.com/bdobrica/kin/internal/kin/config"
	"github.com/bdobrica/kin/internal/kin/memory"
	"github.com/bdobrica/kin/internal/kin/observability"
	"github.com/bdobrica/kin/internal/kin/recognizer"
	"github.com/bdobrica/kin/internal/kin/session"
	"github.com/bdobrica/kin/internal/kin/status"
	"github.com/bdobrica/kin/internal/kin/store"
)

// CommandTags tags memories written from captured voice commands.
const CommandTags = "command,voice"

// Options configures an App.
type Options struct {
	Config config.Config
	// Service overrides the recognizer. Defaults to a LineService on Input.
	Service recognizer.Service
	// Input feeds the default LineService. Defaults to os.Stdin.
	Input io.Reader
	// Console receives status lines. Defaults to os.Stdout.
	Console io.Writer
	Logger  *slog.Logger
}

// App owns every long-lived kin component.
type App struct {
	cfg    config.Config
	logger *slog.Logger

	store   *store.Store
	memory  *memory.SQLiteStore
	ring    *status.Ring
	status  status.Sink
	matrix  *status.MatrixSink
	service recognizer.Service
	lines   *recognizer.LineService
	manager *session.Manager
	health  *HealthServer
}

// New opens the memory database and builds the components. It does not
// start listening; call Run.
func New(opts Options) (*App, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Console == nil {
		opts.Console = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}

	a := &App{cfg: cfg, logger: logger, ring: status.NewRing(status.DefaultRingSize)}
	sinks := status.Multi{status.NewConsole(opts.Console, logger), a.ring}

	if cfg.NetworkEnabled && cfg.Matrix.Enabled() {
		mx, err := status.NewMatrixSink(status.MatrixConfig{
			Homeserver:  cfg.Matrix.Homeserver,
			UserID:      cfg.Matrix.UserID,
			AccessToken: cfg.Matrix.AccessToken,
			RoomID:      cfg.Matrix.StatusRoom,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("app: %w", err)
		}
		a.matrix = mx
		sinks = append(sinks, mx)
	}
	a.status = sinks

	logger.Info("opening memory database", "path", cfg.DatabasePath)
	st, err := store.New(cfg.DatabasePath, logger)
	if err != nil {
		a.status.Append("local memory db failed: " + err.Error())
		return nil, fmt.Errorf("app: open memory database: %w", err)
	}
	a.store = st
	a.memory = memory.NewSQLiteStore(st.DB(), memory.Options{Logger: logger, Status: a.status})
	a.status.Append("local memory db initialized")

	if cfg.NetworkEnabled {
		a.status.Append("network enabled")
	} else {
		a.status.Append("network disabled")
	}

	a.service = opts.Service
	if a.service == nil {
		a.lines = recognizer.NewLineService(opts.Input, logger)
		a.service = a.lines
	}

	var onCommand session.CommandHandler
	if cfg.RememberCommands {
		onCommand = a.rememberCommand
	}
	a.manager, err = session.New(session.Config{
		Service:      a.service,
		Status:       a.status,
		Logger:       logger,
		WakePhrase:   cfg.WakePhrase,
		RestartDelay: cfg.RestartDelay,
		OnCommand:    onCommand,
	})
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("app: %w", err)
	}

	if cfg.HTTP.Addr != "" {
		a.health = NewHealthServer(cfg.HTTP.Addr, a, logger)
	}
	return a, nil
}

// Run starts listening and supervises every component until ctx is
// cancelled or the recognizer input ends. The session is stopped before Run
// returns. An unavailable recognizer leaves the session Idle and Run keeps
// going.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.manager.Run(gctx) })

	if a.matrix != nil {
		g.Go(func() error { return a.matrix.Run(gctx) })
	}
	if a.health != nil {
		g.Go(func() error { return a.health.Serve(gctx) })
	}
	if a.cfg.File != "" {
		w, err := config.NewWatcher(a.cfg.File, config.WatcherOptions{
			OnChange: a.applyConfig,
			OnError:  func(err error) { a.status.Append("config reload failed: " + err.Error()) },
			Logger:   a.logger,
		})
		if err != nil {
			a.logger.Warn("config watcher unavailable", "err", err)
		} else {
			g.Go(func() error { return w.Run(gctx) })
		}
	}
	if a.lines != nil {
		g.Go(func() error {
			select {
			case <-gctx.Done():
			case <-a.lines.Exhausted():
				a.logger.Info("recognizer input closed; shutting down")
				a.manager.Stop()
				cancel()
			}
			return nil
		})
	}

	startErr := a.manager.Start(gctx)
	switch {
	case startErr == nil:
	case errors.Is(startErr, session.ErrUnavailable):
		// Reported by the manager, which stays Idle. Health and status keep
		// serving until ctx ends.
		a.logger.Warn("listening session idle: no recognizer", "err", startErr)
		startErr = nil
	default:
		a.logger.Error("listening session did not start", "err", startErr)
		cancel()
	}

	err := g.Wait()
	if a.lines != nil {
		_ = a.lines.Close()
	}
	if startErr != nil && !errors.Is(startErr, context.Canceled) {
		return fmt.Errorf("app: start: %w", startErr)
	}
	return err
}

// Close releases the memory database. Call it after Run has returned.
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

// Memory returns the memory store.
func (a *App) Memory() *memory.SQLiteStore { return a.memory }

// Manager returns the listening session manager.
func (a *App) Manager() *session.Manager { return a.manager }

// Snapshot implements statusProvider.
func (a *App) Snapshot() session.Snapshot { return a.manager.Snapshot() }

// MemoryCount implements statusProvider.
func (a *App) MemoryCount(ctx context.Context) (int, error) { return a.memory.Count(ctx) }

// StatusLines returns the most recent status lines, oldest first.
func (a *App) StatusLines() []string { return a.ring.Lines() }

func (a *App) rememberCommand(ctx context.Context, command string) {
	ctx, _ = trace.Ensure(ctx)
	logger := observability.WithTrace(ctx, a.logger)
	id, err := a.memory.Remember(ctx, command, CommandTags)
	if err != nil {
		logger.Error("remember command failed", "err", err)
		return
	}
	logger.Info("command remembered", "id", id)
}

func (a *App) applyConfig(cfg config.Config) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := a.manager.SetWakePhrase(ctx, cfg.WakePhrase); err != nil {
		a.logger.Warn("config: wake phrase not applied", "err", err)
	}
}
