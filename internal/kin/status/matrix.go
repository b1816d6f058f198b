package status

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/kin/common/retry"
)

// DefaultMatrixQueue is the number of lines a MatrixSink buffers before it
// starts dropping.
const DefaultMatrixQueue = 128

// MatrixConfig holds the parameters for mirroring status lines into a room.
type MatrixConfig struct {
	Homeserver  string
	UserID      string
	AccessToken string
	RoomID      string
	QueueSize   int
	Retry       retry.Policy
}

// textSender is the subset of *mautrix.Client the sink uses.
type textSender interface {
	SendText(ctx context.Context, roomID id.RoomID, text string) (*mautrix.RespSendEvent, error)
}

// MatrixSink posts each status line as an m.text message. Append only
// enqueues; Run does the sending, so a slow homeserver never stalls the
// listening session. Lines arriving while the queue is full are dropped.
type MatrixSink struct {
	sender  textSender
	room    id.RoomID
	queue   chan string
	policy  retry.Policy
	logger  *slog.Logger
	dropped atomic.Int64
	failed  atomic.Int64
}

// NewMatrixSink creates a mautrix client for cfg. It does not sync; the sink
// only sends.
func NewMatrixSink(cfg MatrixConfig, logger *slog.Logger) (*MatrixSink, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" || cfg.RoomID == "" {
		return nil, fmt.Errorf("status: matrix sink requires homeserver, user id, access token and room id")
	}
	mxc, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("status: create matrix client: %w", err)
	}
	return newMatrixSink(mxc, cfg, logger), nil
}

func newMatrixSink(sender textSender, cfg MatrixConfig, logger *slog.Logger) *MatrixSink {
	if logger == nil {
		logger = slog.Default()
	}
	size := cfg.QueueSize
	if size <= 0 {
		size = DefaultMatrixQueue
	}
	policy := cfg.Retry
	if policy.Attempts == 0 {
		policy = retry.DefaultPolicy
	}
	policy.Logger = logger
	return &MatrixSink{
		sender: sender,
		room:   id.RoomID(cfg.RoomID),
		queue:  make(chan string, size),
		policy: policy,
		logger: logger,
	}
}

// Append enqueues line for delivery.
func (m *MatrixSink) Append(line string) {
	select {
	case m.queue <- line:
	default:
		if n := m.dropped.Add(1); n == 1 || n%100 == 0 {
			m.logger.Warn("status: matrix queue full; dropping lines", "dropped", n)
		}
	}
}

// Run delivers queued lines until ctx is cancelled. It always returns nil;
// failed deliveries are logged and counted.
func (m *MatrixSink) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case line := <-m.queue:
			err := retry.Do(ctx, m.policy, "matrix send", func(ctx context.Context) error {
				_, err := m.sender.SendText(ctx, m.room, line)
				return err
			})
			if err != nil && ctx.Err() == nil {
				m.failed.Add(1)
				m.logger.Warn("status: matrix send failed", "room", m.room, "err", err)
			}
		}
	}
}

// Dropped returns how many lines were discarded because the queue was full.
func (m *MatrixSink) Dropped() int64 { return m.dropped.Load() }

// Failed returns how many lines could not be delivered after retries.
func (m *MatrixSink) Failed() int64 { return m.failed.Load() }

var _ Sink = (*MatrixSink)(nil)
