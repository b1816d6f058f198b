package memory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/kin/internal/kin/status"
)

// SQLiteStore implements Store on the memory table created by the store
// package migrations. A RWMutex lets reads overlap while each write runs
// alone, so the replace-then-reorder sequence of a Put is never observed
// half done.
type SQLiteStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	logger *slog.Logger
	status status.Sink
	now    func() time.Time
}

// Options tune a SQLiteStore. The zero value is usable.
type Options struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Status receives a "stored memory: <id>" line per successful Put.
	Status status.Sink
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewSQLiteStore creates a SQLiteStore on db.
func NewSQLiteStore(db *sql.DB, opts Options) *SQLiteStore {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Status == nil {
		opts.Status = status.Discard
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &SQLiteStore{
		db:     db,
		logger: opts.Logger,
		status: opts.Status,
		now:    opts.Now,
	}
}

// Put inserts or replaces the record for id. The replacement takes a fresh
// write sequence, so it sorts as the newest write among equal timestamps.
func (s *SQLiteStore) Put(ctx context.Context, id, text, tags string) error {
	if id == "" {
		return fmt.Errorf("put: empty id: %w", ErrInvalidArgument)
	}
	ts := s.now().Unix()

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO memory (id, text, tags, ts, seq)
		VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(seq), 0) + 1 FROM memory))`,
		id, text, tags, ts,
	)
	if err != nil {
		s.logger.Error("memory: put failed", "id", id, "err", err)
		s.status.Append("memory write failed: " + id + ": " + err.Error())
		return &StorageError{Op: "put", Err: err}
	}

	s.logger.Debug("memory: stored", "id", id, "tags", tags, "ts", ts, "text_len", len(text))
	s.status.Append("stored memory: " + id)
	return nil
}

// Remember stores text under a newly generated id and returns that id.
func (s *SQLiteStore) Remember(ctx context.Context, text, tags string) (string, error) {
	id := uuid.NewString()
	if err := s.Put(ctx, id, text, tags); err != nil {
		return "", err
	}
	return id, nil
}

// Recent returns up to limit records ordered by timestamp descending, ties in
// write order.
func (s *SQLiteStore) Recent(ctx context.Context, limit int) ([]Record, error) {
	if limit <= 0 {
		return []Record{}, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, text, tags, ts FROM memory
		ORDER BY ts DESC, seq ASC
		LIMIT ?`, limit)
	if err != nil {
		return nil, &StorageError{Op: "recent", Err: err}
	}
	defer rows.Close()

	out := make([]Record, 0, limit)
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Text, &r.Tags, &r.Timestamp); err != nil {
			return nil, &StorageError{Op: "recent", Err: err}
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, &StorageError{Op: "recent", Err: err}
	}
	return out, nil
}

// Get returns the record for id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("get: empty id: %w", ErrInvalidArgument)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var r Record
	err := s.db.QueryRowContext(ctx,
		"SELECT id, text, tags, ts FROM memory WHERE id = ?", id,
	).Scan(&r.ID, &r.Text, &r.Tags, &r.Timestamp)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("get %q: %w", id, ErrNotFound)
	}
	if err != nil {
		return Record{}, &StorageError{Op: "get", Err: err}
	}
	return r, nil
}

// Count returns the number of stored records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM memory").Scan(&n); err != nil {
		return 0, &StorageError{Op: "count", Err: err}
	}
	return n, nil
}

// Compile-time interface satisfaction check.
var _ Store = (*SQLiteStore)(nil)
