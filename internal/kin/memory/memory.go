// Package memory is kin's local memory log: short textual records keyed by an
// id, replaced wholesale on every write and read back most recent first.
//
// Memories are written only when a caller asks for it. Nothing in the
// listening session persists transcripts on its own.
package memory

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	// ErrInvalidArgument is returned for an empty id.
	ErrInvalidArgument = errors.New("memory: invalid argument")
	// ErrNotFound is returned by Get for an unknown id.
	ErrNotFound = errors.New("memory: not found")
)

// StorageError reports that the underlying medium failed (disk full,
// corrupted file, closed database). The store never retries on its own.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("memory: %s: storage error: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Record is one memory. Timestamp is seconds since the Unix epoch, set when
// the record was last written.
type Record struct {
	ID        string
	Text      string
	Tags      string
	Timestamp int64
}

// Time returns Timestamp as a time.Time in UTC.
func (r Record) Time() time.Time {
	return time.Unix(r.Timestamp, 0).UTC()
}

// String renders the record the way the recent-memories listing shows it.
func (r Record) String() string {
	return r.Text + " (" + strconv.FormatInt(r.Timestamp, 10) + ")"
}

// Store is the memory log contract.
type Store interface {
	// Put inserts or replaces the record for id, stamping the current time.
	// The write is durable when Put returns nil.
	Put(ctx context.Context, id, text, tags string) error

	// Recent returns up to limit records, newest timestamp first; records
	// sharing a timestamp keep their write order. A limit below 1 yields an
	// empty result, not an error.
	Recent(ctx context.Context, limit int) ([]Record, error)
}
