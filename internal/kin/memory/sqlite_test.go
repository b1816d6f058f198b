package memory_test

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/kin/internal/kin/memory"
	"github.com/bdobrica/kin/internal/kin/status"
	"github.com/bdobrica/kin/internal/kin/store"
)

// fakeClock returns a settable time so tests control timestamps.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(unix int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = time.Unix(unix, 0)
}

type fixture struct {
	db     *store.Store
	mem    *memory.SQLiteStore
	clock  *fakeClock
	status *status.Ring
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "kin_memory.db"), nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	ring := status.NewRing(16)
	return &fixture{
		db:     db,
		clock:  clock,
		status: ring,
		mem:    memory.NewSQLiteStore(db.DB(), memory.Options{Status: ring, Now: clock.Now}),
	}
}

func texts(records []memory.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Text
	}
	return out
}

func TestPut_ReplacesExistingID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.mem.Put(ctx, "a", "hello", "x"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := f.mem.Put(ctx, "a", "world", "y"); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := f.mem.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected exactly one record, got %d", n)
	}

	got, err := f.mem.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	want := memory.Record{ID: "a", Text: "world", Tags: "y", Timestamp: 1_700_000_000}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("record mismatch (-want +got):\n%s", diff)
	}
}

func TestRecent_NonPositiveLimitIsEmpty(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.mem.Put(ctx, "a", "hello", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	for _, limit := range []int{0, -1, -100} {
		got, err := f.mem.Recent(ctx, limit)
		if err != nil {
			t.Fatalf("Recent(%d): %v", limit, err)
		}
		if len(got) != 0 {
			t.Errorf("Recent(%d) returned %d records, want 0", limit, len(got))
		}
	}
}

func TestRecent_OrderByTimestampThenWriteOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	writes := []struct {
		ts   int64
		id   string
		text string
	}{
		{100, "a", "first at 100"},
		{300, "b", "only at 300"},
		{100, "c", "second at 100"},
		{200, "d", "first at 200"},
		{200, "e", "second at 200"},
	}
	for _, w := range writes {
		f.clock.Set(w.ts)
		if err := f.mem.Put(ctx, w.id, w.text, ""); err != nil {
			t.Fatalf("Put(%s): %v", w.id, err)
		}
	}

	got, err := f.mem.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	want := []string{"only at 300", "first at 200", "second at 200", "first at 100", "second at 100"}
	if diff := cmp.Diff(want, texts(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	top, err := f.mem.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if diff := cmp.Diff(want[:2], texts(top)); diff != "" {
		t.Errorf("limit mismatch (-want +got):\n%s", diff)
	}
}

func TestRecent_ReplacementMovesToLatestWrite(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.clock.Set(500)

	for _, id := range []string{"a", "b", "c"} {
		if err := f.mem.Put(ctx, id, id, ""); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	if err := f.mem.Put(ctx, "a", "a again", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := f.mem.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if diff := cmp.Diff([]string{"b", "c", "a again"}, texts(got)); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestRecent_DistinctIDs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		f.clock.Set(int64(1000 + i))
		id := fmt.Sprintf("k%d", i%3)
		if err := f.mem.Put(ctx, id, fmt.Sprintf("v%d", i), ""); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	got, err := f.mem.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if diff := cmp.Diff([]string{"v9", "v8", "v7"}, texts(got)); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
}

func TestPut_EmptyIDIsInvalid(t *testing.T) {
	f := newFixture(t)
	err := f.mem.Put(context.Background(), "", "text", "")
	if !errors.Is(err, memory.ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
	if _, err := f.mem.Get(context.Background(), ""); !errors.Is(err, memory.ErrInvalidArgument) {
		t.Fatalf("Get: expected ErrInvalidArgument, got %v", err)
	}
}

func TestPut_WhitespaceIDIsKeptVerbatim(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	if err := f.mem.Put(ctx, " ", "blank", "odd"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	got, err := f.mem.Get(ctx, " ")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if diff := cmp.Diff(memory.Record{ID: " ", Text: "blank", Tags: "odd", Timestamp: got.Timestamp}, got); diff != "" {
		t.Errorf("record (-want +got):\n%s", diff)
	}
}

func TestPut_ReportsStatus(t *testing.T) {
	f := newFixture(t)
	if err := f.mem.Put(context.Background(), "groceries", "buy milk", "todo"); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if diff := cmp.Diff([]string{"stored memory: groceries"}, f.status.Lines()); diff != "" {
		t.Errorf("status mismatch (-want +got):\n%s", diff)
	}
}

func TestPut_StorageErrorWhenClosed(t *testing.T) {
	f := newFixture(t)
	f.db.Close()

	err := f.mem.Put(context.Background(), "a", "hello", "")
	var storageErr *memory.StorageError
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError, got %v", err)
	}
	if storageErr.Op != "put" {
		t.Errorf("expected op put, got %q", storageErr.Op)
	}

	if _, err := f.mem.Recent(context.Background(), 5); !errors.As(err, &storageErr) {
		t.Fatalf("expected StorageError from Recent, got %v", err)
	}

	lines := f.status.Lines()
	if len(lines) != 1 {
		t.Fatalf("expected one failure status line, got %v", lines)
	}
}

func TestRemember_GeneratesID(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.mem.Remember(ctx, "turn on the light", "command")
	if err != nil {
		t.Fatalf("Remember: %v", err)
	}
	if id == "" {
		t.Fatal("expected a generated id")
	}
	got, err := f.mem.Get(ctx, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Text != "turn on the light" || got.Tags != "command" {
		t.Errorf("unexpected record %+v", got)
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.mem.Get(context.Background(), "nope"); !errors.Is(err, memory.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPut_DurableAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kin_memory.db")
	ctx := context.Background()

	db, err := store.New(path, nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	if err := memory.NewSQLiteStore(db.DB(), memory.Options{}).Put(ctx, "a", "persisted", ""); err != nil {
		t.Fatalf("Put: %v", err)
	}
	db.Close()

	reopened, err := store.New(path, nil)
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	defer reopened.Close()

	got, err := memory.NewSQLiteStore(reopened.DB(), memory.Options{}).Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if got.Text != "persisted" {
		t.Errorf("expected persisted text, got %q", got.Text)
	}
}

func TestConcurrentPutAndRecent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 80)
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			errs <- f.mem.Put(ctx, fmt.Sprintf("id-%d", i%10), "text", "")
		}(i)
		go func() {
			defer wg.Done()
			_, err := f.mem.Recent(ctx, 5)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent call failed: %v", err)
		}
	}
	n, err := f.mem.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 10 {
		t.Fatalf("expected 10 distinct ids, got %d", n)
	}
}

func TestRecord_String(t *testing.T) {
	r := memory.Record{Text: "buy milk", Timestamp: 42}
	if got := r.String(); got != "buy milk (42)" {
		t.Errorf("unexpected String(): %q", got)
	}
	if !r.Time().Equal(time.Unix(42, 0)) {
		t.Errorf("unexpected Time(): %v", r.Time())
	}
}
