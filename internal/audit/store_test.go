package audit

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeExec struct {
	mu    sync.Mutex
	calls [][]any
	block chan struct{}
	err   error
}

func (f *fakeExec) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, args)
	return pgconn.NewCommandTag("INSERT 0 1"), f.err
}

func (f *fakeExec) rows() [][]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]any(nil), f.calls...)
}

func TestPostgresStore_WritesEntries(t *testing.T) {
	db := &fakeExec{}
	s := NewPostgresStore(db, 8, time.Second, discardLogger())

	created := time.Date(2025, 9, 5, 10, 0, 0, 0, time.UTC)
	s.Record(context.Background(), Entry{
		RequestID:     "req-1",
		Model:         "glm-4.5",
		Provider:      "zhipu",
		UpstreamModel: "glm-4-0520",
		Status:        200,
		Attempts:      1,
		DurationMs:    42,
		CreatedAt:     created,
	})
	s.Record(context.Background(), Entry{RequestID: "req-2", Model: "unknown", Status: 400})
	s.Close()

	rows := db.rows()
	if len(rows) != 2 {
		t.Fatalf("expected 2 inserts, got %d", len(rows))
	}
	first := rows[0]
	if first[0] != "req-1" || first[1] != "glm-4.5" || first[3] != "glm-4-0520" || first[5] != 200 {
		t.Errorf("unexpected insert args %v", first)
	}
	if first[9] != created {
		t.Errorf("expected created_at %v, got %v", created, first[9])
	}
	if ts, ok := rows[1][9].(time.Time); !ok || ts.IsZero() {
		t.Errorf("expected created_at to be filled, got %v", rows[1][9])
	}
}

func TestPostgresStore_DropsWhenQueueFull(t *testing.T) {
	db := &fakeExec{block: make(chan struct{})}
	s := NewPostgresStore(db, 1, time.Second, discardLogger())

	// the writer takes one entry and blocks, the queue holds one more
	for i := 0; i < 5; i++ {
		s.Record(context.Background(), Entry{RequestID: "r"})
	}
	close(db.block)
	s.Close()

	if n := len(db.rows()); n < 1 || n > 2 {
		t.Errorf("expected 1 or 2 writes with a full queue, got %d", n)
	}
}

func TestPostgresStore_WriteErrorIsNotFatal(t *testing.T) {
	db := &fakeExec{err: errors.New("connection refused")}
	s := NewPostgresStore(db, 4, time.Second, discardLogger())
	s.Record(context.Background(), Entry{RequestID: "req-1"})
	s.Record(context.Background(), Entry{RequestID: "req-2"})
	s.Close()
	s.Close()

	if n := len(db.rows()); n != 2 {
		t.Errorf("expected both entries attempted, got %d", n)
	}
}

func TestPostgresStore_RecordAfterCloseIsDropped(t *testing.T) {
	db := &fakeExec{}
	s := NewPostgresStore(db, 4, time.Second, discardLogger())
	s.Record(context.Background(), Entry{RequestID: "before"})
	s.Close()

	// a handler still finishing after shutdown must not panic
	s.Record(context.Background(), Entry{RequestID: "after"})

	rows := db.rows()
	if len(rows) != 1 || rows[0][0] != "before" {
		t.Errorf("expected only the entry recorded before Close, got %v", rows)
	}
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	r.Record(context.Background(), Entry{RequestID: "x"})
}

func TestNewMigrator_MissingDirectory(t *testing.T) {
	_, err := NewMigrator(filepath.Join(t.TempDir(), "nope"), "postgres://u:p@127.0.0.1:1/db?sslmode=disable")
	if err == nil {
		t.Fatal("expected error for missing migrations directory")
	}
}

func TestMigrationFilesArePaired(t *testing.T) {
	dir := filepath.Join("..", "..", "migrations")
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations: %v", err)
	}
	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	if len(ups) == 0 {
		t.Fatal("no migrations found")
	}
	for v := range ups {
		if !downs[v] {
			t.Errorf("migration %s has no down file", v)
		}
	}
	for v := range downs {
		if !ups[v] {
			t.Errorf("migration %s has no up file", v)
		}
	}
}
