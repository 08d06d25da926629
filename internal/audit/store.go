package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

const insertEntry = `
	INSERT INTO request_log (
		request_id, model, provider, upstream_model, stream,
		status, attempts, duration_ms, error_type, created_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NULLIF($9, ''), $10)`

// execer is the subset of *pgxpool.Pool the store needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore writes entries from a buffered queue on a background
// goroutine so request handlers never wait on the database. When the queue
// is full new entries are dropped and logged.
type PostgresStore struct {
	db           execer
	queue        chan Entry
	writeTimeout time.Duration
	logger       *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewPostgresStore starts the writer goroutine. Close drains the queue.
func NewPostgresStore(db execer, queueSize int, writeTimeout time.Duration, logger *slog.Logger) *PostgresStore {
	if queueSize <= 0 {
		queueSize = 256
	}
	if writeTimeout <= 0 {
		writeTimeout = 2 * time.Second
	}
	s := &PostgresStore{
		db:           db,
		queue:        make(chan Entry, queueSize),
		writeTimeout: writeTimeout,
		logger:       logger,
	}
	s.wg.Add(1)
	go s.run()
	return s
}

// Record enqueues e. It never blocks. Entries recorded after Close are
// dropped.
func (s *PostgresStore) Record(_ context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.logger.Warn("request log closed, dropping entry", "request_id", e.RequestID)
		return
	}
	select {
	case s.queue <- e:
	default:
		s.logger.Warn("request log queue full, dropping entry", "request_id", e.RequestID)
	}
}

func (s *PostgresStore) run() {
	defer s.wg.Done()
	for e := range s.queue {
		s.write(e)
	}
}

func (s *PostgresStore) write(e Entry) {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	_, err := s.db.Exec(ctx, insertEntry,
		e.RequestID, e.Model, e.Provider, e.UpstreamModel, e.Stream,
		e.Status, e.Attempts, e.DurationMs, e.ErrorType, e.CreatedAt,
	)
	if err != nil {
		s.logger.Error("failed to write request log entry", "request_id", e.RequestID, "error", err)
	}
}

// Close stops accepting entries and waits until queued ones are written.
func (s *PostgresStore) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	s.wg.Wait()
}
