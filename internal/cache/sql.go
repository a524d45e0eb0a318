package cache

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	// Register Postgres SQL driver.
	_ "github.com/lib/pq"
	// Register SQLite SQL driver.
	_ "modernc.org/sqlite"
)

type sqlDialect string

const (
	dialectSQLite   sqlDialect = "sqlite"
	dialectPostgres sqlDialect = "postgres"
)

// SQLStore persists cache entries in SQL backends (SQLite or Postgres), the
// way the platform keeps its cache in a relational table. Expiry is stored as
// unix seconds so both dialects compare it the same way.
type SQLStore struct {
	db      *sql.DB
	dialect sqlDialect
	clock   clockwork.Clock
	logger  *slog.Logger
}

// NewSQLiteStore creates a SQLite-backed cache store.
// dsn can be a file path (e.g. /var/lib/groundtruth/cache.db) or a SQLite DSN.
func NewSQLiteStore(dsn string, clock clockwork.Clock, logger *slog.Logger) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "groundtruth-cache.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	// modernc's sqlite driver is not safe for concurrent writers on one file.
	db.SetMaxOpenConns(1)
	return newSQLStore(db, dialectSQLite, clock, logger)
}

// NewPostgresStore creates a Postgres-backed cache store.
func NewPostgresStore(dsn string, clock clockwork.Clock, logger *slog.Logger) (*SQLStore, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres store: %w", err)
	}
	return newSQLStore(db, dialectPostgres, clock, logger)
}

func newSQLStore(db *sql.DB, dialect sqlDialect, clock clockwork.Clock, logger *slog.Logger) (*SQLStore, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = slog.Default()
	}
	store := &SQLStore{db: db, dialect: dialect, clock: clock, logger: logger}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLStore) init() error {
	if err := s.db.Ping(); err != nil {
		return fmt.Errorf("ping %s store: %w", s.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS cache (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	expires_at BIGINT NOT NULL
);`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize %s store schema: %w", s.dialect, err)
	}
	return nil
}

// Get returns the value for key when its expiry is still in the future.
// Read faults are logged and reported as a miss.
func (s *SQLStore) Get(ctx context.Context, key string) ([]byte, bool) {
	q := s.bind(`SELECT value FROM cache WHERE key = ? AND expires_at > ?`)
	var value string
	err := s.db.QueryRowContext(ctx, q, key, s.clock.Now().Unix()).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false
	}
	if err != nil {
		s.logger.Error("cache read failed", "key", key, "error", err)
		return nil, false
	}
	return []byte(value), true
}

// Put upserts key with expiry now+ttl. Write faults are logged and dropped so
// they never fail the caller's primary operation.
func (s *SQLStore) Put(ctx context.Context, key string, value []byte, ttl time.Duration) {
	expiresAt := s.clock.Now().Add(ttl).Unix()
	q := s.bind(`
INSERT INTO cache(key, value, expires_at) VALUES(?, ?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`)
	if _, err := s.db.ExecContext(ctx, q, key, string(value), expiresAt); err != nil {
		s.logger.Error("cache write failed", "key", key, "error", err)
	}
}

// Close closes the underlying database handle.
func (s *SQLStore) Close() error { return s.db.Close() }

// StartSweep deletes expired rows every interval until ctx is cancelled.
// An interval <= 0 disables sweeping, reproducing the original's
// never-purge behavior.
func (s *SQLStore) StartSweep(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				s.sweep(ctx)
			}
		}
	}()
}

func (s *SQLStore) sweep(ctx context.Context) {
	q := s.bind(`DELETE FROM cache WHERE expires_at <= ?`)
	res, err := s.db.ExecContext(ctx, q, s.clock.Now().Unix())
	if err != nil {
		s.logger.Error("cache sweep failed", "error", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.logger.Debug("cache sweep removed expired entries", "count", n)
	}
}

// bind rewrites ? placeholders to $n for Postgres.
func (s *SQLStore) bind(query string) string {
	if s.dialect != dialectPostgres {
		return query
	}
	var (
		b      strings.Builder
		argNum = 1
	)
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			fmt.Fprintf(&b, "$%d", argNum)
			argNum++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
