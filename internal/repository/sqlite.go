package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS log_sources (
	id          TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL,
	status      TEXT NOT NULL,
	endpoint    TEXT NOT NULL,
	credentials TEXT NOT NULL DEFAULT '{}',
	metadata    TEXT NOT NULL DEFAULT '{}',
	created_at  INTEGER NOT NULL,
	updated_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS sessions (
	id                 TEXT PRIMARY KEY,
	source_id          TEXT NOT NULL,
	source             TEXT NOT NULL,
	start_time         INTEGER NOT NULL,
	end_time           INTEGER NOT NULL,
	model_config       TEXT NOT NULL,
	status             TEXT NOT NULL,
	analysis_result_id TEXT,
	error              TEXT NOT NULL DEFAULT '',
	version            INTEGER NOT NULL,
	created_at         INTEGER NOT NULL,
	updated_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_source ON sessions(source_id);
CREATE INDEX IF NOT EXISTS idx_sessions_status ON sessions(status);

CREATE TABLE IF NOT EXISTS log_entries (
	id           TEXT PRIMARY KEY,
	session_id   TEXT REFERENCES sessions(id) ON DELETE CASCADE,
	seq          INTEGER NOT NULL DEFAULT 0,
	source_id    TEXT NOT NULL,
	timestamp    INTEGER NOT NULL,
	level        TEXT NOT NULL,
	message      TEXT NOT NULL,
	raw_content  BLOB,
	metadata     TEXT NOT NULL DEFAULT '{}',
	tags         TEXT NOT NULL DEFAULT '[]',
	collected_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_log_entries_session ON log_entries(session_id, seq);
CREATE INDEX IF NOT EXISTS idx_log_entries_source ON log_entries(source_id, timestamp);

CREATE TABLE IF NOT EXISTS analysis_results (
	id                 TEXT PRIMARY KEY,
	session_id         TEXT NOT NULL,
	source_id          TEXT NOT NULL,
	model_type         TEXT NOT NULL,
	analyzed_log_count INTEGER NOT NULL,
	anomaly_count      INTEGER NOT NULL,
	anomalies          TEXT NOT NULL DEFAULT '[]',
	summary            TEXT NOT NULL DEFAULT '',
	start_time         INTEGER NOT NULL,
	end_time           INTEGER NOT NULL,
	created_at         INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_results_session ON analysis_results(session_id);
CREATE INDEX IF NOT EXISTS idx_results_source ON analysis_results(source_id, created_at);

CREATE TABLE IF NOT EXISTS event_outbox (
	seq           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_id      TEXT NOT NULL UNIQUE,
	event_type    TEXT NOT NULL,
	payload       TEXT NOT NULL,
	occurred_at   INTEGER NOT NULL,
	dispatched_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_outbox_pending ON event_outbox(dispatched_at, seq);
`

// Store is a SQLite database holding every repository. Raw log content is
// zstd-compressed at rest. The database is opened with a single
// connection, so writes are serialized.
type Store struct {
	db      *sqlx.DB
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	logger  *zap.Logger
}

// OpenSQLite opens (creating if needed) the database at path and applies
// the schema.
func OpenSQLite(ctx context.Context, path string, logger *zap.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	db, err := sqlx.ConnectContext(ctx, "sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to SQLite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		db.Close()
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{
		db:      db,
		encoder: enc,
		decoder: dec,
		logger:  logger.Named("sqlite_store"),
	}, nil
}

// Close releases the database and the codecs.
func (s *Store) Close() error {
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		s.logger.Warn("closing zstd encoder", zap.Error(err))
	}
	return s.db.Close()
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Sources returns the log source repository.
func (s *Store) Sources() *SQLiteSourceRepository { return &SQLiteSourceRepository{store: s} }

// Entries returns the log entry repository.
func (s *Store) Entries() *SQLiteEntryRepository { return &SQLiteEntryRepository{store: s} }

// Sessions returns the session repository.
func (s *Store) Sessions() *SQLiteSessionRepository { return &SQLiteSessionRepository{store: s} }

// Results returns the analysis result repository.
func (s *Store) Results() *SQLiteResultRepository { return &SQLiteResultRepository{store: s} }

// Outbox returns the event outbox.
func (s *Store) Outbox() *SQLiteOutbox { return &SQLiteOutbox{store: s} }

// withTx runs fn in a transaction, committing when it returns nil.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			s.logger.Warn("rollback failed", zap.Error(rbErr))
		}
		return err
	}
	return tx.Commit()
}

func (s *Store) compress(raw string) []byte {
	if raw == "" {
		return nil
	}
	return s.encoder.EncodeAll([]byte(raw), make([]byte, 0, len(raw)/2))
}

func (s *Store) decompress(blob []byte) (string, error) {
	if len(blob) == 0 {
		return "", nil
	}
	raw, err := s.decoder.DecodeAll(blob, nil)
	if err != nil {
		return "", fmt.Errorf("decompress raw content: %w", err)
	}
	return string(raw), nil
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(s string, v any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), v)
}

// chunk splits n items into ranges of at most size.
func chunk(n, size int, fn func(lo, hi int) error) error {
	for lo := 0; lo < n; lo += size {
		hi := lo + size
		if hi > n {
			hi = n
		}
		if err := fn(lo, hi); err != nil {
			return err
		}
	}
	return nil
}
