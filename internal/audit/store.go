package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/medscrub/internal/scrub"
)

// Store persists scrub audit records to PostgreSQL.
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

const schema = `
CREATE TABLE IF NOT EXISTS scrub_runs (
	id BIGSERIAL PRIMARY KEY,
	session_digest TEXT NOT NULL,
	count INTEGER NOT NULL,
	confidence DOUBLE PRECISION NOT NULL,
	warnings INTEGER NOT NULL,
	duration_ms BIGINT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS scrub_entries (
	id BIGSERIAL PRIMARY KEY,
	run_id BIGINT NOT NULL REFERENCES scrub_runs(id) ON DELETE CASCADE,
	entity_type TEXT NOT NULL,
	method TEXT NOT NULL,
	original_hash TEXT NOT NULL,
	placeholder TEXT NOT NULL,
	confidence DOUBLE PRECISION NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scrub_entries_run ON scrub_entries(run_id);
CREATE INDEX IF NOT EXISTS idx_scrub_entries_hash ON scrub_entries(original_hash);`

// NewStore connects to the database and ensures the audit schema exists.
func NewStore(config *Config, logger *zap.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", config.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	store := &Store{db: db, logger: logger}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := store.db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := store.db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("failed to ensure audit schema: %w", err)
	}

	logger.Info("audit store initialized",
		zap.String("database_url", maskDatabaseURL(config.DatabaseURL)))

	return store, nil
}

// RecordScrub persists one scrub run and its redactions. Originals are
// hashed with the session salt before storage, so the database holds no
// recoverable PII and hashes from different sessions do not correlate.
func (s *Store) RecordScrub(ctx context.Context, sessionSalt string, result *scrub.ScrubResult) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	var runID int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO scrub_runs (session_digest, count, confidence, warnings, duration_ms)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		digest(sessionSalt), result.Count, result.Confidence,
		len(result.Warnings), result.Summary.Duration.Milliseconds(),
	).Scan(&runID)
	if err != nil {
		return fmt.Errorf("failed to insert scrub run: %w", err)
	}

	for _, d := range result.Detections {
		placeholder := result.Replacements[d.EntityText]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO scrub_entries (run_id, entity_type, method, original_hash, placeholder, confidence)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			runID, string(d.EntityType), string(d.Method),
			digest(sessionSalt+d.EntityText), placeholder, d.Confidence)
		if err != nil {
			return fmt.Errorf("failed to insert scrub entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit transaction: %w", err)
	}

	s.logger.Debug("scrub run persisted",
		zap.Int64("run_id", runID),
		zap.Int("entries", len(result.Detections)))

	return nil
}

// RecentRuns returns the newest persisted runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	var runs []Run
	err := s.db.SelectContext(ctx, &runs,
		`SELECT id, session_digest, count, confidence, warnings, duration_ms, created_at
		 FROM scrub_runs ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query scrub runs: %w", err)
	}
	return runs, nil
}

// Close releases the database pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func digest(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}

// maskDatabaseURL hides credentials for logging.
func maskDatabaseURL(url string) string {
	if at := strings.LastIndex(url, "@"); at != -1 {
		if scheme := strings.Index(url, "://"); scheme != -1 {
			return url[:scheme+3] + "***" + url[at:]
		}
	}
	return url
}
