package audit

import (
	"time"
)

// Config contains audit sink configuration. The sink is optional; when
// disabled the in-memory trail in ScrubResult is the only audit record.
type Config struct {
	Enabled         bool          `yaml:"enabled" mapstructure:"enabled"`
	DatabaseURL     string        `yaml:"database_url" mapstructure:"database_url"`
	MaxOpenConns    int           `yaml:"max_open_conns" mapstructure:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns" mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`
}

// Run is one persisted scrub invocation. No document text is stored.
type Run struct {
	ID            int64     `db:"id" json:"id"`
	SessionDigest string    `db:"session_digest" json:"session_digest"`
	Count         int       `db:"count" json:"count"`
	Confidence    float64   `db:"confidence" json:"confidence"`
	Warnings      int       `db:"warnings" json:"warnings"`
	DurationMs    int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// Entry is one persisted redaction. The original value is stored only as
// a SHA-256 digest: enough to correlate repeated entities for compliance
// review without retaining PII.
type Entry struct {
	ID           int64  `db:"id" json:"id"`
	RunID        int64  `db:"run_id" json:"run_id"`
	EntityType   string `db:"entity_type" json:"entity_type"`
	Method       string `db:"method" json:"method"`
	OriginalHash string `db:"original_hash" json:"original_hash"`
	Placeholder  string `db:"placeholder" json:"placeholder"`
	Confidence   float64 `db:"confidence" json:"confidence"`
}
