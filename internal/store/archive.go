package store

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	_ "github.com/jackc/pgx/v5/stdlib"
	log "github.com/sirupsen/logrus"

	"github.com/netmon-dev/netmon/internal/collector"
	"github.com/netmon-dev/netmon/internal/config"
)

var identifierRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// LogArchive appends switch event-log lines to a Postgres table so they
// outlive the metrics retention window. Duplicate lines across cycles are
// dropped on insert; the switch re-serves its whole ring buffer every
// collection pass.
type LogArchive struct {
	db    *sql.DB
	table string
}

// NewLogArchive connects to Postgres and creates the archive table if
// needed. Returns (nil, nil) when no DSN is configured; callers treat a
// nil archive as disabled.
func NewLogArchive(ctx context.Context, cfg config.LogArchiveConfig) (*LogArchive, error) {
	if cfg.DSN == "" {
		return nil, nil
	}
	if !identifierRe.MatchString(cfg.Table) {
		return nil, fmt.Errorf("store: log archive table name %q is not a valid identifier", cfg.Table)
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("store: open log archive connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: ping log archive database: %w", err)
	}

	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id BIGSERIAL PRIMARY KEY,
		switch_ip TEXT NOT NULL,
		log_index INTEGER NOT NULL,
		logged_at TEXT NOT NULL,
		module TEXT NOT NULL,
		severity TEXT NOT NULL,
		content TEXT NOT NULL,
		archived_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		UNIQUE (switch_ip, logged_at, module, content)
	)`, cfg.Table)
	if _, err = db.ExecContext(ctx, ddl); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("store: create log archive table: %w", err)
	}

	log.WithField("status", "connected").Info("switch log archive enabled")
	return &LogArchive{db: db, table: cfg.Table}, nil
}

// Archive inserts the cycle's log lines, skipping lines already archived.
func (a *LogArchive) Archive(ctx context.Context, switchIP string, logs []collector.LogRecord) error {
	if a == nil || len(logs) == 0 {
		return nil
	}
	stmt := fmt.Sprintf(`INSERT INTO %s (switch_ip, log_index, logged_at, module, severity, content)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (switch_ip, logged_at, module, content) DO NOTHING`, a.table)

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin log archive transaction: %w", err)
	}
	for _, line := range logs {
		if _, err = tx.ExecContext(ctx, stmt, switchIP, line.Index, line.Time, line.Module, line.Severity, line.Content); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("store: archive log line %d: %w", line.Index, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("store: commit log archive transaction: %w", err)
	}
	return nil
}

// Close releases the database connection. Safe on a nil archive.
func (a *LogArchive) Close() error {
	if a == nil || a.db == nil {
		return nil
	}
	return a.db.Close()
}
