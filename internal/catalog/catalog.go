// Package catalog keeps a sqlite index of session files across every linked
// project so tags can be searched without walking each storage path.
package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/basket/udo/internal/ledger"
	"github.com/basket/udo/internal/link"
	"github.com/basket/udo/internal/shared"
)

const (
	schemaVersionV1  = 1
	schemaChecksumV1 = "udo-v1-sessions"

	schemaVersionLatest  = schemaVersionV1
	schemaChecksumLatest = schemaChecksumV1

	busyRetries = 5
)

// Hit is one session matched across projects.
type Hit struct {
	WorkingPath string
	ProjectName string
	Filename    string
	Tags        string
	Agent       string
}

type Catalog struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// Open opens or creates the catalog database at path.
func Open(path string, logger *slog.Logger) (*Catalog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create catalog directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	dsn := fmt.Sprintf("%s?_busy_timeout=5000&_foreign_keys=on", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite3: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	c := &Catalog{db: db, logger: logger, now: time.Now}
	if err := c.configurePragmas(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := c.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return c, nil
}

func (c *Catalog) Close() error {
	return c.db.Close()
}

func (c *Catalog) configurePragmas(ctx context.Context) error {
	for _, q := range []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
	} {
		if _, err := c.db.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("set pragma %q: %w", q, err)
		}
	}
	return nil
}

func (c *Catalog) initSchema(ctx context.Context) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			checksum TEXT NOT NULL,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var maxVersion int
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations;`).Scan(&maxVersion); err != nil {
		return fmt.Errorf("read migration max version: %w", err)
	}
	if maxVersion > schemaVersionLatest {
		return fmt.Errorf("catalog schema version %d is newer than supported %d", maxVersion, schemaVersionLatest)
	}
	if maxVersion == schemaVersionLatest {
		var checksum string
		if err := tx.QueryRowContext(ctx, `SELECT checksum FROM schema_migrations WHERE version = ?;`, schemaVersionLatest).Scan(&checksum); err != nil {
			return fmt.Errorf("read schema migration checksum: %w", err)
		}
		if checksum != schemaChecksumLatest {
			return fmt.Errorf("schema checksum mismatch for version %d: got %q want %q", schemaVersionLatest, checksum, schemaChecksumLatest)
		}
		return tx.Commit()
	}

	for _, stmt := range []string{
		`CREATE TABLE IF NOT EXISTS projects (
			working_path TEXT PRIMARY KEY,
			storage_id TEXT NOT NULL DEFAULT '',
			name TEXT NOT NULL,
			storage_path TEXT NOT NULL,
			synced_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			working_path TEXT NOT NULL REFERENCES projects(working_path) ON DELETE CASCADE,
			filename TEXT NOT NULL,
			tags TEXT NOT NULL DEFAULT '',
			summary TEXT NOT NULL DEFAULT '',
			agent TEXT NOT NULL DEFAULT '',
			indexed_at DATETIME NOT NULL,
			PRIMARY KEY (working_path, filename)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_filename ON sessions(filename DESC);`,
	} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO schema_migrations (version, checksum)
		VALUES (?, ?);
	`, schemaVersionLatest, schemaChecksumLatest); err != nil {
		return fmt.Errorf("record schema migration: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration tx: %w", err)
	}
	return nil
}

// Sync replaces the catalog rows of p with the sessions currently in l and
// returns how many were indexed.
func (c *Catalog) Sync(ctx context.Context, p *link.Project, l *ledger.Ledger) (int, error) {
	files, err := l.Files()
	if err != nil {
		return 0, err
	}
	sessions := make([]ledger.Session, 0, len(files))
	for _, name := range files {
		s, err := l.Read(name)
		if err != nil {
			c.logger.Warn("catalog: skip unreadable session", append(shared.LogAttrs(ctx), "file", name, "error", err)...)
			continue
		}
		sessions = append(sessions, s)
	}

	now := c.now().UTC()
	err = retryOnBusy(ctx, busyRetries, func() error {
		tx, err := c.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin sync tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO projects (working_path, storage_id, name, storage_path, synced_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(working_path) DO UPDATE SET
				storage_id = excluded.storage_id,
				name = excluded.name,
				storage_path = excluded.storage_path,
				synced_at = excluded.synced_at;
		`, p.WorkingPath, p.StorageID, p.Name, p.StoragePath, now); err != nil {
			return fmt.Errorf("upsert project: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM sessions WHERE working_path = ?;`, p.WorkingPath); err != nil {
			return fmt.Errorf("clear sessions: %w", err)
		}
		for _, s := range sessions {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO sessions (working_path, filename, tags, summary, agent, indexed_at)
				VALUES (?, ?, ?, ?, ?, ?);
			`, p.WorkingPath, s.Filename, s.Tags, s.Summary, s.Agent, now); err != nil {
				return fmt.Errorf("insert session %s: %w", s.Filename, err)
			}
		}
		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}
	c.logger.Debug("catalog synced", append(shared.LogAttrs(ctx),
		"working_path", p.WorkingPath, "sessions", len(sessions))...)
	return len(sessions), nil
}

// Forget removes a project and its sessions.
func (c *Catalog) Forget(ctx context.Context, workingPath string) error {
	return retryOnBusy(ctx, busyRetries, func() error {
		_, err := c.db.ExecContext(ctx, `DELETE FROM projects WHERE working_path = ?;`, workingPath)
		return err
	})
}

// SearchTag finds sessions whose tag line contains tag, ignoring case,
// newest first across all projects.
func (c *Catalog) SearchTag(ctx context.Context, tag string) ([]Hit, error) {
	rows, err := c.db.QueryContext(ctx, `
		SELECT s.working_path, p.name, s.filename, s.tags, s.agent
		FROM sessions s JOIN projects p ON p.working_path = s.working_path
		WHERE s.tags != '' AND instr(lower(s.tags), lower(?)) > 0
		ORDER BY s.filename DESC, s.working_path ASC;
	`, tag)
	if err != nil {
		return nil, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	var out []Hit
	for rows.Next() {
		var h Hit
		if err := rows.Scan(&h.WorkingPath, &h.ProjectName, &h.Filename, &h.Tags, &h.Agent); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Count returns the number of indexed sessions.
func (c *Catalog) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// retryOnBusy retries f while SQLite reports BUSY or LOCKED, backing off
// exponentially with jitter.
func retryOnBusy(ctx context.Context, maxRetries int, f func() error) error {
	const baseDelay = 50 * time.Millisecond
	const maxDelay = 500 * time.Millisecond

	var err error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err = f()
		if err == nil || !isSQLiteBusy(err) || attempt == maxRetries {
			return err
		}
		delay := baseDelay << uint(attempt)
		if delay > maxDelay {
			delay = maxDelay
		}
		delay = delay - delay/4 + time.Duration(rand.IntN(int(delay/2)))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "(5)") ||
		strings.Contains(msg, "(6)")
}
