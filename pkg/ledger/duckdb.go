package ledger

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/bootlens/bootlens/internal/model"
)

// DuckDBBackend stores ledger entries in an embedded DuckDB database.
// Writes are transactional, which closes the partial-line window the
// JSONL backend leaves open. The table is append-only by construction:
// no UPDATE or DELETE statement exists in this package.
type DuckDBBackend struct {
	db *sql.DB
	mu sync.Mutex
}

// NewDuckDBBackend opens (creating if needed) the database at path.
func NewDuckDBBackend(path string) (*DuckDBBackend, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	b := &DuckDBBackend{db: db}
	if err := b.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return b, nil
}

// migrate runs database migrations.
func (b *DuckDBBackend) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS ledger (
			timestamp DOUBLE NOT NULL,
			log_level TEXT NOT NULL,
			category TEXT NOT NULL,
			operation_id TEXT NOT NULL,
			boot_session_id TEXT,
			message TEXT NOT NULL,
			details JSON
		)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_session ON ledger(boot_session_id)`,
		`CREATE INDEX IF NOT EXISTS idx_ledger_category ON ledger(category)`,
	}

	for _, migration := range migrations {
		if _, err := b.db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

// Name returns the backend name.
func (b *DuckDBBackend) Name() string { return "duckdb" }

// Close closes the database connection.
func (b *DuckDBBackend) Close() error { return b.db.Close() }

// Append inserts one entry.
func (b *DuckDBBackend) Append(ctx context.Context, entry model.LogEntry) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	detailsJSON, _ := json.Marshal(entry.Details)

	_, err := b.db.ExecContext(ctx, `
		INSERT INTO ledger (timestamp, log_level, category, operation_id, boot_session_id, message, details)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, entry.Timestamp, entry.Level, entry.Category, entry.OperationID,
		nullable(entry.SessionID), entry.Message, string(detailsJSON))
	if err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// QueryBySession returns session entries ascending by timestamp.
func (b *DuckDBBackend) QueryBySession(ctx context.Context, sessionID string) ([]model.LogEntry, error) {
	rows, err := b.db.QueryContext(ctx, `
		SELECT timestamp, log_level, category, operation_id, boot_session_id, message, details
		FROM ledger
		WHERE boot_session_id = ?
		ORDER BY timestamp ASC
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query session entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

// QueryRecent returns up to limit entries, newest first.
func (b *DuckDBBackend) QueryRecent(ctx context.Context, limit int, category string) ([]model.LogEntry, error) {
	query := `
		SELECT timestamp, log_level, category, operation_id, boot_session_id, message, details
		FROM ledger`
	args := []any{}
	if category != "" {
		query += ` WHERE category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY timestamp DESC LIMIT ?`
	args = append(args, limit)

	rows, err := b.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recent entries: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]model.LogEntry, error) {
	var entries []model.LogEntry
	for rows.Next() {
		var e model.LogEntry
		var sessionID sql.NullString
		var detailsJSON sql.NullString

		if err := rows.Scan(&e.Timestamp, &e.Level, &e.Category, &e.OperationID,
			&sessionID, &e.Message, &detailsJSON); err != nil {
			// Corrupt row: skip, never fatal.
			continue
		}
		e.SessionID = sessionID.String
		if detailsJSON.Valid && detailsJSON.String != "" && detailsJSON.String != "null" {
			if err := json.Unmarshal([]byte(detailsJSON.String), &e.Details); err != nil {
				e.Details = nil
			}
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
