// Package store persists one row per completed request for pass-through
// usage accounting.
//
// DESIGN: SQLite via modernc.org/sqlite (no cgo), WAL mode, single writer.
// Writes happen after the pipeline returns, never on the streaming path, so
// a slow disk cannot stall a response. Optional: a nil *RequestLog is a
// no-op recorder.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Record is one completed request.
type Record struct {
	RequestID        string
	Provider         string
	Model            string
	Mode             string
	StatusCode       int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	DurationMS       int64
	ErrorMessage     string
	CreatedAt        time.Time
}

// RequestLog is the SQLite-backed request log.
type RequestLog struct {
	db *sql.DB
}

// Open opens (creating if needed) the request log at path.
func Open(path string) (*RequestLog, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open request log: %w", err)
	}

	// SQLite works best with a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	rl := &RequestLog{db: db}
	if err := rl.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create request log schema: %w", err)
	}
	return rl, nil
}

func (rl *RequestLog) createSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS request_logs (
		id                TEXT PRIMARY KEY,
		provider          TEXT NOT NULL,
		model             TEXT NOT NULL,
		mode              TEXT NOT NULL,
		status_code       INTEGER,
		prompt_tokens     INTEGER DEFAULT 0,
		completion_tokens INTEGER DEFAULT 0,
		total_tokens      INTEGER DEFAULT 0,
		duration_ms       INTEGER,
		error_message     TEXT,
		created_at        DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_logs_created ON request_logs(created_at);
	CREATE INDEX IF NOT EXISTS idx_logs_provider ON request_logs(provider);
	CREATE INDEX IF NOT EXISTS idx_logs_model ON request_logs(model);
	`
	_, err := rl.db.Exec(schema)
	return err
}

// Insert records one completed request. Nil receiver is a no-op.
func (rl *RequestLog) Insert(ctx context.Context, rec *Record) error {
	if rl == nil {
		return nil
	}
	_, err := rl.db.ExecContext(ctx, `
		INSERT INTO request_logs
			(id, provider, model, mode, status_code, prompt_tokens,
			 completion_tokens, total_tokens, duration_ms, error_message)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RequestID, rec.Provider, rec.Model, rec.Mode, rec.StatusCode,
		rec.PromptTokens, rec.CompletionTokens, rec.TotalTokens,
		rec.DurationMS, rec.ErrorMessage,
	)
	if err != nil {
		return fmt.Errorf("failed to insert request log row: %w", err)
	}
	return nil
}

// Recent returns up to limit records, newest first.
func (rl *RequestLog) Recent(ctx context.Context, limit int) ([]Record, error) {
	if rl == nil {
		return nil, nil
	}
	rows, err := rl.db.QueryContext(ctx, `
		SELECT id, provider, model, mode, status_code, prompt_tokens,
		       completion_tokens, total_tokens, duration_ms,
		       COALESCE(error_message, ''), created_at
		FROM request_logs
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query request log: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(
			&rec.RequestID, &rec.Provider, &rec.Model, &rec.Mode,
			&rec.StatusCode, &rec.PromptTokens, &rec.CompletionTokens,
			&rec.TotalTokens, &rec.DurationMS, &rec.ErrorMessage, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan request log row: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close closes the underlying database. Nil receiver is a no-op.
func (rl *RequestLog) Close() error {
	if rl == nil {
		return nil
	}
	return rl.db.Close()
}
