// Package sqlite persists audit records in a SQLite database so they can be
// queried after the process exits.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/Sentinel-Gate/hrgate/internal/domain/audit"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed-width so timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// AuditStore implements audit.Store and audit.Querier on SQLite.
type AuditStore struct {
	db *sql.DB
}

// OpenAuditStore opens (or creates) the database at dsn, enables WAL and
// creates the schema.
func OpenAuditStore(dsn string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite audit: open: %w", err)
	}
	// A single connection serializes writers; WAL keeps readers unblocked.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite audit: set WAL mode: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite audit: create schema: %w", err)
	}
	return &AuditStore{db: db}, nil
}

// Append inserts records in one transaction. Records without an ID get one.
func (s *AuditStore) Append(ctx context.Context, records ...audit.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite audit: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO audit_records (id, timestamp, request_id, transport, identity_id, identity_name,
		 tool_name, tool_arguments, decision, rule, outcome, error_kind, latency_us)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("sqlite audit: prepare: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		if r.ID == "" {
			r.ID = uuid.NewString()
		}
		args, err := json.Marshal(r.ToolArguments)
		if err != nil {
			return fmt.Errorf("sqlite audit: marshal arguments: %w", err)
		}
		if _, err := stmt.ExecContext(ctx,
			r.ID,
			r.Timestamp.UTC().Format(timeLayout),
			r.RequestID,
			r.Transport,
			r.IdentityID,
			r.IdentityName,
			r.ToolName,
			string(args),
			r.Decision,
			r.Rule,
			r.Outcome,
			r.ErrorKind,
			r.LatencyMicros,
		); err != nil {
			return fmt.Errorf("sqlite audit: insert: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite audit: commit: %w", err)
	}
	return nil
}

// Query returns the newest records matching filter.
func (s *AuditStore) Query(ctx context.Context, filter audit.Filter) ([]audit.Record, error) {
	var (
		where []string
		args  []any
	)
	if !filter.Since.IsZero() {
		where = append(where, "timestamp >= ?")
		args = append(args, filter.Since.UTC().Format(timeLayout))
	}
	if filter.ToolName != "" {
		where = append(where, "tool_name = ?")
		args = append(args, filter.ToolName)
	}
	if filter.IdentityID != "" {
		where = append(where, "identity_id = ?")
		args = append(args, filter.IdentityID)
	}
	if filter.Decision != "" {
		where = append(where, "decision = ?")
		args = append(args, filter.Decision)
	}

	query := `SELECT id, timestamp, request_id, transport, identity_id, identity_name,
	          tool_name, tool_arguments, decision, rule, outcome, error_kind, latency_us
	          FROM audit_records`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY timestamp DESC, rowid DESC LIMIT ?"
	args = append(args, filter.EffectiveLimit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite audit: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Record
	for rows.Next() {
		var (
			r        audit.Record
			ts, argv string
		)
		if err := rows.Scan(&r.ID, &ts, &r.RequestID, &r.Transport, &r.IdentityID, &r.IdentityName,
			&r.ToolName, &argv, &r.Decision, &r.Rule, &r.Outcome, &r.ErrorKind, &r.LatencyMicros); err != nil {
			return nil, fmt.Errorf("sqlite audit: scan: %w", err)
		}
		if r.Timestamp, err = time.Parse(timeLayout, ts); err != nil {
			return nil, fmt.Errorf("sqlite audit: parse timestamp %q: %w", ts, err)
		}
		if argv != "" && argv != "null" {
			if err := json.Unmarshal([]byte(argv), &r.ToolArguments); err != nil {
				return nil, fmt.Errorf("sqlite audit: decode arguments: %w", err)
			}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Flush is a no-op: every Append commits before returning.
func (s *AuditStore) Flush(context.Context) error { return nil }

// Close closes the database.
func (s *AuditStore) Close() error {
	return s.db.Close()
}

var (
	_ audit.Store   = (*AuditStore)(nil)
	_ audit.Querier = (*AuditStore)(nil)
)
