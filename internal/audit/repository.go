// Package audit records every command the bridge applies, with its outcome,
// in the command_audit table.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/starlink-mqtt-bridge/internal/field"
)

// Page size limits for List.
const (
	defaultLimit = 50
	maxLimit     = 200
)

// timeFormat is fixed-width so created_at sorts chronologically as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// CommandLog is one applied command.
type CommandLog struct {
	ID        string    `json:"id"`
	Field     string    `json:"field"`
	Requested string    `json:"requested"`
	Applied   *string   `json:"applied"`
	Success   bool      `json:"success"`
	Message   *string   `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter controls which command logs List returns.
type Filter struct {
	Field   string // optional: exact field path
	Success *bool  // optional: only successes or only failures
	Limit   int    // default 50, max 200
	Offset  int    // pagination offset
}

// ListResult contains a page of command logs.
type ListResult struct {
	Logs   []CommandLog `json:"logs"`
	Total  int          `json:"total"`
	Limit  int          `json:"limit"`
	Offset int          `json:"offset"`
}

// Repository defines the command audit operations.
type Repository interface {
	Create(ctx context.Context, log *CommandLog) error
	List(ctx context.Context, filter Filter) (*ListResult, error)
}

// SQLiteRepository stores command logs in SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a command audit repository.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Create inserts log. The ID and CreatedAt are generated if empty.
func (r *SQLiteRepository) Create(ctx context.Context, log *CommandLog) error {
	if log.ID == "" {
		log.ID = "cmd-" + uuid.NewString()
	}
	if log.CreatedAt.IsZero() {
		log.CreatedAt = time.Now()
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO command_audit (id, field, requested, applied, success, message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ID, log.Field, log.Requested, log.Applied, log.Success, log.Message,
		log.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting command log: %w", err)
	}
	return nil
}

// RecordCommand stores the outcome of one command on path.
func (r *SQLiteRepository) RecordCommand(ctx context.Context, path string, result field.Result, at time.Time) error {
	return r.Create(ctx, &CommandLog{
		Field:     path,
		Requested: result.Requested,
		Applied:   result.Applied,
		Success:   result.Success,
		Message:   result.Message,
		CreatedAt: at,
	})
}

// List returns command logs matching filter, most recent first.
func (r *SQLiteRepository) List(ctx context.Context, filter Filter) (*ListResult, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Limit > maxLimit {
		filter.Limit = maxLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	var conditions []string
	var args []any
	if filter.Field != "" {
		conditions = append(conditions, "field = ?")
		args = append(args, filter.Field)
	}
	if filter.Success != nil {
		conditions = append(conditions, "success = ?")
		args = append(args, *filter.Success)
	}
	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	countQuery := "SELECT COUNT(*) FROM command_audit " + where //nolint:gosec // WHERE built from parameterised conditions
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("counting command logs: %w", err)
	}

	query := "SELECT id, field, requested, applied, success, message, created_at FROM command_audit " + //nolint:gosec // WHERE built from parameterised conditions
		where + " ORDER BY created_at DESC, id LIMIT ? OFFSET ?"
	rows, err := r.db.QueryContext(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		return nil, fmt.Errorf("querying command logs: %w", err)
	}
	defer rows.Close()

	logs := []CommandLog{}
	for rows.Next() {
		var log CommandLog
		var applied, message sql.NullString
		var createdAt string
		if err := rows.Scan(&log.ID, &log.Field, &log.Requested, &applied, &log.Success, &message, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning command log: %w", err)
		}
		if applied.Valid {
			log.Applied = &applied.String
		}
		if message.Valid {
			log.Message = &message.String
		}
		log.CreatedAt, err = time.Parse(timeFormat, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing command log timestamp %q: %w", createdAt, err)
		}
		logs = append(logs, log)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating command logs: %w", err)
	}

	return &ListResult{Logs: logs, Total: total, Limit: filter.Limit, Offset: filter.Offset}, nil
}
