// ABOUTME: Tool-call audit records and store methods
// ABOUTME: Records which identity invoked which tool, how it ended, and how long it took

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is how a tool call ended.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeError   Outcome = "error"
)

// timeFormat is fixed-width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// ErrInvalidOutcome is returned when a record carries an unknown outcome.
var ErrInvalidOutcome = errors.New("invalid outcome")

// ToolCall is one audited tools/call. Arguments and results are not stored.
type ToolCall struct {
	ID           string        // request ID, generated if empty
	SessionID    string        // gateway session that made the call
	Subject      string        // provider subject of the session
	ToolName     string        // tool that was invoked
	Transport    string        // "http" or "sse"
	Duration     time.Duration // adapter execution time
	Outcome      Outcome
	ErrorCode    int    // JSON-RPC error code, 0 on success
	ErrorMessage string // JSON-RPC error message, "" on success
	CreatedAt    time.Time
}

// ToolCallFilter narrows ListToolCalls. Zero fields match everything.
type ToolCallFilter struct {
	Since    *time.Time
	Subject  string
	ToolName string
	Outcome  Outcome
	Limit    int // default 100, max 1000
}

// RecordToolCall appends c to the audit log.
// Generates ID and CreatedAt if not set.
func (s *SQLiteStore) RecordToolCall(ctx context.Context, c ToolCall) error {
	if c.Outcome != OutcomeSuccess && c.Outcome != OutcomeError {
		return fmt.Errorf("%w: %q", ErrInvalidOutcome, c.Outcome)
	}
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}

	var errCode *int
	var errMsg *string
	if c.Outcome == OutcomeError {
		errCode = &c.ErrorCode
		errMsg = &c.ErrorMessage
	}

	query := `
		INSERT INTO tool_calls (call_id, session_id, subject, tool_name, transport, duration_ms, outcome, error_code, error_message, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		c.ID,
		c.SessionID,
		c.Subject,
		c.ToolName,
		c.Transport,
		c.Duration.Milliseconds(),
		string(c.Outcome),
		errCode,
		errMsg,
		c.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting tool call: %w", err)
	}

	s.logger.Debug("recorded tool call",
		"request_id", c.ID,
		"tool_name", c.ToolName,
		"outcome", c.Outcome,
	)
	return nil
}

// normalizeLimit applies default (100) and cap (1000) to a list limit.
func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return 100
	case limit > 1000:
		return 1000
	default:
		return limit
	}
}

// nullable maps "" onto a NULL query argument.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

const toolCallsQuery = `
	SELECT call_id, session_id, subject, tool_name, transport, duration_ms, outcome, error_code, error_message, created_at
	FROM tool_calls
	WHERE (? IS NULL OR created_at >= ?)
	  AND (? IS NULL OR subject = ?)
	  AND (? IS NULL OR tool_name = ?)
	  AND (? IS NULL OR outcome = ?)
	ORDER BY created_at DESC
	LIMIT ?
`

// ListToolCalls returns tool calls matching the filter, newest first.
func (s *SQLiteStore) ListToolCalls(ctx context.Context, f ToolCallFilter) ([]ToolCall, error) {
	var since *string
	if f.Since != nil {
		ts := f.Since.UTC().Format(timeFormat)
		since = &ts
	}
	subject := nullable(f.Subject)
	toolName := nullable(f.ToolName)
	outcome := nullable(string(f.Outcome))

	rows, err := s.db.QueryContext(ctx, toolCallsQuery,
		since, since,
		subject, subject,
		toolName, toolName,
		outcome, outcome,
		normalizeLimit(f.Limit),
	)
	if err != nil {
		return nil, fmt.Errorf("querying tool calls: %w", err)
	}
	defer rows.Close()

	var calls []ToolCall
	for rows.Next() {
		c, err := scanToolCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating tool calls: %w", err)
	}
	return calls, nil
}

// scanToolCall scans a row into a ToolCall.
func scanToolCall(scanner interface{ Scan(dest ...any) error }) (ToolCall, error) {
	var c ToolCall
	var outcome, created string
	var durationMS int64
	var errCode *int
	var errMsg *string

	if err := scanner.Scan(
		&c.ID,
		&c.SessionID,
		&c.Subject,
		&c.ToolName,
		&c.Transport,
		&durationMS,
		&outcome,
		&errCode,
		&errMsg,
		&created,
	); err != nil {
		return c, fmt.Errorf("scanning tool call: %w", err)
	}

	c.Outcome = Outcome(outcome)
	c.Duration = time.Duration(durationMS) * time.Millisecond
	if errCode != nil {
		c.ErrorCode = *errCode
	}
	if errMsg != nil {
		c.ErrorMessage = *errMsg
	}

	var err error
	c.CreatedAt, err = time.Parse(timeFormat, created)
	if err != nil {
		return c, fmt.Errorf("parsing created_at: %w", err)
	}
	return c, nil
}
