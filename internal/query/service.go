package query

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Service provides read-only access to the audit event log. All
// responses carry as_of_sequence so callers can reason about freshness
// relative to the engine's live sequence.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// AuditEvent is one persisted audit-log row for API consumers.
type AuditEvent struct {
	Sequence  uint64          `json:"sequence"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// EventFilter narrows an audit-log page. Zero values mean "no filter";
// AfterSequence is a descending cursor.
type EventFilter struct {
	Kind          string
	Actor         string
	AfterSequence uint64
	Limit         int
}

// Events returns a page of audit events, newest first.
func (s *Service) Events(ctx context.Context, f EventFilter) ([]AuditEvent, error) {
	query := `
		SELECT sequence, kind, subject, actor, payload, timestamp
		FROM audit_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if f.Kind != "" {
		query += fmt.Sprintf(" AND kind = $%d", argIdx)
		args = append(args, f.Kind)
		argIdx++
	}
	if f.Actor != "" {
		query += fmt.Sprintf(" AND actor = $%d", argIdx)
		args = append(args, f.Actor)
		argIdx++
	}
	if f.AfterSequence > 0 {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, f.AfterSequence)
		argIdx++
	}

	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		if err := rows.Scan(&e.Sequence, &e.Kind, &e.Subject, &e.Actor, &e.Payload, &e.Timestamp); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// ActorHistory returns one actor's audit trail, newest first.
func (s *Service) ActorHistory(ctx context.Context, actor string, limit int, afterSequence uint64) ([]AuditEvent, error) {
	return s.Events(ctx, EventFilter{
		Actor:         actor,
		Limit:         limit,
		AfterSequence: afterSequence,
	})
}

// LastSequence returns the highest persisted audit sequence, the
// durability watermark relative to the engine's live sequence.
func (s *Service) LastSequence(ctx context.Context) (uint64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM audit_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return uint64(seq.Int64), nil
}

// KindCounts returns per-kind event totals for the admin surface.
func (s *Service) KindCounts(ctx context.Context) (map[string]uint64, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT kind, COUNT(*) FROM audit_log.events GROUP BY kind
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]uint64)
	for rows.Next() {
		var kind string
		var count uint64
		if err := rows.Scan(&kind, &count); err != nil {
			return nil, err
		}
		counts[kind] = count
	}
	return counts, rows.Err()
}
