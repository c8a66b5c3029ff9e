package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"RugShield/internal/event"
)

// AuditLogWriter writes audit events to Postgres using multi-row
// INSERT. Writes are idempotent on sequence, so a retried batch never
// duplicates rows.
type AuditLogWriter struct {
	db *sql.DB
}

// EventRow represents a row in audit_log.events.
type EventRow struct {
	Sequence  uint64
	Kind      string
	Subject   string
	Actor     string
	Payload   []byte // JSON-encoded event payload
	Timestamp time.Time
}

// RowFromEnvelope flattens an engine envelope into its storage row.
func RowFromEnvelope(env *event.Envelope) EventRow {
	return EventRow{
		Sequence:  env.Sequence,
		Kind:      env.Kind.String(),
		Subject:   env.Kind.Subject(),
		Actor:     env.Actor,
		Payload:   MarshalPayload(env.Payload),
		Timestamp: env.Timestamp,
	}
}

func NewAuditLogWriter(db *sql.DB) *AuditLogWriter {
	return &AuditLogWriter{db: db}
}

// WriteEventBatch writes a batch of events inside the supplied
// transaction.
func (w *AuditLogWriter) WriteEventBatch(ctx context.Context, tx *sql.Tx, events []EventRow) error {
	if len(events) == 0 {
		return nil
	}

	query := `INSERT INTO audit_log.events
		(sequence, kind, subject, actor, payload, timestamp)
		VALUES `

	values := make([]string, 0, len(events))
	args := make([]interface{}, 0, len(events)*6)

	for i, e := range events {
		base := i * 6
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6,
		))
		args = append(args, e.Sequence, e.Kind, e.Subject, e.Actor, e.Payload, e.Timestamp)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// MarshalPayload JSON-encodes an event payload for storage.
func MarshalPayload(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		log.Printf("WARN: failed to marshal payload: %v", err)
		return []byte("{}")
	}
	return data
}
