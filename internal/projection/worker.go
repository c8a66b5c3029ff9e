package projection

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

const workerID = "main"

// Worker tails the audit event log and maintains queryable read-model
// tables (policies, staking accounts, proposals). It is eventually
// consistent: the watermark records the last projected sequence, and a
// crash simply resumes from there. Projections can always be rebuilt
// from the event log.
type Worker struct {
	db           *sql.DB
	pollInterval time.Duration
	batchSize    int
	log          zerolog.Logger
}

func NewWorker(db *sql.DB, pollInterval time.Duration, batchSize int, log zerolog.Logger) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if batchSize <= 0 {
		batchSize = 500
	}
	return &Worker{
		db:           db,
		pollInterval: pollInterval,
		batchSize:    batchSize,
		log:          log,
	}
}

// Run polls the audit log until ctx is cancelled. Projection failures
// are logged and retried on the next poll; they never stop the worker.
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := w.projectBatch(ctx); err != nil {
				w.log.Warn().Err(err).Msg("projection batch failed")
			}
		}
	}
}

// projectBatch applies one page of events past the watermark inside a
// single transaction, so the watermark never runs ahead of the tables.
func (w *Worker) projectBatch(ctx context.Context) error {
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	watermark, err := loadWatermark(ctx, tx)
	if err != nil {
		return fmt.Errorf("load watermark: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT sequence, kind, actor, payload
		FROM audit_log.events
		WHERE sequence > $1
		ORDER BY sequence
		LIMIT $2
	`, watermark, w.batchSize)
	if err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	var batch []rawEvent
	for rows.Next() {
		var e rawEvent
		if err := rows.Scan(&e.Sequence, &e.Kind, &e.Actor, &e.Payload); err != nil {
			rows.Close()
			return fmt.Errorf("scan event: %w", err)
		}
		batch = append(batch, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}

	for _, e := range batch {
		if err := applyEvent(ctx, tx, e); err != nil {
			return fmt.Errorf("apply seq=%d kind=%s: %w", e.Sequence, e.Kind, err)
		}
	}

	last := batch[len(batch)-1].Sequence
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO projections.watermark (worker_id, last_sequence, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (worker_id) DO UPDATE SET last_sequence = $2, updated_at = NOW()
	`, workerID, last); err != nil {
		return fmt.Errorf("watermark update: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	w.log.Debug().
		Int("events", len(batch)).
		Uint64("watermark", last).
		Msg("projection batch applied")
	return nil
}

func loadWatermark(ctx context.Context, tx *sql.Tx) (uint64, error) {
	var seq sql.NullInt64
	err := tx.QueryRowContext(ctx, `
		SELECT last_sequence FROM projections.watermark WHERE worker_id = $1
	`, workerID).Scan(&seq)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return uint64(seq.Int64), nil
}

// Rebuild truncates the read-model tables and resets the watermark.
// The next poll replays the whole event log from sequence zero.
func Rebuild(ctx context.Context, db *sql.DB) error {
	statements := []string{
		`TRUNCATE projections.policies`,
		`TRUNCATE projections.staking_accounts`,
		`TRUNCATE projections.proposals`,
		`DELETE FROM projections.watermark WHERE worker_id = 'main'`,
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild truncate: %w", err)
		}
	}
	return nil
}
