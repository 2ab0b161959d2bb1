package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"liquidityDesk/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS flow_steps (
	id          BIGSERIAL PRIMARY KEY,
	flow_id     TEXT        NOT NULL,
	owner       TEXT        NOT NULL,
	operation   TEXT        NOT NULL,
	step        TEXT        NOT NULL,
	status      TEXT        NOT NULL,
	tx_hash     TEXT,
	error       TEXT,
	recorded_at TIMESTAMPTZ NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS flow_steps_flow_id_idx ON flow_steps (flow_id, recorded_at);
CREATE INDEX IF NOT EXISTS flow_steps_owner_idx ON flow_steps (owner, recorded_at);
CREATE UNIQUE INDEX IF NOT EXISTS flow_steps_record_uidx ON flow_steps (flow_id, step, status, recorded_at);
`

const insertStep = `
	INSERT INTO flow_steps (flow_id, owner, operation, step, status, tx_hash, error, recorded_at)
	VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), NULLIF($7, ''), $8)
	ON CONFLICT DO NOTHING
`

// Store provides Postgres persistence for the flow journal.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the journal table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("create flow_steps: %w", err)
	}
	return nil
}

// Append inserts one step record.
func (s *Store) Append(ctx context.Context, rec model.StepRecord) error {
	_, err := s.pool.Exec(ctx, insertStep, stepArgs(rec)...)
	if err != nil {
		return fmt.Errorf("insert flow step: %w", err)
	}
	return nil
}

// AppendBatch inserts records in one round trip. Records already stored
// are skipped.
func (s *Store) AppendBatch(ctx context.Context, recs []model.StepRecord) error {
	if len(recs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range recs {
		batch.Queue(insertStep, stepArgs(rec)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for range recs {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("insert flow step: %w", err)
		}
	}
	return nil
}

// Steps returns the records of flowID in recording order.
func (s *Store) Steps(ctx context.Context, flowID string) ([]model.StepRecord, error) {
	if flowID == "" {
		return nil, fmt.Errorf("flow id required")
	}
	rows, err := s.pool.Query(ctx, `
		SELECT flow_id, owner, operation, step, status, COALESCE(tx_hash, ''), COALESCE(error, ''), recorded_at
		FROM flow_steps WHERE flow_id = $1 ORDER BY recorded_at, id
	`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.StepRecord
	for rows.Next() {
		var (
			rec       model.StepRecord
			operation string
			status    string
		)
		if err := rows.Scan(&rec.FlowID, &rec.Owner, &operation, &rec.Step, &status, &rec.TxHash, &rec.Error, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.Operation = model.Operation(operation)
		rec.Status = model.StepStatus(status)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func stepArgs(rec model.StepRecord) []any {
	recordedAt := rec.RecordedAt
	if recordedAt.IsZero() {
		recordedAt = time.Now().UTC()
	}
	return []any{
		rec.FlowID,
		rec.Owner,
		string(rec.Operation),
		rec.Step,
		string(rec.Status),
		rec.TxHash,
		rec.Error,
		recordedAt,
	}
}
