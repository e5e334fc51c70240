// Package postgres stores validation runs in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"hoopval/domain/core"
	"hoopval/domain/verdict"
	apperrors "hoopval/internal/errors"
	"hoopval/ports"
)

// uniqueViolation is the SQLSTATE for a duplicate primary key
const uniqueViolation = "23505"

// Open connects to url with the lib/pq driver and applies pool limits
func Open(ctx context.Context, url string, maxOpen, maxIdle int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", url)
	if err != nil {
		return nil, apperrors.DatabaseError("connect", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxIdleTime(5 * time.Minute)
	return db, nil
}

// LedgerRepository implements ports.LedgerPort on two tables: one row per
// run and one JSONB row per record
type LedgerRepository struct {
	db *sqlx.DB
}

// NewLedgerRepository creates a new PostgreSQL ledger
func NewLedgerRepository(db *sqlx.DB) ports.LedgerPort {
	return &LedgerRepository{db: db}
}

type runRow struct {
	ID          string    `db:"id"`
	Seed        int64     `db:"seed"`
	RecordCount int       `db:"record_count"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
}

// SaveRun stores the run and all its records in one transaction
func (r *LedgerRepository) SaveRun(ctx context.Context, run verdict.Run) error {
	payloads, err := encodeRecords(run.Records)
	if err != nil {
		return apperrors.Wrap(err, "encode records")
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.DatabaseError("begin transaction", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO validation_runs (id, seed, record_count, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5)
	`, run.ID.String(), run.Seed, len(run.Records), run.StartedAt.Time(), run.FinishedAt.Time())
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return core.NewConfigurationError("run", fmt.Sprintf("run %s is already stored", run.ID))
		}
		return apperrors.DatabaseError("insert run", err)
	}

	for i, rec := range run.Records {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO validation_records (run_id, seq, metric, entity, payload, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, run.ID.String(), i, rec.Key.Metric.String(), rec.Key.Entity.String(), payloads[i], rec.ComputedAt.Time())
		if err != nil {
			return apperrors.DatabaseError(fmt.Sprintf("insert record %s", rec.Key), err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperrors.DatabaseError("commit run", err)
	}
	return nil
}

// GetRun loads a run with its records in stored order
func (r *LedgerRepository) GetRun(ctx context.Context, runID core.RunID) (*verdict.Run, error) {
	var row runRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, seed, record_count, started_at, finished_at
		FROM validation_runs
		WHERE id = $1
	`, runID.String())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w %s", core.ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, apperrors.DatabaseError("get run", err)
	}

	var payloads []string
	err = r.db.SelectContext(ctx, &payloads, `
		SELECT payload FROM validation_records
		WHERE run_id = $1
		ORDER BY seq
	`, runID.String())
	if err != nil {
		return nil, apperrors.DatabaseError("get records", err)
	}

	records, err := decodeRecords(payloads)
	if err != nil {
		return nil, apperrors.Wrap(err, "decode records")
	}

	return &verdict.Run{
		ID:         core.RunID(row.ID),
		Seed:       row.Seed,
		Records:    records,
		StartedAt:  core.NewTimestamp(row.StartedAt.UTC()),
		FinishedAt: core.NewTimestamp(row.FinishedAt.UTC()),
	}, nil
}

// ListRuns returns the most recently finished runs first
func (r *LedgerRepository) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	var rows []runRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, seed, record_count, started_at, finished_at
		FROM validation_runs
		ORDER BY finished_at DESC, id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, apperrors.DatabaseError("list runs", err)
	}

	summaries := make([]ports.RunSummary, len(rows))
	for i, row := range rows {
		summaries[i] = ports.RunSummary{
			ID:          core.RunID(row.ID),
			Seed:        row.Seed,
			RecordCount: row.RecordCount,
			FinishedAt:  core.NewTimestamp(row.FinishedAt.UTC()),
		}
	}
	return summaries, nil
}

// encodeRecords renders each record as JSON text; lib/pq sends []byte as
// bytea, so JSONB parameters go over as strings
func encodeRecords(records []verdict.ValidationRecord) ([]string, error) {
	out := make([]string, len(records))
	for i, rec := range records {
		data, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("record %s: %w", rec.Key, err)
		}
		out[i] = string(data)
	}
	return out, nil
}

func decodeRecords(payloads []string) ([]verdict.ValidationRecord, error) {
	records := make([]verdict.ValidationRecord, len(payloads))
	for i, p := range payloads {
		if err := json.Unmarshal([]byte(p), &records[i]); err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
	}
	return records, nil
}
