package ports

import (
	"context"

	"hoopval/domain/core"
	"hoopval/domain/verdict"
)

// LedgerWriterPort provides append-only write access to validation runs.
// Records are immutable once produced; a run is stored whole or not at all.
type LedgerWriterPort interface {
	SaveRun(ctx context.Context, run verdict.Run) error
}

// LedgerReaderPort provides read-only access to stored runs
type LedgerReaderPort interface {
	GetRun(ctx context.Context, runID core.RunID) (*verdict.Run, error)
	ListRuns(ctx context.Context, limit int) ([]RunSummary, error)
}

// RunSummary is a lightweight listing entry
type RunSummary struct {
	ID          core.RunID     `json:"id" db:"id"`
	Seed        int64          `json:"seed" db:"seed"`
	RecordCount int            `json:"record_count" db:"record_count"`
	FinishedAt  core.Timestamp `json:"finished_at" db:"-"`
}

// LedgerPort combines read and write access
type LedgerPort interface {
	LedgerWriterPort
	LedgerReaderPort
}
