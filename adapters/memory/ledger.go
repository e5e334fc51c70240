// Package memory keeps validation runs in process memory. It backs the CLI
// and the server when no database URL is configured.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"hoopval/domain/core"
	"hoopval/domain/verdict"
	"hoopval/ports"
)

// Ledger is a mutex-guarded run store
type Ledger struct {
	mu   sync.RWMutex
	runs map[core.RunID]verdict.Run
}

// NewLedger creates an empty in-memory ledger
func NewLedger() *Ledger {
	return &Ledger{runs: make(map[core.RunID]verdict.Run)}
}

var _ ports.LedgerPort = (*Ledger)(nil)

// SaveRun stores a copy of run; a run ID can be stored once
func (l *Ledger) SaveRun(ctx context.Context, run verdict.Run) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if run.ID == "" {
		return core.NewConfigurationError("run", "run ID is empty")
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.runs[run.ID]; exists {
		return core.NewConfigurationError("run", fmt.Sprintf("run %s is already stored", run.ID))
	}
	run.Records = append([]verdict.ValidationRecord(nil), run.Records...)
	l.runs[run.ID] = run
	return nil
}

// GetRun returns a copy of the stored run
func (l *Ledger) GetRun(ctx context.Context, runID core.RunID) (*verdict.Run, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	run, ok := l.runs[runID]
	if !ok {
		return nil, fmt.Errorf("%w %s", core.ErrRunNotFound, runID)
	}
	run.Records = append([]verdict.ValidationRecord(nil), run.Records...)
	return &run, nil
}

// ListRuns returns up to limit runs, most recently finished first
func (l *Ledger) ListRuns(ctx context.Context, limit int) ([]ports.RunSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.RLock()
	summaries := make([]ports.RunSummary, 0, len(l.runs))
	for _, run := range l.runs {
		summaries = append(summaries, ports.RunSummary{
			ID:          run.ID,
			Seed:        run.Seed,
			RecordCount: len(run.Records),
			FinishedAt:  run.FinishedAt,
		})
	}
	l.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		a, b := summaries[i].FinishedAt.Time(), summaries[j].FinishedAt.Time()
		if !a.Equal(b) {
			return a.After(b)
		}
		return summaries[i].ID > summaries[j].ID
	})
	if limit > 0 && len(summaries) > limit {
		summaries = summaries[:limit]
	}
	return summaries, nil
}
