package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/domain/core"
	"hoopval/domain/verdict"
)

func run(id string, finished time.Time, records int) verdict.Run {
	r := verdict.Run{
		ID:         core.RunID(id),
		Seed:       42,
		StartedAt:  core.NewTimestamp(finished.Add(-time.Second)),
		FinishedAt: core.NewTimestamp(finished),
	}
	for i := 0; i < records; i++ {
		r.Records = append(r.Records, verdict.ValidationRecord{RunID: r.ID, Key: core.SeriesKey{Metric: "pts"}})
	}
	return r
}

func TestLedger_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.SaveRun(ctx, run("a", base, 2)))

	got, err := l.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, got.Records, 2)
	assert.Equal(t, int64(42), got.Seed)

	// returned records are a copy
	got.Records[0].Aggregator = "median"
	again, err := l.GetRun(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, again.Records[0].Aggregator)
}

func TestLedger_Errors(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	_, err := l.GetRun(ctx, "missing")
	assert.True(t, core.IsNotFoundError(err))

	require.NoError(t, l.SaveRun(ctx, run("a", base, 1)))
	assert.True(t, core.IsConfigurationError(l.SaveRun(ctx, run("a", base, 1))))
	assert.True(t, core.IsConfigurationError(l.SaveRun(ctx, run("", base, 1))))

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, l.SaveRun(cancelled, run("b", base, 1)), context.Canceled)
	_, err = l.ListRuns(cancelled, 10)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLedger_ListRuns(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	base := time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.SaveRun(ctx, run("old", base, 1)))
	require.NoError(t, l.SaveRun(ctx, run("new", base.Add(time.Hour), 3)))
	require.NoError(t, l.SaveRun(ctx, run("mid", base.Add(time.Minute), 2)))

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, core.RunID("new"), all[0].ID)
	assert.Equal(t, 3, all[0].RecordCount)
	assert.Equal(t, core.RunID("old"), all[2].ID)

	limited, err := l.ListRuns(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestLedger_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, l.SaveRun(ctx, run(core.NewRunID().String(), time.Now(), 1)))
		}()
	}
	wg.Wait()

	all, err := l.ListRuns(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 16)
}
