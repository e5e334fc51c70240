package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/domain/core"
	"hoopval/domain/verdict"
	apperrors "hoopval/internal/errors"
)

const testConfig = `
validation:
  bootstrap_iterations: 300
  shuffles: 499
logging:
  level: error
`

const testCatalog = `
entity_column: player
sequence_column: game
metrics:
  - name: pts
    column: pts
    phase: {column: period, pre: before, post: after}
    minimum_effect: 1
`

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// gamesCSV gives ana a clear +3 shift and leaves bo without any valid game
func gamesCSV() string {
	var b strings.Builder
	b.WriteString("player,game,period,pts\n")
	pre := []int{10, 11, 12, 10, 11, 12, 10, 11}
	for i, v := range pre {
		fmt.Fprintf(&b, "ana,%d,before,%d\n", i+1, v)
		fmt.Fprintf(&b, "ana,%d,after,%d\n", i+9, v+3)
	}
	b.WriteString("bo,1,before,DNP\nbo,2,after,DNP\n")
	return b.String()
}

type fixture struct {
	config, catalog, input string
}

func newFixture(t *testing.T) fixture {
	dir := t.TempDir()
	return fixture{
		config:  writeFile(t, dir, "hoopval.yaml", testConfig),
		catalog: writeFile(t, dir, "metrics.yaml", testCatalog),
		input:   writeFile(t, dir, "games.csv", gamesCSV()),
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestValidate_Markdown(t *testing.T) {
	f := newFixture(t)

	out, err := execute(t, "validate", "--config", f.config, "--catalog", f.catalog, "--input", f.input)
	require.NoError(t, err)
	assert.Contains(t, out, "# Validation run")
	assert.Contains(t, out, "## pts/ana")
	assert.Contains(t, out, "## pts/bo")
}

func TestValidate_JSONToFileWithSeed(t *testing.T) {
	f := newFixture(t)
	outPath := filepath.Join(t.TempDir(), "run.json")

	_, err := execute(t, "validate", "-c", f.config, "--catalog", f.catalog, "-i", f.input,
		"--format", "json", "--out", outPath, "--seed", "7")
	require.NoError(t, err)

	data, err := os.ReadFile(outPath)
	require.NoError(t, err)
	var run verdict.Run
	require.NoError(t, json.Unmarshal(data, &run))
	assert.Equal(t, int64(7), run.Seed)
	require.Len(t, run.Records, 2)
	assert.Equal(t, core.SeriesKey{Metric: "pts", Entity: "ana"}, run.Records[0].Key)
	require.NotNil(t, run.Records[0].Delta)
	assert.InDelta(t, 3.0, run.Records[0].Delta.PointEstimate, 1e-9)
	assert.True(t, run.Records[1].HasIssues())
}

func TestValidate_Strict(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "validate", "-c", f.config, "--catalog", f.catalog, "-i", f.input, "--strict")
	require.Error(t, err)
	assert.Equal(t, 3, exitCode(err))
}

func TestValidate_ConfigurationErrors(t *testing.T) {
	f := newFixture(t)

	_, err := execute(t, "validate", "-c", f.config, "--catalog", filepath.Join(t.TempDir(), "absent.yaml"), "-i", f.input)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "validate", "-c", f.config, "--catalog", f.catalog, "-i", f.input, "--format", "pdf")
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "validate", "-c", f.config, "--catalog", f.catalog)
	assert.Error(t, err)
}

func TestRuns_RequireDatabase(t *testing.T) {
	f := newFixture(t)
	t.Setenv("HOOPVAL_DATABASE_URL", "")

	_, err := execute(t, "runs", "list", "-c", f.config)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))

	_, err = execute(t, "runs", "show", "not-a-uuid", "-c", f.config)
	require.Error(t, err)
	assert.Equal(t, 2, exitCode(err))
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{core.NewConfigurationError("x", "bad"), 2},
		{apperrors.InvalidInput("bad"), 2},
		{core.NewInsufficientDataError("pts", 0, 1), 3},
		{core.ErrRunNotFound, 4},
		{apperrors.DatabaseError("connect", io.EOF), 1},
		{io.EOF, 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, exitCode(tt.err), tt.err.Error())
	}
}
