package api

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hoopval/adapters/memory"
	"hoopval/adapters/rng"
	"hoopval/domain/verdict"
	"hoopval/internal"
	"hoopval/internal/validation"
)

const shiftBody = `{"inputs": [{
	"metric": "pts",
	"entity": "p1",
	"pre":  [10, 11, 12, 10, 11, 12, 10, 11],
	"post": [13, 14, 15, 13, 14, 15, 13, 14]
}]}`

func newTestServer(t *testing.T, maxBody int64) (*httptest.Server, *memory.Ledger) {
	t.Helper()
	logger := internal.NewLoggerTo(io.Discard, internal.LogLevelError, false)

	cfg := validation.DefaultConfig()
	cfg.BootstrapIterations = 300
	cfg.Shuffles = 499
	pipeline, err := validation.NewPipeline(cfg, rng.NewSeededAdapter(), logger)
	require.NoError(t, err)

	ledger := memory.NewLedger()
	srv, err := NewServer(Options{
		Pipeline:     pipeline,
		RNG:          rng.NewSeededAdapter(),
		Ledger:       ledger,
		Logger:       logger,
		MaxBodyBytes: maxBody,
	})
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts, ledger
}

func post(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func get(t *testing.T, url string) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeError(t *testing.T, resp *http.Response) errorResponse {
	t.Helper()
	var body errorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestServer_CreateGetList(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	resp := post(t, ts.URL+"/v1/validations", shiftBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run verdict.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	require.Len(t, run.Records, 1)
	assert.Equal(t, int64(42), run.Seed)
	assert.Equal(t, "/v1/validations/"+run.ID.String(), resp.Header.Get("Location"))

	rec := run.Records[0]
	require.NotNil(t, rec.Delta)
	assert.InDelta(t, 3.0, rec.Delta.PointEstimate, 1e-9)
	require.NotNil(t, rec.Gates.Statistical)
	assert.True(t, *rec.Gates.Statistical)

	resp = get(t, ts.URL+"/v1/validations/"+run.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var stored verdict.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
	assert.Equal(t, run.ID, stored.ID)
	assert.Equal(t, rec.Level, stored.Records[0].Level)

	resp = get(t, ts.URL+"/v1/validations?limit=5")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var listing struct {
		Runs []struct {
			ID          string `json:"id"`
			RecordCount int    `json:"record_count"`
		} `json:"runs"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&listing))
	require.Len(t, listing.Runs, 1)
	assert.Equal(t, run.ID.String(), listing.Runs[0].ID)
	assert.Equal(t, 1, listing.Runs[0].RecordCount)
}

func TestServer_Formats(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	resp := post(t, ts.URL+"/v1/validations?format=markdown", shiftBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/markdown")
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Validation run")
	assert.Contains(t, string(body), "## pts/p1")

	resp = post(t, ts.URL+"/v1/validations?format=html", shiftBody)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")

	resp = post(t, ts.URL+"/v1/validations?format=pdf", shiftBody)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_INPUT", decodeError(t, resp).Error.Code)
}

func TestServer_SeedOverride(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	body := strings.Replace(shiftBody, `{"inputs"`, `{"seed": 7, "inputs"`, 1)
	resp := post(t, ts.URL+"/v1/validations", body)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var run verdict.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	assert.Equal(t, int64(7), run.Seed)
}

func TestServer_Errors(t *testing.T) {
	ts, ledger := newTestServer(t, 512)

	tests := []struct {
		name   string
		do     func() *http.Response
		status int
		code   string
	}{
		{"malformed json", func() *http.Response { return post(t, ts.URL+"/v1/validations", "{") }, http.StatusBadRequest, "INVALID_INPUT"},
		{"no inputs", func() *http.Response { return post(t, ts.URL+"/v1/validations", `{"inputs": []}`) }, http.StatusBadRequest, "CONFIG_INVALID"},
		{"unknown aggregator", func() *http.Response {
			return post(t, ts.URL+"/v1/validations", `{"inputs": [{"metric": "pts", "aggregator": "mode", "values": [1, 2]}]}`)
		}, http.StatusBadRequest, "CONFIG_INVALID"},
		{"body too large", func() *http.Response {
			return post(t, ts.URL+"/v1/validations", `{"inputs": [{"metric": "pts", "values": [`+strings.Repeat("1, ", 400)+`1]}]}`)
		}, http.StatusBadRequest, "INVALID_INPUT"},
		{"bad run id", func() *http.Response { return get(t, ts.URL+"/v1/validations/not-a-uuid") }, http.StatusBadRequest, "INVALID_INPUT"},
		{"unknown run", func() *http.Response {
			return get(t, ts.URL+"/v1/validations/0190f0a4-0000-7000-8000-000000000009")
		}, http.StatusNotFound, "NOT_FOUND"},
		{"bad limit", func() *http.Response { return get(t, ts.URL+"/v1/validations?limit=0") }, http.StatusBadRequest, "INVALID_INPUT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := tt.do()
			assert.Equal(t, tt.status, resp.StatusCode)
			assert.Equal(t, tt.code, decodeError(t, resp).Error.Code)
		})
	}

	// rejected requests store nothing
	runs, err := ledger.ListRuns(t.Context(), 0)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestServer_HealthAndMetrics(t *testing.T) {
	ts, _ := newTestServer(t, 0)

	resp := get(t, ts.URL+"/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	post(t, ts.URL+"/v1/validations", shiftBody)

	resp = get(t, ts.URL+"/metrics")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "hoopval_runs_total")
}

func TestNewServer_RequiresDependencies(t *testing.T) {
	_, err := NewServer(Options{})
	assert.Error(t, err)
}
