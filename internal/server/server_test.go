package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wallet-credit-lab/internal/domain"
	"wallet-credit-lab/internal/logging"
	"wallet-credit-lab/internal/storage/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *memory.ScoreStore) {
	t.Helper()
	scores := memory.NewScoreStore()
	srv := New(Options{Scores: scores, Logger: logging.Nop()})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, scores
}

func getJSON(t *testing.T, url string, dst any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if dst != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
	}
	return resp.StatusCode
}

func TestServer_ScoresBeforeFirstRun(t *testing.T) {
	ts, _ := newTestServer(t)

	var body errorResponse
	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/scores", &body))
	assert.NotEmpty(t, body.Error)
}

func TestServer_Scores(t *testing.T) {
	ts, scores := newTestServer(t)
	ctx := context.Background()

	created := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, scores.InsertRun(ctx, &domain.ScoreRun{
		RunID: "run-1", CreatedAt: created.UnixMilli(), Scores: map[string]int{"0xa": 0, "0xb": 1000},
	}))

	var body ScoresResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/scores", &body))
	assert.Equal(t, "run-1", body.RunID)
	assert.True(t, created.Equal(body.CreatedAt))
	assert.Equal(t, map[string]int{"0xa": 0, "0xb": 1000}, body.Scores)
}

func TestServer_WalletScore(t *testing.T) {
	ts, scores := newTestServer(t)
	ctx := context.Background()

	require.NoError(t, scores.InsertRun(ctx, &domain.ScoreRun{
		RunID: "run-1", CreatedAt: 1000, Scores: map[string]int{"0xa": 350, "0xb": 900},
	}))
	require.NoError(t, scores.InsertRun(ctx, &domain.ScoreRun{
		RunID: "run-2", CreatedAt: 2000, Scores: map[string]int{"0xa": 650},
	}))

	var a WalletScoreResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/scores/0xa", &a))
	assert.Equal(t, WalletScoreResponse{
		Wallet: "0xa", Score: 650, RiskBand: "medium", RunID: "run-2", CreatedAt: time.UnixMilli(2000).UTC(),
	}, a)

	var b WalletScoreResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/scores/0xb", &b))
	assert.Equal(t, "run-1", b.RunID)
	assert.Equal(t, "low", b.RiskBand)

	assert.Equal(t, http.StatusNotFound, getJSON(t, ts.URL+"/scores/0xmissing", nil))
}

func TestServer_Health(t *testing.T) {
	ts, _ := newTestServer(t)

	var body HealthResponse
	require.Equal(t, http.StatusOK, getJSON(t, ts.URL+"/healthz", &body))
	assert.Equal(t, "ok", body.Status)
	assert.Nil(t, body.Rescorer)
}

func TestServer_Metrics(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_MethodNotAllowed(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/scores", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
