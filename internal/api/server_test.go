package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collectarr/collectarr/internal/config"
	"github.com/collectarr/collectarr/internal/reconciler"
)

func TestHealthEndpoint(t *testing.T) {
	s := NewServer(config.ServerConfig{}, &Status{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestStatusEndpoint(t *testing.T) {
	status := &Status{}
	s := NewServer(config.ServerConfig{}, status, zerolog.Nop())

	// Before any pass only the version is reported.
	req := httptest.NewRequest(http.MethodGet, "/api/status", nil)
	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotContains(t, resp, "last_run")

	status.SetSummary(reconciler.Summary{RunID: "run-1", Added: 3})
	status.SetNextRun(time.Now().Add(time.Hour))

	rec = httptest.NewRecorder()
	s.echo.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var after struct {
		LastRun   *reconciler.Summary `json:"last_run"`
		NextRunAt *time.Time          `json:"next_run_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &after))
	require.NotNil(t, after.LastRun)
	assert.Equal(t, "run-1", after.LastRun.RunID)
	assert.Equal(t, 3, after.LastRun.Added)
	require.NotNil(t, after.NextRunAt)
}
