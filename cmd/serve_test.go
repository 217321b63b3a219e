package cmd

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/ka/internal/api"
	"github.com/joescharf/ka/internal/daemon"
	"github.com/joescharf/ka/internal/models"
	"github.com/joescharf/ka/internal/search"
	"github.com/joescharf/ka/internal/sessions"
)

func TestPidFile_Path(t *testing.T) {
	dir := testEnv(t)

	pf := pidFile()
	expected := filepath.Join(dir, "ka-serve.pid")
	assert.Equal(t, expected, pf.Path)
}

func TestServeLogPath(t *testing.T) {
	dir := testEnv(t)

	logPath := serveLogPath()
	expected := filepath.Join(dir, "ka-serve.log")
	assert.Equal(t, expected, logPath)
}

func TestServeStatusRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so status should show "not running" without error.
	err := serveStatusRun()
	assert.NoError(t, err)
}

func TestServeStopRun_NotRunning(t *testing.T) {
	testEnv(t)

	// No PID file exists, so stop should return an error.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
}

func TestServeStartRun_AlreadyRunning(t *testing.T) {
	dir := testEnv(t)

	// Write a PID file for the current process (which is alive).
	pf := daemon.NewPIDFile(filepath.Join(dir, "ka-serve.pid"))
	require.NoError(t, pf.Write())
	t.Cleanup(func() { _ = os.Remove(pf.Path) })

	err := serveStartRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already running")
}

func TestServeStatusRun_StalePIDFile(t *testing.T) {
	dir := testEnv(t)

	pf := daemon.NewPIDFile(filepath.Join(dir, "ka-serve.pid"))
	require.NoError(t, pf.WritePID(99999999))

	assert.NoError(t, serveStatusRun())

	// Stop clears the stale file and still reports not running.
	err := serveStopRun()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not running")
	_, statErr := os.Stat(pf.Path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestNewServeHandler(t *testing.T) {
	testEnv(t)

	client := search.ClientFunc(func(context.Context, models.SearchMode, string, []models.Message) (*models.SearchResult, error) {
		return &models.SearchResult{Summary: "ok", Sources: []models.Source{}}, nil
	})
	mgr := sessions.NewManager(sessions.Config{Client: client, DefaultMode: models.SearchModeInternal})
	handler, err := newServeHandler(api.NewServer(mgr, nil, nil, "test"))
	require.NoError(t, err)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/health")
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	resp2, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", strings.NewReader(`{"mode":"external"}`))
	require.NoError(t, err)
	defer func() { _ = resp2.Body.Close() }()
	require.Equal(t, http.StatusCreated, resp2.StatusCode)
	var created struct {
		ID    string `json:"id"`
		State struct {
			Mode string `json:"mode"`
		} `json:"state"`
	}
	require.NoError(t, json.NewDecoder(resp2.Body).Decode(&created))
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, "external", created.State.Mode)

	resp3, err := http.Get(srv.URL + "/")
	require.NoError(t, err)
	defer func() { _ = resp3.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp3.StatusCode)
	assert.Contains(t, resp3.Header.Get("Content-Type"), "text/html")

	resp4, err := http.Get(srv.URL + "/api/v1/unknown")
	require.NoError(t, err)
	defer func() { _ = resp4.Body.Close() }()
	assert.Equal(t, http.StatusNotFound, resp4.StatusCode)
}
