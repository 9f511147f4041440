package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gomantics/repochat/config"
	"github.com/gomantics/repochat/internal/api/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Cleanup(func() {
		configPath, serverAddr, jsonOutput = "", "", false
		_ = config.Load("")
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestConfigInitAndCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "repochat.toml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Wrote")

	_, err = execute(t, "config", "init", path)
	assert.ErrorContains(t, err, "already exists")

	out, err = execute(t, "config", "check", path)
	require.NoError(t, err)
	assert.Contains(t, out, "is valid")

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0)
	require.NoError(t, err)
	_, err = f.WriteString("\n[bogus]\nkey = 1\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	out, err = execute(t, "config", "check", path)
	assert.ErrorContains(t, err, "unknown key")
	assert.Contains(t, out, "bogus.key")
}

func TestRepoList(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/repositories", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(repositories.ListResponse{
			Repositories: []repositories.Repository{
				{ID: "r1", Source: "/src/a", Branch: "main", State: "active"},
				{ID: "r2", Source: "/src/b", State: "error", LastError: "clone failed\nexit 128"},
			},
			Total: 2,
		})
	}))
	defer srv.Close()

	out, err := execute(t, "--addr", srv.URL, "repo", "list")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.Contains(t, lines[1], "/src/a@main")
	assert.Contains(t, lines[2], "clone failed")
	assert.NotContains(t, out, "exit 128")

	out, err = execute(t, "--addr", srv.URL, "--json", "repo", "list")
	require.NoError(t, err)
	var decoded []repositories.Repository
	require.NoError(t, json.Unmarshal([]byte(out), &decoded))
	assert.Len(t, decoded, 2)
}

func TestOneLine(t *testing.T) {
	assert.Equal(t, "a", oneLine("a\nb"))
	assert.Len(t, oneLine(strings.Repeat("x", 100)), 60)
	assert.Equal(t, "-", formatTime(nil))
}

func TestRepoAddMany(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/repositories/batch", r.URL.Path)
		var req repositories.BatchCreateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Repositories, 3)
		assert.Equal(t, "dev", req.Repositories[2].Branch)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(repositories.BatchResponse{
			Results: []repositories.BatchItem{
				{Source: "/src/a", Status: http.StatusCreated, Repository: &repositories.Repository{ID: "r1"}},
				{Source: "/src/a", Status: http.StatusConflict, Error: "repository already exists"},
				{Source: "ftp://x", Status: http.StatusBadRequest, Error: "invalid source"},
			},
			Created: 1,
			Failed:  2,
		})
	}))
	defer srv.Close()
	t.Cleanup(func() { repoBranch = "" })

	out, err := execute(t, "--addr", srv.URL, "repo", "add", "--branch", "dev", "/src/a", "/src/a", "ftp://x")
	assert.EqualError(t, err, "2 of 3 repositories failed to register")
	assert.Contains(t, out, "registered as r1")
	assert.Contains(t, out, "failed: repository already exists")
	assert.Contains(t, out, "failed: invalid source")
}

func TestHistoryPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "1", r.URL.Query().Get("limit"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"conversations": []map[string]any{{"id": "c1", "query": "older question", "timestamp": 1}},
			"page":          2,
			"page_size":     1,
			"total":         2,
			"total_pages":   2,
		})
	}))
	defer srv.Close()
	t.Cleanup(func() { historyPage, historyLimit = 1, 20 })

	out, err := execute(t, "--addr", srv.URL, "history", "--page", "2", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "older question")
	assert.Contains(t, out, "page 2 of 2 (2 conversations)")
}
