package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	require.NoError(t, Load(""))

	assert.Equal(t, int64(3), Indexing.MaxRetries())
	assert.Equal(t, 500*time.Millisecond, Indexing.BackoffBase())
	assert.Equal(t, 10*time.Second, Indexing.BackoffCap())
	assert.Equal(t, 30*time.Second, Agents.Timeout())
	assert.Equal(t, int64(1000), Query.MaxLength())
	assert.Equal(t, int64(50), History.PageSize())
	assert.True(t, Removal.PurgeGraph())
	assert.True(t, IsDev())
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "repochat.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
[indexing]
max_retries = 5
backoff_base = "1s"

[agents]
planner = "keyword"
`), 0o600))

	t.Setenv("REPOCHAT_AGENTS_TIMEOUT", "2s")
	t.Setenv("REPOCHAT_STORAGE_DRIVER", "memory")

	require.NoError(t, Load(path))
	t.Cleanup(func() { _ = Load("") })

	assert.Equal(t, int64(5), Indexing.MaxRetries())
	assert.Equal(t, time.Second, Indexing.BackoffBase())
	assert.Equal(t, "keyword", Agents.Planner())
	assert.Equal(t, 2*time.Second, Agents.Timeout())
	assert.Equal(t, "memory", Storage.Driver())
	assert.Equal(t, 10*time.Second, Indexing.BackoffCap())
}

func TestLoadRejectsInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.toml")
	require.NoError(t, os.WriteFile(path, []byte("[storage]\ndriver = \"mongo\"\n"), 0o600))

	err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown storage driver")
}

func TestUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "typo.toml")
	require.NoError(t, os.WriteFile(path, []byte("[indexing]\nmax_retires = 4\n"), 0o600))

	keys, err := UnknownKeys(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"indexing.max_retires"}, keys)
}

func TestSetRestores(t *testing.T) {
	restore := Set(func(v *Values) { v.Agents.Timeout = time.Millisecond })
	assert.Equal(t, time.Millisecond, Agents.Timeout())
	restore()
	assert.Equal(t, 30*time.Second, Agents.Timeout())
}
