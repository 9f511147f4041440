package gitrepo

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestListFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go", "package main\n")
	writeFile(t, root, "pkg/util.py", "print(1)\n")
	writeFile(t, root, "node_modules/x.js", "x")
	writeFile(t, root, ".hidden/y.go", "package y")
	writeFile(t, root, ".env", "SECRET=1")
	writeFile(t, root, "image.png", "\x89PNG")
	writeFile(t, root, "big.txt", string(make([]byte, 2048)))

	files, err := ListFiles(root, 1024)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"main.go", "pkg/util.py"}, files)
}

func TestGetFileInfo(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.go", "package a\n")

	info, err := GetFileInfo(root, "a.go")
	require.NoError(t, err)
	assert.Equal(t, "go", info.Language)
	assert.Equal(t, int64(10), info.SizeBytes)
	assert.Len(t, info.Shasum, 64)
}

func TestProviderDetect(t *testing.T) {
	reg := NewRegistry(NewGitHubProvider("token"))

	gh := reg.Detect("https://github.com/a/b")
	assert.Equal(t, "github", gh.Name())
	assert.Equal(t, "https://github.com/a/b.git", gh.CloneURL("https://github.com/a/b"))
	assert.NotNil(t, gh.Auth())

	other := reg.Detect("https://git.example.org/a/b")
	assert.Equal(t, "generic", other.Name())
	assert.Nil(t, other.Auth())

	assert.Nil(t, NewGitHubProvider("").Auth())
}

func TestFetchLocalGitRepository(t *testing.T) {
	root := t.TempDir()
	repo, err := git.PlainInit(root, false)
	require.NoError(t, err)
	writeFile(t, root, "main.go", "package main\n")

	wt, err := repo.Worktree()
	require.NoError(t, err)
	_, err = wt.Add("main.go")
	require.NoError(t, err)
	hash, err := wt.Commit("init", &git.CommitOptions{
		Author: &object.Signature{Name: "test", Email: "test@example.org", When: time.Now()},
	})
	require.NoError(t, err)

	f := NewFetcher(zap.NewNop(), t.TempDir(), 0, nil)
	snap, err := f.Fetch(context.Background(), Request{ID: "r1", Source: root})
	require.NoError(t, err)
	assert.Equal(t, root, snap.Root)
	assert.Equal(t, hash.String(), snap.CommitSHA)
	assert.False(t, snap.Cloned)
	assert.Equal(t, []string{"main.go"}, snap.Files)
}

func TestFetchPlainDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "lib.rs", "fn main() {}\n")

	f := NewFetcher(zap.NewNop(), t.TempDir(), 0, nil)
	snap, err := f.Fetch(context.Background(), Request{ID: "r1", Source: root, Branch: "main"})
	require.NoError(t, err)
	assert.Empty(t, snap.CommitSHA)
	assert.Equal(t, "main", snap.Branch)
	assert.Equal(t, []string{"lib.rs"}, snap.Files)
}

func TestFetchRemoteClones(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	cloneDir := t.TempDir()
	f := NewFetcher(zap.NewNop(), cloneDir, 0, nil)
	_, err := f.Fetch(context.Background(), Request{ID: "r1", Source: srv.URL + "/a/b", Remote: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to clone")
	assert.Positive(t, hits.Load())
	assert.NoDirExists(t, f.RepoPath("r1"))
}

func TestFetchMissingDirectory(t *testing.T) {
	f := NewFetcher(zap.NewNop(), t.TempDir(), 0, nil)
	_, err := f.Fetch(context.Background(), Request{ID: "r1", Source: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}
