package llvmenv

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFetcher(t *testing.T) (*Fetcher, *Config) {
	t.Helper()
	cfg := newTestConfig(t)
	ex := NewExecutor(context.Background())
	ex.Quiet = true
	return NewFetcher(cfg, ex), cfg
}

func TestDownload_DestNotDirectory(t *testing.T) {
	f, _ := newTestFetcher(t)
	dest := filepath.Join(t.TempDir(), "occupied")
	require.NoError(t, os.WriteFile(dest, []byte("x"), 0o644))

	err := f.Download(Tar{URL: "http://example.com/a.tar.gz"}, dest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a directory")
}

func TestDownload_TarOverHTTP(t *testing.T) {
	tmp := t.TempDir()
	tarball := filepath.Join(tmp, "llvm-7.0.0.src.tar.gz")
	writeTarGz(t, tarball, []tarEntry{
		{name: "llvm-7.0.0.src/", dir: true},
		{name: "llvm-7.0.0.src/CMakeLists.txt", body: "project(LLVM)"},
	})
	payload, err := os.ReadFile(tarball)
	require.NoError(t, err)

	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write(payload)
	}))
	defer srv.Close()

	f, cfg := newTestFetcher(t)
	rawURL := srv.URL + "/llvm-7.0.0.src.tar.gz"
	dest := filepath.Join(tmp, "src")
	require.NoError(t, f.Download(Tar{URL: rawURL}, dest))

	data, err := os.ReadFile(filepath.Join(dest, "CMakeLists.txt"))
	require.NoError(t, err)
	assert.Equal(t, "project(LLVM)", string(data))
	assert.Equal(t, int32(1), hits.Load())

	// A second download of the same URL is served from the cache store.
	dest2 := filepath.Join(tmp, "src2")
	require.NoError(t, f.Download(Tar{URL: rawURL}, dest2))
	assert.Equal(t, int32(1), hits.Load())
	assert.FileExists(t, filepath.Join(dest2, "CMakeLists.txt"))

	entries, err := os.ReadDir(cfg.CacheStore())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Name(), "llvm-7.0.0.src.tar.gz")
}

func TestDownload_HTTPErrorLeavesNoCacheEntry(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f, cfg := newTestFetcher(t)
	dest := filepath.Join(t.TempDir(), "src")
	err := f.Download(Tar{URL: srv.URL + "/missing.tar.gz"}, dest)
	require.Error(t, err)

	entries, err := os.ReadDir(cfg.CacheStore())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestUpdate_TarIsNoOp(t *testing.T) {
	f, _ := newTestFetcher(t)
	assert.NoError(t, f.Update(Tar{URL: "http://example.com/a.tar.gz"}, t.TempDir()))
}

func TestFilenameFromURL(t *testing.T) {
	cases := map[string]string{
		"http://releases.llvm.org/6.0.1/llvm-6.0.1.src.tar.xz": "llvm-6.0.1.src.tar.xz",
		"http://example.com/a.tar.gz?foo=bar":                  "a.tar.gz",
	}
	for in, want := range cases {
		assert.Equal(t, want, filenameFromURL(in), in)
	}
}

func TestHashString_DistinctURLs(t *testing.T) {
	a := hashString("http://example.com/a/pkg.tar.gz")
	b := hashString("http://example.com/b/pkg.tar.gz")
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 64)
}
