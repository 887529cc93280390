package llvmenv

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tarEntry struct {
	name string
	body string // empty with trailing slash in name means directory
	dir  bool
}

// writeTarGz builds a synthetic source tarball at path.
func writeTarGz(t *testing.T, path string, entries []tarEntry) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for _, e := range entries {
		hdr := &tar.Header{Name: e.name, Mode: 0o644, Size: int64(len(e.body))}
		if e.dir {
			hdr.Typeflag = tar.TypeDir
			hdr.Mode = 0o755
		}
		require.NoError(t, tw.WriteHeader(hdr))
		if !e.dir {
			_, err := tw.Write([]byte(e.body))
			require.NoError(t, err)
		}
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
}

func TestExtractTar_StripsTopDirectory(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "X-1.0.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "X-1.0/", dir: true},
		{name: "X-1.0/a.txt", body: "hello"},
		{name: "X-1.0/sub/", dir: true},
		{name: "X-1.0/sub/b.txt", body: "world"},
	})

	dest := filepath.Join(tmp, "dest")
	require.NoError(t, extractTar(archive, dest, true))

	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "world", string(data))

	// The wrapping directory must not appear under dest.
	_, err = os.Stat(filepath.Join(dest, "X-1.0"))
	assert.True(t, os.IsNotExist(err))
}

func TestExtractTar_ToleratesExistingEntries(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "X-1.0.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "X-1.0/a.txt", body: "new"},
		{name: "X-1.0/b.txt", body: "fresh"},
	})

	dest := filepath.Join(tmp, "dest")
	require.NoError(t, os.MkdirAll(dest, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dest, "a.txt"), []byte("old"), 0o644))

	require.NoError(t, extractTar(archive, dest, true))

	// The pre-existing file is left alone; later entries still land.
	data, err := os.ReadFile(filepath.Join(dest, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "old", string(data))

	data, err = os.ReadFile(filepath.Join(dest, "b.txt"))
	require.NoError(t, err)
	assert.Equal(t, "fresh", string(data))
}

func TestExtractTar_UnsupportedFormat(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "legacy.tar.Z")
	require.NoError(t, os.WriteFile(archive, []byte("not really compress data"), 0o644))

	err := extractTar(archive, filepath.Join(tmp, "dest"), true)
	assert.ErrorIs(t, err, ErrUnsupportedArchive)
}

func TestExtractTar_RejectsEscapingPaths(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "evil.tar.gz")
	writeTarGz(t, archive, []tarEntry{
		{name: "X-1.0/../../escape.txt", body: "nope"},
	})

	err := extractTar(archive, filepath.Join(tmp, "dest"), true)
	require.Error(t, err)
}

func TestArchiveBuildRoundTrip(t *testing.T) {
	cfg := newTestConfig(t)
	installBuild(t, cfg, "foo")
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, "foo", "bin", "clang"), []byte("#!/bin/sh\n"), 0o755))

	ex := NewExecutor(context.Background())
	ex.Quiet = true

	out, err := ArchiveBuild(cfg, ex, NewRegistry(cfg).FromName("foo"), false)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.DataDir, "foo.tar.xz"), out)

	// Expand into a fresh data root and find the build again.
	other := newTestConfig(t)
	require.NoError(t, Expand(other, ex, out, false))
	assert.True(t, NewRegistry(other).FromName("foo").Exists())
}

func TestArchiveBuild_RefusesBaseline(t *testing.T) {
	cfg := newTestConfig(t)
	ex := NewExecutor(context.Background())
	_, err := ArchiveBuild(cfg, ex, NewRegistry(cfg).System(), false)
	require.Error(t, err)
}

func TestExpand_MissingArchive(t *testing.T) {
	cfg := newTestConfig(t)
	ex := NewExecutor(context.Background())
	err := Expand(cfg, ex, filepath.Join(t.TempDir(), "nope.tar.xz"), false)
	require.Error(t, err)
}
