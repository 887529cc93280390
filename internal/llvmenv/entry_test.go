package llvmenv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseGenerator(t *testing.T) {
	cases := map[string]CMakeGenerator{
		"":             GeneratorPlatform,
		"platform":     GeneratorPlatform,
		"Makefile":     GeneratorMakefile,
		"ninja":        GeneratorNinja,
		"VisualStudio": GeneratorVisualStudio,
		"vs":           GeneratorVisualStudio,
	}
	for in, want := range cases {
		got, err := ParseGenerator(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseGenerator("scons")
	require.Error(t, err)
}

func TestGeneratorBuildOptions(t *testing.T) {
	assert.Equal(t, []string{"--", "-j", "4"}, GeneratorNinja.buildOptions(4))
	assert.Equal(t, []string{"--", "-j", "8"}, GeneratorMakefile.buildOptions(8))
	assert.Nil(t, GeneratorPlatform.buildOptions(4))
}

func TestLoadEntryYAML(t *testing.T) {
	entries, err := loadEntryYAML([]byte(`
llvm-mirror:
  url: https://github.com/llvm-mirror/llvm
  target: [X86]
  builder: ninja
  tools:
    - name: clang
      url: https://github.com/llvm-mirror/clang
      branch: release_80
my-checkout:
  path: /opt/llvm-src
  option:
    LLVM_ENABLE_ASSERTIONS: "ON"
`))
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Names come back sorted.
	assert.Equal(t, "llvm-mirror", entries[0].Name)
	assert.Equal(t, "https://github.com/llvm-mirror/llvm", entries[0].URL)
	assert.True(t, entries[0].remote())
	require.Len(t, entries[0].Setting.Tools, 1)
	assert.Equal(t, "release_80", entries[0].Setting.Tools[0].Branch)

	assert.Equal(t, "my-checkout", entries[1].Name)
	assert.Equal(t, "/opt/llvm-src", entries[1].Path)
	assert.False(t, entries[1].remote())
}

func TestLoadEntryYAML_URLAndPathExclusive(t *testing.T) {
	_, err := loadEntryYAML([]byte(`
bad:
  url: https://github.com/llvm-mirror/llvm
  path: /opt/llvm-src
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "only one of url or path")
}

func TestLoadEntryYAML_NeitherURLNorPath(t *testing.T) {
	_, err := loadEntryYAML([]byte(`
bad:
  builder: ninja
`))
	require.Error(t, err)
}

func TestToolRelPath(t *testing.T) {
	assert.Equal(t, "tools/clang", Tool{Name: "clang"}.relPath())
	assert.Equal(t, "tools/clang/tools/extra",
		Tool{Name: "clang-extra", RelativePath: "tools/clang/tools/extra"}.relPath())
}

func TestOfficialReleases(t *testing.T) {
	entries := officialReleases()
	require.NotEmpty(t, entries)
	assert.Equal(t, "8.0.0", entries[0].Name)

	for _, e := range entries {
		if e.Name == "6.0.1" {
			assert.Equal(t, "http://releases.llvm.org/6.0.1/llvm-6.0.1.src.tar.xz", e.URL)
			require.Len(t, e.Setting.Tools, 2)
			assert.Equal(t, "clang", e.Setting.Tools[0].Name)
			assert.Equal(t, "lld", e.Setting.Tools[1].Name)
			return
		}
	}
	t.Fatal("release 6.0.1 not in catalog")
}

func TestLoadEntries_NoUserFile(t *testing.T) {
	cfg := newTestConfig(t)
	entries, err := LoadEntries(cfg)
	require.NoError(t, err)
	assert.Len(t, entries, len(officialVersions))
}

func TestLoadEntries_UserEntriesFirst(t *testing.T) {
	cfg := newTestConfig(t)
	require.NoError(t, os.WriteFile(cfg.EntryFile(), []byte(`
dev:
  url: https://github.com/llvm/llvm-project
`), 0o644))

	entries, err := LoadEntries(cfg)
	require.NoError(t, err)
	require.Len(t, entries, len(officialVersions)+1)
	assert.Equal(t, "dev", entries[0].Name)
}

func TestLoadEntry_NotFound(t *testing.T) {
	cfg := newTestConfig(t)
	_, err := LoadEntry(cfg, "no-such-entry")
	assert.ErrorIs(t, err, ErrEntryNotFound)
}

func TestEntryDirs(t *testing.T) {
	cfg := newTestConfig(t)

	remote := &Entry{Name: "7.0.0", URL: "http://releases.llvm.org/7.0.0/llvm-7.0.0.src.tar.xz"}
	assert.Equal(t, filepath.Join(cfg.CacheDir, "7.0.0"), remote.SrcDir(cfg))
	assert.Equal(t, filepath.Join(cfg.DataDir, "7.0.0"), remote.Prefix(cfg))

	local := &Entry{Name: "dev", Path: "/opt/llvm-src"}
	assert.Equal(t, "/opt/llvm-src", local.SrcDir(cfg))

	dir, err := remote.BuildDir(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.CacheDir, "7.0.0", "build"), dir)
	assert.DirExists(t, dir)
}

func TestCheckout_LocalPathMustBeDirectory(t *testing.T) {
	f, _ := newTestFetcher(t)
	e := &Entry{Name: "dev", Path: filepath.Join(t.TempDir(), "missing")}
	require.Error(t, e.Checkout(f))

	existing := t.TempDir()
	e = &Entry{Name: "dev", Path: existing}
	require.NoError(t, e.Checkout(f))
}

func TestCleanBuild(t *testing.T) {
	cfg := newTestConfig(t)
	cfg.Quiet = true
	e := &Entry{Name: "7.0.0", URL: "http://releases.llvm.org/7.0.0/llvm-7.0.0.src.tar.xz"}
	dir, err := e.BuildDir(cfg)
	require.NoError(t, err)
	require.DirExists(t, dir)

	require.NoError(t, e.CleanBuild(cfg))
	assert.NoDirExists(t, dir)
}
