package llvmenv

import (
	"fmt"
	"log"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// CMakeGenerator selects cmake's -G option.
type CMakeGenerator int

const (
	// GeneratorPlatform uses the platform default (no -G option).
	GeneratorPlatform CMakeGenerator = iota
	GeneratorMakefile
	GeneratorNinja
	GeneratorVisualStudio
)

// ParseGenerator maps the entry.yaml builder value onto a generator.
func ParseGenerator(s string) (CMakeGenerator, error) {
	switch strings.ToLower(s) {
	case "", "platform":
		return GeneratorPlatform, nil
	case "makefile":
		return GeneratorMakefile, nil
	case "ninja":
		return GeneratorNinja, nil
	case "visualstudio", "vs":
		return GeneratorVisualStudio, nil
	default:
		return GeneratorPlatform, fmt.Errorf("unsupported generator: %s", s)
	}
}

func (g CMakeGenerator) options() []string {
	switch g {
	case GeneratorMakefile:
		return []string{"-G", "Unix Makefiles"}
	case GeneratorNinja:
		return []string{"-G", "Ninja"}
	case GeneratorVisualStudio:
		return []string{"-G", "Visual Studio 15 2017"}
	default:
		return nil
	}
}

func (g CMakeGenerator) buildOptions(nproc int) []string {
	switch g {
	case GeneratorMakefile, GeneratorNinja:
		return []string{"--", "-j", fmt.Sprintf("%d", nproc)}
	default:
		return nil
	}
}

// Tool is an additional component (clang, lld, ...) checked out into the
// source tree, by default under tools/<name>.
type Tool struct {
	Name         string `yaml:"name"`
	URL          string `yaml:"url"`
	Branch       string `yaml:"branch"`
	RelativePath string `yaml:"relative_path"`
}

func (t Tool) relPath() string {
	if t.RelativePath != "" {
		return t.RelativePath
	}
	return path.Join("tools", t.Name)
}

// EntrySetting is the on-disk shape of one entry.yaml item. Exactly one of
// url (remote entry) or path (local entry) must be set.
type EntrySetting struct {
	URL       string            `yaml:"url"`
	Path      string            `yaml:"path"`
	Tools     []Tool            `yaml:"tools"`
	Target    []string          `yaml:"target"`
	Option    map[string]string `yaml:"option"`
	Builder   string            `yaml:"builder"`
	BuildType string            `yaml:"build_type"`
}

// Entry describes how to obtain and compile one build.
type Entry struct {
	Name    string
	URL     string // remote entries
	Path    string // local entries
	Setting EntrySetting
}

func (e *Entry) remote() bool { return e.URL != "" }

func parseSetting(name string, s EntrySetting) (*Entry, error) {
	if s.URL != "" && s.Path != "" {
		return nil, fmt.Errorf("entry %s: only one of url or path is allowed", name)
	}
	if s.Path != "" {
		if len(s.Tools) > 0 {
			log.Printf("Warning: entry %s: 'tools' requires url, ignored", name)
		}
		p := s.Path
		if p == "~" || strings.HasPrefix(p, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("entry %s: cannot expand %s: %w", name, p, err)
			}
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
		return &Entry{Name: name, Path: p, Setting: s}, nil
	}
	if s.URL != "" {
		return &Entry{Name: name, URL: s.URL, Setting: s}, nil
	}
	return nil, fmt.Errorf("entry %s: neither url nor path is set", name)
}

func loadEntryYAML(data []byte) ([]*Entry, error) {
	var settings map[string]EntrySetting
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse entry catalog: %w", err)
	}

	names := make([]string, 0, len(settings))
	for name := range settings {
		names = append(names, name)
	}
	sort.Strings(names)

	entries := make([]*Entry, 0, len(settings))
	for _, name := range names {
		e, err := parseSetting(name, settings[name])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// officialVersions is the catalog of published releases built with default
// settings.
var officialVersions = [][3]int{
	{8, 0, 0},
	{7, 0, 0},
	{6, 0, 1},
	{6, 0, 0},
	{5, 0, 2},
	{5, 0, 1},
	{4, 0, 1},
	{4, 0, 0},
	{3, 9, 1},
	{3, 9, 0},
}

func officialReleases() []*Entry {
	entries := make([]*Entry, 0, len(officialVersions))
	for _, v := range officialVersions {
		version := fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
		setting := EntrySetting{
			URL: fmt.Sprintf("http://releases.llvm.org/%s/llvm-%s.src.tar.xz", version, version),
			Tools: []Tool{
				{Name: "clang", URL: fmt.Sprintf("http://releases.llvm.org/%s/cfe-%s.src.tar.xz", version, version)},
				{Name: "lld", URL: fmt.Sprintf("http://releases.llvm.org/%s/lld-%s.src.tar.xz", version, version)},
			},
		}
		entries = append(entries, &Entry{Name: version, URL: setting.URL, Setting: setting})
	}
	return entries
}

// LoadEntries returns the user-defined entries followed by the official
// releases. A missing entry.yaml just means no user entries.
func LoadEntries(cfg *Config) ([]*Entry, error) {
	var entries []*Entry
	data, err := os.ReadFile(cfg.EntryFile())
	switch {
	case err == nil:
		entries, err = loadEntryYAML(data)
		if err != nil {
			return nil, err
		}
	case !os.IsNotExist(err):
		return nil, fmt.Errorf("failed to read %s: %w", cfg.EntryFile(), err)
	}
	return append(entries, officialReleases()...), nil
}

// LoadEntry finds the named entry among user and official entries.
func LoadEntry(cfg *Config, name string) (*Entry, error) {
	entries, err := LoadEntries(cfg)
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if e.Name == name {
			return e, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrEntryNotFound, name)
}

// SrcDir is where the entry's source tree lives: the user's own directory
// for local entries, a per-entry cache directory for remote ones.
func (e *Entry) SrcDir(cfg *Config) string {
	if !e.remote() {
		return e.Path
	}
	return filepath.Join(cfg.CacheDir, e.Name)
}

// BuildDir is the out-of-tree cmake build directory, created on demand.
func (e *Entry) BuildDir(cfg *Config) (string, error) {
	dir := filepath.Join(e.SrcDir(cfg), "build")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create build dir %s: %w", dir, err)
	}
	return dir, nil
}

// Prefix is the installation prefix under the managed data root.
func (e *Entry) Prefix(cfg *Config) string {
	return filepath.Join(cfg.DataDir, e.Name)
}

// Checkout materializes the entry's source and tools when absent.
func (e *Entry) Checkout(f *Fetcher) error {
	if !e.remote() {
		info, err := os.Stat(e.Path)
		if err != nil || !info.IsDir() {
			return fmt.Errorf("path %s is not a directory", e.Path)
		}
		return nil
	}

	src := e.SrcDir(f.cfg)
	if !isDir(src) {
		res, err := ParseResource(e.URL, "")
		if err != nil {
			return err
		}
		if err := f.Download(res, src); err != nil {
			return err
		}
	}
	for _, tool := range e.Setting.Tools {
		dest := filepath.Join(src, tool.relPath())
		if isDir(dest) {
			continue
		}
		res, err := ParseResource(tool.URL, tool.Branch)
		if err != nil {
			return err
		}
		if err := f.Download(res, dest); err != nil {
			return err
		}
	}
	return nil
}

// Update refreshes the entry's source and tools in place.
func (e *Entry) Update(f *Fetcher) error {
	if !e.remote() {
		return nil
	}
	src := e.SrcDir(f.cfg)
	res, err := ParseResource(e.URL, "")
	if err != nil {
		return err
	}
	if err := f.Update(res, src); err != nil {
		return err
	}
	for _, tool := range e.Setting.Tools {
		res, err := ParseResource(tool.URL, tool.Branch)
		if err != nil {
			return err
		}
		if err := f.Update(res, filepath.Join(src, tool.relPath())); err != nil {
			return err
		}
	}
	return nil
}

// CleanCache removes the cached source tree of a remote entry. Local entries
// are the user's own checkout and are left alone.
func (e *Entry) CleanCache(cfg *Config) error {
	if !e.remote() {
		log.Printf("Warning: entry %s is local, not removing %s", e.Name, e.Path)
		return nil
	}
	cPrintf(colInfo, "Remove cache dir: %s\n", e.SrcDir(cfg))
	return os.RemoveAll(e.SrcDir(cfg))
}

// CleanBuild removes the cmake build directory.
func (e *Entry) CleanBuild(cfg *Config) error {
	dir := filepath.Join(e.SrcDir(cfg), "build")
	cPrintf(colInfo, "Remove build dir: %s\n", dir)
	return os.RemoveAll(dir)
}

// Build configures and compiles the entry, installing it into its prefix.
func (e *Entry) Build(cfg *Config, ex *Executor, nproc int) error {
	gen, err := ParseGenerator(e.Setting.Builder)
	if err != nil {
		return err
	}
	if err := e.configure(cfg, ex, gen); err != nil {
		return err
	}

	buildDir, err := e.BuildDir(cfg)
	if err != nil {
		return err
	}
	args := []string{"--build", buildDir, "--target", "install"}
	args = append(args, gen.buildOptions(nproc)...)
	return ex.Run(ex.Command("cmake", args...))
}

func (e *Entry) configure(cfg *Config, ex *Executor, gen CMakeGenerator) error {
	buildType := e.Setting.BuildType
	switch buildType {
	case "":
		buildType = "Release"
	case "Release", "Debug":
	default:
		return fmt.Errorf("entry %s: unsupported build_type: %s", e.Name, buildType)
	}

	opts := gen.options()
	opts = append(opts,
		e.SrcDir(cfg),
		"-DCMAKE_INSTALL_PREFIX="+e.Prefix(cfg),
		"-DCMAKE_BUILD_TYPE="+buildType,
	)
	if len(e.Setting.Target) > 0 {
		opts = append(opts, "-DLLVM_TARGETS_TO_BUILD="+strings.Join(e.Setting.Target, ";"))
	}
	keys := make([]string, 0, len(e.Setting.Option))
	for k := range e.Setting.Option {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		opts = append(opts, fmt.Sprintf("-D%s=%s", k, e.Setting.Option[k]))
	}

	buildDir, err := e.BuildDir(cfg)
	if err != nil {
		return err
	}
	cmd := ex.Command("cmake", opts...)
	cmd.Dir = buildDir
	return ex.Run(cmd)
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
