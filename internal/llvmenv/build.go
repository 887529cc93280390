package llvmenv

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// markerName is the per-directory (and global) activation marker.
const markerName = ".llvmenv"

// BaselineName is the reserved name of the unmanaged system toolchain. It is
// never produced by the data-root scan; it is always synthesized.
const BaselineName = "system"

const systemPrefix = "/usr"

// Build is a named LLVM/Clang installation: either a prefix under the data
// root or the baseline system toolchain.
type Build struct {
	Name   string
	Prefix string
	marker string // marker file that selected this build, when Seek found one
}

// Exists reports whether the build is installed: its prefix must contain a
// bin directory. This predicate is the only source of truth; no manifest is
// kept.
func (b Build) Exists() bool {
	info, err := os.Stat(filepath.Join(b.Prefix, "bin"))
	return err == nil && info.IsDir()
}

// MarkerPath returns the marker file that activated this build, or "" when
// the build was not chosen by a marker.
func (b Build) MarkerPath() string { return b.marker }

// Registry enumerates completed builds under the managed data root.
type Registry struct {
	cfg *Config
}

func NewRegistry(cfg *Config) *Registry {
	return &Registry{cfg: cfg}
}

// System returns the baseline build backed by the system toolchain.
func (r *Registry) System() Build {
	return Build{Name: BaselineName, Prefix: systemPrefix}
}

// FromName maps a build name to its prefix. The reserved baseline name
// always yields the system build.
func (r *Registry) FromName(name string) Build {
	if name == BaselineName {
		return r.System()
	}
	return Build{Name: name, Prefix: filepath.Join(r.cfg.DataDir, name)}
}

// Lookup resolves name and requires the build to be installed.
func (r *Registry) Lookup(name string) (Build, error) {
	b := r.FromName(name)
	if !b.Exists() {
		return Build{}, fmt.Errorf("%w: %s", ErrBuildNotFound, name)
	}
	return b, nil
}

// Builds lists every installed build sorted by name, with the baseline
// always first regardless of lexicographic order.
func (r *Registry) Builds() ([]Build, error) {
	entries, err := os.ReadDir(r.cfg.DataDir)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to scan %s: %w", r.cfg.DataDir, err)
	}

	var builds []Build
	for _, ent := range entries {
		if !ent.IsDir() || ent.Name() == BaselineName {
			continue
		}
		b := Build{Name: ent.Name(), Prefix: filepath.Join(r.cfg.DataDir, ent.Name())}
		if b.Exists() {
			builds = append(builds, b)
		}
	}
	sort.Slice(builds, func(i, j int) bool { return builds[i].Name < builds[j].Name })

	return append([]Build{r.System()}, builds...), nil
}

// Version holds the three components reported by the build's own clang.
type Version struct {
	Major, Minor, Patch int
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Version runs the build's clang and parses its reported version.
//
//	$ clang --version
//	clang version 7.0.0 (tags/RELEASE_700/final)   <- parsed from this line
//	Target: x86_64-pc-linux-gnu
func (r *Registry) Version(ex *Executor, b Build) (Version, error) {
	clang := filepath.Join(b.Prefix, "bin", "clang")

	var out bytes.Buffer
	cmd := ex.Command(clang, "--version")
	cmd.Stdout = &out
	cmd.Stderr = io.Discard
	if err := ex.Run(cmd); err != nil {
		return Version{}, fmt.Errorf("%s is not runnable: %w", clang, err)
	}
	return parseVersion(out.String())
}

var versionRe = regexp.MustCompile(`(\d+)\.(\d+)\.(\d+)`)

// parseVersion scans free-form tool output for the first X.Y.Z substring.
func parseVersion(output string) (Version, error) {
	m := versionRe.FindStringSubmatch(output)
	if m == nil {
		return Version{}, fmt.Errorf("%w: %q", ErrVersionNotFound, strings.TrimSpace(output))
	}
	major, err := strconv.Atoi(m[1])
	if err != nil {
		return Version{}, fmt.Errorf("failed to parse major version: %w", err)
	}
	minor, err := strconv.Atoi(m[2])
	if err != nil {
		return Version{}, fmt.Errorf("failed to parse minor version: %w", err)
	}
	patch, err := strconv.Atoi(m[3])
	if err != nil {
		return Version{}, fmt.Errorf("failed to parse patch version: %w", err)
	}
	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// Resolver decides which build is active for a directory via three ordered
// tiers: local markers nearest-first, then the global marker, then the
// baseline.
type Resolver struct {
	cfg *Config
	reg *Registry
}

func NewResolver(cfg *Config, reg *Registry) *Resolver {
	return &Resolver{cfg: cfg, reg: reg}
}

// GlobalMarker is the single well-known marker inside the config dir.
func (r *Resolver) GlobalMarker() string {
	return filepath.Join(r.cfg.ConfigDir, markerName)
}

// readMarker loads the build named by dir's marker. A missing marker yields
// ok=false; an existing but unreadable or empty one yields ErrMarkerUnreadable.
func (r *Resolver) readMarker(dir string) (Build, bool, error) {
	p := filepath.Join(dir, markerName)
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return Build{}, false, nil
	}
	if err != nil {
		return Build{}, false, fmt.Errorf("%w: %s: %v", ErrMarkerUnreadable, p, err)
	}
	name := strings.TrimSpace(string(data))
	if name == "" {
		return Build{}, false, fmt.Errorf("%w: %s: empty", ErrMarkerUnreadable, p)
	}
	b := r.reg.FromName(name)
	b.marker = p
	return b, true, nil
}

// Seek resolves the active build for start: the nearest ancestor directory
// (start included) whose marker names an installed build wins; then the
// global marker; then the baseline. Markers naming missing builds and
// unreadable markers are skipped rather than reported, so Seek cannot fail.
func (r *Resolver) Seek(start string) Build {
	dir := filepath.Clean(start)
	for {
		b, ok, err := r.readMarker(dir)
		switch {
		case err != nil:
			debugf("skipping marker in %s: %v\n", dir, err)
		case ok && b.Exists():
			return b
		case ok:
			debugf("marker in %s names missing build %s, skipping\n", dir, b.Name)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if b, ok, err := r.readMarker(r.cfg.ConfigDir); err == nil && ok && b.Exists() {
		return b
	}
	return r.reg.System()
}

// SetGlobal activates b for every directory without a local override.
func (r *Resolver) SetGlobal(b Build) error {
	return r.SetLocal(b, r.cfg.ConfigDir)
}

// SetLocal writes exactly b's name to dir's marker, overwriting any prior
// content.
func (r *Resolver) SetLocal(b Build, dir string) error {
	p := filepath.Join(dir, markerName)
	if err := os.WriteFile(p, []byte(b.Name), 0o644); err != nil {
		return fmt.Errorf("failed to write marker %s: %w", p, err)
	}
	cPrintf(colInfo, "Write setting to %s\n", p)
	return nil
}
