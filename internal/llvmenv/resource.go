package llvmenv

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"os/exec"
	"path"
	"strings"

	git "github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/storage/memory"
)

// Resource is the classification of a remote source URL. Exactly one of the
// variants below applies; consumers switch exhaustively on the concrete type.
type Resource interface {
	resource()
}

// Svn is a subversion repository checked out at HEAD.
type Svn struct {
	URL string
}

// Git is a git repository. Branch "" means the remote default branch.
type Git struct {
	URL    string
	Branch string
}

// Tar is a compressed source tarball.
type Tar struct {
	URL string
}

func (Svn) resource() {}
func (Git) resource() {}
func (Tar) resource() {}

// Suffixes that mark a URL as a source tarball.
var archiveSuffixes = []string{".tar.gz", ".tar.xz", ".tar.bz2", ".tar.Z", ".tgz", ".taz"}

// Hosting services that only serve git.
var gitHosts = []string{"github.com", "gitlab.com", "bitbucket.org"}

const llvmHost = "llvm.org"

// ParseResource classifies rawURL into one of the resource kinds. The chain
// is ordered and the first match wins; every step except the final network
// probe is a pure function of the URL and branchOverride.
func ParseResource(rawURL, branchOverride string) (Resource, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvableURL, rawURL, err)
	}
	filename := path.Base(u.Path)

	for _, suffix := range archiveSuffixes {
		if strings.HasSuffix(filename, suffix) {
			return Tar{URL: rawURL}, nil
		}
	}
	if strings.HasSuffix(filename, "trunk") {
		return Svn{URL: rawURL}, nil
	}
	if strings.HasSuffix(filename, ".git") {
		return gitResource(u, branchOverride), nil
	}
	host := u.Hostname()
	for _, h := range gitHosts {
		if host == h {
			return gitResource(u, branchOverride), nil
		}
	}
	if host == llvmHost {
		switch {
		case strings.HasPrefix(u.Path, "/svn"):
			return Svn{URL: rawURL}, nil
		case strings.HasPrefix(u.Path, "/git"):
			return gitResource(u, branchOverride), nil
		}
	}

	// Nothing matched; ask the remote itself.
	isGit, err := probeGit(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnresolvableURL, rawURL, err)
	}
	if isGit {
		return gitResource(u, branchOverride), nil
	}
	return Svn{URL: rawURL}, nil
}

// gitResource strips the URL fragment and resolves the branch: an explicit
// override wins, then the fragment, then the remote default.
func gitResource(u *url.URL, branchOverride string) Git {
	branch := branchOverride
	if branch == "" {
		branch = u.Fragment
	}
	stripped := *u
	stripped.Fragment = ""
	return Git{URL: stripped.String(), Branch: branch}
}

// probeGit reports whether rawURL speaks the git protocol by listing its
// remote refs from a throwaway repository. A failure of the listing itself is
// the expected negative signal (the host is presumably svn); a failure while
// setting up the probe is returned as an error so that e.g. an unreachable
// filesystem is never misread as an svn server.
func probeGit(rawURL string) (bool, error) {
	if _, err := exec.LookPath("git"); err != nil {
		return probeGitNative(rawURL), nil
	}

	tmp, err := os.MkdirTemp("", "llvmenv-probe-")
	if err != nil {
		return false, err
	}
	defer os.RemoveAll(tmp)

	for _, args := range [][]string{
		{"init", "-q"},
		{"remote", "add", "origin", rawURL},
	} {
		cmd := exec.Command("git", args...)
		cmd.Dir = tmp
		cmd.Stdout = io.Discard
		cmd.Stderr = io.Discard
		if err := cmd.Run(); err != nil {
			return false, fmt.Errorf("git %s failed: %w", args[0], err)
		}
	}

	cmd := exec.Command("git", "ls-remote", "origin")
	cmd.Dir = tmp
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	return cmd.Run() == nil, nil
}

// probeGitNative lists remote refs with go-git when no git binary is
// installed. There is no local setup step, so any failure is the negative
// probe signal.
func probeGitNative(rawURL string) bool {
	remote := git.NewRemote(memory.NewStorage(), &gitconfig.RemoteConfig{
		Name: "origin",
		URLs: []string{rawURL},
	})
	_, err := remote.List(&git.ListOptions{})
	return err == nil
}
