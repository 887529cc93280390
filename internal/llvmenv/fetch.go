package llvmenv

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
	"lukechampine.com/blake3"
)

// Fetcher materializes resources on disk: initial checkout/clone/unpack and
// in-place updates. External tools run through the executor; archives are
// handled natively.
type Fetcher struct {
	cfg *Config
	ex  *Executor
}

func NewFetcher(cfg *Config, ex *Executor) *Fetcher {
	return &Fetcher{cfg: cfg, ex: ex}
}

// Download populates dest from res. dest is created when missing; an
// existing non-directory is refused.
func (f *Fetcher) Download(res Resource, dest string) error {
	info, err := os.Stat(dest)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("destination %s exists and is not a directory", dest)
	case os.IsNotExist(err):
		if err := os.MkdirAll(dest, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dest, err)
		}
	case err != nil:
		return fmt.Errorf("failed to stat %s: %w", dest, err)
	}

	switch r := res.(type) {
	case Svn:
		return f.ex.Run(f.ex.Command("svn", "co", "-r", "HEAD", r.URL, dest))
	case Git:
		return f.cloneGit(r, dest)
	case Tar:
		archive, err := f.fetchArchive(r.URL)
		if err != nil {
			return err
		}
		return extractTar(archive, dest, true)
	default:
		return fmt.Errorf("unhandled resource %T", res)
	}
}

// Update refreshes a previously downloaded tree in place. Archives have no
// update semantics.
func (f *Fetcher) Update(res Resource, dest string) error {
	switch res.(type) {
	case Svn:
		cmd := f.ex.Command("svn", "up")
		cmd.Dir = dest
		return f.ex.Run(cmd)
	case Git:
		cmd := f.ex.Command("git", "pull")
		cmd.Dir = dest
		err := f.ex.Run(cmd)
		var cmdErr *CommandError
		if errors.As(err, &cmdErr) && cmdErr.NotFound {
			debugf("git not found, pulling %s with go-git\n", dest)
			return f.pullNative(dest)
		}
		return err
	case Tar:
		debugf("tar resources have no update semantics, skipping %s\n", dest)
		return nil
	default:
		return fmt.Errorf("unhandled resource %T", res)
	}
}

// cloneGit shallow-clones with the system git, falling back to go-git when
// the binary is absent.
func (f *Fetcher) cloneGit(r Git, dest string) error {
	args := []string{"clone", "--depth", "1"}
	if r.Branch != "" {
		args = append(args, "-b", r.Branch)
	}
	args = append(args, r.URL, dest)

	err := f.ex.Run(f.ex.Command("git", args...))
	var cmdErr *CommandError
	if errors.As(err, &cmdErr) && cmdErr.NotFound {
		debugf("git not found, cloning %s with go-git\n", r.URL)
		return f.cloneGitNative(r, dest)
	}
	return err
}

func (f *Fetcher) cloneGitNative(r Git, dest string) error {
	opts := &git.CloneOptions{
		URL:   r.URL,
		Depth: 1,
	}
	if r.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(r.Branch)
		opts.SingleBranch = true
	}
	if !f.cfg.Quiet {
		opts.Progress = os.Stderr
	}
	if _, err := git.PlainClone(dest, false, opts); err != nil {
		return fmt.Errorf("clone of %s failed: %w", r.URL, err)
	}
	return nil
}

func (f *Fetcher) pullNative(dest string) error {
	repo, err := git.PlainOpen(dest)
	if err != nil {
		return fmt.Errorf("failed to open repository %s: %w", dest, err)
	}
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	err = wt.Pull(&git.PullOptions{RemoteName: "origin"})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	return err
}

// fetchArchive downloads rawURL into the cache store, keyed by a hash of the
// URL so distinct URLs sharing a filename cannot collide, and returns the
// cached path. An already-cached file is reused as-is.
func (f *Fetcher) fetchArchive(rawURL string) (string, error) {
	store := f.cfg.CacheStore()
	if err := os.MkdirAll(store, 0o755); err != nil {
		return "", fmt.Errorf("failed to create cache store %s: %w", store, err)
	}

	name := fmt.Sprintf("%s-%s", hashString(rawURL)[:16], filenameFromURL(rawURL))
	cached := filepath.Join(store, name)

	if _, err := os.Stat(cached); err == nil {
		debugf("already in cache: %s\n", cached)
		return cached, nil
	}

	if !f.cfg.Quiet {
		colArrow.Print("-> ")
		colSuccess.Printf("Fetching source: %s\n", rawURL)
	}
	if err := downloadFile(rawURL, cached, f.cfg.Quiet); err != nil {
		// Remove the partial file so a broken download never looks cached.
		os.Remove(cached)
		return "", err
	}
	return cached, nil
}

// downloadFile streams url into destFile, with a progress bar when stderr is
// a terminal. No timeout is applied and nothing is retried; a stalled remote
// blocks until the invoking environment kills us.
func downloadFile(url, destFile string, quiet bool) error {
	resp, err := http.Get(url)
	if err != nil {
		return fmt.Errorf("http get %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download of %s failed with status: %s", url, resp.Status)
	}

	out, err := os.Create(destFile)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", destFile, err)
	}
	defer out.Close()

	var dst io.Writer = out
	if !quiet && term.IsTerminal(int(os.Stderr.Fd())) {
		bar := progressbar.DefaultBytes(resp.ContentLength, filepath.Base(destFile))
		defer bar.Close()
		dst = io.MultiWriter(out, bar)
	}

	if _, err := io.Copy(dst, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", destFile, err)
	}
	return nil
}

func filenameFromURL(rawURL string) string {
	if u, err := url.Parse(rawURL); err == nil {
		if base := path.Base(u.Path); base != "." && base != "/" {
			return base
		}
	}
	parts := strings.Split(rawURL, "/")
	return parts[len(parts)-1]
}

func hashString(s string) string {
	h := blake3.New(32, nil)
	h.Write([]byte(s))
	return hex.EncodeToString(h.Sum(nil))
}
