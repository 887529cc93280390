package llvmenv

import (
	"archive/tar"
	"compress/bzip2"
	"fmt"
	"io"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
	"golang.org/x/sys/unix"
)

// extractTar unpacks a (possibly compressed) tar archive into dest. With
// strip set, the first path component of every entry is removed: source
// tarballs wrap everything in a version-named top directory that must not
// appear in the managed layout.
func extractTar(realPath, dest string, strip bool) error {
	f, err := os.Open(realPath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", realPath, err)
	}
	defer f.Close()

	// Pick the decompressor by the archive's encoding.
	var r io.Reader
	switch {
	case strings.HasSuffix(realPath, ".tar.gz"),
		strings.HasSuffix(realPath, ".tgz"),
		strings.HasSuffix(realPath, ".taz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", realPath, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(realPath, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", realPath, err)
		}
		r = xzr
	case strings.HasSuffix(realPath, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case strings.HasSuffix(realPath, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", realPath, err)
		}
		defer zst.Close()
		r = zst
	case strings.HasSuffix(realPath, ".tar"):
		r = f
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedArchive, realPath)
	}

	return unpackTar(tar.NewReader(r), dest, strip, realPath)
}

func unpackTar(tr *tar.Reader, dest string, strip bool, archive string) error {
	cleanDest := filepath.Clean(dest)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archive, err)
		}

		// Skip PAX headers (global or per-file)
		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("error skipping extended header data in %s: %w", archive, err)
			}
			continue
		}

		name := strings.TrimSuffix(hdr.Name, "/")
		if strip {
			slash := strings.Index(name, "/")
			if slash == -1 {
				// The wrapping top directory itself.
				continue
			}
			name = name[slash+1:]
		}
		if name == "" || name == "." {
			continue
		}

		targetPath := filepath.Join(cleanDest, name)
		if !strings.HasPrefix(targetPath, cleanDest+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive %s: %s", archive, hdr.Name)
		}
		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
			if os.Geteuid() == 0 {
				_ = os.Chown(targetPath, hdr.Uid, hdr.Gid)
			}
		case tar.TypeReg:
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, os.FileMode(hdr.Mode))
			if err != nil {
				if os.IsExist(err) {
					log.Printf("Warning: %s already exists, skipping", targetPath)
					if _, err := io.Copy(io.Discard, tr); err != nil {
						return fmt.Errorf("error skipping entry data in %s: %w", archive, err)
					}
					continue
				}
				return fmt.Errorf("failed to create file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", targetPath, err)
			}
			out.Close()
			if err := os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime); err != nil {
				debugf("failed to set times for %s: %v\n", targetPath, err)
			}
			if os.Geteuid() == 0 {
				_ = os.Chown(targetPath, hdr.Uid, hdr.Gid)
			}
		case tar.TypeSymlink:
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil {
				if os.IsExist(err) {
					log.Printf("Warning: %s already exists, skipping", targetPath)
					continue
				}
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
			if os.Geteuid() == 0 {
				_ = unix.Lchown(targetPath, hdr.Uid, hdr.Gid)
			}
		default:
			debugf("Skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}
	return nil
}

// ArchiveBuild exports an installed build as <data>/<name>.tar.xz so it can
// be moved to another machine and re-imported with Expand. System tar is
// tried first, with a pure-Go tar+xz writer as fallback.
func ArchiveBuild(cfg *Config, ex *Executor, b Build, verbose bool) (string, error) {
	if b.Name == BaselineName {
		return "", fmt.Errorf("the %s build cannot be archived", BaselineName)
	}
	if !b.Exists() {
		return "", fmt.Errorf("%w: %s", ErrBuildNotFound, b.Name)
	}

	out := filepath.Join(cfg.DataDir, b.Name+".tar.xz")

	if _, err := exec.LookPath("tar"); err == nil {
		flags := "cJf"
		if verbose {
			flags = "cvJf"
		}
		cmd := ex.Command("tar", flags, out, b.Name)
		cmd.Dir = cfg.DataDir
		if err := ex.Run(cmd); err == nil {
			return out, nil
		}
		debugf("system tar failed, falling back to internal tar+xz for %s\n", out)
	}

	if err := writeTarXZ(out, cfg.DataDir, b.Name); err != nil {
		os.Remove(out)
		return "", err
	}
	return out, nil
}

// writeTarXZ packs root/top into a .tar.xz at out; entry names keep the top
// directory so Expand can restore the build under its own name.
func writeTarXZ(out, root, top string) error {
	outFile, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create archive file %s: %w", out, err)
	}
	defer outFile.Close()

	xzw, err := xz.NewWriter(outFile)
	if err != nil {
		return fmt.Errorf("failed to create xz writer: %w", err)
	}
	tw := tar.NewWriter(xzw)

	err = filepath.Walk(filepath.Join(root, top), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		var linkTarget string
		if info.Mode()&os.ModeSymlink != 0 {
			linkTarget, err = os.Readlink(path)
			if err != nil {
				return fmt.Errorf("readlink %s: %w", path, err)
			}
		}

		hdr, err := tar.FileInfoHeader(info, linkTarget)
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}

		if !info.Mode().IsRegular() {
			return nil
		}
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to add files to archive: %w", err)
	}

	if err := tw.Close(); err != nil {
		return err
	}
	return xzw.Close()
}

// Expand imports a build archive produced by ArchiveBuild into the data
// root. The archive carries the build name as its top directory, so nothing
// is stripped.
func Expand(cfg *Config, ex *Executor, archive string, verbose bool) error {
	abs, err := filepath.Abs(archive)
	if err != nil {
		return err
	}
	if _, err := os.Stat(abs); err != nil {
		return fmt.Errorf("archive not found: %s: %w", abs, err)
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create %s: %w", cfg.DataDir, err)
	}

	if _, err := exec.LookPath("tar"); err == nil {
		flags := "xf"
		if verbose {
			flags = "xvf"
		}
		cmd := ex.Command("tar", flags, abs)
		cmd.Dir = cfg.DataDir
		if err := ex.Run(cmd); err == nil {
			return nil
		}
		debugf("system tar failed, falling back to internal extraction for %s\n", abs)
	}

	return extractTar(abs, cfg.DataDir, false)
}
