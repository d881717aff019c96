package toolforge

import (
	"archive/tar"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/ulikunitz/xz"
)

// extractArchive unpacks archive into destDir, stripping the single
// top-level directory. destDir is created fresh and removed again on
// failure or cancellation so a later run never resumes from a
// half-extracted tree.
func extractArchive(ctx context.Context, archive, destDir string) error {
	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return fmt.Errorf("failed to create source directory %s: %w", destDir, err)
	}
	if err := extractTar(ctx, archive, destDir); err != nil {
		_ = os.RemoveAll(destDir)
		return err
	}
	return nil
}

// extractTar extracts a (possibly compressed) tar archive into dest. It
// prefers system tar, run under the Executor so cancellation terminates
// the child, and falls back to a native reader that handles PAX headers
// and preserves timestamps.
func extractTar(ctx context.Context, archive, dest string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("extraction aborted: %w", err)
	}

	f, err := os.Open(archive)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archive, err)
	}

	if _, lerr := exec.LookPath("tar"); lerr == nil {
		exe := NewExecutor(ctx, io.Discard)
		err := exe.Run(exec.Command("tar", "xf", archive, "-C", dest, "--strip-components=1"))
		if err == nil {
			_ = f.Close()
			debugf("used system tar for %s\n", archive)
			return nil
		}
		if ctx.Err() != nil {
			_ = f.Close()
			return err
		}
		debugf("system tar failed for %s, using native extraction\n", archive)
	}
	defer f.Close()

	var r io.Reader = f
	switch {
	case strings.HasSuffix(archive, ".tar.gz") || strings.HasSuffix(archive, ".tgz"):
		gz, err := pgzip.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create gzip reader for %s: %w", archive, err)
		}
		defer gz.Close()
		r = gz
	case strings.HasSuffix(archive, ".tar.bz2"):
		r = bzip2.NewReader(f)
	case strings.HasSuffix(archive, ".tar.xz"):
		xzr, err := xz.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create xz reader for %s: %w", archive, err)
		}
		r = xzr
	case strings.HasSuffix(archive, ".tar.zst"):
		zst, err := zstd.NewReader(f)
		if err != nil {
			return fmt.Errorf("failed to create zstd reader for %s: %w", archive, err)
		}
		defer zst.Close()
		r = zst
	case strings.HasSuffix(archive, ".tar"):
		// No compression
	default:
		return fmt.Errorf("unsupported archive format: %s", archive)
	}

	tr := tar.NewReader(r)

	// Prefix of the single top-level directory, e.g. "gcc-14.2.0/".
	var prefix string
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("extraction aborted: %w", err)
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("error reading tar header in %s: %w", archive, err)
		}

		if hdr.Typeflag == tar.TypeXHeader || hdr.Typeflag == tar.TypeXGlobalHeader {
			if _, err := io.Copy(io.Discard, tr); err != nil {
				return fmt.Errorf("error skipping extended header data in %s: %w", archive, err)
			}
			continue
		}

		if prefix == "" && (hdr.Typeflag == tar.TypeDir || hdr.Typeflag == tar.TypeReg) {
			if slashIdx := strings.Index(hdr.Name, "/"); slashIdx != -1 {
				prefix = hdr.Name[:slashIdx+1]
				debugf("detected tar prefix for stripping: %s\n", prefix)
			}
		}

		targetName := strings.TrimPrefix(hdr.Name, prefix)
		if targetName == "" {
			continue
		}
		targetPath := filepath.Join(dest, targetName)
		if !strings.HasPrefix(targetPath, filepath.Clean(dest)+string(os.PathSeparator)) {
			return fmt.Errorf("illegal path in archive: %s", hdr.Name)
		}

		if err := os.MkdirAll(filepath.Dir(targetPath), 0o755); err != nil {
			return fmt.Errorf("failed to create parent dir for %s: %w", targetPath, err)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(targetPath, os.FileMode(hdr.Mode)); err != nil {
				return fmt.Errorf("failed to create dir %s: %w", targetPath, err)
			}
			_ = os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime)
		case tar.TypeReg:
			out, err := os.OpenFile(targetPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
			if err != nil {
				return fmt.Errorf("failed to create file %s: %w", targetPath, err)
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return fmt.Errorf("failed to write file %s: %w", targetPath, err)
			}
			out.Close()
			_ = os.Chtimes(targetPath, hdr.AccessTime, hdr.ModTime)
		case tar.TypeSymlink:
			_ = os.Remove(targetPath)
			if err := os.Symlink(hdr.Linkname, targetPath); err != nil && !os.IsExist(err) {
				return fmt.Errorf("failed to create symlink %s -> %s: %w", targetPath, hdr.Linkname, err)
			}
		default:
			debugf("skipping unsupported tar entry type %c: %s\n", hdr.Typeflag, hdr.Name)
		}
	}

	if prefix == "" {
		debugf("no top-level directory prefix found in %s; extracted without stripping\n", archive)
	}
	return nil
}
