package cache

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"github.com/ulikunitz/xz"

	"github.com/rtbo/dopamine/internal/model"
)

// IntegrityError reports that an extracted (or previously cached) tree has
// no recipe file. It is surfaced as-is and the tree is left on disk for
// manual inspection, per policy: a corrupt cache entry is not silently
// cleaned up.
type IntegrityError struct {
	Dir string
}

func (e *IntegrityError) Error() string {
	return "no recipe file found in " + e.Dir
}

// Registry is the capability CacheRecipe needs from a registry client:
// resolving a revision identifier and downloading the archive that
// contains it. Client (registry.go) is the HTTP implementation.
type Registry interface {
	GetLatestRecipeRevision(ctx context.Context, name model.PackageName, version string) (string, error)
	DownloadArchive(ctx context.Context, name model.PackageName, version, revision, destPath string) error
}

// CacheRecipe idempotently ensures (name, version, revision) is extracted
// under the cache root, downloading and unpacking its tar.xz archive if
// necessary. If revision is empty, the latest revision is resolved from the
// registry first. The revision lock is held exclusively for the duration of
// any extraction; a tree that is already present and valid is returned
// without taking the lock at all.
func (c *Cache) CacheRecipe(ctx context.Context, reg Registry, name model.PackageName, version, revision string) (RevisionDescriptor, error) {
	if revision == "" {
		rev, err := reg.GetLatestRecipeRevision(ctx, name, version)
		if err != nil {
			return RevisionDescriptor{}, err
		}
		return c.CacheRecipe(ctx, reg, name, version, rev)
	}

	dir := c.RevisionDir(name, version, revision)
	if hasRecipeFile(dir) {
		return RevisionDescriptor{Dir: dir, Revision: revision}, nil
	}

	release, err := c.lockFor(ctx, name, version, revision, true)
	if err != nil {
		return RevisionDescriptor{}, err
	}
	defer release()

	// Re-check now that we hold the exclusive lock: another process may
	// have extracted it while we were waiting.
	if hasRecipeFile(dir) {
		return RevisionDescriptor{Dir: dir, Revision: revision}, nil
	}

	archive, err := os.CreateTemp("", "dop-archive-*.tar.xz")
	if err != nil {
		return RevisionDescriptor{}, errors.Wrap(err, "caching recipe")
	}
	archivePath := archive.Name()
	archive.Close()
	defer os.Remove(archivePath)

	if err := reg.DownloadArchive(ctx, name, version, revision, archivePath); err != nil {
		return RevisionDescriptor{}, err
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return RevisionDescriptor{}, errors.Wrapf(err, "caching recipe into %s", dir)
	}
	if err := extractTarXz(archivePath, dir); err != nil {
		return RevisionDescriptor{}, errors.Wrapf(err, "extracting recipe into %s", dir)
	}

	if !hasRecipeFile(dir) {
		return RevisionDescriptor{}, &IntegrityError{Dir: dir}
	}

	return RevisionDescriptor{Dir: dir, Revision: revision}, nil
}

// extractTarXz decompresses and unpacks a tar.xz archive into destDir.
func extractTarXz(archivePath, destDir string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return err
	}
	defer f.Close()

	xr, err := xz.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "reading xz stream")
	}
	tr := tar.NewReader(xr)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "reading tar stream")
		}

		target := filepath.Join(destDir, filepath.Clean(hdr.Name))
		if !isWithinDir(destDir, target) {
			return errors.Errorf("archive entry %q escapes destination", hdr.Name)
		}

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
		case tar.TypeReg:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(hdr.Mode&0o777))
			if err != nil {
				return err
			}
			if _, err := io.Copy(out, tr); err != nil {
				out.Close()
				return err
			}
			if err := out.Close(); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
				return err
			}
			os.Remove(target)
			if err := os.Symlink(hdr.Linkname, target); err != nil {
				return err
			}
		}
	}
}

func isWithinDir(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
