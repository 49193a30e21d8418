// Package cache implements the on-disk package cache: a tree rooted at a
// per-user directory, keyed by (package name, version, revision), each
// revision guarded by its own advisory lock file so that concurrent
// dopamine processes on the same machine never race an extraction.
package cache

import (
	"context"
	"path/filepath"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/state"
)

// Cache is a package cache rooted at Root. Dop packages live directly under
// Root; Dub packages (which carry no revision) live under a sibling
// "dub-cache" tree managed the same way minus the revision level.
type Cache struct {
	Root string
	Kind model.DepKind
}

// New returns a Cache rooted at root for the given package kind.
func New(root string, kind model.DepKind) *Cache {
	return &Cache{Root: root, Kind: kind}
}

// pkgDir returns the directory segment used for a package name: the module
// suffix, if any, is stripped, since sub-modules of a meta-package share
// their super-package's cache entry.
func pkgDir(name model.PackageName) string {
	return string(name.PkgName())
}

// RevisionDir returns the directory holding the extracted recipe tree for
// (name, version, revision).
func (c *Cache) RevisionDir(name model.PackageName, version, revision string) string {
	return filepath.Join(c.Root, pkgDir(name), version, revision)
}

// LockPath returns the advisory lock file path guarding extraction into
// RevisionDir(name, version, revision).
func (c *Cache) LockPath(name model.PackageName, version, revision string) string {
	return c.RevisionDir(name, version, revision) + ".lock"
}

// RevisionDescriptor describes an extracted, validated revision tree.
type RevisionDescriptor struct {
	Dir      string
	Revision string
}

// PackageVersionDir describes one (name, version) directory discovered by
// PackageDirs, together with the revisions already cached under it.
type PackageVersionDir struct {
	Name      model.PackageName
	Version   string
	Revisions []string
}

// PackageDirs walks the cache root and returns every (name, version)
// directory it finds along with its already-cached, recipe-valid
// revisions. A missing cache root is not an error: it simply means nothing
// is cached yet.
func (c *Cache) PackageDirs() ([]PackageVersionDir, error) {
	names, err := readDirNames(c.Root)
	if err != nil {
		return nil, nil
	}

	var out []PackageVersionDir
	for _, n := range names {
		versions, err := readDirNames(filepath.Join(c.Root, n))
		if err != nil {
			continue
		}
		for _, v := range versions {
			revDir := filepath.Join(c.Root, n, v)
			revs, err := readDirNames(revDir)
			if err != nil {
				continue
			}
			var cachedRevs []string
			for _, r := range revs {
				if hasRecipeFile(filepath.Join(revDir, r)) {
					cachedRevs = append(cachedRevs, r)
				}
			}
			out = append(out, PackageVersionDir{
				Name:      model.PackageName(n),
				Version:   v,
				Revisions: cachedRevs,
			})
		}
	}
	return out, nil
}

func hasRecipeFile(dir string) bool {
	r, err := recipehost.Load(dir)
	if err != nil {
		return false
	}
	r.Close()
	return true
}

// HasRevision reports whether (name, version, revision) is already
// extracted and holds a valid recipe file.
func (c *Cache) HasRevision(name model.PackageName, version, revision string) bool {
	return hasRecipeFile(c.RevisionDir(name, version, revision))
}

// lockFor acquires the revision lock, exclusively if exclusive is set,
// otherwise shared, returning a release function.
func (c *Cache) lockFor(ctx context.Context, name model.PackageName, version, revision string, exclusive bool) (func() error, error) {
	l := state.NewLock(c.LockPath(name, version, revision), nil)
	var err error
	if exclusive {
		err = l.Acquire(ctx)
	} else {
		err = l.AcquireShared(ctx)
	}
	if err != nil {
		return nil, err
	}
	return l.Release, nil
}
