package recipehost

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"
)

// Installer copies files and directory trees from a recipe's source tree
// into its install tree. It is the Go-side implementation backing the
// recipe-visible installer(src, dest) helper.
type Installer struct {
	Src, Dest string
}

// NewInstaller returns an Installer rooted at src (typically BuildDirs.Src)
// copying into dest (typically BuildDirs.Install).
func NewInstaller(src, dest string) Installer {
	return Installer{Src: src, Dest: dest}
}

// FileOpts configures Installer.File.
type FileOpts struct {
	Rename string // if set, the destination basename, overriding relout's
}

// File copies Src/relpath to Dest/relout (or Dest/relout's directory plus
// Rename, if set), creating parent directories as needed.
func (in Installer) File(relpath, relout string, opts FileOpts) error {
	src := filepath.Join(in.Src, relpath)
	dst := filepath.Join(in.Dest, relout)
	if opts.Rename != "" {
		dst = filepath.Join(filepath.Dir(dst), opts.Rename)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "installing %s", relpath)
	}
	if _, err := shutil.Copy(src, dst, true); err != nil {
		return errors.Wrapf(err, "installing %s", relpath)
	}
	return nil
}

// Dir recursively copies Src/relpath to Dest/relout.
func (in Installer) Dir(relpath, relout string) error {
	src := filepath.Join(in.Src, relpath)
	dst := filepath.Join(in.Dest, relout)
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return errors.Wrapf(err, "installing directory %s", relpath)
	}
	if _, err := shutil.CopyTree(src, dst, nil); err != nil {
		return errors.Wrapf(err, "installing directory %s", relpath)
	}
	return nil
}
