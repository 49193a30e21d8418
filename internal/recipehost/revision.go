package recipehost

import (
	"crypto/sha1" //nolint:gosec // content identity, not a security boundary; spec mandates SHA-1
	"encoding/hex"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/errors"
)

// Revision computes the recipe's content revision: the SHA-1 of the
// concatenated bytes of every file the recipe's include() hook declared
// (plus the recipe file itself), canonicalized and sorted by path,
// truncated to the first 8 bytes and rendered as lowercase hex.
//
// Two recipe trees produce the same revision iff they declare the same
// file set with identical byte content — reordering the include() list or
// moving files between identically-named directories does not change it,
// since paths are canonicalized and sorted before hashing.
func (r *Recipe) Revision() (string, error) {
	paths := make(map[string]struct{}, len(r.Meta.Included)+1)
	recipePath, err := filepath.Abs(r.Path)
	if err != nil {
		return "", errors.Wrap(err, "computing revision")
	}
	paths[filepath.Clean(recipePath)] = struct{}{}
	for _, p := range r.Meta.Included {
		abs := p
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(r.Dir, p)
		}
		paths[filepath.Clean(abs)] = struct{}{}
	}

	sorted := make([]string, 0, len(paths))
	for p := range paths {
		sorted = append(sorted, p)
	}
	sort.Strings(sorted)

	h := sha1.New() //nolint:gosec
	for _, p := range sorted {
		b, err := os.ReadFile(p)
		if err != nil {
			return "", errors.Wrapf(err, "computing revision: reading %s", p)
		}
		h.Write(b)
	}

	sum := h.Sum(nil)
	return hex.EncodeToString(sum[:8]), nil
}
