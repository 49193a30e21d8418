package cache

import (
	"sort"

	"github.com/karrick/godirwalk"
)

// readDirNames lists dir's immediate children, sorted, skipping names that
// start with a dot. Revision "<rev>.lock" files are not skipped here.
func readDirNames(dir string) ([]string, error) {
	names, err := godirwalk.ReadDirnames(dir, nil)
	if err != nil {
		return nil, err
	}
	out := names[:0]
	for _, n := range names {
		if len(n) > 0 && n[0] != '.' {
			out = append(out, n)
		}
	}
	sort.Strings(out)
	return out, nil
}
