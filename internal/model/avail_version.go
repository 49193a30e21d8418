package model

import (
	"sort"

	"github.com/rtbo/dopamine/internal/semverx"
)

// AvailVersion pairs a version with the location it is available from.
type AvailVersion struct {
	Ver semverx.Semver
	Loc DepLocation
}

// Less orders AvailVersions lexicographically by (Ver, Loc).
func (a AvailVersion) Less(b AvailVersion) bool {
	if c := a.Ver.Compare(b.Ver); c != 0 {
		return c < 0
	}
	return a.Loc < b.Loc
}

// SortAvailVersions sorts a slice of AvailVersion in place, ascending.
func SortAvailVersions(vs []AvailVersion) {
	sort.Slice(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })
}

// DedupAvailVersions removes exact (Ver, Loc) duplicates from a sorted
// slice, preserving order.
func DedupAvailVersions(vs []AvailVersion) []AvailVersion {
	if len(vs) == 0 {
		return vs
	}
	out := vs[:1]
	for _, v := range vs[1:] {
		last := out[len(out)-1]
		if last.Ver.Equal(v.Ver) && last.Loc == v.Loc {
			continue
		}
		out = append(out, v)
	}
	return out
}
