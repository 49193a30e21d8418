package model

import "github.com/rtbo/dopamine/internal/semverx"

// HeuristicMode selects the scoring policy igResolve.chooseVersion uses
// when several candidate versions of a package remain after compatibility
// filtering.
type HeuristicMode int

const (
	PreferSystem HeuristicMode = iota
	PreferCache
	PreferLocal
	PickHighest
)

// SystemPolicy controls whether system (pkg-config-discovered) candidates
// are considered at all for a given package.
type SystemPolicy int

const (
	SystemAllow SystemPolicy = iota
	SystemDisallow
	SystemAllowedList
	SystemDisallowedList
)

// Heuristics bundles the resolver's user-tunable policy knobs: how to pick
// among otherwise-compatible versions, which packages may resolve to a
// system copy, and any (name -> version) pins that skip scoring entirely.
type Heuristics struct {
	Mode         HeuristicMode
	System       SystemPolicy
	SystemList   []PackageName
	PreSelected  map[PackageName]semverx.Semver
}

// Allow reports whether av is an admissible candidate for pkg under the
// system policy. It does not evaluate version constraints; igPrepare still
// separately filters by DepSpec.Spec.Matches.
func (h Heuristics) Allow(pkg PackageName, av AvailVersion) bool {
	if !av.Loc.IsSystem() {
		return true
	}
	switch h.System {
	case SystemDisallow:
		return false
	case SystemAllowedList:
		return containsName(h.SystemList, pkg)
	case SystemDisallowedList:
		return !containsName(h.SystemList, pkg)
	default:
		return true
	}
}

// String renders the mode for diagnostics and lock-file serialization.
func (m HeuristicMode) String() string {
	switch m {
	case PreferCache:
		return "preferCache"
	case PreferLocal:
		return "preferLocal"
	case PickHighest:
		return "pickHighest"
	default:
		return "preferSystem"
	}
}

// String renders the policy for diagnostics and lock-file serialization.
func (p SystemPolicy) String() string {
	switch p {
	case SystemDisallow:
		return "disallow"
	case SystemAllowedList:
		return "allowedList"
	case SystemDisallowedList:
		return "disallowedList"
	default:
		return "allow"
	}
}

func containsName(list []PackageName, n PackageName) bool {
	for _, l := range list {
		if l == n {
			return true
		}
	}
	return false
}
