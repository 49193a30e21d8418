package depgraph

import (
	"context"
	"sort"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// resolved maps a pack index to the node index chosen for it. Populated by
// Resolve.
type resolved map[int]int

// Resolve runs Phase 3 (igResolve + igCascadeOptions): picks one candidate
// per pack depth-first from the root, stamps Dop recipe revisions onto
// non-system choices, then cascades callerOptions top-down.
func (g *Graph) Resolve(ctx context.Context, callerOptions model.OptionSet) error {
	g.resolvedNodes = make(resolved)

	rootPack := g.pack(g.Root)
	if len(rootPack.Candidates) != 1 {
		return errors.Errorf("root pack %s must have exactly one candidate", rootPack.Name)
	}
	g.resolvedNodes[g.Root] = rootPack.Candidates[0]

	if err := g.resolveFrom(ctx, g.Root); err != nil {
		return err
	}

	g.cascadeOptions(callerOptions)
	return nil
}

func (g *Graph) resolveFrom(ctx context.Context, packIdx int) error {
	nodeIdx := g.resolvedNodes[packIdx]
	node := g.node(nodeIdx)

	for _, eIdx := range node.DownEdges {
		e := g.Edges[eIdx]
		downPack := e.To
		if _, ok := g.resolvedNodes[downPack]; ok {
			continue
		}

		var chosen int
		if super := g.pack(downPack).Super; super >= 0 {
			superNode, ok := g.resolvedNodes[super]
			if !ok {
				return errors.Errorf("sub-module %s resolved before its super-pack", g.pack(downPack).Name)
			}
			idx, ok := g.matchingCandidate(downPack, g.node(superNode).AVer.Ver)
			if !ok {
				return errors.Errorf("sub-module %s has no candidate matching super-pack version", g.pack(downPack).Name)
			}
			chosen = idx
		} else {
			idx, err := g.chooseVersion(downPack)
			if err != nil {
				return err
			}
			chosen = idx
		}

		g.resolvedNodes[downPack] = chosen
		if err := g.stampRevision(ctx, downPack, chosen); err != nil {
			return err
		}
		if err := g.resolveFrom(ctx, downPack); err != nil {
			return err
		}
	}
	return nil
}

func (g *Graph) matchingCandidate(packIdx int, ver semverx.Semver) (int, bool) {
	for _, idx := range g.pack(packIdx).Candidates {
		if g.node(idx).AVer.Ver.Equal(ver) {
			return idx, true
		}
	}
	return 0, false
}

func (g *Graph) stampRevision(ctx context.Context, packIdx, nodeIdx int) error {
	pack := g.pack(packIdx)
	node := g.node(nodeIdx)
	if pack.Kind != model.KindDop || node.AVer.Loc.IsSystem() {
		return nil
	}
	r, err := g.DopService.PackRecipe(ctx, pack.Name, node.AVer, "")
	if err != nil {
		return err
	}
	defer r.Close()
	rev, err := r.Revision()
	if err != nil {
		return err
	}
	node.Revision = rev
	return nil
}

// chooseVersion implements the scoring table: every live candidate gets a
// score of locationScore(mode, loc) + verIndex*verBumpScore(mode), and the
// highest-scoring candidate wins, except that a preSelected version for
// this pack overrides scoring entirely.
func (g *Graph) chooseVersion(packIdx int) (int, error) {
	pack := g.pack(packIdx)
	live := liveCandidates(pack)
	if len(live) == 0 {
		return 0, errors.Errorf("pack %s has no live candidates to choose from", pack.Name)
	}

	if pre, ok := g.Heuristics.PreSelected[pack.Name]; ok {
		if idx, ok := findByVersionLoc(g, live, pre, model.LocCache); ok {
			return idx, nil
		}
		if idx, ok := findByVersionLoc(g, live, pre, model.LocNetwork); ok {
			return idx, nil
		}
		return 0, errors.Errorf("preSelected version %s for %s is not available in cache or network", pre.String(), pack.Name)
	}

	sorted := sortedDistinctVersions(g, live)
	verIndexOf := make(map[string]int, len(sorted))
	for i, v := range sorted {
		verIndexOf[v] = i + 1
	}

	n := len(compatibleVersions(g, live))
	high := float64(10 * n)
	mid := high / 2
	low := 1.0

	var locScore func(loc model.DepLocation) float64
	var bump float64
	switch g.Heuristics.Mode {
	case model.PreferCache:
		locScore = func(loc model.DepLocation) float64 {
			switch loc {
			case model.LocSystem:
				return mid
			case model.LocCache:
				return high
			default:
				return 0
			}
		}
		bump = low
	case model.PreferLocal:
		locScore = func(loc model.DepLocation) float64 {
			switch loc {
			case model.LocSystem:
				return high
			case model.LocCache:
				return high + 1
			default:
				return 0
			}
		}
		bump = low + 1
	case model.PickHighest:
		locScore = func(loc model.DepLocation) float64 {
			switch loc {
			case model.LocSystem:
				return low
			case model.LocCache:
				return mid
			default:
				return 0
			}
		}
		bump = high
	default: // PreferSystem
		locScore = func(loc model.DepLocation) float64 {
			switch loc {
			case model.LocSystem:
				return high
			case model.LocCache:
				return mid
			default:
				return 0
			}
		}
		bump = low
	}

	best := -1
	var bestScore float64
	for _, idx := range live {
		node := g.node(idx)
		vi := float64(verIndexOf[node.AVer.Ver.String()])
		score := locScore(node.AVer.Loc) + vi*bump
		if best == -1 || score > bestScore {
			best = idx
			bestScore = score
		}
	}
	return best, nil
}

// liveCandidates is pack.Candidates, which by the time chooseVersion runs
// (after CheckCompat) already holds only surviving candidates.
func liveCandidates(pack *IgPack) []int {
	return pack.Candidates
}

func compatibleVersions(g *Graph, live []int) map[string]bool {
	out := make(map[string]bool)
	for _, idx := range live {
		out[g.node(idx).AVer.Ver.String()] = true
	}
	return out
}

func sortedDistinctVersions(g *Graph, live []int) []string {
	seen := make(map[string]semverx.Semver, len(live))
	for _, idx := range live {
		ver := g.node(idx).AVer.Ver
		seen[ver.String()] = ver
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return seen[out[i]].Compare(seen[out[j]]) < 0
	})
	return out
}

func findByVersionLoc(g *Graph, live []int, ver semverx.Semver, loc model.DepLocation) (int, bool) {
	for _, idx := range live {
		node := g.node(idx)
		if node.AVer.Loc == loc && node.AVer.Ver.Equal(ver) {
			return idx, true
		}
	}
	return 0, false
}
