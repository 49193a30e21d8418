package depgraph

import "github.com/rtbo/dopamine/internal/model"

// CheckCompat runs Phase 2 (igCheckCompat): a bottom-up iterative
// fixed-point filter. A candidate of a non-root pack survives only if,
// for every up-pack with at least one edge into this pack, some candidate
// of that up-pack either has no edge to this pack at all, or has an edge
// whose spec matches this candidate's version. Candidates that fail are
// removed and their outgoing edges stop counting toward downstream packs.
// If a pack loses every candidate, resolution fails with
// UnresolvedDepException.
func (g *Graph) CheckCompat() error {
	for {
		changed := false
		for packIdx, pack := range g.Packs {
			if packIdx == g.Root {
				continue
			}
			removedAny, err := g.filterPack(packIdx, pack)
			if err != nil {
				return err
			}
			if removedAny {
				changed = true
			}
		}
		if !changed {
			return nil
		}
	}
}

func (g *Graph) filterPack(packIdx int, pack *IgPack) (bool, error) {
	upPacks := g.upPacksOf(packIdx)
	if len(upPacks) == 0 {
		return false, nil
	}

	removedAny := false
	var survivors []int
	var demands []ConflictingDemand

	for _, candIdx := range pack.Candidates {
		cand := g.node(candIdx)
		if cand.removed {
			continue
		}
		ok := true
		var failingUp int = -1
		for _, upIdx := range upPacks {
			if !g.upPackSatisfies(upIdx, packIdx, cand.AVer) {
				ok = false
				failingUp = upIdx
				break
			}
		}
		if ok {
			survivors = append(survivors, candIdx)
		} else {
			cand.removed = true
			removedAny = true
			demands = append(demands, ConflictingDemand{
				UpPack: g.pack(failingUp).Name,
				Spec:   g.representativeSpec(failingUp, packIdx),
			})
		}
	}

	pack.Candidates = survivors
	if len(pack.Candidates) == 0 {
		return removedAny, &UnresolvedDepException{Pack: pack.Name, Demands: demands}
	}
	return removedAny, nil
}

// upPacksOf returns, for packIdx, the set of pack indices that have at
// least one (non-removed-node) edge targeting it.
func (g *Graph) upPacksOf(packIdx int) []int {
	seen := make(map[int]bool)
	var out []int
	for _, e := range g.Edges {
		if e.To != packIdx {
			continue
		}
		fromNode := g.node(e.From)
		if fromNode.removed {
			continue
		}
		upPack := fromNode.Pack
		if !seen[upPack] {
			seen[upPack] = true
			out = append(out, upPack)
		}
	}
	return out
}

// upPackSatisfies reports whether up-pack upIdx permits candidate version
// cver of pack packIdx: true if some live candidate of upIdx has no edge to
// packIdx, or has one whose spec matches cver.
func (g *Graph) upPackSatisfies(upIdx, packIdx int, cver model.AvailVersion) bool {
	for _, upCandIdx := range g.pack(upIdx).Candidates {
		upCand := g.node(upCandIdx)
		if upCand.removed {
			continue
		}
		hasEdge := false
		matched := false
		for _, eIdx := range upCand.DownEdges {
			e := g.Edges[eIdx]
			if e.To != packIdx {
				continue
			}
			hasEdge = true
			if e.Spec.Matches(cver.Ver) {
				matched = true
			}
		}
		if !hasEdge || matched {
			return true
		}
	}
	return false
}

// representativeSpec returns one human-readable spec string from upIdx's
// live candidates that target packIdx, for error reporting.
func (g *Graph) representativeSpec(upIdx, packIdx int) string {
	for _, upCandIdx := range g.pack(upIdx).Candidates {
		upCand := g.node(upCandIdx)
		if upCand.removed {
			continue
		}
		for _, eIdx := range upCand.DownEdges {
			e := g.Edges[eIdx]
			if e.To == packIdx {
				return e.Spec.String()
			}
		}
	}
	return "?"
}
