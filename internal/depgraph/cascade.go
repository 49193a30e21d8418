package depgraph

import "github.com/rtbo/dopamine/internal/model"

// cascadeOptions implements igCascadeOptions: a top-down walk of the
// resolved tree that, at each pack, pulls options targeted at it out of the
// caller-supplied remaining set, merges every dep-spec option attached to
// it (detecting conflicts), and pushes options not meant for it back into
// remaining for descendants. After the walk, any keys left in remaining
// target no resolved pack and are reported as unused.
func (g *Graph) cascadeOptions(callerOptions model.OptionSet) {
	g.nodeOptions = make(map[int]model.OptionSet)
	g.nodeOptionConflicts = make(map[int][]model.OptionConflict)

	g.unusedOptions = g.cascadeFrom(g.Root, callerOptions, make(map[int]bool))
}

// cascadeFrom visits packIdx and its resolved dependency tree, returning
// whatever remains of remaining after this subtree has claimed its share.
func (g *Graph) cascadeFrom(packIdx int, remaining model.OptionSet, visited map[int]bool) model.OptionSet {
	if visited[packIdx] {
		return remaining
	}
	visited[packIdx] = true

	pack := g.pack(packIdx)
	name := pack.Name

	mine := remaining.ForDependency(name)
	remaining = without(remaining, mine.Keys())

	var conflicts []model.OptionConflict
	opts := model.Merge(&conflicts, mine, pack.Options.ForRoot())
	opts = model.Merge(&conflicts, opts, pack.Options.ForDependency(name))
	g.nodeOptions[packIdx] = opts

	remaining = model.Merge(&conflicts, remaining, pack.Options.NotFor(name))
	if len(conflicts) > 0 {
		g.nodeOptionConflicts[packIdx] = conflicts
	}

	nodeIdx, ok := g.resolvedNodes[packIdx]
	if !ok {
		return remaining
	}
	node := g.node(nodeIdx)
	for _, eIdx := range node.DownEdges {
		downPack := g.Edges[eIdx].To
		remaining = g.cascadeFrom(downPack, remaining, visited)
	}
	return remaining
}

func without(os model.OptionSet, keys []string) model.OptionSet {
	out := model.NewOptionSet()
	skip := make(map[string]bool, len(keys))
	for _, k := range keys {
		skip[k] = true
	}
	for k, v := range os {
		if !skip[k] {
			out[k] = v
		}
	}
	return out
}
