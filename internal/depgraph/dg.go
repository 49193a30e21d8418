package depgraph

import (
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// DgNode is one resolved package: an immutable transcription of the IgNode
// chosen for it, plus the options and conflicts the cascade assigned.
type DgNode struct {
	Name     model.PackageName
	Kind     model.DepKind
	AVer     model.AvailVersion
	Revision string

	Options         model.OptionSet
	OptionConflicts []model.OptionConflict

	Up   []*DgEdge
	Down []*DgEdge
}

// DgEdge links two DgNodes under the VersionSpec of the original IgEdge.
type DgEdge struct {
	From *DgNode
	To   *DgNode
	Spec semverx.VersionSpec
}

// DgGraph is the immutable resolved graph produced by dgCreate.
type DgGraph struct {
	Root  *DgNode
	Nodes []*DgNode
}

// Create runs Phase 4 (dgCreate): transcribes the resolved candidate chosen
// for every pack into a DgNode, and every traversed edge into a DgEdge.
// DgNode construction is memoized per IgNode so diamond dependencies share a
// single node.
func (g *Graph) Create() *DgGraph {
	memo := make(map[int]*DgNode) // IgNode index -> DgNode
	dg := &DgGraph{}

	var build func(packIdx int) *DgNode
	build = func(packIdx int) *DgNode {
		nodeIdx := g.resolvedNodes[packIdx]
		if n, ok := memo[nodeIdx]; ok {
			return n
		}

		pack := g.pack(packIdx)
		node := g.node(nodeIdx)
		dn := &DgNode{
			Name:            pack.Name,
			Kind:            pack.Kind,
			AVer:            node.AVer,
			Revision:        node.Revision,
			Options:         g.nodeOptions[packIdx],
			OptionConflicts: g.nodeOptionConflicts[packIdx],
		}
		memo[nodeIdx] = dn
		dg.Nodes = append(dg.Nodes, dn)

		for _, eIdx := range node.DownEdges {
			e := g.Edges[eIdx]
			downPackIdx := e.To
			if _, ok := g.resolvedNodes[downPackIdx]; !ok {
				// Pruned by CheckCompat/Resolve without ever being chosen:
				// shouldn't happen for a successfully resolved graph, skip
				// defensively.
				continue
			}
			downNode := build(downPackIdx)
			dge := &DgEdge{From: dn, To: downNode, Spec: e.Spec}
			dn.Down = append(dn.Down, dge)
			downNode.Up = append(downNode.Up, dge)
		}
		return dn
	}

	dg.Root = build(g.Root)
	return dg
}

// TraverseBottomUp yields every node such that every dependency is yielded
// before its dependents. Sibling order follows Down-edge insertion order,
// which itself follows recipe-declared dependency order.
func (dg *DgGraph) TraverseBottomUp(visit func(*DgNode) error) error {
	visited := make(map[*DgNode]bool)
	var walk func(n *DgNode) error
	walk = func(n *DgNode) error {
		if visited[n] {
			return nil
		}
		visited[n] = true
		for _, e := range n.Down {
			if err := walk(e.To); err != nil {
				return err
			}
		}
		return visit(n)
	}
	return walk(dg.Root)
}

// TraverseTopDown yields the root first, then guarantees each node is
// yielded before its dependencies.
func (dg *DgGraph) TraverseTopDown(visit func(*DgNode) error) error {
	var order []*DgNode
	_ = dg.TraverseBottomUp(func(n *DgNode) error {
		order = append(order, n)
		return nil
	})
	for i := len(order) - 1; i >= 0; i-- {
		if err := visit(order[i]); err != nil {
			return err
		}
	}
	return nil
}
