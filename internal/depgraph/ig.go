// Package depgraph implements the two-phase dependency resolver: an
// intermediate graph of candidate (package, version) pairs is built,
// pruned to a compatible fixed point, then one candidate per package is
// chosen and materialized into an immutable resolved graph.
//
// Per the arena design: nodes, packs, and edges live in parallel slices
// indexed by plain ints rather than linked via pointers, so the whole
// graph serializes trivially and has no ownership ambiguity — mirroring
// how the rest of the corpus favors index-based handles over shared
// pointers when building a graph incrementally.
package depgraph

import (
	"context"

	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/semverx"
)

// IgPack groups every candidate version the resolver is considering for
// one (name, kind) package.
type IgPack struct {
	Name  model.PackageName
	Kind  model.DepKind
	Super int // index of the super-pack, for a sub-module; -1 otherwise

	Candidates []int // IgNode indices, in discovery order

	Options model.OptionSet // union of options attached to edges into this pack

	availCached bool
	avail       []model.AvailVersion
}

// IgNode is one candidate (pack, version/location) pair.
type IgNode struct {
	Pack     int
	AVer     model.AvailVersion
	Revision string // stamped during Phase 3 for non-system Dop candidates

	DownEdges []int // outgoing IgEdge indices
	removed   bool
}

// IgEdge links a candidate node to a downstream package under a version
// constraint.
type IgEdge struct {
	From int // IgNode index
	To   int // IgPack index
	Spec semverx.VersionSpec
}

// Graph is the arena holding every pack/node/edge discovered by igPrepare,
// plus enough bookkeeping (root index, per-kind services) to run the later
// phases.
type Graph struct {
	Packs []*IgPack
	Nodes []*IgNode
	Edges []*IgEdge

	Root int // IgPack index of the root recipe

	DopService *depservice.Service
	DubService *depservice.Service
	Heuristics model.Heuristics
	Config     profile.BuildConfig

	packIndex map[packKey]int

	resolvedNodes       resolved
	unusedOptions       model.OptionSet
	nodeOptions         map[int]model.OptionSet
	nodeOptionConflicts map[int][]model.OptionConflict
}

type packKey struct {
	name model.PackageName
	kind model.DepKind
}

func newGraph(dop, dub *depservice.Service, h model.Heuristics, cfg profile.BuildConfig) *Graph {
	return &Graph{
		DopService: dop,
		DubService: dub,
		Heuristics: h,
		Config:     cfg,
		packIndex:  make(map[packKey]int),
	}
}

func (g *Graph) serviceFor(kind model.DepKind) *depservice.Service {
	if kind == model.KindDub {
		return g.DubService
	}
	return g.DopService
}

func (g *Graph) pack(i int) *IgPack { return g.Packs[i] }
func (g *Graph) node(i int) *IgNode { return g.Nodes[i] }

// addPack registers a new pack under the exact name given — the caller
// decides whether that's a super-pack's stripped module name (resolvePack)
// or a sub-pack's full "super:module" name (subModulePack); addPack
// stripping it itself would clobber whichever of the two was registered
// first, since both share the same stripped name.
func (g *Graph) addPack(name model.PackageName, kind model.DepKind, super int) int {
	idx := len(g.Packs)
	p := &IgPack{Name: name, Kind: kind, Super: super, Options: model.NewOptionSet()}
	g.Packs = append(g.Packs, p)
	g.packIndex[packKey{name: name, kind: kind}] = idx
	return idx
}

func (g *Graph) addNode(pack int, av model.AvailVersion) int {
	idx := len(g.Nodes)
	g.Nodes = append(g.Nodes, &IgNode{Pack: pack, AVer: av})
	g.Packs[pack].Candidates = append(g.Packs[pack].Candidates, idx)
	return idx
}

func (g *Graph) addEdge(from, to int, spec semverx.VersionSpec) int {
	idx := len(g.Edges)
	g.Edges = append(g.Edges, &IgEdge{From: from, To: to, Spec: spec})
	g.Nodes[from].DownEdges = append(g.Nodes[from].DownEdges, idx)
	return idx
}

// UnresolvedDepException is raised when a pack loses every candidate
// during igCheckCompat, or never gains one because no source offers a
// compatible version in Phase 1.
type UnresolvedDepException struct {
	Pack    model.PackageName
	Demands []ConflictingDemand
}

// ConflictingDemand records one up-pack's unsatisfiable constraint on the
// pack named by the enclosing UnresolvedDepException.
type ConflictingDemand struct {
	UpPack model.PackageName
	Spec   string
}

func (e *UnresolvedDepException) Error() string {
	msg := "no version of " + string(e.Pack) + " satisfies all constraints:"
	for _, d := range e.Demands {
		msg += " " + string(d.UpPack) + " requires " + d.Spec + ";"
	}
	return msg
}

// Prepare runs Phase 1 (igPrepare): starting from the root recipe, it
// recursively discovers every reachable package, building IgPack/IgNode/
// IgEdge entries for every (spec-matching, heuristically-allowed)
// candidate version, and recursing into every non-system candidate.
func Prepare(ctx context.Context, root *recipehost.Recipe, dop, dub *depservice.Service, h model.Heuristics, cfg profile.BuildConfig) (*Graph, error) {
	g := newGraph(dop, dub, h, cfg)

	rootPack := g.addPack(root.Meta.Name, model.KindDop, -1)
	rootAv := model.AvailVersion{Ver: root.Meta.Version, Loc: model.LocCache}
	rootNode := g.addNode(rootPack, rootAv)
	g.Root = rootPack

	visited := make(map[int]bool)
	if err := g.visitRoot(ctx, root, rootNode, visited); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) visitRoot(ctx context.Context, root *recipehost.Recipe, rootNode int, visited map[int]bool) error {
	if visited[rootNode] {
		return nil
	}
	visited[rootNode] = true

	var specs []model.DepSpec
	if root.HasDependenciesHook() {
		var err error
		specs, err = root.Dependencies(g.Config)
		if err != nil {
			return err
		}
	}
	return g.addDeps(ctx, rootNode, specs, visited)
}

func (g *Graph) visitNode(ctx context.Context, nodeIdx int, visited map[int]bool) error {
	if visited[nodeIdx] {
		return nil
	}
	visited[nodeIdx] = true

	node := g.node(nodeIdx)
	if node.AVer.Loc.IsSystem() {
		// System candidates are materialized as leaves: their
		// sub-dependencies are assumed already installed.
		return nil
	}
	pack := g.pack(node.Pack)
	svc := g.serviceFor(pack.Kind)

	specs, err := svc.PackDependencies(ctx, g.Config, pack.Name, node.AVer)
	if err != nil {
		return err
	}
	return g.addDeps(ctx, nodeIdx, specs, visited)
}

func (g *Graph) addDeps(ctx context.Context, fromNode int, specs []model.DepSpec, visited map[int]bool) error {
	for _, dep := range specs {
		packIdx, err := g.resolvePack(ctx, dep)
		if err != nil {
			return err
		}
		pack := g.pack(packIdx)
		pack.Options = mergedOptions(pack.Options, dep.Options)

		avail, err := g.availVersionsFor(ctx, pack)
		if err != nil {
			return err
		}

		var newNodes []int
		for _, av := range avail {
			if !dep.Spec.Matches(av.Ver) || !g.Heuristics.Allow(dep.Name, av) {
				continue
			}
			if idx, ok := g.existingCandidate(packIdx, av); ok {
				newNodes = append(newNodes, idx)
				continue
			}
			idx := g.addNode(packIdx, av)
			newNodes = append(newNodes, idx)
		}

		g.addEdge(fromNode, packIdx, dep.Spec)

		for _, idx := range newNodes {
			if err := g.visitNode(ctx, idx, visited); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) existingCandidate(packIdx int, av model.AvailVersion) (int, bool) {
	for _, idx := range g.pack(packIdx).Candidates {
		n := g.node(idx)
		if n.AVer.Ver.Equal(av.Ver) && n.AVer.Loc == av.Loc {
			return idx, true
		}
	}
	return 0, false
}

func (g *Graph) resolvePack(ctx context.Context, dep model.DepSpec) (int, error) {
	key := packKey{name: dep.Name.PkgName(), kind: dep.Kind}
	if idx, ok := g.packIndex[key]; ok {
		if dep.Name.IsModule() {
			return g.subModulePack(idx, dep)
		}
		return idx, nil
	}
	idx := g.addPack(dep.Name.PkgName(), dep.Kind, -1)
	if dep.Name.IsModule() {
		return g.subModulePack(idx, dep)
	}
	return idx, nil
}

// subModulePack returns (creating if necessary) the sub-pack for a
// meta-package module, linked to its super-pack so all modules resolve to
// the same version.
func (g *Graph) subModulePack(superIdx int, dep model.DepSpec) (int, error) {
	key := packKey{name: dep.Name, kind: dep.Kind}
	if idx, ok := g.packIndex[key]; ok {
		return idx, nil
	}
	idx := g.addPack(dep.Name, dep.Kind, superIdx)
	return idx, nil
}

func (g *Graph) availVersionsFor(ctx context.Context, pack *IgPack) ([]model.AvailVersion, error) {
	if pack.availCached {
		return pack.avail, nil
	}
	svc := g.serviceFor(pack.Kind)
	avail, err := svc.PackAvailVersions(ctx, pack.Name)
	if err != nil {
		return nil, err
	}
	pack.availCached = true
	pack.avail = avail
	return avail, nil
}

func mergedOptions(a, b model.OptionSet) model.OptionSet {
	var conflicts []model.OptionConflict
	return model.Merge(&conflicts, a, b)
}

