package depgraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/semverx"
)

// depFixture is one dependency declared by a fixtureSource candidate.
type depFixture struct {
	name string
	spec string
}

// verFixture is one candidate version of a fixture package, at the
// location it is offered from.
type verFixture struct {
	ver  string
	loc  model.DepLocation
	deps []depFixture
}

// fixtureGraph is the §8 seed-test base graph: name -> every candidate
// version across all three locations.
func fixtureGraph() map[string][]verFixture {
	return map[string][]verFixture{
		"a": {
			{ver: "1.0.0", loc: model.LocCache},
			{ver: "1.1.0", loc: model.LocCache},
			{ver: "1.1.0", loc: model.LocSystem},
			{ver: "1.1.1", loc: model.LocNetwork},
			{ver: "2.0.0", loc: model.LocNetwork},
		},
		"b": {
			{ver: "0.0.1", loc: model.LocCache, deps: []depFixture{{"a", ">=1.0.0 <2.0.0"}}},
			{ver: "0.0.2", loc: model.LocNetwork},
			{ver: "0.0.3", loc: model.LocSystem, deps: []depFixture{{"a", ">=1.1.0"}}},
		},
		"c": {
			{ver: "1.0.0", loc: model.LocCache},
			{ver: "2.0.0", loc: model.LocNetwork, deps: []depFixture{{"a", ">=1.1.0"}}},
		},
		"d": {
			{ver: "1.0.0", loc: model.LocCache, deps: []depFixture{{"c", "=1.0.0"}}},
			{ver: "1.1.0", loc: model.LocNetwork, deps: []depFixture{{"c", "=2.0.0"}}},
		},
	}
}

// fixtureSource is a depservice.DepSource backed by an in-memory version
// table for one location slot, materializing real recipe files on disk on
// demand so igResolve's stampRevision can compute a genuine Revision()
// through recipehost, the same as a live recipe would.
type fixtureSource struct {
	t      *testing.T
	loc    model.DepLocation
	root   string
	byName map[model.PackageName][]verFixture
}

func newFixtureSource(t *testing.T, loc model.DepLocation, graph map[string][]verFixture) *fixtureSource {
	t.Helper()
	s := &fixtureSource{t: t, loc: loc, root: t.TempDir(), byName: make(map[model.PackageName][]verFixture)}
	for name, vers := range graph {
		var mine []verFixture
		for _, v := range vers {
			if v.loc == loc {
				mine = append(mine, v)
			}
		}
		if len(mine) > 0 {
			s.byName[model.PackageName(name)] = mine
		}
	}
	return s
}

func (s *fixtureSource) findVersion(name model.PackageName, ver string) (verFixture, bool) {
	for _, v := range s.byName[name] {
		if v.ver == ver {
			return v, true
		}
	}
	return verFixture{}, false
}

func (s *fixtureSource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	var out []semverx.Semver
	for _, v := range s.byName[name] {
		out = append(out, semverx.MustParse(v.ver))
	}
	return out, nil
}

func (s *fixtureSource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	_, ok := s.findVersion(name, ver.String())
	return ok, nil
}

func (s *fixtureSource) recipeDir(name model.PackageName, v verFixture) (string, error) {
	dir := filepath.Join(s.root, string(name), v.ver)
	if _, err := os.Stat(filepath.Join(dir, "dopamine.lua")); err == nil {
		return dir, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	script := "dop = { name = \"" + string(name) + "\", version = \"" + v.ver + "\" }\n" +
		"function build(dirs, cfg, deps) end\n"
	if len(v.deps) > 0 {
		script += "function dependencies(cfg)\n  return {\n"
		for _, d := range v.deps {
			script += "    { name = \"" + d.name + "\", spec = \"" + d.spec + "\", kind = \"dop\" },\n"
		}
		script += "  }\nend\n"
	}
	if err := os.WriteFile(filepath.Join(dir, "dopamine.lua"), []byte(script), 0o644); err != nil {
		return "", err
	}
	return dir, nil
}

func (s *fixtureSource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	v, ok := s.findVersion(name, ver.String())
	if !ok {
		return nil, os.ErrNotExist
	}
	dir, err := s.recipeDir(name, v)
	if err != nil {
		return nil, err
	}
	r, err := recipehost.Load(dir)
	if err == nil {
		s.t.Cleanup(r.Close)
	}
	return r, nil
}

func (s *fixtureSource) HasDepDependencies() bool { return true }

func (s *fixtureSource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	v, ok := s.findVersion(name, ver.String())
	if !ok {
		return nil, nil
	}
	specs := make([]model.DepSpec, 0, len(v.deps))
	for _, d := range v.deps {
		spec, err := semverx.ParseVersionSpec(d.spec)
		if err != nil {
			return nil, err
		}
		specs = append(specs, model.DepSpec{
			Name:    model.PackageName(d.name),
			Spec:    spec,
			Kind:    model.KindDop,
			Options: model.NewOptionSet(),
		})
	}
	return specs, nil
}

// newFixtureService wires three fixtureSources (one per location) over
// graph into a depservice.Service, the same shape cmd/dop's Ctx.DopService
// builds for a live registry+cache+system trio.
func newFixtureService(t *testing.T, graph map[string][]verFixture) *depservice.Service {
	t.Helper()
	system := newFixtureSource(t, model.LocSystem, graph)
	dcache := newFixtureSource(t, model.LocCache, graph)
	network := newFixtureSource(t, model.LocNetwork, graph)
	return depservice.New(model.KindDop, system, dcache, network)
}

// writeRootRecipe materializes a root recipe declaring the given
// dependencies, loads it, and registers it for cleanup.
func writeRootRecipe(t *testing.T, name, version string, deps []depFixture) *recipehost.Recipe {
	t.Helper()
	dir := t.TempDir()
	script := "dop = { name = \"" + name + "\", version = \"" + version + "\" }\n" +
		"function build(dirs, cfg, deps) end\n" +
		"function dependencies(cfg)\n  return {\n"
	for _, d := range deps {
		script += "    { name = \"" + d.name + "\", spec = \"" + d.spec + "\", kind = \"dop\" },\n"
	}
	script += "  }\nend\n"
	if err := os.WriteFile(filepath.Join(dir, "dopamine.lua"), []byte(script), 0o644); err != nil {
		t.Fatalf("writing root recipe: %v", err)
	}
	r, err := recipehost.Load(dir)
	if err != nil {
		t.Fatalf("loading root recipe: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

// resolveFixture runs all four resolver phases over the §8 seed-test base
// graph, rooted at e 1.0.0 -> b>=0.0.1, d>=1.1.0, under the given
// heuristics.
func resolveFixture(t *testing.T, h model.Heuristics) *DgGraph {
	t.Helper()
	ctx := context.Background()

	root := writeRootRecipe(t, "e", "1.0.0", []depFixture{
		{"b", ">=0.0.1"},
		{"d", ">=1.1.0"},
	})
	dop := newFixtureService(t, fixtureGraph())
	dub := depservice.New(model.KindDub, nil, nil, nil)
	cfg := profile.BuildConfig{Options: map[string]string{}}

	g, err := Prepare(ctx, root, dop, dub, h, cfg)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if err := g.CheckCompat(); err != nil {
		t.Fatalf("CheckCompat: %v", err)
	}
	if err := g.Resolve(ctx, model.NewOptionSet()); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	return g.Create()
}

// nodeByName finds the resolved node for name in dg, failing the test if
// absent.
func nodeByName(t *testing.T, dg *DgGraph, name string) *DgNode {
	t.Helper()
	for _, n := range dg.Nodes {
		if string(n.Name) == name {
			return n
		}
	}
	t.Fatalf("no resolved node named %q", name)
	return nil
}

func assertResolved(t *testing.T, dg *DgGraph, name, wantVer string, wantLoc model.DepLocation) {
	t.Helper()
	n := nodeByName(t, dg, name)
	if n.AVer.Ver.String() != wantVer || n.AVer.Loc != wantLoc {
		t.Errorf("%s resolved to %s (%s), want %s (%s)", name, n.AVer.Ver, n.AVer.Loc, wantVer, wantLoc)
	}
}
