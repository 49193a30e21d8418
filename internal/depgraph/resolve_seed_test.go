package depgraph

import (
	"context"
	"testing"

	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
)

// wantVer is one expected (version, location) resolution for a package.
type wantVer struct {
	ver string
	loc model.DepLocation
}

// TestSeedBaseGraphResolution runs the §8 seed-test base graph under each
// heuristic mode and checks the documented resolution.
func TestSeedBaseGraphResolution(t *testing.T) {
	cases := []struct {
		name string
		h    model.Heuristics
		want map[string]wantVer
	}{
		{
			name: "preferSystem",
			h:    model.Heuristics{Mode: model.PreferSystem},
			want: map[string]wantVer{
				"a": {"1.1.0", model.LocSystem},
				"b": {"0.0.3", model.LocSystem},
				"c": {"2.0.0", model.LocNetwork},
				"d": {"1.1.0", model.LocNetwork},
				"e": {"1.0.0", model.LocCache},
			},
		},
		{
			name: "preferCache",
			h:    model.Heuristics{Mode: model.PreferCache},
			want: map[string]wantVer{
				"a": {"1.1.0", model.LocCache},
				"b": {"0.0.1", model.LocCache},
				"c": {"2.0.0", model.LocNetwork},
				"d": {"1.1.0", model.LocNetwork},
			},
		},
		{
			name: "preferLocal",
			h:    model.Heuristics{Mode: model.PreferLocal},
			want: map[string]wantVer{
				"a": {"1.1.0", model.LocCache},
				"b": {"0.0.3", model.LocSystem},
				"c": {"2.0.0", model.LocNetwork},
				"d": {"1.1.0", model.LocNetwork},
			},
		},
		{
			name: "pickHighest",
			h:    model.Heuristics{Mode: model.PickHighest},
			want: map[string]wantVer{
				"a": {"2.0.0", model.LocNetwork},
				"b": {"0.0.3", model.LocSystem},
				"c": {"2.0.0", model.LocNetwork},
				"d": {"1.1.0", model.LocNetwork},
			},
		},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			dg := resolveFixture(t, c.h)
			for name, w := range c.want {
				assertResolved(t, dg, name, w.ver, w.loc)
			}
		})
	}
}

// TestSeedUnresolvableDiamond matches §8's scenario 5: X depends on
// a=1.0.0 directly and on b, which depends on a=2.0.0; no candidate of a
// can satisfy both, so resolution must raise UnresolvedDepException naming
// both up-edges.
func TestSeedUnresolvableDiamond(t *testing.T) {
	ctx := context.Background()

	graph := map[string][]verFixture{
		"a": {
			{ver: "1.0.0", loc: model.LocCache},
			{ver: "2.0.0", loc: model.LocCache},
		},
		"b": {
			{ver: "1.0.0", loc: model.LocCache, deps: []depFixture{{"a", "=2.0.0"}}},
		},
	}

	root := writeRootRecipe(t, "x", "1.0.0", []depFixture{
		{"a", "=1.0.0"},
		{"b", ">=1.0.0"},
	})
	dop := newFixtureService(t, graph)
	dub := depservice.New(model.KindDub, nil, nil, nil)
	cfg := profile.BuildConfig{Options: map[string]string{}}

	g, err := Prepare(ctx, root, dop, dub, model.Heuristics{}, cfg)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}

	err = g.CheckCompat()
	if err == nil {
		t.Fatal("expected CheckCompat to fail on an unresolvable diamond")
	}
	unresolved, ok := err.(*UnresolvedDepException)
	if !ok {
		t.Fatalf("expected *UnresolvedDepException, got %T (%v)", err, err)
	}
	if unresolved.Pack != "a" {
		t.Errorf("expected the unresolved pack to be %q, got %q", "a", unresolved.Pack)
	}
	if len(unresolved.Demands) == 0 {
		t.Error("expected at least one conflicting demand to be recorded")
	}
}

// TestInvariantEdgesMatchResolvedVersions checks §8 invariant 1: every
// resolved edge's spec matches the version chosen for its downstream node.
func TestInvariantEdgesMatchResolvedVersions(t *testing.T) {
	dg := resolveFixture(t, model.Heuristics{Mode: model.PreferCache})
	for _, n := range dg.Nodes {
		for _, e := range n.Down {
			if !e.Spec.Matches(e.To.AVer.Ver) {
				t.Errorf("edge %s -> %s: spec %q does not match resolved version %s", e.From.Name, e.To.Name, e.Spec, e.To.AVer.Ver)
			}
		}
	}
}

// TestInvariantBottomUpOrdering checks §8 invariant 6: a bottom-up
// traversal yields each node strictly after every node reachable via its
// down-edges.
func TestInvariantBottomUpOrdering(t *testing.T) {
	dg := resolveFixture(t, model.Heuristics{Mode: model.PreferCache})

	seen := make(map[*DgNode]bool)
	err := dg.TraverseBottomUp(func(n *DgNode) error {
		for _, e := range n.Down {
			if !seen[e.To] {
				t.Errorf("node %s yielded before its dependency %s", n.Name, e.To.Name)
			}
		}
		seen[n] = true
		return nil
	})
	if err != nil {
		t.Fatalf("TraverseBottomUp: %v", err)
	}
	if !seen[dg.Root] {
		t.Error("root was never visited")
	}
}
