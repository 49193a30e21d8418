package lockfile

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rtbo/dopamine/internal/depgraph"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// buildFixtureGraph assembles a tiny three-node DgGraph by hand: root ->
// b -> a, exercising a non-trivial dependency edge and a system candidate
// leaf, without going through the resolver.
func buildFixtureGraph(t *testing.T) *depgraph.DgGraph {
	t.Helper()

	spec, err := semverx.ParseVersionSpec(">=1.0.0")
	if err != nil {
		t.Fatalf("ParseVersionSpec: %v", err)
	}

	a := &depgraph.DgNode{
		Name:    "a",
		Kind:    model.KindDop,
		AVer:    model.AvailVersion{Ver: semverx.MustParse("1.1.0"), Loc: model.LocSystem},
		Options: model.NewOptionSet(),
	}
	b := &depgraph.DgNode{
		Name:     "b",
		Kind:     model.KindDop,
		AVer:     model.AvailVersion{Ver: semverx.MustParse("0.0.1"), Loc: model.LocCache},
		Revision: "abcd1234",
		Options:  model.NewOptionSet(),
	}
	root := &depgraph.DgNode{
		Name:     "root",
		Kind:     model.KindDop,
		AVer:     model.AvailVersion{Ver: semverx.MustParse("1.0.0"), Loc: model.LocCache},
		Revision: "00000000",
		Options:  model.NewOptionSet(),
	}

	edgeRootB := &depgraph.DgEdge{From: root, To: b, Spec: spec}
	root.Down = append(root.Down, edgeRootB)
	b.Up = append(b.Up, edgeRootB)

	edgeBA := &depgraph.DgEdge{From: b, To: a, Spec: spec}
	b.Down = append(b.Down, edgeBA)
	a.Up = append(a.Up, edgeBA)

	return &depgraph.DgGraph{Root: root, Nodes: []*depgraph.DgNode{root, b, a}}
}

func TestDumpMarshalLoadRoundTrip(t *testing.T) {
	dg := buildFixtureGraph(t)
	cfg := FromHeuristics(model.Heuristics{Mode: model.PreferCache}, model.NewOptionSet())

	f1, err := Dump(dg, cfg)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}
	b1, err := Marshal(f1)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	reloaded, _, err := Load(b1)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	f2, err := Dump(reloaded, cfg)
	if err != nil {
		t.Fatalf("Dump (reloaded): %v", err)
	}
	b2, err := Marshal(f2)
	if err != nil {
		t.Fatalf("Marshal (reloaded): %v", err)
	}

	if string(b1) != string(b2) {
		t.Errorf("lockfile(dag).reparse().toJson() != dag.toJson():\nfirst:\n%s\nsecond:\n%s", b1, b2)
	}
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	raw := []byte(`{"dopamine-lock-version": 99, "config": {"mode":"preferSystem"}, "packages": []}`)
	if _, _, err := Load(raw); err == nil {
		t.Fatal("expected an error for an unsupported lock file version")
	} else if _, ok := err.(*CorruptLockError); !ok {
		t.Errorf("expected *CorruptLockError, got %T (%v)", err, err)
	}
}

func TestLoadRejectsDanglingDependency(t *testing.T) {
	raw := []byte(`{
		"dopamine-lock-version": 1,
		"config": {"mode": "preferSystem"},
		"packages": [
			{"name": "root", "provider": "dop", "version": "1.0.0", "root": true,
			 "dependencies": [{"name": "missing", "provider": "dop", "spec": ">=1.0.0"}]}
		]
	}`)
	if _, _, err := Load(raw); err == nil {
		t.Fatal("expected an error for a dependency referencing a package not in the list")
	}
}

func TestLoadRejectsStaleSpec(t *testing.T) {
	raw := []byte(`{
		"dopamine-lock-version": 1,
		"config": {"mode": "preferSystem"},
		"packages": [
			{"name": "root", "provider": "dop", "version": "1.0.0", "root": true,
			 "dependencies": [{"name": "a", "provider": "dop", "spec": ">=2.0.0"}]},
			{"name": "a", "provider": "dop", "version": "1.0.0"}
		]
	}`)
	if _, _, err := Load(raw); err == nil {
		t.Fatal("expected an error when the recorded spec no longer matches its target's version")
	}
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	dg := buildFixtureGraph(t)
	cfg := FromHeuristics(model.Heuristics{Mode: model.PickHighest}, model.NewOptionSet())

	f, err := Dump(dg, cfg)
	if err != nil {
		t.Fatalf("Dump: %v", err)
	}

	path := filepath.Join(t.TempDir(), "dopamine-lock.json")
	if err := WriteFile(path, f); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, reread, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	wantJSON, err := Marshal(f)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	gotJSON, err := json.MarshalIndent(reread, "", "  ")
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	if string(wantJSON) != string(gotJSON) {
		t.Errorf("ReadFile did not reproduce the written file:\nwant:\n%s\ngot:\n%s", wantJSON, gotJSON)
	}
}
