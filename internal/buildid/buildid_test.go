package buildid

import (
	"testing"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
)

func baseInputs() Inputs {
	return Inputs{
		RecipeName: "foo",
		Kind:       model.KindDop,
		Version:    "1.2.3",
		Revision:   "deadbeef",
		Config: profile.BuildConfig{
			Profile: profile.New("default", profile.HostInfo{Arch: profile.ArchX86_64, OS: profile.OSLinux}, "release", nil),
			Options: map[string]string{"shared": "true"},
		},
		DirectDeps: []DirectDep{
			{Name: "bar", Kind: model.KindDop, ID: "aaaa"},
			{Name: "baz", Kind: model.KindDop, ID: "bbbb"},
		},
	}
}

func TestComputeIsStableAcrossRepeatedCalls(t *testing.T) {
	in := baseInputs()
	first := Compute(in)
	for i := 0; i < 5; i++ {
		if got := Compute(in); got != first {
			t.Fatalf("Compute is not stable: call %d got %s, want %s", i, got, first)
		}
	}
}

func TestComputeIndependentOfDirectDepOrder(t *testing.T) {
	a := baseInputs()
	b := baseInputs()
	b.DirectDeps = []DirectDep{a.DirectDeps[1], a.DirectDeps[0]}

	if Compute(a) != Compute(b) {
		t.Error("Compute should not depend on DirectDeps order")
	}
}

func TestComputeChangesWithEachInput(t *testing.T) {
	base := Compute(baseInputs())

	cases := map[string]Inputs{
		"recipe name": func() Inputs { in := baseInputs(); in.RecipeName = "other"; return in }(),
		"version":     func() Inputs { in := baseInputs(); in.Version = "1.2.4"; return in }(),
		"revision":    func() Inputs { in := baseInputs(); in.Revision = "cafebabe"; return in }(),
		"option":      func() Inputs { in := baseInputs(); in.Config.Options = map[string]string{"shared": "false"}; return in }(),
		"dep id": func() Inputs {
			in := baseInputs()
			in.DirectDeps = []DirectDep{{Name: "bar", Kind: model.KindDop, ID: "zzzz"}, in.DirectDeps[1]}
			return in
		}(),
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			if got := Compute(in); got == base {
				t.Errorf("changing %s did not change the build id", name)
			}
		})
	}
}

func TestComputeStagePathOnlyFedWhenStageFalse(t *testing.T) {
	withoutStage := baseInputs()
	withoutStage.StagePath = "/dest/one"

	stageIgnored := baseInputs()
	stageIgnored.StagePath = "/dest/two"

	if Compute(withoutStage) != Compute(stageIgnored) {
		t.Error("StagePath must be ignored when StageFalse is unset")
	}

	stageFalseOne := baseInputs()
	stageFalseOne.StageFalse = true
	stageFalseOne.StagePath = "/dest/one"

	stageFalseTwo := baseInputs()
	stageFalseTwo.StageFalse = true
	stageFalseTwo.StagePath = "/dest/two"

	if Compute(stageFalseOne) == Compute(stageFalseTwo) {
		t.Error("a stage=false recipe staged to two different destinations must get different build ids")
	}
}
