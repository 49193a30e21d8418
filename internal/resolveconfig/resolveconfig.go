// Package resolveconfig loads dopamine.toml, the optional per-recipe
// resolve configuration file: a default Heuristics and OptionSet so that
// "dop build"/"dop resolve" do not need every flag repeated on every
// invocation.
package resolveconfig

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// File is the parsed shape of dopamine.toml.
type File struct {
	Mode        string            `toml:"mode"`
	System      string            `toml:"system"`
	SystemList  []string          `toml:"system_list"`
	PreSelected map[string]string `toml:"pre_selected"`
	Options     map[string]string `toml:"options"`
}

var modeByName = map[string]model.HeuristicMode{
	"preferSystem": model.PreferSystem,
	"preferCache":  model.PreferCache,
	"preferLocal":  model.PreferLocal,
	"pickHighest":  model.PickHighest,
}

var systemByName = map[string]model.SystemPolicy{
	"allow":          model.SystemAllow,
	"disallow":       model.SystemDisallow,
	"allowedList":    model.SystemAllowedList,
	"disallowedList": model.SystemDisallowedList,
}

// Load reads path, returning the zero File (and no error) if it does not
// exist: dopamine.toml is optional.
func Load(path string) (File, error) {
	b, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return File{}, nil
	}
	if err != nil {
		return File{}, err
	}
	var f File
	if err := toml.Unmarshal(b, &f); err != nil {
		return File{}, errors.Wrapf(err, "parsing %s", path)
	}
	return f, nil
}

// Heuristics converts f into a model.Heuristics. Unknown mode/system
// strings fall back to their zero value rather than erroring: a
// dopamine.toml written against a future dop version should still degrade
// gracefully instead of refusing to resolve at all.
func (f File) Heuristics() model.Heuristics {
	h := model.Heuristics{
		Mode:   modeByName[f.Mode],
		System: systemByName[f.System],
	}
	for _, n := range f.SystemList {
		h.SystemList = append(h.SystemList, model.PackageName(n))
	}
	if len(f.PreSelected) > 0 {
		h.PreSelected = make(map[model.PackageName]semverx.Semver, len(f.PreSelected))
		for n, vs := range f.PreSelected {
			if v, err := semverx.Parse(vs); err == nil {
				h.PreSelected[model.PackageName(n)] = v
			}
		}
	}
	return h
}

// OptionSet converts f's default options into a model.OptionSet.
func (f File) OptionSet() model.OptionSet {
	if len(f.Options) == 0 {
		return model.NewOptionSet()
	}
	return model.OptionSet(f.Options)
}
