package recipehost

import (
	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/semverx"
)

// BuildDirs is passed to the build hook: the recipe directory, the staged
// source directory, a scratch build directory, and the install (or, for a
// stage=false recipe, the stage) destination.
type BuildDirs struct {
	Root    string
	Src     string
	Build   string
	Install string
}

// DepInfo is the small record passed into a recipe's build hook per
// dependency (the orchestrator passes every transitive non-system one).
type DepInfo struct {
	InstallDir string
}

func (r *Recipe) call(hook string, nret int, args ...lua.LValue) ([]lua.LValue, error) {
	fn, ok := r.L.GetGlobal(hook).(*lua.LFunction)
	if !ok {
		return nil, &RecipeError{Recipe: r.Dir, Hook: hook, Err: errors.New("hook not declared")}
	}
	if err := r.L.CallByParam(lua.P{Fn: fn, NRet: nret, Protect: true}, args...); err != nil {
		return nil, &RecipeError{Recipe: r.Dir, Hook: hook, Err: err}
	}
	rets := make([]lua.LValue, nret)
	for i := nret - 1; i >= 0; i-- {
		rets[i] = r.L.Get(-1)
		r.L.Pop(1)
	}
	return rets, nil
}

// Source invokes the source() hook, expected to return the path to the
// fetched/extracted source tree.
func (r *Recipe) Source() (string, error) {
	rets, err := r.call("source", 1)
	if err != nil {
		return "", err
	}
	s, ok := rets[0].(lua.LString)
	if !ok {
		return "", &RecipeError{Recipe: r.Dir, Hook: "source", Err: errors.New("expected a string return value")}
	}
	return string(s), nil
}

// Build invokes the build(dirs, config, depInfo) hook. run_cmd, if called
// from the hook, spawns processes with the profile's tool directories
// prepended to PATH plus one DOP_TOOL_<ID>=<path> variable per tool, so
// that a recipe's build script can locate cc/dmd/etc. without constructing
// PATH itself.
func (r *Recipe) Build(dirs BuildDirs, cfg profile.BuildConfig, deps map[model.PackageName]DepInfo) error {
	r.env.env = toolchainEnv(cfg.Profile)

	dirsTbl := r.L.NewTable()
	dirsTbl.RawSetString("root", lua.LString(dirs.Root))
	dirsTbl.RawSetString("src", lua.LString(dirs.Src))
	dirsTbl.RawSetString("build", lua.LString(dirs.Build))
	dirsTbl.RawSetString("install", lua.LString(dirs.Install))

	cfgTbl := r.L.NewTable()
	cfgTbl.RawSetString("build_type", lua.LString(cfg.Profile.BuildType))
	optsTbl := r.L.NewTable()
	for k, v := range cfg.Options {
		optsTbl.RawSetString(k, lua.LString(v))
	}
	cfgTbl.RawSetString("options", optsTbl)

	depsTbl := r.L.NewTable()
	for name, info := range deps {
		depsTbl.RawSetString(string(name), lua.LString(info.InstallDir))
	}

	_, err := r.call("build", 0, dirsTbl, cfgTbl, depsTbl)
	return err
}

// Dependencies invokes the dependencies(resolveConfig) hook, present for
// both root and light recipes, and decodes the returned table of dep
// specs.
func (r *Recipe) Dependencies(cfg profile.BuildConfig) ([]model.DepSpec, error) {
	cfgTbl := r.L.NewTable()
	cfgTbl.RawSetString("build_type", lua.LString(cfg.Profile.BuildType))

	rets, err := r.call("dependencies", 1, cfgTbl)
	if err != nil {
		return nil, err
	}
	tbl, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, &RecipeError{Recipe: r.Dir, Hook: "dependencies", Err: errors.New("expected a table return value")}
	}

	var specs []model.DepSpec
	var rangeErr error
	tbl.ForEach(func(_, v lua.LValue) {
		if rangeErr != nil {
			return
		}
		dt, ok := v.(*lua.LTable)
		if !ok {
			rangeErr = errors.New("dependencies() entries must be tables")
			return
		}
		name := luaTableString(dt, "name")
		specStr := luaTableString(dt, "spec")
		kind := luaTableString(dt, "kind")

		vs, err := semverx.ParseVersionSpec(specStr)
		if err != nil {
			rangeErr = errors.Wrapf(err, "dependency %s", name)
			return
		}
		k := model.KindDop
		if kind == "dub" {
			k = model.KindDub
		}
		opts := model.NewOptionSet()
		if ot, ok := dt.RawGetString("options").(*lua.LTable); ok {
			ot.ForEach(func(k, v lua.LValue) {
				opts[k.String()] = v.String()
			})
		}
		specs = append(specs, model.DepSpec{
			Name:    model.PackageName(name),
			Spec:    vs,
			Kind:    k,
			Options: opts,
		})
	})
	if rangeErr != nil {
		return nil, &RecipeError{Recipe: r.Dir, Hook: "dependencies", Err: rangeErr}
	}
	return specs, nil
}

func (r *Recipe) callInclude() ([]string, error) {
	rets, err := r.call("include", 1)
	if err != nil {
		return nil, err
	}
	tbl, ok := rets[0].(*lua.LTable)
	if !ok {
		return nil, &RecipeError{Recipe: r.Dir, Hook: "include", Err: errors.New("expected a table return value")}
	}
	var out []string
	tbl.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out, nil
}

// Stage invokes the stage(destination) hook.
func (r *Recipe) Stage(dest string) error {
	_, err := r.call("stage", 0, lua.LString(dest))
	return err
}

// PostStage invokes the post_stage() hook.
func (r *Recipe) PostStage() error {
	_, err := r.call("post_stage", 0)
	return err
}

// HasDependenciesHook reports whether the recipe declared a dependencies hook.
func (r *Recipe) HasDependenciesHook() bool { return r.hasDependencies }
