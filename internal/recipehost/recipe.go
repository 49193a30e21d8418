// Package recipehost loads and executes scripted recipes.
//
// A recipe is a Lua chunk (github.com/yuin/gopher-lua) that declares a
// "dop" metadata table and zero or more hook functions (source, build,
// dependencies, include, stage, post_stage). The host loads the chunk into
// a fresh interpreter, reads the declared fields, classifies the recipe as
// pack or light, and exposes the hooks as typed Go methods.
//
// Every Recipe keeps its own *lua.LState so that multiple Recipe values
// can coexist (e.g. while the resolver holds several candidate recipes
// open at once) without sharing interpreter state, mirroring the way gps's
// bridge.go scopes one bridge per solve run rather than sharing globals.
package recipehost

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	lua "github.com/yuin/gopher-lua"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// RecipeError wraps an error surfaced from loading a recipe or invoking one
// of its hooks. The underlying interpreter message is always preserved
// verbatim in Error().
type RecipeError struct {
	Recipe string
	Hook   string // empty for load errors
	Err    error
}

func (e *RecipeError) Error() string {
	if e.Hook == "" {
		return errors.Wrapf(e.Err, "recipe %s", e.Recipe).Error()
	}
	return errors.Wrapf(e.Err, "recipe %s: hook %s", e.Recipe, e.Hook).Error()
}

func (e *RecipeError) Unwrap() error { return e.Err }

// Recipe is a loaded recipe: its directory, its declared metadata, and a
// live interpreter able to invoke its hooks.
type Recipe struct {
	Dir  string
	Path string
	Meta model.RecipeMeta

	L   *lua.LState
	env *envHolder

	hasDependencies bool
}

// Load reads and executes the recipe file at dir/dopamine.lua in a fresh
// interpreter, then reads back its declared "dop" table and detects which
// hooks it defined.
func Load(dir string) (*Recipe, error) {
	path := filepath.Join(dir, "dopamine.lua")
	if _, err := os.Stat(path); err != nil {
		return nil, &RecipeError{Recipe: dir, Err: errors.Wrap(err, "recipe file not found")}
	}

	L := lua.NewState()
	env := registerHelpers(L, dir)

	if err := L.DoFile(path); err != nil {
		L.Close()
		return nil, &RecipeError{Recipe: dir, Err: err}
	}

	r := &Recipe{Dir: dir, Path: path, L: L, env: env}
	if err := r.readMeta(); err != nil {
		L.Close()
		return nil, &RecipeError{Recipe: dir, Err: err}
	}
	return r, nil
}

// Close releases the interpreter. Safe to call more than once.
func (r *Recipe) Close() {
	if r.L != nil && !r.L.IsClosed() {
		r.L.Close()
	}
}

func (r *Recipe) readMeta() error {
	dopTbl, ok := r.L.GetGlobal("dop").(*lua.LTable)
	if !ok {
		return errors.New("recipe did not declare a \"dop\" metadata table")
	}

	m := model.RecipeMeta{}
	m.Name = model.PackageName(luaTableString(dopTbl, "name"))
	if vs := luaTableString(dopTbl, "version"); vs != "" {
		v, err := semverx.Parse(vs)
		if err != nil {
			return errors.Wrap(err, "invalid dop.version")
		}
		m.Version = v
	}
	m.Revision = luaTableString(dopTbl, "revision")
	m.Description = luaTableString(dopTbl, "description")
	m.License = luaTableString(dopTbl, "license")
	m.Copyright = luaTableString(dopTbl, "copyright")
	m.Tools = luaTableStringArray(dopTbl, "tools")
	m.InTreeSrc = luaTableString(dopTbl, "in_tree_src")
	m.StageFalse = luaTableBool(dopTbl, "stage_false")

	m.HasSource = isLuaFunc(r.L.GetGlobal("source"))
	m.HasBuild = isLuaFunc(r.L.GetGlobal("build"))
	m.HasStage = isLuaFunc(r.L.GetGlobal("stage"))
	m.HasPostStage = isLuaFunc(r.L.GetGlobal("post_stage"))
	r.hasDependencies = isLuaFunc(r.L.GetGlobal("dependencies"))

	if isLuaFunc(r.L.GetGlobal("include")) {
		included, err := r.callInclude()
		if err != nil {
			return err
		}
		m.Included = included
	}

	if m.HasBuild {
		m.Type = model.RecipePack
	} else {
		m.Type = model.RecipeLight
	}
	if m.Type == model.RecipePack && luaTableString(dopTbl, "version") == "" {
		return errors.New("pack recipe must declare a version")
	}
	if err := m.Validate(r.hasDependencies); err != nil {
		return err
	}

	r.Meta = m
	return nil
}

func isLuaFunc(v lua.LValue) bool {
	_, ok := v.(*lua.LFunction)
	return ok
}

func luaTableString(t *lua.LTable, key string) string {
	if s, ok := t.RawGetString(key).(lua.LString); ok {
		return string(s)
	}
	return ""
}

func luaTableBool(t *lua.LTable, key string) bool {
	if b, ok := t.RawGetString(key).(lua.LBool); ok {
		return bool(b)
	}
	return false
}

func luaTableStringArray(t *lua.LTable, key string) []string {
	arr, ok := t.RawGetString(key).(*lua.LTable)
	if !ok {
		return nil
	}
	var out []string
	arr.ForEach(func(_, v lua.LValue) {
		if s, ok := v.(lua.LString); ok {
			out = append(out, string(s))
		}
	})
	return out
}
