package recipehost

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/rtbo/dopamine/internal/profile"
)

// toolchainEnv derives the environment variables run_cmd injects so a
// recipe's spawned processes can find the profile's detected tools: PATH
// gains each tool's directory, and each tool is also exposed directly as
// DOP_TOOL_<ID>=<path>.
func toolchainEnv(p profile.Profile) []string {
	var path []string
	env := make([]string, 0, len(p.Tools)+1)
	for _, t := range p.Tools {
		if t.Path == "" {
			continue
		}
		path = append(path, filepath.Dir(t.Path))
		env = append(env, "DOP_TOOL_"+strings.ToUpper(t.ID)+"="+t.Path)
	}
	if len(path) > 0 {
		env = append(env, "PATH="+strings.Join(path, string(os.PathListSeparator))+string(os.PathListSeparator)+os.Getenv("PATH"))
	}
	return env
}

// envHolder carries the toolchain environment that run_cmd should inject
// into spawned processes. Recipe.Build fills it right before invoking the
// build hook, since the effective environment
// (profile.Subset(recipeTools)) is only known at that point, not at
// recipe-load time.
type envHolder struct {
	env []string
}

func registerHelpers(L *lua.LState, recipeDir string) *envHolder {
	env := &envHolder{}

	L.SetGlobal("posix", lua.LBool(runtime.GOOS != "windows"))
	L.SetGlobal("os", lua.LString(runtime.GOOS))
	L.SetGlobal("path_sep", lua.LString(string(os.PathListSeparator)))

	L.SetGlobal("path", L.NewFunction(func(L *lua.LState) int {
		n := L.GetTop()
		parts := make([]string, n)
		for i := 1; i <= n; i++ {
			parts[i-1] = L.CheckString(i)
		}
		L.Push(lua.LString(filepath.Join(parts...)))
		return 1
	}))
	L.SetGlobal("base_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(filepath.Base(L.CheckString(1))))
		return 1
	}))
	L.SetGlobal("dir_name", L.NewFunction(func(L *lua.LState) int {
		L.Push(lua.LString(filepath.Dir(L.CheckString(1))))
		return 1
	}))
	L.SetGlobal("cwd", L.NewFunction(func(L *lua.LState) int {
		wd, err := os.Getwd()
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		L.Push(lua.LString(wd))
		return 1
	}))
	L.SetGlobal("chdir", L.NewFunction(func(L *lua.LState) int {
		if err := os.Chdir(L.CheckString(1)); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))
	L.SetGlobal("from_dir", L.NewFunction(func(L *lua.LState) int {
		dir := L.CheckString(1)
		fn := L.CheckFunction(2)
		wd, err := os.Getwd()
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		if err := os.Chdir(dir); err != nil {
			L.RaiseError("%s", err.Error())
		}
		defer os.Chdir(wd)
		if err := L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("installer", L.NewFunction(func(L *lua.LState) int {
		src := L.CheckString(1)
		dest := L.CheckString(2)
		in := NewInstaller(src, dest)

		tbl := L.NewTable()
		tbl.RawSetString("file", L.NewFunction(func(L *lua.LState) int {
			relpath := L.CheckString(1)
			relout := L.CheckString(2)
			var opts FileOpts
			if optTbl, ok := L.Get(3).(*lua.LTable); ok {
				opts.Rename = luaTableString(optTbl, "rename")
			}
			if err := in.File(relpath, relout, opts); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		}))
		tbl.RawSetString("dir", L.NewFunction(func(L *lua.LState) int {
			if err := in.Dir(L.CheckString(1), L.CheckString(2)); err != nil {
				L.RaiseError("%s", err.Error())
			}
			return 0
		}))
		L.Push(tbl)
		return 1
	}))

	L.SetGlobal("run_cmd", L.NewFunction(func(L *lua.LState) int {
		argvTbl := L.CheckTable(1)
		var argv []string
		argvTbl.ForEach(func(_, v lua.LValue) { argv = append(argv, v.String()) })
		if len(argv) == 0 {
			L.RaiseError("run_cmd requires a non-empty argv table")
		}

		cmd := exec.Command(argv[0], argv[1:]...)
		cmd.Env = append(os.Environ(), env.env...)
		if extraEnv, ok := L.Get(2).(*lua.LTable); ok {
			extraEnv.ForEach(func(k, v lua.LValue) {
				cmd.Env = append(cmd.Env, k.String()+"="+v.String())
			})
		}
		out, err := cmd.CombinedOutput()
		L.Push(lua.LString(out))
		if err != nil {
			L.Push(lua.LString(err.Error()))
		} else {
			L.Push(lua.LNil)
		}
		return 2
	}))

	L.SetGlobal("pkg_config_path", L.NewFunction(func(L *lua.LState) int {
		depInfos := L.CheckTable(1)
		var dirs []string
		depInfos.ForEach(func(_, v lua.LValue) {
			installDir := v.String()
			dirs = append(dirs, filepath.Join(installDir, "lib", "pkgconfig"))
		})
		L.Push(lua.LString(strings.Join(dirs, string(os.PathListSeparator))))
		return 1
	}))

	L.SetGlobal("pkg_config_file", L.NewFunction(func(L *lua.LState) int {
		t := L.CheckTable(1)
		destPath := L.CheckString(2)

		f := PkgConfigFile{
			Variables:   make(map[string]string),
			Name:        luaTableString(t, "name"),
			Version:     luaTableString(t, "version"),
			Description: luaTableString(t, "description"),
			Requires:    luaTableString(t, "requires"),
			Libs:        luaTableString(t, "libs"),
			Cflags:      luaTableString(t, "cflags"),
		}
		if vars, ok := t.RawGetString("variables").(*lua.LTable); ok {
			vars.ForEach(func(k, v lua.LValue) { f.Variables[k.String()] = v.String() })
		}
		if err := f.WriteTo(destPath); err != nil {
			L.RaiseError("%s", err.Error())
		}
		return 0
	}))

	L.SetGlobal("git_ls_files", L.NewFunction(func(L *lua.LState) int {
		opts := GitLsFilesOpts{}
		if t, ok := L.Get(1).(*lua.LTable); ok {
			opts.Submodules = luaTableBool(t, "submodules")
			opts.Workdir = luaTableString(t, "workdir")
		}
		files, err := GitLsFiles(opts, recipeDir)
		if err != nil {
			L.RaiseError("%s", err.Error())
		}
		tbl := L.NewTable()
		for _, f := range files {
			tbl.Append(lua.LString(f))
		}
		L.Push(tbl)
		return 1
	}))

	return env
}
