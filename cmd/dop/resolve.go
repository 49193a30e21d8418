package main

import (
	"context"
	"flag"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/depgraph"
	"github.com/rtbo/dopamine/internal/lockfile"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/resolveconfig"
)

const lockFileName = "dopamine-lock.json"
const resolveConfigName = "dopamine.toml"

// resolveGraph loads the root recipe at recipeDir and runs the full
// four-phase resolve, under the named profile. Heuristics and default
// options come from dopamine.toml next to the recipe, if present;
// callerOptions take precedence over the file's defaults on conflict.
func resolveGraph(ctx context.Context, recipeDir, profileName string, callerOptions model.OptionSet, c *Ctx) (*depgraph.DgGraph, profile.BuildConfig, model.Heuristics, error) {
	root, err := recipehost.Load(recipeDir)
	if err != nil {
		return nil, profile.BuildConfig{}, model.Heuristics{}, err
	}
	defer root.Close()

	rc, err := resolveconfig.Load(filepath.Join(recipeDir, resolveConfigName))
	if err != nil {
		return nil, profile.BuildConfig{}, model.Heuristics{}, err
	}
	h := rc.Heuristics()

	var conflicts []model.OptionConflict
	effOptions := model.Merge(&conflicts, callerOptions, rc.OptionSet())

	prof, err := c.LoadProfile(profileName)
	if err != nil {
		return nil, profile.BuildConfig{}, h, err
	}
	cfg := profile.BuildConfig{Profile: prof, Options: map[string]string(effOptions)}

	dop, err := c.DopService()
	if err != nil {
		return nil, profile.BuildConfig{}, h, err
	}
	dub, err := c.DubService()
	if err != nil {
		return nil, profile.BuildConfig{}, h, err
	}

	dg, err := depgraph.ResolveAll(ctx, root, dop, dub, h, cfg, effOptions)
	if err != nil {
		return nil, cfg, h, err
	}
	return dg, cfg, h, nil
}

type resolveCommand struct {
	profileName string
}

func (c *resolveCommand) Name() string      { return "resolve" }
func (c *resolveCommand) Args() string      { return "[<recipe-dir>]" }
func (c *resolveCommand) Hidden() bool      { return false }
func (c *resolveCommand) ShortHelp() string { return resolveShortHelp }
func (c *resolveCommand) LongHelp() string  { return resolveLongHelp }

const resolveShortHelp = `Resolve the dependency graph and print it`
const resolveLongHelp = `
usage: dop resolve [-profile <name>] [<recipe-dir>]

Runs the four-phase resolver (discovery, compatibility filtering, version
and option selection, graph materialization) over the recipe at
<recipe-dir> (the working directory if omitted), and prints the resulting
package list. Run "dop lock" to persist the result to
dopamine-lock.json.
`

func (c *resolveCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.profileName, "profile", "", "profile to resolve under (default: \"default\")")
}

func (c *resolveCommand) Run(ctx *Ctx, args []string) error {
	recipeDir := ctx.RootRecipeDir(firstArg(args))

	dg, _, h, err := resolveGraph(ctx.Context, recipeDir, c.profileName, model.NewOptionSet(), ctx)
	if err != nil {
		return errors.Wrap(err, "resolve")
	}

	lf, err := lockfile.Dump(dg, lockfile.FromHeuristics(h, model.NewOptionSet()))
	if err != nil {
		return err
	}
	for _, p := range lf.Packages {
		mark := " "
		if p.Root {
			mark = "*"
		}
		ctx.Out.Logf("%s %s/%s %s\n", mark, p.Provider, p.Name, p.Version)
	}
	return nil
}

func firstArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}
