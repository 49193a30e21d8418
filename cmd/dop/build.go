package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/depgraph"
	"github.com/rtbo/dopamine/internal/diag"
	"github.com/rtbo/dopamine/internal/lockfile"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/orchestrate"
	"github.com/rtbo/dopamine/internal/profile"
)

type buildCommand struct {
	profileName string
	stageDest   string
	update      bool
}

func (c *buildCommand) Name() string      { return "build" }
func (c *buildCommand) Args() string      { return "[<recipe-dir>]" }
func (c *buildCommand) Hidden() bool      { return false }
func (c *buildCommand) ShortHelp() string { return buildShortHelp }
func (c *buildCommand) LongHelp() string  { return buildLongHelp }

const buildShortHelp = `Build a recipe and its dependencies`
const buildLongHelp = `
usage: dop build [-profile <name>] [-stage <dir>] [-update] [<recipe-dir>]

Builds the recipe at <recipe-dir> (the working directory if omitted) and
every dependency it resolves to, skipping any package whose build is
already up to date. Reuses dopamine-lock.json next to the recipe when
present; pass -update to re-resolve instead.

  -stage <dir>: after a successful build, stage every non-light package
                into <dir> (see dop stage for staging alone)
`

func (c *buildCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.profileName, "profile", "", "profile to build under (default: \"default\")")
	fs.StringVar(&c.stageDest, "stage", "", "stage built packages into this directory")
	fs.BoolVar(&c.update, "update", false, "re-resolve instead of reusing dopamine-lock.json")
}

func (c *buildCommand) Run(ctx *Ctx, args []string) error {
	recipeDir := ctx.RootRecipeDir(firstArg(args))

	dg, cfg, err := c.loadOrResolve(ctx, recipeDir)
	if err != nil {
		return errors.Wrap(err, "build")
	}

	dop, err := ctx.DopService()
	if err != nil {
		return err
	}
	dub, err := ctx.DubService()
	if err != nil {
		return err
	}

	o := &orchestrate.Orchestrator{
		Dop:       dop,
		Dub:       dub,
		Profile:   cfg.Profile,
		Options:   model.OptionSet(cfg.Options),
		StageDest: c.stageDest,
		Log:       ctx.Out,
	}

	results, err := o.Build(ctx.Context, dg)
	if err != nil {
		return errors.Wrap(err, "build")
	}
	for name, r := range results {
		ctx.Out.Logf("%s %s -> %s\n", name, r.Ver, r.InstallDir)
	}
	return nil
}

// loadOrResolve reuses the lock file next to recipeDir unless -update was
// passed or no lock file exists yet.
func (c *buildCommand) loadOrResolve(ctx *Ctx, recipeDir string) (*depgraph.DgGraph, profile.BuildConfig, error) {
	prof, err := ctx.LoadProfile(c.profileName)
	if err != nil {
		return nil, profile.BuildConfig{}, err
	}
	cfg := profile.BuildConfig{Profile: prof}

	path := filepath.Join(recipeDir, lockFileName)
	if !c.update {
		if dg, _, err := lockfile.ReadFile(path); err == nil {
			return dg, cfg, nil
		} else if !os.IsNotExist(err) {
			if _, corrupt := err.(*lockfile.CorruptLockError); corrupt {
				diag.New(os.Stderr).Warnf("%v: re-resolving\n", err)
			} else {
				return nil, cfg, err
			}
		}
	}

	dg, cfg, h, err := resolveGraph(ctx.Context, recipeDir, c.profileName, model.NewOptionSet(), ctx)
	if err != nil {
		return nil, cfg, err
	}
	lf, err := lockfile.Dump(dg, lockfile.FromHeuristics(h, model.NewOptionSet()))
	if err == nil {
		_ = lockfile.WriteFile(path, lf)
	}
	return dg, cfg, nil
}
