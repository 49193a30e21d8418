package main

import (
	"flag"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/lockfile"
	"github.com/rtbo/dopamine/internal/model"
)

type lockCommand struct {
	profileName string
}

func (c *lockCommand) Name() string      { return "lock" }
func (c *lockCommand) Args() string      { return "[<recipe-dir>]" }
func (c *lockCommand) Hidden() bool      { return false }
func (c *lockCommand) ShortHelp() string { return lockShortHelp }
func (c *lockCommand) LongHelp() string  { return lockLongHelp }

const lockShortHelp = `Resolve the dependency graph and write dopamine-lock.json`
const lockLongHelp = `
usage: dop lock [-profile <name>] [<recipe-dir>]

Resolves the recipe at <recipe-dir> (the working directory if omitted)
and writes the result to dopamine-lock.json, overwriting any existing
one. "dop build" reuses this file until -update is passed.
`

func (c *lockCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.profileName, "profile", "", "profile to resolve under (default: \"default\")")
}

func (c *lockCommand) Run(ctx *Ctx, args []string) error {
	recipeDir := ctx.RootRecipeDir(firstArg(args))

	dg, _, h, err := resolveGraph(ctx.Context, recipeDir, c.profileName, model.NewOptionSet(), ctx)
	if err != nil {
		return errors.Wrap(err, "lock")
	}

	lf, err := lockfile.Dump(dg, lockfile.FromHeuristics(h, model.NewOptionSet()))
	if err != nil {
		return err
	}
	path := filepath.Join(recipeDir, lockFileName)
	if err := lockfile.WriteFile(path, lf); err != nil {
		return err
	}
	ctx.Out.Logf("resolved %d packages, wrote %s\n", len(lf.Packages), path)
	return nil
}
