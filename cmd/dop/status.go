package main

import (
	"flag"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/lockfile"
)

type statusCommand struct{}

func (c *statusCommand) Name() string      { return "status" }
func (c *statusCommand) Args() string      { return "[<recipe-dir>]" }
func (c *statusCommand) Hidden() bool      { return false }
func (c *statusCommand) ShortHelp() string { return statusShortHelp }
func (c *statusCommand) LongHelp() string  { return statusLongHelp }

const statusShortHelp = `Report the packages recorded in dopamine-lock.json`
const statusLongHelp = `
usage: dop status [<recipe-dir>]

Reads dopamine-lock.json next to the recipe at <recipe-dir> (the working
directory if omitted) and reports every locked package, flagging whether
the lock predates the recipe itself (meaning "dop lock" should be rerun).
`

func (c *statusCommand) Register(fs *flag.FlagSet) {}

func (c *statusCommand) Run(ctx *Ctx, args []string) error {
	recipeDir := ctx.RootRecipeDir(firstArg(args))
	lockPath := filepath.Join(recipeDir, lockFileName)

	_, lf, err := lockfile.ReadFile(lockPath)
	if os.IsNotExist(err) {
		ctx.Out.Logf("no %s: run \"dop lock\" first\n", lockFileName)
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "status")
	}

	if stale, err := lockIsStale(recipeDir, lockPath); err == nil && stale {
		ctx.Out.Warnf("%s is older than the recipe: consider running \"dop lock\"\n", lockFileName)
	}

	for _, p := range lf.Packages {
		mark := " "
		if p.Root {
			mark = "*"
		}
		loc := "cache"
		if p.System {
			loc = "system"
		}
		ctx.Out.Logf("%s %s/%s %s [%s]\n", mark, p.Provider, p.Name, p.Version, loc)
	}
	return nil
}

// lockIsStale reports whether the recipe file under recipeDir was modified
// after the lock file at lockPath.
func lockIsStale(recipeDir, lockPath string) (bool, error) {
	recipeInfo, err := os.Stat(filepath.Join(recipeDir, "dopamine.lua"))
	if err != nil {
		return false, err
	}
	lockInfo, err := os.Stat(lockPath)
	if err != nil {
		return false, err
	}
	return recipeInfo.ModTime().After(lockInfo.ModTime()), nil
}
