package main

import (
	"flag"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/orchestrate"
)

type stageCommand struct {
	profileName string
	dest        string
	update      bool
}

func (c *stageCommand) Name() string      { return "stage" }
func (c *stageCommand) Args() string      { return "-dest <dir> [<recipe-dir>]" }
func (c *stageCommand) Hidden() bool      { return false }
func (c *stageCommand) ShortHelp() string { return stageShortHelp }
func (c *stageCommand) LongHelp() string  { return stageLongHelp }

const stageShortHelp = `Build and stage a recipe and its dependencies`
const stageLongHelp = `
usage: dop stage -dest <dir> [-profile <name>] [-update] [<recipe-dir>]

Builds the recipe at <recipe-dir> (the working directory if omitted) and
every dependency it resolves to, then stages each non-light package into
<dest>: via its stage hook if it declares one, or a plain recursive copy
of its install directory otherwise. Packages whose recipe sets stage=false
are already built directly into <dest> and are not copied again.
`

func (c *stageCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&c.profileName, "profile", "", "profile to build under (default: \"default\")")
	fs.StringVar(&c.dest, "dest", "", "staging destination (required)")
	fs.BoolVar(&c.update, "update", false, "re-resolve instead of reusing dopamine-lock.json")
}

func (c *stageCommand) Run(ctx *Ctx, args []string) error {
	if c.dest == "" {
		return errors.New("stage: -dest is required")
	}
	recipeDir := ctx.RootRecipeDir(firstArg(args))

	bc := &buildCommand{profileName: c.profileName, stageDest: c.dest, update: c.update}
	dg, cfg, err := bc.loadOrResolve(ctx, recipeDir)
	if err != nil {
		return errors.Wrap(err, "stage")
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
		StageDest: c.dest,
		Log:       ctx.Out,
	}

	results, err := o.Build(ctx.Context, dg)
	if err != nil {
		return errors.Wrap(err, "stage")
	}
	ctx.Out.Logf("staged %d packages into %s\n", len(results), c.dest)
	return nil
}
