package depgraph

import (
	"context"

	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
)

// ResolveAll runs all four resolver phases in sequence and returns the
// immutable resolved graph: igPrepare, igCheckCompat, igResolve +
// igCascadeOptions, dgCreate. It is the single entrypoint the orchestrator
// and the lock-file writer call.
func ResolveAll(ctx context.Context, root *recipehost.Recipe, dop, dub *depservice.Service, h model.Heuristics, cfg profile.BuildConfig, callerOptions model.OptionSet) (*DgGraph, error) {
	g, err := Prepare(ctx, root, dop, dub, h, cfg)
	if err != nil {
		return nil, err
	}
	if err := g.CheckCompat(); err != nil {
		return nil, err
	}
	if err := g.Resolve(ctx, callerOptions); err != nil {
		return nil, err
	}
	return g.Create(), nil
}
