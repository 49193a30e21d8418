// Package orchestrate drives a resolved dependency graph to built, staged
// packages: per node it checks tool availability, fetches or reuses a
// source tree, reuses or runs a build, and threads direct- and
// transitive-dependency install directories into each recipe's build hook.
package orchestrate

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"
	shutil "github.com/termie/go-shutil"

	"github.com/rtbo/dopamine/internal/buildid"
	"github.com/rtbo/dopamine/internal/depgraph"
	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/diag"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/state"
)

// Orchestrator holds everything a build run needs beyond the resolved
// graph itself: the two per-kind dep services, the host profile, the
// caller's option overrides, an optional stage destination, and a logger.
type Orchestrator struct {
	Dop, Dub  *depservice.Service
	Profile   profile.Profile
	Options   model.OptionSet
	StageDest string // empty: do not stage after building
	Log       *diag.Logger
}

// Result is the per-package outcome threaded into dependents' build hooks
// and returned to the caller as the final DepInfo contract.
type Result struct {
	Name       model.PackageName
	Kind       model.DepKind
	Ver        string
	BuildID    string
	InstallDir string
}

// Build walks dg bottom-up: every resolved non-system node is built (or
// confirmed up to date) before its dependents run. The root is built last,
// by the same machinery, since it is simply the last node the bottom-up
// walk yields. Returns the transitive name -> Result map.
func (o *Orchestrator) Build(ctx context.Context, dg *depgraph.DgGraph) (map[model.PackageName]Result, error) {
	if err := o.checkTools(ctx, dg); err != nil {
		return nil, err
	}

	built := make(map[*depgraph.DgNode]Result)
	err := dg.TraverseBottomUp(func(n *depgraph.DgNode) error {
		if n.AVer.Loc.IsSystem() {
			return nil
		}
		res, err := o.buildNode(ctx, n, built)
		if err != nil {
			return err
		}
		built[n] = res
		return nil
	})
	if err != nil {
		return nil, err
	}

	out := make(map[model.PackageName]Result, len(built))
	for n, r := range built {
		out[n.Name] = r
	}
	return out, nil
}

func (o *Orchestrator) serviceFor(kind model.DepKind) *depservice.Service {
	if kind == model.KindDub {
		return o.Dub
	}
	return o.Dop
}

func (o *Orchestrator) fetchRecipe(ctx context.Context, n *depgraph.DgNode) (*recipehost.Recipe, error) {
	return o.serviceFor(n.Kind).PackRecipe(ctx, n.Name, n.AVer, n.Revision)
}

// checkTools collects the union of tools every non-system resolved recipe
// declares and fails loud, listing what's missing, if the profile doesn't
// carry them all.
func (o *Orchestrator) checkTools(ctx context.Context, dg *depgraph.DgGraph) error {
	toolSet := make(map[string]bool)
	err := dg.TraverseBottomUp(func(n *depgraph.DgNode) error {
		if n.AVer.Loc.IsSystem() {
			return nil
		}
		r, err := o.fetchRecipe(ctx, n)
		if err != nil {
			return err
		}
		for _, t := range r.Meta.Tools {
			toolSet[t] = true
		}
		return nil
	})
	if err != nil {
		return err
	}

	var missing []string
	for t := range toolSet {
		if _, ok := o.Profile.Tool(t); !ok {
			missing = append(missing, t)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return errors.Errorf("missing required tools: %v", missing)
}

func (o *Orchestrator) effectiveOptions(n *depgraph.DgNode) model.OptionSet {
	var conflicts []model.OptionConflict
	return model.Merge(&conflicts, o.Options.ForDependency(n.Name), n.Options)
}

func checkOptionConflicts(n *depgraph.DgNode, eff model.OptionSet) error {
	for _, c := range n.OptionConflicts {
		if _, ok := eff[c.Key]; !ok {
			return errors.Errorf("%s: option %q is ambiguous (%q vs %q) and was not bound by any caller option", n.Name, c.Key, c.ValueA, c.ValueB)
		}
	}
	return nil
}

// buildNode builds (or reuses) one resolved package. Light recipes (no
// build hook) contribute nothing to build beyond their dependencies, which
// the bottom-up walk has already visited.
func (o *Orchestrator) buildNode(ctx context.Context, n *depgraph.DgNode, built map[*depgraph.DgNode]Result) (Result, error) {
	r, err := o.fetchRecipe(ctx, n)
	if err != nil {
		return Result{}, err
	}

	base := Result{Name: n.Name, Kind: n.Kind, Ver: n.AVer.Ver.String()}
	if !r.Meta.HasBuild {
		return base, nil
	}

	effProfile := o.Profile.Subset(r.Meta.Tools)
	effOptions := o.effectiveOptions(n)
	if err := checkOptionConflicts(n, effOptions); err != nil {
		return Result{}, err
	}

	var directDeps []buildid.DirectDep
	for _, e := range n.Down {
		if e.To.AVer.Loc.IsSystem() {
			continue
		}
		dres, ok := built[e.To]
		if !ok {
			return Result{}, errors.Errorf("%s: dependency %s was not built before it", n.Name, e.To.Name)
		}
		directDeps = append(directDeps, buildid.DirectDep{Name: e.To.Name, Kind: e.To.Kind, ID: dres.BuildID})
	}

	cfg := profile.BuildConfig{Profile: effProfile, Options: map[string]string(effOptions)}

	var stagePath string
	if r.Meta.StageFalse && o.StageDest != "" {
		abs, err := filepath.Abs(o.StageDest)
		if err != nil {
			return Result{}, errors.Wrapf(err, "%s: resolving stage destination", n.Name)
		}
		stagePath = abs
	}

	id := buildid.Compute(buildid.Inputs{
		RecipeName: string(n.Name),
		Kind:       n.Kind,
		Version:    n.AVer.Ver.String(),
		Revision:   n.Revision,
		Config:     cfg,
		DirectDeps: directDeps,
		StageFalse: r.Meta.StageFalse,
		StagePath:  stagePath,
	})

	paths := state.Paths(r.Dir, id)
	installDir := paths.Install
	if stagePath != "" {
		installDir = stagePath
	}

	recipeLock := state.NewLock(state.RecipePath(r.Dir), o.Log)
	if err := recipeLock.Acquire(ctx); err != nil {
		return Result{}, err
	}
	srcDir, err := o.readySource(r)
	if err != nil {
		_ = recipeLock.Release()
		return Result{}, err
	}

	configLock := state.NewLock(state.ConfigPath(r.Dir, id), o.Log)
	if err := configLock.Acquire(ctx); err != nil {
		_ = recipeLock.Release()
		return Result{}, err
	}
	// The recipe itself is no longer mutated past this point, so the
	// recipe lock can be released before the (possibly long-running)
	// build hook runs.
	if err := recipeLock.Release(); err != nil {
		_ = configLock.Release()
		return Result{}, err
	}

	res := base
	res.BuildID = id
	res.InstallDir = installDir

	upToDate, err := buildIsUpToDate(r, id, paths)
	if err != nil {
		_ = configLock.Release()
		return Result{}, err
	}
	if upToDate {
		o.Log.Logf("%s: up-to-date", n.Name)
		_ = configLock.Release()
		if err := o.stagePackage(r, res); err != nil {
			return Result{}, err
		}
		return res, nil
	}

	if err := os.MkdirAll(paths.Build, 0o755); err != nil {
		_ = configLock.Release()
		return Result{}, errors.Wrapf(err, "%s: creating build directory", n.Name)
	}
	if err := os.MkdirAll(installDir, 0o755); err != nil {
		_ = configLock.Release()
		return Result{}, errors.Wrapf(err, "%s: creating install directory", n.Name)
	}

	deps := collectTransitiveDeps(n, built)

	if err := runInDir(paths.Build, func() error {
		return r.Build(recipehost.BuildDirs{
			Root:    r.Dir,
			Src:     srcDir,
			Build:   paths.Build,
			Install: installDir,
		}, cfg, deps)
	}); err != nil {
		_ = configLock.Release()
		return Result{}, err
	}

	if err := state.SaveBuildState(r.Dir, id, state.BuildState{BuildTime: time.Now()}); err != nil {
		_ = configLock.Release()
		return Result{}, err
	}
	if err := configLock.Release(); err != nil {
		return Result{}, err
	}

	if err := o.stagePackage(r, res); err != nil {
		return Result{}, err
	}
	return res, nil
}

// readySource returns the ready-to-build source directory for r: the
// in-tree path if declared, else the cached srcDir from the recipe state
// file if it is still fresh (newer than the recipe file), else the result
// of running the recipe's source() hook, persisted for next time.
func (o *Orchestrator) readySource(r *recipehost.Recipe) (string, error) {
	if r.Meta.InTreeSrc != "" {
		return filepath.Join(r.Dir, r.Meta.InTreeSrc), nil
	}

	recipeInfo, err := os.Stat(r.Path)
	if err != nil {
		return "", errors.Wrapf(err, "%s: stat recipe file", r.Meta.Name)
	}

	rs, err := state.LoadRecipeState(r.Dir)
	if err != nil {
		return "", err
	}
	if rs.SrcDir != "" {
		if stInfo, err := os.Stat(state.RecipeStatePath(r.Dir)); err == nil {
			if recipeInfo.ModTime().Before(stInfo.ModTime()) {
				return rs.SrcDir, nil
			}
		}
	}

	if !r.Meta.HasSource {
		return "", errors.Errorf("%s: no source() hook and no in-tree source declared", r.Meta.Name)
	}
	src, err := r.Source()
	if err != nil {
		return "", err
	}
	if err := state.SaveRecipeState(r.Dir, state.RecipeState{SrcDir: src}); err != nil {
		return "", err
	}
	return src, nil
}

// buildIsUpToDate reports whether a previous build for this exact build-id
// can be reused: the install directory and state file both exist, and the
// recipe file is older than both the state file and its recorded build
// time.
func buildIsUpToDate(r *recipehost.Recipe, id string, paths state.BuildPaths) (bool, error) {
	if _, err := os.Stat(paths.Install); err != nil {
		return false, nil
	}
	stInfo, err := os.Stat(paths.StateFile)
	if err != nil {
		return false, nil
	}
	recipeInfo, err := os.Stat(r.Path)
	if err != nil {
		return false, errors.Wrapf(err, "%s: stat recipe file", r.Meta.Name)
	}
	if !recipeInfo.ModTime().Before(stInfo.ModTime()) {
		return false, nil
	}
	bs, err := state.LoadBuildState(r.Dir, id)
	if err != nil {
		return false, err
	}
	return recipeInfo.ModTime().Before(bs.BuildTime), nil
}

// collectTransitiveDeps gathers InstallDir for every non-system package
// reachable from n's down-edges, so the build hook sees the full
// transitive set, not just direct dependencies.
func collectTransitiveDeps(n *depgraph.DgNode, built map[*depgraph.DgNode]Result) map[model.PackageName]recipehost.DepInfo {
	out := make(map[model.PackageName]recipehost.DepInfo)
	visited := make(map[*depgraph.DgNode]bool)

	var walk func(node *depgraph.DgNode)
	walk = func(node *depgraph.DgNode) {
		for _, e := range node.Down {
			if visited[e.To] {
				continue
			}
			visited[e.To] = true
			if !e.To.AVer.Loc.IsSystem() {
				if res, ok := built[e.To]; ok {
					out[e.To.Name] = recipehost.DepInfo{InstallDir: res.InstallDir}
				}
			}
			walk(e.To)
		}
	}
	walk(n)
	return out
}

// stagePackage copies (or lets the recipe's own stage hook place) a built
// package into the caller's stage destination, then runs post_stage if
// declared. A stage=false recipe already built directly into the
// destination, so no copy occurs.
func (o *Orchestrator) stagePackage(r *recipehost.Recipe, res Result) error {
	if o.StageDest == "" {
		return nil
	}
	absDest, err := filepath.Abs(o.StageDest)
	if err != nil {
		return errors.Wrapf(err, "%s: resolving stage destination", r.Meta.Name)
	}

	if !r.Meta.StageFalse {
		if err := o.copyOrRunStage(r, res.InstallDir, absDest); err != nil {
			return err
		}
	}
	if !r.Meta.HasPostStage {
		return nil
	}
	return runInDir(absDest, r.PostStage)
}

func (o *Orchestrator) copyOrRunStage(r *recipehost.Recipe, installDir, dest string) error {
	if r.Meta.HasStage {
		return runInDir(installDir, func() error { return r.Stage(dest) })
	}
	if _, err := shutil.CopyTree(installDir, dest, nil); err != nil {
		return errors.Wrapf(err, "%s: staging install tree", r.Meta.Name)
	}
	return nil
}

// runInDir chdirs to dir, runs fn, and restores the previous working
// directory regardless of fn's outcome.
func runInDir(dir string, fn func() error) error {
	cwd, err := os.Getwd()
	if err != nil {
		return err
	}
	if err := os.Chdir(dir); err != nil {
		return errors.Wrapf(err, "entering %s", dir)
	}
	defer os.Chdir(cwd) //nolint:errcheck // best-effort restore; fn's error takes precedence
	return fn()
}
