// Package depservice implements the DepService façade: a single query
// surface over a package's system, cache, and network sources, used by the
// resolver so it never has to special-case where a candidate comes from.
package depservice

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/cache"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/semverx"
)

// DepSource is the capability set one source location provides. Not every
// source implements every method meaningfully: a nil DepSource on a given
// Service location simply means that location is absent for this kind of
// package (e.g. Dub packages have no system source).
type DepSource interface {
	AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error)
	HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error)
	FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error)
	HasDepDependencies() bool
	Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error)
}

// Service unifies up to three DepSource implementations, one per
// model.DepLocation. A nil entry means that location is not available for
// this Service's package kind (e.g. System is nil for the Dub service).
type Service struct {
	Kind    model.DepKind
	Sources [3]DepSource // indexed by model.DepLocation

	mu   sync.Mutex
	memo map[string]*recipehost.Recipe
}

// New returns a Service for the given sources, indexed by DepLocation
// (system, cache, network); pass nil for an absent source.
func New(kind model.DepKind, system, dcache, network DepSource) *Service {
	s := &Service{Kind: kind, memo: make(map[string]*recipehost.Recipe)}
	s.Sources[model.LocSystem] = system
	s.Sources[model.LocCache] = dcache
	s.Sources[model.LocNetwork] = network
	return s
}

func (s *Service) source(loc model.DepLocation) DepSource {
	return s.Sources[loc]
}

// PackAvailVersions merges the available versions from every source,
// deduplicates, and sorts by (version, location). NoSuchPackage is
// returned if no source has anything.
func (s *Service) PackAvailVersions(ctx context.Context, name model.PackageName) ([]model.AvailVersion, error) {
	var out []model.AvailVersion
	for loc, src := range s.Sources {
		if src == nil {
			continue
		}
		vers, err := src.AvailVersions(ctx, name)
		if err != nil {
			return nil, err
		}
		for _, v := range vers {
			out = append(out, model.AvailVersion{Ver: v, Loc: model.DepLocation(loc)})
		}
	}
	model.SortAvailVersions(out)
	out = model.DedupAvailVersions(out)
	if len(out) == 0 {
		return nil, &cache.NoSuchPackage{Name: name}
	}
	return out, nil
}

// PackRecipe fetches the recipe for (name, ver) at the given location,
// transparently promoted from cache if the requested location is network
// and the cache already has this (name, version, revision). It must not be
// called with loc == LocSystem. Results are memoized by
// "name/ver/revision".
func (s *Service) PackRecipe(ctx context.Context, name model.PackageName, av model.AvailVersion, revision string) (*recipehost.Recipe, error) {
	if av.Loc.IsSystem() {
		return nil, errors.Errorf("packRecipe called on system location for %s", name)
	}

	key := string(name) + "/" + av.Ver.String() + "/" + revision
	s.mu.Lock()
	if r, ok := s.memo[key]; ok {
		s.mu.Unlock()
		return r, nil
	}
	s.mu.Unlock()

	loc := av.Loc
	if loc.IsNetwork() {
		if cacheSrc := s.source(model.LocCache); cacheSrc != nil {
			if ok, err := cacheSrc.HasPackage(ctx, name, av.Ver, revision); err == nil && ok {
				loc = model.LocCache
			}
		}
	}

	src := s.source(loc)
	if src == nil {
		return nil, errors.Errorf("no %s source configured for %s", loc, name)
	}
	r, err := src.FetchRecipe(ctx, name, av.Ver, revision)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.memo[key] = r
	s.mu.Unlock()
	return r, nil
}

// PackDependencies resolves a package's declared dependencies at the given
// candidate version, delegating to whichever source serves that location.
// When that source reports no dependency information (a Dub cache entry),
// the network source is asked instead if it has it.
func (s *Service) PackDependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, av model.AvailVersion) ([]model.DepSpec, error) {
	src := s.source(av.Loc)
	if src == nil {
		return nil, errors.Errorf("no %s source configured for %s", av.Loc, name)
	}
	if !src.HasDepDependencies() {
		if net := s.source(model.LocNetwork); !av.Loc.IsSystem() && net != nil && net.HasDepDependencies() {
			return net.Dependencies(ctx, cfg, name, av.Ver)
		}
		return nil, nil
	}
	return src.Dependencies(ctx, cfg, name, av.Ver)
}

// sortedKeys returns the keys of a memo-shaped map in sorted order, for
// deterministic iteration.
func sortedKeys(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
