package depservice

import (
	"context"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/cache"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
	"github.com/rtbo/dopamine/internal/recipehost"
	"github.com/rtbo/dopamine/internal/semverx"
)

// SystemDepSource discovers a package through pkg-config. It has no
// dependency information of its own: a system package is assumed to carry
// its own dependencies already installed, so the resolver never recurses
// past a system candidate.
type SystemDepSource struct {
	Sys *cache.SystemSource
}

func (s *SystemDepSource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	out, err := s.Sys.ModVersion(ctx, string(name.PkgName()))
	if err != nil || out == "" {
		return nil, err
	}
	v, err := semverx.Parse(out)
	if err != nil {
		// pkg-config versions are not always strict semver (e.g. "1.2"); a
		// version pkg-config reports that this host can't parse as a
		// candidate is simply not offered, not a hard failure.
		return nil, nil
	}
	return []semverx.Semver{v}, nil
}

func (s *SystemDepSource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	vers, err := s.AvailVersions(ctx, name)
	if err != nil {
		return false, err
	}
	for _, v := range vers {
		if v.Equal(ver) {
			return true, nil
		}
	}
	return false, nil
}

func (s *SystemDepSource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	return nil, errors.Errorf("%s is a system package: it has no recipe", name)
}

func (s *SystemDepSource) HasDepDependencies() bool { return false }

func (s *SystemDepSource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	return nil, nil
}

// DopCacheSource serves Dop packages already extracted into the local
// cache.
type DopCacheSource struct {
	Cache *cache.Cache
}

func (s *DopCacheSource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	dirs, err := s.Cache.PackageDirs()
	if err != nil {
		return nil, err
	}
	var out []semverx.Semver
	for _, d := range dirs {
		if d.Name.PkgName() != name.PkgName() || len(d.Revisions) == 0 {
			continue
		}
		v, err := semverx.Parse(d.Version)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *DopCacheSource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	if revision != "" {
		return s.Cache.HasRevision(name, ver.String(), revision), nil
	}
	rev, ok := s.latestRevision(name, ver)
	return ok && rev != "", nil
}

// latestRevision picks the lexicographically-last cached revision for
// (name, ver): the cache rarely holds more than one revision of the same
// version at once, and when it does, any deterministic tie-break is
// sufficient since the registry is the source of truth for "latest".
func (s *DopCacheSource) latestRevision(name model.PackageName, ver semverx.Semver) (string, bool) {
	dirs, err := s.Cache.PackageDirs()
	if err != nil {
		return "", false
	}
	for _, d := range dirs {
		if d.Name.PkgName() != name.PkgName() || d.Version != ver.String() || len(d.Revisions) == 0 {
			continue
		}
		return d.Revisions[len(d.Revisions)-1], true
	}
	return "", false
}

func (s *DopCacheSource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	if revision == "" {
		rev, ok := s.latestRevision(name, ver)
		if !ok {
			return nil, &cache.NoSuchVersion{Name: name, Version: ver.String()}
		}
		revision = rev
	}
	return recipehost.Load(s.Cache.RevisionDir(name, ver.String(), revision))
}

func (s *DopCacheSource) HasDepDependencies() bool { return true }

func (s *DopCacheSource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	r, err := s.FetchRecipe(ctx, name, ver, "")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.HasDependenciesHook() {
		return nil, nil
	}
	return r.Dependencies(cfg)
}

// DopRegistrySource serves Dop packages from the network, caching them
// locally as a side effect of fetching.
type DopRegistrySource struct {
	Cache    *cache.Cache
	Registry *cache.Client
}

func (s *DopRegistrySource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	info, err := s.Registry.GetPackage(ctx, name.PkgName())
	if err != nil {
		if _, ok := err.(*cache.NoSuchPackage); ok {
			return nil, nil
		}
		return nil, err
	}
	var out []semverx.Semver
	for _, vi := range info.Versions {
		v, err := semverx.Parse(vi.Ver)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out, nil
}

func (s *DopRegistrySource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	if revision == "" {
		_, err := s.Registry.GetLatestRecipeRevision(ctx, name.PkgName(), ver.String())
		return err == nil, nil
	}
	_, err := s.Registry.GetRecipeRevision(ctx, name.PkgName(), ver.String(), revision)
	return err == nil, nil
}

func (s *DopRegistrySource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	desc, err := s.Cache.CacheRecipe(ctx, s.Registry, name.PkgName(), ver.String(), revision)
	if err != nil {
		return nil, err
	}
	return recipehost.Load(desc.Dir)
}

func (s *DopRegistrySource) HasDepDependencies() bool { return true }

func (s *DopRegistrySource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	r, err := s.FetchRecipe(ctx, name, ver, "")
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.HasDependenciesHook() {
		return nil, nil
	}
	return r.Dependencies(cfg)
}

// DubCacheSource and DubRegistrySource serve Dub-style packages, which
// carry no revision level and no dependencies hook of their own: their
// dependency metadata, when present, comes directly from registry package
// metadata rather than a scripted recipe (DubRegistrySource.Dependencies).
// A package already extracted into the local Dub cache carries no copy of
// that metadata, so DubCacheSource reports none; the registry is always
// consulted for a Dub package's dependency list, same as for its versions.
// The source is intentionally nil for Dub's system location — whether that
// is an unimplemented gap or a deliberate decision in the original tool is
// undocumented, so it is kept null here.
type DubCacheSource struct {
	Root string
}

func (s *DubCacheSource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	c := cache.New(s.Root, model.KindDub)
	dirs, err := c.PackageDirs()
	if err != nil {
		return nil, err
	}
	var out []semverx.Semver
	for _, d := range dirs {
		if d.Name.PkgName() != name.PkgName() {
			continue
		}
		if v, err := semverx.Parse(d.Version); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *DubCacheSource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	vers, err := s.AvailVersions(ctx, name)
	if err != nil {
		return false, err
	}
	for _, v := range vers {
		if v.Equal(ver) {
			return true, nil
		}
	}
	return false, nil
}

func (s *DubCacheSource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	return nil, errors.Errorf("dub packages have no recipe to fetch (%s)", name)
}

func (s *DubCacheSource) HasDepDependencies() bool { return false }

func (s *DubCacheSource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	return nil, nil
}

type DubRegistrySource struct {
	Registry *cache.Client
}

func (s *DubRegistrySource) AvailVersions(ctx context.Context, name model.PackageName) ([]semverx.Semver, error) {
	info, err := s.Registry.GetPackage(ctx, name.PkgName())
	if err != nil {
		if _, ok := err.(*cache.NoSuchPackage); ok {
			return nil, nil
		}
		return nil, err
	}
	var out []semverx.Semver
	for _, vi := range info.Versions {
		if v, err := semverx.Parse(vi.Ver); err == nil {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *DubRegistrySource) HasPackage(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (bool, error) {
	vers, err := s.AvailVersions(ctx, name)
	if err != nil {
		return false, err
	}
	for _, v := range vers {
		if v.Equal(ver) {
			return true, nil
		}
	}
	return false, nil
}

func (s *DubRegistrySource) FetchRecipe(ctx context.Context, name model.PackageName, ver semverx.Semver, revision string) (*recipehost.Recipe, error) {
	return nil, errors.Errorf("dub packages have no recipe to fetch (%s)", name)
}

func (s *DubRegistrySource) HasDepDependencies() bool { return true }

// Dependencies reads the dependency list straight from the registry's
// package metadata for ver, since Dub packages carry no recipe to script a
// dependencies() hook of their own.
func (s *DubRegistrySource) Dependencies(ctx context.Context, cfg profile.BuildConfig, name model.PackageName, ver semverx.Semver) ([]model.DepSpec, error) {
	info, err := s.Registry.GetPackage(ctx, name.PkgName())
	if err != nil {
		if _, ok := err.(*cache.NoSuchPackage); ok {
			return nil, nil
		}
		return nil, err
	}
	for _, vi := range info.Versions {
		if vi.Ver != ver.String() {
			continue
		}
		specs := make([]model.DepSpec, 0, len(vi.Deps))
		for _, d := range vi.Deps {
			spec, err := semverx.ParseVersionSpec(d.Spec)
			if err != nil {
				return nil, errors.Wrapf(err, "dub package %s: dependency %s", name, d.Name)
			}
			specs = append(specs, model.DepSpec{
				Name:    model.PackageName(d.Name),
				Spec:    spec,
				Kind:    model.KindDub,
				Options: model.NewOptionSet(),
			})
		}
		return specs, nil
	}
	return nil, nil
}
