package main

import (
	"context"
	"io"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sdboyer/constext"

	"github.com/rtbo/dopamine/internal/cache"
	"github.com/rtbo/dopamine/internal/depservice"
	"github.com/rtbo/dopamine/internal/diag"
	"github.com/rtbo/dopamine/internal/dophome"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
)

// Ctx is the top-level context every subcommand runs under: where dopamine
// keeps its state, which registry to talk to, and the loggers commands
// write through. It plays the role golang-dep's Ctx plays for GOPATH
// resolution, adapted to dopamine's home/registry/profile concerns.
type Ctx struct {
	Context    context.Context
	WorkingDir string
	Home       string
	Registry   string
	Verbose    bool

	Out *diag.Logger
	Err *diag.Logger
}

// NewContext resolves a Ctx from the process environment: DOP_HOME,
// DOP_REGISTRY, and the current working directory. callCtx is the
// cancellation context the command runs under (see callContext).
func NewContext(callCtx context.Context, wd string, out, errw io.Writer, verbose bool) (*Ctx, error) {
	home, err := dophome.Dir()
	if err != nil {
		return nil, errors.Wrap(err, "resolving dopamine home")
	}
	return &Ctx{
		Context:    callCtx,
		WorkingDir: wd,
		Home:       home,
		Registry:   dophome.Registry(),
		Verbose:    verbose,
		Out:        diag.New(out),
		Err:        diag.New(errw),
	}, nil
}

// registryClient builds a cache.Client for Registry, authenticated with
// the token on file for it in login.json, if any.
func (c *Ctx) registryClient() (*cache.Client, error) {
	logins, err := dophome.LoadLogins(c.Home)
	if err != nil {
		return nil, err
	}
	return cache.NewClient(c.Registry, logins[c.Registry]), nil
}

// DopService builds the DepService façade for dopamine-native packages:
// system (pkg-config), the local cache under Home, and the registry.
func (c *Ctx) DopService() (*depservice.Service, error) {
	reg, err := c.registryClient()
	if err != nil {
		return nil, err
	}
	dopCache := cache.New(dophome.CacheDir(c.Home), model.KindDop)
	sys := &depservice.SystemDepSource{Sys: cache.NewSystemSource(c.Err)}
	return depservice.New(model.KindDop,
		sys,
		&depservice.DopCacheSource{Cache: dopCache},
		&depservice.DopRegistrySource{Cache: dopCache, Registry: reg},
	), nil
}

// DubService builds the DepService façade for Dub-style packages. Dub has
// no system source (see depservice/sources.go).
func (c *Ctx) DubService() (*depservice.Service, error) {
	reg, err := c.registryClient()
	if err != nil {
		return nil, err
	}
	return depservice.New(model.KindDub,
		nil,
		&depservice.DubCacheSource{Root: dophome.DubCacheDir(c.Home)},
		&depservice.DubRegistrySource{Registry: reg},
	), nil
}

// LoadProfile reads the named profile ("default" if name is empty) from
// Home's profiles directory.
func (c *Ctx) LoadProfile(name string) (profile.Profile, error) {
	if name == "" {
		name = "default"
	}
	return profile.Load(filepath.Join(dophome.ProfilesDir(c.Home), name+".ini"))
}

// RootRecipeDir returns the directory holding the recipe the current
// command operates on: WorkingDir, unless overridden by path.
func (c *Ctx) RootRecipeDir(path string) string {
	if path == "" {
		return c.WorkingDir
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.WorkingDir, path)
}

// callContext merges the process-wide interrupt context with a fresh
// lifetime context for one subcommand invocation, the same way
// callManager.setUpCall in the teacher's deducer layer combines an inbound
// context with an internally-owned one via constext.Cons: cancellation
// from either side — the user hitting Ctrl-C, or the command's own
// deferred cleanup — propagates to the combined context.
func callContext(inctx context.Context) (context.Context, func()) {
	octx, ocancel := context.WithCancel(context.Background())
	cctx, cancel := constext.Cons(inctx, octx)
	return cctx, func() {
		ocancel()
		cancel()
	}
}
