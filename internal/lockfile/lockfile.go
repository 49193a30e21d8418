// Package lockfile serializes a resolved dependency graph to JSON (and
// back), preserving resolution so a later build can skip re-resolving
// entirely. The schema is the one described for the lock file: a format
// version, a snapshot of the resolve config, and a flat package list whose
// dependency entries are resolved back into graph edges on load.
package lockfile

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/rtbo/dopamine/internal/depgraph"
	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/semverx"
)

// CurrentVersion is the only "dopamine-lock-version" this codec writes or
// accepts; readers reject any other value outright.
const CurrentVersion = 1

// ResolveConfig is the snapshot of the heuristics and caller options a
// resolve ran under, recorded for information. Load does not compare it
// with the current configuration, so a lock is not detected as stale when
// the heuristics change.
type ResolveConfig struct {
	Mode        string            `json:"mode"`
	System      string            `json:"system,omitempty"`
	SystemList  []string          `json:"systemList,omitempty"`
	PreSelected map[string]string `json:"preSelected,omitempty"`
	Options     map[string]string `json:"options,omitempty"`
}

// FromHeuristics captures h and the caller's option overrides into a
// ResolveConfig snapshot.
func FromHeuristics(h model.Heuristics, callerOptions model.OptionSet) ResolveConfig {
	cfg := ResolveConfig{Mode: h.Mode.String(), System: h.System.String()}
	for _, n := range h.SystemList {
		cfg.SystemList = append(cfg.SystemList, string(n))
	}
	if len(h.PreSelected) > 0 {
		cfg.PreSelected = make(map[string]string, len(h.PreSelected))
		for n, v := range h.PreSelected {
			cfg.PreSelected[string(n)] = v.String()
		}
	}
	if !callerOptions.IsEmpty() {
		cfg.Options = map[string]string(callerOptions)
	}
	return cfg
}

// DepRef is one recorded dependency edge: the target package and the
// VersionSpec the edge carried at resolve time.
type DepRef struct {
	Name     string `json:"name"`
	Provider string `json:"provider"`
	Spec     string `json:"spec"`
}

// PackageEntry is one resolved package, flattened for JSON.
type PackageEntry struct {
	Name         string            `json:"name"`
	Provider     string            `json:"provider"`
	Version      string            `json:"version"`
	Revision     string            `json:"revision,omitempty"`
	System       bool              `json:"system,omitempty"`
	Options      map[string]string `json:"options,omitempty"`
	Root         bool              `json:"root,omitempty"`
	Dependencies []DepRef          `json:"dependencies,omitempty"`
}

// File is the top-level lock-file document.
type File struct {
	Version  int            `json:"dopamine-lock-version"`
	Config   ResolveConfig  `json:"config"`
	Packages []PackageEntry `json:"packages"`
}

// CorruptLockError is raised when a lock file fails to reload into a
// consistent graph: an unknown version, a dangling dependency reference,
// or a recorded spec that no longer matches its target's version.
type CorruptLockError struct {
	Reason string
}

func (e *CorruptLockError) Error() string {
	return fmt.Sprintf("corrupt lock file: %s", e.Reason)
}

// Dump flattens dg into a File under the given resolve-config snapshot.
// Package order is a bottom-up traversal, so a package always appears
// after a textual reader has already seen its dependencies.
func Dump(dg *depgraph.DgGraph, cfg ResolveConfig) (*File, error) {
	f := &File{Version: CurrentVersion, Config: cfg}
	err := dg.TraverseBottomUp(func(n *depgraph.DgNode) error {
		entry := PackageEntry{
			Name:     string(n.Name),
			Provider: n.Kind.String(),
			Version:  n.AVer.Ver.String(),
			Revision: n.Revision,
			System:   n.AVer.Loc.IsSystem(),
			Root:     n == dg.Root,
		}
		if !n.Options.IsEmpty() {
			entry.Options = map[string]string(n.Options)
		}
		for _, e := range n.Down {
			entry.Dependencies = append(entry.Dependencies, DepRef{
				Name:     string(e.To.Name),
				Provider: e.To.Kind.String(),
				Spec:     e.Spec.String(),
			})
		}
		f.Packages = append(f.Packages, entry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Marshal renders f as indented JSON.
func Marshal(f *File) ([]byte, error) {
	return json.MarshalIndent(f, "", "  ")
}

// WriteFile atomically writes f to path (truncate-and-rename via a sibling
// temp file), matching the write discipline the rest of the on-disk state
// uses.
func WriteFile(path string, f *File) error {
	b, err := Marshal(f)
	if err != nil {
		return errors.Wrap(err, "encoding lock file")
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %s", path)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrapf(err, "writing %s", path)
	}
	return nil
}

type nodeKey struct {
	name     string
	provider string
}

// Load parses raw lock-file JSON and reconstructs the resolved graph it
// describes: every package becomes a DgNode without edges, then every
// recorded dependency is resolved by (name, provider) into a DgEdge,
// verifying the recorded spec still matches the target's version.
func Load(data []byte) (*depgraph.DgGraph, *File, error) {
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, nil, errors.Wrap(err, "parsing lock file")
	}
	if f.Version != CurrentVersion {
		return nil, nil, &CorruptLockError{Reason: fmt.Sprintf("unsupported lock file version %d", f.Version)}
	}

	dg := &depgraph.DgGraph{}
	byKey := make(map[nodeKey]*depgraph.DgNode, len(f.Packages))

	for _, p := range f.Packages {
		ver, err := semverx.Parse(p.Version)
		if err != nil {
			return nil, nil, &CorruptLockError{Reason: fmt.Sprintf("package %s: invalid version %q: %v", p.Name, p.Version, err)}
		}
		kind := model.KindDop
		if p.Provider == model.KindDub.String() {
			kind = model.KindDub
		}
		loc := model.LocCache
		if p.System {
			loc = model.LocSystem
		}
		n := &depgraph.DgNode{
			Name:     model.PackageName(p.Name),
			Kind:     kind,
			AVer:     model.AvailVersion{Ver: ver, Loc: loc},
			Revision: p.Revision,
			Options:  model.OptionSet(p.Options),
		}
		dg.Nodes = append(dg.Nodes, n)
		byKey[nodeKey{p.Name, p.Provider}] = n
		if p.Root {
			dg.Root = n
		}
	}

	for i, p := range f.Packages {
		n := dg.Nodes[i]
		for _, d := range p.Dependencies {
			target, ok := byKey[nodeKey{d.Name, d.Provider}]
			if !ok {
				return nil, nil, &CorruptLockError{Reason: fmt.Sprintf("package %s: dependency %s/%s not found among packages", p.Name, d.Provider, d.Name)}
			}
			spec, err := semverx.ParseVersionSpec(d.Spec)
			if err != nil {
				return nil, nil, &CorruptLockError{Reason: fmt.Sprintf("package %s: invalid dependency spec %q: %v", p.Name, d.Spec, err)}
			}
			if !spec.Matches(target.AVer.Ver) {
				return nil, nil, &CorruptLockError{Reason: fmt.Sprintf("package %s: recorded spec %q no longer matches %s %s", p.Name, d.Spec, target.Name, target.AVer.Ver)}
			}
			e := &depgraph.DgEdge{From: n, To: target, Spec: spec}
			n.Down = append(n.Down, e)
			target.Up = append(target.Up, e)
		}
	}

	if dg.Root == nil {
		return nil, nil, &CorruptLockError{Reason: "no package marked root"}
	}
	return dg, &f, nil
}

// ReadFile reads and parses the lock file at path.
func ReadFile(path string) (*depgraph.DgGraph, *File, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return Load(b)
}
