// Package buildid computes the content-addressed identity stamped on every
// built package: a hash of its recipe identity, its build configuration, the
// identities of its direct dependencies, and — for stage-false recipes — the
// destination they were staged to.
package buildid

import (
	"crypto/sha1" //nolint:gosec // content identity, not a security boundary
	"encoding/hex"
	"sort"

	"github.com/rtbo/dopamine/internal/model"
	"github.com/rtbo/dopamine/internal/profile"
)

// DirectDep is the (name, kind, buildId) triple fed into a dependent's
// BuildId for each of its direct dependencies.
type DirectDep struct {
	Name model.PackageName
	Kind model.DepKind
	ID   string
}

// Inputs gathers everything BuildId needs. StagePath is only fed into the
// digest when StageFalse is set and non-empty: a stage-false recipe embeds
// its destination in its identity so the same recipe staged to two
// different places never collides, while a normal (stage=true) recipe's id
// is independent of where it is ultimately staged.
type Inputs struct {
	RecipeName string
	Kind       model.DepKind
	Version    string
	Revision   string
	Config     profile.BuildConfig
	DirectDeps []DirectDep
	StageFalse bool
	StagePath  string
}

// Compute returns the lowercase-hex SHA-1 BuildId for the given inputs.
// Identical inputs always produce an identical id, regardless of host or of
// the order DirectDeps were supplied in.
func Compute(in Inputs) string {
	h := sha1.New() //nolint:gosec

	feedString(h, in.RecipeName)
	feedString(h, in.Kind.String())
	feedString(h, in.Version)
	feedString(h, in.Revision)

	h.Write(in.Config.FeedDigest())

	deps := append([]DirectDep(nil), in.DirectDeps...)
	sort.Slice(deps, func(i, j int) bool {
		if deps[i].Name != deps[j].Name {
			return deps[i].Name < deps[j].Name
		}
		if deps[i].Kind != deps[j].Kind {
			return deps[i].Kind < deps[j].Kind
		}
		return deps[i].ID < deps[j].ID
	})
	feedUint32(h, uint32(len(deps)))
	for _, d := range deps {
		feedString(h, string(d.Name))
		feedString(h, d.Kind.String())
		feedString(h, d.ID)
	}

	if in.StageFalse && in.StagePath != "" {
		feedString(h, in.StagePath)
	}

	return hex.EncodeToString(h.Sum(nil))
}

type digestWriter interface {
	Write(p []byte) (int, error)
}

func feedUint32(h digestWriter, n uint32) {
	var b [4]byte
	b[0] = byte(n >> 24)
	b[1] = byte(n >> 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
	h.Write(b[:])
}

func feedString(h digestWriter, s string) {
	feedUint32(h, uint32(len(s)))
	h.Write([]byte(s))
}
