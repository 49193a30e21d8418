package profile

import (
	"crypto/sha1" //nolint:gosec // content identity, not a security boundary; spec mandates SHA-1
	"encoding/hex"
	"sort"
)

func hexSHA1(b []byte) string {
	sum := sha1.Sum(b) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

// FeedDigest returns the SHA-1 digest of p's deterministic byte
// representation: basename, host arch, host OS, build type, then each sorted tool's
// (id, name, version, path[, msvc fields]).
func (p Profile) FeedDigest() []byte {
	h := sha1.New() //nolint:gosec
	feedString(h, p.Basename)
	feedString(h, string(p.Host.Arch))
	feedString(h, string(p.Host.OS))
	feedString(h, p.BuildType)
	for _, t := range p.Tools { // already sorted by ID per the New/Load invariant
		feedString(h, t.ID)
		feedString(h, t.Name)
		feedString(h, t.Version)
		feedString(h, t.Path)
		if t.MSVCVer != "" || t.MSVCDisp != "" {
			feedString(h, t.MSVCVer)
			feedString(h, t.MSVCDisp)
		}
	}
	return h.Sum(nil)
}

type digestWriter interface {
	Write([]byte) (int, error)
}

func feedString(h digestWriter, s string) {
	// Length-prefix every field so that e.g. feeding "ab"+"c" cannot
	// collide with feeding "a"+"bc".
	n := len(s)
	_, _ = h.Write([]byte{byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)})
	_, _ = h.Write([]byte(s))
}

// BuildConfig is the full per-build configuration: the profile plus the
// optional module subset and the effective option set.
type BuildConfig struct {
	Profile Profile
	Modules []string // nil means "all modules"
	Options map[string]string
}

// FeedDigest feeds Profile.FeedDigest, then the sorted module names, then
// the sorted (key, value) option pairs.
func (c BuildConfig) FeedDigest() []byte {
	h := sha1.New() //nolint:gosec
	_, _ = h.Write(c.Profile.FeedDigest())

	mods := append([]string(nil), c.Modules...)
	sort.Strings(mods)
	for _, m := range mods {
		feedString(h, m)
	}

	keys := make([]string, 0, len(c.Options))
	for k := range c.Options {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		feedString(h, k)
		feedString(h, c.Options[k])
	}
	return h.Sum(nil)
}

// DigestHash is the lowercase hex SHA-1 of FeedDigest.
func (c BuildConfig) DigestHash() string { return hexSHA1(c.FeedDigest()) }
