// Package profile describes the host/target/build-type/tools a build runs
// under (Profile), and the full per-build configuration derived from it
// (BuildConfig). Both feed deterministic bytes into a digest so that
// buildid can hash them; see digest.go.
package profile

import (
	"sort"

	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Arch is a host/target CPU architecture.
type Arch string

const (
	ArchX86    Arch = "x86"
	ArchX86_64 Arch = "x86_64"
)

// OS is a host/target operating system.
type OS string

const (
	OSLinux   OS = "linux"
	OSWindows OS = "windows"
)

// HostInfo describes the machine a build runs on (or targets).
type HostInfo struct {
	Arch Arch
	OS   OS
}

// Tool describes one toolchain component autodetected outside the core
// (cc, g++, dmd, vswhere.exe, ...) and fed in as a plain struct.
type Tool struct {
	ID      string
	Name    string
	Version string
	Path    string
	// MSVCVer and MSVCDisp are only populated for the MSVC tool entry.
	MSVCVer  string
	MSVCDisp string
}

// Profile carries a basename, host description, build type, and a sorted
// set of detected tools.
type Profile struct {
	Basename  string
	Host      HostInfo
	BuildType string
	Tools     []Tool // kept sorted by ID
}

// New returns a Profile with its Tools sorted by ID, the invariant every
// other method on Profile assumes.
func New(basename string, host HostInfo, buildType string, tools []Tool) Profile {
	sorted := append([]Tool(nil), tools...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	return Profile{Basename: basename, Host: host, BuildType: buildType, Tools: sorted}
}

// Subset returns a new Profile carrying only the named tools, in the same
// (sorted) relative order. Required so that a recipe's BuildId only
// depends on the tools it actually declared, keeping the id stable when
// unrelated tools are added to or removed from the ambient profile.
func (p Profile) Subset(ids []string) Profile {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	var tools []Tool
	for _, t := range p.Tools {
		if want[t.ID] {
			tools = append(tools, t)
		}
	}
	return Profile{Basename: p.Basename, Host: p.Host, BuildType: p.BuildType, Tools: tools}
}

// Tool looks up a tool by id.
func (p Profile) Tool(id string) (Tool, bool) {
	for _, t := range p.Tools {
		if t.ID == id {
			return t, true
		}
	}
	return Tool{}, false
}

// ToolIDs returns the profile's tool ids, in the profile's sorted order.
func (p Profile) ToolIDs() []string {
	ids := make([]string, len(p.Tools))
	for i, t := range p.Tools {
		ids[i] = t.ID
	}
	return ids
}

// DigestHash is the lowercase hex SHA-1 of FeedDigest.
func (p Profile) DigestHash() string {
	return hexSHA1(p.FeedDigest())
}

// Load reads a Profile from an INI file at path, per spec §6's layout:
// [main] basename, buildtype; [host] arch, os; [tool.<id>] name, version,
// path (+ msvc_ver, msvc_disp for the msvc tool).
func Load(path string) (Profile, error) {
	f, err := ini.Load(path)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "loading profile %s", path)
	}

	main := f.Section("main")
	host := f.Section("host")

	p := Profile{
		Basename:  main.Key("basename").String(),
		BuildType: main.Key("buildtype").String(),
		Host: HostInfo{
			Arch: Arch(host.Key("arch").String()),
			OS:   OS(host.Key("os").String()),
		},
	}

	for _, sec := range f.Sections() {
		const prefix = "tool."
		name := sec.Name()
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		id := name[len(prefix):]
		p.Tools = append(p.Tools, Tool{
			ID:       id,
			Name:     sec.Key("name").String(),
			Version:  sec.Key("version").String(),
			Path:     sec.Key("path").String(),
			MSVCVer:  sec.Key("msvc_ver").String(),
			MSVCDisp: sec.Key("msvc_disp").String(),
		})
	}
	sort.Slice(p.Tools, func(i, j int) bool { return p.Tools[i].ID < p.Tools[j].ID })
	return p, nil
}

// Save serializes p to an INI file at path, in the layout Load expects.
func (p Profile) Save(path string) error {
	f := ini.Empty()

	main, _ := f.NewSection("main")
	main.NewKey("basename", p.Basename)
	main.NewKey("buildtype", p.BuildType)

	host, _ := f.NewSection("host")
	host.NewKey("arch", string(p.Host.Arch))
	host.NewKey("os", string(p.Host.OS))

	for _, t := range p.Tools {
		sec, _ := f.NewSection("tool." + t.ID)
		sec.NewKey("name", t.Name)
		sec.NewKey("version", t.Version)
		sec.NewKey("path", t.Path)
		if t.MSVCVer != "" {
			sec.NewKey("msvc_ver", t.MSVCVer)
		}
		if t.MSVCDisp != "" {
			sec.NewKey("msvc_disp", t.MSVCDisp)
		}
	}

	if err := f.SaveTo(path); err != nil {
		return errors.Wrapf(err, "saving profile %s", path)
	}
	return nil
}
