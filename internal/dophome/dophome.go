// Package dophome resolves the user's dopamine home directory and its
// fixed sub-paths (cache, dub-cache, profiles, login token map), and the
// two environment overrides the CLI honors: DOP_HOME and DOP_REGISTRY.
package dophome

import (
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"

	"github.com/pkg/errors"
)

// DefaultRegistry is used when DOP_REGISTRY is unset.
const DefaultRegistry = "https://registry.dopamine-lang.org"

// Dir returns the dopamine home directory: DOP_HOME if set, else
// "~/.dopamine" on POSIX or "%LOCALAPPDATA%\Dopamine" on Windows.
func Dir() (string, error) {
	if h := os.Getenv("DOP_HOME"); h != "" {
		return h, nil
	}
	if runtime.GOOS == "windows" {
		base := os.Getenv("LOCALAPPDATA")
		if base == "" {
			return "", errors.New("LOCALAPPDATA is not set")
		}
		return filepath.Join(base, "Dopamine"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", errors.Wrap(err, "resolving home directory")
	}
	return filepath.Join(home, ".dopamine"), nil
}

// Registry returns DOP_REGISTRY if set, else DefaultRegistry.
func Registry() string {
	if r := os.Getenv("DOP_REGISTRY"); r != "" {
		return r
	}
	return DefaultRegistry
}

// CacheDir, DubCacheDir, ProfilesDir and LoginPath are the fixed sub-paths
// of a dopamine home directory.
func CacheDir(home string) string    { return filepath.Join(home, "cache") }
func DubCacheDir(home string) string { return filepath.Join(home, "dub-cache") }
func ProfilesDir(home string) string { return filepath.Join(home, "profiles") }
func LoginPath(home string) string   { return filepath.Join(home, "login.json") }

// LoadLogins reads the registry -> token map, returning an empty map (not
// an error) if the file does not yet exist.
func LoadLogins(home string) (map[string]string, error) {
	b, err := os.ReadFile(LoginPath(home))
	if os.IsNotExist(err) {
		return map[string]string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var m map[string]string
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, errors.Wrap(err, "parsing login.json")
	}
	return m, nil
}

// SaveLogins atomically writes the registry -> token map.
func SaveLogins(home string, logins map[string]string) error {
	path := LoginPath(home)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	b, err := json.MarshalIndent(logins, "", "  ")
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
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
