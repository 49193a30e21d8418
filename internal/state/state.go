package state

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
)

func dotDopPath(recipeDir, leaf string) string {
	return filepath.Join(recipeDir, ".dop", leaf)
}

// RecipeState is the small JSON object persisted at "<recipe>/.dop/state.json":
// the resolved source directory, once a recipe's source() hook has run.
type RecipeState struct {
	SrcDir string `json:"srcDir"`
}

// RecipeStatePath returns the recipe-state file path for the recipe at dir.
func RecipeStatePath(recipeDir string) string {
	return dotDopPath(recipeDir, "state.json")
}

// LoadRecipeState reads the recipe state file, returning the zero value
// (not an error) if it does not yet exist.
func LoadRecipeState(recipeDir string) (RecipeState, error) {
	var s RecipeState
	err := readJSON(RecipeStatePath(recipeDir), &s)
	if os.IsNotExist(err) {
		return RecipeState{}, nil
	}
	return s, err
}

// SaveRecipeState atomically writes the recipe state file.
func SaveRecipeState(recipeDir string, s RecipeState) error {
	return writeJSON(RecipeStatePath(recipeDir), s)
}

// BuildState is the small JSON object persisted at
// "<recipe>/.dop/<build-id>.json": the last successful build time for that
// build-id's configuration.
type BuildState struct {
	BuildTime time.Time `json:"buildTime"`
}

// BuildStatePath returns the per-config build-state file path.
func BuildStatePath(recipeDir, buildID string) string {
	return dotDopPath(recipeDir, buildID+".json")
}

// LoadBuildState reads the build state file, returning the zero value (not
// an error) if it does not yet exist.
func LoadBuildState(recipeDir, buildID string) (BuildState, error) {
	var s BuildState
	err := readJSON(BuildStatePath(recipeDir, buildID), &s)
	if os.IsNotExist(err) {
		return BuildState{}, nil
	}
	return s, err
}

// SaveBuildState atomically writes the per-config build-state file.
func SaveBuildState(recipeDir, buildID string, s BuildState) error {
	return writeJSON(BuildStatePath(recipeDir, buildID), s)
}

// BuildPaths are the three per-build-id paths under a recipe's ".dop"
// directory: the install root, the build scratch directory, and the build
// state file.
type BuildPaths struct {
	Build     string
	Install   string
	StateFile string
}

// Paths returns the BuildPaths for (recipeDir, buildID).
func Paths(recipeDir, buildID string) BuildPaths {
	return BuildPaths{
		Build:     dotDopPath(recipeDir, buildID+"-build"),
		Install:   dotDopPath(recipeDir, buildID),
		StateFile: BuildStatePath(recipeDir, buildID),
	}
}

func readJSON(path string, v interface{}) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return errors.Wrapf(json.Unmarshal(b, v), "parsing %s", path)
}

// writeJSON truncates-and-renames: it writes to a sibling temp file and
// renames it over the target, so a reader never observes a partial write.
func writeJSON(path string, v interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "writing %s", path)
	}
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "writing %s", path)
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
