package model

import "github.com/rtbo/dopamine/internal/semverx"

// DepSpec is one dependency declaration, as returned by a recipe's
// dependencies() hook or by registry metadata for a Dub package.
type DepSpec struct {
	Name    PackageName
	Spec    semverx.VersionSpec
	Kind    DepKind
	Options OptionSet
}

// RecipeType classifies a recipe by whether it declares a build hook.
type RecipeType int

const (
	// RecipePack has a build hook, a name, and a version.
	RecipePack RecipeType = iota
	// RecipeLight has no build hook and declares at least one dependency.
	RecipeLight
)

func (t RecipeType) String() string {
	if t == RecipeLight {
		return "light"
	}
	return "pack"
}

// RecipeMeta is the core-visible portion of a parsed recipe: everything
// the resolver and orchestrator need without invoking the recipe's hooks.
type RecipeMeta struct {
	Name        PackageName
	Version     semverx.Semver
	Revision    string // empty if not yet computed/known
	Description string
	License     string
	Copyright   string
	Tools       []string
	Included    []string
	InTreeSrc   string // empty if not in-tree
	HasSource   bool
	HasBuild    bool
	HasStage    bool
	HasPostStage bool
	StageFalse  bool
	Type        RecipeType
}

// Validate enforces the invariants of spec §3: a light recipe has no
// build hook and at least one dependency hook declared; a pack recipe has
// a build hook and a name. A zero Version cannot be told apart from 0.0.0,
// so the recipe loader checks that a pack recipe declares a version.
func (m RecipeMeta) Validate(hasDependenciesHook bool) error {
	switch m.Type {
	case RecipeLight:
		if m.HasBuild {
			return errRecipeShape("light recipe must not declare a build hook")
		}
		if !hasDependenciesHook {
			return errRecipeShape("light recipe must declare a dependencies hook")
		}
	case RecipePack:
		if !m.HasBuild {
			return errRecipeShape("pack recipe must declare a build hook")
		}
		if m.Name == "" {
			return errRecipeShape("pack recipe must declare a name")
		}
	}
	return nil
}

type recipeShapeError string

func (e recipeShapeError) Error() string { return string(e) }

func errRecipeShape(msg string) error { return recipeShapeError(msg) }
