package recipehost

import (
	"strings"

	vcsutil "github.com/Masterminds/vcs"
	"github.com/pkg/errors"
)

// GitLsFilesOpts configures GitLsFiles.
type GitLsFilesOpts struct {
	Submodules bool
	Workdir    string // defaults to the recipe directory when empty
}

// GitLsFiles enumerates files tracked by the git working copy at
// opts.Workdir (or the recipe directory), optionally recursing into
// submodules. It reuses Masterminds/vcs's git command runner — the same
// capability the library exists to provide for cloning/inspecting a
// dependency's repository, repointed here at the recipe's own tree.
func GitLsFiles(opts GitLsFilesOpts, recipeDir string) ([]string, error) {
	dir := opts.Workdir
	if dir == "" {
		dir = recipeDir
	}

	repo, err := vcsutil.NewGitRepo(dir, dir)
	if err != nil {
		return nil, errors.Wrap(err, "git_ls_files")
	}

	args := []string{"ls-files", "-z"}
	if opts.Submodules {
		args = append(args, "--recurse-submodules")
	}
	out, err := repo.RunFromDir("git", args...)
	if err != nil {
		return nil, errors.Wrap(err, "git_ls_files")
	}

	raw := strings.Split(string(out), "\x00")
	files := make([]string, 0, len(raw))
	for _, f := range raw {
		if f != "" {
			files = append(files, f)
		}
	}
	return files, nil
}
