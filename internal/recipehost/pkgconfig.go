package recipehost

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// PkgConfigFile describes the content of one .pc file to emit. Variables
// are keyed by name; their values may reference other variables with
// "${name}" syntax, and are emitted in topological order so that every
// variable is defined before it is first referenced, matching how
// pkg-config itself requires top-to-bottom variable resolution.
type PkgConfigFile struct {
	Variables map[string]string
	Name      string
	Version   string
	Description string
	Requires  string
	Libs      string
	Cflags    string
}

var varRefRe = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// Emit renders the .pc file content, or returns an error if Name or
// Version is missing, or the variable references form a cycle.
func (f PkgConfigFile) Emit() (string, error) {
	if f.Name == "" {
		return "", errors.New("pkg-config file requires Name")
	}
	if f.Version == "" {
		return "", errors.New("pkg-config file requires Version")
	}

	order, err := topoSortVars(f.Variables)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	for _, name := range order {
		fmt.Fprintf(&b, "%s=%s\n", name, f.Variables[name])
	}
	b.WriteByte('\n')
	fmt.Fprintf(&b, "Name: %s\n", f.Name)
	fmt.Fprintf(&b, "Version: %s\n", f.Version)
	if f.Description != "" {
		fmt.Fprintf(&b, "Description: %s\n", f.Description)
	}
	if f.Requires != "" {
		fmt.Fprintf(&b, "Requires: %s\n", f.Requires)
	}
	if f.Libs != "" {
		fmt.Fprintf(&b, "Libs: %s\n", f.Libs)
	}
	if f.Cflags != "" {
		fmt.Fprintf(&b, "Cflags: %s\n", f.Cflags)
	}
	return b.String(), nil
}

// WriteTo emits the file and writes it to path.
func (f PkgConfigFile) WriteTo(path string) error {
	content, err := f.Emit()
	if err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// topoSortVars orders variable names so that any "${x}" reference in a
// variable's value is emitted after x is defined... actually pkg-config
// files declare top-down, and a variable must be defined to be
// substitutable, so the order required is: referenced variable first,
// referencing variable after. This performs a standard DFS topological
// sort over the "references" edges (var -> vars it references).
func topoSortVars(vars map[string]string) ([]string, error) {
	visited := make(map[string]int) // 0=unvisited,1=visiting,2=done
	var order []string

	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	sort.Strings(names) // deterministic iteration before DFS picks an order

	var visit func(string) error
	visit = func(n string) error {
		switch visited[n] {
		case 2:
			return nil
		case 1:
			return errors.Errorf("cyclic pkg-config variable reference involving %q", n)
		}
		visited[n] = 1
		for _, m := range varRefRe.FindAllStringSubmatch(vars[n], -1) {
			ref := m[1]
			if _, ok := vars[ref]; ok {
				if err := visit(ref); err != nil {
					return err
				}
			}
		}
		visited[n] = 2
		order = append(order, n)
		return nil
	}

	for _, n := range names {
		if err := visit(n); err != nil {
			return nil, err
		}
	}
	return order, nil
}
