// Package model holds the core data types shared across the resolver,
// cache, and orchestrator: package names, dependency specs, option sets,
// and the small value types that flow between them. Keeping these in one
// leaf package (rather than scattering them across the packages that
// consume them) avoids import cycles between the resolver and the dep
// services, mirroring how gps centralizes ProjectRoot/ProjectIdentifier
// in its own types.go.
package model

import "strings"

// PackageName is either "name" or "name:mod", where ":mod" denotes a
// sub-module of a meta-package.
type PackageName string

// PkgName strips the module suffix, if any.
func (n PackageName) PkgName() PackageName {
	if i := strings.IndexByte(string(n), ':'); i >= 0 {
		return n[:i]
	}
	return n
}

// Module returns the sub-module name, or "" if n has none.
func (n PackageName) Module() string {
	if i := strings.IndexByte(string(n), ':'); i >= 0 {
		return string(n)[i+1:]
	}
	return ""
}

// IsModule reports whether n names a sub-module of a meta-package.
func (n PackageName) IsModule() bool {
	return strings.IndexByte(string(n), ':') >= 0
}

// String returns the name verbatim.
func (n PackageName) String() string { return string(n) }
