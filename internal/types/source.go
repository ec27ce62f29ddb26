// Package types provides common type definitions shared by the unify
// packages. It exists to avoid circular dependencies between them.
package types

import "time"

// FileRole classifies a source file for the build.
type FileRole string

const (
	RolePage     FileRole = "page"
	RoleFragment FileRole = "fragment"
	RoleLayout   FileRole = "layout"
	RoleAsset    FileRole = "asset"
	RoleIgnored  FileRole = "ignored"
)

// Classification is the result of classifying one path.
type Classification struct {
	IsPage     bool
	IsFragment bool
	IsLayout   bool
	IsAsset    bool
	ShouldCopy bool
}

// Role collapses a classification into a single role.
func (c Classification) Role() FileRole {
	switch {
	case c.IsPage:
		return RolePage
	case c.IsLayout:
		return RoleLayout
	case c.IsFragment:
		return RoleFragment
	case c.IsAsset && c.ShouldCopy:
		return RoleAsset
	default:
		return RoleIgnored
	}
}

// IsComposable reports whether the file is pulled in by a directive.
func (c Classification) IsComposable() bool {
	return c.IsLayout || c.IsFragment
}

// SourceFile is one file discovered under the source root.
type SourceFile struct {
	// Path is the absolute, cleaned path of the file.
	Path string
	// RelPath is Path relative to the source root, slash separated.
	RelPath string
	Role    FileRole
	// Content is filled lazily; discovery leaves it nil.
	Content []byte
	Size    int64
	ModTime time.Time
}

// IsPage reports whether the file is a page.
func (f SourceFile) IsPage() bool { return f.Role == RolePage }
