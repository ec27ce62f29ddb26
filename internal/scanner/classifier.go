// Package scanner discovers source files under the source root and
// classifies each one as a page, fragment, layout or asset.
//
// Files whose name or any directory segment starts with an underscore are
// never pages. Underscore HTML files whose name mentions "layout" are
// layouts; the rest are fragments. Dotfiles and ignored paths are skipped.
package scanner

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/types"
)

var pageExtensions = map[string]bool{
	".html": true,
	".htm":  true,
	".md":   true,
}

// Classifier implements interfaces.Classifier using naming conventions.
type Classifier struct {
	sourceRoot string
	ignore     []string
}

var _ interfaces.Classifier = (*Classifier)(nil)

// NewClassifier creates a classifier for paths under sourceRoot. Ignore
// patterns use filepath.Match syntax against the slash separated relative
// path and the base name; a trailing "/**" ignores a whole directory.
func NewClassifier(sourceRoot string, ignore []string) *Classifier {
	return &Classifier{
		sourceRoot: filepath.Clean(sourceRoot),
		ignore:     ignore,
	}
}

// Classify decides the role of path.
func (c *Classifier) Classify(p string) types.Classification {
	rel := c.rel(p)
	if rel == "" || c.Ignored(rel) {
		return types.Classification{}
	}

	segments := strings.Split(rel, "/")
	base := segments[len(segments)-1]
	ext := strings.ToLower(path.Ext(base))

	underscored := false
	for _, seg := range segments {
		if strings.HasPrefix(seg, ".") {
			return types.Classification{}
		}
		if strings.HasPrefix(seg, "_") {
			underscored = true
		}
	}

	if pageExtensions[ext] {
		if !underscored {
			return types.Classification{IsPage: true}
		}
		if ext == ".md" {
			return types.Classification{}
		}
		if strings.Contains(strings.ToLower(base), "layout") {
			return types.Classification{IsLayout: true}
		}
		return types.Classification{IsFragment: true}
	}

	return types.Classification{IsAsset: true, ShouldCopy: !underscored}
}

// Ignored reports whether the relative path matches an ignore pattern.
func (c *Classifier) Ignored(rel string) bool {
	base := path.Base(rel)
	for _, pattern := range c.ignore {
		pattern = filepath.ToSlash(pattern)
		if dir, ok := strings.CutSuffix(pattern, "/**"); ok {
			if rel == dir || strings.HasPrefix(rel, dir+"/") {
				return true
			}
			continue
		}
		if ok, _ := path.Match(pattern, rel); ok {
			return true
		}
		if ok, _ := path.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func (c *Classifier) rel(p string) string {
	if !filepath.IsAbs(p) {
		return filepath.ToSlash(filepath.Clean(p))
	}
	rel, err := filepath.Rel(c.sourceRoot, p)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return ""
	}
	return filepath.ToSlash(rel)
}
