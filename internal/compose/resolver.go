package compose

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/conneroisu/unify/internal/validation"
)

// IncludesDir is searched for bare component names that do not exist
// beside the referencing file.
const IncludesDir = "_includes"

// Resolver turns directive values into absolute source paths.
type Resolver struct {
	exists func(string) bool
}

// NewResolver creates a resolver; exists reports whether a candidate path
// is available.
func NewResolver(exists func(string) bool) *Resolver {
	return &Resolver{exists: exists}
}

// Resolve maps ref, found in the file from, to a path under sourceRoot.
// "/x" resolves from the source root, anything else from the referencing
// file's directory. ".html" is appended when ref has no extension.
func (r *Resolver) Resolve(ref, from, sourceRoot string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("empty directive in %s", from)
	}
	if path.Ext(ref) == "" {
		ref += ".html"
	}

	var candidate string
	if strings.HasPrefix(ref, "/") {
		candidate = filepath.Join(sourceRoot, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
	} else {
		candidate = filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
		if !strings.Contains(ref, "/") && r.exists != nil && !r.exists(candidate) {
			shared := filepath.Join(sourceRoot, IncludesDir, ref)
			if r.exists(shared) {
				candidate = shared
			}
		}
	}

	if err := validation.ValidatePath(candidate, sourceRoot); err != nil {
		return "", err
	}
	return candidate, nil
}
