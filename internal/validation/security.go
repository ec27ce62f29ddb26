// Package validation provides path validation that keeps every file the
// build touches inside the source root, plus a pattern scanner that flags
// unsafe markup.
package validation

import (
	"fmt"
	"path/filepath"
	"strings"

	uerrors "github.com/conneroisu/unify/internal/errors"
)

// ValidatePath rejects empty paths, NUL bytes and anything that resolves
// outside sourceRoot. Relative paths are resolved against sourceRoot.
func ValidatePath(path, sourceRoot string) error {
	if path == "" {
		return uerrors.NewValidationError(uerrors.ErrCodeInvalidPath, "path cannot be empty")
	}
	if strings.ContainsRune(path, 0) {
		return uerrors.ErrPathTraversal(path).WithContext("reason", "null byte")
	}
	if sourceRoot == "" {
		return nil
	}

	root, err := filepath.Abs(sourceRoot)
	if err != nil {
		return uerrors.NewIOError(uerrors.ErrCodeInvalidPath, "resolving source root", err)
	}

	candidate := path
	if !filepath.IsAbs(candidate) {
		candidate = filepath.Join(root, candidate)
	}
	candidate = filepath.Clean(candidate)

	if !IsWithinRoot(candidate, root) {
		return uerrors.ErrPathTraversal(path).WithContext("source_root", root)
	}

	return nil
}

// IsWithinRoot reports whether the cleaned absolute path lies at or below root.
func IsWithinRoot(path, root string) bool {
	rel, err := filepath.Rel(filepath.Clean(root), filepath.Clean(path))
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}

	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// MustBeRelative returns path relative to root, failing when it escapes root.
func MustBeRelative(path, root string) (string, error) {
	if err := ValidatePath(path, root); err != nil {
		return "", err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return "", fmt.Errorf("relativize %s: %w", path, err)
	}

	return filepath.ToSlash(rel), nil
}
