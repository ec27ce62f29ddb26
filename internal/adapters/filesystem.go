// Package adapters provides concrete implementations of the collaborator
// interfaces: the real operating-system filesystem and an in-memory one.
package adapters

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/conneroisu/unify/internal/interfaces"
)

// OSFileSystem implements interfaces.FileSystem on the local disk.
type OSFileSystem struct {
	dirMode  os.FileMode
	fileMode os.FileMode
}

var _ interfaces.FileSystem = (*OSFileSystem)(nil)

// NewOSFileSystem creates a filesystem adapter with conventional modes.
func NewOSFileSystem() *OSFileSystem {
	return &OSFileSystem{dirMode: 0o755, fileMode: 0o644}
}

// ReadFile reads a whole file.
func (o *OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(filepath.Clean(path))
}

// WriteFile writes data, creating parent directories first.
func (o *OSFileSystem) WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), o.dirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}

	return os.WriteFile(path, data, o.fileMode)
}

// CopyFile copies src to dst byte for byte.
func (o *OSFileSystem) CopyFile(src, dst string) error {
	in, err := os.Open(filepath.Clean(src))
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.MkdirAll(filepath.Dir(dst), o.dirMode); err != nil {
		return fmt.Errorf("create directory for %s: %w", dst, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, o.fileMode)
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("copy %s to %s: %w", src, dst, err)
	}

	return out.Close()
}

// Stat returns file information.
func (o *OSFileSystem) Stat(path string) (fs.FileInfo, error) {
	return os.Stat(path)
}

// Remove deletes a file or an empty directory.
func (o *OSFileSystem) Remove(path string) error {
	return os.Remove(path)
}

// Exists reports whether path can be stat'ed.
func (o *OSFileSystem) Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Walk walks the tree rooted at root.
func (o *OSFileSystem) Walk(root string, fn fs.WalkDirFunc) error {
	return filepath.WalkDir(root, fn)
}
