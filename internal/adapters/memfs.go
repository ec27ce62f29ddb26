package adapters

import (
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/unify/internal/interfaces"
)

// MemFileSystem is an in-memory interfaces.FileSystem. Directories are
// implied by the files beneath them.
type MemFileSystem struct {
	mu    sync.RWMutex
	files map[string]memFile
	now   func() time.Time
	last  time.Time
	// Reads counts ReadFile calls per path.
	Reads map[string]int
	// Writes counts WriteFile calls per path.
	Writes map[string]int
}

type memFile struct {
	data    []byte
	modTime time.Time
}

var _ interfaces.FileSystem = (*MemFileSystem)(nil)

// NewMemFileSystem creates an empty in-memory filesystem.
func NewMemFileSystem() *MemFileSystem {
	return &MemFileSystem{
		files:  make(map[string]memFile),
		now:    time.Now,
		Reads:  make(map[string]int),
		Writes: make(map[string]int),
	}
}

// ReadFile returns a copy of the stored file.
func (m *MemFileSystem) ReadFile(path string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	m.Reads[path]++
	f, ok := m.files[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}

	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out, nil
}

// WriteFile stores a copy of data.
func (m *MemFileSystem) WriteFile(path string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf := make([]byte, len(data))
	copy(buf, data)
	// Modification times strictly increase so rewrites are always visible.
	mod := m.now()
	if !mod.After(m.last) {
		mod = m.last.Add(time.Nanosecond)
	}
	m.last = mod
	m.Writes[filepath.Clean(path)]++
	m.files[filepath.Clean(path)] = memFile{data: buf, modTime: mod}
	return nil
}

// CopyFile duplicates src at dst.
func (m *MemFileSystem) CopyFile(src, dst string) error {
	data, err := m.ReadFile(src)
	if err != nil {
		return err
	}
	return m.WriteFile(dst, data)
}

// Stat reports files and implied directories.
func (m *MemFileSystem) Stat(path string) (fs.FileInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	path = filepath.Clean(path)
	if f, ok := m.files[path]; ok {
		return memInfo{name: filepath.Base(path), size: int64(len(f.data)), modTime: f.modTime}, nil
	}
	if m.isDirLocked(path) {
		return memInfo{name: filepath.Base(path), dir: true}, nil
	}

	return nil, &fs.PathError{Op: "stat", Path: path, Err: fs.ErrNotExist}
}

// Remove deletes a file.
func (m *MemFileSystem) Remove(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	path = filepath.Clean(path)
	if _, ok := m.files[path]; !ok {
		return &fs.PathError{Op: "remove", Path: path, Err: fs.ErrNotExist}
	}
	delete(m.files, path)
	return nil
}

// Exists reports whether a file or implied directory exists.
func (m *MemFileSystem) Exists(path string) bool {
	_, err := m.Stat(path)
	return err == nil
}

// Walk visits every file under root in lexical order. Directories are not
// reported.
func (m *MemFileSystem) Walk(root string, fn fs.WalkDirFunc) error {
	root = filepath.Clean(root)
	prefix := root + string(filepath.Separator)

	m.mu.RLock()
	paths := make([]string, 0, len(m.files))
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	m.mu.RUnlock()
	sort.Strings(paths)

	for _, p := range paths {
		info, err := m.Stat(p)
		if err != nil {
			continue
		}
		if err := fn(p, fs.FileInfoToDirEntry(info), nil); err != nil {
			if err == fs.SkipDir || err == fs.SkipAll {
				return nil
			}
			return err
		}
	}
	return nil
}

// Files returns the sorted list of stored paths.
func (m *MemFileSystem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]string, 0, len(m.files))
	for p := range m.files {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func (m *MemFileSystem) isDirLocked(path string) bool {
	prefix := path + string(filepath.Separator)
	for p := range m.files {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

type memInfo struct {
	name    string
	size    int64
	modTime time.Time
	dir     bool
}

func (i memInfo) Name() string       { return i.name }
func (i memInfo) Size() int64        { return i.size }
func (i memInfo) ModTime() time.Time { return i.modTime }
func (i memInfo) IsDir() bool        { return i.dir }
func (i memInfo) Sys() interface{}   { return nil }

func (i memInfo) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0o755
	}
	return 0o644
}

// ReadCount returns how many times path was read.
func (m *MemFileSystem) ReadCount(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.Reads[filepath.Clean(path)]
}

// WriteCount returns the total number of WriteFile calls.
func (m *MemFileSystem) WriteCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.Writes {
		n += c
	}
	return n
}
