package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"sync"

	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/registry"
)

var digestPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

// ChangeSet partitions paths by whether their content changed.
type ChangeSet struct {
	Changed   []string
	Unchanged []string
}

// CacheStats describes the persisted hash cache.
type CacheStats struct {
	Entries  int     `json:"entries" yaml:"entries"`
	File     string  `json:"file" yaml:"file"`
	Loaded   bool    `json:"loaded" yaml:"loaded"`
	MemoSize int64   `json:"memo_size" yaml:"memo_size"`
	MemoHits float64 `json:"memo_hit_rate" yaml:"memo_hit_rate"`
}

// RepairReport lists what Repair changed.
type RepairReport struct {
	Removed    []string `json:"removed" yaml:"removed"`
	Recomputed []string `json:"recomputed" yaml:"recomputed"`
}

// HashCache maps file paths to SHA-256 digests and persists them as one
// flat JSON object. A missing or unreadable cache file is treated as empty.
type HashCache struct {
	fs       interfaces.FileSystem
	file     string
	provider *HashProvider
	logger   logging.Logger

	mu      sync.RWMutex
	entries map[string]string
	loaded  bool
}

// NewHashCache creates a cache persisted at file.
func NewHashCache(fsys interfaces.FileSystem, file string, logger logging.Logger) *HashCache {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &HashCache{
		fs:       fsys,
		file:     file,
		provider: NewHashProvider(fsys, nil),
		logger:   logger.WithComponent("hash_cache"),
		entries:  make(map[string]string),
	}
}

// Load reads the snapshot once; later calls are no-ops until Clear.
func (c *HashCache) Load() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loaded {
		return
	}
	c.loaded = true
	c.entries = make(map[string]string)

	data, err := c.fs.ReadFile(c.file)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn(context.Background(), err, "hash cache unreadable, starting empty", "file", c.file)
		}
		return
	}

	var entries map[string]string
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn(context.Background(), err, "hash cache corrupt, starting empty", "file", c.file)
		return
	}
	for k, v := range entries {
		c.entries[registry.Key(k)] = v
	}
}

// HasFileChanged reports whether path's content differs from the snapshot.
// Unknown and unreadable files count as changed.
func (c *HashCache) HasFileChanged(path string) bool {
	c.Load()

	digest, err := c.provider.FileDigest(path)
	if err != nil {
		return true
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	stored, ok := c.entries[registry.Key(path)]
	return !ok || stored != digest
}

// CheckMultipleFiles partitions paths into changed and unchanged, keeping
// input order within each group.
func (c *HashCache) CheckMultipleFiles(paths []string) ChangeSet {
	var cs ChangeSet
	for _, p := range paths {
		if c.HasFileChanged(p) {
			cs.Changed = append(cs.Changed, p)
		} else {
			cs.Unchanged = append(cs.Unchanged, p)
		}
	}
	return cs
}

// Update records the current digest of path, reusing the digest of the
// change check that preceded it when the file's metadata is unchanged.
func (c *HashCache) Update(path string) error {
	c.Load()

	digest, err := c.provider.MemoizedDigest(path)
	if err != nil {
		return fmt.Errorf("hash %s: %w", path, err)
	}

	c.mu.Lock()
	c.entries[registry.Key(path)] = digest
	c.mu.Unlock()
	return nil
}

// Remove forgets path.
func (c *HashCache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, registry.Key(path))
}

// Retain drops every entry not in paths.
func (c *HashCache) Retain(paths []string) int {
	keep := make(map[string]bool, len(paths))
	for _, p := range paths {
		keep[registry.Key(p)] = true
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k := range c.entries {
		if !keep[k] {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Digest returns the stored digest of path.
func (c *HashCache) Digest(path string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	d, ok := c.entries[registry.Key(path)]
	return d, ok
}

// Save writes the snapshot. Callers treat failure as non-fatal.
func (c *HashCache) Save() error {
	c.mu.RLock()
	data, err := json.MarshalIndent(c.entries, "", "  ")
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encode hash cache: %w", err)
	}

	if err := c.fs.WriteFile(c.file, data); err != nil {
		return fmt.Errorf("write hash cache %s: %w", c.file, err)
	}
	return nil
}

// Repair removes entries for vanished files and recomputes malformed digests.
func (c *HashCache) Repair() RepairReport {
	c.Load()

	c.mu.RLock()
	paths := make([]string, 0, len(c.entries))
	for p := range c.entries {
		paths = append(paths, p)
	}
	c.mu.RUnlock()
	sort.Strings(paths)

	var report RepairReport
	for _, p := range paths {
		if !c.fs.Exists(p) {
			c.Remove(p)
			report.Removed = append(report.Removed, p)
			continue
		}

		stored, _ := c.Digest(p)
		if digestPattern.MatchString(stored) {
			continue
		}
		if err := c.Update(p); err != nil {
			c.Remove(p)
			report.Removed = append(report.Removed, p)
			continue
		}
		report.Recomputed = append(report.Recomputed, p)
	}
	return report
}

// Clear empties the cache in memory and marks it loaded, so the next build
// sees every file as changed.
func (c *HashCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]string)
	c.loaded = true
	c.provider.Memo().Clear()
}

// Stats describes the cache.
func (c *HashCache) Stats() CacheStats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	memo := c.provider.Memo()
	return CacheStats{
		Entries:  len(c.entries),
		File:     c.file,
		Loaded:   c.loaded,
		MemoSize: memo.GetSize(),
		MemoHits: memo.GetHitRate(),
	}
}
