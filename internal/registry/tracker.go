// Package registry tracks which pages depend on which layouts, components,
// includes and assets, so that a change to one file rebuilds only the
// pages that use it.
package registry

import (
	"path/filepath"
	"sort"
	"sync"

	"github.com/conneroisu/unify/internal/validation"
	"golang.org/x/text/unicode/norm"
)

// Resolver maps a directive value found in from to a source path.
type Resolver func(ref, from, sourceRoot string) (string, error)

// DependencyTracker keeps reverse edges from dependency to dependent pages.
// Each page owns its edges: tracking a page again replaces them.
type DependencyTracker struct {
	resolve Resolver

	mu sync.RWMutex
	// pages maps a page to the files it depends on.
	pages map[string][]string
	// dependents maps a file to the pages that depend on it.
	dependents map[string]map[string]struct{}
	// links holds the direct references of every scanned file.
	links map[string][]string
}

// NewDependencyTracker creates an empty tracker. resolve may be nil, in
// which case directive values resolve like asset paths.
func NewDependencyTracker(resolve Resolver) *DependencyTracker {
	return &DependencyTracker{
		resolve:    resolve,
		pages:      make(map[string][]string),
		dependents: make(map[string]map[string]struct{}),
		links:      make(map[string][]string),
	}
}

// Key normalizes a path for use as a graph key.
func Key(path string) string {
	return norm.NFC.String(filepath.Clean(path))
}

// ScanFile resolves the direct references in content and remembers them
// as path's links. Unresolvable and out-of-root references are dropped.
func (t *DependencyTracker) ScanFile(path, content, sourceRoot string) []string {
	path = Key(path)
	var deps []string
	seen := make(map[string]bool)

	for _, ref := range ScanReferences(content) {
		var target string
		switch ref.Kind {
		case RefLayout, RefComponent:
			if t.resolve != nil {
				resolved, err := t.resolve(ref.Value, path, sourceRoot)
				if err != nil {
					continue
				}
				target = resolved
			} else {
				target = resolveAsset(ref.Value, path, sourceRoot)
			}
		default:
			target = resolveAsset(ref.Value, path, sourceRoot)
		}

		if validation.ValidatePath(target, sourceRoot) != nil {
			continue
		}
		target = Key(target)
		if target == path || seen[target] {
			continue
		}
		seen[target] = true
		deps = append(deps, target)
	}

	t.mu.Lock()
	t.links[path] = deps
	t.mu.Unlock()

	return deps
}

// TrackPageDependencies scans a page, merges in any dependencies already
// known from composition, and replaces the page's edges.
func (t *DependencyTracker) TrackPageDependencies(path, content, sourceRoot string, known ...string) []string {
	deps := t.ScanFile(path, content, sourceRoot)
	deps = append(deps, known...)
	t.Record(path, deps)

	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]string(nil), t.pages[Key(path)]...)
}

// Record replaces the dependencies owned by page.
func (t *DependencyTracker) Record(page string, deps []string) {
	page = Key(page)

	unique := make([]string, 0, len(deps))
	seen := make(map[string]bool, len(deps))
	for _, d := range deps {
		d = Key(d)
		if d == page || seen[d] {
			continue
		}
		seen[d] = true
		unique = append(unique, d)
	}
	sort.Strings(unique)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dropLocked(page)
	t.pages[page] = unique
	for _, d := range unique {
		set, ok := t.dependents[d]
		if !ok {
			set = make(map[string]struct{})
			t.dependents[d] = set
		}
		set[page] = struct{}{}
	}
}

// RemovePage forgets a page and every edge it owns.
func (t *DependencyTracker) RemovePage(page string) {
	page = Key(page)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.dropLocked(page)
	delete(t.links, page)
}

// RemoveFile forgets a non-page file's own links. Pages that depend on it
// keep their edges so they rebuild if it comes back.
func (t *DependencyTracker) RemoveFile(path string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.links, Key(path))
}

func (t *DependencyTracker) dropLocked(page string) {
	for _, d := range t.pages[page] {
		if set, ok := t.dependents[d]; ok {
			delete(set, page)
			if len(set) == 0 {
				delete(t.dependents, d)
			}
		}
	}
	delete(t.pages, page)
}

// GetDependentPages returns the pages known to depend on path, sorted.
func (t *DependencyTracker) GetDependentPages(path string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	set := t.dependents[Key(path)]
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Dependencies returns the files page depends on.
func (t *DependencyTracker) Dependencies(page string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	return append([]string(nil), t.pages[Key(page)]...)
}

// Pages returns every tracked page, sorted.
func (t *DependencyTracker) Pages() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]string, 0, len(t.pages))
	for p := range t.pages {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Graph returns a copy of the page to dependency mapping.
func (t *DependencyTracker) Graph() map[string][]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	graph := make(map[string][]string, len(t.pages))
	for p, deps := range t.pages {
		graph[p] = append([]string(nil), deps...)
	}
	return graph
}

// Clear drops all edges.
func (t *DependencyTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pages = make(map[string][]string)
	t.dependents = make(map[string]map[string]struct{})
	t.links = make(map[string][]string)
}

// Closure returns every file reachable from path through scanned links,
// sorted. path itself is not included.
func (t *DependencyTracker) Closure(path string) []string {
	start := Key(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	seen := map[string]bool{start: true}
	queue := append([]string(nil), t.links[start]...)
	var out []string
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		if seen[next] {
			continue
		}
		seen[next] = true
		out = append(out, next)
		queue = append(queue, t.links[next]...)
	}
	sort.Strings(out)
	return out
}

// Referenced reports whether any tracked page or scanned file refers to path.
func (t *DependencyTracker) Referenced(path string) bool {
	path = Key(path)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if len(t.dependents[path]) > 0 {
		return true
	}
	for _, deps := range t.links {
		for _, d := range deps {
			if d == path {
				return true
			}
		}
	}
	return false
}
