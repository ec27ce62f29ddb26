// Package watcher watches the source tree, coalesces bursts of filesystem
// events into batches and hands each batch to a handler together with a
// cancellation token. A new batch cancels the token of the previous one.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/unify/internal/logging"
	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a batch is emitted.
const DefaultDebounce = 100 * time.Millisecond

// FileWatcher watches for file changes with debouncing
type FileWatcher struct {
	watcher   *fsnotify.Watcher
	debouncer *Debouncer
	filters   []FileFilter
	logger    logging.Logger
	mutex     sync.RWMutex
}

// ChangeEvent represents a file change event
type ChangeEvent struct {
	Type       EventType
	Path       string
	IsAddition bool
	IsDeletion bool
	// RequiresCleanup is set when the mirrored output must be removed.
	RequiresCleanup bool
	Timestamp       time.Time
}

// EventType represents the type of file change
type EventType int

const (
	EventTypeCreated EventType = iota
	EventTypeModified
	EventTypeDeleted
	EventTypeRenamed
)

// String returns the string representation of the EventType
func (e EventType) String() string {
	switch e {
	case EventTypeCreated:
		return "created"
	case EventTypeModified:
		return "modified"
	case EventTypeDeleted:
		return "deleted"
	case EventTypeRenamed:
		return "renamed"
	default:
		return "unknown"
	}
}

// FileFilter determines if a file should be watched
type FileFilter func(path string) bool

// NewFileWatcher creates a new file watcher
func NewFileWatcher(debounceDelay time.Duration, logger logging.Logger) (*FileWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	logger = logger.WithComponent("watcher")

	return &FileWatcher{
		watcher:   watcher,
		debouncer: NewDebouncer(debounceDelay, logger),
		filters:   make([]FileFilter, 0),
		logger:    logger,
	}, nil
}

// AddFilter adds a file filter
func (fw *FileWatcher) AddFilter(filter FileFilter) {
	fw.mutex.Lock()
	defer fw.mutex.Unlock()
	fw.filters = append(fw.filters, filter)
}

// OnBatch registers the batch handler. Only one handler is kept.
func (fw *FileWatcher) OnBatch(handler BatchHandler) {
	fw.debouncer.SetHandler(handler)
}

// AddRecursive adds a directory and all subdirectories to watch. Hidden
// directories and directories rejected by any filter are not watched.
func (fw *FileWatcher) AddRecursive(root string, filters ...FileFilter) error {
	cleanRoot, err := validateRoot(root)
	if err != nil {
		return fmt.Errorf("invalid root path: %w", err)
	}

	return filepath.WalkDir(cleanRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != cleanRoot {
			if strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			for _, keep := range filters {
				if !keep(path) {
					return filepath.SkipDir
				}
			}
		}
		return fw.watcher.Add(path)
	})
}

func validateRoot(path string) (string, error) {
	absPath, err := filepath.Abs(filepath.Clean(path))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return "", err
	}
	if !info.IsDir() {
		return "", fmt.Errorf("%s is not a directory", path)
	}
	return absPath, nil
}

// Start starts the file watcher. Batch tokens derive from ctx.
func (fw *FileWatcher) Start(ctx context.Context) error {
	fw.debouncer.Start(ctx)
	go fw.watchLoop(ctx)
	return nil
}

// Stop cancels any active batch, drops pending changes and closes all
// watch handles.
func (fw *FileWatcher) Stop() error {
	fw.debouncer.Stop()
	return fw.watcher.Close()
}

// Inject feeds an event through the filters into the debouncer, as if it
// came from the filesystem.
func (fw *FileWatcher) Inject(event ChangeEvent) {
	if fw.accept(event.Path) {
		fw.debouncer.Add(event)
	}
}

func (fw *FileWatcher) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			fw.handleFsnotifyEvent(ctx, event)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Error(ctx, err, "file watcher error")
		}
	}
}

func (fw *FileWatcher) handleFsnotifyEvent(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod {
		return
	}

	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
			if !fw.accept(event.Name) {
				return
			}
			if err := fw.AddRecursive(event.Name, fw.accept); err != nil {
				fw.logger.Warn(ctx, err, "watching new directory failed", "path", event.Name)
			}
			return
		}
	}

	if !fw.accept(event.Name) {
		return
	}

	change, ok := Classify(event, pathExists)
	if !ok {
		return
	}
	fw.debouncer.Add(change)
}

func (fw *FileWatcher) accept(path string) bool {
	fw.mutex.RLock()
	filters := fw.filters
	fw.mutex.RUnlock()

	for _, filter := range filters {
		if !filter(path) {
			return false
		}
	}
	return true
}

func pathExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Classify converts a raw event. A rename is an addition when the path
// still exists and a deletion otherwise.
func Classify(event fsnotify.Event, exists func(string) bool) (ChangeEvent, bool) {
	change := ChangeEvent{Path: filepath.Clean(event.Name), Timestamp: time.Now()}

	switch {
	case event.Op.Has(fsnotify.Create):
		change.Type = EventTypeCreated
		change.IsAddition = true
	case event.Op.Has(fsnotify.Write):
		change.Type = EventTypeModified
	case event.Op.Has(fsnotify.Remove):
		change.Type = EventTypeDeleted
		change.IsDeletion = true
	case event.Op.Has(fsnotify.Rename):
		change.Type = EventTypeRenamed
		if exists(event.Name) {
			change.IsAddition = true
		} else {
			change.IsDeletion = true
		}
	default:
		return ChangeEvent{}, false
	}

	change.RequiresCleanup = change.IsDeletion
	return change, true
}

// Common file filters

// NoHiddenFilter rejects dot files and anything under a dot directory.
func NoHiddenFilter(path string) bool {
	for _, seg := range strings.Split(filepath.ToSlash(path), "/") {
		if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." {
			return false
		}
	}
	return true
}

// NoEditorTempFilter rejects editor swap and backup files.
func NoEditorTempFilter(path string) bool {
	base := filepath.Base(path)
	if strings.HasSuffix(base, "~") || strings.HasPrefix(base, "#") {
		return false
	}
	switch filepath.Ext(base) {
	case ".swp", ".swx", ".tmp":
		return false
	}
	return true
}

// ExcludeDirFilter rejects paths at or under dir.
func ExcludeDirFilter(dir string) FileFilter {
	dir = filepath.Clean(dir)
	return func(path string) bool {
		path = filepath.Clean(path)
		return path != dir && !strings.HasPrefix(path, dir+string(filepath.Separator))
	}
}

// RelativeFilter applies filter to paths made relative to root, so the
// directories above root do not influence it.
func RelativeFilter(root string, filter FileFilter) FileFilter {
	root = filepath.Clean(root)
	return func(path string) bool {
		rel, err := filepath.Rel(root, filepath.Clean(path))
		if err != nil {
			return filter(path)
		}
		return filter(rel)
	}
}
