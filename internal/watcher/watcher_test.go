package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventTypeString(t *testing.T) {
	testCases := []struct {
		eventType EventType
		expected  string
	}{
		{EventTypeCreated, "created"},
		{EventTypeModified, "modified"},
		{EventTypeDeleted, "deleted"},
		{EventTypeRenamed, "renamed"},
		{EventType(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.eventType.String())
		})
	}
}

func TestClassify(t *testing.T) {
	exists := func(string) bool { return true }
	gone := func(string) bool { return false }

	created, ok := Classify(fsnotify.Event{Name: "src/a.html", Op: fsnotify.Create}, gone)
	require.True(t, ok)
	assert.True(t, created.IsAddition)
	assert.False(t, created.RequiresCleanup)

	written, ok := Classify(fsnotify.Event{Name: "src/a.html", Op: fsnotify.Write}, gone)
	require.True(t, ok)
	assert.Equal(t, EventTypeModified, written.Type)
	assert.False(t, written.IsAddition)
	assert.False(t, written.IsDeletion)

	removed, ok := Classify(fsnotify.Event{Name: "src/a.html", Op: fsnotify.Remove}, exists)
	require.True(t, ok)
	assert.True(t, removed.IsDeletion)
	assert.True(t, removed.RequiresCleanup)

	renamedIn, ok := Classify(fsnotify.Event{Name: "src/b.html", Op: fsnotify.Rename}, exists)
	require.True(t, ok)
	assert.True(t, renamedIn.IsAddition)

	renamedOut, ok := Classify(fsnotify.Event{Name: "src/b.html", Op: fsnotify.Rename}, gone)
	require.True(t, ok)
	assert.True(t, renamedOut.IsDeletion)

	_, ok = Classify(fsnotify.Event{Name: "src/b.html", Op: fsnotify.Chmod}, exists)
	assert.False(t, ok)
}

func TestFilters(t *testing.T) {
	assert.True(t, NoHiddenFilter("src/pages/index.html"))
	assert.False(t, NoHiddenFilter("src/.git/HEAD"))
	assert.False(t, NoHiddenFilter("src/.DS_Store"))

	assert.False(t, NoEditorTempFilter("src/index.html~"))
	assert.False(t, NoEditorTempFilter("src/.index.html.swp"))
	assert.False(t, NoEditorTempFilter("src/#index.html#"))
	assert.True(t, NoEditorTempFilter("src/index.html"))

	out := ExcludeDirFilter(filepath.Join("site", "dist"))
	assert.False(t, out(filepath.Join("site", "dist")))
	assert.False(t, out(filepath.Join("site", "dist", "index.html")))
	assert.True(t, out(filepath.Join("site", "distribution", "x.html")))
	assert.True(t, out(filepath.Join("site", "src", "index.html")))

	rel := RelativeFilter(filepath.Join("/home", ".sites", "src"), NoHiddenFilter)
	assert.True(t, rel(filepath.Join("/home", ".sites", "src", "index.html")))
	assert.False(t, rel(filepath.Join("/home", ".sites", "src", ".cache", "x")))
}

type batchRecorder struct {
	mu      sync.Mutex
	batches []Batch
	ctxs    []context.Context
	done    chan struct{}
}

func newBatchRecorder() *batchRecorder {
	return &batchRecorder{done: make(chan struct{}, 16)}
}

func (r *batchRecorder) handle(ctx context.Context, b Batch) error {
	r.mu.Lock()
	r.batches = append(r.batches, b)
	r.ctxs = append(r.ctxs, ctx)
	r.mu.Unlock()
	r.done <- struct{}{}
	return nil
}

func (r *batchRecorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for batch")
	}
}

func (r *batchRecorder) snapshot() []Batch {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Batch(nil), r.batches...)
}

func TestDebouncerCoalescesRapidEdits(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	rec := newBatchRecorder()
	d.SetHandler(rec.handle)
	d.Start(context.Background())
	defer d.Stop()

	for i := 0; i < 25; i++ {
		d.Add(ChangeEvent{Path: "src/index.html", Type: EventTypeModified})
	}
	rec.wait(t)

	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Len(t, batches[0].Events, 1)
	assert.NotEmpty(t, batches[0].ID)
	assert.Equal(t, 0, d.Pending())
}

func TestDebouncerKeepsDiscoveryOrder(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	rec := newBatchRecorder()
	d.SetHandler(rec.handle)
	d.Start(context.Background())
	defer d.Stop()

	d.Add(ChangeEvent{Path: "c.html", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "a.html", Type: EventTypeModified})
	d.Add(ChangeEvent{Path: "c.html", Type: EventTypeDeleted, IsDeletion: true, RequiresCleanup: true})
	d.Add(ChangeEvent{Path: "b.html", Type: EventTypeModified})
	rec.wait(t)

	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"c.html", "a.html", "b.html"}, batches[0].Paths())
	assert.True(t, batches[0].Events[0].IsDeletion, "latest event for a path wins")
}

func TestDebouncerAdditionSurvivesWrite(t *testing.T) {
	d := NewDebouncer(20*time.Millisecond, nil)
	rec := newBatchRecorder()
	d.SetHandler(rec.handle)
	d.Start(context.Background())
	defer d.Stop()

	d.Add(ChangeEvent{Path: "new.html", Type: EventTypeCreated, IsAddition: true})
	d.Add(ChangeEvent{Path: "new.html", Type: EventTypeModified})
	rec.wait(t)

	ev := rec.snapshot()[0].Events[0]
	assert.True(t, ev.IsAddition)
	assert.Equal(t, EventTypeCreated, ev.Type)
}

func TestNewBatchCancelsPrevious(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)

	started := make(chan context.Context, 2)
	release := make(chan struct{})
	d.SetHandler(func(ctx context.Context, b Batch) error {
		started <- ctx
		if b.Events[0].Path == "first.html" {
			<-release
		}
		return nil
	})
	d.Start(context.Background())
	defer d.Stop()

	d.Add(ChangeEvent{Path: "first.html"})
	first := <-started

	d.Add(ChangeEvent{Path: "second.html"})
	second := <-started

	select {
	case <-first.Done():
	case <-time.After(time.Second):
		t.Fatal("first batch token was not cancelled")
	}
	assert.NoError(t, second.Err())
	close(release)
}

func TestStopCancelsActiveBatch(t *testing.T) {
	d := NewDebouncer(10*time.Millisecond, nil)

	started := make(chan context.Context, 1)
	d.SetHandler(func(ctx context.Context, _ Batch) error {
		started <- ctx
		<-ctx.Done()
		return ctx.Err()
	})
	d.Start(context.Background())

	d.Add(ChangeEvent{Path: "slow.html"})
	ctx := <-started
	d.Stop()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("stop did not cancel the active batch")
	}

	d.Add(ChangeEvent{Path: "ignored.html"})
	assert.Equal(t, 0, d.Pending())
}

func TestStopDropsPending(t *testing.T) {
	d := NewDebouncer(time.Hour, nil)
	d.SetHandler(func(context.Context, Batch) error {
		t.Error("handler must not run")
		return nil
	})
	d.Start(context.Background())
	d.Add(ChangeEvent{Path: "x.html"})
	assert.Equal(t, 1, d.Pending())
	d.Stop()
	assert.Equal(t, 0, d.Pending())
}

func TestFileWatcherInjectAppliesFilters(t *testing.T) {
	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	rec := newBatchRecorder()
	fw.OnBatch(rec.handle)
	fw.AddFilter(NoHiddenFilter)
	require.NoError(t, fw.Start(context.Background()))

	fw.Inject(ChangeEvent{Path: ".git/index"})
	fw.Inject(ChangeEvent{Path: "src/index.html"})
	rec.wait(t)

	batches := rec.snapshot()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"src/index.html"}, batches[0].Paths())
}

func TestFileWatcherAddRecursive(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "a", "b"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))

	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	require.NoError(t, fw.AddRecursive(root, ExcludeDirFilter(filepath.Join(root, "dist"))))

	watched := fw.watcher.WatchList()
	assert.Contains(t, watched, filepath.Join(root, "a", "b"))
	assert.NotContains(t, watched, filepath.Join(root, ".git"))
	assert.NotContains(t, watched, filepath.Join(root, "dist"))
}

func TestFileWatcherAddRecursiveRejectsFile(t *testing.T) {
	file := filepath.Join(t.TempDir(), "page.html")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	fw, err := NewFileWatcher(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	assert.Error(t, fw.AddRecursive(file))
	assert.Error(t, fw.AddRecursive(filepath.Join(file, "missing")))
}

func TestFileWatcherDetectsWrites(t *testing.T) {
	root := t.TempDir()
	page := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(page, []byte("<p>v1</p>"), 0o644))

	fw, err := NewFileWatcher(30*time.Millisecond, nil)
	require.NoError(t, err)
	defer fw.Stop()

	rec := newBatchRecorder()
	fw.OnBatch(rec.handle)
	require.NoError(t, fw.AddRecursive(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, fw.Start(ctx))

	for i := 0; i < 5; i++ {
		require.NoError(t, os.WriteFile(page, []byte(fmt.Sprintf("<p>v%d</p>", i+2)), 0o644))
	}
	rec.wait(t)

	batches := rec.snapshot()
	require.NotEmpty(t, batches)
	assert.Equal(t, []string{page}, batches[0].Paths())
}
