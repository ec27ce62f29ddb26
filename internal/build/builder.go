package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/conneroisu/unify/internal/compose"
	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/conneroisu/unify/internal/includes"
	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/markdown"
	"github.com/conneroisu/unify/internal/registry"
	"github.com/conneroisu/unify/internal/scanner"
	"github.com/conneroisu/unify/internal/types"
	"github.com/conneroisu/unify/internal/validation"
	"github.com/conneroisu/unify/internal/watcher"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/conneroisu/unify/internal/build"

// Options configures a Builder.
type Options struct {
	SourceRoot     string
	OutputDir      string
	CacheFile      string
	PrettyURLs     bool
	Minify         bool
	AreaPrefix     string
	MaxDepth       int
	Ignore         []string
	FailOnSecurity bool

	// Registerer receives the build collectors. A private registry is used
	// when nil.
	Registerer prometheus.Registerer
	// Tracer defaults to the global OpenTelemetry provider.
	Tracer trace.Tracer
}

// BuildResult summarizes an initial build.
type BuildResult struct {
	ID             string
	Pages          int
	Assets         int
	Skipped        int
	Failed         int
	Errors         []error
	FileErrors     []uerrors.FileError
	Duration       time.Duration
	ShortCircuited bool
	Outputs        []string
}

// IncrementalResult summarizes an incremental build or one watcher batch.
type IncrementalResult struct {
	RebuiltFiles    int
	CopiedAssets    int
	RemovedOutputs  int
	Skipped         int
	AffectedOutputs []string
	Errors          []error
}

// Success reports whether every file built.
func (r *IncrementalResult) Success() bool { return len(r.Errors) == 0 }

func (r *IncrementalResult) merge(o *IncrementalResult) {
	r.RebuiltFiles += o.RebuiltFiles
	r.CopiedAssets += o.CopiedAssets
	r.RemovedOutputs += o.RemovedOutputs
	r.Skipped += o.Skipped
	r.AffectedOutputs = append(r.AffectedOutputs, o.AffectedOutputs...)
	r.Errors = append(r.Errors, o.Errors...)
}

// BuildCallback is called after every build or batch that wrote output.
type BuildCallback func(result IncrementalResult)

// Builder performs initial and incremental builds. Builds are serialized.
type Builder struct {
	fs         interfaces.FileSystem
	logger     logging.Logger
	opts       Options
	classifier *scanner.Classifier
	scanner    *scanner.Scanner
	engine     *compose.Engine
	tracker    *registry.DependencyTracker
	cache      *HashCache
	markdown   *markdown.Renderer
	metrics    *BuildMetrics
	prom       *promMetrics
	tracer     trace.Tracer

	mu        sync.Mutex
	layoutMap map[string]string
	callbacks []BuildCallback
}

// NewBuilder wires a builder over fsys.
func NewBuilder(fsys interfaces.FileSystem, logger logging.Logger, opts Options) *Builder {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	opts.SourceRoot = absPath(opts.SourceRoot)
	opts.OutputDir = absPath(opts.OutputDir)
	if opts.CacheFile == "" {
		opts.CacheFile = filepath.Join(filepath.Dir(opts.SourceRoot), ".unify-cache", "hashes.json")
	}

	ignore := append([]string(nil), opts.Ignore...)
	if rel, err := filepath.Rel(opts.SourceRoot, opts.OutputDir); err == nil && rel != "." && !filepath.IsAbs(rel) && rel[0] != '.' {
		ignore = append(ignore, filepath.ToSlash(rel)+"/**")
	}

	classifier := scanner.NewClassifier(opts.SourceRoot, ignore)
	engine := compose.NewEngine(fsys, logger, compose.Config{
		AreaPrefix:     opts.AreaPrefix,
		MaxDepth:       opts.MaxDepth,
		Includes:       includes.NewProcessor(fsys, opts.SourceRoot),
		Scanner:        validation.Scanner{},
		FailOnSecurity: opts.FailOnSecurity,
	})
	resolver := compose.NewResolver(fsys.Exists)

	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}

	b := &Builder{
		fs:         fsys,
		logger:     logger.WithComponent("builder"),
		opts:       opts,
		classifier: classifier,
		scanner:    scanner.NewScanner(fsys, classifier, opts.SourceRoot, logger),
		engine:     engine,
		tracker:    registry.NewDependencyTracker(resolver.Resolve),
		cache:      NewHashCache(fsys, opts.CacheFile, logger),
		markdown:   markdown.NewRenderer(opts.AreaPrefix),
		metrics:    NewBuildMetrics(),
		tracer:     tracer,
		layoutMap:  make(map[string]string),
	}
	b.prom = newPromMetrics(opts.Registerer, func() float64 {
		return float64(engine.CacheStats().Size)
	})
	return b
}

// Engine returns the composition engine.
func (b *Builder) Engine() *compose.Engine { return b.engine }

// Tracker returns the dependency tracker.
func (b *Builder) Tracker() *registry.DependencyTracker { return b.tracker }

// Cache returns the build cache.
func (b *Builder) Cache() *HashCache { return b.cache }

// Metrics returns the in-process build metrics.
func (b *Builder) Metrics() *BuildMetrics { return b.metrics }

// AddCallback registers a callback run after output changes.
func (b *Builder) AddCallback(callback BuildCallback) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.callbacks = append(b.callbacks, callback)
}

// InitialBuild builds the whole site. When every discovered file matches
// the build cache and the output directory exists, nothing is written and
// only the dependency graph is rebuilt.
func (b *Builder) InitialBuild(ctx context.Context) (*BuildResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	start := time.Now()
	op := logging.StartOperation(b.logger, "initial_build")
	result := &BuildResult{ID: uuid.NewString()}

	b.cache.Load()
	inv, err := b.discover(ctx)
	if err != nil {
		op.EndWithError(ctx, err)
		return nil, err
	}

	all := inv.All()
	paths := make([]string, len(all))
	for i, f := range all {
		paths[i] = f.Path
	}

	changes := b.cache.CheckMultipleFiles(paths)
	b.prom.hashChecks.WithLabelValues("changed").Add(float64(len(changes.Changed)))
	b.prom.hashChecks.WithLabelValues("unchanged").Add(float64(len(changes.Unchanged)))

	if len(changes.Changed) == 0 && len(paths) > 0 && b.fs.Exists(b.opts.OutputDir) {
		if err := b.indexPages(ctx, inv.Pages); err != nil {
			return nil, err
		}
		result.ShortCircuited = true
		result.Skipped = len(paths)
		result.Duration = time.Since(start)
		b.finishBuild(ctx, result, op)
		return result, nil
	}

	collector := uerrors.NewErrorCollector()
	failed := make(map[string]bool)
	for _, page := range inv.Pages {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out, err := b.buildPage(ctx, page.Path)
		if err != nil {
			result.Failed++
			failed[page.Path] = true
			collector.Add(b.fail(ctx, page.Path, err))
			continue
		}
		result.Pages++
		result.Outputs = append(result.Outputs, out)
	}

	for _, asset := range inv.Assets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !b.classifier.Classify(asset.Path).ShouldCopy {
			result.Skipped++
			continue
		}
		out, err := b.copyAsset(asset.Path)
		if err != nil {
			result.Failed++
			failed[asset.Path] = true
			collector.Add(b.fail(ctx, asset.Path, err))
			continue
		}
		result.Assets++
		result.Outputs = append(result.Outputs, out)
	}

	for _, p := range paths {
		if !failed[p] {
			b.updateHash(ctx, p)
		}
	}
	b.cache.Retain(paths)
	b.saveCache(ctx)
	if collector.HasErrors() {
		result.FileErrors = collector.GetErrors()
		result.Errors = collector.GetAllErrors()
	}

	result.Duration = time.Since(start)
	b.finishBuild(ctx, result, op)
	b.notify(IncrementalResult{
		RebuiltFiles:    result.Pages,
		CopiedAssets:    result.Assets,
		AffectedOutputs: result.Outputs,
		Errors:          result.Errors,
	})
	return result, nil
}

// ScanGraph rebuilds the dependency graph from the source tree without
// composing or writing anything.
func (b *Builder) ScanGraph(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	inv, err := b.discover(ctx)
	if err != nil {
		return err
	}
	return b.indexPages(ctx, inv.Pages)
}

// discover walks the source tree and resets the layout map, the engine
// cache and the graph edges of layouts and fragments.
func (b *Builder) discover(ctx context.Context) (scanner.Inventory, error) {
	inv, err := b.scanner.Discover(ctx)
	if err != nil {
		return scanner.Inventory{}, err
	}

	b.layoutMap = inv.LayoutMap()
	b.engine.ClearCache()
	b.tracker.Clear()
	for _, f := range append(append([]types.SourceFile(nil), inv.Layouts...), inv.Fragments...) {
		b.tracker.ScanFile(f.Path, string(f.Content), b.opts.SourceRoot)
	}
	return inv, nil
}

// indexPages records each page's transitive dependencies from its markup.
func (b *Builder) indexPages(ctx context.Context, pages []types.SourceFile) error {
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return err
		}
		content, err := b.pageSource(page.Path)
		if err != nil {
			continue
		}
		b.tracker.ScanFile(page.Path, content, b.opts.SourceRoot)
		b.tracker.Record(page.Path, b.tracker.Closure(page.Path))
	}
	return nil
}

func (b *Builder) finishBuild(ctx context.Context, result *BuildResult, op *logging.PerfLogger) {
	b.metrics.RecordBuild(result)
	b.prom.buildSeconds.WithLabelValues("initial").Observe(result.Duration.Seconds())
	op.End(ctx,
		"build_id", result.ID,
		"pages", result.Pages,
		"assets", result.Assets,
		"failed", result.Failed,
		"short_circuited", result.ShortCircuited)
}

// IncrementalBuild rebuilds what a modification of path affects: the
// dependents of a layout or fragment, the page itself, or the asset copy.
func (b *Builder) IncrementalBuild(ctx context.Context, path string) (*IncrementalResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, err := b.incremental(ctx, path)
	b.completeBatch(ctx, "incremental", result)
	return result, err
}

// HandleNewFile builds a newly added page on its own, rebuilds pages that
// were waiting for a new layout or fragment, and copies a new asset when
// something references it.
func (b *Builder) HandleNewFile(ctx context.Context, path string) (*IncrementalResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result, err := b.added(ctx, path)
	b.completeBatch(ctx, "incremental", result)
	return result, err
}

// HandleDeletedFiles removes the mirrored outputs of deleted files.
// Outputs that are already absent are not an error.
func (b *Builder) HandleDeletedFiles(ctx context.Context, paths []string) (*IncrementalResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := &IncrementalResult{}
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			b.completeBatch(ctx, "incremental", result)
			return result, err
		}
		r, err := b.deleted(ctx, p)
		result.merge(r)
		if err != nil {
			b.completeBatch(ctx, "incremental", result)
			return result, err
		}
	}
	b.completeBatch(ctx, "incremental", result)
	return result, nil
}

// ProcessBatch applies a watcher batch in order. It stops between files
// once ctx is cancelled; outputs already written stay in place.
func (b *Builder) ProcessBatch(ctx context.Context, events []watcher.ChangeEvent) (*IncrementalResult, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	result := &IncrementalResult{}
	var cancelled error
	for _, ev := range events {
		if err := ctx.Err(); err != nil {
			cancelled = err
			break
		}

		var (
			r   *IncrementalResult
			err error
		)
		switch {
		case ev.IsDeletion:
			r, err = b.deleted(ctx, ev.Path)
		case ev.IsAddition:
			r, err = b.added(ctx, ev.Path)
		default:
			r, err = b.incremental(ctx, ev.Path)
		}
		result.merge(r)
		if err != nil {
			cancelled = err
			break
		}
	}

	b.completeBatch(ctx, "batch", result)
	if cancelled != nil {
		b.logger.Info(ctx, "batch cancelled", "rebuilt", result.RebuiltFiles)
	}
	return result, cancelled
}

func (b *Builder) completeBatch(ctx context.Context, kind string, result *IncrementalResult) {
	b.saveCache(ctx)
	b.metrics.RecordIncremental(result)
	if result.RebuiltFiles > 0 || result.CopiedAssets > 0 || result.RemovedOutputs > 0 {
		b.notify(*result)
	}
	b.logger.Debug(ctx, "incremental build finished",
		"kind", kind,
		"rebuilt", result.RebuiltFiles,
		"copied", result.CopiedAssets,
		"removed", result.RemovedOutputs,
		"errors", len(result.Errors))
}

func (b *Builder) incremental(ctx context.Context, path string) (*IncrementalResult, error) {
	path = filepath.Clean(path)
	result := &IncrementalResult{}
	start := time.Now()
	defer func() {
		b.prom.buildSeconds.WithLabelValues("incremental").Observe(time.Since(start).Seconds())
	}()

	file, ok, err := b.scanner.Describe(path)
	if err != nil {
		fe := b.fail(ctx, path, err)
		result.Errors = append(result.Errors, &fe)
		return result, nil
	}
	if !ok {
		result.Skipped++
		return result, nil
	}

	if !b.cache.HasFileChanged(path) {
		b.prom.hashChecks.WithLabelValues("unchanged").Inc()
		result.Skipped++
		return result, nil
	}
	b.prom.hashChecks.WithLabelValues("changed").Inc()
	b.prom.incremental.WithLabelValues(string(file.Role)).Inc()

	switch file.Role {
	case types.RoleLayout, types.RoleFragment:
		b.layoutMap[file.Path] = string(file.Content)
		b.engine.Invalidate(file.Path)
		b.tracker.ScanFile(file.Path, string(file.Content), b.opts.SourceRoot)
		if err := b.rebuildDependents(ctx, file.Path, result); err != nil {
			return result, err
		}
		b.updateHash(ctx, path)
	case types.RolePage:
		b.rebuildPage(ctx, file.Path, result)
	case types.RoleAsset:
		if !b.classifier.Classify(file.Path).ShouldCopy {
			result.Skipped++
			b.updateHash(ctx, path)
			break
		}
		b.copyInto(ctx, file.Path, result)
	}
	return result, nil
}

func (b *Builder) added(ctx context.Context, path string) (*IncrementalResult, error) {
	path = filepath.Clean(path)
	result := &IncrementalResult{}

	file, ok, err := b.scanner.Describe(path)
	if err != nil {
		fe := b.fail(ctx, path, err)
		result.Errors = append(result.Errors, &fe)
		return result, nil
	}
	if !ok {
		result.Skipped++
		return result, nil
	}
	b.prom.incremental.WithLabelValues(string(file.Role)).Inc()

	switch file.Role {
	case types.RolePage:
		b.rebuildPage(ctx, file.Path, result)
	case types.RoleLayout, types.RoleFragment:
		b.layoutMap[file.Path] = string(file.Content)
		b.engine.Invalidate(file.Path)
		b.tracker.ScanFile(file.Path, string(file.Content), b.opts.SourceRoot)
		if err := b.rebuildDependents(ctx, file.Path, result); err != nil {
			return result, err
		}
		b.updateHash(ctx, path)
	case types.RoleAsset:
		if !b.classifier.Classify(file.Path).ShouldCopy || !b.tracker.Referenced(file.Path) {
			result.Skipped++
			b.updateHash(ctx, path)
			break
		}
		b.copyInto(ctx, file.Path, result)
	}
	return result, nil
}

func (b *Builder) deleted(ctx context.Context, path string) (*IncrementalResult, error) {
	path = filepath.Clean(path)
	result := &IncrementalResult{}

	class := b.classifier.Classify(path)
	b.cache.Remove(path)

	switch class.Role() {
	case types.RolePage, types.RoleAsset:
		if class.IsPage {
			b.tracker.RemovePage(path)
		} else {
			b.tracker.RemoveFile(path)
		}
		out := b.outputPath(path)
		if err := b.fs.Remove(out); err != nil {
			if !errors.Is(err, fs.ErrNotExist) {
				result.Errors = append(result.Errors, uerrors.NewIOError(uerrors.ErrCodeIO, "remove output "+out, err))
			}
			return result, nil
		}
		result.RemovedOutputs++
		result.AffectedOutputs = append(result.AffectedOutputs, out)
	case types.RoleLayout, types.RoleFragment:
		delete(b.layoutMap, path)
		b.engine.Invalidate(path)
		b.tracker.RemoveFile(path)
		if err := b.rebuildDependents(ctx, path, result); err != nil {
			return result, err
		}
	default:
		result.Skipped++
	}
	return result, nil
}

func (b *Builder) rebuildDependents(ctx context.Context, path string, result *IncrementalResult) error {
	for _, page := range b.tracker.GetDependentPages(path) {
		if err := ctx.Err(); err != nil {
			return err
		}
		b.rebuildPage(ctx, page, result)
	}
	return nil
}

func (b *Builder) rebuildPage(ctx context.Context, page string, result *IncrementalResult) {
	out, err := b.buildPage(ctx, page)
	if err != nil {
		fe := b.fail(ctx, page, err)
		result.Errors = append(result.Errors, &fe)
		return
	}
	result.RebuiltFiles++
	result.AffectedOutputs = append(result.AffectedOutputs, out)
	b.updateHash(ctx, page)

	for _, dep := range b.tracker.Closure(page) {
		class := b.classifier.Classify(dep)
		if !class.IsAsset || !class.ShouldCopy || b.fs.Exists(b.outputPath(dep)) || !b.fs.Exists(dep) {
			continue
		}
		b.copyInto(ctx, dep, result)
	}
}

func (b *Builder) copyInto(ctx context.Context, asset string, result *IncrementalResult) {
	out, err := b.copyAsset(asset)
	if err != nil {
		fe := b.fail(ctx, asset, err)
		result.Errors = append(result.Errors, &fe)
		return
	}
	result.CopiedAssets++
	result.AffectedOutputs = append(result.AffectedOutputs, out)
	b.updateHash(ctx, asset)
}

// buildPage composes one page and writes its output.
func (b *Builder) buildPage(ctx context.Context, path string) (string, error) {
	rel := b.rel(path)
	ctx, span := b.tracer.Start(ctx, "build.page",
		trace.WithAttributes(attribute.String("unify.page", rel)))
	defer span.End()

	content, err := b.pageSource(path)
	if err != nil {
		b.prom.pages.WithLabelValues(resultFailed).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	res := b.engine.Compose(ctx, path, content, b.opts.SourceRoot, compose.Options{LayoutMap: b.layoutMap})
	b.tracker.ScanFile(path, content, b.opts.SourceRoot)
	b.tracker.Record(path, append(b.tracker.Closure(path), res.Dependencies...))

	span.SetAttributes(
		attribute.Int("unify.layouts", res.LayoutsProcessed),
		attribute.Int("unify.recoverable_errors", len(res.RecoverableErrors)))

	if !res.Success {
		b.prom.pages.WithLabelValues(resultFailed).Inc()
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
		return "", res.Err
	}

	markup := res.HTML
	if b.opts.PrettyURLs {
		markup = NormalizeLinks(markup)
	}
	if b.opts.Minify {
		markup = MinifyHTML(markup)
	}

	out := b.outputPath(path)
	if err := b.fs.WriteFile(out, []byte(markup)); err != nil {
		b.prom.pages.WithLabelValues(resultFailed).Inc()
		werr := uerrors.NewIOError(uerrors.ErrCodeIO, "write "+out, err)
		span.RecordError(werr)
		span.SetStatus(codes.Error, werr.Error())
		return "", werr
	}

	if res.CompositionApplied {
		b.prom.pages.WithLabelValues(resultComposed).Inc()
	} else {
		b.prom.pages.WithLabelValues(resultStandalone).Inc()
	}
	span.SetStatus(codes.Ok, "")
	return out, nil
}

// pageSource returns the HTML to compose for a page; Markdown is rendered.
func (b *Builder) pageSource(path string) (string, error) {
	data, err := b.fs.ReadFile(path)
	if err != nil {
		return "", uerrors.NewIOError(uerrors.ErrCodeFileNotFound, "read "+path, err)
	}
	if filepath.Ext(path) != ".md" {
		return string(data), nil
	}
	page, err := b.markdown.Render(data)
	if err != nil {
		return "", uerrors.NewBuildError(uerrors.ErrCodeBuildFailed, "render "+path, err)
	}
	return page.Document, nil
}

func (b *Builder) copyAsset(path string) (string, error) {
	out := b.outputPath(path)
	if err := b.fs.CopyFile(path, out); err != nil {
		return "", uerrors.NewIOError(uerrors.ErrCodeIO, fmt.Sprintf("copy %s", path), err)
	}
	b.prom.assets.Inc()
	return out, nil
}

// fail reports a file that did not build and forgets its digest, so the
// next build sees it as changed and retries it.
func (b *Builder) fail(ctx context.Context, path string, err error) uerrors.FileError {
	b.cache.Remove(path)
	rel := b.rel(path)
	uerrors.NewErrorHandler(b.logger.With("page", logging.SanitizeForLog(rel))).Handle(ctx, err)
	return uerrors.NewFileError(rel, err)
}

func (b *Builder) updateHash(ctx context.Context, path string) {
	if err := b.cache.Update(path); err != nil {
		b.logger.Warn(ctx, err, "hash update failed", "path", logging.SanitizeForLog(b.rel(path)))
	}
}

func (b *Builder) saveCache(ctx context.Context) {
	if err := b.cache.Save(); err != nil {
		b.logger.Warn(ctx, err, "build cache not saved")
	}
}

func (b *Builder) notify(result IncrementalResult) {
	for _, cb := range b.callbacks {
		cb(result)
	}
}

func (b *Builder) rel(path string) string {
	rel, err := filepath.Rel(b.opts.SourceRoot, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}

// outputPath maps a source path to its mirrored output path.
func (b *Builder) outputPath(path string) string {
	return filepath.Join(b.opts.OutputDir, filepath.FromSlash(OutputRel(b.rel(path), b.opts.PrettyURLs)))
}

func absPath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		return abs
	}
	return filepath.Clean(p)
}

// OutputPath exposes the output mapping for a source path.
func (b *Builder) OutputPath(path string) string {
	return b.outputPath(filepath.Clean(path))
}
