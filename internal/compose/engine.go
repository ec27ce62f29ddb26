// Package compose implements DOM Cascade composition: a page names a
// layout on its root element, layouts may name further layouts, and any
// other element naming a file is replaced by that component. Content flows
// from page to layout through matching area classes, falling back to
// landmark elements.
package compose

import (
	"context"
	"path/filepath"
	"sync"

	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/conneroisu/unify/internal/dom"
	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/validation"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultMaxDepth bounds layout chains and component nesting.
const DefaultMaxDepth = 10

// Config configures an Engine.
type Config struct {
	AreaPrefix string
	MaxDepth   int
	// Includes expands server-side includes before composition. Optional.
	Includes interfaces.IncludeProcessor
	// Scanner reports unsafe markup. Optional.
	Scanner interfaces.SecurityScanner
	// FailOnSecurity turns critical scanner findings into a fatal error.
	FailOnSecurity bool
}

// Options are per-call composition options.
type Options struct {
	// LayoutMap holds preloaded layout and fragment content by absolute path.
	LayoutMap map[string]string
}

// Result is the outcome of composing one page. Compose never returns an
// error value; failures are reported here.
type Result struct {
	Success            bool
	HTML               string
	Err                error
	ExitCode           int
	SecurityWarnings   []interfaces.SecurityIssue
	Dependencies       []string
	RecoverableErrors  []error
	LayoutsProcessed   int
	CompositionApplied bool
}

// Stats reports layout cache activity.
type Stats struct {
	Size            int
	Hits            int64
	Misses          int64
	MissingAttempts int64
	UniqueMissing   int
}

// HitRate returns hits over lookups.
func (s Stats) HitRate() float64 {
	total := s.Hits + s.Misses
	if total == 0 {
		return 0
	}
	return float64(s.Hits) / float64(total)
}

// Engine composes pages. Its layout cache and missing-file set live for
// the lifetime of the engine or until ClearCache.
type Engine struct {
	fs       interfaces.FileSystem
	logger   logging.Logger
	config   Config
	resolver *Resolver

	mu      sync.Mutex
	layouts map[string]string
	missing map[string]struct{}
	stats   Stats
}

// NewEngine creates an engine reading from fsys.
func NewEngine(fsys interfaces.FileSystem, logger logging.Logger, config Config) *Engine {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	if config.AreaPrefix == "" {
		config.AreaPrefix = dom.DefaultAreaPrefix
	}
	if config.MaxDepth <= 0 {
		config.MaxDepth = DefaultMaxDepth
	}

	e := &Engine{
		fs:      fsys,
		logger:  logger.WithComponent("compose"),
		config:  config,
		layouts: make(map[string]string),
		missing: make(map[string]struct{}),
	}
	e.resolver = NewResolver(fsys.Exists)
	return e
}

// CacheStats returns a snapshot of cache activity.
func (e *Engine) CacheStats() Stats {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := e.stats
	st.Size = len(e.layouts)
	st.UniqueMissing = len(e.missing)
	return st
}

// ClearCache empties the layout cache, the missing-file set and the stats.
func (e *Engine) ClearCache() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.layouts = make(map[string]string)
	e.missing = make(map[string]struct{})
	e.stats = Stats{}
}

// Invalidate drops one cached layout and forgets that it was missing.
func (e *Engine) Invalidate(path string) {
	path = filepath.Clean(path)

	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.layouts, path)
	delete(e.missing, path)
}

// Compose composes the page at path whose content is content.
func (e *Engine) Compose(ctx context.Context, path, content, sourceRoot string, opts Options) *Result {
	path = filepath.Clean(path)
	if sourceRoot != "" {
		sourceRoot = filepath.Clean(sourceRoot)
	}

	s := &session{
		ctx:        ctx,
		engine:     e,
		sourceRoot: sourceRoot,
		layoutMap:  opts.LayoutMap,
		result:     &Result{},
		depSeen:    make(map[string]bool),
	}

	if err := ctx.Err(); err != nil {
		return s.fail(err, content)
	}
	if err := validation.ValidatePath(path, sourceRoot); err != nil {
		logging.LogSecurityEvent(ctx, e.logger, "path_rejected", map[string]interface{}{"path": path})
		return s.fail(err, content)
	}

	if err := s.push(path, path); err != nil {
		return s.fail(err, content)
	}
	defer s.pop()

	content = s.expandIncludes(path, content)
	if err := s.scan(path, content); err != nil {
		return s.fail(err, content)
	}

	if !dom.HasDirectives(content) {
		s.result.Success = true
		s.result.HTML = content
		return s.result
	}

	pageDoc, err := dom.Parse(content)
	if err != nil {
		return s.fail(uerrors.NewBuildError(uerrors.ErrCodeBuildFailed, "parsing "+path, err), content)
	}

	layoutRef, hasLayout := dom.RootDirective(pageDoc)

	if out := s.expandComponents(pageDoc, path, 0); out.isFatal() {
		return s.fail(out.err, content)
	}

	final := pageDoc
	if hasLayout {
		layoutPath, err := e.resolver.Resolve(layoutRef, path, sourceRoot)
		if err != nil {
			return s.fail(err, content)
		}

		out := s.composeWithLayout(path, pageDoc, layoutPath, 1)
		switch out.kind {
		case outcomeFatal:
			return s.fail(out.err, content)
		case outcomeComposed:
			final = out.doc
		case outcomeFallback:
			e.logger.Debug(ctx, "page composed standalone", "path", path, "reason", out.reason)
		}
	}

	dom.HoistHead(dom.Head(final), s.hoisted)
	dom.StripDirectives(final)

	rendered, err := dom.Render(final)
	if err != nil {
		return s.fail(uerrors.NewBuildError(uerrors.ErrCodeBuildFailed, "rendering "+path, err), content)
	}

	s.result.Success = true
	s.result.HTML = rendered
	return s.result
}

// fail records a fatal error. The returned HTML is the input with its
// directives stripped.
func (s *session) fail(err error, content string) *Result {
	s.result.Success = false
	s.result.Err = err
	s.result.ExitCode = uerrors.ExitCode(err)
	s.result.HTML = dom.StripDirectivesString(content)
	s.engine.logger.Error(s.ctx, err, "composition failed")
	return s.result
}

func (s *session) expandIncludes(path, content string) string {
	inc := s.engine.config.Includes
	if inc == nil {
		return content
	}

	res := inc.Process(content, path)
	for _, w := range res.Warnings {
		s.engine.logger.Warn(s.ctx, nil, "include warning", "path", path, "detail", w)
	}
	for _, dep := range res.Dependencies {
		s.addDependency(dep)
	}
	if !res.Success {
		return content
	}
	return res.Content
}

func (s *session) scan(path, content string) error {
	scanner := s.engine.config.Scanner
	if scanner == nil {
		return nil
	}

	issues := scanner.Scan(content, path)
	s.result.SecurityWarnings = append(s.result.SecurityWarnings, issues...)
	for _, issue := range issues {
		s.engine.logger.Warn(s.ctx, nil, "security issue", "path", path, "type", issue.Type, "line", issue.Line)
	}

	if s.engine.config.FailOnSecurity && validation.HasCritical(issues) {
		return uerrors.NewSecurityError(uerrors.ErrCodeSecurityIssue, "critical security issue in "+path)
	}
	return nil
}

// composeWithLayout composes srcDoc into the layout at layoutPath. depth
// is the position of this link in the chain, starting at 1.
func (s *session) composeWithLayout(srcPath string, srcDoc *html.Node, layoutPath string, depth int) outcome {
	e := s.engine
	if depth > e.config.MaxDepth {
		return fatal(uerrors.ErrMaxDepth(layoutPath, e.config.MaxDepth))
	}

	if err := s.push(linkKey(srcPath, layoutPath), layoutPath); err != nil {
		return fatal(err)
	}
	defer s.pop()

	content, ok := s.load(layoutPath, srcPath)
	if !ok {
		return fallback("layout not found: " + layoutPath)
	}

	layoutDoc, err := dom.Parse(content)
	if err != nil {
		return fatal(uerrors.NewBuildError(uerrors.ErrCodeBuildFailed, "parsing layout "+layoutPath, err))
	}
	s.result.LayoutsProcessed++

	nextRef, hasNext := dom.RootDirective(layoutDoc)

	if out := s.expandComponents(layoutDoc, layoutPath, depth); out.isFatal() {
		return out
	}

	if hasNext {
		nextPath, err := e.resolver.Resolve(nextRef, layoutPath, s.sourceRoot)
		if err != nil {
			return fatal(err)
		}
		out := s.composeWithLayout(layoutPath, layoutDoc, nextPath, depth+1)
		switch out.kind {
		case outcomeFatal:
			return out
		case outcomeComposed:
			layoutDoc = out.doc
		}
	}

	s.merge(layoutDoc, srcDoc, depth)
	return composed(layoutDoc)
}

// merge fills layoutDoc from srcDoc: area classes first, landmarks only
// when no area matched. The head, html and body attributes are merged too.
func (s *session) merge(layoutDoc, srcDoc *html.Node, depth int) {
	prefix := s.engine.config.AreaPrefix

	matches := dom.MatchAreas(layoutDoc, srcDoc, prefix)
	if len(matches) == 0 {
		eligible := dom.Landmarks
		if depth <= 1 {
			eligible = dom.PageLandmarks
		}
		matches = dom.MatchLandmarks(layoutDoc, srcDoc, eligible, prefix)
	}
	for _, m := range matches {
		dom.ApplyMatch(m)
	}
	if len(matches) > 0 {
		s.result.CompositionApplied = true
	}

	dom.MergeHead(dom.Head(layoutDoc), dom.Head(srcDoc))

	for _, tag := range []atom.Atom{atom.Html, atom.Body} {
		layoutEl, srcEl := dom.FindTag(layoutDoc, tag), dom.FindTag(srcDoc, tag)
		if layoutEl != nil && srcEl != nil {
			layoutEl.Attr = dom.MergeAttributes(layoutEl, srcEl)
		}
	}
}

// expandComponents replaces every component reference in doc. owner is
// the file doc came from; components compose at depth+1.
func (s *session) expandComponents(doc *html.Node, owner string, depth int) outcome {
	for _, ref := range dom.ComponentRefs(doc) {
		value, _ := dom.Directive(ref)
		compPath, err := s.engine.resolver.Resolve(value, owner, s.sourceRoot)
		if err != nil {
			return fatal(err)
		}

		out := s.composeComponent(ref, compPath, owner, depth+1)
		switch out.kind {
		case outcomeFatal:
			return out
		case outcomeComposed:
			dom.ReplaceNode(ref, out.nodes)
		case outcomeFallback:
			dom.RemoveAttr(ref, dom.AttrDirective)
			dom.RemoveAttr(ref, dom.AttrLegacyDirective)
		}
	}
	return composed(doc)
}

// composeComponent loads a component and fills its areas from the
// referencing element's own content.
func (s *session) composeComponent(ref *html.Node, compPath, owner string, depth int) outcome {
	if depth > s.engine.config.MaxDepth {
		return fatal(uerrors.ErrMaxDepth(compPath, s.engine.config.MaxDepth))
	}

	// The referencing element's content belongs to owner, so its own
	// components expand before compPath goes on the stack.
	override := dom.Document(dom.CloneChildren(ref))
	if out := s.expandComponents(override, owner, depth); out.isFatal() {
		return out
	}

	if err := s.push(compPath, compPath); err != nil {
		return fatal(err)
	}
	defer s.pop()

	content, ok := s.load(compPath, owner)
	if !ok {
		return fallback("component not found: " + compPath)
	}

	compDoc, err := dom.Parse(content)
	if err != nil {
		return fatal(uerrors.NewBuildError(uerrors.ErrCodeBuildFailed, "parsing component "+compPath, err))
	}

	if out := s.expandComponents(compDoc, compPath, depth); out.isFatal() {
		return out
	}

	for _, m := range dom.MatchAreas(compDoc, override, s.engine.config.AreaPrefix) {
		dom.ApplyMatch(m)
		s.result.CompositionApplied = true
	}

	if head := dom.Head(compDoc); head != nil {
		for c := head.FirstChild; c != nil; c = c.NextSibling {
			if dom.Hoistable(c) {
				s.hoisted = append(s.hoisted, dom.Clone(c))
			}
		}
	}

	body := dom.Body(compDoc)
	if body == nil {
		return composedNodes(nil)
	}
	nodes := dom.CloneChildren(body)
	for _, n := range nodes {
		dom.StripDirectives(n)
	}
	return composedNodes(nodes)
}

// load returns layout or component content from the per-call layout map,
// the engine cache or the filesystem, in that order. A missing file is
// recorded as recoverable and warned about once per engine.
func (s *session) load(path, referencedBy string) (string, bool) {
	e := s.engine
	s.addDependency(path)

	if content, ok := s.layoutMap[path]; ok {
		return content, true
	}

	e.mu.Lock()
	if content, ok := e.layouts[path]; ok {
		e.stats.Hits++
		e.mu.Unlock()
		return content, true
	}
	e.stats.Misses++
	e.mu.Unlock()

	data, err := e.fs.ReadFile(path)
	if err == nil {
		e.mu.Lock()
		e.layouts[path] = string(data)
		delete(e.missing, path)
		e.mu.Unlock()
		return string(data), true
	}

	e.mu.Lock()
	e.stats.MissingAttempts++
	_, seen := e.missing[path]
	if !seen {
		e.missing[path] = struct{}{}
	}
	e.mu.Unlock()

	if !seen {
		e.logger.Warn(s.ctx, err, "layout or component not found", "path", s.display(path), "referenced_by", s.display(referencedBy))
	}
	s.result.RecoverableErrors = append(s.result.RecoverableErrors, uerrors.ErrLayoutMissing(s.display(path), referencedBy))
	return "", false
}
