package compose

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/conneroisu/unify/internal/adapters"
	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/conneroisu/unify/internal/includes"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const root = "/site/src"

func setup(t *testing.T, files map[string]string) (*Engine, *adapters.MemFileSystem) {
	t.Helper()
	fsys := adapters.NewMemFileSystem()
	for p, c := range files {
		require.NoError(t, fsys.WriteFile(root+"/"+p, []byte(c)))
	}
	return NewEngine(fsys, nil, Config{}), fsys
}

func compose(t *testing.T, e *Engine, page, content string) *Result {
	t.Helper()
	return e.Compose(context.Background(), root+"/"+page, content, root, Options{})
}

func TestComposeAreaScenario(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_l.html": `<body><div class="unify-content">L</div></body>`,
	})

	res := compose(t, e, "index.html", `<body data-unify="_l.html"><div class="unify-content">P</div></body>`)

	require.True(t, res.Success, "%v", res.Err)
	assert.Contains(t, res.HTML, "P")
	assert.NotContains(t, res.HTML, ">L<")
	assert.NotContains(t, res.HTML, "data-unify")
	assert.True(t, res.CompositionApplied)
	assert.Equal(t, 1, res.LayoutsProcessed)
	assert.Equal(t, []string{root + "/_l.html"}, res.Dependencies)
	assert.Equal(t, 0, res.ExitCode)
}

func TestComposeMissingLayoutIsRecoverable(t *testing.T) {
	e, _ := setup(t, nil)

	res := compose(t, e, "index.html", `<body data-unify="x.html"><p>own content</p></body>`)

	require.True(t, res.Success)
	assert.NotContains(t, res.HTML, "data-unify")
	assert.Contains(t, res.HTML, "own content")
	require.Len(t, res.RecoverableErrors, 1)
	assert.Contains(t, res.RecoverableErrors[0].Error(), "x.html")
	assert.True(t, uerrors.IsRecoverable(res.RecoverableErrors[0]))
	assert.False(t, res.CompositionApplied)
}

func TestComposeCircularLayouts(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"a.html": `<body data-unify="b.html"><main class="unify-content">A</main></body>`,
		"b.html": `<body data-unify="a.html"><main class="unify-content">B</main></body>`,
		"_ok.html": `<body><main class="unify-content">ok</main></body>`,
	})

	res := compose(t, e, "index.html", `<body data-unify="a.html"><main class="unify-content">P</main></body>`)

	require.False(t, res.Success)
	assert.True(t, uerrors.IsCircularImport(res.Err))
	assert.Regexp(t, `circular import detected: index\.html -> a\.html -> b\.html -> a\.html`, res.Err.Error())
	assert.Equal(t, uerrors.ExitCodeBuildError, res.ExitCode)
	assert.NotContains(t, res.HTML, "data-unify")

	again := compose(t, e, "other.html", `<body data-unify="_ok.html"><main class="unify-content">fine</main></body>`)
	require.True(t, again.Success, "%v", again.Err)
	assert.Contains(t, again.HTML, "fine")
}

func TestComposeSelfReference(t *testing.T) {
	page := `<body data-unify="index.html"></body>`
	e, _ := setup(t, map[string]string{"index.html": page})
	res := compose(t, e, "index.html", page)
	require.False(t, res.Success)
	assert.True(t, uerrors.IsCircularImport(res.Err))
}

func TestComposeLayoutReusedAsComponent(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_l1.html": `<body data-unify="_l2.html"><p class="badge">one</p><section class="unify-content">L1</section></body>`,
		"_l2.html": `<body><div data-unify="_l1.html"></div><section class="unify-content">L2</section></body>`,
	})

	res := compose(t, e, "index.html", `<body data-unify="_l1.html"><section class="unify-content">P</section></body>`)

	require.True(t, res.Success, "%v", res.Err)
	assert.Contains(t, res.HTML, `<p class="badge">one</p>`)
	assert.Contains(t, res.HTML, ">P</section>")
	assert.NotContains(t, res.HTML, "L2")
	assert.NotContains(t, res.HTML, "data-unify")
}

func chain(n int) map[string]string {
	files := make(map[string]string, n)
	for i := 1; i < n; i++ {
		files[fmt.Sprintf("_l%d.html", i)] = fmt.Sprintf(`<body data-unify="_l%d.html"><main class="unify-content">%d</main></body>`, i+1, i)
	}
	files[fmt.Sprintf("_l%d.html", n)] = `<body><main class="unify-content">last</main></body>`
	return files
}

func TestComposeDepthBound(t *testing.T) {
	t.Run("ten layouts succeed", func(t *testing.T) {
		e, _ := setup(t, chain(10))
		res := compose(t, e, "index.html", `<body data-unify="_l1.html"><main class="unify-content">page</main></body>`)
		require.True(t, res.Success, "%v", res.Err)
		assert.Equal(t, 10, res.LayoutsProcessed)
		assert.Contains(t, res.HTML, "page")
	})

	t.Run("eleven layouts fail", func(t *testing.T) {
		e, _ := setup(t, chain(11))
		res := compose(t, e, "index.html", `<body data-unify="_l1.html"><main class="unify-content">page</main></body>`)
		require.False(t, res.Success)
		assert.True(t, uerrors.IsMaxDepth(res.Err))
		assert.False(t, uerrors.IsCircularImport(res.Err))
	})
}

func TestComposeMissingFileDedup(t *testing.T) {
	var logs bytes.Buffer
	logger := logging.NewLogger(&logging.LoggerConfig{Level: logging.LevelWarn, Format: "json", Output: &logs})
	fsys := adapters.NewMemFileSystem()
	e := NewEngine(fsys, logger, Config{})

	const pages = 5
	for i := 0; i < pages; i++ {
		res := compose(t, e, fmt.Sprintf("p%d.html", i), `<body data-unify="/_missing.html"><p>x</p></body>`)
		require.True(t, res.Success)
		require.Len(t, res.RecoverableErrors, 1)
	}

	assert.Equal(t, 1, strings.Count(logs.String(), "layout or component not found"))
	stats := e.CacheStats()
	assert.Equal(t, int64(pages), stats.MissingAttempts)
	assert.Equal(t, 1, stats.UniqueMissing)

	e.ClearCache()
	assert.Zero(t, e.CacheStats().UniqueMissing)
}

func TestComposeAreaSuppressesLandmarks(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_l.html": `<body><header>LH</header><div class="unify-content">L</div><footer>LF</footer></body>`,
	})

	res := compose(t, e, "index.html", `<body data-unify="_l.html"><header>PH</header><div class="unify-content">P</div><footer>PF</footer></body>`)

	require.True(t, res.Success)
	assert.Contains(t, res.HTML, "<header>LH</header>")
	assert.Contains(t, res.HTML, "<footer>LF</footer>")
	assert.Contains(t, res.HTML, ">P</div>")
}

func TestComposeLandmarkFallback(t *testing.T) {
	t.Run("page level keeps layout main", func(t *testing.T) {
		e, _ := setup(t, map[string]string{
			"_l.html": `<body><header>LH</header><main>LM</main><footer>LF</footer></body>`,
		})
		res := compose(t, e, "index.html", `<body data-unify="_l.html"><header>PH</header><main>PM</main></body>`)

		require.True(t, res.Success)
		assert.Contains(t, res.HTML, "<header>PH</header>")
		assert.Contains(t, res.HTML, "<main>LM</main>")
		assert.Contains(t, res.HTML, "<footer>LF</footer>")
		assert.True(t, res.CompositionApplied)
	})

	t.Run("nested layouts replace main", func(t *testing.T) {
		e, _ := setup(t, map[string]string{
			"_inner.html": `<body data-unify="_outer.html"><main>inner main</main></body>`,
			"_outer.html": `<body><main>outer main</main></body>`,
		})
		res := compose(t, e, "index.html", `<body data-unify="_inner.html"><p>page</p></body>`)

		require.True(t, res.Success)
		assert.Contains(t, res.HTML, "inner main")
		assert.NotContains(t, res.HTML, "outer main")
	})
}

func TestComposeNestedLayoutAreas(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_base.html": `<html><head><title>Base</title></head><body class="base"><div class="unify-page">base</div></body></html>`,
		"_blog.html": `<html><head><title>Blog</title></head><body data-unify="_base.html"><div class="unify-page"><article class="unify-post">blog</article></div></body></html>`,
	})

	res := compose(t, e, "post.html", `<html><head><title>Post</title></head><body data-unify="_blog.html" class="post"><article class="unify-post">hello</article></body></html>`)

	require.True(t, res.Success, "%v", res.Err)
	assert.Contains(t, res.HTML, "<title>Post</title>")
	assert.Equal(t, 1, strings.Count(res.HTML, "<title>"))
	assert.Contains(t, res.HTML, `<body class="base post">`)
	assert.Contains(t, res.HTML, "hello")
	assert.NotContains(t, res.HTML, ">blog<")
	assert.NotContains(t, res.HTML, ">base<")
	assert.Equal(t, 2, res.LayoutsProcessed)
}

func TestComposeMissingNestedLayoutContinues(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_l.html": `<body data-unify="_gone.html"><main class="unify-content">L</main></body>`,
	})

	res := compose(t, e, "index.html", `<body data-unify="_l.html"><main class="unify-content">P</main></body>`)

	require.True(t, res.Success)
	assert.Contains(t, res.HTML, ">P</main>")
	require.Len(t, res.RecoverableErrors, 1)
	assert.Contains(t, res.RecoverableErrors[0].Error(), "_gone.html")
}

func TestComposeComponents(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_layout.html": `<html><head><title>L</title></head><body><div data-unify="_includes/nav.html"></div><main class="unify-content"></main></body></html>`,
		"_includes/nav.html": `<html><head><style>.nav{}</style></head><body><nav class="site">links</nav></body></html>`,
		"_includes/card.html": `<div class="card"><h2 class="unify-title">Default</h2><p class="unify-body">Body</p></div>`,
	})

	page := `<html><head><style>.nav{}</style></head><body data-unify="_layout.html"><main class="unify-content">` +
		`<section data-unify="card"><h2 class="unify-title">Custom</h2></section></main></body></html>`
	res := compose(t, e, "index.html", page)

	require.True(t, res.Success, "%v", res.Err)
	assert.Contains(t, res.HTML, `<nav class="site">links</nav>`)
	assert.Contains(t, res.HTML, `<h2 class="unify-title">Custom</h2>`)
	assert.Contains(t, res.HTML, `<p class="unify-body">Body</p>`)
	assert.NotContains(t, res.HTML, "Default")
	assert.Equal(t, 1, strings.Count(res.HTML, ".nav{}"))
	assert.NotContains(t, res.HTML, "data-unify")
	assert.ElementsMatch(t, []string{
		root + "/_includes/card.html",
		root + "/_layout.html",
		root + "/_includes/nav.html",
	}, res.Dependencies)
}

func TestComposeCircularComponents(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_a.html": `<div data-unify="_b.html"></div>`,
		"_b.html": `<div data-unify="_a.html"></div>`,
	})

	res := compose(t, e, "index.html", `<body><div data-unify="_a.html"></div></body>`)
	require.False(t, res.Success)
	assert.True(t, uerrors.IsCircularImport(res.Err))
}

func TestComposeMissingComponent(t *testing.T) {
	e, _ := setup(t, nil)

	res := compose(t, e, "index.html", `<body><div data-unify="_nope.html" class="keep">fallback</div></body>`)

	require.True(t, res.Success)
	assert.Contains(t, res.HTML, `<div class="keep">fallback</div>`)
	assert.Len(t, res.RecoverableErrors, 1)
}

func TestComposeStandalone(t *testing.T) {
	e, _ := setup(t, nil)
	content := "<!DOCTYPE html>\n<p>plain page</p>\n"

	res := compose(t, e, "index.html", content)
	require.True(t, res.Success)
	assert.Equal(t, content, res.HTML)
	assert.False(t, res.CompositionApplied)
}

func TestComposePathTraversal(t *testing.T) {
	e, _ := setup(t, nil)

	res := e.Compose(context.Background(), "/etc/evil.html", `<body data-unify="_l.html">x</body>`, root, Options{})
	require.False(t, res.Success)
	assert.True(t, uerrors.IsSecurityError(res.Err))
	assert.Equal(t, uerrors.ExitCodeSecurity, res.ExitCode)
	assert.NotContains(t, res.HTML, "data-unify")

	res = compose(t, e, "index.html", `<body data-unify="../../outside.html">x</body>`)
	require.False(t, res.Success)
	assert.Equal(t, uerrors.ExitCodeSecurity, res.ExitCode)
}

func TestComposeIdempotent(t *testing.T) {
	e, _ := setup(t, map[string]string{
		"_l.html": `<html><head><meta charset="utf-8"></head><body><header>H</header><div class="unify-content" id="c">L</div></body></html>`,
	})
	page := `<html><head><title>T</title></head><body data-unify="_l.html"><div class="unify-content extra">P</div></body></html>`

	first := compose(t, e, "index.html", page)
	second := compose(t, e, "index.html", page)
	require.True(t, first.Success)
	assert.Equal(t, first.HTML, second.HTML)
	assert.Contains(t, first.HTML, `<div class="unify-content extra" id="c">P</div>`)
}

func TestComposeLayoutCache(t *testing.T) {
	e, fsys := setup(t, map[string]string{
		"_l.html": `<body><main class="unify-content">v1</main></body>`,
	})
	page := `<body data-unify="_l.html"><main class="unify-content">P</main><aside>A</aside></body>`

	compose(t, e, "a.html", page)
	compose(t, e, "b.html", page)
	assert.Equal(t, 1, fsys.ReadCount(root+"/_l.html"))

	stats := e.CacheStats()
	assert.Equal(t, 1, stats.Size)
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.InDelta(t, 0.5, stats.HitRate(), 0.001)

	e.Invalidate(root + "/_l.html")
	compose(t, e, "a.html", page)
	assert.Equal(t, 2, fsys.ReadCount(root+"/_l.html"))
}

func TestComposeUsesLayoutMap(t *testing.T) {
	e, fsys := setup(t, nil)
	opts := Options{LayoutMap: map[string]string{
		root + "/_l.html": `<body><main class="unify-content">mapped</main></body>`,
	}}

	res := e.Compose(context.Background(), root+"/index.html", `<body data-unify="_l.html"><main class="unify-content">P</main></body>`, root, opts)
	require.True(t, res.Success)
	assert.Contains(t, res.HTML, ">P</main>")
	assert.Zero(t, fsys.ReadCount(root+"/_l.html"))
}

func TestComposeIncludesAndSecurity(t *testing.T) {
	fsys := adapters.NewMemFileSystem()
	require.NoError(t, fsys.WriteFile(root+"/_includes/banner.html", []byte(`<div onclick="x()">banner</div>`)))
	require.NoError(t, fsys.WriteFile(root+"/_l.html", []byte(`<body><main class="unify-content"></main></body>`)))

	e := NewEngine(fsys, nil, Config{
		Includes: includes.NewProcessor(fsys, root),
		Scanner:  validation.Scanner{},
	})
	res := compose(t, e, "index.html", `<body data-unify="_l.html"><main class="unify-content"><!--#include virtual="/_includes/banner.html" --></main></body>`)

	require.True(t, res.Success)
	assert.Contains(t, res.HTML, "banner")
	require.Len(t, res.SecurityWarnings, 1)
	assert.Equal(t, "inline-event-handler", res.SecurityWarnings[0].Type)
	assert.Contains(t, res.Dependencies, root+"/_includes/banner.html")

	strict := NewEngine(fsys, nil, Config{Scanner: validation.Scanner{}, FailOnSecurity: true})
	res = compose(t, strict, "index.html", `<body data-unify="_l.html"><a href="javascript:void(0)">x</a></body>`)
	require.False(t, res.Success)
	assert.Equal(t, uerrors.ExitCodeSecurity, res.ExitCode)
	assert.NotContains(t, res.HTML, "data-unify")
}

func TestComposeCancelled(t *testing.T) {
	e, _ := setup(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := e.Compose(ctx, root+"/index.html", `<body data-unify="_l.html"></body>`, root, Options{})
	assert.False(t, res.Success)
	assert.ErrorIs(t, res.Err, context.Canceled)
}
