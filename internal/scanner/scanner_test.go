package scanner

import (
	"context"
	"testing"

	"github.com/conneroisu/unify/internal/adapters"
	"github.com/conneroisu/unify/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	c := NewClassifier("/site/src", []string{"drafts/**", "*.tmp"})

	tests := []struct {
		path string
		want types.FileRole
	}{
		{"/site/src/index.html", types.RolePage},
		{"/site/src/blog/post.htm", types.RolePage},
		{"/site/src/notes.md", types.RolePage},
		{"/site/src/_layout.html", types.RoleLayout},
		{"/site/src/_includes/base-layout.html", types.RoleLayout},
		{"/site/src/_includes/nav.html", types.RoleFragment},
		{"/site/src/_header.html", types.RoleFragment},
		{"/site/src/_partials/readme.md", types.RoleIgnored},
		{"/site/src/css/site.css", types.RoleAsset},
		{"/site/src/_includes/logo.svg", types.RoleIgnored},
		{"/site/src/.env", types.RoleIgnored},
		{"/site/src/.git/config", types.RoleIgnored},
		{"/site/src/drafts/wip.html", types.RoleIgnored},
		{"/site/src/scratch.tmp", types.RoleIgnored},
		{"/elsewhere/index.html", types.RoleIgnored},
		{"blog/index.html", types.RolePage},
	}

	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.path).Role())
		})
	}
}

func TestDiscover(t *testing.T) {
	fsys := adapters.NewMemFileSystem()
	files := map[string]string{
		"/site/src/index.html":         `<body data-unify="_layout.html"></body>`,
		"/site/src/about.html":         `<p>about</p>`,
		"/site/src/_layout.html":       `<html><body><main></main></body></html>`,
		"/site/src/_includes/nav.html": `<nav>links</nav>`,
		"/site/src/img/logo.png":       "png",
		"/site/src/.DS_Store":          "x",
		"/site/src/drafts/old.html":    "old",
	}
	for p, content := range files {
		require.NoError(t, fsys.WriteFile(p, []byte(content)))
	}

	s := NewScanner(fsys, NewClassifier("/site/src", []string{"drafts/**"}), "/site/src", nil)
	inv, err := s.Discover(context.Background())
	require.NoError(t, err)

	require.Len(t, inv.Pages, 2)
	assert.Equal(t, "/site/src/about.html", inv.Pages[0].Path)
	assert.Equal(t, "index.html", inv.Pages[1].RelPath)
	assert.Nil(t, inv.Pages[0].Content)

	require.Len(t, inv.Layouts, 1)
	require.Len(t, inv.Fragments, 1)
	require.Len(t, inv.Assets, 1)
	assert.Equal(t, "img/logo.png", inv.Assets[0].RelPath)

	layouts := inv.LayoutMap()
	assert.Equal(t, `<nav>links</nav>`, layouts["/site/src/_includes/nav.html"])
	assert.Contains(t, layouts["/site/src/_layout.html"], "<main>")
	assert.Len(t, inv.All(), 5)
}

func TestDiscoverCancelled(t *testing.T) {
	fsys := adapters.NewMemFileSystem()
	require.NoError(t, fsys.WriteFile("/src/a.html", []byte("a")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewScanner(fsys, NewClassifier("/src", nil), "/src", nil).Discover(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDescribe(t *testing.T) {
	fsys := adapters.NewMemFileSystem()
	require.NoError(t, fsys.WriteFile("/src/_card.html", []byte("<div>card</div>")))

	s := NewScanner(fsys, NewClassifier("/src", nil), "/src", nil)
	file, ok, err := s.Describe("/src/_card.html")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, types.RoleFragment, file.Role)
	assert.Equal(t, "<div>card</div>", string(file.Content))

	_, ok, err = s.Describe("/src/.hidden")
	require.NoError(t, err)
	assert.False(t, ok)
}
