package compose

import (
	"testing"

	"github.com/conneroisu/unify/internal/adapters"
	uerrors "github.com/conneroisu/unify/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	fsys := adapters.NewMemFileSystem()
	for _, p := range []string{"/s/_includes/nav.html", "/s/blog/_post.html", "/s/blog/card.html"} {
		require.NoError(t, fsys.WriteFile(p, []byte("x")))
	}
	r := NewResolver(fsys.Exists)

	tests := []struct {
		name string
		ref  string
		from string
		want string
	}{
		{"root relative", "/_includes/nav.html", "/s/blog/a.html", "/s/_includes/nav.html"},
		{"sibling", "_post.html", "/s/blog/a.html", "/s/blog/_post.html"},
		{"extension appended", "card", "/s/blog/a.html", "/s/blog/card.html"},
		{"includes fallback", "nav", "/s/blog/a.html", "/s/_includes/nav.html"},
		{"missing stays local", "gone.html", "/s/blog/a.html", "/s/blog/gone.html"},
		{"nested path no fallback", "x/nav.html", "/s/a.html", "/s/x/nav.html"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.Resolve(tt.ref, tt.from, "/s")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := r.Resolve("../../etc/passwd", "/s/a.html", "/s")
	assert.True(t, uerrors.IsSecurityError(err))

	_, err = r.Resolve("  ", "/s/a.html", "/s")
	assert.Error(t, err)
}
