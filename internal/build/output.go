package build

import (
	"path"
	"path/filepath"
	"strings"
)

// OutputRel maps a source path relative to the source root to its output
// path relative to the output root. Markdown becomes HTML; with pretty URLs
// every page except index.html moves to name/index.html.
func OutputRel(rel string, prettyURLs bool) string {
	rel = filepath.ToSlash(rel)
	ext := path.Ext(rel)
	if strings.EqualFold(ext, ".md") {
		rel = strings.TrimSuffix(rel, ext) + ".html"
		ext = ".html"
	}

	if prettyURLs && isHTML(ext) && path.Base(rel) != "index"+ext {
		rel = path.Join(strings.TrimSuffix(rel, ext), "index.html")
	}
	return rel
}

func isHTML(ext string) bool {
	ext = strings.ToLower(ext)
	return ext == ".html" || ext == ".htm"
}
