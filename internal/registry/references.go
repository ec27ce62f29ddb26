package registry

import (
	"net/url"
	"path"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/unify/internal/dom"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Reference is a file named by a document.
type Reference struct {
	Value string
	Kind  RefKind
}

// RefKind says how a document names a file.
type RefKind string

const (
	RefLayout    RefKind = "layout"
	RefComponent RefKind = "component"
	RefInclude   RefKind = "include"
	RefAsset     RefKind = "asset"
)

var includeComment = regexp.MustCompile(`^#include\s+(virtual|file)\s*=\s*"([^"]*)"\s*$`)

var assetAttrs = map[atom.Atom][]string{
	atom.Img:    {"src", "srcset"},
	atom.Script: {"src"},
	atom.Link:   {"href"},
	atom.Source: {"src", "srcset"},
	atom.Video:  {"src", "poster"},
	atom.Audio:  {"src"},
	atom.Iframe: {"src"},
	atom.Embed:  {"src"},
	atom.Object: {"data"},
	atom.Track:  {"src"},
}

// ScanReferences tokenizes markup and returns every directive, include and
// local asset reference in document order.
func ScanReferences(markup string) []Reference {
	var refs []Reference
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return refs
		case html.CommentToken:
			if m := includeComment.FindStringSubmatch(strings.TrimSpace(string(z.Text()))); m != nil {
				ref := m[2]
				if m[1] == "virtual" && !strings.HasPrefix(ref, "/") {
					ref = "/" + ref
				}
				refs = append(refs, Reference{Value: ref, Kind: RefInclude})
			}
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			refs = append(refs, tagReferences(tok)...)
		}
	}
}

func tagReferences(tok html.Token) []Reference {
	var refs []Reference
	root := tok.DataAtom == atom.Html || tok.DataAtom == atom.Body
	keys := assetAttrs[tok.DataAtom]

	for _, a := range tok.Attr {
		switch {
		case a.Key == dom.AttrDirective || a.Key == dom.AttrLegacyDirective:
			if v := strings.TrimSpace(a.Val); v != "" {
				kind := RefComponent
				if root {
					kind = RefLayout
				}
				refs = append(refs, Reference{Value: v, Kind: kind})
			}
		case contains(keys, a.Key):
			for _, v := range splitSrcset(a.Key, a.Val) {
				if local, ok := localAsset(v); ok {
					refs = append(refs, Reference{Value: local, Kind: RefAsset})
				}
			}
		}
	}
	return refs
}

func splitSrcset(key, val string) []string {
	if key != "srcset" {
		return []string{val}
	}
	var out []string
	for _, candidate := range strings.Split(val, ",") {
		if fields := strings.Fields(candidate); len(fields) > 0 {
			out = append(out, fields[0])
		}
	}
	return out
}

// localAsset strips query and fragment from a reference and rejects
// anything that is not a file in this site.
func localAsset(ref string) (string, bool) {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(ref, "//") {
		return "", false
	}
	u, err := url.Parse(ref)
	if err != nil || u.Scheme != "" || u.Host != "" || u.Path == "" {
		return "", false
	}
	return u.Path, true
}

// resolveAsset maps an asset URL path to a source file.
func resolveAsset(ref, from, sourceRoot string) string {
	if strings.HasPrefix(ref, "/") {
		return filepath.Join(sourceRoot, filepath.FromSlash(path.Clean(ref)))
	}
	return filepath.Join(filepath.Dir(from), filepath.FromSlash(ref))
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
