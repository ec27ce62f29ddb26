package build

import (
	"path"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// NormalizeLinks rewrites root-relative anchors to pretty URLs:
// /a/b.html becomes /a/b/ and /a/index.html becomes /a/. Query strings and
// fragments are kept. Markup other than rewritten tags is copied unchanged.
func NormalizeLinks(markup string) string {
	if !strings.Contains(markup, ".htm") {
		return markup
	}

	var out strings.Builder
	out.Grow(len(markup))

	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			return out.String()
		}
		raw := z.Raw()
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			out.Write(raw)
			continue
		}

		rawCopy := append([]byte(nil), raw...)
		tok := z.Token()
		if tok.DataAtom != atom.A {
			out.Write(rawCopy)
			continue
		}

		changed := false
		for i, a := range tok.Attr {
			if a.Namespace == "" && a.Key == "href" {
				if pretty, ok := prettyHref(a.Val); ok {
					tok.Attr[i].Val = pretty
					changed = true
				}
			}
		}
		if changed {
			out.WriteString(tok.String())
		} else {
			out.Write(rawCopy)
		}
	}
}

func prettyHref(href string) (string, bool) {
	if !strings.HasPrefix(href, "/") || strings.HasPrefix(href, "//") {
		return "", false
	}

	target, suffix := href, ""
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		target, suffix = href[:i], href[i:]
	}

	ext := path.Ext(target)
	if !isHTML(ext) {
		return "", false
	}

	stem := strings.TrimSuffix(target, ext)
	if path.Base(stem) == "index" {
		stem = path.Dir(stem)
	}
	if !strings.HasSuffix(stem, "/") {
		stem += "/"
	}
	return stem + suffix, true
}
