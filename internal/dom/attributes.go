package dom

import (
	"strings"

	"golang.org/x/net/html"
)

// MergeAttributes merges a matched layout/page element pair. The layout's
// id wins, classes are the ordered union of layout then page classes, and
// for every other attribute the page's value wins when present. Layout
// attribute order is kept; page-only attributes follow.
func MergeAttributes(layoutEl, pageEl *html.Node) []html.Attribute {
	var merged []html.Attribute
	seen := make(map[string]bool)

	for _, a := range layoutEl.Attr {
		if a.Namespace != "" {
			merged = append(merged, a)
			continue
		}
		seen[a.Key] = true
		switch a.Key {
		case "id":
			merged = append(merged, a)
		case "class":
			a.Val = mergeClasses(Classes(layoutEl), Classes(pageEl))
			merged = append(merged, a)
		default:
			if v, ok := GetAttr(pageEl, a.Key); ok {
				a.Val = v
			}
			merged = append(merged, a)
		}
	}

	for _, a := range pageEl.Attr {
		if a.Namespace != "" || seen[a.Key] {
			continue
		}
		seen[a.Key] = true
		if a.Key == "class" {
			a.Val = mergeClasses(nil, Classes(pageEl))
		}
		merged = append(merged, a)
	}

	return merged
}

func mergeClasses(layout, page []string) string {
	seen := make(map[string]bool, len(layout)+len(page))
	out := make([]string, 0, len(layout)+len(page))
	for _, list := range [][]string{layout, page} {
		for _, c := range list {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return strings.Join(out, " ")
}
