package dom

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// DefaultAreaPrefix marks layout classes that name an area.
const DefaultAreaPrefix = "unify-"

// Landmarks are the sectioning elements used as a fallback when no area
// class matches.
var Landmarks = []atom.Atom{atom.Header, atom.Nav, atom.Main, atom.Aside, atom.Footer}

// PageLandmarks leaves out main so page-level composition never replaces
// a region the page did not target.
var PageLandmarks = []atom.Atom{atom.Header, atom.Nav, atom.Aside, atom.Footer}

// AreaMatch pairs a layout element with the page elements that fill it.
type AreaMatch struct {
	LayoutElement *html.Node
	// PageElements holds every page element sharing TargetClass; the first
	// one is the merge source.
	PageElements []*html.Node
	// TargetClass is the shared area class, or the landmark tag name.
	TargetClass string
}

// Source returns the page element whose content fills the area.
func (m AreaMatch) Source() *html.Node {
	if len(m.PageElements) == 0 {
		return nil
	}
	return m.PageElements[0]
}

// AreaClasses returns the classes on n that start with prefix.
func AreaClasses(n *html.Node, prefix string) []string {
	var out []string
	for _, c := range Classes(n) {
		if strings.HasPrefix(c, prefix) && len(c) > len(prefix) {
			out = append(out, c)
		}
	}
	return out
}

// MatchAreas pairs every layout element carrying an area class with the
// page elements carrying the identical class. An element with several area
// classes is matched on the first one the page provides.
func MatchAreas(layoutDoc, pageDoc *html.Node, prefix string) []AreaMatch {
	if prefix == "" {
		prefix = DefaultAreaPrefix
	}

	byClass := make(map[string][]*html.Node)
	for _, el := range FindAll(pageDoc, isElement) {
		for _, c := range AreaClasses(el, prefix) {
			byClass[c] = append(byClass[c], el)
		}
	}

	var matches []AreaMatch
	for _, el := range FindAll(layoutDoc, isElement) {
		for _, c := range AreaClasses(el, prefix) {
			if pageEls := byClass[c]; len(pageEls) > 0 {
				matches = append(matches, AreaMatch{
					LayoutElement: el,
					PageElements:  pageEls,
					TargetClass:   c,
				})
				break
			}
		}
	}
	return matches
}

// MatchLandmarks pairs the first layout element of each eligible landmark
// tag with the first page element of the same tag. Layout elements that
// carry an area class are never landmark targets.
func MatchLandmarks(layoutDoc, pageDoc *html.Node, eligible []atom.Atom, prefix string) []AreaMatch {
	if prefix == "" {
		prefix = DefaultAreaPrefix
	}

	var matches []AreaMatch
	for _, tag := range eligible {
		layoutEl := Find(layoutDoc, func(n *html.Node) bool {
			return IsElement(n, tag) && len(AreaClasses(n, prefix)) == 0
		})
		if layoutEl == nil {
			continue
		}
		pageEls := FindAll(pageDoc, func(n *html.Node) bool { return IsElement(n, tag) })
		if len(pageEls) == 0 {
			continue
		}
		matches = append(matches, AreaMatch{
			LayoutElement: layoutEl,
			PageElements:  pageEls,
			TargetClass:   tag.String(),
		})
	}
	return matches
}

// ApplyMatch overwrites the layout element with the merged attributes and
// a copy of the source element's content. The layout tag is kept.
func ApplyMatch(m AreaMatch) {
	src := m.Source()
	if src == nil || m.LayoutElement == nil {
		return
	}
	m.LayoutElement.Attr = MergeAttributes(m.LayoutElement, src)
	ReplaceChildren(m.LayoutElement, CloneChildren(src))
}

func isElement(n *html.Node) bool { return n.Type == html.ElementNode }
