// Package dom holds the tree operations behind DOM Cascade composition:
// directive handling, area and landmark matching, attribute merging and
// head merging. All operations work on golang.org/x/net/html node trees.
package dom

import (
	"bytes"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Directive attribute names. data-layer is the legacy spelling.
const (
	AttrDirective       = "data-unify"
	AttrLegacyDirective = "data-layer"
)

// Parse parses a complete HTML document.
func Parse(s string) (*html.Node, error) {
	return html.Parse(strings.NewReader(s))
}

// Render serializes n and its subtree.
func Render(n *html.Node) (string, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, n); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// IsElement reports whether n is an element with the given tag.
func IsElement(n *html.Node, a atom.Atom) bool {
	return n != nil && n.Type == html.ElementNode && n.DataAtom == a
}

// Find returns the first node in pre-order for which match is true.
func Find(n *html.Node, match func(*html.Node) bool) *html.Node {
	if n == nil {
		return nil
	}
	if match(n) {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := Find(c, match); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns every node in pre-order for which match is true.
func FindAll(n *html.Node, match func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if match(n) {
			out = append(out, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if n != nil {
		walk(n)
	}
	return out
}

// FindTag returns the first element with the given tag.
func FindTag(n *html.Node, a atom.Atom) *html.Node {
	return Find(n, func(n *html.Node) bool { return IsElement(n, a) })
}

// Head returns the document's head element, or nil.
func Head(doc *html.Node) *html.Node { return FindTag(doc, atom.Head) }

// Body returns the document's body element, or nil.
func Body(doc *html.Node) *html.Node { return FindTag(doc, atom.Body) }

// GetAttr returns the value of key on n.
func GetAttr(n *html.Node, key string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// SetAttr sets key on n, replacing an existing value in place.
func SetAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// RemoveAttr deletes key from n and reports whether it was present.
func RemoveAttr(n *html.Node, key string) bool {
	kept := n.Attr[:0]
	removed := false
	for _, a := range n.Attr {
		if a.Namespace == "" && a.Key == key {
			removed = true
			continue
		}
		kept = append(kept, a)
	}
	n.Attr = kept
	return removed
}

// Classes returns n's class list in order.
func Classes(n *html.Node) []string {
	v, _ := GetAttr(n, "class")
	return strings.Fields(v)
}

// HasClass reports whether n's class list contains class exactly.
func HasClass(n *html.Node, class string) bool {
	for _, c := range Classes(n) {
		if c == class {
			return true
		}
	}
	return false
}

// Directive returns the directive value carried by n, preferring data-unify.
func Directive(n *html.Node) (string, bool) {
	if n == nil || n.Type != html.ElementNode {
		return "", false
	}
	if v, ok := GetAttr(n, AttrDirective); ok {
		return strings.TrimSpace(v), true
	}
	if v, ok := GetAttr(n, AttrLegacyDirective); ok {
		return strings.TrimSpace(v), true
	}
	return "", false
}

// IsRoot reports whether n is the html or body element.
func IsRoot(n *html.Node) bool {
	return IsElement(n, atom.Html) || IsElement(n, atom.Body)
}

// RootDirective returns the layout named on the document root. The html
// element is consulted before body.
func RootDirective(doc *html.Node) (string, bool) {
	for _, a := range []atom.Atom{atom.Html, atom.Body} {
		if v, ok := Directive(FindTag(doc, a)); ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// ComponentRefs returns the outermost non-root elements carrying a
// directive, in document order.
func ComponentRefs(doc *html.Node) []*html.Node {
	var refs []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && !IsRoot(n) {
			if _, ok := Directive(n); ok {
				refs = append(refs, n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	if doc != nil {
		walk(doc)
	}
	return refs
}

// StripDirectives removes every directive attribute under n and returns
// how many were removed.
func StripDirectives(n *html.Node) int {
	removed := 0
	for _, el := range FindAll(n, func(n *html.Node) bool { return n.Type == html.ElementNode }) {
		if RemoveAttr(el, AttrDirective) {
			removed++
		}
		if RemoveAttr(el, AttrLegacyDirective) {
			removed++
		}
	}
	return removed
}

// HasDirectives reports whether markup carries any directive attribute.
func HasDirectives(markup string) bool {
	found := false
	scanTags(markup, func(tok html.Token, _ []byte) {
		for _, a := range tok.Attr {
			if isDirectiveKey(a.Key) {
				found = true
			}
		}
	}, nil)
	return found
}

// StripDirectivesString removes directive attributes from raw markup
// without re-parsing it into a document. Tags without directives are
// copied byte for byte.
func StripDirectivesString(markup string) string {
	if !strings.Contains(markup, AttrDirective) && !strings.Contains(markup, AttrLegacyDirective) {
		return markup
	}

	var out strings.Builder
	out.Grow(len(markup))
	scanTags(markup, func(tok html.Token, raw []byte) {
		kept := tok.Attr[:0]
		for _, a := range tok.Attr {
			if !isDirectiveKey(a.Key) {
				kept = append(kept, a)
			}
		}
		if len(kept) == len(tok.Attr) {
			out.Write(raw)
			return
		}
		tok.Attr = kept
		out.WriteString(tok.String())
	}, func(raw []byte) {
		out.Write(raw)
	})
	return out.String()
}

// scanTags tokenizes markup, passing start and self-closing tags to onTag
// and every other token's raw bytes to onOther.
func scanTags(markup string, onTag func(html.Token, []byte), onOther func([]byte)) {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() != io.EOF && onOther != nil {
				onOther(z.Raw())
			}
			return
		}
		raw := append([]byte(nil), z.Raw()...)
		if tt == html.StartTagToken || tt == html.SelfClosingTagToken {
			onTag(z.Token(), raw)
			continue
		}
		if onOther != nil {
			onOther(raw)
		}
	}
}

func isDirectiveKey(key string) bool {
	return key == AttrDirective || key == AttrLegacyDirective
}

// Clone deep-copies n. The copy is detached.
func Clone(n *html.Node) *html.Node {
	c := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		c.AppendChild(Clone(child))
	}
	return c
}

// CloneChildren deep-copies n's children.
func CloneChildren(n *html.Node) []*html.Node {
	var out []*html.Node
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		out = append(out, Clone(c))
	}
	return out
}

// ReplaceChildren swaps n's children for kids, which must be detached.
func ReplaceChildren(n *html.Node, kids []*html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
	for _, k := range kids {
		n.AppendChild(k)
	}
}

// ReplaceNode puts the detached nodes where old was and detaches old.
// A node without a parent is left untouched.
func ReplaceNode(old *html.Node, nodes []*html.Node) {
	parent := old.Parent
	if parent == nil {
		return
	}
	for _, n := range nodes {
		parent.InsertBefore(n, old)
	}
	parent.RemoveChild(old)
}

// Document builds an html/head/body document whose body holds the
// detached nodes.
func Document(nodes []*html.Node) *html.Node {
	doc := &html.Node{Type: html.DocumentNode}
	root := &html.Node{Type: html.ElementNode, DataAtom: atom.Html, Data: "html"}
	head := &html.Node{Type: html.ElementNode, DataAtom: atom.Head, Data: "head"}
	body := &html.Node{Type: html.ElementNode, DataAtom: atom.Body, Data: "body"}
	doc.AppendChild(root)
	root.AppendChild(head)
	root.AppendChild(body)
	for _, n := range nodes {
		body.AppendChild(n)
	}
	return doc
}
