package dom

import (
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// Hoistable reports whether a head element may be lifted out of a
// component into the page head.
func Hoistable(n *html.Node) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	switch n.DataAtom {
	case atom.Meta, atom.Link, atom.Style, atom.Script:
		return true
	}
	return false
}

// MergeHead folds pageHead into layoutHead and returns layoutHead. Page
// meta, link, style and script elements are added unless an element with
// identical serialized markup is already present; other page head elements
// are dropped. A page title replaces the layout title.
func MergeHead(layoutHead, pageHead *html.Node) *html.Node {
	if layoutHead == nil || pageHead == nil {
		return layoutHead
	}

	existing := make(map[string]bool)
	for c := layoutHead.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			existing[serialize(c)] = true
		}
	}

	for c := pageHead.FirstChild; c != nil; c = c.NextSibling {
		if c.Type != html.ElementNode {
			continue
		}
		if c.DataAtom == atom.Title {
			setTitle(layoutHead, c)
			continue
		}
		if !Hoistable(c) {
			continue
		}
		key := serialize(c)
		if existing[key] {
			continue
		}
		existing[key] = true
		layoutHead.AppendChild(Clone(c))
	}

	return layoutHead
}

// HoistHead appends hoistable nodes to head with the same de-duplication
// as MergeHead. Titles are never hoisted.
func HoistHead(head *html.Node, nodes []*html.Node) {
	if head == nil || len(nodes) == 0 {
		return
	}
	synthetic := &html.Node{Type: html.ElementNode, DataAtom: atom.Head, Data: "head"}
	for _, n := range nodes {
		if Hoistable(n) {
			synthetic.AppendChild(Clone(n))
		}
	}
	MergeHead(head, synthetic)
}

func setTitle(head, title *html.Node) {
	replacement := Clone(title)
	if old := FindTag(head, atom.Title); old != nil {
		head.InsertBefore(replacement, old)
		head.RemoveChild(old)
		return
	}
	head.AppendChild(replacement)
}

func serialize(n *html.Node) string {
	s, err := Render(n)
	if err != nil {
		return n.Data
	}
	return s
}
