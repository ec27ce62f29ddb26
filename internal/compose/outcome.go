package compose

import "golang.org/x/net/html"

type outcomeKind int

const (
	outcomeComposed outcomeKind = iota
	outcomeFallback
	outcomeFatal
)

// outcome is the result of one recursive composition step. A fallback
// carries no document; the caller keeps what it had.
type outcome struct {
	kind   outcomeKind
	doc    *html.Node
	nodes  []*html.Node
	reason string
	err    error
}

func composed(doc *html.Node) outcome { return outcome{kind: outcomeComposed, doc: doc} }

func composedNodes(nodes []*html.Node) outcome {
	return outcome{kind: outcomeComposed, nodes: nodes}
}

func fallback(reason string) outcome { return outcome{kind: outcomeFallback, reason: reason} }

func fatal(err error) outcome { return outcome{kind: outcomeFatal, err: err} }

func (o outcome) isFatal() bool { return o.kind == outcomeFatal }
