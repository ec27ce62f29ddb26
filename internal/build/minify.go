package build

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

var whitespaceRun = regexp.MustCompile(`\s+`)

// MinifyHTML drops comments and collapses whitespace outside pre,
// textarea, script and style. Whitespace-only text spanning lines is
// removed. Conditional comments are kept.
func MinifyHTML(markup string) string {
	var out strings.Builder
	out.Grow(len(markup))

	preserve := 0
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return out.String()
		case html.CommentToken:
			if strings.HasPrefix(strings.TrimSpace(string(z.Text())), "[if") {
				out.Write(z.Raw())
			}
		case html.TextToken:
			raw := string(z.Raw())
			if preserve > 0 {
				out.WriteString(raw)
				continue
			}
			if strings.TrimSpace(raw) == "" && strings.Contains(raw, "\n") {
				continue
			}
			out.WriteString(whitespaceRun.ReplaceAllString(raw, " "))
		case html.StartTagToken:
			name, _ := z.TagName()
			if isPreserved(atom.Lookup(name)) {
				preserve++
			}
			out.Write(z.Raw())
		case html.EndTagToken:
			name, _ := z.TagName()
			if isPreserved(atom.Lookup(name)) && preserve > 0 {
				preserve--
			}
			out.Write(z.Raw())
		default:
			out.Write(z.Raw())
		}
	}
}

func isPreserved(a atom.Atom) bool {
	switch a {
	case atom.Pre, atom.Textarea, atom.Script, atom.Style:
		return true
	}
	return false
}
