// Package markdown turns Markdown pages with YAML front matter into HTML
// documents the composition pipeline understands.
package markdown

import (
	"bytes"
	"errors"
	"fmt"
	stdhtml "html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
	"gopkg.in/yaml.v3"
)

// ErrMissingClosingDelimiter is returned when front matter is opened but
// never closed.
var ErrMissingClosingDelimiter = errors.New("front matter: missing closing delimiter")

// FrontMatter holds the recognised front matter fields.
type FrontMatter struct {
	Title       string         `yaml:"title"`
	Layout      string         `yaml:"layout"`
	Description string         `yaml:"description"`
	Extra       map[string]any `yaml:",inline"`
}

// Page is a rendered Markdown page.
type Page struct {
	FrontMatter FrontMatter
	// Body is the rendered Markdown alone.
	Body string
	// Document is the full HTML document to compose.
	Document string
}

// Renderer renders Markdown pages.
type Renderer struct {
	md         goldmark.Markdown
	areaPrefix string
}

// NewRenderer creates a renderer. Rendered content is placed in the
// "<prefix>content" area of the page's layout.
func NewRenderer(areaPrefix string) *Renderer {
	if areaPrefix == "" {
		areaPrefix = "unify-"
	}
	return &Renderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM),
			goldmark.WithRendererOptions(html.WithUnsafe()),
		),
		areaPrefix: areaPrefix,
	}
}

// Split separates `---` delimited front matter from the body.
func Split(content []byte) (frontmatter, body []byte, had bool, err error) {
	content = bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(content, []byte("---\n")) {
		return nil, content, false, nil
	}

	rest := content[len("---\n"):]
	if bytes.HasPrefix(rest, []byte("---\n")) {
		return []byte{}, rest[len("---\n"):], true, nil
	}

	idx := bytes.Index(rest, []byte("\n---\n"))
	if idx < 0 {
		if bytes.HasSuffix(rest, []byte("\n---")) {
			return rest[:len(rest)-len("\n---")+1], nil, true, nil
		}
		return nil, nil, false, ErrMissingClosingDelimiter
	}
	return rest[:idx+1], rest[idx+len("\n---\n"):], true, nil
}

// Render converts a Markdown source file into a Page.
func (r *Renderer) Render(content []byte) (*Page, error) {
	fm, body, had, err := Split(content)
	if err != nil {
		return nil, err
	}

	page := &Page{}
	if had && len(bytes.TrimSpace(fm)) > 0 {
		if err := yaml.Unmarshal(fm, &page.FrontMatter); err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
	}

	var buf bytes.Buffer
	if err := r.md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	page.Body = buf.String()
	page.Document = r.document(page)
	return page, nil
}

func (r *Renderer) document(page *Page) string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html><head>")
	if t := page.FrontMatter.Title; t != "" {
		b.WriteString("<title>" + stdhtml.EscapeString(t) + "</title>")
	}
	if d := page.FrontMatter.Description; d != "" {
		b.WriteString(`<meta name="description" content="` + stdhtml.EscapeString(d) + `">`)
	}
	b.WriteString("</head>")

	if layout := strings.TrimSpace(page.FrontMatter.Layout); layout != "" {
		b.WriteString(`<body data-unify="` + stdhtml.EscapeString(layout) + `">`)
		b.WriteString(`<main class="` + r.areaPrefix + `content">`)
		b.WriteString(page.Body)
		b.WriteString("</main></body></html>")
		return b.String()
	}

	b.WriteString("<body>")
	b.WriteString(page.Body)
	b.WriteString("</body></html>")
	return b.String()
}
