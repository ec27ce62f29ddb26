// Package includes expands Apache-style server-side include comments:
//
//	<!--#include virtual="/_includes/nav.html" -->
//	<!--#include file="footer.html" -->
//
// virtual paths resolve from the source root, file paths from the
// including document. Expansion is recursive and guarded against cycles.
package includes

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/validation"
)

// DefaultMaxDepth bounds nested include expansion.
const DefaultMaxDepth = 10

var includePattern = regexp.MustCompile(`<!--#include\s+(virtual|file)\s*=\s*"([^"]*)"\s*-->`)

// Processor implements interfaces.IncludeProcessor.
type Processor struct {
	fs         interfaces.FileSystem
	sourceRoot string
	maxDepth   int
}

var _ interfaces.IncludeProcessor = (*Processor)(nil)

// NewProcessor creates a processor rooted at sourceRoot.
func NewProcessor(fsys interfaces.FileSystem, sourceRoot string) *Processor {
	return &Processor{
		fs:         fsys,
		sourceRoot: filepath.Clean(sourceRoot),
		maxDepth:   DefaultMaxDepth,
	}
}

type expansion struct {
	result interfaces.IncludeResult
	stack  []string
	seen   map[string]bool
}

// Process expands every include in html. Missing, cyclic, too deep or
// out-of-root includes are replaced with nothing and reported as warnings.
func (p *Processor) Process(html, path string) interfaces.IncludeResult {
	if !strings.Contains(html, "<!--#include") {
		return interfaces.IncludeResult{Success: true, Content: html}
	}

	x := &expansion{seen: make(map[string]bool)}
	x.result.Success = true
	x.result.Content = p.expand(x, html, filepath.Clean(path), 0)

	return x.result
}

func (p *Processor) expand(x *expansion, html, current string, depth int) string {
	x.stack = append(x.stack, current)
	defer func() { x.stack = x.stack[:len(x.stack)-1] }()

	return includePattern.ReplaceAllStringFunc(html, func(directive string) string {
		m := includePattern.FindStringSubmatch(directive)
		target, err := p.resolve(m[1], m[2], current)
		if err != nil {
			x.warn("%s: %v", current, err)
			return ""
		}

		if depth+1 > p.maxDepth {
			x.warn("%s: include depth exceeds %d at %s", current, p.maxDepth, target)
			return ""
		}
		for _, active := range x.stack {
			if active == target {
				x.warn("%s: circular include of %s", current, target)
				return ""
			}
		}

		data, err := p.fs.ReadFile(target)
		if err != nil {
			x.warn("%s: include not found: %s", current, m[2])
			return ""
		}

		if !x.seen[target] {
			x.seen[target] = true
			x.result.Dependencies = append(x.result.Dependencies, target)
		}
		x.result.IncludesProcessed++

		return p.expand(x, string(data), target, depth+1)
	})
}

func (p *Processor) resolve(kind, ref, current string) (string, error) {
	if ref == "" {
		return "", fmt.Errorf("empty include path")
	}

	var target string
	if kind == "virtual" || strings.HasPrefix(ref, "/") {
		target = filepath.Join(p.sourceRoot, filepath.FromSlash(strings.TrimPrefix(ref, "/")))
	} else {
		target = filepath.Join(filepath.Dir(current), filepath.FromSlash(ref))
	}

	if err := validation.ValidatePath(target, p.sourceRoot); err != nil {
		return "", err
	}

	return target, nil
}

func (x *expansion) warn(format string, args ...interface{}) {
	x.result.Warnings = append(x.result.Warnings, fmt.Sprintf(format, args...))
}
