package compose

import (
	"context"
	"path/filepath"
	"strings"

	uerrors "github.com/conneroisu/unify/internal/errors"
	"golang.org/x/net/html"
)

// frame is one in-flight key on the processing stack. file is the document
// being composed at that point, used to report the chain.
type frame struct {
	key  string
	file string
}

// session holds the state of a single Compose call.
type session struct {
	ctx        context.Context
	engine     *Engine
	sourceRoot string
	layoutMap  map[string]string
	result     *Result
	stack      []frame
	hoisted    []*html.Node
	depSeen    map[string]bool
}

func linkKey(src, layout string) string { return src + "→" + layout }

// push adds a key to the processing stack. It fails when the key is
// already in flight; a file may appear more than once under different keys.
func (s *session) push(key, file string) error {
	for _, f := range s.stack {
		if f.key == key {
			return uerrors.ErrCircularImport(s.chain(file))
		}
	}
	s.stack = append(s.stack, frame{key: key, file: file})
	return nil
}

func (s *session) pop() {
	if len(s.stack) > 0 {
		s.stack = s.stack[:len(s.stack)-1]
	}
}

func (s *session) chain(next string) []string {
	files := make([]string, 0, len(s.stack)+1)
	for _, f := range s.stack {
		files = append(files, s.display(f.file))
	}
	return append(files, s.display(next))
}

func (s *session) display(path string) string {
	if s.sourceRoot == "" {
		return path
	}
	rel, err := filepath.Rel(s.sourceRoot, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return path
	}
	return filepath.ToSlash(rel)
}

func (s *session) addDependency(path string) {
	if s.depSeen[path] {
		return
	}
	s.depSeen[path] = true
	s.result.Dependencies = append(s.result.Dependencies, path)
}
