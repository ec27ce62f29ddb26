package scanner

import (
	"context"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"

	"github.com/conneroisu/unify/internal/interfaces"
	"github.com/conneroisu/unify/internal/logging"
	"github.com/conneroisu/unify/internal/types"
	"github.com/conneroisu/unify/internal/validation"
)

// Scanner walks the source root and returns classified source files.
type Scanner struct {
	fs         interfaces.FileSystem
	classifier *Classifier
	sourceRoot string
	logger     logging.Logger
}

// NewScanner creates a scanner over sourceRoot.
func NewScanner(fsys interfaces.FileSystem, classifier *Classifier, sourceRoot string, logger logging.Logger) *Scanner {
	if logger == nil {
		logger = logging.NewDiscardLogger()
	}
	return &Scanner{
		fs:         fsys,
		classifier: classifier,
		sourceRoot: filepath.Clean(sourceRoot),
		logger:     logger.WithComponent("scanner"),
	}
}

// Inventory groups discovered files by role, each sorted by path.
type Inventory struct {
	Pages     []types.SourceFile
	Layouts   []types.SourceFile
	Fragments []types.SourceFile
	Assets    []types.SourceFile
}

// All returns every discovered file in a stable order.
func (inv Inventory) All() []types.SourceFile {
	all := make([]types.SourceFile, 0, len(inv.Pages)+len(inv.Layouts)+len(inv.Fragments)+len(inv.Assets))
	all = append(all, inv.Layouts...)
	all = append(all, inv.Fragments...)
	all = append(all, inv.Pages...)
	all = append(all, inv.Assets...)
	return all
}

// LayoutMap maps each layout and fragment path to its content.
func (inv Inventory) LayoutMap() map[string]string {
	m := make(map[string]string, len(inv.Layouts)+len(inv.Fragments))
	for _, f := range inv.Layouts {
		m[f.Path] = string(f.Content)
	}
	for _, f := range inv.Fragments {
		m[f.Path] = string(f.Content)
	}
	return m
}

// Discover walks the source root. Layout and fragment content is loaded
// eagerly; pages and assets are read when they are built.
func (s *Scanner) Discover(ctx context.Context) (Inventory, error) {
	var inv Inventory

	err := s.fs.Walk(s.sourceRoot, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() {
			if p != s.sourceRoot && s.skipDir(p) {
				return filepath.SkipDir
			}
			return nil
		}
		if verr := validation.ValidatePath(p, s.sourceRoot); verr != nil {
			s.logger.Warn(ctx, verr, "skipping path outside source root", "path", p)
			return nil
		}

		file, ok, ferr := s.describe(p)
		if ferr != nil {
			return ferr
		}
		if !ok {
			return nil
		}

		switch file.Role {
		case types.RolePage:
			inv.Pages = append(inv.Pages, file)
		case types.RoleLayout:
			inv.Layouts = append(inv.Layouts, file)
		case types.RoleFragment:
			inv.Fragments = append(inv.Fragments, file)
		case types.RoleAsset:
			inv.Assets = append(inv.Assets, file)
		}
		return nil
	})
	if err != nil {
		return Inventory{}, fmt.Errorf("discover %s: %w", s.sourceRoot, err)
	}

	for _, group := range [][]types.SourceFile{inv.Pages, inv.Layouts, inv.Fragments, inv.Assets} {
		sort.Slice(group, func(i, j int) bool { return group[i].Path < group[j].Path })
	}

	s.logger.Debug(ctx, "discovered source files",
		"pages", len(inv.Pages),
		"layouts", len(inv.Layouts),
		"fragments", len(inv.Fragments),
		"assets", len(inv.Assets))

	return inv, nil
}

// Describe classifies a single path and loads composable content.
// ok is false for ignored files.
func (s *Scanner) Describe(p string) (types.SourceFile, bool, error) {
	return s.describe(filepath.Clean(p))
}

func (s *Scanner) describe(p string) (types.SourceFile, bool, error) {
	class := s.classifier.Classify(p)
	role := class.Role()
	if role == types.RoleIgnored {
		return types.SourceFile{}, false, nil
	}

	rel, _ := filepath.Rel(s.sourceRoot, p)
	file := types.SourceFile{
		Path:    p,
		RelPath: filepath.ToSlash(rel),
		Role:    role,
	}
	if info, err := s.fs.Stat(p); err == nil {
		file.Size = info.Size()
		file.ModTime = info.ModTime()
	}

	if class.IsComposable() {
		content, err := s.fs.ReadFile(p)
		if err != nil {
			return types.SourceFile{}, false, fmt.Errorf("read %s: %w", p, err)
		}
		file.Content = content
	}

	return file, true, nil
}

func (s *Scanner) skipDir(dir string) bool {
	rel, err := filepath.Rel(s.sourceRoot, dir)
	if err != nil {
		return true
	}
	rel = filepath.ToSlash(rel)
	if strings.HasPrefix(filepath.Base(dir), ".") {
		return true
	}
	return s.classifier.Ignored(rel)
}
