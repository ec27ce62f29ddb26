// Package interfaces defines the collaborator contracts the composition
// pipeline and the incremental builder depend on, so that each can be
// replaced in tests.
package interfaces

import (
	"io/fs"

	"github.com/conneroisu/unify/internal/types"
)

// FileSystem is the raw filesystem abstraction used by the build.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	// WriteFile creates parent directories as needed.
	WriteFile(path string, data []byte) error
	CopyFile(src, dst string) error
	Stat(path string) (fs.FileInfo, error)
	Remove(path string) error
	Exists(path string) bool
	Walk(root string, fn fs.WalkDirFunc) error
}

// Classifier decides the role of a source path.
type Classifier interface {
	Classify(path string) types.Classification
}

// IncludeResult is the outcome of expanding server-side includes.
type IncludeResult struct {
	Success           bool
	Content           string
	IncludesProcessed int
	Warnings          []string
	Dependencies      []string
}

// IncludeProcessor expands server-side includes in a document.
type IncludeProcessor interface {
	Process(html, path string) IncludeResult
}

// SecurityIssue is one finding reported by a SecurityScanner.
type SecurityIssue struct {
	Type     string `json:"type" yaml:"type"`
	Message  string `json:"message" yaml:"message"`
	Line     int    `json:"line" yaml:"line"`
	FilePath string `json:"file_path" yaml:"file_path"`
	Severity string `json:"severity" yaml:"severity"`
}

// SecurityScanner inspects markup for unsafe patterns.
type SecurityScanner interface {
	Scan(html, path string) []SecurityIssue
}

// CacheStats represents cache performance statistics
type CacheStats interface {
	GetSize() int64
	GetHits() int64
	GetMisses() int64
	GetHitRate() float64
	Clear()
}
