// Package testutils holds fixtures shared by the unify test suites.
package testutils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/conneroisu/unify/internal/adapters"
	"github.com/conneroisu/unify/internal/config"
	"github.com/stretchr/testify/require"
)

// CreateTempSite writes files, keyed by slash-separated relative path,
// under a fresh temporary directory and returns that directory.
func CreateTempSite(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	WriteFiles(t, root, files)
	return root
}

// WriteFiles writes files under root, creating parent directories.
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

// MemSite returns an in-memory file system holding files under root.
func MemSite(t *testing.T, root string, files map[string]string) *adapters.MemFileSystem {
	t.Helper()
	fsys := adapters.NewMemFileSystem()
	for rel, content := range files {
		require.NoError(t, fsys.WriteFile(filepath.Join(root, filepath.FromSlash(rel)), []byte(content)))
	}
	return fsys
}

// CreateTestConfig returns a valid configuration rooted at projectDir.
func CreateTestConfig(projectDir string) *config.Config {
	return &config.Config{
		Build: config.BuildConfig{
			Source:     filepath.Join(projectDir, "src"),
			Output:     filepath.Join(projectDir, "dist"),
			CacheFile:  filepath.Join(projectDir, ".unify-cache", "hashes.json"),
			AreaPrefix: "unify-",
			MaxDepth:   10,
		},
		Watch: config.WatchConfig{Debounce: 20 * time.Millisecond},
		Server: config.ServerConfig{
			Host:       "localhost",
			Port:       0,
			LiveReload: true,
		},
		Logging: config.LoggingConfig{Level: "error", Format: "text"},
	}
}

// WaitForFileChange waits for a file to be modified (useful for testing file watchers)
func WaitForFileChange(
	t *testing.T,
	filePath string,
	originalModTime time.Time,
	timeout time.Duration,
) {
	t.Helper()
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		info, err := os.Stat(filePath)
		if err == nil && info.ModTime().After(originalModTime) {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s was not modified within %v", filePath, timeout)
}

// WaitForContent polls filePath until it contains want.
func WaitForContent(t *testing.T, filePath, want string, timeout time.Duration) string {
	t.Helper()
	deadline := time.Now().Add(timeout)

	var last string
	for time.Now().Before(deadline) {
		if data, err := os.ReadFile(filePath); err == nil {
			last = string(data)
			if strings.Contains(last, want) {
				return last
			}
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("File %s did not contain %q within %v; last content: %q", filePath, want, timeout, last)
	return ""
}
