package testutils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/conneroisu/unify/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateTempSite(t *testing.T) {
	root := CreateTempSite(t, map[string]string{
		"src/index.html":   "<p>home</p>",
		"src/css/site.css": "body{}",
	})

	data, err := os.ReadFile(filepath.Join(root, "src", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<p>home</p>", string(data))
	assert.FileExists(t, filepath.Join(root, "src", "css", "site.css"))
}

func TestMemSite(t *testing.T) {
	fsys := MemSite(t, "/site/src", map[string]string{"a/b.html": "x"})

	data, err := fsys.ReadFile("/site/src/a/b.html")
	require.NoError(t, err)
	assert.Equal(t, "x", string(data))
	assert.Equal(t, 1, fsys.WriteCount())
}

func TestCreateTestConfigValidates(t *testing.T) {
	cfg := CreateTestConfig(t.TempDir())
	result := config.ValidateConfigWithDetails(cfg)
	assert.False(t, result.HasErrors(), result.String())
}

func TestWaitForFileChange(t *testing.T) {
	testFile := filepath.Join(t.TempDir(), "test.txt")
	require.NoError(t, os.WriteFile(testFile, []byte("initial"), 0o644))

	info, err := os.Stat(testFile)
	require.NoError(t, err)
	originalModTime := info.ModTime()

	go func() {
		time.Sleep(50 * time.Millisecond)
		later := originalModTime.Add(time.Second)
		_ = os.WriteFile(testFile, []byte("modified"), 0o644)
		_ = os.Chtimes(testFile, later, later)
	}()

	WaitForFileChange(t, testFile, originalModTime, 2*time.Second)
	WaitForContent(t, testFile, "modified", 2*time.Second)
}
